package middleware

import (
	"context"

	"sessiongate/internal/domain"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// SessionContextKey is the key for the gate's session in context
	SessionContextKey ContextKey = "session"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// SessionFromContext returns the session the gate attached to the request, if any
func SessionFromContext(ctx context.Context) *domain.Session {
	session, _ := ctx.Value(SessionContextKey).(*domain.Session)
	return session
}

// RequestIDFromContext returns the request id, or an empty string
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// WithSession returns a copy of ctx carrying session
func WithSession(ctx context.Context, session *domain.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, session)
}
