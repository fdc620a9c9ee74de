package middleware

import (
	"context"
	"net/http"

	"sessiongate/internal/domain"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// SessionProvider reads, and if needed refreshes, the session of a request. Rotated
// cookies are written to w.
type SessionProvider interface {
	GetSession(ctx context.Context, r *http.Request, w http.ResponseWriter) (*domain.Session, error)
}

// RequireSession rejects requests without a session with a 401 JSON error. A session
// attached by Gate is reused; otherwise cookies are read here.
func RequireSession(sessions SessionProvider, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			session := SessionFromContext(ctx)
			if session == nil {
				var err error
				session, err = sessions.GetSession(ctx, r, w)
				if err != nil {
					logger.WithError(err).Warn("Session lookup failed")
				}
			}

			if !session.HasUser() {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Authentication required"), logger)
				return
			}

			r = r.WithContext(WithSession(ctx, session))
			logger.WithField("user_id", session.User.ID).Debug("User authenticated successfully")

			next.ServeHTTP(w, r)
		})
	}
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	logger.WithError(appErr).Debug("Request rejected")

	if err := errors.WriteJSON(w, appErr, RequestIDFromContext(r.Context())); err != nil {
		logger.WithError(err).Error("Failed to write error response")
	}
}
