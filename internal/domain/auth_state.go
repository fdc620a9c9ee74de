package domain

// AuthStatus is the tag of the client-side authentication state
type AuthStatus string

const (
	AuthUninitialized   AuthStatus = "uninitialized"
	AuthLoading         AuthStatus = "loading"
	AuthAuthenticated   AuthStatus = "authenticated"
	AuthUnauthenticated AuthStatus = "unauthenticated"
)

// AuthState is a snapshot of the client session. Session and Profile are set only
// when Status is AuthAuthenticated.
type AuthState struct {
	Status  AuthStatus
	Session *Session
	Profile *Profile
}

// IsAuthenticated reports whether the state carries a session
func (s AuthState) IsAuthenticated() bool {
	return s.Status == AuthAuthenticated && s.Session != nil
}

// AuthEventType tags a push notification from the identity provider
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is an auth-change notification with an optional session payload
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}
