package authclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"sessiongate/internal/domain"
	"sessiongate/internal/events"
	"sessiongate/internal/service"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// Client keeps one user's session in memory and publishes auth events as it changes.
// It is the session primitive used by the auth state machine.
type Client struct {
	identity service.IdentityProvider
	hub      *events.Hub
	logger   *logger.Logger

	mu       sync.Mutex
	session  *domain.Session
	verifier string
}

// New creates a client with no session
func New(identity service.IdentityProvider, hub *events.Hub, logger *logger.Logger) *Client {
	return &Client{
		identity: identity,
		hub:      hub,
		logger:   logger.Named("authclient"),
	}
}

// Restore seeds the client with a previously persisted session without publishing
func (c *Client) Restore(session *domain.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

// GetSession returns the current session, refreshing it when the access token has
// expired. A failed refresh drops the session and publishes SIGNED_OUT.
func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil || session.Token == nil {
		return nil, nil
	}
	if session.Token.Valid() {
		return session, nil
	}
	if session.RefreshToken() == "" {
		c.drop(ctx, session)
		return nil, nil
	}

	refreshed, err := c.identity.RefreshSession(ctx, session.RefreshToken())
	if err != nil {
		if isRejected(err) {
			c.drop(ctx, session)
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	if refreshed.User == nil {
		refreshed.User = session.User
	}

	if !c.replace(session, refreshed) {
		// another call already changed the session
		return c.GetSession(ctx)
	}
	c.hub.Publish(ctx, domain.AuthEvent{Type: domain.EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// OnAuthStateChange subscribes to auth events
func (c *Client) OnAuthStateChange() (<-chan domain.AuthEvent, func()) {
	return c.hub.Subscribe()
}

// SignInWithPassword starts a session and publishes SIGNED_IN
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	session, err := c.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.signedIn(ctx, session)
	return session, nil
}

// SignUp registers a user. When the provider returns a session right away (no email
// confirmation) it becomes the current session.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*domain.Session, error) {
	session, err := c.identity.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, err
	}
	if session != nil {
		c.signedIn(ctx, session)
	}
	return session, nil
}

// SignOut revokes the session at the provider. The local session is dropped and
// SIGNED_OUT published even when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.verifier = ""
	c.mu.Unlock()

	var err error
	if session != nil && session.AccessToken() != "" {
		if err = c.identity.SignOut(ctx, session.AccessToken()); err != nil && isRejected(err) {
			// token already invalid at the provider
			err = nil
		}
	}

	c.hub.Publish(ctx, domain.AuthEvent{Type: domain.EventSignedOut})
	return err
}

// SignInWithOAuth starts a PKCE flow and returns the authorization URL to navigate to
func (c *Client) SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	req, err := c.identity.AuthorizeURL(service.OAuthProvider(provider), redirectTo)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.verifier = req.CodeVerifier
	c.mu.Unlock()

	return req.URL, nil
}

// ExchangeCode completes the pending OAuth flow with the code from the callback
func (c *Client) ExchangeCode(ctx context.Context, code string) (*domain.Session, error) {
	c.mu.Lock()
	verifier := c.verifier
	c.mu.Unlock()

	if verifier == "" {
		return nil, errors.NewValidationError("No OAuth sign-in in progress", nil)
	}

	session, err := c.identity.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.verifier = ""
	c.mu.Unlock()

	c.signedIn(ctx, session)
	return session, nil
}

// ReloadUser fetches the identity again and publishes USER_UPDATED
func (c *Client) ReloadUser(ctx context.Context) (*domain.Identity, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.NewAuthenticationError("Auth session missing")
	}

	identity, err := c.identity.GetUser(ctx, session.AccessToken())
	if err != nil {
		return nil, err
	}

	updated := &domain.Session{Token: session.Token, User: identity}
	if !c.replace(session, updated) {
		return identity, nil
	}
	c.hub.Publish(ctx, domain.AuthEvent{Type: domain.EventUserUpdated, Session: updated})
	return identity, nil
}

func (c *Client) signedIn(ctx context.Context, session *domain.Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	c.logger.WithField("user_id", userID(session)).Info("Signed in")
	c.hub.Publish(ctx, domain.AuthEvent{Type: domain.EventSignedIn, Session: session})
}

// replace swaps old for next if old is still current
func (c *Client) replace(old, next *domain.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != old {
		return false
	}
	c.session = next
	return true
}

func (c *Client) drop(ctx context.Context, old *domain.Session) {
	if !c.replace(old, nil) {
		return
	}
	c.logger.WithField("user_id", userID(old)).Info("Session expired")
	c.hub.Publish(ctx, domain.AuthEvent{Type: domain.EventSignedOut})
}

// isRejected reports whether err is a provider 4xx, meaning the token will never work again
func isRejected(err error) bool {
	var appErr *errors.AppError
	return stderrors.As(err, &appErr) &&
		appErr.StatusCode >= http.StatusBadRequest &&
		appErr.StatusCode < http.StatusInternalServerError &&
		appErr.StatusCode != http.StatusTooManyRequests
}

func userID(session *domain.Session) string {
	if !session.HasUser() {
		return ""
	}
	return session.User.ID
}
