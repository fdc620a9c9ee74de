package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"sessiongate/internal/domain"
	"sessiongate/internal/service"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// Session cookie names
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
)

// refreshCookieMaxAge mirrors the browser cap on cookie lifetime (400 days)
const refreshCookieMaxAge = 400 * 24 * 60 * 60

// CookieOptions controls the attributes of session cookies
type CookieOptions struct {
	Secure bool
	Domain string
}

// supabaseClaims are the access token claims this service reads
type supabaseClaims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	SessionID    string                 `json:"session_id"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
}

// SessionService reads the session from request cookies, refreshing expired access
// tokens and writing rotated cookies back onto the response.
type SessionService struct {
	provider  service.IdentityProvider
	jwtSecret []byte
	cookies   CookieOptions
	logger    *logger.Logger
	now       func() time.Time
}

// NewSessionService creates a session service. Without a JWT secret every access token
// is verified remotely through the provider.
func NewSessionService(provider service.IdentityProvider, jwtSecret string, cookies CookieOptions, logger *logger.Logger) *SessionService {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &SessionService{
		provider:  provider,
		jwtSecret: secret,
		cookies:   cookies,
		logger:    logger,
		now:       time.Now,
	}
}

// GetSession returns the request's session or nil when there is none. Rotated cookies
// are written to w before it returns; cookies of a dead session are cleared.
func (s *SessionService) GetSession(ctx context.Context, r *http.Request, w http.ResponseWriter) (*domain.Session, error) {
	accessToken := cookieValue(r, AccessTokenCookie)
	refreshToken := cookieValue(r, RefreshTokenCookie)

	if accessToken == "" && refreshToken == "" {
		return nil, nil
	}

	if accessToken != "" {
		session, err := s.verifyAccessToken(ctx, accessToken)
		if err == nil {
			session.Token.RefreshToken = refreshToken
			return session, nil
		}
		s.logger.WithError(err).Debug("Access token rejected, attempting refresh")
	}

	if refreshToken == "" {
		s.ClearSessionCookies(w)
		return nil, errors.NewAuthenticationError("Session expired")
	}

	session, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.StatusCode >= 400 && appErr.StatusCode < 500 {
			// refresh token revoked or already used
			s.ClearSessionCookies(w)
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	if session.User == nil {
		identity, err := s.provider.GetUser(ctx, session.AccessToken())
		if err != nil {
			return nil, fmt.Errorf("failed to load refreshed user: %w", err)
		}
		session.User = identity
	}

	s.SetSessionCookies(w, session)
	s.logger.WithField("user_id", session.User.ID).Debug("Session refreshed")
	return session, nil
}

// UserIdentity returns the full provider identity behind session. Identities decoded
// from access token claims have no confirmation or account timestamps, so they are
// loaded from the provider; if that fails the claims identity is returned.
func (s *SessionService) UserIdentity(ctx context.Context, session *domain.Session) *domain.Identity {
	if !session.HasUser() {
		return nil
	}
	if !session.User.CreatedAt.IsZero() || session.AccessToken() == "" {
		return session.User
	}

	identity, err := s.provider.GetUser(ctx, session.AccessToken())
	if err != nil {
		s.logger.WithError(err).WithField("user_id", session.User.ID).Warn("Failed to load provider identity, using token claims")
		return session.User
	}
	if identity == nil || identity.ID != session.User.ID {
		s.logger.WithField("user_id", session.User.ID).Warn("Provider identity does not match token subject")
		return session.User
	}
	return identity
}

// SetSessionCookies writes the token pair of session onto w
func (s *SessionService) SetSessionCookies(w http.ResponseWriter, session *domain.Session) {
	accessMaxAge := 3600
	if !session.Token.Expiry.IsZero() {
		accessMaxAge = int(session.Token.Expiry.Sub(s.now()).Seconds())
		if accessMaxAge <= 0 {
			accessMaxAge = 1
		}
	}

	http.SetCookie(w, s.cookie(AccessTokenCookie, session.AccessToken(), accessMaxAge))
	if session.RefreshToken() != "" {
		http.SetCookie(w, s.cookie(RefreshTokenCookie, session.RefreshToken(), refreshCookieMaxAge))
	}
}

// ClearSessionCookies expires both session cookies
func (s *SessionService) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, s.cookie(RefreshTokenCookie, "", -1))
}

func (s *SessionService) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// verifyAccessToken validates the token locally when a secret is configured and asks
// the provider otherwise
func (s *SessionService) verifyAccessToken(ctx context.Context, accessToken string) (*domain.Session, error) {
	if s.jwtSecret == nil {
		identity, err := s.provider.GetUser(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		return &domain.Session{
			Token: &oauth2.Token{AccessToken: accessToken, TokenType: "bearer"},
			User:  identity,
		}, nil
	}

	claims := &supabaseClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.NewAuthenticationError("Invalid access token")
	}

	var expiry time.Time
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return &domain.Session{
		Token: &oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "bearer",
			Expiry:      expiry,
		},
		User: &domain.Identity{
			ID:           claims.Subject,
			Email:        claims.Email,
			UserMetadata: claims.UserMetadata,
			AppMetadata:  claims.AppMetadata,
		},
	}, nil
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
