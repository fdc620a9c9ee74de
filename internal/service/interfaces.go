package service

import (
	"context"

	"sessiongate/internal/domain"
)

// IdentityProvider defines the operations used against the remote identity provider
type IdentityProvider interface {
	// GetUser returns the identity behind an access token
	GetUser(ctx context.Context, accessToken string) (*domain.Identity, error)

	// RefreshSession exchanges a refresh token for a new token pair
	RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error)

	// SignInWithPassword starts a session with email and password
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)

	// SignUp registers a user; the session is nil while email confirmation is pending
	SignUp(ctx context.Context, email, password, fullName string) (*domain.Session, error)

	// SignOut revokes the session behind accessToken
	SignOut(ctx context.Context, accessToken string) error

	// AuthorizeURL builds an OAuth redirect for provider
	AuthorizeURL(provider OAuthProvider, redirectTo string) (*AuthorizeRequest, error)

	// ExchangeCode completes an OAuth PKCE flow
	ExchangeCode(ctx context.Context, code, verifier string) (*domain.Session, error)
}

// ProfileResolver defines how authenticated identities become display profiles
type ProfileResolver interface {
	// ResolveProfile returns the stored profile or a synthesized fallback; never nil
	// for a non-nil identity
	ResolveProfile(ctx context.Context, identity *domain.Identity) *domain.Profile

	// InvalidateProfile drops cached state for userID
	InvalidateProfile(ctx context.Context, userID string)
}

// Services aggregates all service interfaces
type Services struct {
	Identity IdentityProvider
	Profiles ProfileResolver
}

var (
	_ IdentityProvider = (*SupabaseClient)(nil)
	_ ProfileResolver  = (*ProfileService)(nil)
)
