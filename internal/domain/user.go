package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// Identity is the authenticated user as reported by the identity provider
type Identity struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
	AppMetadata      map[string]interface{} `json:"app_metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Session is a provider-issued token pair bound to an identity
type Session struct {
	Token *oauth2.Token `json:"-"`
	User  *Identity     `json:"user"`
}

// AccessToken returns the access token or an empty string
func (s *Session) AccessToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}

// RefreshToken returns the refresh token or an empty string
func (s *Session) RefreshToken() string {
	if s == nil || s.Token == nil {
		return ""
	}
	return s.Token.RefreshToken
}

// HasUser reports whether the session carries an identity
func (s *Session) HasUser() bool {
	return s != nil && s.User != nil && s.User.ID != ""
}
