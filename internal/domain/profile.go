package domain

import "time"

// Role is the authorization role carried on a profile
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ProfileSource tells whether a profile came from the store or was synthesized
type ProfileSource string

const (
	ProfileSourcePersisted   ProfileSource = "persisted"
	ProfileSourceSynthesized ProfileSource = "synthesized"
)

// NotificationPreferences holds the user's notification opt-ins
type NotificationPreferences struct {
	Email     bool `json:"email"`
	SMS       bool `json:"sms"`
	Marketing bool `json:"marketing"`
}

// DefaultNotificationPreferences is used for synthesized profiles
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{Email: true}
}

// Profile is the application-level user record
type Profile struct {
	ID                string                  `json:"id"`
	Email             string                  `json:"email"`
	FullName          *string                 `json:"full_name"`
	AvatarURL         *string                 `json:"avatar_url"`
	Role              Role                    `json:"role"`
	IsActive          bool                    `json:"is_active"`
	EmailVerified     bool                    `json:"email_verified"`
	NotificationPrefs NotificationPreferences `json:"notification_preferences"`
	Metadata          map[string]interface{}  `json:"metadata,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
	Source            ProfileSource           `json:"source"`
}

// IsAdmin reports whether the profile may access admin-only surfaces.
// Synthesized profiles never qualify.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Source == ProfileSourcePersisted && p.Role == RoleAdmin
}
