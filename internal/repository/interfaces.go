package repository

import (
	"context"

	"sessiongate/internal/domain"
)

// ProfileRepository defines the interface for profile data operations
type ProfileRepository interface {
	// GetByID retrieves a profile by identity id; (nil, nil) when no row exists
	GetByID(ctx context.Context, id string) (*domain.Profile, error)

	// Upsert creates or replaces a profile row
	Upsert(ctx context.Context, profile *domain.Profile) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Profile ProfileRepository
}
