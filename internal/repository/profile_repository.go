package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sessiongate/internal/domain"
	"sessiongate/pkg/database"
)

// querier is the subset of pgxpool.Pool the repository uses
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// profileRepository reads and writes the profiles table with PostgreSQL
type profileRepository struct {
	db querier
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *database.PostgresDB) ProfileRepository {
	return &profileRepository{
		db: db.Pool,
	}
}

const selectProfileByID = `
	SELECT id, email, full_name, avatar_url, role, is_active, email_verified,
		   notification_preferences, metadata, created_at, updated_at
	FROM profiles
	WHERE id = $1
`

// GetByID retrieves a profile by identity id
func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var (
		profile   domain.Profile
		role      string
		prefsJSON []byte
		metaJSON  []byte
	)

	err := r.db.QueryRow(ctx, selectProfileByID, id).Scan(
		&profile.ID,
		&profile.Email,
		&profile.FullName,
		&profile.AvatarURL,
		&role,
		&profile.IsActive,
		&profile.EmailVerified,
		&prefsJSON,
		&metaJSON,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Role = parseRole(role)
	profile.Source = domain.ProfileSourcePersisted
	// pgx scans timestamptz in time.Local; cached copies decode as UTC
	profile.CreatedAt = profile.CreatedAt.UTC()
	profile.UpdatedAt = profile.UpdatedAt.UTC()

	profile.NotificationPrefs = domain.DefaultNotificationPreferences()
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &profile.NotificationPrefs); err != nil {
			return nil, fmt.Errorf("failed to decode notification preferences: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &profile.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode profile metadata: %w", err)
		}
	}

	return &profile, nil
}

// Upsert creates or replaces a profile row
func (r *profileRepository) Upsert(ctx context.Context, profile *domain.Profile) error {
	prefsJSON, err := json.Marshal(profile.NotificationPrefs)
	if err != nil {
		return fmt.Errorf("failed to encode notification preferences: %w", err)
	}
	metaJSON, err := json.Marshal(profile.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode profile metadata: %w", err)
	}

	now := time.Now().UTC()
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO profiles (id, email, full_name, avatar_url, role, is_active, email_verified,
							  notification_preferences, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			email_verified = EXCLUDED.email_verified,
			notification_preferences = EXCLUDED.notification_preferences,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Exec(ctx, query,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		string(parseRole(string(profile.Role))),
		profile.IsActive,
		profile.EmailVerified,
		prefsJSON,
		metaJSON,
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// parseRole maps stored role text onto the known roles; anything unknown is USER
func parseRole(role string) domain.Role {
	if domain.Role(role) == domain.RoleAdmin {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}
