package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"sessiongate/internal/domain"
	"sessiongate/pkg/logger"
)

// DefaultProfileLookupTimeout bounds a store lookup before the synthesized profile is used
const DefaultProfileLookupTimeout = 3 * time.Second

// ProfileStore is the durable keyed profile lookup
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
}

// ProfileService resolves display profiles, falling back to one synthesized from the
// identity when the store has no row or cannot answer in time.
type ProfileService struct {
	store   ProfileStore
	cache   *CacheService
	timeout time.Duration
	logger  *logger.Logger
}

// NewProfileService creates a profile service. cache may be nil.
func NewProfileService(store ProfileStore, cache *CacheService, timeout time.Duration, logger *logger.Logger) *ProfileService {
	if timeout <= 0 {
		timeout = DefaultProfileLookupTimeout
	}
	return &ProfileService{
		store:   store,
		cache:   cache,
		timeout: timeout,
		logger:  logger,
	}
}

type lookupResult struct {
	profile *domain.Profile
	err     error
}

// ResolveProfile never fails: any lookup problem yields the synthesized profile
func (s *ProfileService) ResolveProfile(ctx context.Context, identity *domain.Identity) *domain.Profile {
	if identity == nil || identity.ID == "" {
		return nil
	}

	profile, err := s.lookup(ctx, identity.ID)
	switch {
	case err != nil:
		s.logger.WithError(err).WithField("user_id", identity.ID).Warn("Profile lookup failed, using synthesized profile")
	case profile == nil:
		s.logger.WithField("user_id", identity.ID).Debug("No stored profile, using synthesized profile")
	default:
		return profile
	}

	return SynthesizeProfile(identity)
}

// InvalidateProfile drops any cached copy so the next resolve reads the store
func (s *ProfileService) InvalidateProfile(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProfile(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate cached profile")
	}
}

func (s *ProfileService) lookup(ctx context.Context, userID string) (*domain.Profile, error) {
	if s.store == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		var res lookupResult
		if s.cache != nil {
			res.profile, res.err = s.cache.GetProfileWithCache(ctx, userID, s.store.GetByID)
		} else {
			res.profile, res.err = s.store.GetByID(ctx, userID)
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.profile, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.New("profile lookup timed out")
		}
		return nil, ctx.Err()
	}
}

// SynthesizeProfile derives a profile from identity-provider data alone. The role is
// always USER.
func SynthesizeProfile(identity *domain.Identity) *domain.Profile {
	meta := identity.UserMetadata

	var fullName *string
	if name := firstString(meta, "full_name", "name"); name != "" {
		fullName = &name
	} else if local := emailLocalPart(identity.Email); local != "" {
		fullName = &local
	}

	var avatarURL *string
	if avatar := firstString(meta, "avatar_url", "picture"); avatar != "" {
		avatarURL = &avatar
	}

	var metadata map[string]interface{}
	if len(meta) > 0 {
		metadata = make(map[string]interface{}, len(meta))
		for k, v := range meta {
			metadata[k] = v
		}
	}

	return &domain.Profile{
		ID:                identity.ID,
		Email:             identity.Email,
		FullName:          fullName,
		AvatarURL:         avatarURL,
		Role:              domain.RoleUser,
		IsActive:          true,
		EmailVerified:     identity.EmailConfirmedAt != nil,
		NotificationPrefs: domain.DefaultNotificationPreferences(),
		Metadata:          metadata,
		CreatedAt:         identity.CreatedAt,
		UpdatedAt:         identity.UpdatedAt,
		Source:            domain.ProfileSourceSynthesized,
	}
}

// firstString returns the first non-empty string value among keys
func firstString(meta map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emailLocalPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at]
}
