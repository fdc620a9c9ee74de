package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sessiongate/internal/domain"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/redis"
)

type fakeProfileStore struct {
	profile *domain.Profile
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeProfileStore) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.profile == nil || f.profile.ID != id {
		return nil, nil
	}
	copied := *f.profile
	return &copied, nil
}

func strPtr(s string) *string { return &s }

func storedProfile() *domain.Profile {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	return &domain.Profile{
		ID:                "user-1",
		Email:             "ann@example.com",
		FullName:          strPtr("Ann Stored"),
		Role:              domain.RoleAdmin,
		IsActive:          true,
		EmailVerified:     true,
		NotificationPrefs: domain.NotificationPreferences{Email: true, Marketing: true},
		Metadata:          map[string]interface{}{"plan": "pro"},
		CreatedAt:         ts,
		UpdatedAt:         ts,
		Source:            domain.ProfileSourcePersisted,
	}
}

func TestProfileService_ReturnsStoredProfileVerbatim(t *testing.T) {
	store := &fakeProfileStore{profile: storedProfile()}
	svc := NewProfileService(store, nil, time.Second, logger.NewNop())

	identity := &domain.Identity{ID: "user-1", Email: "ann@example.com",
		UserMetadata: map[string]interface{}{"full_name": "Someone Else"}}

	first := svc.ResolveProfile(context.Background(), identity)
	second := svc.ResolveProfile(context.Background(), identity)

	require.NotNil(t, first)
	assert.Equal(t, storedProfile(), first)
	assert.Equal(t, first, second)
	assert.True(t, first.IsAdmin())
}

func TestProfileService_FallsBackWhenMissing(t *testing.T) {
	svc := NewProfileService(&fakeProfileStore{}, nil, time.Second, logger.NewNop())

	confirmed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	identity := &domain.Identity{
		ID:               "user-2",
		Email:            "bob@example.com",
		EmailConfirmedAt: &confirmed,
		UserMetadata:     map[string]interface{}{"name": "Bob", "picture": "https://img.example/bob.png"},
	}

	profile := svc.ResolveProfile(context.Background(), identity)
	require.NotNil(t, profile)
	assert.Equal(t, domain.ProfileSourceSynthesized, profile.Source)
	assert.Equal(t, domain.RoleUser, profile.Role)
	assert.False(t, profile.IsAdmin())
	require.NotNil(t, profile.FullName)
	assert.Equal(t, "Bob", *profile.FullName)
	require.NotNil(t, profile.AvatarURL)
	assert.Equal(t, "https://img.example/bob.png", *profile.AvatarURL)
	assert.True(t, profile.EmailVerified)
}

func TestProfileService_FallsBackOnError(t *testing.T) {
	svc := NewProfileService(&fakeProfileStore{err: errors.New("relation \"profiles\" does not exist")}, nil, time.Second, logger.NewNop())

	profile := svc.ResolveProfile(context.Background(), &domain.Identity{ID: "user-1", Email: "ann@example.com"})
	require.NotNil(t, profile)
	assert.Equal(t, domain.ProfileSourceSynthesized, profile.Source)
	assert.Equal(t, "ann", *profile.FullName)
}

func TestProfileService_FallsBackOnTimeout(t *testing.T) {
	store := &fakeProfileStore{profile: storedProfile(), delay: time.Second}
	svc := NewProfileService(store, nil, 20*time.Millisecond, logger.NewNop())

	start := time.Now()
	profile := svc.ResolveProfile(context.Background(), &domain.Identity{ID: "user-1", Email: "ann@example.com"})
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NotNil(t, profile)
	assert.Equal(t, domain.ProfileSourceSynthesized, profile.Source)
	assert.Equal(t, domain.RoleUser, profile.Role)
}

func TestProfileService_NilIdentity(t *testing.T) {
	svc := NewProfileService(&fakeProfileStore{}, nil, time.Second, logger.NewNop())
	assert.Nil(t, svc.ResolveProfile(context.Background(), nil))
}

func TestSynthesizeProfile_Precedence(t *testing.T) {
	tests := []struct {
		name     string
		identity domain.Identity
		fullName *string
		avatar   *string
	}{
		{
			name: "full_name wins over name",
			identity: domain.Identity{ID: "1", Email: "ann@example.com",
				UserMetadata: map[string]interface{}{"full_name": "Ann Lee", "name": "Ann"}},
			fullName: strPtr("Ann Lee"),
		},
		{
			name: "name wins over email local part",
			identity: domain.Identity{ID: "1", Email: "ann@example.com",
				UserMetadata: map[string]interface{}{"name": "Ann"}},
			fullName: strPtr("Ann"),
		},
		{
			name:     "email local part when no metadata",
			identity: domain.Identity{ID: "1", Email: "ann.lee@example.com"},
			fullName: strPtr("ann.lee"),
		},
		{
			name: "empty metadata strings are skipped",
			identity: domain.Identity{ID: "1", Email: "ann@example.com",
				UserMetadata: map[string]interface{}{"full_name": "", "name": "  ", "avatar_url": ""}},
			fullName: strPtr("ann"),
		},
		{
			name: "non string metadata is ignored",
			identity: domain.Identity{ID: "1", Email: "",
				UserMetadata: map[string]interface{}{"full_name": 42}},
			fullName: nil,
		},
		{
			name: "avatar_url wins over picture",
			identity: domain.Identity{ID: "1", Email: "ann@example.com",
				UserMetadata: map[string]interface{}{"avatar_url": "a.png", "picture": "p.png"}},
			fullName: strPtr("ann"),
			avatar:   strPtr("a.png"),
		},
		{
			name: "picture when no avatar_url",
			identity: domain.Identity{ID: "1", Email: "ann@example.com",
				UserMetadata: map[string]interface{}{"picture": "p.png"}},
			fullName: strPtr("ann"),
			avatar:   strPtr("p.png"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := tt.identity
			profile := SynthesizeProfile(&identity)
			assert.Equal(t, tt.fullName, profile.FullName)
			assert.Equal(t, tt.avatar, profile.AvatarURL)
			assert.Equal(t, domain.RoleUser, profile.Role)
			assert.False(t, profile.EmailVerified)
		})
	}
}

func TestSynthesizeProfile_NeverAdmin(t *testing.T) {
	profile := SynthesizeProfile(&domain.Identity{
		ID:          "1",
		AppMetadata: map[string]interface{}{"role": "ADMIN"},
		UserMetadata: map[string]interface{}{
			"role": "ADMIN",
		},
	})
	assert.Equal(t, domain.RoleUser, profile.Role)
	assert.False(t, profile.IsAdmin())
}

func TestProfileService_WithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	store := &fakeProfileStore{profile: storedProfile()}
	cache := NewCacheService(redisClient, zap.NewNop(), time.Minute)
	svc := NewProfileService(store, cache, time.Second, logger.NewNop())
	identity := &domain.Identity{ID: "user-1", Email: "ann@example.com"}

	first := svc.ResolveProfile(context.Background(), identity)
	require.NotNil(t, first)

	key := redisClient.KeyBuilder.KeyProfile("user-1")
	require.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

	second := svc.ResolveProfile(context.Background(), identity)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), store.calls.Load())

	svc.InvalidateProfile(context.Background(), "user-1")
	assert.False(t, mr.Exists(key))

	svc.ResolveProfile(context.Background(), identity)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestCacheService_DoesNotCacheMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	cache := NewCacheService(redisClient, zap.NewNop(), 0)
	profile, err := cache.GetProfileWithCache(context.Background(), "nobody", (&fakeProfileStore{}).GetByID)
	require.NoError(t, err)
	assert.Nil(t, profile)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, mr.Keys())
}

func TestCacheService_CorruptEntryFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	require.NoError(t, mr.Set(redisClient.KeyBuilder.KeyProfile("user-1"), "{not json"))

	cache := NewCacheService(redisClient, zap.NewNop(), time.Minute)
	store := &fakeProfileStore{profile: storedProfile()}
	profile, err := cache.GetProfileWithCache(context.Background(), "user-1", store.GetByID)
	require.NoError(t, err)
	assert.Equal(t, storedProfile(), profile)

	assert.NoError(t, cache.HealthCheck(context.Background()))
}
