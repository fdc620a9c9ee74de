package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sessiongate/internal/domain"
	"sessiongate/pkg/redis"
)

// CacheService caches persisted profiles in Redis with a cache-aside pattern
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = redis.TTLProfile
	}
	return &CacheService{
		redis:  redisClient,
		logger: logger,
		ttl:    ttl,
	}
}

// GetProfileWithCache returns the cached profile for userID or loads it through
// dbFallback. Misses (nil profiles) are never cached.
func (c *CacheService) GetProfileWithCache(ctx context.Context, userID string, dbFallback func(ctx context.Context, id string) (*domain.Profile, error)) (*domain.Profile, error) {
	cacheKey := c.redis.KeyBuilder.KeyProfile(userID)

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var profile domain.Profile
		if unmarshalErr := json.Unmarshal([]byte(cachedData), &profile); unmarshalErr == nil {
			c.logger.Debug("Profile cache hit", zap.String("user_id", userID))
			return &profile, nil
		} else {
			c.logger.Warn("Profile cache corrupted, falling back to database",
				zap.String("user_id", userID),
				zap.Error(unmarshalErr))
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("Profile cache error, falling back to database",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	c.logger.Debug("Profile cache miss", zap.String("user_id", userID))
	profile, err := dbFallback(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("database fallback failed: %w", err)
	}

	if profile != nil {
		go c.cacheProfileAsync(userID, profile)
	}

	return profile, nil
}

// InvalidateProfile removes the cached profile of userID
func (c *CacheService) InvalidateProfile(ctx context.Context, userID string) error {
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyProfile(userID)); err != nil {
		c.logger.Error("Failed to invalidate profile cache",
			zap.String("user_id", userID),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Profile cache invalidated", zap.String("user_id", userID))
	return nil
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

// cacheProfileAsync caches a profile outside the request path
func (c *CacheService) cacheProfileAsync(userID string, profile *domain.Profile) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(profile)
	if err != nil {
		c.logger.Error("Failed to marshal profile for caching",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyProfile(userID), string(data), c.ttl); err != nil {
		c.logger.Error("Failed to cache profile",
			zap.String("user_id", userID),
			zap.Error(err))
	} else {
		c.logger.Debug("Profile cached successfully", zap.String("user_id", userID))
	}
}
