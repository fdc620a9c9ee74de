package container

import (
	"context"
	"fmt"

	"sessiongate/internal/authclient"
	"sessiongate/internal/authstate"
	"sessiongate/internal/config"
	"sessiongate/internal/events"
	"sessiongate/internal/middleware"
	"sessiongate/internal/repository"
	"sessiongate/internal/routing"
	"sessiongate/internal/service"
	"sessiongate/internal/service/auth"
	"sessiongate/pkg/database"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *database.PostgresDB
	RedisClient  *redis.Client
	Classifier   *routing.Classifier
	Repositories *repository.Repositories
	Services     *service.Services
	Sessions     *auth.SessionService
}

// New creates a new dependency injection container. Postgres and Redis are optional:
// without them profiles are synthesized and never cached.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	var table *routing.Table
	if cfg.RoutesFile != "" {
		loaded, err := routing.LoadTable(cfg.RoutesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load route table: %w", err)
		}
		table = loaded
		logger.WithField("file", cfg.RoutesFile).Info("Route table loaded")
	}

	// Initialize database if configured
	var db *database.PostgresDB
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to database, profiles will be synthesized")
		} else {
			db = pool
			logger.Info("Database connection established")
		}
	} else {
		logger.Info("Database URL not configured, profiles will be synthesized")
	}

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	repos := &repository.Repositories{}
	var store service.ProfileStore
	if db != nil {
		repos.Profile = repository.NewProfileRepository(db)
		store = repos.Profile
	}

	var cache *service.CacheService
	if redisClient != nil {
		cache = service.NewCacheService(redisClient, logger.Logger, cfg.ProfileCacheTTL)
	}

	supabase := service.NewSupabaseClient(cfg, logger)
	profiles := service.NewProfileService(store, cache, cfg.ProfileLookupTimeout, logger)

	sessions := auth.NewSessionService(supabase, cfg.SupabaseJWTSecret, auth.CookieOptions{
		Secure: cfg.CookieSecure,
	}, logger)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisClient:  redisClient,
		Classifier:   routing.NewClassifier(table),
		Repositories: repos,
		Services: &service.Services{
			Identity: supabase,
			Profiles: profiles,
		},
		Sessions: sessions,
	}, nil
}

// NewGate builds the request gate over the container's services
func (c *Container) NewGate() *middleware.Gate {
	return middleware.NewGate(c.Classifier, c.Sessions, c.Services.Profiles, middleware.NewGateConfig(c.Config), c.Logger)
}

// NewAuthMachine builds a client-side auth state machine with its own session client
func (c *Container) NewAuthMachine(navigator authstate.Navigator) (*authstate.Machine, *authclient.Client) {
	client := authclient.New(c.Services.Identity, events.NewHub(), c.Logger)
	machine := authstate.New(client, c.Services.Profiles, navigator, authstate.Options{
		HomePath:         c.Config.HomePath,
		OAuthRedirectURL: c.Config.SiteURL + "/auth/callback",
		SessionTimeout:   c.Config.SessionRefreshTimeout,
	}, c.Logger)
	return machine, client
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// HasDatabase returns true if the profile store is available
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// Close releases the database pool and Redis connection
func (c *Container) Close() error {
	var firstErr error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			firstErr = fmt.Errorf("redis close: %w", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	return firstErr
}
