package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	DatabaseURL string
	RedisURL    string

	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string

	// UpstreamURL is the application server pages are proxied to after the gate
	UpstreamURL string
	// SiteURL is the public origin used to build OAuth callback URLs
	SiteURL string

	LoginPath         string
	DefaultAuthedPath string
	HomePath          string
	RoutesFile        string

	DefaultCountry string
	GeoHeaders     []string

	SessionRefreshTimeout time.Duration
	ProfileLookupTimeout  time.Duration
	ProfileCacheTTL       time.Duration

	// CookieSecure marks gate and session cookies Secure; off only in local development
	CookieSecure bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", "production")

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigins:        parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		Environment:           environment,
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		SupabaseURL:           strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:       getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseJWTSecret:     getEnv("SUPABASE_JWT_SECRET", ""),
		UpstreamURL:           getEnv("UPSTREAM_URL", ""),
		SiteURL:               strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
		LoginPath:             getEnv("LOGIN_PATH", "/login"),
		DefaultAuthedPath:     getEnv("DEFAULT_AUTHED_PATH", "/dashboard"),
		HomePath:              getEnv("HOME_PATH", "/"),
		RoutesFile:            getEnv("ROUTES_FILE", ""),
		DefaultCountry:        getEnv("DEFAULT_COUNTRY", "US"),
		GeoHeaders:            parseList(getEnv("GEO_HEADERS", "x-vercel-ip-country,cf-ipcountry,x-country-code")),
		SessionRefreshTimeout: getDurationEnv("SESSION_REFRESH_TIMEOUT", 5*time.Second),
		ProfileLookupTimeout:  getDurationEnv("PROFILE_LOOKUP_TIMEOUT", 3*time.Second),
		ProfileCacheTTL:       getDurationEnv("PROFILE_CACHE_TTL", 5*time.Minute),
		CookieSecure:          getBoolEnv("COOKIE_SECURE", !isDevelopment(environment)),
	}, nil
}

// IsDevelopment reports whether the process runs in local development
func (c *Config) IsDevelopment() bool {
	return isDevelopment(c.Environment)
}

func isDevelopment(environment string) bool {
	return environment == "development" || environment == "local"
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseList parses a comma-separated value into a slice
func parseList(value string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable ("5s", "250ms") with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
