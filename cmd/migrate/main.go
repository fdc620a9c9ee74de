package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"sessiongate/internal/domain"
	"sessiongate/internal/repository"
	"sessiongate/pkg/database"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|seed]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch command {
	case "drop":
		if err := dropTables(ctx, db.Pool); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, db.Pool); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, repository.NewProfileRepository(db)); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`DROP TRIGGER IF EXISTS profiles_set_updated_at ON profiles`,
		`DROP FUNCTION IF EXISTS profiles_touch_updated_at()`,
		`DROP TABLE IF EXISTS profiles CASCADE`,
	}

	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			full_name TEXT,
			avatar_url TEXT,
			role TEXT NOT NULL DEFAULT 'USER' CHECK (role IN ('USER', 'ADMIN')),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			notification_preferences JSONB NOT NULL DEFAULT '{"email": true, "sms": false, "marketing": false}'::jsonb,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles (lower(email))`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles (role) WHERE role = 'ADMIN'`,
		`CREATE OR REPLACE FUNCTION profiles_touch_updated_at() RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS profiles_set_updated_at ON profiles`,
		`CREATE TRIGGER profiles_set_updated_at
			BEFORE UPDATE ON profiles
			FOR EACH ROW EXECUTE FUNCTION profiles_touch_updated_at()`,
	}

	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Executed: %s\n", firstLine(query))
	}

	return nil
}

// seedData upserts the administrator named by SEED_ADMIN_ID and SEED_ADMIN_EMAIL
func seedData(ctx context.Context, profiles repository.ProfileRepository) error {
	id := os.Getenv("SEED_ADMIN_ID")
	email := os.Getenv("SEED_ADMIN_EMAIL")
	if id == "" || email == "" {
		return fmt.Errorf("SEED_ADMIN_ID and SEED_ADMIN_EMAIL must be set")
	}

	var fullName *string
	if name := os.Getenv("SEED_ADMIN_NAME"); name != "" {
		fullName = &name
	}

	admin := &domain.Profile{
		ID:                id,
		Email:             email,
		FullName:          fullName,
		Role:              domain.RoleAdmin,
		IsActive:          true,
		EmailVerified:     true,
		NotificationPrefs: domain.DefaultNotificationPreferences(),
		Metadata:          map[string]interface{}{"seeded": true},
	}

	if err := profiles.Upsert(ctx, admin); err != nil {
		return err
	}
	fmt.Printf("  Seeded admin profile %s (%s)\n", id, email)
	return nil
}

func firstLine(query string) string {
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		return query[:i]
	}
	return query
}
