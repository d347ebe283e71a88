package db

import (
	"context"
	"errors"
	"os"

	"github.com/jmoiron/sqlx"
)

// ErrNoTestDatabase is returned when TEST_DATABASE_URL is not set.
var ErrNoTestDatabase = errors.New("TEST_DATABASE_URL environment variable is not set")

// InitTestDB connects to TEST_DATABASE_URL and applies the migrations.
func InitTestDB(ctx context.Context, migrationsPath string) (*sqlx.DB, error) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		return nil, ErrNoTestDatabase
	}

	conn, err := Connect(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, conn, migrationsPath); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
