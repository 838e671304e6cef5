package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Postgres driver.
	_ "github.com/lib/pq"
)

// DB wraps the sql database handle used by all repositories.
type DB struct {
	*sql.DB
}

// New opens a connection pool to the configured Postgres database and
// verifies connectivity.
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}
