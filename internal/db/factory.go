package db

import (
	"context"
	"fmt"

	"github.com/folio/folio-backend/internal/db/backends/memory"
	"github.com/folio/folio-backend/internal/db/backends/postgres"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

// Config holds database configuration
type Config struct {
	Type     string // "memory", "postgres"
	DSN      string // Data Source Name / Connection String
	MaxConns int32  // Pool size for SQL backends; 0 keeps the driver default
}

// NewDatabase creates a new database instance based on configuration
func NewDatabase(config *Config) (interfaces.Database, error) {
	if config == nil {
		config = &Config{Type: "memory"}
	}

	switch config.Type {
	case "", "memory":
		return memory.NewDatabase(), nil
	case "postgres":
		if config.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return postgres.NewDatabase(config.DSN, config.MaxConns), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// NewInMemoryDatabase creates a new in-memory database instance
func NewInMemoryDatabase() interfaces.Database {
	return memory.NewDatabase()
}

// ConnectAndMigrate connects to the database and runs migrations
func ConnectAndMigrate(ctx context.Context, db interfaces.Database) error {
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if !db.IsHealthy(ctx) {
		return fmt.Errorf("database health check failed")
	}

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}
