package interfaces

import "context"

// Database represents the main database interface
type Database interface {
	Store

	// Connect establishes a connection to the database
	Connect(ctx context.Context) error

	// Disconnect closes the database connection
	Disconnect(ctx context.Context) error

	// IsHealthy checks if the database connection is healthy
	IsHealthy(ctx context.Context) bool

	// Transaction runs fn with repositories bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	// Migrate creates tables and applies schema changes
	Migrate(ctx context.Context) error
}

// Store groups the repositories. Both Database and Transaction provide one.
type Store interface {
	Posts() PostRepository
	Revisions() RevisionRepository
	History() HistoryRepository
}
