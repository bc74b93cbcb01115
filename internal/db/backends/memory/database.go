package memory

import (
	"context"
	"sync"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

// tables is the full in-memory state. It is cloned wholesale for
// transaction snapshots.
type tables struct {
	posts     map[string]*entities.Post
	revisions map[string]*entities.PostRevision
	history   []*entities.ReadingHistoryEntry
}

func newTables() tables {
	return tables{
		posts:     make(map[string]*entities.Post),
		revisions: make(map[string]*entities.PostRevision),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for id, p := range t.posts {
		c.posts[id] = p.Clone()
	}
	for id, r := range t.revisions {
		c.revisions[id] = r.Clone()
	}
	c.history = make([]*entities.ReadingHistoryEntry, len(t.history))
	for i, h := range t.history {
		entry := *h
		c.history[i] = &entry
	}
	return c
}

// Database implements the Database interface for in-memory storage.
//
// Writers and transactions are serialised on writeMu, which gives
// transactions serialisable isolation and keeps a rollback from discarding
// writes made outside the transaction. Reads only take mu.
type Database struct {
	writeMu   sync.Mutex
	mu        sync.RWMutex
	tables    tables
	connected bool

	posts     *postRepository
	revisions *revisionRepository
	history   *historyRepository
}

// NewDatabase creates a new in-memory database
func NewDatabase() *Database {
	db := &Database{tables: newTables()}
	db.posts = &postRepository{db: db}
	db.revisions = &revisionRepository{db: db}
	db.history = &historyRepository{db: db}
	return db
}

// Connect establishes a connection to the database
func (db *Database) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.connected = true
	return nil
}

// Disconnect drops all data.
func (db *Database) Disconnect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.connected = false
	db.tables = newTables()
	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *Database) IsHealthy(ctx context.Context) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.connected
}

// Migrate is a no-op beyond the connection check; tables exist from creation.
func (db *Database) Migrate(ctx context.Context) error {
	if !db.IsHealthy(ctx) {
		return interfaces.ErrDatabaseNotConnected
	}
	return nil
}

func (db *Database) Posts() interfaces.PostRepository         { return db.posts }
func (db *Database) Revisions() interfaces.RevisionRepository { return db.revisions }
func (db *Database) History() interfaces.HistoryRepository    { return db.history }

// Transaction executes a function within a database transaction
func (db *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	if !db.IsHealthy(ctx) {
		return interfaces.ErrDatabaseNotConnected
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx := newTransaction(db)

	defer func() {
		if !tx.IsCompleted() {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

func (db *Database) read(fn func(t *tables) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.connected {
		return interfaces.ErrDatabaseNotConnected
	}
	return fn(&db.tables)
}

// write applies fn under the write lock. Inside a transaction the caller
// already holds writeMu.
func (db *Database) write(inTx bool, fn func(t *tables) error) error {
	if !inTx {
		db.writeMu.Lock()
		defer db.writeMu.Unlock()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.connected {
		return interfaces.ErrDatabaseNotConnected
	}
	return fn(&db.tables)
}

// Clear removes all data from all tables (for testing)
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.tables = newTables()
}
