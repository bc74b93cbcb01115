package memory

import (
	"context"
	"sync"

	"github.com/folio/folio-backend/internal/db/interfaces"
)

// Transaction represents an in-memory transaction. Its repositories write
// straight to the live tables; Rollback restores the snapshot taken at
// the start.
type Transaction struct {
	mu         sync.RWMutex
	db         *Database
	snapshot   tables
	committed  bool
	rolledBack bool

	posts     *postRepository
	revisions *revisionRepository
	history   *historyRepository
}

func newTransaction(db *Database) *Transaction {
	db.mu.RLock()
	snapshot := db.tables.clone()
	db.mu.RUnlock()

	return &Transaction{
		db:        db,
		snapshot:  snapshot,
		posts:     &postRepository{db: db, inTx: true},
		revisions: &revisionRepository{db: db, inTx: true},
		history:   &historyRepository{db: db, inTx: true},
	}
}

func (tx *Transaction) Posts() interfaces.PostRepository         { return tx.posts }
func (tx *Transaction) Revisions() interfaces.RevisionRepository { return tx.revisions }
func (tx *Transaction) History() interfaces.HistoryRepository    { return tx.history }

// Commit commits the transaction
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return interfaces.ErrTransactionCompleted
	}

	tx.committed = true
	return nil
}

// Rollback rolls back the transaction
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return interfaces.ErrTransactionCompleted
	}

	tx.db.mu.Lock()
	tx.db.tables = tx.snapshot
	tx.db.mu.Unlock()

	tx.rolledBack = true
	return nil
}

// IsCompleted returns true if the transaction has been committed or rolled back
func (tx *Transaction) IsCompleted() bool {
	tx.mu.RLock()
	defer tx.mu.RUnlock()

	return tx.committed || tx.rolledBack
}
