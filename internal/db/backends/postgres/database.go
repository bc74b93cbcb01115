// Package postgres is the PostgreSQL storage backend, built on pgx/v5 with
// goose-managed migrations embedded in the binary.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/folio/folio-backend/internal/db/interfaces"
)

//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS holding goose files.
const MigrationsDir = "migrations"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Database struct {
	dsn       string
	maxConns  int32
	pool      *pgxpool.Pool
	poolMu    sync.RWMutex
	posts     *postRepository
	revisions *revisionRepository
	history   *historyRepository
}

func NewDatabase(dsn string, maxConns int32) *Database {
	return &Database{dsn: dsn, maxConns: maxConns}
}

func (d *Database) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(d.dsn)
	if err != nil {
		return &interfaces.DatabaseError{Op: "parse dsn", Err: err}
	}
	if d.maxConns > 0 {
		cfg.MaxConns = d.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return &interfaces.DatabaseError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return &interfaces.DatabaseError{Op: "ping", Err: err}
	}

	d.poolMu.Lock()
	d.pool = pool
	d.posts = &postRepository{conn: pool}
	d.revisions = &revisionRepository{conn: pool}
	d.history = &historyRepository{conn: pool}
	d.poolMu.Unlock()
	return nil
}

func (d *Database) Disconnect(ctx context.Context) error {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()

	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
	return nil
}

func (d *Database) IsHealthy(ctx context.Context) bool {
	d.poolMu.RLock()
	pool := d.pool
	d.poolMu.RUnlock()

	return pool != nil && pool.Ping(ctx) == nil
}

// Migrate applies every pending embedded goose migration.
func (d *Database) Migrate(ctx context.Context) error {
	d.poolMu.RLock()
	pool := d.pool
	d.poolMu.RUnlock()
	if pool == nil {
		return interfaces.ErrDatabaseNotConnected
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(MigrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, MigrationsDir); err != nil {
		return &interfaces.DatabaseError{Op: "migrate", Err: err}
	}
	return nil
}

func (d *Database) Posts() interfaces.PostRepository         { return d.posts }
func (d *Database) Revisions() interfaces.RevisionRepository { return d.revisions }
func (d *Database) History() interfaces.HistoryRepository    { return d.history }

func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	d.poolMu.RLock()
	pool := d.pool
	d.poolMu.RUnlock()
	if pool == nil {
		return interfaces.ErrDatabaseNotConnected
	}

	pgTx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &interfaces.DatabaseError{Op: "begin", Err: err}
	}

	tx := &Transaction{
		tx:        pgTx,
		posts:     &postRepository{conn: pgTx},
		revisions: &revisionRepository{conn: pgTx},
		history:   &historyRepository{conn: pgTx},
	}
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

type Transaction struct {
	tx        pgx.Tx
	mu        sync.Mutex
	done      bool
	posts     *postRepository
	revisions *revisionRepository
	history   *historyRepository
}

func (t *Transaction) Posts() interfaces.PostRepository         { return t.posts }
func (t *Transaction) Revisions() interfaces.RevisionRepository { return t.revisions }
func (t *Transaction) History() interfaces.HistoryRepository    { return t.history }

func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return interfaces.ErrTransactionCompleted
	}
	t.done = true
	return translate("commit", t.tx.Commit(ctx))
}

func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return interfaces.ErrTransactionCompleted
	}
	t.done = true
	return translate("rollback", t.tx.Rollback(ctx))
}

func (t *Transaction) IsCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

const uniqueViolation = "23505"

// translate maps driver errors onto the storage sentinels.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return interfaces.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &interfaces.DatabaseError{
			Op:  op,
			Err: fmt.Errorf("%w: %s", interfaces.ErrUniqueConstraint, pgErr.ConstraintName),
		}
	}
	return &interfaces.DatabaseError{Op: op, Err: err}
}

// Reset truncates every table. Used by integration tests.
func (d *Database) Reset(ctx context.Context) error {
	d.poolMu.RLock()
	pool := d.pool
	d.poolMu.RUnlock()
	if pool == nil {
		return interfaces.ErrDatabaseNotConnected
	}
	_, err := pool.Exec(ctx, `TRUNCATE reading_history, post_revisions, posts`)
	return translate("reset", err)
}
