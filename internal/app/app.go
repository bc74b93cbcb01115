// Package app assembles the engine from configuration. The server and the
// admin CLI share it so both see the same stores and caches.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/access"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/config"
	gdb "github.com/folio/folio-backend/internal/db"
	"github.com/folio/folio-backend/internal/db/interfaces"
	"github.com/folio/folio-backend/internal/jobs"
	"github.com/folio/folio-backend/internal/log"
	"github.com/folio/folio-backend/internal/metrics"
	"github.com/folio/folio-backend/internal/notify"
	"github.com/folio/folio-backend/internal/posts"
	"github.com/folio/folio-backend/internal/revisions"
	"github.com/folio/folio-backend/internal/subscription"
	"github.com/folio/folio-backend/pkg/kv"

	_ "github.com/folio/folio-backend/pkg/kv/memory"
	_ "github.com/folio/folio-backend/pkg/kv/redis"
)

type App struct {
	Config        *config.Config
	DB            interfaces.Database
	Cache         *cache.Cache
	Subscriptions *subscription.Directory
	Ledger        *revisions.Ledger
	Posts         *posts.Service
	Dispatcher    *notify.Dispatcher
	Scheduler     *jobs.PublicationScheduler

	logger *zap.SugaredLogger
}

// New connects the store and cache and builds the services on top. The
// caller owns the result and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics) (*App, error) {
	db, err := gdb.NewDatabase(&gdb.Config{Type: cfg.Database.Type, DSN: cfg.Database.PostgresDSN})
	if err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	if err := gdb.ConnectAndMigrate(ctx, db); err != nil {
		return nil, err
	}
	logger.Infow("Database initialized", "type", cfg.Database.Type)

	store, err := kv.NewStoreFromConfig(kv.Config{
		Backend:          kv.Backend(cfg.Cache.Backend),
		RedisURL:         cfg.Cache.RedisURL,
		FallbackToMemory: cfg.IsDev(),
		Logger:           log.Named(logger, "kv").Infow,
	})
	if err != nil {
		_ = db.Disconnect(ctx)
		return nil, fmt.Errorf("create cache store: %w", err)
	}
	c := cache.New(store, cfg.Cache.TTL, log.Named(logger, "cache"), m)

	subs := subscription.NewDirectory()
	gate := access.NewGate(subs, log.Named(logger, "access"), m)
	ledger := revisions.NewLedger(db, c, revisions.Options{
		MaxAttempts: cfg.Revisions.MaxAttempts,
		CacheTTL:    cfg.Cache.TTL,
	}, log.Named(logger, "revisions"), m)

	svc := posts.NewService(db, c, gate, ledger, posts.Options{
		DefaultLimit: cfg.Paging.DefaultLimit,
		MaxLimit:     cfg.Paging.MaxLimit,
		CacheTTL:     cfg.Cache.TTL,
		ListCacheTTL: cfg.Cache.ListTTL,
	}, log.Named(logger, "posts"), m)

	dispatcher := notify.NewDispatcher(subs, notify.NewLogNotifier(log.Named(logger, "mailer")), notify.Config{
		QueueSize:      cfg.Notify.QueueSize,
		BatchSize:      cfg.Notify.BatchSize,
		BatchesPerSec:  cfg.Notify.BatchesPerSec,
		MaxConcurrency: cfg.Notify.MaxConcurrency,
	}, log.Named(logger, "notify"), m)

	scheduler := jobs.NewPublicationScheduler(svc, dispatcher, log.Named(logger, "scheduler"), m,
		jobs.PublicationSchedulerConfig{Interval: cfg.Scheduler.Interval})

	return &App{
		Config:        cfg,
		DB:            db,
		Cache:         c,
		Subscriptions: subs,
		Ledger:        ledger,
		Posts:         svc,
		Dispatcher:    dispatcher,
		Scheduler:     scheduler,
		logger:        logger,
	}, nil
}

// Close waits for background reads to finish, then releases the cache and
// the database.
func (a *App) Close(ctx context.Context) {
	a.Posts.Wait()
	if err := a.Cache.Close(); err != nil {
		a.logger.Warnw("Failed to close cache", "error", err)
	}
	if err := a.DB.Disconnect(ctx); err != nil {
		a.logger.Warnw("Failed to disconnect database", "error", err)
	}
}
