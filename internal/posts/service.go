// Package posts is the publication engine's entry point. It composes the
// lifecycle rules, the access gate, the revision ledger and the cache
// behind the operations an application calls.
package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/access"
	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/cache"
	"github.com/folio/folio-backend/internal/db/interfaces"
	"github.com/folio/folio-backend/internal/metrics"
	"github.com/folio/folio-backend/internal/revisions"
)

type Options struct {
	DefaultLimit int
	MaxLimit     int
	CacheTTL     time.Duration
	ListCacheTTL time.Duration
	Now          func() time.Time
}

type Service struct {
	db     interfaces.Database
	cache  *cache.Cache
	gate   *access.Gate
	ledger *revisions.Ledger
	opts   Options

	// One mutex per post id serialises writes to the same post.
	locks *xsync.MapOf[string, *sync.Mutex]

	// Fire-and-forget work started by reads.
	background sync.WaitGroup

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewService(db interfaces.Database, c *cache.Cache, gate *access.Gate, ledger *revisions.Ledger, opts Options, logger *zap.SugaredLogger, m *metrics.Metrics) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		db:      db,
		cache:   c,
		gate:    gate,
		ledger:  ledger,
		opts:    opts,
		locks:   xsync.NewMapOf[string, *sync.Mutex](),
		logger:  logger,
		metrics: m,
	}
}

// Wait blocks until background view and history writes have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// lock takes the write lock of every id, in sorted order so that callers
// locking overlapping sets cannot deadlock.
func (s *Service) lock(ids ...string) (unlock func()) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		mu, _ := s.locks.LoadOrCompute(id, func() *sync.Mutex { return &sync.Mutex{} })
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// invalidate drops every cache entry that can hold the post. Old and new
// slugs are both passed on rename.
func (s *Service) invalidate(ctx context.Context, id string, slugs ...string) {
	if err := s.cache.InvalidateByTags(ctx, cache.PostTags(id, slugs...)...); err != nil {
		s.logger.Warnw("Cache invalidation failed", "post_id", id, "error", err)
	}
}

// storeErr turns storage errors into engine errors for op.
func storeErr(op string, err error, format string, args ...any) error {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return apperr.Wrap(op, apperr.ErrNotFound, err, fmt.Sprintf(format, args...))
	case errors.Is(err, interfaces.ErrUniqueConstraint):
		return apperr.Wrap(op, apperr.ErrConflict, err, "slug is already in use")
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
