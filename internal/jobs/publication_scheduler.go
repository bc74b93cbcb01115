package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/apperr"
	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/metrics"
)

// Promoter is the write path the scheduler re-enters for due posts.
type Promoter interface {
	DueScheduled(ctx context.Context, now time.Time) ([]*entities.Post, error)

	// Promote publishes a due post. It returns an apperr.ErrNotFound error
	// when the post is no longer eligible.
	Promote(ctx context.Context, id string, now time.Time) (*entities.Post, error)
}

// Enqueuer accepts best-effort new-post notifications.
type Enqueuer interface {
	Enqueue(post *entities.Post) bool
}

type PublicationSchedulerConfig struct {
	Interval time.Duration // Time between sweeps
	Now      func() time.Time
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Due      int
	Promoted int
	Skipped  int // no longer eligible when promoted
	Failed   int
}

// PublicationScheduler periodically promotes scheduled posts whose time has
// come. At most one sweep runs at a time; a tick that fires while a sweep
// is still running is dropped, not queued. The next tick rescans every post
// that is still due, so nothing is lost.
type PublicationScheduler struct {
	promoter Promoter
	notifier Enqueuer
	config   PublicationSchedulerConfig
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics

	running   atomic.Bool
	sweeps    sync.WaitGroup
	mu        sync.Mutex
	cancelCtx context.CancelFunc
}

func NewPublicationScheduler(promoter Promoter, notifier Enqueuer, logger *zap.SugaredLogger, m *metrics.Metrics, config PublicationSchedulerConfig) *PublicationScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PublicationScheduler{
		promoter: promoter,
		notifier: notifier,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// Start runs the ticker loop until ctx is cancelled or Stop is called. Each
// tick sweeps on its own goroutine so a slow sweep never delays the timer.
func (s *PublicationScheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelCtx = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Infow("Starting publication scheduler", "interval", s.config.Interval)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sweeps.Wait()
			s.logger.Infow("Publication scheduler stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			s.sweeps.Add(1)
			go func() {
				defer s.sweeps.Done()
				s.Tick(ctx)
			}()
		}
	}
}

func (s *PublicationScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancelCtx
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Tick runs a sweep unless one is already in progress. It reports whether
// the sweep ran.
func (s *PublicationScheduler) Tick(ctx context.Context) (SweepResult, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordSweep(ctx, true)
		s.logger.Debugw("Previous sweep still running, skipping tick")
		return SweepResult{}, false
	}
	defer s.running.Store(false)

	s.metrics.RecordSweep(ctx, false)
	return s.RunOnce(ctx), true
}

// RunOnce promotes every post due at the current time. A failure on one
// post is logged and the sweep moves on.
func (s *PublicationScheduler) RunOnce(ctx context.Context) SweepResult {
	now := s.config.Now()

	due, err := s.promoter.DueScheduled(ctx, now)
	if err != nil {
		s.logger.Errorw("Failed to list due posts", "error", err)
		return SweepResult{}
	}

	res := SweepResult{Due: len(due)}
	for _, post := range due {
		if ctx.Err() != nil {
			break
		}

		promoted, err := s.promoter.Promote(ctx, post.ID, now)
		switch {
		case err == nil:
			res.Promoted++
			s.metrics.RecordPromotion(ctx)
			s.logger.Infow("Scheduled post published", "post_id", post.ID, "slug", promoted.Slug)
			if s.notifier != nil {
				s.notifier.Enqueue(promoted)
			}
		case errors.Is(err, apperr.ErrNotFound):
			res.Skipped++
			s.logger.Debugw("Post no longer due, skipping", "post_id", post.ID)
		default:
			res.Failed++
			s.logger.Errorw("Failed to promote scheduled post", "post_id", post.ID, "error", err)
		}
	}

	if res.Due > 0 {
		s.logger.Infow("Scheduler sweep finished",
			"due", res.Due, "promoted", res.Promoted, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res
}
