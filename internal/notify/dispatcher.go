// Package notify fans a newly published post out to subscribers. Delivery
// is best effort: failures are logged and counted, never retried and never
// reported back to the publishing path.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/metrics"
	"github.com/folio/folio-backend/internal/subscription"
)

// SubscriberSource lists the viewers who receive new-post notifications.
type SubscriberSource interface {
	ActiveSubscribers(ctx context.Context) ([]subscription.Subscriber, error)
}

// Notifier delivers one batch. It reports how many recipients failed; an
// error means the whole batch failed.
type Notifier interface {
	NotifyNewPost(ctx context.Context, post *entities.Post, subscribers []subscription.Subscriber) (failed int, err error)
}

type Config struct {
	QueueSize      int
	BatchSize      int
	BatchesPerSec  float64
	MaxConcurrency int
	Workers        int
}

type Dispatcher struct {
	source   SubscriberSource
	notifier Notifier
	config   Config
	limiter  *rate.Limiter
	queue    chan *entities.Post

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(source SubscriberSource, notifier Notifier, config Config, logger *zap.SugaredLogger, m *metrics.Metrics) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.BatchesPerSec <= 0 {
		config.BatchesPerSec = 5
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	burst := int(config.BatchesPerSec)
	if burst < 1 {
		burst = 1
	}

	return &Dispatcher{
		source:   source,
		notifier: notifier,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.BatchesPerSec), burst),
		queue:    make(chan *entities.Post, config.QueueSize),
		logger:   logger,
		metrics:  m,
	}
}

// Start launches the workers. They run until Stop or until ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Infow("Notification dispatcher started", "workers", d.config.Workers, "queue_size", d.config.QueueSize)
}

// Stop cancels the workers and waits for them. Queued posts that were not
// picked up are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Enqueue schedules a fan-out for post without blocking. It reports false
// when the queue is full and the notification was dropped.
func (d *Dispatcher) Enqueue(post *entities.Post) bool {
	select {
	case d.queue <- post.Clone():
		return true
	default:
		d.logger.Warnw("Notification queue full, dropping", "post_id", post.ID)
		d.metrics.RecordNotificationDropped(context.Background())
		return false
	}
}

// Drain dispatches every queued post on the calling goroutine and returns
// how many it handled. One-shot processes use it instead of workers.
func (d *Dispatcher) Drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case post := <-d.queue:
			d.Dispatch(ctx, post)
			n++
		default:
			return n
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case post := <-d.queue:
			d.Dispatch(ctx, post)
		}
	}
}

// Result summarises one fan-out.
type Result struct {
	Subscribers int
	Batches     int
	Sent        int
	Failed      int
}

// Dispatch notifies every active subscriber about post, batch by batch.
func (d *Dispatcher) Dispatch(ctx context.Context, post *entities.Post) Result {
	start := time.Now()

	subs, err := d.source.ActiveSubscribers(ctx)
	if err != nil {
		d.logger.Errorw("Failed to load subscribers", "post_id", post.ID, "error", err)
		return Result{}
	}
	if len(subs) == 0 {
		return Result{}
	}

	batches := Batches(subs, d.config.BatchSize)
	failed := make([]int, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.MaxConcurrency)
	for i, batch := range batches {
		if err := d.limiter.Wait(gctx); err != nil {
			// Cancelled: the rest of the fan-out is abandoned.
			for j := i; j < len(batches); j++ {
				failed[j] = len(batches[j])
			}
			break
		}

		g.Go(func() error {
			n, err := d.notifier.NotifyNewPost(gctx, post, batch)
			if err != nil {
				d.logger.Warnw("Notification batch failed",
					"post_id", post.ID, "batch", i, "size", len(batch), "error", err)
				n = len(batch)
			}
			failed[i] = min(max(n, 0), len(batch))
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Subscribers: len(subs), Batches: len(batches)}
	for _, n := range failed {
		res.Failed += n
	}
	res.Sent = res.Subscribers - res.Failed

	d.metrics.RecordNotifications(ctx, res.Sent, res.Failed)
	d.logger.Infow("New post notifications dispatched",
		"post_id", post.ID,
		"subscribers", res.Subscribers,
		"batches", res.Batches,
		"sent", res.Sent,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res
}

// Batches splits subs into consecutive chunks of at most size.
func Batches(subs []subscription.Subscriber, size int) [][]subscription.Subscriber {
	if size <= 0 {
		size = len(subs)
	}
	var out [][]subscription.Subscriber
	for start := 0; start < len(subs); start += size {
		end := min(start+size, len(subs))
		out = append(out, subs[start:end])
	}
	return out
}
