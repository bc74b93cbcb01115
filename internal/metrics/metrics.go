package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service instruments. A nil *Metrics is valid and records
// nothing, so components can be built without a meter in tests.
type Metrics struct {
	HTTPRequests         metric.Int64Counter
	HTTPDuration         metric.Float64Histogram
	CacheHits            metric.Int64Counter
	CacheMisses          metric.Int64Counter
	CacheInvalidations   metric.Int64Counter
	RevisionSnapshots    metric.Int64Counter
	GateDecisions        metric.Int64Counter
	PostsPromoted        metric.Int64Counter
	SweepRuns            metric.Int64Counter
	SweepSkips           metric.Int64Counter
	NotificationsSent    metric.Int64Counter
	NotificationsFailed  metric.Int64Counter
	NotificationsDropped metric.Int64Counter
}

// Setup installs a Prometheus-backed meter provider and returns the
// instruments plus the scrape handler.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := New(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// New creates the instruments on an existing meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequests, "folio_http_requests_total", "Total number of HTTP requests"},
		{&m.CacheHits, "folio_cache_hits_total", "Total number of cache hits"},
		{&m.CacheMisses, "folio_cache_misses_total", "Total number of cache misses"},
		{&m.CacheInvalidations, "folio_cache_invalidations_total", "Cache entries removed by tag invalidation"},
		{&m.RevisionSnapshots, "folio_revision_snapshots_total", "Revision snapshots by outcome"},
		{&m.GateDecisions, "folio_gate_decisions_total", "Access gate decisions by outcome"},
		{&m.PostsPromoted, "folio_posts_promoted_total", "Scheduled posts promoted to published"},
		{&m.SweepRuns, "folio_scheduler_sweeps_total", "Scheduler sweeps executed"},
		{&m.SweepSkips, "folio_scheduler_sweeps_skipped_total", "Scheduler ticks dropped because a sweep was running"},
		{&m.NotificationsSent, "folio_notifications_sent_total", "New-post notifications delivered"},
		{&m.NotificationsFailed, "folio_notifications_failed_total", "New-post notifications that failed"},
		{&m.NotificationsDropped, "folio_notifications_dropped_total", "Fan-out jobs dropped because the queue was full"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"folio_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, namespace string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, namespace string) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

func (m *Metrics) RecordInvalidation(ctx context.Context, tag string, removed int) {
	if m == nil || removed == 0 {
		return
	}
	m.CacheInvalidations.Add(ctx, int64(removed), metric.WithAttributes(attribute.String("tag", tag)))
}

func (m *Metrics) RecordSnapshot(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.RevisionSnapshots.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) RecordGateDecision(ctx context.Context, visibility string, gated bool) {
	if m == nil {
		return
	}
	m.GateDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("visibility", visibility),
		attribute.Bool("gated", gated),
	))
}

func (m *Metrics) RecordPromotion(ctx context.Context) {
	if m == nil {
		return
	}
	m.PostsPromoted.Add(ctx, 1)
}

func (m *Metrics) RecordSweep(ctx context.Context, skipped bool) {
	if m == nil {
		return
	}
	if skipped {
		m.SweepSkips.Add(ctx, 1)
		return
	}
	m.SweepRuns.Add(ctx, 1)
}

func (m *Metrics) RecordNotifications(ctx context.Context, sent, failed int) {
	if m == nil {
		return
	}
	m.NotificationsSent.Add(ctx, int64(sent))
	m.NotificationsFailed.Add(ctx, int64(failed))
}

func (m *Metrics) RecordNotificationDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.NotificationsDropped.Add(ctx, 1)
}
