package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
		m.RecordCacheHit(ctx, "post")
		m.RecordCacheMiss(ctx, "post")
		m.RecordInvalidation(ctx, "posts", 3)
		m.RecordSnapshot(ctx, true)
		m.RecordGateDecision(ctx, "paid", true)
		m.RecordPromotion(ctx)
		m.RecordSweep(ctx, false)
		m.RecordNotifications(ctx, 1, 0)
		m.RecordNotificationDropped(ctx)
	})
}

func TestCountersAreRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCacheHit(ctx, "post")
	m.RecordCacheHit(ctx, "post")
	m.RecordSweep(ctx, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[md.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(2), totals["folio_cache_hits_total"])
	assert.Equal(t, int64(1), totals["folio_scheduler_sweeps_skipped_total"])
	assert.Zero(t, totals["folio_scheduler_sweeps_total"])
}
