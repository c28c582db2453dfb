package bufferpool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// otelStats mirrors Stats into OpenTelemetry observable counters, so
// an embedder that wires up go.opentelemetry.io/otel/exporters/prometheus
// gets a /metrics-ready view of the same atomics without this package
// owning an HTTP listener: this engine stays in-process, and serving
// metrics over the network is entirely the embedder's call.
type otelStats struct {
	pool *BufferPool
}

// newOtelStats registers the observable counters against the global
// MeterProvider. Registration failures are non-fatal: metrics are an
// ambient concern, never a reason to fail Open.
func newOtelStats(bp *BufferPool) *otelStats {
	os := &otelStats{pool: bp}
	meter := otel.Meter("github.com/gojodb/pagecache/bufferpool")

	register := func(name, desc string, read func(Snapshot) int64) {
		counter, err := meter.Int64ObservableCounter(name, metric.WithDescription(desc), metric.WithUnit("1"))
		if err != nil {
			bp.logger.Warn("otel: failed to create counter", zap.Error(err))
			return
		}
		_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(counter, read(bp.stats.Snapshot()))
			return nil
		}, counter)
		if err != nil {
			bp.logger.Warn("otel: failed to register callback", zap.Error(err))
		}
	}

	register("pagecache.hits_total", "Cache hits.", func(s Snapshot) int64 { return int64(s.Hits) })
	register("pagecache.misses_total", "Cache misses.", func(s Snapshot) int64 { return int64(s.Misses) })
	register("pagecache.inserts_total", "New entries admitted.", func(s Snapshot) int64 { return int64(s.Inserts) })
	register("pagecache.evictions_total", "Entries evicted.", func(s Snapshot) int64 { return int64(s.Evictions) })
	register("pagecache.promotions_total", "Cold-to-hot promotions.", func(s Snapshot) int64 { return int64(s.Promotions) })
	register("pagecache.demotions_total", "Hot-to-cold demotions.", func(s Snapshot) int64 { return int64(s.Demotions) })
	register("pagecache.writebacks_total", "Dirty pages written back.", func(s Snapshot) int64 { return int64(s.Writebacks) })

	return os
}
