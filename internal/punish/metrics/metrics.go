package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the punishment core. One
// instance per process; registration happens via promauto at construction.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	StoreFetches   prometheus.Counter
	StoreFailures  prometheus.Counter
	EventsReceived prometheus.Counter
	EventsStale    prometheus.Counter
	PublishErrors  prometheus.Counter
	SweepExpired   prometheus.Counter
	CheckDuration  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_cache_hits_total",
			Help: "Punishment checks answered from the local cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_cache_misses_total",
			Help: "Punishment checks that required a durable store fetch",
		}),
		StoreFetches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_store_fetches_total",
			Help: "Durable store round trips (deduplicated by stampede control)",
		}),
		StoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_store_failures_total",
			Help: "Durable store operations that failed",
		}),
		EventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_events_received_total",
			Help: "Invalidation events received from the bus",
		}),
		EventsStale: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_events_stale_total",
			Help: "Invalidation events discarded by the revision guard",
		}),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_publish_errors_total",
			Help: "Invalidation events that could not be published",
		}),
		SweepExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "netban_sweep_expired_total",
			Help: "Records transitioned to expired by the background sweep",
		}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "netban_check_active_duration_ms",
			Help:    "Latency of checkActive calls in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
	}
}

// ObserveCheck records one checkActive round trip.
func (m *Metrics) ObserveCheck(d time.Duration) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(float64(d.Microseconds()) / 1000.0)
}
