package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "betterlox_sync"

var (
	once sync.Once

	syncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Finished sync attempts by type and terminal status.",
		},
		[]string{"type", "status"},
	)

	syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Time between an attempt entering IN_PROGRESS and reaching a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"type"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries performed by backoff callers.",
		},
		[]string{"operation"},
	)

	syncedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synced_items_total",
			Help:      "Items written by sync work.",
		},
		[]string{"type"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
		[]string{"name"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncAttempts, syncDuration, retries, syncedItems, breakerState)
	})
}

func ObserveAttempt(syncType, status string, elapsed time.Duration) {
	syncAttempts.WithLabelValues(syncType, status).Inc()
	syncDuration.WithLabelValues(syncType).Observe(elapsed.Seconds())
}

func IncRetry(operation string) {
	retries.WithLabelValues(operation).Inc()
}

func AddSyncedItems(syncType string, n int) {
	if n > 0 {
		syncedItems.WithLabelValues(syncType).Add(float64(n))
	}
}

func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}
