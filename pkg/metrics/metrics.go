package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StoreRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dockv", Name: "store_retries_total", Help: "Write attempts beyond the first, by operation."},
		[]string{"operation"},
	)
	StoreExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dockv", Name: "store_exhausted_total", Help: "Operations that gave up after the retry budget, by operation."},
		[]string{"operation"},
	)
	CASConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "dockv", Name: "cas_conflicts_total", Help: "Conditioned writes rejected on a stale token."},
	)
	CounterFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "dockv", Name: "counter_failures_total", Help: "Failed atomic increment/decrement calls."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dockv", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dockv", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(StoreRetries)
	reg.MustRegister(StoreExhausted)
	reg.MustRegister(CASConflicts)
	reg.MustRegister(CounterFailures)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
