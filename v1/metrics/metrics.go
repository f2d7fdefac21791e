package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels used by Decisions.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeReleased = "released"
	OutcomeRejected = "rejected"
)

var (
	// Decisions counts admission outcomes per primitive (lock, ratelimit, firewall).
	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_decisions_total",
		Help: "Total number of admission decisions by primitive and outcome",
	}, []string{"primitive", "outcome"})
	// Rollbacks counts compensating decrements issued by the rate limiter.
	Rollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coord_ratelimit_rollbacks_total",
		Help: "Total number of rate limiter rollbacks after overflow or double release",
	})
	// StoreLatency tracks the duration of store round trips by operation.
	StoreLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coord_store_duration_seconds",
		Help:    "Duration of store round trips",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op"})
	// StoreErrors counts failed store round trips by operation.
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coord_store_errors_total",
		Help: "Total number of failed store operations",
	}, []string{"op"})
	// LocksHeld reports the lock handles of this process that acquired and
	// have not released yet. A hold that expired counts until it is released.
	LocksHeld = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coord_locks_held",
		Help: "Current number of locks acquired and not yet released by this process",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the coordination metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Decisions, Rollbacks, StoreLatency, StoreErrors, LocksHeld)
}
