package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PropagationWrites counts documents rewritten by the denormalization
	// propagator, by target ("post", "comment").
	PropagationWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_propagation_writes_total",
		Help: "Documents rewritten by identity propagation",
	}, []string{"target"})

	// PropagationSkips counts documents the propagator scanned but did not
	// rewrite because the denormalized copy already matched.
	PropagationSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_propagation_skips_total",
		Help: "Documents scanned by propagation but already consistent",
	}, []string{"target"})

	// PropagationFailures counts propagation batches that did not complete.
	PropagationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_propagation_failures_total",
		Help: "Propagation batches that failed partway",
	}, []string{"target"})

	// ReconcileRepairs counts fixes applied by the reconciliation sweep.
	ReconcileRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_reconcile_repairs_total",
		Help: "Repairs applied by the reconciliation sweep",
	}, []string{"kind"})

	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// FeedSubscribers is the gauge of live feed subscriptions.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_feed_subscribers",
		Help: "Number of active live feed subscriptions",
	})

	// FeedEvents counts events delivered to the feed hub by type.
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_feed_events_total",
		Help: "Feed events published by type",
	}, []string{"event_type"})
)
