package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventsApplied counts inventory events that changed stock.
var EventsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skuledger_events_applied_total",
	Help: "Number of inventory events applied to stock",
})

// EventsDuplicate counts replayed deliveries that were absorbed without a
// stock mutation.
var EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skuledger_events_duplicate_total",
	Help: "Number of duplicate inventory events ignored",
})

// StockClamps counts writes where the floor rule clamped a would-be negative
// on-hand to zero.
var StockClamps = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skuledger_stock_clamps_total",
	Help: "Number of stock writes clamped to zero by the floor rule",
})

// QueueDepth tracks the number of jobs waiting in the propagation queue.
var QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "skuledger_propagation_queue_depth",
	Help: "Jobs currently waiting in the propagation queue",
})

// QueueEnqueues counts jobs accepted into the propagation queue.
var QueueEnqueues = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skuledger_propagation_queue_enqueues_total",
	Help: "Jobs accepted into the propagation queue",
})

// QueueDrops counts jobs rejected because the propagation queue was full.
var QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skuledger_propagation_queue_drops_total",
	Help: "Jobs dropped because the propagation queue was full",
})

// PropagationPushes counts per-site stock pushes by outcome
// ('ok', 'dead_letter', 'skipped').
var PropagationPushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skuledger_propagation_pushes_total",
	Help: "Per-site stock pushes by outcome",
}, []string{"outcome"})

// StorefrontRequestDuration measures how long storefront API calls take.
// The 'operation' label distinguishes catalog listing from stock writes.
var StorefrontRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "skuledger_storefront_request_duration_seconds",
		Help: "Duration of storefront API requests in seconds",
		// Buckets sized for remote HTTP calls rather than local queries
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	},
	[]string{"operation"},
)
