// Package metrics provides Prometheus-backed observability for streamdsl
// pipelines: events flowing through the DSL, terminal production outcomes,
// and keyed-store operation latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks the total number of events that entered a
	// pipeline's root source.
	// Labels: pipeline (input topic name)
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamdsl_events_processed_total",
			Help: "Total number of events injected into pipelines",
		},
		[]string{"pipeline"},
	)

	// MessagesProduced tracks terminal dispatches to the broker by outcome.
	// Labels: topic, mode (send/buffer/buffer_format), status (success/failure)
	MessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamdsl_messages_produced_total",
			Help: "Total number of messages dispatched to the broker",
		},
		[]string{"topic", "mode", "status"},
	)

	// StoreLatency tracks keyed-store operation latency in nanoseconds.
	// Labels: operation (get/put/increment)
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "streamdsl_store_latency_nanoseconds",
			Help: "Keyed store operation latency in nanoseconds",
			Buckets: []float64{
				1000,  // 1μs - in-memory store
				10000, // 10μs
				1e5,   // 100μs - local disk
				1e6,   // 1ms
				1e7,   // 10ms - networked store
				1e8,   // 100ms
				1e9,   // 1s
			},
		},
		[]string{"operation"},
	)

	// AggregateUpdates tracks accumulator read-modify-write cycles.
	// Labels: action (count/sum/min/max)
	AggregateUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamdsl_aggregate_updates_total",
			Help: "Total number of keyed accumulator updates",
		},
		[]string{"action"},
	)
)

// Timer measures operation duration for histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveStore records the elapsed time against StoreLatency for the given
// operation label.
func (t *Timer) ObserveStore(operation string) {
	StoreLatency.WithLabelValues(operation).Observe(float64(time.Since(t.start).Nanoseconds()))
}
