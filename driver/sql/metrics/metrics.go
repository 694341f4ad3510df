// Package metrics holds the Prometheus instrumentation for the event
// store and projector (C6/C9), registered through promauto the same way
// the rest of the stack instruments itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_events_appended_total",
		Help: "Total number of events appended to a stream",
	}, []string{"stream"})

	streamsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_streams_created_total",
		Help: "Total number of streams created",
	}, []string{"stream"})

	streamsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_streams_deleted_total",
		Help: "Total number of streams deleted",
	}, []string{"stream"})

	appendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventstore_append_latency_seconds",
		Help:    "Latency of AppendTo/Create insert statements",
		Buckets: prometheus.DefBuckets,
	})

	writeLockWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_write_lock_contended_total",
		Help: "Total number of times a stream's write lock was already held",
	}, []string{"stream"})

	loadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_load_errors_total",
		Help: "Total number of Load/LoadReverse calls that returned an error",
	}, []string{"stream"})

	projectionCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_projection_cycles_total",
		Help: "Total number of projector run cycles",
	}, []string{"projection"})

	projectionEventsHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_projection_events_handled_total",
		Help: "Total number of events folded into a projection's state",
	}, []string{"projection"})

	projectionGapsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventstore_projection_gaps_detected_total",
		Help: "Total number of sequence gaps observed by a projection",
	}, []string{"projection"})

	projectionPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eventstore_projection_position",
		Help: "Last persisted position per stream for a projection",
	}, []string{"projection", "stream"})
)

// RecordAppend records n events appended to stream.
func RecordAppend(stream string, n int) {
	eventsAppendedTotal.WithLabelValues(stream).Add(float64(n))
}

// RecordStreamCreated increments the streams-created counter.
func RecordStreamCreated(stream string) {
	streamsCreatedTotal.WithLabelValues(stream).Inc()
}

// RecordStreamDeleted increments the streams-deleted counter.
func RecordStreamDeleted(stream string) {
	streamsDeletedTotal.WithLabelValues(stream).Inc()
}

// ObserveAppendLatency records an append statement's duration in seconds.
func ObserveAppendLatency(seconds float64) {
	appendLatency.Observe(seconds)
}

// RecordWriteLockContended increments the write-lock contention counter.
func RecordWriteLockContended(stream string) {
	writeLockWaitTotal.WithLabelValues(stream).Inc()
}

// RecordLoadError increments the load-error counter.
func RecordLoadError(stream string) {
	loadErrorsTotal.WithLabelValues(stream).Inc()
}

// RecordProjectionCycle increments a projection's run-cycle counter.
func RecordProjectionCycle(projection string) {
	projectionCyclesTotal.WithLabelValues(projection).Inc()
}

// RecordProjectionEventsHandled adds n to a projection's handled-events counter.
func RecordProjectionEventsHandled(projection string, n int) {
	projectionEventsHandledTotal.WithLabelValues(projection).Add(float64(n))
}

// RecordProjectionGapDetected increments a projection's gap counter.
func RecordProjectionGapDetected(projection string) {
	projectionGapsDetectedTotal.WithLabelValues(projection).Inc()
}

// SetProjectionPosition sets a projection's last-known position for a stream.
func SetProjectionPosition(projection, stream string, position int64) {
	projectionPosition.WithLabelValues(projection, stream).Set(float64(position))
}
