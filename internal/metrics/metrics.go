package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	eventType  = "event_type"
	projection = "projection"
)

var (
	// AppendedEvents counts events committed to the log.
	AppendedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflow_appended_events_count",
		Help: "Number of events appended to the event log",
	}, []string{eventType})

	// VersionConflicts counts appends rejected by the optimistic concurrency check.
	VersionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventflow_version_conflict_count",
		Help: "Number of appends rejected with a version conflict",
	})

	// SubscriberErrors counts handler errors and panics during notification.
	SubscriberErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflow_subscriber_error_count",
		Help: "Number of subscriber handler errors during append notification",
	}, []string{eventType})

	// NotifyLatency is how long the synchronous subscriber fan-out takes per append.
	NotifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventflow_notify_latency_seconds",
		Help:    "Subscriber notification latency per append in seconds",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 5},
	})

	// ProjectionLag is the age of the event currently being projected.
	ProjectionLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eventflow_projection_lag_seconds",
		Help: "Lag between now and the current event timestamp in seconds",
	}, []string{projection})

	// ProjectionLatency is how long a projection takes to handle an event.
	ProjectionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventflow_projection_latency_seconds",
		Help:    "Projection handler latency in seconds",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 5, 30},
	}, []string{projection})

	// ProjectionErrors is the number of errors from projection handlers.
	ProjectionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventflow_projection_error_count",
		Help: "Number of errors from projection handlers",
	}, []string{projection})

	// SnapshotsTaken counts snapshots written by the snapshotter.
	SnapshotsTaken = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventflow_snapshots_taken_count",
		Help: "Number of snapshots written",
	})
)

func init() {
	prometheus.MustRegister(
		AppendedEvents,
		VersionConflicts,
		SubscriberErrors,
		NotifyLatency,
		ProjectionLag,
		ProjectionLatency,
		ProjectionErrors,
		SnapshotsTaken,
	)
}

func Reset() {
	AppendedEvents.Reset()
	SubscriberErrors.Reset()
	ProjectionLag.Reset()
	ProjectionLatency.Reset()
	ProjectionErrors.Reset()
}
