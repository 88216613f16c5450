package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// notification listener, refresh coordinators, and radar compositor.
type Metrics struct {
	NotificationsReceived *prometheus.CounterVec // labels: dataset
	NotificationsDropped  *prometheus.CounterVec // labels: reason={no_subscribers,unparseable}
	ListenerState         prometheus.Gauge       // listener.State numeric value
	ListenerReconnects    prometheus.Counter

	RefreshOutcomes *prometheus.CounterVec   // labels: coordinator, outcome={success,skipped,exhausted,aborted}
	FetchAttempts   *prometheus.CounterVec   // labels: coordinator
	FetchDuration   *prometheus.HistogramVec // labels: coordinator

	RadarRegenerations    prometheus.Counter
	RadarRegenerationTime prometheus.Histogram
	RadarTileErrors       prometheus.Counter

	SnapshotsPublished prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.NotificationsReceived,
		m.NotificationsDropped,
		m.ListenerState,
		m.ListenerReconnects,
		m.RefreshOutcomes,
		m.FetchAttempts,
		m.FetchDuration,
		m.RadarRegenerations,
		m.RadarRegenerationTime,
		m.RadarTileErrors,
		m.SnapshotsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		NotificationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "notifications_received_total",
			Help:      "Push notifications received from the broker by dataset.",
		}, []string{"dataset"}),
		NotificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "notifications_dropped_total",
			Help:      "Push notifications dropped without invoking a callback.",
		}, []string{"reason"}),
		ListenerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "knmi_direct",
			Name:      "listener_state",
			Help:      "Listener connection state (0 disconnected, 1 connecting, 2 subscribed, 3 backoff).",
		}),
		ListenerReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "listener_reconnects_total",
			Help:      "Reconnect cycles after a broker transport error.",
		}),
		RefreshOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "refresh_outcomes_total",
			Help:      "Notification-triggered refresh outcomes per coordinator.",
		}, []string{"coordinator", "outcome"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "fetch_attempts_total",
			Help:      "Upstream fetch attempts per coordinator, including retries.",
		}, []string{"coordinator"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "knmi_direct",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch duration per coordinator.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"coordinator"}),
		RadarRegenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "radar_regenerations_total",
			Help:      "Completed radar animation regenerations.",
		}),
		RadarRegenerationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "knmi_direct",
			Name:      "radar_regeneration_duration_seconds",
			Help:      "Duration of a full tile-fetch-and-encode cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		RadarTileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "radar_tile_errors_total",
			Help:      "Radar regenerations aborted by a tile fetch failure.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_direct",
			Name:      "snapshots_published_total",
			Help:      "Observation snapshots published to the Kafka sink.",
		}),
	}
}
