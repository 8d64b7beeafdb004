// ABOUTME: Prometheus instrumentation for the sequencing engine and retention loop
// ABOUTME: Exposed at the configured metrics path via promhttp.Handler

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the relay's Prometheus collectors. It implements
// engine.Metrics and retention.Metrics without importing either package,
// keeping the dependency direction pointing at metrics rather than from it.
type Metrics struct {
	ingestTotal    *prometheus.CounterVec
	pruneTotal     *prometheus.CounterVec
	checkpointTotal *prometheus.CounterVec
	subscriptions  prometheus.Gauge
}

// New registers the relay's collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to use the global one.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingestTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgp",
			Subsystem: "engine",
			Name:      "ingest_total",
			Help:      "Publish attempts processed by the sequencing engine, by outcome.",
		}, []string{"guild_id", "outcome"}),
		pruneTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgp",
			Subsystem: "retention",
			Name:      "pruned_events_total",
			Help:      "MESSAGE events removed by the retention prune loop.",
		}, []string{"guild_id"}),
		checkpointTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cgp",
			Subsystem: "retention",
			Name:      "checkpoints_total",
			Help:      "CHECKPOINT events emitted by the checkpoint loop.",
		}, []string{"guild_id"}),
		subscriptions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "cgp",
			Subsystem: "wire",
			Name:      "active_subscriptions",
			Help:      "Currently open guild subscriptions across all sockets.",
		}),
	}
	return m
}

// ObserveIngest implements engine.Metrics.
func (m *Metrics) ObserveIngest(guildID, outcome string) {
	m.ingestTotal.WithLabelValues(guildID, outcome).Inc()
}

// ObservePrune implements retention.Metrics.
func (m *Metrics) ObservePrune(guildID string, count int) {
	if count > 0 {
		m.pruneTotal.WithLabelValues(guildID).Add(float64(count))
	}
}

// ObserveCheckpoint implements retention.Metrics.
func (m *Metrics) ObserveCheckpoint(guildID string) {
	m.checkpointTotal.WithLabelValues(guildID).Inc()
}

// SetActiveSubscriptions records the current subscription gauge value.
func (m *Metrics) SetActiveSubscriptions(n int) {
	m.subscriptions.Set(float64(n))
}

// Handler returns the HTTP handler to mount at the configured metrics path.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
