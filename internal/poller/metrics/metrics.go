package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mutuals/internal/poller/models"
)

type Metrics struct {
	Lookups          *prometheus.CounterVec
	Identifiers      *prometheus.CounterVec
	BackoffSeconds   prometheus.Counter
	RemainingTargets prometheus.Gauge
}

// New registers the polling metrics on reg. Pass a fresh registry in tests to
// avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mutuals_poller_lookups_total",
			Help: "Lookups performed, by lookup kind and classified outcome",
		}, []string{"kind", "outcome"}),
		Identifiers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mutuals_poller_identifiers_total",
			Help: "Identifiers that reached a terminal state, by state",
		}, []string{"state"}),
		BackoffSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "mutuals_poller_backoff_seconds_total",
			Help: "Total time spent waiting on server-requested rate limits",
		}),
		RemainingTargets: f.NewGauge(prometheus.GaugeOpts{
			Name: "mutuals_poller_remaining_identifiers",
			Help: "Identifiers not yet polled to a terminal state",
		}),
	}
}

func (m *Metrics) ObserveLookup(kind models.LookupKind, outcome models.OutcomeKind) {
	m.Lookups.WithLabelValues(kind.String(), outcome.String()).Inc()
}

func (m *Metrics) IncrementResolved() {
	m.Identifiers.WithLabelValues("done").Inc()
}

func (m *Metrics) IncrementAbandoned() {
	m.Identifiers.WithLabelValues("abandoned").Inc()
}

func (m *Metrics) AddBackoff(d time.Duration) {
	m.BackoffSeconds.Add(d.Seconds())
}

func (m *Metrics) SetRemaining(n int) {
	m.RemainingTargets.Set(float64(n))
}
