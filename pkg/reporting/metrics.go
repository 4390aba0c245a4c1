package reporting

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the per-step numbers a sampling run produces: the
// current threshold/annealing parameter, effective sample size, and
// acceptance rate, each labeled by algorithm name so a single process can
// run several drivers without a collector collision.
type Metrics struct {
	registry       *prometheus.Registry
	Epsilon        *prometheus.GaugeVec
	EffectiveN     *prometheus.GaugeVec
	AcceptanceRate *prometheus.GaugeVec
	StepsCompleted *prometheus.CounterVec
}

// NewMetrics builds a fresh registry and registers abcsim's collectors on
// it; the collectors are never registered on prometheus's default global
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return newMetrics(reg, reg)
}

func newMetrics(reg *prometheus.Registry, registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		registry: reg,
		Epsilon: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "abcsim",
			Name:      "epsilon",
			Help:      "Current acceptance threshold or annealing parameter.",
		}, []string{"algorithm"}),
		EffectiveN: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "abcsim",
			Name:      "effective_sample_size",
			Help:      "Effective sample size of the current weighted population.",
		}, []string{"algorithm"}),
		AcceptanceRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "abcsim",
			Name:      "acceptance_rate",
			Help:      "Fraction of proposals accepted in the most recent step.",
		}, []string{"algorithm"}),
		StepsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abcsim",
			Name:      "steps_completed_total",
			Help:      "Number of generations/steps completed.",
		}, []string{"algorithm"}),
	}
}

// Handler returns the HTTP handler serving this Metrics' registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
