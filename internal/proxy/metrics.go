package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Outcome labels.
const (
	outcomeSuccess     = "success"
	outcomeCallerGone  = "caller_gone"
	outcomeCircuitOpen = "circuit_open"
)

// Metrics holds upstream call metrics.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	breakerTransitions *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

// NewMetrics registers upstream metrics on registerer. A nil registerer
// uses the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: observability.DefaultNamespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream calls by outcome",
			},
			[]string{"target", "method", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: observability.DefaultNamespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Duration of upstream calls in seconds",
				Buckets: []float64{
					.005, .01, .025, .05, .1,
					.25, .5, 1, 2.5, 5, 10, 30,
				},
			},
			[]string{"target", "outcome"},
		),
		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: observability.DefaultNamespace,
				Subsystem: "upstream",
				Name:      "circuit_breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"target", "from", "to"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: observability.DefaultNamespace,
				Subsystem: "upstream",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"target"},
		),
	}
}

func (m *Metrics) recordCall(target, method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(target, method, outcome).Inc()
	m.requestDuration.WithLabelValues(target, outcome).Observe(d.Seconds())
}

func (m *Metrics) recordTransition(target, from, to string, state int) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(target, from, to).Inc()
	m.breakerState.WithLabelValues(target).Set(float64(state))
}
