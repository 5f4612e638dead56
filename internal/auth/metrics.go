package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics holds Prometheus metrics for the tenant guard.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
}

// NewMetrics registers the guard metrics with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tenantgw",
				Subsystem: "auth",
				Name:      "requests_total",
				Help:      "Total number of tenant authentication attempts",
			},
			[]string{"result", "reason"},
		),
	}
}

func (m *Metrics) record(result, reason string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(result, reason).Inc()
}
