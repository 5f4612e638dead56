package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// BreakerConfig configures the per-target circuit breaker.
type BreakerConfig struct {
	Enabled      bool
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration
	Interval     time.Duration
}

// DefaultBreakerConfig trips at a 50% failure ratio over at least five
// calls and stays open for 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      true,
		FailureRatio: 0.5,
		MinRequests:  5,
		OpenTimeout:  30 * time.Second,
		Interval:     60 * time.Second,
	}
}

// transportError marks failures that count against the breaker: the
// upstream could not be reached or did not answer in time.
type transportError struct {
	sentinel error
	err      error
}

func (e *transportError) Error() string {
	return e.sentinel.Error() + ": " + e.err.Error()
}

func (e *transportError) Unwrap() []error {
	return []error{e.sentinel, e.err}
}

func countsAgainstBreaker(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

func newBreaker(
	target string,
	cfg BreakerConfig,
	logger observability.Logger,
	metrics *Metrics,
) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAgainstBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit breaker state change",
				observability.String("target", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			metrics.recordTransition(name, from.String(), to.String(), int(to))

			_, span := tracer.Start(context.Background(),
				"circuitbreaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	})
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
