package health

import (
	"context"
	"strings"
)

// CircuitCheck is unhealthy while any upstream circuit is open.
func CircuitCheck(openCircuits func() []string) CheckFunc {
	return func(context.Context) Check {
		open := openCircuits()
		if len(open) == 0 {
			return Check{Status: StatusHealthy}
		}
		return Check{
			Status:  StatusUnhealthy,
			Message: "circuit open: " + strings.Join(open, ", "),
		}
	}
}

// DependencyCheck wraps a ping style probe. A failing non-critical
// dependency only degrades readiness. The probe error text is not exposed.
func DependencyCheck(probe func(ctx context.Context) error, critical bool) CheckFunc {
	return func(ctx context.Context) Check {
		if err := probe(ctx); err != nil {
			status := StatusDegraded
			if critical {
				status = StatusUnhealthy
			}
			return Check{Status: status, Message: "unavailable"}
		}
		return Check{Status: StatusHealthy}
	}
}
