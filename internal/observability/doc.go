// Package observability provides logging, metrics, and tracing
// functionality for the tenant gateway.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request forwarded",
//	    observability.String("target", "orchestrator"),
//	    observability.Int("status", 200),
//	)
//
// Secrets and raw credentials must never be passed as fields. Use URL for
// configured base URLs so embedded userinfo is masked.
//
// # Metrics
//
// Metrics owns a private Prometheus registry; component collectors (auth,
// upstream) register on Registry() so a single /metrics handler exposes all
// of them.
//
// # Tracing
//
// NewTracer installs the W3C trace context propagator and, when enabled, an
// OTLP gRPC exporter.
package observability
