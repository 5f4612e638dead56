// Package middleware holds the gin middleware wrapped around every gateway
// route: panic recovery, request ids with access logging, and rate limiting.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key for request ID.
	RequestIDKey = "requestID"

	unmatchedRoute = "unmatched"
)

// LoggingConfig holds configuration for the access log middleware.
type LoggingConfig struct {
	Logger          observability.Logger
	Metrics         *observability.Metrics
	SkipHealthCheck bool
}

// isHealthCheckPath checks if the path is a health check endpoint.
func isHealthCheckPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// RouteOf returns the matched route pattern, never the raw path.
func RouteOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// RequestID assigns a request id, echoes it in the response and stores it
// in the request context so loggers and upstream calls carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), requestID),
		)
		c.Next()
	}
}

// GetRequestID returns the request ID from the context.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// Logging writes one access log line per request and records request
// metrics. Headers, cookies and query strings are never logged.
func Logging(cfg LoggingConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if cfg.Metrics != nil {
			cfg.Metrics.IncrementActiveRequests()
			defer cfg.Metrics.DecrementActiveRequests()
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := RouteOf(c)

		if cfg.Metrics != nil {
			cfg.Metrics.RecordRequest(c.Request.Method, route, status, latency)
		}

		if cfg.SkipHealthCheck && isHealthCheckPath(path) {
			return
		}

		fields := []observability.Field{
			observability.String("requestID", GetRequestID(c)),
			observability.String("method", c.Request.Method),
			observability.String("route", route),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("latency", latency),
			observability.String("clientIP", c.ClientIP()),
			observability.Int("bodySize", c.Writer.Size()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, observability.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			cfg.Logger.Error("request completed", fields...)
		case status >= 400:
			cfg.Logger.Warn("request completed", fields...)
		default:
			cfg.Logger.Info("request completed", fields...)
		}
	}
}
