package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/tenantgw/internal/auth"
	"github.com/vyrodovalexey/tenantgw/internal/gateway/middleware"
	"github.com/vyrodovalexey/tenantgw/internal/health"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/ratelimit"
)

// Probe and scrape endpoints.
const (
	HealthPath    = "/healthz"
	ReadinessPath = "/readyz"
	MetricsPath   = "/metrics"
)

// RouterConfig holds what NewRouter wires around a Handler. Everything but
// Handler is optional and shared across configuration snapshots.
type RouterConfig struct {
	Handler *Handler
	Checker *health.Checker
	Metrics *observability.Metrics
	Limiter ratelimit.Limiter
	// RateKey derives the rate limit key; the peer address by default.
	RateKey ratelimit.KeyFunc
	Logger  observability.Logger
}

// NewRouter builds the gin engine for one configuration snapshot.
//
// Middleware order is recovery, request id, access log, rate limit. The
// orchestrator route is guarded except on skip paths; the agent route is
// always guarded.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	checker := cfg.Checker
	if checker == nil {
		checker = health.NewChecker("")
	}

	engine := gin.New()

	engine.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(middleware.LoggingConfig{
			Logger:          logger,
			Metrics:         cfg.Metrics,
			SkipHealthCheck: true,
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:   cfg.Limiter,
			KeyFunc:   cfg.RateKey,
			Logger:    logger,
			Metrics:   cfg.Metrics,
			SkipPaths: []string{HealthPath, ReadinessPath, MetricsPath},
		}),
	)

	h := cfg.Handler
	guard := h.Guard()

	engine.Any(OrchestratorPrefix+"/*"+pathParam,
		auth.Middleware(guard, auth.SkipUpstreamPath(guard, pathParam)),
		h.Orchestrator,
	)
	engine.Any(AgentPrefix+"/*"+pathParam,
		auth.Middleware(guard, nil),
		h.Agent,
	)

	engine.GET(HealthPath, checker.HealthHandler())
	engine.GET(ReadinessPath, checker.ReadinessHandler())
	if cfg.Metrics != nil {
		engine.GET(MetricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "no route matched the request",
		})
	})

	return engine
}
