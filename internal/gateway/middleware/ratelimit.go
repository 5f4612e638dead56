package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/ratelimit"
)

// RateLimitedKind is the error value of a 429 response.
const RateLimitedKind = "rate_limited"

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// Limiter is the rate limiter to use.
	Limiter ratelimit.Limiter

	// KeyFunc extracts the rate limit key from the request.
	KeyFunc ratelimit.KeyFunc

	Logger  observability.Logger
	Metrics *observability.Metrics

	// SkipPaths are exact request paths never limited.
	SkipPaths []string
}

// RateLimit rejects requests over the limit with 429 before any upstream
// is contacted. A failing limiter lets the request through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ratelimit.IPKeyFunc
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c.Request)
		result, err := cfg.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			cfg.Logger.WithContext(c.Request.Context()).Warn("rate limit check failed, allowing request",
				observability.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			retryAfter := int(math.Max(1, math.Ceil(result.RetryAfter.Seconds())))
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			if cfg.Metrics != nil {
				cfg.Metrics.RecordRateLimitHit(RouteOf(c))
			}
			cfg.Logger.WithContext(c.Request.Context()).Debug("rate limit exceeded",
				observability.String("key", key),
				observability.Int("limit", result.Limit),
			)

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   RateLimitedKind,
				"message": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
