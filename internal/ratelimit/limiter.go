// Package ratelimit throttles inbound requests before they reach an upstream.
// It offers a per-process token bucket and a Redis fixed window shared by
// every gateway replica.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	io.Closer

	// Allow checks if a single request is allowed for the given key.
	Allow(ctx context.Context, key string) (*Result, error)
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

// Type selects the limiter implementation.
type Type string

const (
	// TypeMemory is a per-process token bucket.
	TypeMemory Type = "memory"
	// TypeRedis is a fixed window shared through Redis.
	TypeRedis Type = "redis"
)

// ErrInvalidConfig indicates unusable limiter settings.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Config holds configuration for creating a rate limiter.
type Config struct {
	Type Type

	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64

	// Burst is the token bucket size of the memory limiter.
	Burst int

	// Window is the fixed window length of the Redis limiter.
	Window time.Duration

	Redis RedisConfig
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// WindowLimit is the number of requests the Redis limiter admits per window.
func (c Config) WindowLimit() int {
	n := int(math.Ceil(c.RequestsPerSecond * c.Window.Seconds()))
	if n < 1 {
		n = 1
	}
	return n
}

// New creates the limiter selected by cfg.Type.
func New(cfg Config, logger observability.Logger) (Limiter, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("%w: requestsPerSecond must be greater than 0", ErrInvalidConfig)
	}

	switch cfg.Type {
	case TypeMemory, "":
		return NewMemoryLimiter(cfg.RequestsPerSecond, cfg.Burst, WithMemoryLogger(logger)), nil
	case TypeRedis:
		return NewRedisLimiter(cfg, WithRedisLogger(logger))
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, cfg.Type)
	}
}
