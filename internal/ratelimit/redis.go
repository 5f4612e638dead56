package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// DefaultKeyPrefix namespaces limiter keys in Redis.
const DefaultKeyPrefix = "tenantgw:ratelimit:"

// ErrRedisUnavailable indicates Redis could not be reached.
var ErrRedisUnavailable = errors.New("redis is unavailable")

var _ Limiter = (*RedisLimiter)(nil)

// fixedWindowScript counts requests in the current window.
// Returns: allowed (0 or 1), remaining count, reset time in ms
var fixedWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local window_start = math.floor(now / window_ms) * window_ms
	local window_key = key .. ':' .. window_start

	local count = redis.call('INCR', window_key)
	if count == 1 then
		redis.call('PEXPIRE', window_key, window_ms)
	end

	local allowed = 0
	if count <= limit then
		allowed = 1
	end

	local remaining = limit - count
	if remaining < 0 then
		remaining = 0
	end

	return {allowed, remaining, window_start + window_ms - now}
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis, so
// every replica shares one budget per key.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger observability.Logger
	now    func() time.Time
}

// RedisOption is a functional option for the Redis limiter.
type RedisOption func(*RedisLimiter)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger observability.Logger) RedisOption {
	return func(l *RedisLimiter) {
		l.logger = logger
	}
}

// WithRedisClient uses an existing client instead of dialing cfg.Redis.
func WithRedisClient(client *redis.Client) RedisOption {
	return func(l *RedisLimiter) {
		l.client = client
	}
}

// NewRedisLimiter creates a Redis fixed-window limiter admitting
// cfg.WindowLimit() requests per cfg.Window.
func NewRedisLimiter(cfg Config, opts ...RedisOption) (*RedisLimiter, error) {
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be greater than 0", ErrInvalidConfig)
	}

	l := &RedisLimiter{
		limit:  cfg.WindowLimit(),
		window: cfg.Window,
		prefix: cfg.Redis.KeyPrefix,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	if l.prefix == "" {
		l.prefix = DefaultKeyPrefix
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.client == nil {
		if cfg.Redis.Address == "" {
			return nil, fmt.Errorf("%w: redis address is required", ErrInvalidConfig)
		}
		l.client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	l.logger.Info("redis rate limiter created",
		zap.Int("limit", l.limit),
		zap.Duration("window", l.window),
	)

	return l, nil
}

// Allow counts one request against key's current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	raw, err := fixedWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.limit,
		l.window.Milliseconds(),
		l.now().UnixMilli(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return parseScriptResult(raw, l.limit)
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return nil
}

// Close closes the Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// parseScriptResult parses [allowed, remaining, reset_ms].
func parseScriptResult(result interface{}, limit int) (*Result, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected script result format: %v", result)
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	resetMs, _ := values[2].(int64)

	res := &Result{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: int(remaining),
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration(resetMs) * time.Millisecond
	}
	return res, nil
}
