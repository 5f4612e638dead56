package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryLimiter(1, 2, withClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = l.Close() })

	ctx := context.Background()

	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 1, res.Remaining)

	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, res.Allowed)

	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.False(t, res.Allowed)
	assert.InDelta(t, time.Second, res.RetryAfter, float64(10*time.Millisecond))

	// Other keys have their own bucket.
	res, _ = l.Allow(ctx, "5.6.7.8")
	assert.True(t, res.Allowed)

	now = now.Add(time.Second)
	res, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, res.Allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := NewMemoryLimiter(10, 0, withClock(func() time.Time { return now }), WithCleanup(time.Hour, time.Minute))
	t.Cleanup(func() { _ = l.Close() })

	_, _ = l.Allow(context.Background(), "a")
	now = now.Add(30 * time.Second)
	_, _ = l.Allow(context.Background(), "b")
	assert.Equal(t, 2, l.Len())

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, l.Cleanup(time.Minute))
	assert.Equal(t, 1, l.Len())

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}

func newRedisLimiter(t *testing.T, rps float64, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	l, err := NewRedisLimiter(Config{
		Type:              TypeRedis,
		RequestsPerSecond: rps,
		Window:            window,
		Redis:             RedisConfig{Address: mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLimiter(t, 3, time.Second)
	now := time.UnixMilli(1_700_000_000_000)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	assert.True(t, mr.Exists(DefaultKeyPrefix+"client:1700000000000"))

	now = now.Add(time.Second)
	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLimiter(t, 1, time.Second)
	require.NoError(t, l.Ping(context.Background()))

	mr.Close()

	_, err := l.Allow(context.Background(), "client")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
	assert.ErrorIs(t, l.Ping(context.Background()), ErrRedisUnavailable)
}

func TestRedisLimiter_ExistingClient(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	l, err := NewRedisLimiter(Config{RequestsPerSecond: 1, Window: time.Second, Redis: RedisConfig{KeyPrefix: "custom:"}},
		WithRedisClient(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	res, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.NotEmpty(t, mr.Keys())
	assert.Contains(t, mr.Keys()[0], "custom:k:")
}

func TestNew(t *testing.T) {
	t.Parallel()

	l, err := New(Config{Type: TypeMemory, RequestsPerSecond: 5, Burst: 5}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)
	_ = l.Close()

	_, err = New(Config{Type: TypeMemory}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Type: "leaky", RequestsPerSecond: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Type: TypeRedis, RequestsPerSecond: 1, Window: time.Second}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Type: TypeRedis, RequestsPerSecond: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_WindowLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 50, Config{RequestsPerSecond: 50, Window: time.Second}.WindowLimit())
	assert.Equal(t, 1, Config{RequestsPerSecond: 0.1, Window: time.Second}.WindowLimit())
	assert.Equal(t, 120, Config{RequestsPerSecond: 2, Window: time.Minute}.WindowLimit())
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"ipv6 remote", nil, "[::1]:1234", "::1"},
		{"no port", nil, "10.0.0.2", "10.0.0.2"},
		{"forwarded for ignored", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "10.0.0.1:1", "10.0.0.1"},
		{"real ip ignored", map[string]string{"X-Real-IP": "3.3.3.3"}, "10.0.0.1:1", "10.0.0.1"},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		for k, v := range tt.headers {
			r.Header.Set(k, v)
		}
		assert.Equal(t, tt.want, GetClientIP(r), tt.name)
		assert.Equal(t, tt.want, IPKeyFunc(r), tt.name)
	}
}

func TestClientIPResolver(t *testing.T) {
	t.Parallel()

	resolver, err := NewClientIPResolver("10.0.0.0/8", "192.168.1.5", "::1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"untrusted peer spoofs header", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "8.8.8.8:1", "8.8.8.8"},
		{"trusted peer single hop", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "10.0.0.1:1", "1.1.1.1"},
		{"client prepends a fake hop", map[string]string{"X-Forwarded-For": "9.9.9.9, 1.1.1.1"}, "10.0.0.1:1", "1.1.1.1"},
		{"trusted hops skipped", map[string]string{"X-Forwarded-For": "1.1.1.1, 10.2.3.4, 192.168.1.5"}, "10.0.0.1:1", "1.1.1.1"},
		{"garbage hop stops the walk", map[string]string{"X-Forwarded-For": "1.1.1.1, nonsense"}, "10.0.0.1:1", "10.0.0.1"},
		{"real ip from trusted peer", map[string]string{"X-Real-IP": "3.3.3.3"}, "192.168.1.5:1", "3.3.3.3"},
		{"ipv6 trusted peer", map[string]string{"X-Forwarded-For": "2001:db8::1"}, "[::1]:1", "2001:db8::1"},
		{"trusted peer without headers", nil, "10.0.0.1:1", "10.0.0.1"},
	}

	keyFunc := resolver.KeyFunc()
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		for k, v := range tt.headers {
			r.Header.Set(k, v)
		}
		assert.Equal(t, tt.want, resolver.ClientIP(r), tt.name)
		assert.Equal(t, tt.want, keyFunc(r), tt.name)
	}
}

func TestNewClientIPResolver_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewClientIPResolver("10.0.0.0/33")
	assert.Error(t, err)
	_, err = NewClientIPResolver("proxy.internal")
	assert.Error(t, err)

	empty, err := NewClientIPResolver()
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1"
	r.Header.Set("X-Forwarded-For", "1.1.1.1")
	assert.Equal(t, "10.0.0.1", empty.ClientIP(r))
}
