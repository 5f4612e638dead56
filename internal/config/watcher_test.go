package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

const watchedConfigYAML = `
auth:
  jwt:
    secret: watched
  tenantClaim: %s
`

func writeWatchedConfig(t *testing.T, path, claim string) {
	t.Helper()
	content := fmt.Sprintf(watchedConfigYAML, claim)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewWatcher_Options(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeWatchedConfig(t, path, "tenant_id")

	w, err := NewWatcher(path, MapLookup(nil), func(*GatewayConfig) {},
		WithDebounceDelay(5*time.Millisecond),
		WithLogger(observability.NopLogger()),
		WithErrorCallback(func(error) {}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	assert.Equal(t, 5*time.Millisecond, w.debounceDelay)
	assert.NotNil(t, w.errorCallback)
	assert.Nil(t, w.LastConfig())
}

func TestWatcher_StartAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeWatchedConfig(t, path, "tenant_id")

	var latest atomic.Pointer[GatewayConfig]
	w, err := NewWatcher(path, MapLookup(nil), func(cfg *GatewayConfig) {
		latest.Store(cfg)
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	require.NotNil(t, w.LastConfig())
	assert.Equal(t, "tenant_id", w.LastConfig().Auth.TenantClaim)

	writeWatchedConfig(t, path, "org_id")

	require.Eventually(t, func() bool {
		cfg := latest.Load()
		return cfg != nil && cfg.Auth.TenantClaim == "org_id"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "org_id", w.LastConfig().Auth.TenantClaim)
}

func TestWatcher_InvalidReloadKeepsSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeWatchedConfig(t, path, "tenant_id")

	var errs atomic.Int32
	w, err := NewWatcher(path, MapLookup(nil), nil,
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(func(error) { errs.Add(1) }),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("auth: [not, a, map"), 0o600))

	require.Eventually(t, func() bool { return errs.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tenant_id", w.LastConfig().Auth.TenantClaim)
}

func TestWatcher_StartFailsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: staging\n"), 0o600))

	w, err := NewWatcher(path, MapLookup(nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_ForceReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeWatchedConfig(t, path, "tenant_id")

	var calls atomic.Int32
	w, err := NewWatcher(path, MapLookup(nil), func(*GatewayConfig) { calls.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, w.ForceReload())
	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, w.LastConfig())
}
