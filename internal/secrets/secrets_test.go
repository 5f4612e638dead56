package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVaultToken = "s.test-token"

// fakeVault serves a KV v2 mount named "secret".
type fakeVault struct {
	server *httptest.Server
	reads  atomic.Int32
	sealed atomic.Bool
	data   map[string]map[string]interface{}
}

func newFakeVault(t *testing.T) *fakeVault {
	t.Helper()

	fv := &fakeVault{data: map[string]map[string]interface{}{
		"tenantgw/service": {"internal_api_key": "vault-key", "rotation": 3},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"initialized": true,
			"sealed":      fv.sealed.Load(),
		})
	})
	mux.HandleFunc("/v1/secret/data/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != testVaultToken {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		fv.reads.Add(1)

		path := r.URL.Path[len("/v1/secret/data/"):]
		data, ok := fv.data[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     data,
				"metadata": map[string]interface{}{"version": 7},
			},
		})
	})

	fv.server = httptest.NewServer(mux)
	t.Cleanup(fv.server.Close)
	return fv
}

func TestVaultProvider_GetSecret(t *testing.T) {
	t.Parallel()

	fv := newFakeVault(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	p, err := NewVaultProvider(&VaultProviderConfig{
		Address:  fv.server.URL,
		Token:    testVaultToken,
		CacheTTL: time.Minute,
	}, WithVaultMetrics(metrics))
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeVault, p.Type())

	secret, err := p.GetSecret(context.Background(), "/tenantgw/service/")
	require.NoError(t, err)

	key, ok := secret.GetString("internal_api_key")
	assert.True(t, ok)
	assert.Equal(t, "vault-key", key)
	rotation, _ := secret.GetString("rotation")
	assert.Equal(t, "3", rotation)
	assert.Equal(t, "7", secret.Version)

	// Cached.
	_, err = p.GetSecret(context.Background(), "tenantgw/service")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fv.reads.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))

	p.Invalidate()
	_, err = p.GetSecret(context.Background(), "tenantgw/service")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fv.reads.Load())
}

func TestVaultProvider_Errors(t *testing.T) {
	t.Parallel()

	fv := newFakeVault(t)

	p, err := NewVaultProvider(&VaultProviderConfig{Address: fv.server.URL, Token: testVaultToken})
	require.NoError(t, err)

	_, err = p.GetSecret(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.True(t, IsNotFound(err))

	_, err = p.GetSecret(context.Background(), "  /")
	assert.ErrorIs(t, err, ErrInvalidPath)

	denied, err := NewVaultProvider(&VaultProviderConfig{Address: fv.server.URL, Token: "wrong"})
	require.NoError(t, err)
	_, err = denied.GetSecret(context.Background(), "tenantgw/service")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestVaultProvider_NoCacheByDefault(t *testing.T) {
	t.Parallel()

	fv := newFakeVault(t)
	p, err := NewVaultProvider(&VaultProviderConfig{Address: fv.server.URL, Token: testVaultToken})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = p.GetSecret(context.Background(), "tenantgw/service")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), fv.reads.Load())
	assert.NoError(t, p.Close())
}

func TestVaultProvider_HealthCheck(t *testing.T) {
	t.Parallel()

	fv := newFakeVault(t)
	p, err := NewVaultProvider(&VaultProviderConfig{Address: fv.server.URL, Token: testVaultToken})
	require.NoError(t, err)
	assert.NoError(t, p.HealthCheck(context.Background()))

	fv.sealed.Store(true)
	assert.ErrorIs(t, p.HealthCheck(context.Background()), ErrProviderUnavailable)
}

func TestNewVaultProvider_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewVaultProvider(nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = NewVaultProvider(&VaultProviderConfig{Token: "t"})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = NewVaultProvider(&VaultProviderConfig{Address: "http://vault:8200"})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestEnvProvider(t *testing.T) {
	t.Parallel()

	p := NewEnvProvider(map[string]string{
		"INTERNAL_API_KEY": "k1",
		"BLANK":            "  ",
		"JSON":             `{"user":"u","password":"p"}`,
	})
	assert.Equal(t, ProviderTypeEnv, p.Type())

	secret, err := p.GetSecret(context.Background(), "INTERNAL_API_KEY")
	require.NoError(t, err)
	v, ok := secret.GetString(DefaultValueKey)
	assert.True(t, ok)
	assert.Equal(t, "k1", v)

	secret, err = p.GetSecret(context.Background(), "JSON")
	require.NoError(t, err)
	v, _ = secret.GetString("password")
	assert.Equal(t, "p", v)
	v, _ = secret.GetString(DefaultValueKey)
	assert.Equal(t, `{"user":"u","password":"p"}`, v)

	_, err = p.GetSecret(context.Background(), "BLANK")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	_, err = p.GetSecret(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.NoError(t, p.HealthCheck(context.Background()))
	assert.NoError(t, p.Close())
}

func TestEnvProvider_JSONShapedValueKeepsRawValue(t *testing.T) {
	t.Parallel()

	raw := `{"kid":"k-2024","value":"nested"}`
	p := NewEnvProvider(map[string]string{"INTERNAL_API_KEY": raw})

	secret, err := p.GetSecret(context.Background(), "INTERNAL_API_KEY")
	require.NoError(t, err)
	v, ok := secret.GetString(DefaultValueKey)
	assert.True(t, ok)
	assert.Equal(t, raw, v)
	v, _ = secret.GetString("kid")
	assert.Equal(t, "k-2024", v)
}

func TestEnvProviderFromLookup_Snapshot(t *testing.T) {
	t.Parallel()

	env := map[string]string{"MEMORY_API_SECRET": "legacy"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	p := EnvProviderFromLookup(lookup, "MEMORY_API_SECRET", "INTERNAL_API_KEY")
	env["MEMORY_API_SECRET"] = "changed"
	env["INTERNAL_API_KEY"] = "late"

	secret, err := p.GetSecret(context.Background(), "MEMORY_API_SECRET")
	require.NoError(t, err)
	v, _ := secret.GetString(DefaultValueKey)
	assert.Equal(t, "legacy", v)

	_, err = p.GetSecret(context.Background(), "INTERNAL_API_KEY")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestSecretCache_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newSecretCache(time.Minute)
	c.now = func() time.Time { return now }

	c.set("a", &Secret{Name: "a"})
	_, ok := c.get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("a")
	assert.False(t, ok)

	c.set("b", &Secret{Name: "b"})
	assert.Len(t, c.entries, 1)

	disabled := newSecretCache(0)
	disabled.set("a", &Secret{})
	_, ok = disabled.get("a")
	assert.False(t, ok)

	var nilSecret *Secret
	_, ok = nilSecret.GetString("x")
	assert.False(t, ok)
}
