package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfigYAML = `
listen:
  address: ":8080"
mode: dev
backends:
  orchestrator:
    url: http://orchestrator.internal:4000
auth:
  jwt:
    secret: ${TEST_JWT_SECRET:-fallback-secret}
    issuer: https://issuer.example
  tenantClaim: org_id
upstream:
  timeout: 3s
  circuitBreaker:
    failureRatio: 0.25
rateLimit:
  enabled: true
  type: redis
  redis:
    address: ${REDIS_ADDR}
`

func TestBuild_DefaultsOnly(t *testing.T) {
	t.Parallel()

	cfg, err := Build("", MapLookup(map[string]string{EnvJWTSecret: "s"}))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.Listen.Address)
	assert.Equal(t, ModeProd, cfg.Mode)
	assert.Equal(t, DefaultTenantClaim, cfg.Auth.TenantClaim)
	assert.Equal(t, DefaultSkipPaths, cfg.Auth.SkipPaths)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.Upstream.Timeout.Duration())
	assert.Equal(t, DefaultBreakerFailureRatio, cfg.Upstream.CircuitBreaker.FailureRatio)
	assert.True(t, cfg.Upstream.CircuitBreaker.IsEnabled())
	assert.True(t, cfg.Agent.EnforcesResponseTenant())
	assert.True(t, cfg.ServiceIdentity.AttachKey())
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Nil(t, cfg.ServiceIdentity.Vault)
	assert.Empty(t, cfg.Backends.Orchestrator.URL)
}

func TestBuild_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigYAML), 0o600))

	cfg, err := Build(path, MapLookup(map[string]string{
		EnvRedisAddr: "redis:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen.Address)
	assert.Equal(t, ModeDev, cfg.Mode)
	assert.Equal(t, "http://orchestrator.internal:4000", cfg.Backends.Orchestrator.URL)
	assert.Equal(t, "fallback-secret", cfg.Auth.JWT.Secret.Value())
	assert.Equal(t, "org_id", cfg.Auth.TenantClaim)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout.Duration())
	assert.Equal(t, 0.25, cfg.Upstream.CircuitBreaker.FailureRatio)
	assert.Equal(t, "redis:6379", cfg.RateLimit.Redis.Address)
}

func TestBuild_EnvironmentOverridesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigYAML), 0o600))

	cfg, err := Build(path, MapLookup(map[string]string{
		"TEST_JWT_SECRET":  "from-env",
		EnvNodeEnv:         "production",
		EnvRedisAddr:       "redis:6379",
		EnvUpstreamTimeout: "750ms",
		EnvTenantClaim:     "tid",
		EnvInternalAPIKey:  "ik",
		EnvTrustedProxies:  " 10.0.0.0/8, ,192.168.1.5 ",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.5"}, cfg.RateLimit.TrustedProxies)

	assert.Equal(t, "from-env", cfg.Auth.JWT.Secret.Value())
	assert.Equal(t, ModeProd, cfg.Mode)
	assert.Equal(t, 750*time.Millisecond, cfg.Upstream.Timeout.Duration())
	assert.Equal(t, "tid", cfg.Auth.TenantClaim)
	assert.Equal(t, "ik", cfg.ServiceIdentity.InternalAPIKey.Value())
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "no verification key",
			env:     map[string]string{},
			wantErr: "auth.jwt",
		},
		{
			name:    "invalid upstream timeout",
			env:     map[string]string{EnvJWTSecret: "s", EnvUpstreamTimeout: "soon"},
			wantErr: EnvUpstreamTimeout,
		},
		{
			name:    "vault without token",
			env:     map[string]string{EnvJWTSecret: "s", EnvVaultAddr: "http://vault:8200", EnvVaultInternalKeyPath: "gw"},
			wantErr: "serviceIdentity.vault.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Build("", MapLookup(tt.env))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Build(filepath.Join(t.TempDir(), "missing.yaml"), MapLookup(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestModeFromNodeEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"development", ModeDev},
		{"Development", ModeDev},
		{"dev", ModeDev},
		{"production", ModeProd},
		{"test", ModeProd},
		{"", ModeProd},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ModeFromNodeEnv(tt.in))
		})
	}
}

func TestApplyEnvironment_Vault(t *testing.T) {
	t.Parallel()

	cfg := &GatewayConfig{}
	require.NoError(t, ApplyEnvironment(cfg, MapLookup(map[string]string{
		EnvVaultAddr:            "http://vault:8200",
		EnvVaultToken:           "root",
		EnvVaultInternalKeyPath: "tenantgw/service",
	})))
	applyDefaults(cfg)

	require.NotNil(t, cfg.ServiceIdentity.Vault)
	assert.Equal(t, "http://vault:8200", cfg.ServiceIdentity.Vault.Address)
	assert.Equal(t, "root", cfg.ServiceIdentity.Vault.Token.Value())
	assert.Equal(t, "tenantgw/service", cfg.ServiceIdentity.Vault.Path)
	assert.Equal(t, DefaultVaultMount, cfg.ServiceIdentity.Vault.Mount)
	assert.Equal(t, DefaultVaultField, cfg.ServiceIdentity.Vault.Field)
}

func TestApplyEnvironment_BlankValuesIgnored(t *testing.T) {
	t.Parallel()

	cfg := &GatewayConfig{Listen: ListenConfig{Address: ":9000"}}
	require.NoError(t, ApplyEnvironment(cfg, MapLookup(map[string]string{
		EnvListenAddr:     "   ",
		EnvInternalAPIKey: "",
	})))

	assert.Equal(t, ":9000", cfg.Listen.Address)
	assert.False(t, cfg.ServiceIdentity.InternalAPIKey.IsSet())
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Parallel()

	lookup := MapLookup(map[string]string{"HOST": "db", "EMPTY": ""})

	tests := []struct {
		in   string
		want string
	}{
		{"${HOST}", "db"},
		{"${MISSING:-fallback}", "fallback"},
		{"${EMPTY:-fallback}", ""},
		{"${MISSING}", ""},
		{"$${HOST}", "${HOST}"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, substituteEnvVars(tt.in, lookup), tt.in)
	}
}

func TestSecret_NeverPrinted(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ServiceIdentity.InternalAPIKey = "super-secret-key"
	cfg.ServiceIdentity.LegacySecret = "legacy-secret"

	jsonOut, err := json.Marshal(cfg)
	require.NoError(t, err)
	yamlOut, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	printed := fmt.Sprintf("%v %+v %#v", cfg, cfg.ServiceIdentity, cfg.ServiceIdentity)

	for _, out := range []string{string(jsonOut), string(yamlOut), printed} {
		assert.NotContains(t, out, "super-secret-key")
		assert.NotContains(t, out, "legacy-secret")
	}
	assert.True(t, strings.Contains(string(jsonOut), redacted))
	assert.Equal(t, "super-secret-key", cfg.ServiceIdentity.InternalAPIKey.Value())
}

func TestDuration_Decode(t *testing.T) {
	t.Parallel()

	var out struct {
		Timeout Duration `yaml:"timeout" json:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`timeout: 1m30s`), &out))
	assert.Equal(t, 90*time.Second, out.Timeout.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"250ms"}`), &out))
	assert.Equal(t, 250*time.Millisecond, out.Timeout.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":null}`), &out))
	assert.Zero(t, out.Timeout)

	assert.Error(t, yaml.Unmarshal([]byte(`timeout: later`), &out))
	assert.Equal(t, 5*time.Second, Duration(0).OrDefault(5*time.Second))
}

func TestValidator(t *testing.T) {
	t.Parallel()

	valid := func() *GatewayConfig {
		cfg := DefaultConfig()
		cfg.Auth.JWT.Secret = "s"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*GatewayConfig) {}},
		{name: "bad mode", mutate: func(c *GatewayConfig) { c.Mode = "staging" }, wantErr: "mode"},
		{
			name:    "bad backend scheme",
			mutate:  func(c *GatewayConfig) { c.Backends.Agent.URL = "ftp://agent" },
			wantErr: "backends.agent.url",
		},
		{
			name:    "skip path without slash",
			mutate:  func(c *GatewayConfig) { c.Auth.SkipPaths = []string{"auth/login"} },
			wantErr: "auth.skipPaths[0]",
		},
		{
			name:    "skip path with dot segment",
			mutate:  func(c *GatewayConfig) { c.Auth.SkipPaths = []string{"/auth/../inbox"} },
			wantErr: "auth.skipPaths[0]",
		},
		{
			name:    "skip path with empty segment",
			mutate:  func(c *GatewayConfig) { c.Auth.SkipPaths = []string{"/auth//login"} },
			wantErr: "auth.skipPaths[0]",
		},
		{
			name:   "skip path with trailing slash",
			mutate: func(c *GatewayConfig) { c.Auth.SkipPaths = []string{"/auth/login/"} },
		},
		{
			name: "trusted proxy not an address",
			mutate: func(c *GatewayConfig) {
				c.RateLimit.Enabled = true
				c.RateLimit.Type = RateLimitTypeMemory
				c.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "lb.internal"}
			},
			wantErr: "rateLimit.trustedProxies[1]",
		},
		{
			name:    "failure ratio above one",
			mutate:  func(c *GatewayConfig) { c.Upstream.CircuitBreaker.FailureRatio = 1.5 },
			wantErr: "failureRatio",
		},
		{
			name: "redis limiter without address",
			mutate: func(c *GatewayConfig) {
				c.RateLimit.Enabled = true
				c.RateLimit.Type = RateLimitTypeRedis
			},
			wantErr: "rateLimit.redis.address",
		},
		{
			name: "unknown limiter",
			mutate: func(c *GatewayConfig) {
				c.RateLimit.Enabled = true
				c.RateLimit.Type = "leaky"
			},
			wantErr: "rateLimit.type",
		},
		{
			name:    "sampling rate",
			mutate:  func(c *GatewayConfig) { c.Observability.Tracing.SamplingRate = 2 },
			wantErr: "samplingRate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "a: b", ValidationErrors{{Path: "a", Message: "b"}}.Error())

	multi := ValidationErrors{{Path: "a", Message: "b"}, {Message: "c"}}.Error()
	assert.Contains(t, multi, "2 validation errors")
	assert.Contains(t, multi, "2. c")
}
