package config

import "time"

// Deployment modes.
const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

// Rate limiter types.
const (
	RateLimitTypeMemory = "memory"
	RateLimitTypeRedis  = "redis"
)

// Defaults.
const (
	DefaultListenAddress       = ":3000"
	DefaultOrchestratorURL     = "http://localhost:4000"
	DefaultAgentURL            = "http://localhost:8000"
	DefaultTenantClaim         = "tenant_id"
	DefaultClockSkew           = 30 * time.Second
	DefaultJWKSRefreshInterval = 15 * time.Minute
	DefaultUpstreamTimeout     = 10 * time.Second
	DefaultMaxBodyBytes        = 10 << 20
	DefaultBreakerFailureRatio = 0.5
	DefaultBreakerMinRequests  = 5
	DefaultBreakerOpenTimeout  = 30 * time.Second
	DefaultBreakerInterval     = 60 * time.Second
	DefaultVaultMount          = "secret"
	DefaultVaultField          = "internal_api_key"
	DefaultVaultCacheTTL       = 5 * time.Minute
	DefaultVaultTimeout        = 5 * time.Second
	DefaultRateLimitRPS        = 50
	DefaultRateLimitBurst      = 100
	DefaultRateLimitWindow     = time.Second
	DefaultRedisKeyPrefix      = "tenantgw:ratelimit:"
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultServiceName         = "tenantgw"
)

// DefaultSkipPaths are orchestrator paths reachable without a verified token.
var DefaultSkipPaths = []string{"/auth/login", "/auth/register", "/auth/refresh"}

// GatewayConfig is an immutable configuration snapshot.
type GatewayConfig struct {
	Listen          ListenConfig          `yaml:"listen" json:"listen"`
	Mode            string                `yaml:"mode,omitempty" json:"mode,omitempty"`
	Backends        BackendsConfig        `yaml:"backends" json:"backends"`
	Auth            AuthConfig            `yaml:"auth" json:"auth"`
	ServiceIdentity ServiceIdentityConfig `yaml:"serviceIdentity" json:"serviceIdentity"`
	Upstream        UpstreamConfig        `yaml:"upstream" json:"upstream"`
	Agent           AgentConfig           `yaml:"agent" json:"agent"`
	RateLimit       RateLimitConfig       `yaml:"rateLimit" json:"rateLimit"`
	Observability   ObservabilityConfig   `yaml:"observability" json:"observability"`
}

// ListenConfig configures the inbound HTTP listener.
type ListenConfig struct {
	Address         string   `yaml:"address,omitempty" json:"address,omitempty"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
}

// BackendsConfig holds the two upstream targets.
type BackendsConfig struct {
	Orchestrator BackendConfig `yaml:"orchestrator" json:"orchestrator"`
	Agent        BackendConfig `yaml:"agent" json:"agent"`
}

// BackendConfig configures one upstream target.
type BackendConfig struct {
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// AuthConfig configures caller authentication.
type AuthConfig struct {
	JWT         JWTConfig `yaml:"jwt" json:"jwt"`
	TenantClaim string    `yaml:"tenantClaim,omitempty" json:"tenantClaim,omitempty"`
	// SkipPaths are orchestrator paths (relative to /api/orchestrator) that
	// bypass token verification. A nil slice selects DefaultSkipPaths.
	SkipPaths []string `yaml:"skipPaths,omitempty" json:"skipPaths,omitempty"`
}

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	Secret          Secret   `yaml:"secret,omitempty" json:"secret,omitempty"`
	JWKSURL         string   `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`
	Issuer          string   `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience        string   `yaml:"audience,omitempty" json:"audience,omitempty"`
	ClockSkew       Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`
	RefreshInterval Duration `yaml:"refreshInterval,omitempty" json:"refreshInterval,omitempty"`
}

// ServiceIdentityConfig configures gateway-initiated service calls.
type ServiceIdentityConfig struct {
	// AttachInternalKey controls whether a service credential is attached
	// to agent calls. Nil means true.
	AttachInternalKey *bool        `yaml:"attachInternalKey,omitempty" json:"attachInternalKey,omitempty"`
	InternalAPIKey    Secret       `yaml:"internalApiKey,omitempty" json:"internalApiKey,omitempty"`
	LegacySecret      Secret       `yaml:"legacySecret,omitempty" json:"legacySecret,omitempty"`
	Vault             *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// AttachKey returns the effective AttachInternalKey value.
func (c ServiceIdentityConfig) AttachKey() bool {
	return c.AttachInternalKey == nil || *c.AttachInternalKey
}

// VaultConfig locates the internal API key in a Vault KV v2 engine.
type VaultConfig struct {
	Address  string   `yaml:"address,omitempty" json:"address,omitempty"`
	Token    Secret   `yaml:"token,omitempty" json:"token,omitempty"`
	Mount    string   `yaml:"mount,omitempty" json:"mount,omitempty"`
	Path     string   `yaml:"path,omitempty" json:"path,omitempty"`
	Field    string   `yaml:"field,omitempty" json:"field,omitempty"`
	CacheTTL Duration `yaml:"cacheTTL,omitempty" json:"cacheTTL,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// UpstreamConfig configures outbound calls.
type UpstreamConfig struct {
	Timeout          Duration             `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxResponseBytes int64                `yaml:"maxResponseBytes,omitempty" json:"maxResponseBytes,omitempty"`
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
}

// CircuitBreakerConfig configures the per-target breaker.
type CircuitBreakerConfig struct {
	// Enabled defaults to true when nil.
	Enabled      *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	FailureRatio float64  `yaml:"failureRatio,omitempty" json:"failureRatio,omitempty"`
	MinRequests  uint32   `yaml:"minRequests,omitempty" json:"minRequests,omitempty"`
	OpenTimeout  Duration `yaml:"openTimeout,omitempty" json:"openTimeout,omitempty"`
	Interval     Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

// IsEnabled returns the effective Enabled value.
func (c CircuitBreakerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// AgentConfig configures the agent route.
type AgentConfig struct {
	// EnforceResponseTenant defaults to true when nil.
	EnforceResponseTenant *bool `yaml:"enforceResponseTenant,omitempty" json:"enforceResponseTenant,omitempty"`
}

// EnforcesResponseTenant returns the effective EnforceResponseTenant value.
func (c AgentConfig) EnforcesResponseTenant() bool {
	return c.EnforceResponseTenant == nil || *c.EnforceResponseTenant
}

// RateLimitConfig configures inbound rate limiting. TrustedProxies lists
// the CIDRs or addresses whose X-Forwarded-For header names the client;
// when empty, the peer address is the rate limit key.
type RateLimitConfig struct {
	Enabled           bool        `yaml:"enabled" json:"enabled"`
	Type              string      `yaml:"type,omitempty" json:"type,omitempty"`
	RequestsPerSecond float64     `yaml:"requestsPerSecond,omitempty" json:"requestsPerSecond,omitempty"`
	Burst             int         `yaml:"burst,omitempty" json:"burst,omitempty"`
	Window            Duration    `yaml:"window,omitempty" json:"window,omitempty"`
	TrustedProxies    []string    `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
	Redis             RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the Redis-backed limiter.
type RedisConfig struct {
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	Password  Secret `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// ObservabilityConfig configures logging, tracing and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every zero field with its default. Backend URLs are
// left alone; the backend locator owns their fallback chain.
func applyDefaults(cfg *GatewayConfig) {
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = DefaultListenAddress
	}
	if cfg.Listen.ShutdownTimeout <= 0 {
		cfg.Listen.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if cfg.Listen.MaxBodyBytes <= 0 {
		cfg.Listen.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeProd
	}

	if cfg.Auth.TenantClaim == "" {
		cfg.Auth.TenantClaim = DefaultTenantClaim
	}
	if cfg.Auth.SkipPaths == nil {
		cfg.Auth.SkipPaths = append([]string(nil), DefaultSkipPaths...)
	}
	if cfg.Auth.JWT.ClockSkew <= 0 {
		cfg.Auth.JWT.ClockSkew = Duration(DefaultClockSkew)
	}
	if cfg.Auth.JWT.RefreshInterval <= 0 {
		cfg.Auth.JWT.RefreshInterval = Duration(DefaultJWKSRefreshInterval)
	}

	if v := cfg.ServiceIdentity.Vault; v != nil {
		if v.Mount == "" {
			v.Mount = DefaultVaultMount
		}
		if v.Field == "" {
			v.Field = DefaultVaultField
		}
		if v.CacheTTL <= 0 {
			v.CacheTTL = Duration(DefaultVaultCacheTTL)
		}
		if v.Timeout <= 0 {
			v.Timeout = Duration(DefaultVaultTimeout)
		}
	}

	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = Duration(DefaultUpstreamTimeout)
	}
	if cfg.Upstream.MaxResponseBytes <= 0 {
		cfg.Upstream.MaxResponseBytes = DefaultMaxBodyBytes
	}
	cb := &cfg.Upstream.CircuitBreaker
	if cb.FailureRatio <= 0 {
		cb.FailureRatio = DefaultBreakerFailureRatio
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = DefaultBreakerMinRequests
	}
	if cb.OpenTimeout <= 0 {
		cb.OpenTimeout = Duration(DefaultBreakerOpenTimeout)
	}
	if cb.Interval <= 0 {
		cb.Interval = Duration(DefaultBreakerInterval)
	}

	rl := &cfg.RateLimit
	if rl.Type == "" {
		rl.Type = RateLimitTypeMemory
	}
	if rl.RequestsPerSecond <= 0 {
		rl.RequestsPerSecond = DefaultRateLimitRPS
	}
	if rl.Burst <= 0 {
		rl.Burst = DefaultRateLimitBurst
	}
	if rl.Window <= 0 {
		rl.Window = Duration(DefaultRateLimitWindow)
	}
	if rl.Redis.KeyPrefix == "" {
		rl.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	logging := &cfg.Observability.Logging
	if logging.Level == "" {
		logging.Level = "info"
	}
	if logging.Format == "" {
		logging.Format = "json"
	}
	if logging.Output == "" {
		logging.Output = "stdout"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = DefaultServiceName
	}
}
