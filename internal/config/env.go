package config

import (
	"fmt"
	"strings"
	"time"
)

// Environment variables read by ApplyEnvironment.
const (
	EnvNodeEnv              = "NODE_ENV"
	EnvInternalAPIKey       = "INTERNAL_API_KEY"
	EnvMemoryAPISecret      = "MEMORY_API_SECRET"
	EnvJWTSecret            = "JWT_SECRET"
	EnvJWTJWKSURL           = "JWT_JWKS_URL"
	EnvJWTIssuer            = "JWT_ISSUER"
	EnvJWTAudience          = "JWT_AUDIENCE"
	EnvTenantClaim          = "TENANT_CLAIM"
	EnvListenAddr           = "GATEWAY_LISTEN_ADDR"
	EnvUpstreamTimeout      = "UPSTREAM_TIMEOUT"
	EnvVaultAddr            = "VAULT_ADDR"
	EnvVaultToken           = "VAULT_TOKEN"
	EnvVaultInternalKeyPath = "VAULT_INTERNAL_KEY_PATH"
	EnvRedisAddr            = "REDIS_ADDR"
	EnvTrustedProxies       = "RATE_LIMIT_TRUSTED_PROXIES"
	EnvLogLevel             = "GATEWAY_LOG_LEVEL"
	EnvLogFormat            = "GATEWAY_LOG_FORMAT"
)

// ModeFromNodeEnv maps a NODE_ENV value to a deployment mode. Only
// "development" and "dev" select dev; anything else, including an empty
// value, selects prod.
func ModeFromNodeEnv(nodeEnv string) string {
	switch strings.ToLower(strings.TrimSpace(nodeEnv)) {
	case "development", ModeDev:
		return ModeDev
	default:
		return ModeProd
	}
}

// ApplyEnvironment overlays environment variables onto cfg. Non-empty
// variables win over file values. Backend URLs are resolved separately by
// the backend locator.
func ApplyEnvironment(cfg *GatewayConfig, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := lookup(EnvNodeEnv); ok {
		cfg.Mode = ModeFromNodeEnv(v)
	} else if cfg.Mode != "" {
		cfg.Mode = ModeFromNodeEnv(cfg.Mode)
	}

	if v, ok := get(EnvListenAddr); ok {
		cfg.Listen.Address = v
	}

	if v, ok := get(EnvInternalAPIKey); ok {
		cfg.ServiceIdentity.InternalAPIKey = Secret(v)
	}
	if v, ok := get(EnvMemoryAPISecret); ok {
		cfg.ServiceIdentity.LegacySecret = Secret(v)
	}

	if v, ok := get(EnvJWTSecret); ok {
		cfg.Auth.JWT.Secret = Secret(v)
	}
	if v, ok := get(EnvJWTJWKSURL); ok {
		cfg.Auth.JWT.JWKSURL = v
	}
	if v, ok := get(EnvJWTIssuer); ok {
		cfg.Auth.JWT.Issuer = v
	}
	if v, ok := get(EnvJWTAudience); ok {
		cfg.Auth.JWT.Audience = v
	}
	if v, ok := get(EnvTenantClaim); ok {
		cfg.Auth.TenantClaim = v
	}

	if v, ok := get(EnvUpstreamTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvUpstreamTimeout, v, err)
		}
		cfg.Upstream.Timeout = Duration(d)
	}

	if addr, ok := get(EnvVaultAddr); ok {
		if cfg.ServiceIdentity.Vault == nil {
			cfg.ServiceIdentity.Vault = &VaultConfig{}
		}
		cfg.ServiceIdentity.Vault.Address = addr
	}
	if vault := cfg.ServiceIdentity.Vault; vault != nil {
		if v, ok := get(EnvVaultToken); ok {
			vault.Token = Secret(v)
		}
		if v, ok := get(EnvVaultInternalKeyPath); ok {
			vault.Path = v
		}
	}

	if v, ok := get(EnvRedisAddr); ok {
		cfg.RateLimit.Redis.Address = v
	}
	if v, ok := get(EnvTrustedProxies); ok {
		cfg.RateLimit.TrustedProxies = splitList(v)
	}

	if v, ok := get(EnvLogLevel); ok {
		cfg.Observability.Logging.Level = v
	}
	if v, ok := get(EnvLogFormat); ok {
		cfg.Observability.Logging.Format = v
	}

	return nil
}

// splitList splits a comma separated value and drops blank entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
