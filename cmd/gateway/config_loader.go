package main

import (
	"fmt"

	"github.com/vyrodovalexey/tenantgw/internal/config"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// loadConfig builds the configuration snapshot and applies the command
// line overrides on top of it.
func loadConfig(flags cliFlags, lookup config.LookupFunc) (*config.GatewayConfig, error) {
	cfg, err := config.Build(flags.configPath, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if !applyFlagOverrides(cfg, flags) {
		return cfg, nil
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides copies non-empty log flags into cfg and reports
// whether anything changed.
func applyFlagOverrides(cfg *config.GatewayConfig, flags cliFlags) bool {
	changed := false
	if flags.logLevel != "" {
		cfg.Observability.Logging.Level = flags.logLevel
		changed = true
	}
	if flags.logFormat != "" {
		cfg.Observability.Logging.Format = flags.logFormat
		changed = true
	}
	return changed
}

// logConfigSummary logs the shape of the loaded configuration. Secrets
// are reported only as present or absent.
func logConfigSummary(cfg *config.GatewayConfig, logger observability.Logger) {
	logger.Info("configuration loaded",
		observability.String("mode", cfg.Mode),
		observability.String("listen", cfg.Listen.Address),
		observability.String("tenant_claim", cfg.Auth.TenantClaim),
		observability.Int("skip_paths", len(cfg.Auth.SkipPaths)),
		observability.Bool("jwt_secret", cfg.Auth.JWT.Secret.IsSet()),
		observability.Bool("jwks", cfg.Auth.JWT.JWKSURL != ""),
		observability.Bool("internal_api_key", cfg.ServiceIdentity.InternalAPIKey.IsSet()),
		observability.Bool("legacy_secret", cfg.ServiceIdentity.LegacySecret.IsSet()),
		observability.Bool("vault", cfg.ServiceIdentity.Vault != nil),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
		observability.Bool("tracing", cfg.Observability.Tracing.Enabled),
	)
}
