package main

import (
	"github.com/vyrodovalexey/tenantgw/internal/config"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/ratelimit"
	"github.com/vyrodovalexey/tenantgw/internal/secrets"
)

// vaultMaxRetries bounds retries on 5xx responses from Vault.
const vaultMaxRetries = 2

// newVaultProvider creates the Vault provider when cfg is set. A nil
// provider means the credential chain skips Vault.
func newVaultProvider(
	cfg *config.VaultConfig,
	logger observability.Logger,
	metrics *secrets.Metrics,
) (*secrets.VaultProvider, error) {
	if cfg == nil {
		return nil, nil
	}

	return secrets.NewVaultProvider(&secrets.VaultProviderConfig{
		Address:    cfg.Address,
		Token:      cfg.Token.Value(),
		Mount:      cfg.Mount,
		Timeout:    cfg.Timeout.Duration(),
		CacheTTL:   cfg.CacheTTL.Duration(),
		MaxRetries: vaultMaxRetries,
	},
		secrets.WithVaultLogger(logger),
		secrets.WithVaultMetrics(metrics),
	)
}

// newRateLimiter creates the inbound limiter, or returns nil when rate
// limiting is disabled.
func newRateLimiter(cfg config.RateLimitConfig, logger observability.Logger) (ratelimit.Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		Type:              ratelimit.Type(cfg.Type),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Window:            cfg.Window.Duration(),
		Redis: ratelimit.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password.Value(),
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("rate limiting enabled",
		observability.String("type", cfg.Type),
		observability.Any("requests_per_second", cfg.RequestsPerSecond),
	)
	return limiter, nil
}
