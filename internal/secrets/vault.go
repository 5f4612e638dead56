package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Vault provider defaults.
const (
	DefaultVaultMount    = "secret"
	DefaultVaultTimeout  = 5 * time.Second
	DefaultVaultCacheTTL = 5 * time.Minute
)

// VaultProviderConfig holds configuration for the Vault secrets provider
type VaultProviderConfig struct {
	// Address is the Vault server address
	Address string
	// Token is the Vault token
	Token string
	// Mount is the KV v2 secrets engine mount point
	Mount string
	// Timeout is the request timeout
	Timeout time.Duration
	// CacheTTL is how long a read secret is reused. Zero disables caching.
	CacheTTL time.Duration
	// MaxRetries is the number of retries on 5xx responses
	MaxRetries int
}

// VaultProvider reads secrets from a Vault KV v2 engine using token auth.
type VaultProvider struct {
	client  *vaultapi.Client
	mount   string
	cache   *secretCache
	logger  observability.Logger
	metrics *Metrics
}

var _ Provider = (*VaultProvider)(nil)

// VaultOption is a functional option for the Vault provider.
type VaultOption func(*VaultProvider)

// WithVaultLogger sets the logger.
func WithVaultLogger(logger observability.Logger) VaultOption {
	return func(p *VaultProvider) {
		p.logger = logger
	}
}

// WithVaultMetrics sets the metrics.
func WithVaultMetrics(metrics *Metrics) VaultOption {
	return func(p *VaultProvider) {
		p.metrics = metrics
	}
}

// NewVaultProvider creates a new Vault secrets provider. No request is made
// until the first read.
func NewVaultProvider(cfg *VaultProviderConfig, opts ...VaultOption) (*VaultProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", ErrProviderNotConfigured)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: vault token is required", ErrProviderNotConfigured)
	}

	apiConfig := vaultapi.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, fmt.Errorf("failed to build vault config: %w", apiConfig.Error)
	}
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = cfg.Timeout
	if apiConfig.Timeout <= 0 {
		apiConfig.Timeout = DefaultVaultTimeout
	}
	apiConfig.MaxRetries = cfg.MaxRetries

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = DefaultVaultMount
	}

	p := &VaultProvider{
		client: client,
		mount:  mount,
		cache:  newSecretCache(cfg.CacheTTL),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Info("vault secrets provider initialized",
		observability.URL("address", cfg.Address),
		zap.String("mount", mount),
	)

	return p, nil
}

// Type returns the provider type
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret reads the latest version of the KV v2 secret at path.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil, ErrInvalidPath
	}

	if secret, ok := p.cache.get(path); ok {
		p.metrics.recordCache(true)
		return secret, nil
	}
	p.metrics.recordCache(false)

	start := time.Now()
	secret, err := p.read(ctx, path)
	p.metrics.RecordOperation(ProviderTypeVault, "get", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	p.cache.set(path, secret)
	return secret, nil
}

func (p *VaultProvider) read(ctx context.Context, path string) (*Secret, error) {
	fullPath := fmt.Sprintf("%s/data/%s", p.mount, path)

	resp, err := p.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data, ok := resp.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	secret := &Secret{
		Name: path,
		Data: make(map[string][]byte, len(data)),
	}
	for k, v := range data {
		switch t := v.(type) {
		case string:
			secret.Data[k] = []byte(t)
		case nil:
		default:
			secret.Data[k] = []byte(fmt.Sprint(t))
		}
	}

	if meta, ok := resp.Data["metadata"].(map[string]interface{}); ok {
		switch version := meta["version"].(type) {
		case json.Number:
			secret.Version = version.String()
		case float64:
			secret.Version = fmt.Sprintf("%.0f", version)
		}
	}

	return secret, nil
}

// HealthCheck checks that Vault is reachable, initialized and unsealed.
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	health, err := p.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("%w: vault sealed or uninitialized", ErrProviderUnavailable)
	}
	return nil
}

// Invalidate drops every cached secret.
func (p *VaultProvider) Invalidate() {
	p.cache.clear()
}

// Close drops cached secrets and clears the client token.
func (p *VaultProvider) Close() error {
	p.cache.clear()
	p.client.ClearToken()
	return nil
}

// IsNotFound reports whether err means the secret or field does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSecretNotFound)
}
