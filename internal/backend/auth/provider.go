package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/tenantgw/internal/secrets"
)

// Environment names of the service credential tiers.
const (
	EnvInternalAPIKey = "INTERNAL_API_KEY"
	EnvLegacySecret   = "MEMORY_API_SECRET"
)

// Kind says how a credential is presented upstream.
type Kind int

const (
	// KindInternalKey is sent as x-internal-api-key.
	KindInternalKey Kind = iota
	// KindLegacyBearer is sent as Authorization: Bearer. Legacy only.
	KindLegacyBearer
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindLegacyBearer {
		return "legacy_bearer"
	}
	return "internal_key"
}

// Credential is a service credential.
type Credential struct {
	Kind  Kind
	Value string
}

// String hides the value.
func (c Credential) String() string {
	return c.Kind.String() + ":[REDACTED]"
}

// GoString hides the value.
func (c Credential) GoString() string {
	return c.String()
}

// CredentialProvider is one tier of the service credential chain.
type CredentialProvider interface {
	// Name identifies the tier in logs and metrics.
	Name() string
	// Credential returns the tier's credential. ok is false when the tier
	// has nothing configured; err is reserved for lookup failures.
	Credential(ctx context.Context) (cred Credential, ok bool, err error)
}

// SecretProvider reads one field of a secret as a credential.
type SecretProvider struct {
	name   string
	source secrets.Provider
	path   string
	field  string
	kind   Kind
}

var _ CredentialProvider = (*SecretProvider)(nil)

// NewSecretProvider creates a tier reading field of the secret at path.
func NewSecretProvider(name string, source secrets.Provider, path, field string, kind Kind) *SecretProvider {
	if field == "" {
		field = secrets.DefaultValueKey
	}
	return &SecretProvider{name: name, source: source, path: path, field: field, kind: kind}
}

// Name returns the tier name.
func (p *SecretProvider) Name() string {
	return p.name
}

// Credential reads the credential from the secret source.
func (p *SecretProvider) Credential(ctx context.Context) (Credential, bool, error) {
	if p.source == nil {
		return Credential{}, false, nil
	}

	secret, err := p.source.GetSecret(ctx, p.path)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("read %s credential: %w", p.name, err)
	}

	value, ok := secret.GetString(p.field)
	if !ok || strings.TrimSpace(value) == "" {
		return Credential{}, false, nil
	}
	return Credential{Kind: p.kind, Value: value}, true, nil
}

// VaultSource locates the internal API key in Vault.
type VaultSource struct {
	Provider secrets.Provider
	Path     string
	Field    string
}

// DefaultProviders builds the credential chain in precedence order: the
// internal API key from the environment, the internal API key from Vault
// when vault is not nil, then the legacy shared secret.
func DefaultProviders(env secrets.Provider, vault *VaultSource) []CredentialProvider {
	providers := []CredentialProvider{
		NewSecretProvider("env_internal_key", env, EnvInternalAPIKey, "", KindInternalKey),
	}
	if vault != nil && vault.Provider != nil {
		providers = append(providers,
			NewSecretProvider("vault_internal_key", vault.Provider, vault.Path, vault.Field, KindInternalKey))
	}
	providers = append(providers,
		NewSecretProvider("env_legacy_secret", env, EnvLegacySecret, "", KindLegacyBearer))
	return providers
}
