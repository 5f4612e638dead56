// Package secrets provides the sources of service credentials: a snapshot
// of environment values and a HashiCorp Vault KV v2 reader.
package secrets

import (
	"context"
	"errors"
)

// ProviderType represents the type of secrets provider
type ProviderType string

const (
	// ProviderTypeEnv reads from an environment snapshot
	ProviderTypeEnv ProviderType = "env"
	// ProviderTypeVault reads from HashiCorp Vault
	ProviderTypeVault ProviderType = "vault"
)

// Common errors for secrets providers
var (
	// ErrSecretNotFound is returned when a secret is not found
	ErrSecretNotFound = errors.New("secret not found")
	// ErrProviderNotConfigured is returned when the provider is not properly configured
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidPath is returned when the secret path is invalid
	ErrInvalidPath = errors.New("invalid secret path")
	// ErrProviderUnavailable is returned when the provider cannot be reached
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Secret represents a secret with key-value data
type Secret struct {
	// Name is the path the secret was read from
	Name string
	// Data contains the secret key-value pairs
	Data map[string][]byte
	// Version is the version of the secret, when the backend has one
	Version string
}

// GetString returns a string value from the secret data
func (s *Secret) GetString(key string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[key]
	if !ok {
		return "", false
	}
	return string(v), true
}

// Provider is the interface for read-only secrets providers
type Provider interface {
	// Type returns the provider type
	Type() ProviderType

	// GetSecret retrieves a secret by path. Path format depends on the provider:
	// - env: the variable name, e.g. "INTERNAL_API_KEY"
	// - vault: the KV v2 path below the mount, e.g. "tenantgw/service"
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// HealthCheck checks provider connectivity
	HealthCheck(ctx context.Context) error

	// Close cleans up provider resources
	Close() error
}
