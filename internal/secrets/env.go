package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultValueKey is the data key of a secret holding a single plain value.
const DefaultValueKey = "value"

// EnvProvider serves secrets from a snapshot of environment values taken at
// construction. Later environment changes are not observed.
type EnvProvider struct {
	values map[string]string
}

var _ Provider = (*EnvProvider)(nil)

// NewEnvProvider creates a provider over values. Blank values are dropped.
func NewEnvProvider(values map[string]string) *EnvProvider {
	snapshot := make(map[string]string, len(values))
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		snapshot[k] = v
	}
	return &EnvProvider{values: snapshot}
}

// EnvProviderFromLookup snapshots names using lookup, e.g. os.LookupEnv.
func EnvProviderFromLookup(lookup func(string) (string, bool), names ...string) *EnvProvider {
	values := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := lookup(name); ok {
			values[name] = v
		}
	}
	return NewEnvProvider(values)
}

// Type returns the provider type
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// GetSecret returns the value stored under path. The raw value is always
// stored under "value". A JSON object value also exposes its string fields
// under their own keys, except "value" itself.
func (p *EnvProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	raw, ok := p.values[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	secret := &Secret{Name: path, Data: map[string][]byte{DefaultValueKey: []byte(raw)}}

	var fields map[string]string
	if strings.HasPrefix(strings.TrimSpace(raw), "{") && json.Unmarshal([]byte(raw), &fields) == nil {
		for k, v := range fields {
			if k == DefaultValueKey {
				continue
			}
			secret.Data[k] = []byte(v)
		}
	}
	return secret, nil
}

// HealthCheck always succeeds.
func (p *EnvProvider) HealthCheck(context.Context) error {
	return nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error {
	return nil
}
