package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"path"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates gateway configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// ValidateConfig validates cfg and returns ValidationErrors when invalid.
func ValidateConfig(cfg *GatewayConfig) error {
	return NewValidator().Validate(cfg)
}

// Validate runs every check and returns the collected errors.
func (v *Validator) Validate(cfg *GatewayConfig) error {
	v.errors = v.errors[:0]

	if cfg == nil {
		v.addError("", "configuration is required")
		return v.errors
	}

	v.validateMode(cfg.Mode)
	v.validateBackends(&cfg.Backends)
	v.validateAuth(&cfg.Auth)
	v.validateServiceIdentity(&cfg.ServiceIdentity)
	v.validateUpstream(&cfg.Upstream)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateTracing(&cfg.Observability.Tracing)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateMode(mode string) {
	if mode != ModeDev && mode != ModeProd {
		v.addError("mode", fmt.Sprintf("must be %q or %q, got %q", ModeDev, ModeProd, mode))
	}
}

func (v *Validator) validateBackends(b *BackendsConfig) {
	v.validateURL("backends.orchestrator.url", b.Orchestrator.URL)
	v.validateURL("backends.agent.url", b.Agent.URL)
}

func (v *Validator) validateURL(path, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		v.addError(path, "invalid URL")
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		v.addError(path, "scheme must be http or https")
	}
	if u.Host == "" {
		v.addError(path, "host is required")
	}
}

func (v *Validator) validateAuth(a *AuthConfig) {
	if !a.JWT.Secret.IsSet() && a.JWT.JWKSURL == "" {
		v.addError("auth.jwt", "one of secret or jwksUrl is required")
	}
	if a.JWT.JWKSURL != "" {
		v.validateURL("auth.jwt.jwksUrl", a.JWT.JWKSURL)
	}
	if a.TenantClaim == "" {
		v.addError("auth.tenantClaim", "is required")
	}
	for i, p := range a.SkipPaths {
		switch {
		case !strings.HasPrefix(p, "/"):
			v.addError(fmt.Sprintf("auth.skipPaths[%d]", i), "must start with /")
		case path.Clean(p) != strings.TrimSuffix(p, "/") && p != "/":
			v.addError(fmt.Sprintf("auth.skipPaths[%d]", i), "must not contain dot or empty segments")
		}
	}
}

func (v *Validator) validateServiceIdentity(s *ServiceIdentityConfig) {
	if s.Vault == nil {
		return
	}
	if s.Vault.Address == "" {
		v.addError("serviceIdentity.vault.address", "is required")
	} else {
		v.validateURL("serviceIdentity.vault.address", s.Vault.Address)
	}
	if s.Vault.Path == "" {
		v.addError("serviceIdentity.vault.path", "is required")
	}
	if !s.Vault.Token.IsSet() {
		v.addError("serviceIdentity.vault.token", "is required")
	}
}

func (v *Validator) validateUpstream(u *UpstreamConfig) {
	if u.Timeout <= 0 {
		v.addError("upstream.timeout", "must be positive")
	}
	cb := u.CircuitBreaker
	if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
		v.addError("upstream.circuitBreaker.failureRatio", "must be in (0, 1]")
	}
}

func (v *Validator) validateRateLimit(r *RateLimitConfig) {
	if !r.Enabled {
		return
	}
	for i, entry := range r.TrustedProxies {
		if !validProxyEntry(entry) {
			v.addError(fmt.Sprintf("rateLimit.trustedProxies[%d]", i), "must be an IP address or CIDR")
		}
	}
	switch r.Type {
	case RateLimitTypeMemory:
	case RateLimitTypeRedis:
		if r.Redis.Address == "" {
			v.addError("rateLimit.redis.address", "is required for the redis limiter")
		}
	default:
		v.addError("rateLimit.type", fmt.Sprintf("must be %q or %q", RateLimitTypeMemory, RateLimitTypeRedis))
	}
}

func (v *Validator) validateTracing(t *TracingConfig) {
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		v.addError("observability.tracing.samplingRate", "must be between 0 and 1")
	}
}

func validProxyEntry(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
