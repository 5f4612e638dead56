package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/tenantgw/internal/auth/jwt"
	"github.com/vyrodovalexey/tenantgw/internal/credential"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// DefaultTenantClaim is the claim read when none is configured.
const DefaultTenantClaim = "tenant_id"

// claimedTenantField is the request field callers sometimes use to name a
// tenant. It is never trusted.
const claimedTenantField = "tenant_id"

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*jwt.Claims, error)
}

var _ TokenVerifier = (*jwt.Verifier)(nil)

// Guard authenticates callers and scopes them to a tenant.
type Guard struct {
	verifier    TokenVerifier
	policy      credential.Policy
	tenantClaim string
	skipPaths   []string
	logger      observability.Logger
	metrics     *Metrics
}

// GuardOption is a functional option for the guard.
type GuardOption func(*Guard)

// WithTenantClaim sets the claim holding the tenant id.
func WithTenantClaim(name string) GuardOption {
	return func(g *Guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.tenantClaim = name
		}
	}
}

// WithSkipPaths sets the upstream paths reachable without a verified token.
func WithSkipPaths(paths ...string) GuardOption {
	return func(g *Guard) {
		g.skipPaths = append([]string(nil), paths...)
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger observability.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithGuardMetrics sets the metrics.
func WithGuardMetrics(metrics *Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = metrics
	}
}

// NewGuard creates a guard. policy decides which bearer token is verified so
// the guard and the forwarded credential never disagree.
func NewGuard(verifier TokenVerifier, policy credential.Policy, opts ...GuardOption) *Guard {
	g := &Guard{
		verifier:    verifier,
		policy:      policy,
		tenantClaim: DefaultTenantClaim,
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode returns the deployment mode of the guard's credential policy.
func (g *Guard) Mode() credential.Mode {
	return g.policy.Mode()
}

// TenantClaim returns the configured tenant claim name.
func (g *Guard) TenantClaim() string {
	return g.tenantClaim
}

// Skips reports whether upstreamPath is exempt from authentication. A skip
// path matches itself and anything below it. Paths with dot or empty
// segments never match.
func (g *Guard) Skips(upstreamPath string) bool {
	if !isCanonicalPath(upstreamPath) {
		return false
	}
	for _, p := range g.skipPaths {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if upstreamPath == p || strings.HasPrefix(upstreamPath, p+"/") {
			return true
		}
	}
	return false
}

// isCanonicalPath reports whether p is absolute and unchanged by
// path.Clean, ignoring one trailing slash.
func isCanonicalPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	clean := path.Clean(p)
	if clean != "/" && strings.HasSuffix(p, "/") {
		clean += "/"
	}
	return clean == p
}

// Authenticate verifies the caller's bearer token and returns the tenant
// identity. Request body and query values are never consulted.
func (g *Guard) Authenticate(ctx context.Context, rc *credential.RequestContext) (*TenantIdentity, error) {
	token := g.policy.BearerToken(rc)
	if token == "" {
		g.metrics.record(ResultFailure, "no_credentials")
		return nil, unauthorized("no_credentials", ErrNoCredentials)
	}

	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		reason := jwt.Reason(err)
		g.metrics.record(ResultFailure, reason)
		g.logger.WithContext(ctx).Info("token rejected", zap.String("reason", reason))
		return nil, unauthorized(reason, fmt.Errorf("%w: %w", ErrInvalidToken, err))
	}

	tenantID, ok := tenantFromClaim(claims, g.tenantClaim)
	if !ok {
		g.metrics.record(ResultFailure, "missing_tenant_claim")
		g.logger.WithContext(ctx).Warn("verified token has no tenant claim",
			zap.String("subject", claims.Subject),
			zap.String("claim", g.tenantClaim),
		)
		return nil, unauthorized("missing_tenant_claim", ErrMissingTenantClaim)
	}

	g.metrics.record(ResultSuccess, "")
	return &TenantIdentity{
		TenantID:  tenantID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// RecordSkipped counts a request let through on a skip path.
func (g *Guard) RecordSkipped() {
	g.metrics.record(ResultSkipped, "")
}

// ValidateTenantMatch asserts that a resource stamped with stamp belongs to
// identity's tenant.
func (g *Guard) ValidateTenantMatch(ctx context.Context, identity *TenantIdentity, stamp string) error {
	if identity == nil {
		return unauthorized("no_identity", ErrNoIdentity)
	}
	if stamp != identity.TenantID {
		g.metrics.record(ResultFailure, "tenant_mismatch")
		g.logger.WithContext(ctx).Warn("resource tenant does not match caller",
			zap.String("tenant_id", identity.TenantID),
			zap.String("resource_tenant_id", stamp),
			zap.String("subject", identity.Subject),
		)
		return forbidden("tenant_mismatch", ErrTenantMismatch)
	}
	return nil
}

// NoteClaimedTenant logs when the request names a tenant other than the
// verified one. The claimed value is informational only.
func (g *Guard) NoteClaimedTenant(ctx context.Context, identity *TenantIdentity, body []byte, query url.Values) {
	if identity == nil {
		return
	}
	claimed := ClaimedTenantID(body, query)
	if claimed == "" || claimed == identity.TenantID {
		return
	}
	g.logger.WithContext(ctx).Warn("ignoring caller-supplied tenant_id",
		zap.String("tenant_id", identity.TenantID),
		zap.String("claimed_tenant_id", claimed),
	)
}

// ClaimedTenantID returns a tenant_id named in a JSON object body or in the
// query string. It must only be used for logging.
func ClaimedTenantID(body []byte, query url.Values) string {
	if len(body) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err == nil {
			if raw, ok := fields[claimedTenantField]; ok {
				if v, ok := scalarString(raw); ok {
					return v
				}
			}
		}
	}
	return strings.TrimSpace(query.Get(claimedTenantField))
}

func scalarString(raw json.RawMessage) (string, bool) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return stringify(v)
}

func tenantFromClaim(claims *jwt.Claims, name string) (string, bool) {
	v, ok := claims.Get(name)
	if !ok {
		return "", false
	}
	return stringify(v)
}

// stringify accepts string and numeric tenant values.
func stringify(v interface{}) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return "", false
	}
	return s, s != ""
}
