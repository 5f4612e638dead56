package auth

import (
	"context"
	"time"
)

// TenantIdentity is the caller identity derived from a verified token. It is
// the only source of tenant scoping in the gateway.
type TenantIdentity struct {
	TenantID  string
	Subject   string
	ExpiresAt time.Time
}

type identityContextKey struct{}

// ContextWithIdentity returns a copy of ctx carrying identity.
func ContextWithIdentity(ctx context.Context, identity *TenantIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (*TenantIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*TenantIdentity)
	return identity, ok && identity != nil
}
