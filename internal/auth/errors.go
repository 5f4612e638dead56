package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/tenantgw/internal/auth/jwt"
	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

// Sentinel errors for tenant authentication.
var (
	// ErrNoCredentials indicates that the request carried no bearer token.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidToken indicates that the bearer token failed verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingTenantClaim indicates a verified token without a usable tenant claim.
	ErrMissingTenantClaim = errors.New("token carries no tenant")

	// ErrTenantMismatch indicates a resource stamped with another tenant.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrNoIdentity indicates a tenant check without an authenticated identity.
	ErrNoIdentity = errors.New("no authenticated identity")
)

// AuthError is a terminal authentication or authorization failure.
type AuthError struct {
	// Status is the HTTP status surfaced to the caller.
	Status int
	// Reason is a short label used for metrics and logs.
	Reason string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed (%d, %s): %v", e.Status, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message returns the caller-visible message. It never includes the token.
func (e *AuthError) Message() string {
	switch {
	case errors.Is(e.Err, ErrNoCredentials):
		return "authentication required"
	case errors.Is(e.Err, ErrTenantMismatch):
		return "tenant mismatch"
	case errors.Is(e.Err, ErrMissingTenantClaim):
		return "token carries no tenant"
	case errors.Is(e.Err, jwt.ErrTokenExpired):
		return "token expired"
	default:
		return "invalid token"
	}
}

// ProxyError converts e into the caller-facing auth_error.
func (e *AuthError) ProxyError() *proxy.ProxyError {
	return proxy.NewAuthError(e.Status, e.Message(), e)
}

func unauthorized(reason string, err error) *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Reason: reason, Err: err}
}

func forbidden(reason string, err error) *AuthError {
	return &AuthError{Status: http.StatusForbidden, Reason: reason, Err: err}
}

// AsProxyError renders any guard failure as a proxy error. Errors that are
// not AuthErrors are treated as unauthorized.
func AsProxyError(err error) *proxy.ProxyError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.ProxyError()
	}
	return unauthorized("error", err).ProxyError()
}
