package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies every failure surfaced to the caller.
type ErrorKind string

// Error kinds.
const (
	// KindAuth means no valid user credential, or a tenant mismatch.
	KindAuth ErrorKind = "auth_error"
	// KindConnection means the upstream was unreachable, timed out, or its
	// circuit is open.
	KindConnection ErrorKind = "connection_error"
	// KindBackend means the upstream answered with a non-2xx status.
	KindBackend ErrorKind = "backend_error"
	// KindProxy means an unexpected local failure.
	KindProxy ErrorKind = "proxy_error"
)

// DefaultStatus returns the status a kind is surfaced with when the error
// carries none. Backend errors mirror the upstream status instead.
func (k ErrorKind) DefaultStatus() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindConnection:
		return http.StatusServiceUnavailable
	case KindBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors.
var (
	// ErrCallerGone means the inbound request was cancelled before the
	// upstream answered. Nothing is written to the caller.
	ErrCallerGone = errors.New("caller went away")

	// ErrUpstreamTimeout indicates that the upstream call timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrCircuitOpen indicates that the target's breaker rejected the call.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrResponseTooLarge indicates an upstream body above the read limit.
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// ProxyError is a classified failure ready to be rendered for the caller.
// Message and Details are caller-visible; Cause is for logs only.
type ProxyError struct {
	Kind    ErrorKind
	Status  int
	Target  string
	Message string
	Details any
	Cause   error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatus(), e.Message)
	if e.Target != "" {
		msg += " target=" + e.Target
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is matches a *ProxyError target of the same kind. A target without a
// kind matches every ProxyError.
func (e *ProxyError) Is(target error) bool {
	if t, ok := target.(*ProxyError); ok {
		return t.Kind == "" || t.Kind == e.Kind
	}
	return false
}

// HTTPStatus returns the status surfaced to the caller.
func (e *ProxyError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Kind.DefaultStatus()
}

// NewAuthError creates an auth_error. status is 401 for missing or invalid
// credentials and 403 for tenant mismatches.
func NewAuthError(status int, message string, cause error) *ProxyError {
	return &ProxyError{Kind: KindAuth, Status: status, Message: message, Cause: cause}
}

// NewConnectionError creates a connection_error for target.
func NewConnectionError(target, message string, cause error) *ProxyError {
	return &ProxyError{
		Kind:    KindConnection,
		Status:  http.StatusServiceUnavailable,
		Target:  target,
		Message: message,
		Cause:   cause,
	}
}

// NewBackendError creates a backend_error mirroring the upstream status.
func NewBackendError(status int, details any) *ProxyError {
	return &ProxyError{
		Kind:    KindBackend,
		Status:  backendStatus(status),
		Message: fmt.Sprintf("upstream responded with status %d", status),
		Details: details,
	}
}

// NewProxyError creates a proxy_error with status 500 or 502.
func NewProxyError(status int, message string, cause error) *ProxyError {
	return &ProxyError{Kind: KindProxy, Status: status, Message: message, Cause: cause}
}

// backendStatus mirrors error statuses and maps anything else (1xx, 3xx)
// to 502, since only 4xx/5xx carry error meaning for the caller.
func backendStatus(status int) int {
	if status >= 400 && status <= 599 {
		return status
	}
	return http.StatusBadGateway
}

// AsProxyError converts err into a *ProxyError. Unclassified errors become
// a 500 proxy_error.
func AsProxyError(err error) *ProxyError {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe
	}
	return NewProxyError(http.StatusInternalServerError, "internal gateway error", err)
}

// KindOf returns the error kind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsProxyError(err).Kind
}
