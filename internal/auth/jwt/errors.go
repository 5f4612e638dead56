package jwt

import (
	"errors"
	"fmt"

	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// Sentinel errors for token verification.
var (
	// ErrEmptyToken indicates that no token was supplied.
	ErrEmptyToken = errors.New("empty token")

	// ErrTokenExpired indicates that the token exp is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotYetValid indicates that the token nbf or iat is in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")

	// ErrInvalidSignature indicates that no configured key verifies the token.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidIssuer indicates an iss claim other than the configured one.
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience indicates that the configured audience is not in aud.
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrMissingClaim indicates that a required claim is absent.
	ErrMissingClaim = errors.New("missing required claim")

	// ErrNoKeySource indicates a verifier built with neither a secret nor a JWKS URL.
	ErrNoKeySource = errors.New("no verification key source configured")
)

// ValidationError describes why a token was rejected.
type ValidationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}

// Reason returns a short, stable label for err, suitable as a metric label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyToken):
		return "empty_token"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, ErrInvalidAudience):
		return "invalid_audience"
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	default:
		return "invalid_signature"
	}
}

// classify maps a jwx validation failure onto the package sentinels.
func classify(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, jwxjwt.ErrTokenExpired()):
		sentinel = ErrTokenExpired
	case errors.Is(err, jwxjwt.ErrTokenNotYetValid()), errors.Is(err, jwxjwt.ErrInvalidIssuedAt()):
		sentinel = ErrTokenNotYetValid
	case errors.Is(err, jwxjwt.ErrInvalidIssuer()):
		sentinel = ErrInvalidIssuer
	case errors.Is(err, jwxjwt.ErrInvalidAudience()):
		sentinel = ErrInvalidAudience
	case errors.Is(err, jwxjwt.ErrRequiredClaim()), jwxjwt.IsValidationError(err):
		sentinel = ErrMissingClaim
	default:
		sentinel = ErrInvalidSignature
	}
	return NewValidationError(sentinel.Error(), errors.Join(sentinel, err))
}
