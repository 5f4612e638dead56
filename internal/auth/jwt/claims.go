package jwt

import (
	"context"
	"fmt"
	"time"

	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the verified payload of a token.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	values map[string]interface{}
}

func claimsFromToken(ctx context.Context, tok jwxjwt.Token) (*Claims, error) {
	values, err := tok.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read token claims: %w", err)
	}
	return &Claims{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		Audience:  tok.Audience(),
		ExpiresAt: tok.Expiration(),
		IssuedAt:  tok.IssuedAt(),
		values:    values,
	}, nil
}

// Get returns the raw value of a claim. Numeric JSON values are float64.
func (c *Claims) Get(name string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.values[name]
	return v, ok
}

