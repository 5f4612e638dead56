// Package jwt verifies bearer tokens for the tenant guard.
//
// Keys come from an HMAC secret, a JWKS URL, or both. When both are set a
// token verified by either source is accepted. Every accepted token must
// carry exp; iss and aud are checked only when configured.
//
//	v, err := jwt.NewVerifier(ctx, jwt.Config{Secret: secret})
//	claims, err := v.Verify(ctx, token)
package jwt
