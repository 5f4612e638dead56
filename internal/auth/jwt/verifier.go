package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Default verification settings.
const (
	DefaultClockSkew       = 30 * time.Second
	DefaultRefreshInterval = 15 * time.Minute
)

// Config holds the verification key sources and claim checks.
type Config struct {
	// Secret is an HMAC key for HS256/HS384/HS512 tokens.
	Secret string
	// JWKSURL points at a JSON Web Key Set for asymmetric tokens.
	JWKSURL string
	// Issuer, when set, must equal the iss claim.
	Issuer string
	// Audience, when set, must appear in the aud claim.
	Audience string
	// ClockSkew is the tolerance applied to exp, nbf and iat.
	ClockSkew time.Duration
	// RefreshInterval is the minimum interval between JWKS refreshes.
	RefreshInterval time.Duration
}

// Verifier checks signed tokens and returns their claims.
type Verifier struct {
	cfg        Config
	keySets    []jwk.Set
	logger     observability.Logger
	httpClient *http.Client
	nowFunc    func() time.Time
}

// Option is a functional option for configuring the verifier.
type Option func(*Verifier)

// WithLogger sets the logger for the verifier.
func WithLogger(logger observability.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithHTTPClient sets the client used to fetch the JWKS.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		v.httpClient = client
	}
}

// WithClock overrides the time source used for exp/nbf checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.nowFunc = now
	}
}

// NewVerifier builds a verifier from cfg. ctx bounds the lifetime of the
// background JWKS refresher.
func NewVerifier(ctx context.Context, cfg Config, opts ...Option) (*Verifier, error) {
	if cfg.Secret == "" && cfg.JWKSURL == "" {
		return nil, ErrNoKeySource
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	v := &Verifier{
		cfg:        cfg,
		logger:     observability.NopLogger(),
		httpClient: http.DefaultClient,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if cfg.Secret != "" {
		set, err := secretKeySet(cfg.Secret)
		if err != nil {
			return nil, err
		}
		v.keySets = append(v.keySets, set)
	}

	if cfg.JWKSURL != "" {
		set, err := v.remoteKeySet(ctx)
		if err != nil {
			return nil, err
		}
		v.keySets = append(v.keySets, set)
	}

	return v, nil
}

func secretKeySet(secret string) (jwk.Set, error) {
	key, err := jwk.FromRaw([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to build hmac key: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to add hmac key: %w", err)
	}
	return set, nil
}

func (v *Verifier) remoteKeySet(ctx context.Context) (jwk.Set, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(v.cfg.JWKSURL,
		jwk.WithMinRefreshInterval(v.cfg.RefreshInterval),
		jwk.WithHTTPClient(v.httpClient),
	); err != nil {
		return nil, fmt.Errorf("failed to register jwks url: %w", err)
	}

	// The first fetch is best effort; the cached set retries on demand.
	if _, err := cache.Refresh(ctx, v.cfg.JWKSURL); err != nil {
		v.logger.Warn("initial JWKS fetch failed",
			observability.URL("jwks_url", v.cfg.JWKSURL),
			zap.Error(err),
		)
	}

	return jwk.NewCachedSet(cache, v.cfg.JWKSURL), nil
}

// Verify checks the signature and standard claims of token.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewValidationError(ErrEmptyToken.Error(), ErrEmptyToken)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := make([]jwxjwt.ParseOption, 0, len(v.keySets)+6)
	for _, set := range v.keySets {
		opts = append(opts, jwxjwt.WithKeySet(set,
			jws.WithInferAlgorithmFromKey(true),
			jws.WithRequireKid(false),
		))
	}
	opts = append(opts,
		jwxjwt.WithValidate(true),
		jwxjwt.WithAcceptableSkew(v.cfg.ClockSkew),
		jwxjwt.WithClock(jwxjwt.ClockFunc(v.nowFunc)),
		jwxjwt.WithRequiredClaim(jwxjwt.ExpirationKey),
	)
	if v.cfg.Issuer != "" {
		opts = append(opts, jwxjwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwxjwt.WithAudience(v.cfg.Audience))
	}

	tok, err := jwxjwt.ParseString(token, opts...)
	if err != nil {
		verr := classify(err)
		v.logger.Debug("token rejected", zap.String("reason", Reason(verr)))
		return nil, verr
	}

	return claimsFromToken(ctx, tok)
}
