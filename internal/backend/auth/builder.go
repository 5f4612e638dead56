package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	tenantauth "github.com/vyrodovalexey/tenantgw/internal/auth"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

const bearerPrefix = "Bearer "

// Sentinel errors for service identity construction.
var (
	// ErrNoServiceCredential indicates that no tier produced a credential.
	ErrNoServiceCredential = errors.New("no service credential configured")

	// ErrNoTenant indicates a build without a verified tenant.
	ErrNoTenant = errors.New("service identity requires a verified tenant")
)

// Metrics holds Prometheus metrics for service identity construction.
type Metrics struct {
	credentialsTotal *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec
}

// NewMetrics registers the builder metrics with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		credentialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tenantgw",
				Subsystem: "service_identity",
				Name:      "credentials_total",
				Help:      "Service credentials attached, by tier",
			},
			[]string{"provider", "kind"},
		),
		providerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tenantgw",
				Subsystem: "service_identity",
				Name:      "provider_errors_total",
				Help:      "Credential tier lookup failures",
			},
			[]string{"provider"},
		),
	}
}

// Builder constructs service-identity headers for gateway-initiated calls.
type Builder struct {
	providers  []CredentialProvider
	logger     observability.Logger
	metrics    *Metrics
	legacyOnce sync.Once
}

// BuilderOption is a functional option for the builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) BuilderOption {
	return func(b *Builder) {
		b.metrics = metrics
	}
}

// NewBuilder creates a builder over providers, tried in order.
func NewBuilder(providers []CredentialProvider, opts ...BuilderOption) *Builder {
	b := &Builder{
		providers: append([]CredentialProvider(nil), providers...),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the service header set for identity. x-tenant-id is always
// the verified tenant. With attachKey the first available credential is
// added. The caller's own Authorization header is never an input.
func (b *Builder) Build(ctx context.Context, identity *tenantauth.TenantIdentity, attachKey bool) (proxy.ForwardedHeaders, error) {
	headers := proxy.NewServiceHeaders()
	if identity == nil || identity.TenantID == "" {
		return headers, ErrNoTenant
	}
	if err := headers.Set(proxy.HeaderTenantID, identity.TenantID); err != nil {
		return headers, err
	}
	if !attachKey {
		return headers, nil
	}

	cred, provider, err := b.resolve(ctx)
	if err != nil {
		return headers, err
	}

	switch cred.Kind {
	case KindLegacyBearer:
		b.legacyOnce.Do(func() {
			b.logger.Warn("using legacy shared secret for service calls; configure INTERNAL_API_KEY",
				zap.String("provider", provider),
			)
		})
		err = headers.Set(proxy.HeaderAuthorization, bearerPrefix+cred.Value)
	default:
		err = headers.Set(proxy.HeaderInternalAPIKey, cred.Value)
	}
	if err != nil {
		return headers, err
	}

	if b.metrics != nil {
		b.metrics.credentialsTotal.WithLabelValues(provider, cred.Kind.String()).Inc()
	}
	return headers, nil
}

// resolve walks the chain; the first tier with a credential wins. Tier
// errors are logged and skipped.
func (b *Builder) resolve(ctx context.Context) (Credential, string, error) {
	for _, p := range b.providers {
		cred, ok, err := p.Credential(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Credential{}, "", ctx.Err()
			}
			b.logger.WithContext(ctx).Warn("service credential provider failed",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			if b.metrics != nil {
				b.metrics.providerErrors.WithLabelValues(p.Name()).Inc()
			}
			continue
		}
		if ok {
			return cred, p.Name(), nil
		}
	}
	return Credential{}, "", ErrNoServiceCredential
}

// ProviderNames lists the chain in precedence order.
func (b *Builder) ProviderNames() []string {
	names := make([]string, 0, len(b.providers))
	for _, p := range b.providers {
		names = append(names, p.Name())
	}
	return names
}
