package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/vyrodovalexey/tenantgw/internal/auth"
	"github.com/vyrodovalexey/tenantgw/internal/auth/jwt"
	"github.com/vyrodovalexey/tenantgw/internal/backend"
	backendauth "github.com/vyrodovalexey/tenantgw/internal/backend/auth"
	"github.com/vyrodovalexey/tenantgw/internal/config"
	"github.com/vyrodovalexey/tenantgw/internal/credential"
	"github.com/vyrodovalexey/tenantgw/internal/gateway"
	"github.com/vyrodovalexey/tenantgw/internal/health"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/proxy"
	"github.com/vyrodovalexey/tenantgw/internal/ratelimit"
	"github.com/vyrodovalexey/tenantgw/internal/secrets"
)

// Readiness check names.
const (
	checkCircuits = "upstream_circuits"
	checkVault    = "vault"
	checkRedis    = "redis"
)

// componentMetrics holds the collectors of every package. They are
// registered once per process and shared by all configuration snapshots.
type componentMetrics struct {
	auth    *auth.Metrics
	proxy   *proxy.Metrics
	builder *backendauth.Metrics
	secrets *secrets.Metrics
	health  *health.Metrics
}

func newComponentMetrics(m *observability.Metrics) componentMetrics {
	reg := m.Registry()
	return componentMetrics{
		auth:    auth.NewMetrics(reg),
		proxy:   proxy.NewMetrics(reg),
		builder: backendauth.NewMetrics(reg),
		secrets: secrets.NewMetrics(reg),
		health:  health.NewMetrics(reg),
	}
}

// snapshot is the request pipeline built from one configuration. cancel
// stops background work owned by the snapshot, such as the JWKS refresher.
type snapshot struct {
	config  *config.GatewayConfig
	handler *gateway.Handler
	router  http.Handler
	cancel  context.CancelFunc
}

// application holds all application components. Everything except the
// current snapshot lives for the whole process.
type application struct {
	logger  observability.Logger
	lookup  config.LookupFunc
	metrics *observability.Metrics
	comp    componentMetrics
	tracer  *observability.Tracer
	checker *health.Checker
	limiter ratelimit.Limiter
	rateKey ratelimit.KeyFunc
	vault   *secrets.VaultProvider
	server  *gateway.Server

	mu      sync.RWMutex
	current *snapshot
}

// initApplication initializes all application components and installs
// the first snapshot on a stopped server.
func initApplication(
	ctx context.Context,
	cfg *config.GatewayConfig,
	lookup config.LookupFunc,
	logger observability.Logger,
) (*application, error) {
	metrics := observability.NewMetrics("")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	comp := newComponentMetrics(metrics)

	app := &application{
		logger:  logger,
		lookup:  lookup,
		metrics: metrics,
		comp:    comp,
		checker: health.NewChecker(version, health.WithMetrics(comp.health)),
		server:  gateway.NewServer(serverConfig(cfg.Listen), gateway.WithServerLogger(logger)),
	}

	if err := app.initShared(cfg); err != nil {
		app.closeShared(ctx)
		return nil, err
	}

	snap, err := app.buildSnapshot(ctx, cfg)
	if err != nil {
		app.closeShared(ctx)
		return nil, err
	}
	app.install(snap)
	app.registerChecks()

	return app, nil
}

// initShared creates the process-wide tracer, rate limiter and Vault
// provider.
func (a *application) initShared(cfg *config.GatewayConfig) error {
	tracer, err := observability.NewTracer(tracerConfig(cfg.Observability.Tracing))
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	a.tracer = tracer

	limiter, err := newRateLimiter(cfg.RateLimit, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	a.limiter = limiter

	if limiter != nil {
		resolver, err := ratelimit.NewClientIPResolver(cfg.RateLimit.TrustedProxies...)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		a.rateKey = resolver.KeyFunc()
	}

	vault, err := newVaultProvider(cfg.ServiceIdentity.Vault, a.logger, a.comp.secrets)
	if err != nil {
		return fmt.Errorf("failed to initialize vault provider: %w", err)
	}
	a.vault = vault

	return nil
}

// buildSnapshot assembles the request pipeline for cfg. Nothing is
// installed; a failed build leaves the running snapshot untouched.
func (a *application) buildSnapshot(ctx context.Context, cfg *config.GatewayConfig) (*snapshot, error) {
	snapCtx, cancel := context.WithCancel(ctx)

	verifier, err := jwt.NewVerifier(snapCtx, jwt.Config{
		Secret:          cfg.Auth.JWT.Secret.Value(),
		JWKSURL:         cfg.Auth.JWT.JWKSURL,
		Issuer:          cfg.Auth.JWT.Issuer,
		Audience:        cfg.Auth.JWT.Audience,
		ClockSkew:       cfg.Auth.JWT.ClockSkew.Duration(),
		RefreshInterval: cfg.Auth.JWT.RefreshInterval.Duration(),
	}, jwt.WithLogger(a.logger))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}

	policy := credential.NewPolicy(credential.ParseMode(cfg.Mode))
	guard := auth.NewGuard(verifier, policy,
		auth.WithTenantClaim(cfg.Auth.TenantClaim),
		auth.WithSkipPaths(cfg.Auth.SkipPaths...),
		auth.WithGuardLogger(a.logger),
		auth.WithGuardMetrics(a.comp.auth),
	)

	locator := backend.NewLocator(backend.LookupFunc(a.lookup),
		backend.WithConfiguredURL(backend.Orchestrator, cfg.Backends.Orchestrator.URL),
		backend.WithConfiguredURL(backend.Agent, cfg.Backends.Agent.URL),
		backend.WithLocatorLogger(a.logger),
	)

	builder := backendauth.NewBuilder(
		backendauth.DefaultProviders(serviceEnv(cfg.ServiceIdentity), a.vaultSource(cfg.ServiceIdentity.Vault)),
		backendauth.WithLogger(a.logger),
		backendauth.WithMetrics(a.comp.builder),
	)

	forwarder := proxy.NewForwarder(
		proxy.WithTimeout(cfg.Upstream.Timeout.Duration()),
		proxy.WithMaxResponseBytes(cfg.Upstream.MaxResponseBytes),
		proxy.WithBreaker(breakerConfig(cfg.Upstream.CircuitBreaker)),
		proxy.WithRedactor(proxy.NewRedactor(secretValues(cfg)...)),
		proxy.WithMetrics(a.comp.proxy),
		proxy.WithLogger(a.logger),
	)

	handler, err := gateway.NewHandler(gateway.HandlerConfig{
		Locator:               locator,
		Policy:                policy,
		Guard:                 guard,
		Builder:               builder,
		Forwarder:             forwarder,
		AttachKey:             cfg.ServiceIdentity.AttachKey(),
		EnforceResponseTenant: cfg.Agent.EnforcesResponseTenant(),
		MaxBodyBytes:          cfg.Listen.MaxBodyBytes,
		Logger:                a.logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	router := gateway.NewRouter(gateway.RouterConfig{
		Handler: handler,
		Checker: a.checker,
		Metrics: a.metrics,
		Limiter: a.limiter,
		RateKey: a.rateKey,
		Logger:  a.logger,
	})

	a.logger.Info("request pipeline built",
		observability.String("mode", policy.Mode().String()),
		observability.Strings("credential_providers", builder.ProviderNames()),
		observability.Bool("attach_internal_key", cfg.ServiceIdentity.AttachKey()),
		observability.Bool("enforce_response_tenant", cfg.Agent.EnforcesResponseTenant()),
	)

	return &snapshot{
		config:  cfg,
		handler: handler,
		router:  router,
		cancel:  cancel,
	}, nil
}

// install makes snap the live pipeline and releases the previous one.
// Requests already in flight finish on the snapshot they started with.
func (a *application) install(snap *snapshot) {
	a.mu.Lock()
	previous := a.current
	a.current = snap
	a.mu.Unlock()

	a.server.SetHandler(snap.router)
	if previous != nil {
		previous.cancel()
	}
}

// live returns the installed pipeline.
func (a *application) live() *snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// openCircuits reports the targets whose breaker is open in the live
// snapshot.
func (a *application) openCircuits() []string {
	snap := a.live()
	if snap == nil {
		return nil
	}
	return snap.handler.Forwarder().OpenCircuits()
}

// registerChecks wires readiness to the upstream breakers and to the
// optional shared dependencies. Dependency failures only degrade.
func (a *application) registerChecks() {
	a.checker.RegisterCheck(checkCircuits, health.CircuitCheck(a.openCircuits))

	if a.vault != nil {
		a.checker.RegisterCheck(checkVault, health.DependencyCheck(a.vault.HealthCheck, false))
	}

	if redis, ok := a.limiter.(*ratelimit.RedisLimiter); ok {
		a.checker.RegisterCheck(checkRedis, health.DependencyCheck(redis.Ping, false))
	}
}

// vaultSource returns the Vault link of the credential chain, or nil when
// Vault is not configured.
func (a *application) vaultSource(cfg *config.VaultConfig) *backendauth.VaultSource {
	if a.vault == nil || cfg == nil {
		return nil
	}
	return &backendauth.VaultSource{
		Provider: a.vault,
		Path:     cfg.Path,
		Field:    cfg.Field,
	}
}

// closeShared releases the process-wide components.
func (a *application) closeShared(ctx context.Context) {
	if snap := a.live(); snap != nil {
		snap.cancel()
	}

	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			a.logger.Error("failed to close rate limiter", observability.Error(err))
		}
	}

	if a.vault != nil {
		a.logger.Info("closing vault client")
		if err := a.vault.Close(); err != nil {
			a.logger.Error("failed to close vault client", observability.Error(err))
		}
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}

// serviceEnv exposes the configured service credentials under their
// environment variable names. The environment has already been overlaid
// onto cfg by config.Build.
func serviceEnv(cfg config.ServiceIdentityConfig) secrets.Provider {
	return secrets.NewEnvProvider(map[string]string{
		backendauth.EnvInternalAPIKey: cfg.InternalAPIKey.Value(),
		backendauth.EnvLegacySecret:   cfg.LegacySecret.Value(),
	})
}

// secretValues lists every credential the gateway knows so the forwarder
// can scrub them from upstream error details.
func secretValues(cfg *config.GatewayConfig) []string {
	values := []string{
		cfg.ServiceIdentity.InternalAPIKey.Value(),
		cfg.ServiceIdentity.LegacySecret.Value(),
		cfg.Auth.JWT.Secret.Value(),
		cfg.RateLimit.Redis.Password.Value(),
	}
	if v := cfg.ServiceIdentity.Vault; v != nil {
		values = append(values, v.Token.Value())
	}
	return values
}

func serverConfig(cfg config.ListenConfig) gateway.ServerConfig {
	sc := gateway.DefaultServerConfig()
	sc.Address = cfg.Address
	if d := cfg.ReadTimeout.Duration(); d > 0 {
		sc.ReadTimeout = d
	}
	if d := cfg.WriteTimeout.Duration(); d > 0 {
		sc.WriteTimeout = d
	}
	if d := cfg.IdleTimeout.Duration(); d > 0 {
		sc.IdleTimeout = d
	}
	return sc
}

func tracerConfig(cfg config.TracingConfig) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
	}
}

func breakerConfig(cfg config.CircuitBreakerConfig) proxy.BreakerConfig {
	return proxy.BreakerConfig{
		Enabled:      cfg.IsEnabled(),
		FailureRatio: cfg.FailureRatio,
		MinRequests:  cfg.MinRequests,
		OpenTimeout:  cfg.OpenTimeout.Duration(),
		Interval:     cfg.Interval.Duration(),
	}
}
