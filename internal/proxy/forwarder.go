package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/tenantgw/internal/backend"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Forwarder defaults.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 10 << 20
)

// HeaderRequestID carries the inbound request id upstream.
const HeaderRequestID = "X-Request-ID"

var tracer = otel.Tracer("tenantgw/proxy")

// Request is one upstream call.
type Request struct {
	Target      backend.Target
	URL         string
	Method      string
	Headers     ForwardedHeaders
	Body        []byte
	ContentType string
	Accept      string
}

// Response is a successful (2xx) upstream answer. Body is passed through
// unmodified.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Forwarder executes upstream calls. It is safe for concurrent use.
type Forwarder struct {
	client   *http.Client
	timeout  time.Duration
	maxBody  int64
	breakers map[backend.Target]*gobreaker.CircuitBreaker
	metrics  *Metrics
	logger   observability.Logger
	redactor *Redactor
	breaker  BreakerConfig
}

// ForwarderOption is a functional option for the forwarder.
type ForwarderOption func(*Forwarder)

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(client *http.Client) ForwarderOption {
	return func(f *Forwarder) {
		f.client = client
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithMaxResponseBytes limits how much of an upstream body is read.
func WithMaxResponseBytes(n int64) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithBreaker configures the per-target circuit breakers.
func WithBreaker(cfg BreakerConfig) ForwarderOption {
	return func(f *Forwarder) {
		f.breaker = cfg
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) ForwarderOption {
	return func(f *Forwarder) {
		f.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithRedactor masks secrets in caller-visible details and log lines.
func WithRedactor(r *Redactor) ForwarderOption {
	return func(f *Forwarder) {
		f.redactor = r
	}
}

// NewForwarder creates a forwarder with one breaker per target.
func NewForwarder(opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		timeout:  DefaultTimeout,
		maxBody:  DefaultMaxResponseBytes,
		logger:   observability.NopLogger(),
		breaker:  DefaultBreakerConfig(),
		redactor: NewRedactor(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		f.client = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	f.breakers = make(map[backend.Target]*gobreaker.CircuitBreaker, len(backend.Targets))
	if f.breaker.Enabled {
		for _, t := range backend.Targets {
			f.breakers[t] = newBreaker(t.String(), f.breaker, f.logger, f.metrics)
		}
	}

	return f
}

// Forward performs req once. On success it returns the 2xx response; every
// failure is a *ProxyError, except a cancelled caller which yields
// ErrCallerGone.
func (f *Forwarder) Forward(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	target := req.Target.String()
	redactedURL := RedactTarget(req.URL)
	logger := f.logger.WithContext(ctx).With(
		observability.String("target", target),
		observability.String("method", req.Method),
		observability.String("url", redactedURL),
	)

	if ctx.Err() != nil {
		f.metrics.recordCall(target, req.Method, outcomeCallerGone, time.Since(start))
		return nil, ErrCallerGone
	}

	ctx, span := tracer.Start(ctx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.target", target),
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", redactedURL),
		),
	)
	defer span.End()

	resp, err := f.forward(ctx, req, redactedURL)
	duration := time.Since(start)

	if err != nil {
		outcome := outcomeOf(err)
		f.metrics.recordCall(target, req.Method, outcome, duration)
		span.SetStatus(codes.Error, outcome)
		f.logFailure(logger, f.redactorFor(req), err, duration)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	f.metrics.recordCall(target, req.Method, outcomeSuccess, duration)
	logger.Debug("upstream call completed",
		observability.Int("status", resp.Status),
		observability.Strings("headers", req.Headers.Names()),
		observability.Duration("duration", duration),
	)
	return resp, nil
}

func (f *Forwarder) forward(ctx context.Context, req *Request, redactedURL string) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, NewProxyError(http.StatusInternalServerError, "failed to build upstream request", err)
	}

	req.Headers.Apply(httpReq.Header)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
		httpReq.Header.Set(HeaderRequestID, requestID)
	}
	otel.GetTextMapPropagator().Inject(callCtx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := f.execute(req.Target, func() (*Response, error) {
		return f.roundTrip(ctx, httpReq)
	})

	switch {
	case err == nil:
	case isBreakerRejection(err):
		return nil, NewConnectionError(redactedURL, "upstream circuit open", ErrCircuitOpen)
	case errors.Is(err, ErrCallerGone):
		return nil, ErrCallerGone
	case errors.Is(err, ErrUpstreamTimeout):
		return nil, NewConnectionError(redactedURL, "upstream timed out", err)
	case countsAgainstBreaker(err):
		return nil, NewConnectionError(redactedURL, "upstream unreachable", err)
	default:
		return nil, AsProxyError(err)
	}

	if resp.Status < 200 || resp.Status > 299 {
		return nil, NewBackendError(resp.Status, errorDetails(f.redactorFor(req), resp.Body))
	}
	return resp, nil
}

func (f *Forwarder) execute(t backend.Target, fn func() (*Response, error)) (*Response, error) {
	cb := f.breakers[t]
	if cb == nil {
		return fn()
	}

	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	resp, _ := out.(*Response)
	return resp, nil
}

func (f *Forwarder) roundTrip(parent context.Context, httpReq *http.Request) (*Response, error) {
	resp, err := f.client.Do(httpReq) //nolint:bodyclose // closed below
	if err != nil {
		return nil, classifyTransport(parent, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, classifyTransport(parent, err)
	}
	if int64(len(data)) > f.maxBody {
		return nil, NewProxyError(http.StatusBadGateway, "upstream response too large", ErrResponseTooLarge)
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// classifyTransport separates a cancelled caller from an upstream that is
// unreachable or too slow.
func classifyTransport(parent context.Context, err error) error {
	if parent.Err() != nil {
		return ErrCallerGone
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &transportError{sentinel: ErrUpstreamTimeout, err: err}
	}
	return &transportError{sentinel: ErrUpstreamUnavailable, err: err}
}

// redactorFor extends the configured redactor with the credentials sent on
// req, so a service key resolved per call is masked too.
func (f *Forwarder) redactorFor(req *Request) *Redactor {
	return f.redactor.With(req.Headers.credentialValues()...)
}

// errorDetails decodes an upstream error body for the caller: JSON when it
// parses, the raw text otherwise, nothing when empty.
func errorDetails(redactor *Redactor, body []byte) any {
	text := redactor.Redact(string(bytes.TrimSpace(body)))
	if text == "" {
		return nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	return text
}

func (f *Forwarder) logFailure(logger observability.Logger, redactor *Redactor, err error, duration time.Duration) {
	if errors.Is(err, ErrCallerGone) {
		logger.Debug("caller went away before upstream answered",
			observability.Duration("duration", duration),
		)
		return
	}

	pe := AsProxyError(err)
	fields := []observability.Field{
		observability.String("error_kind", string(pe.Kind)),
		observability.Int("status", pe.HTTPStatus()),
		observability.Duration("duration", duration),
	}
	if pe.Cause != nil {
		fields = append(fields, observability.String("cause", redactor.Redact(pe.Cause.Error())))
	}

	switch pe.Kind {
	case KindBackend:
		logger.Info("upstream returned an error status", fields...)
	case KindConnection:
		logger.Warn("upstream connection failed", fields...)
	default:
		logger.Error("upstream call failed", fields...)
	}
}

// BreakerState returns the breaker state of t. Targets without a breaker
// report closed.
func (f *Forwarder) BreakerState(t backend.Target) gobreaker.State {
	if cb := f.breakers[t]; cb != nil {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// OpenCircuits returns the targets whose breaker is open.
func (f *Forwarder) OpenCircuits() []string {
	var open []string
	for _, t := range backend.Targets {
		if f.BreakerState(t) == gobreaker.StateOpen {
			open = append(open, t.String())
		}
	}
	return open
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrCallerGone):
		return outcomeCallerGone
	case errors.Is(err, ErrCircuitOpen):
		return outcomeCircuitOpen
	default:
		return string(AsProxyError(err).Kind)
	}
}
