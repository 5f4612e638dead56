package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/tenantgw/internal/auth"
	"github.com/vyrodovalexey/tenantgw/internal/backend"
	backendauth "github.com/vyrodovalexey/tenantgw/internal/backend/auth"
	"github.com/vyrodovalexey/tenantgw/internal/credential"
	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

// Route prefixes. The wildcard tail is forwarded to the upstream.
const (
	OrchestratorPrefix = "/api/orchestrator"
	AgentPrefix        = "/api/agent"

	pathParam         = "path"
	responseTenantKey = "tenant_id"
)

// Handler holds the per-snapshot request pipeline. A new Handler is built
// for every configuration snapshot; it is never mutated afterwards.
type Handler struct {
	locator       *backend.Locator
	policy        credential.Policy
	guard         *auth.Guard
	builder       *backendauth.Builder
	forwarder     *proxy.Forwarder
	attachKey     bool
	enforceTenant bool
	maxBodyBytes  int64
	logger        observability.Logger
}

// HandlerConfig lists the components a Handler is assembled from.
type HandlerConfig struct {
	Locator   *backend.Locator
	Policy    credential.Policy
	Guard     *auth.Guard
	Builder   *backendauth.Builder
	Forwarder *proxy.Forwarder

	// AttachKey attaches a service credential to agent calls.
	AttachKey bool
	// EnforceResponseTenant checks tenant_id stamps in agent responses.
	EnforceResponseTenant bool
	// MaxBodyBytes limits inbound bodies. Zero disables the limit.
	MaxBodyBytes int64

	Logger observability.Logger
}

// NewHandler validates cfg and builds a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	switch {
	case cfg.Locator == nil:
		return nil, fmt.Errorf("%w: locator", ErrMissingComponent)
	case cfg.Policy == nil:
		return nil, fmt.Errorf("%w: credential policy", ErrMissingComponent)
	case cfg.Guard == nil:
		return nil, fmt.Errorf("%w: tenant guard", ErrMissingComponent)
	case cfg.Builder == nil:
		return nil, fmt.Errorf("%w: service identity builder", ErrMissingComponent)
	case cfg.Forwarder == nil:
		return nil, fmt.Errorf("%w: forwarder", ErrMissingComponent)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Handler{
		locator:       cfg.Locator,
		policy:        cfg.Policy,
		guard:         cfg.Guard,
		builder:       cfg.Builder,
		forwarder:     cfg.Forwarder,
		attachKey:     cfg.AttachKey,
		enforceTenant: cfg.EnforceResponseTenant,
		maxBodyBytes:  cfg.MaxBodyBytes,
		logger:        logger,
	}, nil
}

// Guard returns the tenant guard of this snapshot.
func (h *Handler) Guard() *auth.Guard {
	return h.guard
}

// Forwarder returns the forwarder of this snapshot.
func (h *Handler) Forwarder() *proxy.Forwarder {
	return h.forwarder
}

// Orchestrator forwards a user action with the caller's own credential.
// The tenant guard has already run, unless the path is a skip path.
func (h *Handler) Orchestrator(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := h.readBody(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	rc := credential.NewRequestContext(c.Request, h.policy.Mode(), body)
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		h.guard.NoteClaimedTenant(ctx, identity, body, c.Request.URL.Query())
	}

	resp, err := h.forwarder.Forward(ctx, &proxy.Request{
		Target:      backend.Orchestrator,
		URL:         h.locator.Endpoint(backend.Orchestrator, upstreamPath(c, OrchestratorPrefix), c.Request.URL.RawQuery),
		Method:      c.Request.Method,
		Headers:     h.policy.Resolve(rc),
		Body:        rc.RawBody(),
		ContentType: c.GetHeader("Content-Type"),
		Accept:      c.GetHeader("Accept"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	proxy.WriteResponse(c.Writer, resp)
}

// Agent makes a service-to-service call on behalf of the verified tenant.
// The caller's Authorization header is never forwarded.
func (h *Handler) Agent(c *gin.Context) {
	ctx := c.Request.Context()

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		h.fail(c, auth.AsProxyError(auth.ErrNoIdentity))
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.guard.NoteClaimedTenant(ctx, identity, body, c.Request.URL.Query())

	headers, err := h.builder.Build(ctx, identity, h.attachKey)
	if err != nil {
		h.fail(c, serviceIdentityError(ctx, err))
		return
	}

	resp, err := h.forwarder.Forward(ctx, &proxy.Request{
		Target:      backend.Agent,
		URL:         h.locator.Endpoint(backend.Agent, upstreamPath(c, AgentPrefix), c.Request.URL.RawQuery),
		Method:      c.Request.Method,
		Headers:     headers,
		Body:        body,
		ContentType: c.GetHeader("Content-Type"),
		Accept:      c.GetHeader("Accept"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.enforceTenant {
		if err := h.checkResponseTenant(ctx, identity, resp); err != nil {
			h.fail(c, err)
			return
		}
	}

	proxy.WriteResponse(c.Writer, resp)
}

// checkResponseTenant rejects an agent response stamped with another
// tenant. Only JSON object bodies are inspected.
func (h *Handler) checkResponseTenant(ctx context.Context, identity *auth.TenantIdentity, resp *proxy.Response) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}

	isJSON := isJSONContentType(resp.ContentType)
	trimmed := bytes.TrimLeft(resp.Body, " \t\r\n")
	if !isJSON && (len(trimmed) == 0 || trimmed[0] != '{') {
		return nil
	}

	var doc interface{}
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		if isJSON {
			return proxy.NewProxyError(http.StatusBadGateway, "upstream returned malformed JSON", err)
		}
		return nil
	}

	fields, ok := doc.(map[string]interface{})
	if !ok {
		return nil
	}
	if _, stamped := fields[responseTenantKey]; !stamped {
		return nil
	}

	stamp := auth.ClaimedTenantID(resp.Body, nil)
	if err := h.guard.ValidateTenantMatch(ctx, identity, stamp); err != nil {
		return auth.AsProxyError(err)
	}
	return nil
}

// readBody reads the inbound body, bounded by maxBodyBytes.
func (h *Handler) readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, nil
	}

	reader := io.Reader(c.Request.Body)
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, &proxy.ProxyError{
				Kind:    proxy.KindProxy,
				Status:  http.StatusRequestEntityTooLarge,
				Message: "request body too large",
				Cause:   err,
			}
		case c.Request.Context().Err() != nil:
			return nil, proxy.ErrCallerGone
		default:
			return nil, proxy.NewProxyError(http.StatusBadRequest, "failed to read request body", err)
		}
	}
	return body, nil
}

// fail renders err and stops the chain.
func (h *Handler) fail(c *gin.Context, err error) {
	if !proxy.WriteError(c.Writer, err) {
		h.logger.WithContext(c.Request.Context()).Debug("caller went away, dropping upstream result")
	}
	c.Abort()
}

// serviceIdentityError maps a builder failure onto the taxonomy. A missing
// service credential is a gateway misconfiguration.
func serviceIdentityError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return proxy.ErrCallerGone
	}
	if errors.Is(err, backendauth.ErrNoTenant) {
		return auth.AsProxyError(auth.ErrNoIdentity)
	}
	return proxy.NewProxyError(http.StatusInternalServerError, "service credential unavailable", err)
}

// upstreamPath returns the escaped request path below prefix with dot
// segments resolved and empty segments dropped. A segment that decodes to
// "." or ".." counts as a dot segment; an escaped slash stays inside its
// segment.
func upstreamPath(c *gin.Context, prefix string) string {
	return resolveSegments(strings.TrimPrefix(c.Request.URL.EscapedPath(), prefix))
}

func resolveSegments(escaped string) string {
	segments := strings.Split(escaped, "/")
	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		last := i == len(segments)-1
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		switch decoded {
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			fallthrough
		case ".", "":
			// Keep the trailing slash of a directory-style path.
			if last {
				out = append(out, "")
			}
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/")
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
