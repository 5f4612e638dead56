package backend

import (
	"strings"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Locator holds the base URL of every target. It is built once per
// configuration snapshot and is safe for concurrent use.
type Locator struct {
	urls map[Target]string
}

// LocatorOption is a functional option for the locator.
type LocatorOption func(*locatorOptions)

type locatorOptions struct {
	logger     observability.Logger
	configured map[Target]string
}

// WithLocatorLogger logs the resolved base URLs (credentials masked).
func WithLocatorLogger(logger observability.Logger) LocatorOption {
	return func(o *locatorOptions) {
		o.logger = logger
	}
}

// WithConfiguredURL supplies the configuration-file value for t, used when
// neither environment variable is set.
func WithConfiguredURL(t Target, url string) LocatorOption {
	return func(o *locatorOptions) {
		o.configured[t] = url
	}
}

// NewLocator resolves every target once.
func NewLocator(lookup LookupFunc, opts ...LocatorOption) *Locator {
	o := &locatorOptions{
		logger:     observability.NopLogger(),
		configured: make(map[Target]string, len(Targets)),
	}
	for _, opt := range opts {
		opt(o)
	}

	l := &Locator{urls: make(map[Target]string, len(Targets))}
	for _, t := range Targets {
		l.urls[t] = ResolveBaseURL(t, lookup, o.configured[t])
		o.logger.Info("backend resolved",
			observability.String("target", t.String()),
			observability.URL("base_url", l.urls[t]),
		)
	}
	return l
}

// URL returns the base URL of t.
func (l *Locator) URL(t Target) string {
	if u, ok := l.urls[t]; ok {
		return u
	}
	return t.DefaultURL()
}

// Endpoint joins the base URL of t with an already escaped path and an
// optional raw query.
func (l *Locator) Endpoint(t Target, path, rawQuery string) string {
	var sb strings.Builder
	sb.WriteString(l.URL(t))
	if path != "" {
		if !strings.HasPrefix(path, "/") {
			sb.WriteByte('/')
		}
		sb.WriteString(path)
	}
	if rawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(rawQuery)
	}
	return sb.String()
}
