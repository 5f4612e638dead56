// Package credential decides which user credential is forwarded upstream.
//
// The decision depends only on the deployment mode, so it is captured once
// in a Policy value and reused by every handler. In dev mode a dev_token
// cookie overrides the Authorization header; in prod it never does.
package credential

import (
	"net/http"
	"strings"
)

// DevTokenCookie is the cookie honoured in dev mode.
const DevTokenCookie = "dev_token"

// Mode is the deployment mode.
type Mode int

const (
	// Prod never accepts a cookie credential override.
	Prod Mode = iota
	// Dev lets the dev_token cookie stand in for a real login.
	Dev
)

// String returns "dev" or "prod".
func (m Mode) String() string {
	if m == Dev {
		return "dev"
	}
	return "prod"
}

// ParseMode maps a mode name to a Mode. Only "dev" and "development"
// select Dev.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return Dev
	default:
		return Prod
	}
}

// RequestContext is an immutable view of one inbound request.
type RequestContext struct {
	authorization string
	cookieHeader  string
	devToken      string
	hasDevToken   bool
	mode          Mode
	body          []byte
}

// NewRequestContext captures the credential-relevant parts of r. body is
// the already-read request body.
func NewRequestContext(r *http.Request, mode Mode, body []byte) *RequestContext {
	rc := &RequestContext{
		authorization: strings.TrimSpace(r.Header.Get("Authorization")),
		cookieHeader:  strings.Join(r.Header.Values("Cookie"), "; "),
		mode:          mode,
		body:          body,
	}
	if c, err := r.Cookie(DevTokenCookie); err == nil && c.Value != "" {
		rc.devToken = c.Value
		rc.hasDevToken = true
	}
	return rc
}

// Authorization returns the raw Authorization header.
func (rc *RequestContext) Authorization() string {
	return rc.authorization
}

// CookieHeader returns the raw Cookie header.
func (rc *RequestContext) CookieHeader() string {
	return rc.cookieHeader
}

// DevToken returns the dev_token cookie value, if any.
func (rc *RequestContext) DevToken() (string, bool) {
	return rc.devToken, rc.hasDevToken
}

// Mode returns the deployment mode the context was captured under.
func (rc *RequestContext) Mode() Mode {
	return rc.mode
}

// RawBody returns the request body without copying. Callers must not
// modify it.
func (rc *RequestContext) RawBody() []byte {
	return rc.body
}
