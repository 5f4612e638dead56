package credential

import (
	"strings"

	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

const bearerPrefix = "Bearer "

// Policy resolves the user credential for a request.
type Policy interface {
	// Mode returns the deployment mode the policy was built for.
	Mode() Mode
	// Resolve builds the user-forwarding header set. It never fails; an
	// empty set means the caller presented no credential.
	Resolve(rc *RequestContext) proxy.ForwardedHeaders
	// BearerToken returns the bare token Resolve would forward, or "".
	BearerToken(rc *RequestContext) string
}

// NewPolicy returns the policy for mode.
func NewPolicy(mode Mode) Policy {
	if mode == Dev {
		return devPolicy{}
	}
	return prodPolicy{}
}

var (
	_ Policy = devPolicy{}
	_ Policy = prodPolicy{}
)

type prodPolicy struct{}

func (prodPolicy) Mode() Mode { return Prod }

func (prodPolicy) Resolve(rc *RequestContext) proxy.ForwardedHeaders {
	return userHeaders(rc.authorization, rc.cookieHeader)
}

func (prodPolicy) BearerToken(rc *RequestContext) string {
	return stripBearer(rc.authorization)
}

type devPolicy struct{}

func (devPolicy) Mode() Mode { return Dev }

func (devPolicy) Resolve(rc *RequestContext) proxy.ForwardedHeaders {
	return userHeaders(devAuthorization(rc), rc.cookieHeader)
}

func (devPolicy) BearerToken(rc *RequestContext) string {
	return stripBearer(devAuthorization(rc))
}

// devAuthorization prefers the dev_token cookie over the header.
func devAuthorization(rc *RequestContext) string {
	if token, ok := rc.DevToken(); ok {
		return withBearer(token)
	}
	return rc.authorization
}

func userHeaders(authorization, cookie string) proxy.ForwardedHeaders {
	h := proxy.NewUserHeaders()
	// Both names belong to the user shape, so Set cannot fail.
	if authorization != "" {
		_ = h.Set(proxy.HeaderAuthorization, authorization)
	}
	if cookie != "" {
		_ = h.Set(proxy.HeaderCookie, cookie)
	}
	return h
}

func withBearer(token string) string {
	if hasBearerPrefix(token) {
		return token
	}
	return bearerPrefix + token
}

func hasBearerPrefix(v string) bool {
	return len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix)
}

// stripBearer returns the token of a Bearer authorization value. Other
// schemes yield "".
func stripBearer(v string) string {
	if !hasBearerPrefix(v) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
