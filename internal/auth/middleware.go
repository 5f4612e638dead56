package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/tenantgw/internal/credential"
	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

// SkipFunc reports whether a request bypasses authentication.
type SkipFunc func(c *gin.Context) bool

// Middleware authenticates every request reaching it and stores the tenant
// identity in the request context. Failed requests are aborted with an
// auth_error and never reach the handler. skip may be nil.
func Middleware(guard *Guard, skip SkipFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skip != nil && skip(c) {
			guard.RecordSkipped()
			c.Next()
			return
		}

		rc := credential.NewRequestContext(c.Request, guard.Mode(), nil)
		identity, err := guard.Authenticate(c.Request.Context(), rc)
		if err != nil {
			proxy.WriteError(c.Writer, AsProxyError(err))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(ContextWithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// SkipUpstreamPath skips requests whose wildcard path parameter is one of
// the guard's skip paths. A request path sent with escapes that decode to
// something else, such as %2F or %2E, is always authenticated.
func SkipUpstreamPath(guard *Guard, param string) SkipFunc {
	return func(c *gin.Context) bool {
		if c.Request.URL.RawPath != "" {
			return false
		}
		return guard.Skips(c.Param(param))
	}
}
