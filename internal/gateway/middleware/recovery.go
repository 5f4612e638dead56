package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
	"github.com/vyrodovalexey/tenantgw/internal/proxy"
)

// Recovery turns a panic into a proxy_error 500. The panic value and stack
// go to the log only.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			logger.WithContext(c.Request.Context()).Error("panic recovered",
				observability.Any("error", rec),
				observability.String("method", c.Request.Method),
				observability.String("path", c.Request.URL.Path),
				zap.ByteString("stack", debug.Stack()),
			)

			if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
				span.RecordError(fmt.Errorf("panic: %v", rec))
			}

			if !c.Writer.Written() {
				proxy.WriteError(c.Writer, proxy.NewProxyError(
					http.StatusInternalServerError, "internal gateway error", nil,
				))
			}
			c.Abort()
		}()

		c.Next()
	}
}
