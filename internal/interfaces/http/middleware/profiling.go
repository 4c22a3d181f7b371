package middleware

import (
	"context"

	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling tags the request's goroutine with pprof labels for the matched
// route pattern, the method and the account, so Pyroscope can slice CPU and
// allocations per endpoint and tenant. Mount it after the tenant middleware.
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		telemetry.ProfileRequest(c.Request.Context(), c.FullPath(), c.Request.Method, GetTenantID(c),
			func(ctx context.Context) {
				c.Request = c.Request.WithContext(ctx)
				c.Next()
			})
	}
}
