// Package middleware provides the gin middleware of the billing API.
package middleware

import (
	"net/http"

	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength bounds incoming request ids kept in logs and spans
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "edubill",
		Enabled:     true,
	}
}

// TracingWithConfig wraps otelgin. The server span is named after the route
// pattern (e.g. "GET /api/v1/transactions/:id").
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TenantSpanAttributes copies the request id and the caller's tenant onto
// the server span. It runs after the tenant middleware.
func TenantSpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			var attrs []attribute.KeyValue
			if id := c.GetString(logger.GinRequestIDKey); id != "" {
				attrs = append(attrs, attribute.String("request_id", id))
			}
			if id := c.GetString(logger.GinAccountIDKey); id != "" {
				attrs = append(attrs, telemetry.AttrAccountID.String(id))
			}
			if id := c.GetString(logger.GinAgencyIDKey); id != "" {
				attrs = append(attrs, telemetry.AttrAgencyID.String(id))
			}
			if id := c.GetString(logger.GinActorIDKey); id != "" {
				attrs = append(attrs, attribute.String("edubill.actor_id", id))
			}
			span.SetAttributes(attrs...)
		}
		c.Next()
	}
}

// SpanErrorMarker marks the server span failed for 4xx and 5xx responses.
// Place it after the tracing middleware.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
		if len(c.Errors) > 0 {
			span.SetAttributes(attribute.String("edubill.error", c.Errors.Last().Error()))
		}
	}
}
