package router

import (
	"time"

	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/edubill/backend/internal/interfaces/http/handler"
	"github.com/edubill/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EngineOptions configure the HTTP engine
type EngineOptions struct {
	HTTP        config.HTTPConfig
	APIVersion  string
	ServiceName string
	Tracing     bool
	// Profiling adds pprof request labels on the billing routes
	Profiling bool
	// Meters is optional; without it no request metrics are recorded
	Meters   *telemetry.MeterProvider
	Checker  middleware.AccountChecker
	Logger   *zap.Logger
	Handlers Handlers
	System   *handler.SystemHandler
}

// Engine is the configured gin engine and its background resources
type Engine struct {
	*gin.Engine
	limiter *middleware.RateLimiter
}

// Close releases the rate limiter's cleanup goroutine
func (e *Engine) Close() {
	if e.limiter != nil {
		e.limiter.Close()
	}
}

// NewEngine builds the engine with the middleware stack in this order:
// request id, access log, panic recovery, tracing, security headers, CORS,
// body limit, metrics. The tenant middleware, span attributes and rate
// limiting run on the billing routes only.
func NewEngine(opts EngineOptions) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()
	engine := gin.New()
	if len(opts.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: opts.ServiceName,
		Enabled:     opts.Tracing,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.Secure())

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins
	if len(opts.HTTP.CORSAllowMethods) > 0 {
		cors.AllowMethods = opts.HTTP.CORSAllowMethods
	}
	if len(opts.HTTP.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = opts.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(cors))

	if opts.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.HTTP.MaxBodySize))
	}

	metrics, err := middleware.HTTPMetrics(opts.Meters)
	if err != nil {
		return nil, err
	}
	engine.Use(metrics)

	out := &Engine{Engine: engine}
	if opts.System != nil {
		engine.GET("/health", opts.System.Health)
	}

	tenantCfg := middleware.DefaultTenantConfig()
	tenantCfg.Checker = opts.Checker
	tenantCfg.Logger = log
	scoped := []gin.HandlerFunc{
		middleware.TenantMiddlewareWithConfig(tenantCfg),
		middleware.TenantSpanAttributes(),
	}
	if opts.Profiling {
		scoped = append(scoped, middleware.Profiling())
	}
	if opts.HTTP.RateLimit > 0 {
		window := opts.HTTP.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		out.limiter = middleware.NewRateLimiter(opts.HTTP.RateLimit, window)
		scoped = append(scoped, middleware.RateLimit(out.limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", opts.HTTP.RateLimit),
			zap.Duration("window", window),
		)
	}

	resources := BillingResources(opts.Handlers)
	for _, r := range resources {
		r.Guard(scoped...)
	}
	if opts.System != nil {
		resources = append(resources, SystemResource(opts.System))
	}
	Mount(engine, opts.APIVersion, resources...)

	return out, nil
}
