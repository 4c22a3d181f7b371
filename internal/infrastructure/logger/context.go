package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// AccountIDKey is the context key for the tenant account
	AccountIDKey contextKey = "account_id"
	// AgencyIDKey is the context key for the acting agency
	AgencyIDKey contextKey = "agency_id"
	// ActorIDKey is the context key for the user performing the operation
	ActorIDKey contextKey = "actor_id"
)

// IntegrityViolation marks log entries describing an attempt to rewrite or
// delete audit history
var IntegrityViolation = zap.Bool("integrity_violation", true)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID adds request ID to context and returns enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// Scope is the tenant identity a request runs under
type Scope struct {
	AccountID string
	AgencyID  string
	ActorID   string
}

// WithScope stores the tenant scope in ctx and returns a logger carrying it.
// Empty members are skipped.
func WithScope(ctx context.Context, logger *zap.Logger, s Scope) (context.Context, *zap.Logger) {
	var fields []zap.Field
	if s.AccountID != "" {
		ctx = context.WithValue(ctx, AccountIDKey, s.AccountID)
		fields = append(fields, zap.String("account_id", s.AccountID))
	}
	if s.AgencyID != "" {
		ctx = context.WithValue(ctx, AgencyIDKey, s.AgencyID)
		fields = append(fields, zap.String("agency_id", s.AgencyID))
	}
	if s.ActorID != "" {
		ctx = context.WithValue(ctx, ActorIDKey, s.ActorID)
		fields = append(fields, zap.String("actor_id", s.ActorID))
	}
	enriched := logger.With(fields...)
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetAccountID retrieves the account ID from context
func GetAccountID(ctx context.Context) string {
	return stringValue(ctx, AccountIDKey)
}

// GetAgencyID retrieves the agency ID from context
func GetAgencyID(ctx context.Context) string {
	return stringValue(ctx, AgencyIDKey)
}

// GetActorID retrieves the actor ID from context
func GetActorID(ctx context.Context) string {
	return stringValue(ctx, ActorIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID extracts the trace ID from the context's span, or ""
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// GetSpanID extracts the span ID from the context's span, or ""
func GetSpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.SpanID().String()
}

// WithTraceContext adds trace_id and span_id from the context's span.
// Without a valid span the logger is returned unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// ContextLogger injects trace and tenant identifiers from a context into
// every entry it writes.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L returns a ContextLogger for ctx.
// Usage: logger.L(ctx).Info("transaction claimed", zap.String("transaction_id", id))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger returns a ContextLogger that writes through logger instead of
// the one stored in ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) enrichedLogger() *zap.Logger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}
	l = WithTraceContext(cl.ctx, l)

	var fields []zap.Field
	if v := GetRequestID(cl.ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := GetAccountID(cl.ctx); v != "" {
		fields = append(fields, zap.String("account_id", v))
	}
	if v := GetAgencyID(cl.ctx); v != "" {
		fields = append(fields, zap.String("agency_id", v))
	}
	if v := GetActorID(cl.ctx); v != "" {
		fields = append(fields, zap.String("actor_id", v))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// With creates a child ContextLogger with additional fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	base := cl.logger
	if base == nil {
		base = zap.NewNop()
	}
	return &ContextLogger{ctx: cl.ctx, logger: base.With(fields...)}
}

// Debug logs at debug level
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Debug(msg, fields...)
}

// Info logs at info level
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Info(msg, fields...)
}

// Warn logs at warn level
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Warn(msg, fields...)
}

// Error logs at error level
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Error(msg, fields...)
}

// Zap returns the enriched *zap.Logger
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.enrichedLogger()
}
