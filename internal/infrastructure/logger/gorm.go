package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM statements through zap, tagged with the request
// and account scope carried by the context.
type GormLogger struct {
	log          *zap.Logger
	level        gormlogger.LogLevel
	slow         time.Duration
	skipNotFound bool
}

type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is logged as slow.
// Zero disables slow-query logging.
func WithSlowThreshold(d time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slow = d }
}

// WithIgnoreRecordNotFoundError drops gorm.ErrRecordNotFound from the error log
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) { l.skipNotFound = ignore }
}

// NewGormLogger wraps log. The caller names the logger.
func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{log: log, level: level, slow: 200 * time.Millisecond, skipNotFound: true}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.sugar(ctx).Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.sugar(ctx).Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.sugar(ctx).Errorf(msg, data...)
	}
}

// Trace logs one statement. Errors win over slowness; unique violations are
// expected on the one-open-transaction index and stay at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error:
		if l.skipNotFound && errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			l.log.Debug("SQL constraint", append(statementFields(ctx, elapsed, fc), zap.Error(err))...)
			return
		}
		l.log.Error("SQL Error", append(statementFields(ctx, elapsed, fc), zap.Error(err))...)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		l.log.Warn("SLOW SQL >= "+l.slow.String(), statementFields(ctx, elapsed, fc)...)
	case l.level >= gormlogger.Info:
		l.log.Debug("SQL Query", statementFields(ctx, elapsed, fc)...)
	}
}

func statementFields(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	return append(fields, scopeFields(ctx)...)
}

func scopeFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	for _, kv := range [...][2]string{
		{"request_id", GetRequestID(ctx)},
		{"account_id", GetAccountID(ctx)},
		{"trace_id", GetTraceID(ctx)},
	} {
		if kv[1] != "" {
			fields = append(fields, zap.String(kv[0], kv[1]))
		}
	}
	return fields
}

func (l *GormLogger) sugar(ctx context.Context) *zap.SugaredLogger {
	return l.log.With(scopeFields(ctx)...).Sugar()
}

// MapGormLogLevel maps a log level name onto GORM's levels. debug shows every
// statement; unknown names fall back to warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
