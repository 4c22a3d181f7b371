package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/cache"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultSlowQuery = 200 * time.Millisecond

// Runtime owns the process-wide infrastructure: telemetry providers, the
// database handle and the generation lock store.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Database *persistence.Database
	Locks    shared.LockStore
	Tracer   *telemetry.TracerProvider
	Meters   *telemetry.MeterProvider
	Logs     *telemetry.LoggerProvider
	Metrics  *telemetry.BillingMetrics
	Profiler *telemetry.Profiler
}

// Open brings up telemetry and profiling, connects and instruments the database and picks a
// lock store. The returned logger is bridged into OTLP when log export is on.
// sqlite databases are auto-migrated; postgres is migrated by cmd/migrate.
func Open(ctx context.Context, cfg *config.Config, base *zap.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: base}

	var err error
	if rt.Tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, base); err != nil {
		return nil, err
	}
	if rt.Meters, err = telemetry.NewMeterProvider(ctx, cfg.Telemetry, base); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	if rt.Logs, err = telemetry.NewLoggerProvider(ctx, cfg.Telemetry, base); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.Logger = rt.Logs.Bridge(base, cfg.Telemetry.ServiceName, zapcore.InfoLevel)

	if rt.Profiler, err = telemetry.NewProfiler(cfg.Telemetry.Profiling, rt.Logger); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.SpanProfiles {
		rt.Tracer.EnableSpanProfiles()
	}

	if rt.Metrics, err = telemetry.NewBillingMetrics(rt.Meters); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	level := cfg.Database.LogLevel
	if level == "" {
		level = cfg.Log.Level
	}
	slow := cfg.Database.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	gormLog := logger.NewGormLogger(rt.Logger.Named("gorm"), logger.MapGormLogLevel(level),
		logger.WithSlowThreshold(slow),
		logger.WithIgnoreRecordNotFoundError(true),
	)
	if rt.Database, err = persistence.NewDatabaseWithLogger(&cfg.Database, gormLog); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.Logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if _, err = telemetry.InstrumentDB(rt.Database.DB, cfg.Telemetry, cfg.Database.Driver, rt.Meters, slow, rt.Logger); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		if err = persistence.AutoMigrate(rt.Database.DB); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("auto-migrate sqlite: %w", err)
		}
	}

	rt.Locks, err = cache.NewLockStoreFactory(cfg.Redis,
		cache.WithLogger(rt.Logger.Named("locks")),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

// Services wires the billing services on this runtime
func (rt *Runtime) Services(publisher shared.EventPublisher) *Services {
	return NewServices(Deps{
		DB:        rt.Database.DB,
		Locks:     rt.Locks,
		Billing:   rt.Config.Billing,
		Publisher: publisher,
		Metrics:   rt.Metrics,
		Logger:    rt.Logger,
	})
}

// Close releases everything Open acquired, in reverse order. Providers are
// flushed last so shutdown spans and logs still export.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Locks != nil {
		errs = append(errs, rt.Locks.Close())
	}
	if rt.Database != nil {
		errs = append(errs, rt.Database.Close())
	}
	errs = append(errs, rt.Profiler.Stop())
	if rt.Logs != nil {
		errs = append(errs, rt.Logs.Shutdown(ctx))
	}
	if rt.Meters != nil {
		errs = append(errs, rt.Meters.Shutdown(ctx))
	}
	if rt.Tracer != nil {
		errs = append(errs, rt.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
