package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/edubill/backend/internal/infrastructure/config"
)

const queryStartKey = "edubill:query_start"

var (
	attrDBOperation = attribute.Key("db.operation")
	attrDBTable     = attribute.Key("db.table")
	attrDBState     = attribute.Key("state")
)

// DBInstrumentation tracks what was registered on a gorm handle
type DBInstrumentation struct {
	Tracing bool
	Metrics bool
}

// InstrumentDB registers otelgorm spans and query metrics on db according to
// cfg. slow marks the threshold above which a query counts as slow.
func InstrumentDB(db *gorm.DB, cfg config.TelemetryConfig, driver string, mp *MeterProvider, slow time.Duration, logger *zap.Logger) (DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out DBInstrumentation
	if cfg.Enabled && cfg.DBTracingEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(driver)}
		if !cfg.DBLogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return out, fmt.Errorf("register otelgorm: %w", err)
		}
		out.Tracing = true
	}
	if mp.IsEnabled() {
		plugin, err := newQueryMetricsPlugin(db, mp.Meter(MeterName), slow)
		if err != nil {
			return out, err
		}
		if err := db.Use(plugin); err != nil {
			return out, fmt.Errorf("register query metrics: %w", err)
		}
		out.Metrics = true
	}
	logger.Info("Database instrumentation configured",
		zap.Bool("tracing", out.Tracing),
		zap.Bool("metrics", out.Metrics),
		zap.Duration("slow_query_threshold", slow),
	)
	return out, nil
}

// queryMetricsPlugin counts and times every gorm operation
type queryMetricsPlugin struct {
	total    *Counter
	slow     *Counter
	duration *Histogram
	thresh   time.Duration
}

func newQueryMetricsPlugin(db *gorm.DB, meter metric.Meter, slow time.Duration) (*queryMetricsPlugin, error) {
	p := &queryMetricsPlugin{thresh: slow}
	var err error
	if p.total, err = NewCounter(meter, "db.queries", "Database operations executed", "{query}"); err != nil {
		return nil, err
	}
	if p.slow, err = NewCounter(meter, "db.queries.slow", "Database operations slower than the threshold", "{query}"); err != nil {
		return nil, err
	}
	if p.duration, err = NewHistogram(meter, "db.query.duration", "Database operation latency", "s",
		0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	_, err = meter.Int64ObservableGauge("db.pool.connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			stats := sqlDB.Stats()
			o.Observe(int64(stats.Idle), metric.WithAttributes(attrDBState.String("idle")))
			o.Observe(int64(stats.InUse), metric.WithAttributes(attrDBState.String("in_use")))
			o.Observe(int64(stats.OpenConnections), metric.WithAttributes(attrDBState.String("open")))
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool gauge: %w", err)
	}
	return p, nil
}

func (p *queryMetricsPlugin) Name() string { return "edubill:query_metrics" }

func (p *queryMetricsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op       string
		before   func(string, func(*gorm.DB)) error
		after    func(string, func(*gorm.DB)) error
		gormName string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "create"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "query"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "update"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "delete"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, "row"},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, "raw"},
	}
	for _, h := range hooks {
		op := h.op
		if err := h.before("edubill:metrics_before_"+h.gormName, p.before); err != nil {
			return err
		}
		if err := h.after("edubill:metrics_after_"+h.gormName, func(db *gorm.DB) { p.after(db, op) }); err != nil {
			return err
		}
	}
	return nil
}

func (p *queryMetricsPlugin) before(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (p *queryMetricsPlugin) after(db *gorm.DB, op string) {
	v, ok := db.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	elapsed := time.Since(start)
	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}
	p.total.Inc(ctx, attrDBOperation.String(op), attrDBTable.String(table))
	p.duration.RecordDuration(ctx, elapsed, attrDBOperation.String(op))
	if p.thresh > 0 && elapsed > p.thresh {
		p.slow.Inc(ctx, attrDBTable.String(table))
	}
}
