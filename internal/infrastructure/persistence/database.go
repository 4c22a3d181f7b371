package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edubill/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the process-wide gorm handle
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens cfg with SQL logging off. Tests use it.
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return NewDatabaseWithLogger(cfg, logger.Default.LogMode(logger.Silent))
}

// NewDatabaseWithLogger opens cfg, sizes the pool and pings once
func NewDatabaseWithLogger(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, newGormConfig(gormLogger))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialector.Name(), err)
	}
	d := &Database{DB: db}
	sqlDB, err := d.sql()
	if err != nil {
		return nil, err
	}
	configurePool(sqlDB, cfg)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialector.Name(), err)
	}
	return d, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// configurePool pins sqlite to a single connection: writers serialize anyway
// and ":memory:" databases live only as long as their connection.
func configurePool(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		return
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

// newGormConfig is used by every connection, tests included. Timestamps are
// UTC and driver errors are translated so unique violations surface as
// gorm.ErrDuplicatedKey.
func newGormConfig(gormLogger logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}
}

func (d *Database) sql() (*sql.DB, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	return sqlDB, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.sql()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PingContext backs the /health probe
func (d *Database) PingContext(ctx context.Context) error {
	sqlDB, err := d.sql()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
