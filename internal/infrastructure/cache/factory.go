package cache

import (
	"fmt"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/edubill/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// LockStoreFactory creates lock stores based on configuration
type LockStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockStoreFactoryOption is a functional option for configuring the factory
type LockStoreFactoryOption func(*LockStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockStoreFactoryOption {
	return func(f *LockStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) LockStoreFactoryOption {
	return func(f *LockStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockStoreFactory creates a new factory
func NewLockStoreFactory(cfg config.RedisConfig, opts ...LockStoreFactoryOption) *LockStoreFactory {
	f := &LockStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisStore creates a Redis-based lock store
func (f *LockStoreFactory) CreateRedisStore() (shared.LockStore, error) {
	store, err := NewRedisLockStore(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis lock store: %w", err)
	}
	return store, nil
}

// CreateInMemoryStore creates an in-memory lock store.
// Locks are not shared across process instances.
func (f *LockStoreFactory) CreateInMemoryStore() shared.LockStore {
	return NewInMemoryLockStore()
}

// CreateStore returns a Redis store when Redis is enabled and reachable,
// falling back to in-memory when allowed
func (f *LockStoreFactory) CreateStore() (shared.LockStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("redis disabled, using in-memory lock store")
		return f.CreateInMemoryStore(), nil
	}

	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis lock store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for generation locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory lock store. "+
		"Concurrent job runners on other instances will not be excluded.",
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}
