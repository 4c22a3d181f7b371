package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockPrefix = "edubill:lock:"

// unlockScript deletes the key only while it still holds our token, so a
// holder whose lease expired cannot release somebody else's lock
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockStore implements shared.LockStore using Redis.
// Suitable for deployments where several job runners share one schedule.
type RedisLockStore struct {
	client    *redis.Client
	keyPrefix string

	mu     sync.Mutex
	tokens map[string]string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisLockStore creates a Redis-backed lock store and verifies the connection
func NewRedisLockStore(cfg RedisConfig) (*RedisLockStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLockStoreWithClient(client, ""), nil
}

// NewRedisLockStoreWithClient creates a store with an existing Redis client
func NewRedisLockStoreWithClient(client *redis.Client, keyPrefix string) *RedisLockStore {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	return &RedisLockStore{
		client:    client,
		keyPrefix: keyPrefix,
		tokens:    make(map[string]string),
	}
}

// TryLock acquires key with SET NX and a fresh owner token
func (s *RedisLockStore) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	s.mu.Lock()
	s.tokens[key] = token
	s.mu.Unlock()
	return true, nil
}

// Unlock releases key if this store still owns it
func (s *RedisLockStore) Unlock(ctx context.Context, key string) error {
	s.mu.Lock()
	token, ok := s.tokens[key]
	delete(s.tokens, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := unlockScript.Run(ctx, s.client, []string{s.keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisLockStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *RedisLockStore) Client() *redis.Client {
	return s.client
}

var _ shared.LockStore = (*RedisLockStore)(nil)
