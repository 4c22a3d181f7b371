package shared

import (
	"context"
	"time"
)

// LockStore provides short-lived named mutual exclusion across processes
type LockStore interface {
	// TryLock acquires key for ttl. Returns false if another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock releases key. Releasing an expired or unknown key is not an error.
	Unlock(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}
