package cache

import (
	"context"
	"sync"
	"time"

	"github.com/edubill/backend/internal/domain/shared"
)

// InMemoryLockStore implements shared.LockStore with a process-local map.
// Only safe for single-instance deployments and tests.
type InMemoryLockStore struct {
	mu        sync.Mutex
	leases    map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryLockStore creates a store and starts the expired-lease sweeper
func NewInMemoryLockStore() *InMemoryLockStore {
	return newInMemoryLockStore(time.Now, 5*time.Minute)
}

func newInMemoryLockStore(now func() time.Time, sweep time.Duration) *InMemoryLockStore {
	s := &InMemoryLockStore{
		leases:   make(map[string]time.Time),
		now:      now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop(sweep)
	return s
}

// TryLock acquires key unless an unexpired lease exists
func (s *InMemoryLockStore) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiresAt, held := s.leases[key]; held && now.Before(expiresAt) {
		return false, nil
	}
	s.leases[key] = now.Add(ttl)
	return true, nil
}

// Unlock releases key
func (s *InMemoryLockStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.leases, key)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *InMemoryLockStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryLockStore) cleanupLoop(every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryLockStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, expiresAt := range s.leases {
		if !now.Before(expiresAt) {
			delete(s.leases, key)
		}
	}
}

// Size returns the number of leases currently tracked
func (s *InMemoryLockStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leases)
}

var _ shared.LockStore = (*InMemoryLockStore)(nil)
