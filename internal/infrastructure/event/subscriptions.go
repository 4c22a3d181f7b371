package event

import (
	"slices"
	"sync"

	"github.com/edubill/backend/internal/domain/shared"
	"github.com/samber/lo"
)

// subscription binds a handler to event types. No types means every type.
type subscription struct {
	handler shared.EventHandler
	types   []string
}

func (s subscription) wants(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// subscriptions keeps one entry per handler, in first-subscribed order
type subscriptions struct {
	mu   sync.RWMutex
	list []subscription
}

// add subscribes h, widening an existing subscription rather than
// duplicating it. Once subscribed to everything a handler stays that way.
func (s *subscriptions) add(h shared.EventHandler, types []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, i, found := lo.FindIndexOf(s.list, func(sub subscription) bool { return sub.handler == h })
	if !found {
		s.list = append(s.list, subscription{handler: h, types: lo.Uniq(types)})
		return
	}
	if len(s.list[i].types) == 0 || len(types) == 0 {
		s.list[i].types = nil
		return
	}
	s.list[i].types = lo.Union(s.list[i].types, types)
}

func (s *subscriptions) remove(h shared.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = lo.Reject(s.list, func(sub subscription, _ int) bool { return sub.handler == h })
}

func (s *subscriptions) matching(eventType string) []shared.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.FilterMap(s.list, func(sub subscription, _ int) (shared.EventHandler, bool) {
		return sub.handler, sub.wants(eventType)
	})
}

func (s *subscriptions) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}
