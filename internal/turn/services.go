// ABOUTME: Turn-scoped key/value cache shared by components touching a turn
// ABOUTME: Last write wins; cleared when the turn closes, never persisted

package turn

import "sync"

// Services is scratch storage for the duration of a turn.
type Services struct {
	mu     sync.RWMutex
	values map[any]any
}

// NewServices returns an empty cache.
func NewServices() *Services {
	return &Services{values: make(map[any]any)}
}

// Get returns the value stored under key.
func (s *Services) Get(key any) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *Services) Set(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *Services) Delete(key any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Has reports whether key is present.
func (s *Services) Has(key any) bool {
	_, ok := s.Get(key)
	return ok
}

// Len returns the number of entries.
func (s *Services) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Clear removes every entry.
func (s *Services) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

// Value is a typed lookup helper.
func Value[T any](s *Services, key any) (T, bool) {
	v, ok := s.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
