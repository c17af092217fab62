// ABOUTME: Registry of dialogs by id shared across conversations
// ABOUTME: Binds a conversation's stack to a turn through CreateContext

package dialog

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-bot/internal/turn"
)

// Set maps dialog ids to dialogs. It is safe for concurrent use and is
// normally populated once at startup.
type Set struct {
	mu      sync.RWMutex
	dialogs map[string]Dialog
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{dialogs: make(map[string]Dialog)}
}

// Add registers d under id.
func (s *Set) Add(id string, d Dialog) error {
	if id == "" {
		return fmt.Errorf("adding dialog: empty id")
	}
	if d == nil {
		return fmt.Errorf("adding dialog %q: nil dialog", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.dialogs[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateDialog, id)
	}
	s.dialogs[id] = d
	return nil
}

// MustAdd is Add for setup code; it panics on error.
func (s *Set) MustAdd(id string, d Dialog) *Set {
	if err := s.Add(id, d); err != nil {
		panic(err)
	}
	return s
}

// Find returns the dialog registered under id, or nil.
func (s *Set) Find(id string) Dialog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dialogs[id]
}

// CreateContext binds stack to tc. The context mutates *stack in place, so
// the caller persists the same Stack after the turn.
func (s *Set) CreateContext(tc *turn.Context, stack *Stack) *Context {
	if stack == nil {
		stack = &Stack{}
	}
	logger := slog.Default()
	if tc != nil {
		logger = tc.Logger()
	}
	return &Context{
		set:    s,
		turn:   tc,
		stack:  stack,
		logger: logger.With("component", "dialog"),
	}
}
