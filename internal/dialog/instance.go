// ABOUTME: Dialog stack frames and their persisted state helpers
// ABOUTME: Includes the started-at timestamp used for prompt timeouts

package dialog

import (
	"encoding/json"
	"math"
	"time"
)

const startedAtKey = "_startedAt"

// Instance is one stack frame. State belongs to the dialog that pushed it.
type Instance struct {
	ID    string         `json:"id"`
	State map[string]any `json:"state"`
}

// Stack is the persisted dialog stack; index 0 is the bottom.
type Stack []*Instance

// Depth returns the number of frames.
func (s *Stack) Depth() int {
	if s == nil {
		return 0
	}
	return len(*s)
}

// Top returns the active frame or nil.
func (s *Stack) Top() *Instance {
	if s.Depth() == 0 {
		return nil
	}
	return (*s)[len(*s)-1]
}

func (s *Stack) push(inst *Instance) {
	*s = append(*s, inst)
}

func (s *Stack) pop() *Instance {
	top := s.Top()
	if top != nil {
		(*s)[len(*s)-1] = nil
		*s = (*s)[:len(*s)-1]
	}
	return top
}

// MarkStarted records now as the time the frame started waiting.
func (i *Instance) MarkStarted(now time.Time) {
	i.ensureState()
	i.State[startedAtKey] = now.UTC().Format(time.RFC3339Nano)
}

// StartedAt returns the time recorded by MarkStarted.
func (i *Instance) StartedAt() (time.Time, bool) {
	s, ok := i.State[startedAtKey].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Expired reports whether more than d has passed since MarkStarted. Frames
// that never recorded a start do not expire.
func (i *Instance) Expired(now time.Time, d time.Duration) bool {
	started, ok := i.StartedAt()
	return ok && now.Sub(started) > d
}

func (i *Instance) ensureState() {
	if i.State == nil {
		i.State = make(map[string]any)
	}
}

// Int reads an integer from frame state, accepting the float64 and
// json.Number forms produced by decoding.
func Int(state map[string]any, key string) (int, bool) {
	switch v := state[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Map reads a nested object from frame state, creating it when missing.
func Map(state map[string]any, key string) map[string]any {
	if m, ok := state[key].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	state[key] = m
	return m
}
