// ABOUTME: Typed accessor for one field of a state scope
// ABOUTME: Values are decoded once per turn and handed out as live pointers

package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/coven-bot/internal/turn"
)

// Property is a typed field of a State.
type Property[T any] struct {
	state *State
	name  string
}

// NewProperty returns the property name of s.
func NewProperty[T any](s *State, name string) *Property[T] {
	return &Property[T]{state: s, name: name}
}

// Name returns the property name.
func (p *Property[T]) Name() string {
	return p.name
}

// Get returns the live value, loading the state if needed. A missing
// property yields a pointer to the zero value, which is saved with the
// state.
func (p *Property[T]) Get(ctx context.Context, tc *turn.Context) (*T, error) {
	c, err := p.load(ctx, tc)
	if err != nil {
		return nil, err
	}

	if v, ok := c.live[p.name]; ok {
		typed, ok := v.(*T)
		if !ok {
			return nil, fmt.Errorf("property %q holds %T", p.name, v)
		}
		return typed, nil
	}

	value := new(T)
	if raw, ok := c.raw[p.name]; ok {
		if err := json.Unmarshal(raw, value); err != nil {
			return nil, fmt.Errorf("decoding property %q: %w", p.name, err)
		}
	}
	c.live[p.name] = value
	return value, nil
}

// Has reports whether the property is set, without creating it.
func (p *Property[T]) Has(ctx context.Context, tc *turn.Context) (bool, error) {
	c, err := p.load(ctx, tc)
	if err != nil {
		return false, err
	}
	_, live := c.live[p.name]
	_, raw := c.raw[p.name]
	return live || raw, nil
}

// Set replaces the value.
func (p *Property[T]) Set(ctx context.Context, tc *turn.Context, value T) error {
	c, err := p.load(ctx, tc)
	if err != nil {
		return err
	}
	c.live[p.name] = &value
	return nil
}

// Delete removes the property.
func (p *Property[T]) Delete(ctx context.Context, tc *turn.Context) error {
	c, err := p.load(ctx, tc)
	if err != nil {
		return err
	}
	delete(c.live, p.name)
	delete(c.raw, p.name)
	return nil
}

func (p *Property[T]) load(ctx context.Context, tc *turn.Context) (*cached, error) {
	if err := p.state.Load(ctx, tc, false); err != nil {
		return nil, err
	}
	c, _ := p.state.cached(tc)
	return c, nil
}
