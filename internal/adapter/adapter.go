// ABOUTME: Base adapter running the middleware pipeline around the bot's turn handler
// ABOUTME: Serializes turns per conversation and supports proactive continuation

package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/turn"
)

// ContinueConversationEvent names the event activity used for proactive turns.
const ContinueConversationEvent = "continueConversation"

// Handler is the bot logic invoked once per turn after all middleware.
type Handler func(ctx context.Context, tc *turn.Context) error

// Middleware wraps every turn. Implementations call next to continue the
// pipeline; not calling it skips the remaining middleware and the handler.
type Middleware interface {
	OnTurn(ctx context.Context, tc *turn.Context, next func(context.Context) error) error
}

// MiddlewareFunc adapts a function into Middleware.
type MiddlewareFunc func(ctx context.Context, tc *turn.Context, next func(context.Context) error) error

// OnTurn calls f.
func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
	return f(ctx, tc, next)
}

// Base is embedded by channel transports to run turns.
type Base struct {
	mu         sync.RWMutex
	middleware []Middleware
	locks      *keyedMutex
	queue      *serialQueue
	logger     *slog.Logger
}

// NewBase creates a Base with no middleware.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		locks:  newKeyedMutex(),
		queue:  newSerialQueue(),
		logger: logger,
	}
}

// Use appends middleware. Middleware runs in registration order.
func (b *Base) Use(m ...Middleware) *Base {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, m...)
	return b
}

// Logger returns the logger turns are created with.
func (b *Base) Logger() *slog.Logger {
	return b.logger
}

// Dispatch queues job behind every job already dispatched for key and
// returns immediately. Transports call it from their read loop, before any
// network I/O, so turns in one conversation run in arrival order.
func (b *Base) Dispatch(key string, job func()) {
	b.queue.Submit(key, job)
}

// Wait blocks until all dispatched jobs have finished.
func (b *Base) Wait() {
	b.queue.Wait()
}

// ProcessActivity runs one turn for an inbound activity. The call blocks
// while another turn for the same conversation is in flight.
func (b *Base) ProcessActivity(ctx context.Context, adapter turn.Adapter, a *activity.Activity, handler Handler) error {
	if a == nil {
		return fmt.Errorf("processing activity: nil activity")
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	key := ConversationKey(a.ChannelID, a.ConversationID())
	unlock := b.locks.Lock(key)
	defer unlock()

	tc := turn.New(adapter, a, b.logger)
	defer tc.Close()

	start := time.Now()
	err := b.run(ctx, tc, handler)
	tc.Logger().Debug("turn complete",
		"activity_type", a.Type,
		"activity_id", a.ID,
		"responded", tc.Responded(),
		"duration", time.Since(start),
	)
	if err != nil {
		return fmt.Errorf("running turn: %w", err)
	}
	return nil
}

// ContinueConversation runs a proactive turn addressed by ref. The handler
// sees an event activity named ContinueConversationEvent.
func (b *Base) ContinueConversation(ctx context.Context, adapter turn.Adapter, ref activity.ConversationReference, handler Handler) error {
	a := activity.ApplyReference(activity.NewEvent(ContinueConversationEvent, nil), ref, true)
	return b.ProcessActivity(ctx, adapter, a, handler)
}

// run composes the middleware around handler.
func (b *Base) run(ctx context.Context, tc *turn.Context, handler Handler) error {
	b.mu.RLock()
	middleware := append([]Middleware(nil), b.middleware...)
	b.mu.RUnlock()

	var step func(i int) func(context.Context) error
	step = func(i int) func(context.Context) error {
		return func(ctx context.Context) error {
			if i == len(middleware) {
				if handler == nil {
					return nil
				}
				return handler(ctx, tc)
			}
			return middleware[i].OnTurn(ctx, tc, step(i+1))
		}
	}
	return step(0)(ctx)
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys are held or awaited.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
