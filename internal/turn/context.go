// ABOUTME: Turn context wrapping one inbound activity for the duration of a turn
// ABOUTME: Owns the send/update/delete interceptor chains, the responded flag and turn services

package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-bot/internal/activity"
)

// SendActivitiesHandler intercepts outbound activities.
type SendActivitiesHandler func(ctx context.Context, tc *Context, activities []*activity.Activity, next func(context.Context) ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error)

// UpdateActivityHandler intercepts activity updates.
type UpdateActivityHandler func(ctx context.Context, tc *Context, a *activity.Activity, next func(context.Context) error) error

// DeleteActivityHandler intercepts activity deletions.
type DeleteActivityHandler func(ctx context.Context, tc *Context, ref activity.ConversationReference, next func(context.Context) error) error

// Context is the per-turn wrapper around an inbound activity.
type Context struct {
	adapter   Adapter
	activity  *activity.Activity
	reference activity.ConversationReference
	services  *Services
	logger    *slog.Logger

	mu        sync.Mutex
	responded bool
	onSend    []SendActivitiesHandler
	onUpdate  []UpdateActivityHandler
	onDelete  []DeleteActivityHandler
}

// New creates a turn context for an inbound activity.
func New(adapter Adapter, a *activity.Activity, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		adapter:   adapter,
		activity:  a,
		reference: activity.ExtractReference(a),
		services:  NewServices(),
		logger:    logger.With("component", "turn", "conversation_id", a.ConversationID()),
	}
}

// Activity returns the inbound activity.
func (c *Context) Activity() *activity.Activity {
	return c.activity
}

// Adapter returns the channel adapter for this turn.
func (c *Context) Adapter() Adapter {
	return c.adapter
}

// Reference returns the conversation reference of the inbound activity.
func (c *Context) Reference() activity.ConversationReference {
	return c.reference
}

// Services returns the turn-scoped cache.
func (c *Context) Services() *Services {
	return c.services
}

// Logger returns the turn-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Responded reports whether at least one activity was sent this turn.
func (c *Context) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

// SetResponded marks the turn as responded. The flag only moves from false
// to true; passing false returns ErrInvalidStateTransition.
func (c *Context) SetResponded(responded bool) error {
	if !responded {
		return fmt.Errorf("%w: responded cannot be set to false", ErrInvalidStateTransition)
	}
	c.mu.Lock()
	c.responded = true
	c.mu.Unlock()
	return nil
}

// OnSendActivities registers a send interceptor. Returns c for chaining.
func (c *Context) OnSendActivities(h SendActivitiesHandler) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = append(c.onSend, h)
	return c
}

// OnUpdateActivity registers an update interceptor. Returns c for chaining.
func (c *Context) OnUpdateActivity(h UpdateActivityHandler) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = append(c.onUpdate, h)
	return c
}

// OnDeleteActivity registers a delete interceptor. Returns c for chaining.
func (c *Context) OnDeleteActivity(h DeleteActivityHandler) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDelete = append(c.onDelete, h)
	return c
}

// SendText sends a plain message activity.
func (c *Context) SendText(ctx context.Context, text string) (*activity.ResourceResponse, error) {
	return c.SendActivity(ctx, activity.NewMessage(text))
}

// SendActivity sends a single activity.
func (c *Context) SendActivity(ctx context.Context, a *activity.Activity) (*activity.ResourceResponse, error) {
	responses, err := c.SendActivities(ctx, a)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return &responses[0], nil
}

// SendActivities stamps each activity with the turn's reference, defaults a
// missing type to message, and delivers them through the send chain.
func (c *Context) SendActivities(ctx context.Context, acts ...*activity.Activity) ([]activity.ResourceResponse, error) {
	if len(acts) == 0 {
		return nil, nil
	}

	outbound := make([]*activity.Activity, len(acts))
	for i, a := range acts {
		out := activity.ApplyReference(a.Clone(), c.reference, false)
		if out.Type == "" {
			out.Type = activity.TypeMessage
		}
		if out.Locale == "" && c.activity != nil {
			out.Locale = c.activity.Locale
		}
		outbound[i] = out
	}

	c.mu.Lock()
	handlers := append([]SendActivitiesHandler(nil), c.onSend...)
	c.mu.Unlock()

	responses, err := chain(ctx, len(handlers),
		func(i int, ctx context.Context, next func(context.Context) ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
			return handlers[i](ctx, c, outbound, next)
		},
		func(ctx context.Context) ([]activity.ResourceResponse, error) {
			return c.adapter.SendActivities(ctx, c, outbound)
		},
	)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.responded = true
	c.mu.Unlock()

	c.logger.Debug("activities sent", "count", len(outbound))
	return responses, nil
}

// UpdateActivity replaces a previously sent activity through the update chain.
func (c *Context) UpdateActivity(ctx context.Context, a *activity.Activity) error {
	updated := activity.ApplyReference(a.Clone(), c.reference, false)
	if updated.Type == "" {
		updated.Type = activity.TypeMessage
	}

	c.mu.Lock()
	handlers := append([]UpdateActivityHandler(nil), c.onUpdate...)
	c.mu.Unlock()

	_, err := chain(ctx, len(handlers),
		func(i int, ctx context.Context, next func(context.Context) (struct{}, error)) (struct{}, error) {
			return struct{}{}, handlers[i](ctx, c, updated, discard(next))
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.adapter.UpdateActivity(ctx, c, updated)
		},
	)
	return err
}

// DeleteActivity deletes an activity by id, resolved against the turn's
// conversation reference.
func (c *Context) DeleteActivity(ctx context.Context, activityID string) error {
	ref := c.reference
	ref.ActivityID = activityID
	return c.DeleteActivityByReference(ctx, ref)
}

// DeleteActivityByReference deletes the activity addressed by ref.
func (c *Context) DeleteActivityByReference(ctx context.Context, ref activity.ConversationReference) error {
	c.mu.Lock()
	handlers := append([]DeleteActivityHandler(nil), c.onDelete...)
	c.mu.Unlock()

	_, err := chain(ctx, len(handlers),
		func(i int, ctx context.Context, next func(context.Context) (struct{}, error)) (struct{}, error) {
			return struct{}{}, handlers[i](ctx, c, ref, discard(next))
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.adapter.DeleteActivity(ctx, c, ref)
		},
	)
	return err
}

// Close ends the turn and clears turn-scoped services.
func (c *Context) Close() {
	c.services.Clear()
}
