// ABOUTME: Turn middleware dropping inbound activities that were already processed
// ABOUTME: Keys activities by channel, conversation and activity id

package dedupe

import (
	"context"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/turn"
)

// Key identifies an inbound activity. Activities without an id have no key.
func Key(a *activity.Activity) string {
	if a == nil || a.ID == "" {
		return ""
	}
	return a.ChannelID + "/" + a.ConversationID() + "/" + a.ID
}

// Middleware skips the rest of the turn for duplicate activities. Proactive
// turns reuse the id of the message they continue and are never dropped.
func Middleware(cache *Cache) adapter.Middleware {
	return adapter.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
		if tc.Activity().IsEvent(adapter.ContinueConversationEvent) {
			return next(ctx)
		}
		key := Key(tc.Activity())
		if key != "" && cache.CheckAndMark(key) {
			tc.Logger().Debug("dropping duplicate activity", "activity_id", tc.Activity().ID)
			return nil
		}
		return next(ctx)
	})
}
