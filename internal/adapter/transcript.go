// ABOUTME: Middleware recording every inbound and outbound activity in a transcript store
// ABOUTME: Outbound traffic is captured through the turn's send, update and delete interceptors

package adapter

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

// TranscriptLogger is middleware that writes a conversation's history to a
// store.TranscriptStore. Storage failures are logged and never fail the turn.
type TranscriptLogger struct {
	store  store.TranscriptStore
	logger *slog.Logger
}

// NewTranscriptLogger creates transcript middleware backed by s.
func NewTranscriptLogger(s store.TranscriptStore, logger *slog.Logger) *TranscriptLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptLogger{
		store:  s,
		logger: logger.With("component", "transcript"),
	}
}

// OnTurn logs the inbound activity and registers outbound interceptors.
func (t *TranscriptLogger) OnTurn(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
	t.log(ctx, store.DirectionInbound, tc.Activity())

	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, acts []*activity.Activity, next func(context.Context) ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
		responses, err := next(ctx)
		if err != nil {
			return nil, err
		}
		for i, a := range acts {
			sent := a.Clone()
			if i < len(responses) && responses[i].ID != "" {
				sent.ID = responses[i].ID
			}
			t.log(ctx, store.DirectionOutbound, sent)
		}
		return responses, nil
	})

	tc.OnUpdateActivity(func(ctx context.Context, tc *turn.Context, a *activity.Activity, next func(context.Context) error) error {
		if err := next(ctx); err != nil {
			return err
		}
		updated := a.Clone()
		updated.Type = activity.TypeMessageUpdate
		t.log(ctx, store.DirectionOutbound, updated)
		return nil
	})

	tc.OnDeleteActivity(func(ctx context.Context, tc *turn.Context, ref activity.ConversationReference, next func(context.Context) error) error {
		if err := next(ctx); err != nil {
			return err
		}
		deleted := activity.ApplyReference(&activity.Activity{Type: activity.TypeMessageDelete}, ref, false)
		deleted.ID = ref.ActivityID
		t.log(ctx, store.DirectionOutbound, deleted)
		return nil
	})

	return next(ctx)
}

func (t *TranscriptLogger) log(ctx context.Context, dir store.Direction, a *activity.Activity) {
	entry := store.NewTranscriptEntry(uuid.NewString(), dir, a)
	if err := t.store.LogActivity(ctx, entry); err != nil {
		t.logger.Warn("failed to log activity",
			"error", err,
			"direction", dir,
			"conversation_id", entry.ConversationID,
		)
	}
}
