// ABOUTME: Transcript store types for conversation history
// ABOUTME: Every inbound and outbound activity is recorded per channel conversation

package store

import (
	"context"
	"time"

	"github.com/2389/coven-bot/internal/activity"
)

// Direction indicates whether an activity came from the user or the bot.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// TranscriptEntry is one recorded activity.
type TranscriptEntry struct {
	ID             string
	ChannelID      string
	ConversationID string
	Direction      Direction
	Type           activity.Type
	FromID         string
	Timestamp      time.Time
	Activity       *activity.Activity
}

// TranscriptStore records conversation history.
type TranscriptStore interface {
	LogActivity(ctx context.Context, entry *TranscriptEntry) error
	// GetTranscript returns the most recent limit entries in chronological
	// order. limit <= 0 returns everything.
	GetTranscript(ctx context.Context, channelID, conversationID string, limit int) ([]*TranscriptEntry, error)
	DeleteTranscript(ctx context.Context, channelID, conversationID string) error
}

// NewTranscriptEntry builds an entry for a, stamping the time when the
// activity carries none.
func NewTranscriptEntry(id string, dir Direction, a *activity.Activity) *TranscriptEntry {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &TranscriptEntry{
		ID:             id,
		ChannelID:      a.ChannelID,
		ConversationID: a.ConversationID(),
		Direction:      dir,
		Type:           a.Type,
		FromID:         a.FromID(),
		Timestamp:      ts,
		Activity:       a.Clone(),
	}
}
