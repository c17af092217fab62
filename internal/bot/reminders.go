// ABOUTME: Reminder schedule shared by every user and the loop that delivers due reminders
// ABOUTME: Delivery runs a proactive turn through the channel the reminder was set on

package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

// ScheduleKey is the storage key of the pending reminder schedule.
const ScheduleKey = "bot/reminders"

// DefaultReminderInterval is how often RunReminders looks for due reminders.
const DefaultReminderInterval = 30 * time.Second

// scheduleRetries bounds read-modify-write attempts on ETag conflicts.
const scheduleRetries = 3

// Continuer runs a proactive turn in the conversation ref points at. The
// channel adapters implement it.
type Continuer interface {
	ContinueReference(ctx context.Context, ref activity.ConversationReference, handler adapter.Handler) error
}

type schedule struct {
	Reminders []Reminder `json:"reminders"`
}

// Time parses At in loc. A reminder for a bare date is due at midnight.
func (r Reminder) Time(loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(recognizer.DateTimeLayout, r.At, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(recognizer.DateLayout, r.At, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing reminder time %q: %w", r.At, err)
	}
	return t, nil
}

func (b *Bot) loadSchedule(ctx context.Context) (*schedule, string, error) {
	items, err := b.storage.Read(ctx, []string{ScheduleKey})
	if err != nil {
		return nil, "", fmt.Errorf("reading reminder schedule: %w", err)
	}
	s := &schedule{}
	item, ok := items[ScheduleKey]
	if !ok {
		return s, "", nil
	}
	if err := item.Decode(s); err != nil {
		return nil, "", err
	}
	return s, item.ETag, nil
}

// updateSchedule applies fn to the stored schedule and writes it back when
// fn reports a change. Conflicting writers retry with a fresh read.
func (b *Bot) updateSchedule(ctx context.Context, fn func(s *schedule) bool) error {
	for attempt := 1; ; attempt++ {
		s, etag, err := b.loadSchedule(ctx)
		if err != nil {
			return err
		}
		if !fn(s) {
			return nil
		}
		item, err := store.NewItem(s, etag)
		if err != nil {
			return err
		}
		err = b.storage.Write(ctx, map[string]*store.Item{ScheduleKey: item})
		if errors.Is(err, store.ErrConcurrencyConflict) && attempt < scheduleRetries {
			continue
		}
		if err != nil {
			return fmt.Errorf("writing reminder schedule: %w", err)
		}
		return nil
	}
}

func (b *Bot) schedule(ctx context.Context, r Reminder) error {
	return b.updateSchedule(ctx, func(s *schedule) bool {
		s.Reminders = append(s.Reminders, r)
		return true
	})
}

// PendingReminders returns every scheduled reminder that has not been
// delivered yet.
func (b *Bot) PendingReminders(ctx context.Context) ([]Reminder, error) {
	s, _, err := b.loadSchedule(ctx)
	if err != nil {
		return nil, err
	}
	return s.Reminders, nil
}

// DeliverReminders sends every due reminder whose channel is in channels and
// returns how many were delivered. Reminders are claimed before they are
// sent; a failed send puts the reminder back for the next round.
func (b *Bot) DeliverReminders(ctx context.Context, channels map[string]Continuer) (int, error) {
	now := b.now()
	var due []Reminder
	err := b.updateSchedule(ctx, func(s *schedule) bool {
		due = due[:0]
		kept := make([]Reminder, 0, len(s.Reminders))
		for _, r := range s.Reminders {
			at, err := r.Time(now.Location())
			if err != nil {
				b.logger.Warn("dropping unreadable reminder", "reminder_id", r.ID, "error", err)
				continue
			}
			if _, ok := channels[r.Reference.ChannelID]; ok && !at.After(now) {
				due = append(due, r)
				continue
			}
			kept = append(kept, r)
		}
		changed := len(kept) != len(s.Reminders)
		s.Reminders = kept
		return changed
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	var failed []Reminder
	for _, r := range due {
		ch := channels[r.Reference.ChannelID]
		if err := ch.ContinueReference(ctx, r.Reference, b.remind(r)); err != nil {
			b.logger.Error("delivering reminder", "reminder_id", r.ID, "channel", r.Reference.ChannelID, "error", err)
			failed = append(failed, r)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		err := b.updateSchedule(ctx, func(s *schedule) bool {
			s.Reminders = append(s.Reminders, failed...)
			return true
		})
		if err != nil {
			return delivered, fmt.Errorf("rescheduling failed reminders: %w", err)
		}
	}
	return delivered, nil
}

// remind is the proactive turn handler for r. It sends the reminder and
// drops it from the user's list.
func (b *Bot) remind(r Reminder) adapter.Handler {
	return func(ctx context.Context, tc *turn.Context) error {
		reminders, err := b.reminders.Get(ctx, tc)
		if err != nil {
			return err
		}
		kept := (*reminders)[:0]
		for _, x := range *reminders {
			if x.ID != r.ID {
				kept = append(kept, x)
			}
		}
		*reminders = kept

		_, err = tc.SendText(ctx, fmt.Sprintf("Reminder: %s.", r.Subject))
		return err
	}
}

// RunReminders delivers due reminders every interval until ctx is done.
func (b *Bot) RunReminders(ctx context.Context, interval time.Duration, channels map[string]Continuer) error {
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := b.DeliverReminders(ctx, channels)
			if err != nil && ctx.Err() == nil {
				b.logger.Error("delivering reminders", "error", err)
			}
			if n > 0 {
				b.logger.Info("delivered reminders", "count", n)
			}
		}
	}
}
