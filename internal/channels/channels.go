// ABOUTME: Helpers shared by the channel adapters
// ABOUTME: Delay handling, attachment fallbacks and inbound text filtering

// Package channels holds what every transport adapter needs. The adapters
// themselves live in subpackages, one per chat network.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/2389/coven-bot/internal/activity"
)

// DefaultDelay is used for delay activities without a usable value.
const DefaultDelay = time.Second

// Delay returns how long a delay activity pauses. Value holds milliseconds.
func Delay(a *activity.Activity) time.Duration {
	switch v := a.Value.(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	}
	return DefaultDelay
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Text returns the message text with links for attachments that carry a
// URL, for networks that cannot render attachments.
func Text(a *activity.Activity) string {
	var b strings.Builder
	b.WriteString(a.Text)
	for _, att := range a.Attachments {
		if att.ContentURL == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if att.Name != "" {
			b.WriteString(att.Name + ": ")
		}
		b.WriteString(att.ContentURL)
	}
	return b.String()
}

// StripPrefix removes a command prefix. ok is false when prefix is set and
// text does not start with it, or nothing is left.
func StripPrefix(text, prefix string) (string, bool) {
	if prefix != "" {
		if !strings.HasPrefix(text, prefix) {
			return "", false
		}
		text = strings.TrimPrefix(text, prefix)
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// Allowed reports whether id is in the allow list. An empty list allows
// everything.
func Allowed(allow []string, id string) bool {
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if a == id {
			return true
		}
	}
	return false
}

// Truncate shortens s to maxLen runes for logging.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
