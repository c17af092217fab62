// ABOUTME: Date/time prompt delegating recognition to a locale-keyed recognizer
// ABOUTME: Returns the resolution values of the first recognized expression

package prompt

import (
	"context"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/turn"
)

// Datetime recognizes dates and times.
type Datetime struct {
	recognizer recognizer.DateTime
	validator  Validator[[]recognizer.DateTimeResolution]
	// DefaultLocale is used when the activity has no locale.
	DefaultLocale string
}

// NewDatetime creates a date/time prompt. A nil rec uses a
// recognizer.WhenRecognizer; validator may be nil.
func NewDatetime(rec recognizer.DateTime, validator Validator[[]recognizer.DateTimeResolution]) *Datetime {
	if rec == nil {
		rec = recognizer.NewWhenRecognizer()
	}
	return &Datetime{recognizer: rec, validator: validator}
}

// Prompt sends the question.
func (p *Datetime) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	return send(ctx, tc, content, speak)
}

// Recognize returns the resolutions of the first candidate. Locale comes
// from the activity, then DefaultLocale, then en-us.
func (p *Datetime) Recognize(ctx context.Context, tc *turn.Context) ([]recognizer.DateTimeResolution, bool, error) {
	a := tc.Activity()
	if !a.IsMessage() {
		return nil, false, nil
	}
	models := p.recognizer.Recognize(a.Text, locale(tc, p.DefaultLocale))
	if len(models) == 0 || len(models[0].Resolution) == 0 {
		return nil, false, nil
	}
	values := append([]recognizer.DateTimeResolution(nil), models[0].Resolution...)
	return validate(ctx, tc, p.validator, values, true)
}
