// ABOUTME: Text, number and attachment prompts
// ABOUTME: Recognize free text, the first number in a message, or uploaded attachments

package prompt

import (
	"context"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/turn"
)

// Text recognizes any non-empty message text.
type Text struct {
	validator Validator[string]
}

// NewText creates a text prompt. validator may be nil.
func NewText(validator Validator[string]) *Text {
	return &Text{validator: validator}
}

// Prompt sends the question.
func (p *Text) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	return send(ctx, tc, content, speak)
}

// Recognize returns the trimmed message text.
func (p *Text) Recognize(ctx context.Context, tc *turn.Context) (string, bool, error) {
	a := tc.Activity()
	if !a.IsMessage() {
		return "", false, nil
	}
	text := a.TrimmedText()
	return validate(ctx, tc, p.validator, text, text != "")
}

// Number recognizes the first number in a message.
type Number struct {
	validator Validator[float64]
	// DefaultLocale is used when the activity has no locale.
	DefaultLocale string
}

// NewNumber creates a number prompt. validator may be nil.
func NewNumber(validator Validator[float64]) *Number {
	return &Number{validator: validator}
}

// Prompt sends the question.
func (p *Number) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	return send(ctx, tc, content, speak)
}

// Recognize returns the first number in the message text.
func (p *Number) Recognize(ctx context.Context, tc *turn.Context) (float64, bool, error) {
	a := tc.Activity()
	if !a.IsMessage() {
		return 0, false, nil
	}
	models := recognizer.Numbers(a.Text, locale(tc, p.DefaultLocale))
	if len(models) == 0 {
		return 0, false, nil
	}
	return validate(ctx, tc, p.validator, models[0].Value, true)
}

// Attachment recognizes a message carrying at least one attachment.
type Attachment struct {
	validator Validator[[]activity.Attachment]
}

// NewAttachment creates an attachment prompt. validator may be nil.
func NewAttachment(validator Validator[[]activity.Attachment]) *Attachment {
	return &Attachment{validator: validator}
}

// Prompt sends the question.
func (p *Attachment) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	return send(ctx, tc, content, speak)
}

// Recognize returns the message's attachments.
func (p *Attachment) Recognize(ctx context.Context, tc *turn.Context) ([]activity.Attachment, bool, error) {
	a := tc.Activity()
	if !a.IsMessage() || len(a.Attachments) == 0 {
		return nil, false, nil
	}
	attachments := append([]activity.Attachment(nil), a.Attachments...)
	return validate(ctx, tc, p.validator, attachments, true)
}
