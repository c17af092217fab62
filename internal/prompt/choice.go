// ABOUTME: Choice and confirm prompts
// ABOUTME: Render the options as a numbered list and recognize a pick by name, synonym or number

package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/turn"
)

// ListStyle controls how choices are appended to the question.
type ListStyle int

const (
	// ListNumbered appends "1. red" lines.
	ListNumbered ListStyle = iota
	// ListInline appends "(1) red, (2) green or (3) blue".
	ListInline
	// ListNone sends the question unchanged.
	ListNone
)

// Choice asks the user to pick one of the choices in the prompt options.
type Choice struct {
	validator Validator[recognizer.FoundChoice]
	// Style controls how the choices are rendered.
	Style ListStyle
	// Recognizer tunes matching.
	Recognizer    recognizer.ChoiceOptions
	DefaultLocale string
}

// NewChoice creates a choice prompt. validator may be nil.
func NewChoice(validator Validator[recognizer.FoundChoice]) *Choice {
	return &Choice{validator: validator}
}

// Prompt sends the question with the choices rendered into its text.
func (p *Choice) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	choices := OptionsFrom(tc).Choices
	if content == nil {
		content = activity.NewMessage("")
	}
	msg := content.Clone()
	msg.Text = renderChoices(msg.Text, choices, p.Style)
	return send(ctx, tc, msg, speak)
}

// Recognize returns the best matching choice.
func (p *Choice) Recognize(ctx context.Context, tc *turn.Context) (recognizer.FoundChoice, bool, error) {
	a := tc.Activity()
	if !a.IsMessage() {
		return recognizer.FoundChoice{}, false, nil
	}
	opts := p.Recognizer
	opts.Locale = locale(tc, p.DefaultLocale)
	results := recognizer.Choices(a.Text, OptionsFrom(tc).Choices, opts)
	if len(results) == 0 {
		return recognizer.FoundChoice{}, false, nil
	}
	return validate(ctx, tc, p.validator, results[0].Resolution, true)
}

func renderChoices(text string, choices []recognizer.Choice, style ListStyle) string {
	if len(choices) == 0 || style == ListNone {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	switch style {
	case ListInline:
		if text != "" {
			b.WriteString(" ")
		}
		for i, c := range choices {
			switch {
			case i == 0:
			case i == len(choices)-1:
				b.WriteString(" or ")
			default:
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "(%d) %s", i+1, c.Value)
		}
	default:
		for i, c := range choices {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "   %d. %s", i+1, c.Value)
		}
	}
	return b.String()
}

// Confirm asks a yes/no question.
type Confirm struct {
	validator     Validator[bool]
	DefaultLocale string
	// Style controls how the yes/no options are rendered.
	Style ListStyle
}

// NewConfirm creates a confirm prompt rendered inline. validator may be nil.
func NewConfirm(validator Validator[bool]) *Confirm {
	return &Confirm{validator: validator, Style: ListInline}
}

// Prompt sends the question followed by the yes/no options.
func (p *Confirm) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	if content == nil {
		return nil
	}
	msg := content.Clone()
	msg.Text = renderChoices(msg.Text, p.choices(tc), p.Style)
	return send(ctx, tc, msg, speak)
}

// Recognize returns true for yes and false for no, by word or by option
// number.
func (p *Confirm) Recognize(ctx context.Context, tc *turn.Context) (bool, bool, error) {
	a := tc.Activity()
	if !a.IsMessage() {
		return false, false, nil
	}
	loc := locale(tc, p.DefaultLocale)
	if v, ok := recognizer.Boolean(a.Text, loc); ok {
		return validate(ctx, tc, p.validator, v, true)
	}

	results := recognizer.Choices(a.Text, p.choices(tc), recognizer.ChoiceOptions{Locale: loc})
	if len(results) == 0 {
		return false, false, nil
	}
	return validate(ctx, tc, p.validator, results[0].Resolution.Index == 0, true)
}

func (p *Confirm) choices(tc *turn.Context) []recognizer.Choice {
	yes, no := recognizer.BooleanChoices(locale(tc, p.DefaultLocale))
	return []recognizer.Choice{{Value: yes}, {Value: no}}
}
