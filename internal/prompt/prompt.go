// ABOUTME: Prompt capability, validators, and the adapter turning a prompt into a dialog
// ABOUTME: Prompt options live in frame state and are shared with prompts through turn services

package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/dialog"
	"github.com/2389/coven-bot/internal/turn"
)

// ErrMalformedPrompt is returned when caller-supplied prompt content lacks a
// required part. Nothing is sent.
var ErrMalformedPrompt = errors.New("malformed prompt")

// Options configures a prompt dialog.
type Options = dialog.PromptOptions

// Prompt asks a question and recognizes the answer as a T.
type Prompt[T any] interface {
	// Prompt sends content as the question. speak overrides content.Speak
	// when set.
	Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error
	// Recognize extracts a value from the turn's activity. ok is false when
	// nothing was recognized.
	Recognize(ctx context.Context, tc *turn.Context) (value T, ok bool, err error)
}

// Validator accepts, rejects or replaces a recognized value.
type Validator[T any] func(ctx context.Context, tc *turn.Context, value T) (T, bool, error)

// validate applies v to a recognized value.
func validate[T any](ctx context.Context, tc *turn.Context, v Validator[T], value T, ok bool) (T, bool, error) {
	if !ok || v == nil {
		return value, ok, nil
	}
	return v(ctx, tc, value)
}

// Timeouter is implemented by prompts that give up after a while. An
// expired prompt ends with a nil result.
type Timeouter interface {
	Timeout() time.Duration
}

type optionsKey struct{}

// OptionsFrom returns the options of the prompt dialog running this turn.
func OptionsFrom(tc *turn.Context) *Options {
	opts, ok := turn.Value[*Options](tc.Services(), optionsKey{})
	if !ok {
		return &Options{}
	}
	return opts
}

const (
	stateOptions  = "options"
	stateAttempts = "attempts"
)

// promptDialog adapts a Prompt to dialog.Dialog.
type promptDialog[T any] struct {
	prompt Prompt[T]
}

// AsDialog returns p as a dialog suitable for dialog.Set.Add.
func AsDialog[T any](p Prompt[T]) dialog.Dialog {
	return &promptDialog[T]{prompt: p}
}

// Begin stores the options in frame state and asks the question.
func (d *promptDialog[T]) Begin(ctx context.Context, dc *dialog.Context, args any) error {
	opts, err := toOptions(args)
	if err != nil {
		return err
	}

	frame := dc.ActiveDialog()
	frame.State[stateOptions] = opts
	frame.State[stateAttempts] = 0
	frame.MarkStarted(time.Now())

	tc := dc.Turn()
	tc.Services().Set(optionsKey{}, opts)
	return d.prompt.Prompt(ctx, tc, opts.Prompt, opts.Speak)
}

// Continue recognizes the answer, ending the dialog when there is one.
func (d *promptDialog[T]) Continue(ctx context.Context, dc *dialog.Context) error {
	frame := dc.ActiveDialog()
	tc := dc.Turn()

	if t, ok := d.prompt.(Timeouter); ok && t.Timeout() > 0 && frame.Expired(time.Now(), t.Timeout()) {
		tc.Logger().Debug("prompt expired", "dialog_id", frame.ID)
		_, err := dc.End(ctx, nil)
		return err
	}

	opts, err := toOptions(frame.State[stateOptions])
	if err != nil {
		return err
	}
	tc.Services().Set(optionsKey{}, opts)

	value, ok, err := d.prompt.Recognize(ctx, tc)
	if err != nil {
		return err
	}
	if ok {
		_, err := dc.End(ctx, value)
		return err
	}

	attempts, _ := dialog.Int(frame.State, stateAttempts)
	frame.State[stateAttempts] = attempts + 1

	if opts.RetryPrompt != nil && tc.Activity().IsMessage() {
		return d.prompt.Prompt(ctx, tc, opts.RetryPrompt, opts.RetrySpeak)
	}
	return nil
}

// toOptions accepts *Options, Options, a question string or activity, nil,
// or the decoded JSON form found in reloaded frame state.
func toOptions(args any) (*Options, error) {
	switch v := args.(type) {
	case nil:
		return &Options{}, nil
	case *Options:
		c := *v
		return &c, nil
	case Options:
		return &v, nil
	case string:
		return &Options{Prompt: activity.NewMessage(v)}, nil
	case *activity.Activity:
		return &Options{Prompt: v}, nil
	}

	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding prompt options: %w", err)
	}
	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("%w: options: %v", ErrMalformedPrompt, err)
	}
	return &opts, nil
}

// send delivers a question, applying speak and the expecting-input hint.
func send(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	if content == nil {
		return nil
	}
	msg := content.Clone()
	if speak != "" {
		msg.Speak = speak
	}
	if msg.InputHint == "" {
		msg.InputHint = activity.InputHintExpecting
	}
	_, err := tc.SendActivity(ctx, msg)
	return err
}

// locale picks the locale used for recognition.
func locale(tc *turn.Context, fallback string) string {
	if l := tc.Activity().Locale; l != "" {
		return l
	}
	if fallback != "" {
		return fallback
	}
	return DefaultLocale
}

// DefaultLocale is used when neither the activity nor the prompt names one.
const DefaultLocale = "en-us"
