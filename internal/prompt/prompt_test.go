// ABOUTME: Tests for text, number, attachment, confirm, choice and date/time prompts
// ABOUTME: Each prompt is driven through a dialog set across several turns

package prompt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/dialog"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/turn"
)

func TestTextPrompt(t *testing.T) {
	set := dialog.NewSet().MustAdd("name", AsDialog(NewText(nil)))
	h := newHarness(t, set, func(ctx context.Context, dc *dialog.Context) (dialog.Result, error) {
		return dc.PromptText(ctx, "name", "What's your name?")
	})

	replies := h.send("hello")
	require.Len(t, replies, 1)
	assert.Equal(t, "What's your name?", replies[0].Text)
	assert.Equal(t, activity.InputHintExpecting, replies[0].InputHint)
	_, done := h.ended()
	assert.False(t, done)

	replies = h.send("  Ada  ")
	assert.Empty(t, replies)
	result, done := h.ended()
	assert.True(t, done)
	assert.Equal(t, "Ada", result)
}

func TestTextPrompt_IgnoresNonMessages(t *testing.T) {
	set := dialog.NewSet().MustAdd("name", AsDialog(NewText(nil)))
	h := newHarness(t, set, promptWith("name", &Options{
		Prompt:      activity.NewMessage("Name?"),
		RetryPrompt: activity.NewMessage("Name, please?"),
	}))

	h.send("hi")
	replies := h.sendActivity(&activity.Activity{Type: activity.TypeTyping})
	assert.Empty(t, replies, "typing does not trigger a retry")
	_, done := h.ended()
	assert.False(t, done)
}

func TestNumberPrompt_RetryAndValidate(t *testing.T) {
	positive := func(ctx context.Context, tc *turn.Context, v float64) (float64, bool, error) {
		return v, v > 0, nil
	}
	set := dialog.NewSet().MustAdd("age", AsDialog(NewNumber(positive)))
	h := newHarness(t, set, promptWith("age", &Options{
		Prompt:      activity.NewMessage("How old are you?"),
		RetryPrompt: activity.NewMessage("Please enter a positive number."),
		Speak:       "How old are you?",
	}))

	replies := h.send("hi")
	require.Len(t, replies, 1)
	assert.Equal(t, "How old are you?", replies[0].Speak)

	replies = h.send("old enough")
	require.Len(t, replies, 1)
	assert.Equal(t, "Please enter a positive number.", replies[0].Text)

	replies = h.send("0")
	require.Len(t, replies, 1, "validator rejection retries too")

	h.send("I am 36")
	result, done := h.ended()
	assert.True(t, done)
	assert.Equal(t, 36.0, result)
}

func TestAttachmentPrompt(t *testing.T) {
	set := dialog.NewSet().MustAdd("upload", AsDialog(NewAttachment(nil)))
	h := newHarness(t, set, promptWith("upload", &Options{Prompt: activity.NewMessage("Send a file")}))

	h.send("hi")
	h.send("no file here")
	_, done := h.ended()
	assert.False(t, done)

	msg := activity.NewMessage("")
	msg.Attachments = []activity.Attachment{{ContentType: "image/png", ContentURL: "https://example.com/cat.png"}}
	h.sendActivity(msg)

	result, done := h.ended()
	require.True(t, done)
	attachments, ok := result.([]activity.Attachment)
	require.True(t, ok)
	assert.Equal(t, "image/png", attachments[0].ContentType)
}

func TestConfirmPrompt(t *testing.T) {
	for text, want := range map[string]bool{
		"yes":        true,
		"nope":       false,
		"2":          false,
		"(1)":        true,
		"yeah sure!": true,
	} {
		t.Run(text, func(t *testing.T) {
			set := dialog.NewSet().MustAdd("confirm", AsDialog(NewConfirm(nil)))
			h := newHarness(t, set, promptWith("confirm", &Options{Prompt: activity.NewMessage("Proceed?")}))

			replies := h.send("hi")
			require.Len(t, replies, 1)
			assert.Equal(t, "Proceed? (1) Yes or (2) No", replies[0].Text)

			h.send(text)
			result, done := h.ended()
			require.True(t, done)
			assert.Equal(t, want, result)
		})
	}
}

func TestConfirmPrompt_Russian(t *testing.T) {
	confirm := NewConfirm(nil)
	confirm.DefaultLocale = "ru-ru"
	set := dialog.NewSet().MustAdd("confirm", AsDialog(confirm))
	h := newHarness(t, set, promptWith("confirm", &Options{Prompt: activity.NewMessage("Продолжить?")}))

	replies := h.send("привет")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "(1) Да")
	assert.Contains(t, replies[0].Text, "(2) Нет")

	h.send("да")
	result, done := h.ended()
	require.True(t, done)
	assert.Equal(t, true, result)
}

func TestChoicePrompt(t *testing.T) {
	colors := []recognizer.Choice{
		{Value: "red"},
		{Value: "green", Synonyms: []string{"lime"}},
		{Value: "blue"},
	}
	set := dialog.NewSet().MustAdd("color", AsDialog(NewChoice(nil)))
	h := newHarness(t, set, func(ctx context.Context, dc *dialog.Context) (dialog.Result, error) {
		return dc.Prompt(ctx, "color", activity.NewMessage("Pick a color"), colors, &Options{
			RetryPrompt: activity.NewMessage("Pick one of the listed colors"),
		})
	})

	replies := h.send("hi")
	require.Len(t, replies, 1)
	assert.Equal(t, "Pick a color\n   1. red\n   2. green\n   3. blue", replies[0].Text)

	replies = h.send("purple")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Pick one of the listed colors")
	assert.Contains(t, replies[0].Text, "3. blue", "retry re-renders the choices")

	h.send("lime, I think")
	result, done := h.ended()
	require.True(t, done)
	found, ok := result.(recognizer.FoundChoice)
	require.True(t, ok)
	assert.Equal(t, "green", found.Value)
	assert.Equal(t, 1, found.Index)
}

func TestRenderChoices_Inline(t *testing.T) {
	choices := []recognizer.Choice{{Value: "a"}, {Value: "b"}, {Value: "c"}}
	assert.Equal(t, "Pick (1) a, (2) b or (3) c", renderChoices("Pick", choices, ListInline))
	assert.Equal(t, "Pick", renderChoices("Pick", choices, ListNone))
	assert.Equal(t, "Pick", renderChoices("Pick", nil, ListNumbered))
}

type fixedClockRecognizer struct {
	*recognizer.WhenRecognizer
	locales []string
}

func (f *fixedClockRecognizer) Recognize(text, locale string) []recognizer.DateTimeModel {
	f.locales = append(f.locales, locale)
	return f.WhenRecognizer.Recognize(text, locale)
}

func newFixedRecognizer() *fixedClockRecognizer {
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	return &fixedClockRecognizer{
		WhenRecognizer: recognizer.NewWhenRecognizer(recognizer.WithNow(func() time.Time { return now })),
	}
}

func TestDatetimePrompt(t *testing.T) {
	rec := newFixedRecognizer()
	set := dialog.NewSet().MustAdd("when", AsDialog(NewDatetime(rec, nil)))
	h := newHarness(t, set, promptWith("when", &Options{Prompt: activity.NewMessage("When?")}))
	h.adapter.Locale = "en-us"

	h.send("hi")
	h.send("asdf")
	_, done := h.ended()
	assert.False(t, done, "no match leaves the prompt waiting")

	h.send("tomorrow at 3pm")
	result, done := h.ended()
	require.True(t, done)
	values, ok := result.([]recognizer.DateTimeResolution)
	require.True(t, ok)
	require.NotEmpty(t, values)
	assert.Equal(t, "2026-10-20 15:00:00", values[0].Value)
	assert.Equal(t, []string{"en-us", "en-us"}, rec.locales)
}

func TestDatetimePrompt_LocaleFallback(t *testing.T) {
	rec := newFixedRecognizer()
	p := NewDatetime(rec, nil)
	set := dialog.NewSet().MustAdd("when", AsDialog(p))

	h := newHarness(t, set, promptWith("when", &Options{Prompt: activity.NewMessage("When?")}))
	h.send("hi")
	h.send("tomorrow")
	assert.Equal(t, []string{DefaultLocale}, rec.locales)

	p.DefaultLocale = "pt-br"
	h = newHarness(t, set, promptWith("when", &Options{Prompt: activity.NewMessage("When?")}))
	h.send("hi")
	h.send("amanhã")
	assert.Equal(t, "pt-br", rec.locales[len(rec.locales)-1])
}

func TestPrompt_Timeout(t *testing.T) {
	set := dialog.NewSet().MustAdd("login", AsDialog(NewOAuth(OAuthSettings{ConnectionName: "github", Timeout: time.Minute}, nil)))
	h := newHarness(t, set, promptWith("login", nil))
	h.send("hi")

	// Age the persisted frame past the timeout
	var stack dialog.Stack
	require.NoError(t, jsonUnmarshal(h.saved, &stack))
	stack.Top().MarkStarted(time.Now().Add(-2 * time.Minute))
	h.saved = jsonMarshal(t, stack)

	h.send("still here")
	result, done := h.ended()
	assert.True(t, done)
	assert.Nil(t, result)
}
