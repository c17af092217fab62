// ABOUTME: Main menu, reminder, profile and sign-in dialogs
// ABOUTME: Waterfalls built from the text, choice, confirm, date/time and OAuth prompts

package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/dialog"
	"github.com/2389/coven-bot/internal/prompt"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/turn"
)

// Dialog ids.
const (
	MainDialog     = "main"
	ReminderDialog = "reminder"
	ProfileDialog  = "profile"
	SigninDialog   = "signin"

	textPrompt     = "text"
	choicePrompt   = "choice"
	confirmPrompt  = "confirm"
	datetimePrompt = "datetime"
	oauthPrompt    = "oauth"
)

// Main menu entries.
const (
	menuReminder  = "Set a reminder"
	menuList      = "List reminders"
	menuProfile   = "Edit profile"
	menuSignin    = "Sign in"
	reminderLimit = 20
)

// Reminder is a saved reminder.
type Reminder struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	// At is the resolved local time, "2006-01-02 15:04:05".
	At        string                         `json:"at"`
	Timex     string                         `json:"timex,omitempty"`
	CreatedAt time.Time                      `json:"createdAt"`
	Reference activity.ConversationReference `json:"reference"`
}

// Profile is what the bot remembers about a user.
type Profile struct {
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// Languages offered by the profile dialog.
var languages = []struct {
	label  string
	locale string
}{
	{"English", "en-us"},
	{"Português", "pt-br"},
	{"Русский", "ru-ru"},
}

func (b *Bot) buildDialogs(dt recognizer.DateTime) (*dialog.Set, error) {
	set := dialog.NewSet()

	adds := []struct {
		id string
		d  dialog.Dialog
	}{
		{textPrompt, prompt.AsDialog[string](prompt.NewText(nonEmpty))},
		{choicePrompt, prompt.AsDialog[recognizer.FoundChoice](prompt.NewChoice(nil))},
		{confirmPrompt, prompt.AsDialog[bool](prompt.NewConfirm(nil))},
		{datetimePrompt, prompt.AsDialog[[]recognizer.DateTimeResolution](prompt.NewDatetime(dt, b.inFuture))},
		{MainDialog, dialog.NewWaterfall(b.mainMenu, b.mainRoute, b.mainDone)},
		{ReminderDialog, dialog.NewWaterfall(b.reminderSubject, b.reminderTime, b.reminderConfirm, b.reminderSave)},
		{ProfileDialog, dialog.NewWaterfall(b.profileName, b.profileLanguage, b.profileSave)},
	}
	if b.connection != "" {
		b.oauth = prompt.NewOAuth(prompt.OAuthSettings{
			ConnectionName: b.connection,
			Text:           "Please sign in so I can act on your behalf.",
		}, nil)
		adds = append(adds,
			struct {
				id string
				d  dialog.Dialog
			}{oauthPrompt, prompt.AsDialog[*turn.TokenResponse](b.oauth)},
			struct {
				id string
				d  dialog.Dialog
			}{SigninDialog, dialog.NewWaterfall(b.signinStart, b.signinDone)},
		)
	}

	for _, a := range adds {
		if err := set.Add(a.id, a.d); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func nonEmpty(ctx context.Context, tc *turn.Context, value string) (string, bool, error) {
	value = strings.TrimSpace(value)
	return value, value != "", nil
}

// inFuture keeps resolutions that are not in the past. A bare date counts
// until the end of that day.
func (b *Bot) inFuture(ctx context.Context, tc *turn.Context, value []recognizer.DateTimeResolution) ([]recognizer.DateTimeResolution, bool, error) {
	now := b.now()
	var kept []recognizer.DateTimeResolution
	for _, r := range value {
		layout := recognizer.DateTimeLayout
		if r.Type == recognizer.TypeDate {
			layout = recognizer.DateLayout
		}
		t, err := time.ParseInLocation(layout, r.Value, now.Location())
		if err != nil {
			continue
		}
		if r.Type == recognizer.TypeDate {
			t = t.AddDate(0, 0, 1)
		}
		if t.Before(now) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, len(kept) > 0, nil
}

func (b *Bot) menu() []recognizer.Choice {
	choices := []recognizer.Choice{
		{Value: menuReminder, Synonyms: []string{"remind", "reminder"}},
		{Value: menuList, Synonyms: []string{"list", "reminders"}},
		{Value: menuProfile, Synonyms: []string{"profile", "name", "language"}},
	}
	if b.oauth != nil {
		choices = append(choices, recognizer.Choice{Value: menuSignin, Synonyms: []string{"login", "signin"}})
	}
	return choices
}

func (b *Bot) mainMenu(ctx context.Context, sc *dialog.StepContext) error {
	_, err := sc.Prompt(ctx, choicePrompt,
		activity.NewMessage("What would you like to do?"),
		b.menu(),
		&dialog.PromptOptions{RetryPrompt: activity.NewMessage("Please pick one of the options.")})
	return err
}

func (b *Bot) mainRoute(ctx context.Context, sc *dialog.StepContext) error {
	found, ok := sc.Result.(recognizer.FoundChoice)
	if !ok {
		_, err := sc.End(ctx, nil)
		return err
	}

	switch found.Value {
	case menuReminder:
		_, err := sc.Begin(ctx, ReminderDialog, nil)
		return err
	case menuProfile:
		_, err := sc.Begin(ctx, ProfileDialog, nil)
		return err
	case menuSignin:
		_, err := sc.Begin(ctx, SigninDialog, nil)
		return err
	case menuList:
		if err := b.listReminders(ctx, sc.Turn()); err != nil {
			return err
		}
		return sc.Next(ctx, nil)
	}
	_, err := sc.End(ctx, nil)
	return err
}

func (b *Bot) mainDone(ctx context.Context, sc *dialog.StepContext) error {
	if _, err := sc.Turn().SendText(ctx, "Anything else? Just send me a message."); err != nil {
		return err
	}
	_, err := sc.End(ctx, sc.Result)
	return err
}

func (b *Bot) listReminders(ctx context.Context, tc *turn.Context) error {
	reminders, err := b.reminders.Get(ctx, tc)
	if err != nil {
		return err
	}
	if len(*reminders) == 0 {
		_, err := tc.SendText(ctx, "You have no reminders.")
		return err
	}
	var sb strings.Builder
	sb.WriteString("Your reminders:")
	for i, r := range *reminders {
		fmt.Fprintf(&sb, "\n%d. %s at %s", i+1, r.Subject, r.At)
	}
	_, err = tc.SendText(ctx, sb.String())
	return err
}

func (b *Bot) reminderSubject(ctx context.Context, sc *dialog.StepContext) error {
	_, err := sc.PromptText(ctx, textPrompt, "What should I remind you about?")
	return err
}

func (b *Bot) reminderTime(ctx context.Context, sc *dialog.StepContext) error {
	sc.Values["subject"] = sc.Result
	_, err := sc.Prompt(ctx, datetimePrompt,
		activity.NewMessage("When should I remind you?"),
		nil,
		&dialog.PromptOptions{RetryPrompt: activity.NewMessage("I need a time in the future, like \"tomorrow at 3pm\".")})
	return err
}

func (b *Bot) reminderConfirm(ctx context.Context, sc *dialog.StepContext) error {
	resolutions, _ := sc.Result.([]recognizer.DateTimeResolution)
	if len(resolutions) == 0 {
		_, err := sc.End(ctx, nil)
		return err
	}
	sc.Values["at"] = resolutions[0].Value
	sc.Values["timex"] = resolutions[0].Timex

	question := fmt.Sprintf("Remind you to %s at %s?", sc.Values["subject"], resolutions[0].Value)
	_, err := sc.Prompt(ctx, confirmPrompt, activity.NewMessage(question), nil, nil)
	return err
}

func (b *Bot) reminderSave(ctx context.Context, sc *dialog.StepContext) error {
	tc := sc.Turn()
	if ok, _ := sc.Result.(bool); !ok {
		if _, err := tc.SendText(ctx, "Okay, I won't set that reminder."); err != nil {
			return err
		}
		_, err := sc.End(ctx, nil)
		return err
	}

	reminders, err := b.reminders.Get(ctx, tc)
	if err != nil {
		return err
	}
	subject, _ := sc.Values["subject"].(string)
	at, _ := sc.Values["at"].(string)
	timex, _ := sc.Values["timex"].(string)
	r := Reminder{
		ID:        uuid.NewString(),
		Subject:   subject,
		At:        at,
		Timex:     timex,
		CreatedAt: b.now().UTC(),
		Reference: tc.Reference(),
	}
	*reminders = append(*reminders, r)
	if len(*reminders) > reminderLimit {
		*reminders = (*reminders)[len(*reminders)-reminderLimit:]
	}
	if err := b.schedule(ctx, r); err != nil {
		return fmt.Errorf("scheduling reminder: %w", err)
	}

	if _, err := tc.SendText(ctx, fmt.Sprintf("Okay, I'll remind you to %s at %s.", subject, at)); err != nil {
		return err
	}
	_, err = sc.End(ctx, r)
	return err
}

func (b *Bot) profileName(ctx context.Context, sc *dialog.StepContext) error {
	_, err := sc.PromptText(ctx, textPrompt, "What should I call you?")
	return err
}

func (b *Bot) profileLanguage(ctx context.Context, sc *dialog.StepContext) error {
	sc.Values["name"] = sc.Result
	choices := make([]recognizer.Choice, len(languages))
	for i, l := range languages {
		choices[i] = recognizer.Choice{Value: l.label, Synonyms: []string{l.locale}}
	}
	_, err := sc.Prompt(ctx, choicePrompt,
		activity.NewMessage("Which language do you prefer?"),
		choices,
		&dialog.PromptOptions{RetryPrompt: activity.NewMessage("Please pick a language from the list.")})
	return err
}

func (b *Bot) profileSave(ctx context.Context, sc *dialog.StepContext) error {
	tc := sc.Turn()
	found, _ := sc.Result.(recognizer.FoundChoice)
	name, _ := sc.Values["name"].(string)

	p := Profile{Name: name, Locale: prompt.DefaultLocale}
	if found.Index >= 0 && found.Index < len(languages) {
		p.Locale = languages[found.Index].locale
	}
	if err := b.profile.Set(ctx, tc, p); err != nil {
		return err
	}
	if _, err := tc.SendText(ctx, fmt.Sprintf("Thanks, %s. I'll remember that.", p.Name)); err != nil {
		return err
	}
	_, err := sc.End(ctx, p)
	return err
}

func (b *Bot) signinStart(ctx context.Context, sc *dialog.StepContext) error {
	token, err := b.oauth.GetUserToken(ctx, sc.Turn())
	if err != nil {
		return err
	}
	if token != nil {
		return sc.Next(ctx, token)
	}
	_, err = sc.Prompt(ctx, oauthPrompt, nil, nil, nil)
	return err
}

func (b *Bot) signinDone(ctx context.Context, sc *dialog.StepContext) error {
	tc := sc.Turn()
	token, _ := sc.Result.(*turn.TokenResponse)
	text := "You're signed in."
	if token == nil {
		text = "Sign-in didn't complete. Try again from the menu."
	}
	if _, err := tc.SendText(ctx, text); err != nil {
		return err
	}
	_, err := sc.End(ctx, token != nil)
	return err
}
