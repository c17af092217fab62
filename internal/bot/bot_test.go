// ABOUTME: Tests for the bot turn handler and its dialogs
// ABOUTME: Drives whole conversations through the scripted test adapter

package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter/adaptertest"
	"github.com/2389/coven-bot/internal/prompt"
	"github.com/2389/coven-bot/internal/state"
	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type conversation struct {
	t       *testing.T
	storage *store.MemoryStorage
	bot     *Bot
	adapter *adaptertest.Adapter
}

func newConversation(t *testing.T, storage *store.MemoryStorage, connection string) *conversation {
	t.Helper()
	if storage == nil {
		storage = store.NewMemoryStorage()
	}
	b, err := New(Config{
		ConversationState: state.NewConversationState(storage, nil),
		UserState:         state.NewUserState(storage, nil),
		OAuthConnection:   connection,
		Now:               func() time.Time { return testNow },
	})
	require.NoError(t, err)

	ta := adaptertest.New(b.OnTurn)
	ta.Use(b.Middleware()...)
	return &conversation{t: t, storage: storage, bot: b, adapter: ta}
}

// say runs a message turn and returns the reply texts.
func (c *conversation) say(text string) []string {
	c.t.Helper()
	return c.texts(c.send(activity.NewMessage(text)))
}

func (c *conversation) send(a *activity.Activity) []*activity.Activity {
	c.t.Helper()
	before := len(c.adapter.Replies())
	require.NoError(c.t, c.adapter.SendActivity(context.Background(), a))
	return c.adapter.Replies()[before:]
}

func (c *conversation) texts(replies []*activity.Activity) []string {
	out := make([]string, len(replies))
	for i, r := range replies {
		out[i] = r.Text
	}
	return out
}

// userState decodes the stored user state for the default test user.
func (c *conversation) userState() (profile *Profile, reminders []Reminder) {
	c.t.Helper()
	items, err := c.storage.Read(context.Background(), []string{"test/users/user1"})
	require.NoError(c.t, err)
	item, ok := items["test/users/user1"]
	if !ok {
		return nil, nil
	}
	var doc struct {
		Profile   *Profile   `json:"profile"`
		Reminders []Reminder `json:"reminders"`
	}
	require.NoError(c.t, item.Decode(&doc))
	return doc.Profile, doc.Reminders
}

func TestBot_New_RequiresState(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBot_FirstMessageShowsMenu(t *testing.T) {
	c := newConversation(t, nil, "")

	replies := c.say("hi")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "What would you like to do?")
	assert.Contains(t, replies[0], "1. Set a reminder")
	assert.Contains(t, replies[0], "3. Edit profile")
	assert.NotContains(t, replies[0], "Sign in")
}

func TestBot_ReminderFlow(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	assert.Equal(t, []string{"What should I remind you about?"}, c.say("1"))
	assert.Equal(t, []string{"When should I remind you?"}, c.say("water the plants"))

	replies := c.say("tomorrow at 3pm")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Remind you to water the plants at 2026-10-20 15:00:00?")

	assert.Equal(t, []string{
		"Okay, I'll remind you to water the plants at 2026-10-20 15:00:00.",
		"Anything else? Just send me a message.",
	}, c.say("yes"))

	_, reminders := c.userState()
	require.Len(t, reminders, 1)
	assert.Equal(t, "water the plants", reminders[0].Subject)
	assert.Equal(t, "2026-10-20 15:00:00", reminders[0].At)
	assert.Equal(t, "2026-10-20T15:00:00", reminders[0].Timex)
	assert.Equal(t, "convo1", reminders[0].Reference.ConversationID())

	// The stack is empty again so the next message starts over.
	replies = c.say("hello again")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "What would you like to do?")
}

func TestBot_ReminderDeclined(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("reminder")
	c.say("call mum")
	c.say("tomorrow at 3pm")
	replies := c.say("no")
	assert.Equal(t, "Okay, I won't set that reminder.", replies[0])

	_, reminders := c.userState()
	assert.Empty(t, reminders)
}

func TestBot_ReminderRetriesUnrecognizedTime(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("1")
	c.say("water the plants")
	assert.Equal(t, []string{`I need a time in the future, like "tomorrow at 3pm".`}, c.say("whenever"))

	replies := c.say("tomorrow at 3pm")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Remind you to water the plants")
}

func TestBot_ListReminders(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	assert.Equal(t, []string{"You have no reminders.", "Anything else? Just send me a message."}, c.say("list"))

	c.say("hi")
	c.say("1")
	c.say("water the plants")
	c.say("tomorrow at 3pm")
	c.say("yes")

	c.say("hi")
	replies := c.say("2")
	require.NotEmpty(t, replies)
	assert.Equal(t, "Your reminders:\n1. water the plants at 2026-10-20 15:00:00", replies[0])
}

func TestBot_CancelEndsActiveDialog(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("1")
	assert.Equal(t, []string{"Okay, cancelled."}, c.say("Cancel"))

	// Nothing is active, so the next message begins the menu again.
	replies := c.say("water the plants")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "What would you like to do?")
}

func TestBot_CancelWithNothingActive(t *testing.T) {
	c := newConversation(t, nil, "")
	assert.Equal(t, []string{"There's nothing to cancel."}, c.say("cancel"))
}

func TestBot_HelpKeepsDialog(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("1")
	replies := c.say("help")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "I can set reminders")

	assert.Equal(t, []string{"When should I remind you?"}, c.say("water the plants"))
}

func TestBot_ProfileFlow(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	assert.Equal(t, []string{"What should I call you?"}, c.say("3"))

	replies := c.say("Ada")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Which language do you prefer?")
	assert.Contains(t, replies[0], "2. Português")

	replies = c.say("2")
	require.NotEmpty(t, replies)
	assert.Equal(t, "Thanks, Ada. I'll remember that.", replies[0])

	profile, _ := c.userState()
	require.NotNil(t, profile)
	assert.Equal(t, Profile{Name: "Ada", Locale: "pt-br"}, *profile)
}

func TestBot_ProfileLocaleAppliedToLaterTurns(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("3")
	c.say("Ada")
	c.say("English")

	var seen string
	err := c.adapter.Continue(context.Background(), func(ctx context.Context, tc *turn.Context) error {
		if err := c.bot.applyLocale(ctx, tc); err != nil {
			return err
		}
		seen = tc.Activity().Locale
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "en-us", seen)
}

func TestBot_EmptyTextRetried(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("1")
	// Whitespace fails validation; no retry prompt is configured.
	assert.Empty(t, c.say("   "))
	assert.Equal(t, []string{"When should I remind you?"}, c.say("water the plants"))
}

func TestBot_SignIn(t *testing.T) {
	c := newConversation(t, nil, "github")
	c.adapter.AddUserToken("github", adaptertest.ChannelID, "user1", "tok-1", "123456")

	replies := c.say("hi")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "4. Sign in")

	sent := c.send(activity.NewMessage("4"))
	require.Len(t, sent, 1)
	assert.True(t, prompt.HasSigninCard(sent[0]))
	assert.Contains(t, sent[0].Text, "https://signin.test/github?user=user1")

	assert.Equal(t, []string{"You're signed in.", "Anything else? Just send me a message."}, c.say("my code is 123456"))

	// Already signed in, no card this time.
	c.say("hi")
	assert.Equal(t, []string{"You're signed in.", "Anything else? Just send me a message."}, c.say("sign in"))
}

func TestBot_SignInWrongCode(t *testing.T) {
	c := newConversation(t, nil, "github")
	c.adapter.AddUserToken("github", adaptertest.ChannelID, "user1", "tok-1", "123456")

	c.say("hi")
	c.say("4")
	assert.Empty(t, c.say("654321"))
	assert.Equal(t, []string{"You're signed in.", "Anything else? Just send me a message."}, c.say("123456"))
}

func TestBot_Logout(t *testing.T) {
	c := newConversation(t, nil, "github")
	c.adapter.AddUserToken("github", adaptertest.ChannelID, "user1", "tok-1", "")

	c.say("hi")
	assert.Equal(t, []string{"You have been signed out."}, c.say("logout"))
	assert.Equal(t, []string{"github"}, c.adapter.SignOuts())

	// The menu was abandoned.
	replies := c.say("hi")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "What would you like to do?")
}

func TestBot_LogoutWithoutTokens(t *testing.T) {
	c := newConversation(t, nil, "github")
	c.adapter.NoTokens = true

	assert.Equal(t, []string{"Sign-in isn't available here."}, c.say("logout"))
}

func TestBot_LogoutWithoutConnectionIsPlainText(t *testing.T) {
	c := newConversation(t, nil, "")

	replies := c.say("logout")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "What would you like to do?")
	assert.Empty(t, c.adapter.SignOuts())
}

func TestBot_GreetsOnConversationUpdate(t *testing.T) {
	c := newConversation(t, nil, "")

	replies := c.texts(c.send(&activity.Activity{Type: activity.TypeConversationUpdate}))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Say anything to get started")
}

func TestBot_EndOfConversationClearsStack(t *testing.T) {
	c := newConversation(t, nil, "")

	c.say("hi")
	c.say("1")
	assert.Empty(t, c.send(&activity.Activity{Type: activity.TypeEndOfConversation}))

	replies := c.say("water the plants")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "What would you like to do?")
}

func TestBot_DialogSurvivesRestart(t *testing.T) {
	storage := store.NewMemoryStorage()
	first := newConversation(t, storage, "")
	first.say("hi")
	first.say("1")

	second := newConversation(t, storage, "")
	assert.Equal(t, []string{"When should I remind you?"}, second.say("water the plants"))
}

func TestBot_IgnoresOtherActivities(t *testing.T) {
	c := newConversation(t, nil, "")
	assert.Empty(t, c.send(activity.NewEvent("ping", nil)))
}

func TestBot_DefaultLocaleWithoutProfile(t *testing.T) {
	storage := store.NewMemoryStorage()
	b, err := New(Config{
		ConversationState: state.NewConversationState(storage, nil),
		UserState:         state.NewUserState(storage, nil),
		DefaultLocale:     "ru-ru",
	})
	require.NoError(t, err)

	ta := adaptertest.New(b.OnTurn)
	ta.Use(b.Middleware()...)

	var seen string
	err = ta.Continue(context.Background(), func(ctx context.Context, tc *turn.Context) error {
		if err := b.applyLocale(ctx, tc); err != nil {
			return err
		}
		seen = tc.Activity().Locale
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ru-ru", seen)
}
