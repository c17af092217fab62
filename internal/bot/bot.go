// ABOUTME: Turn handler wiring dialogs to conversation and user state
// ABOUTME: Handles interruptions, continues the active dialog and starts the main menu

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/dialog"
	"github.com/2389/coven-bot/internal/prompt"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/state"
	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

// Interruption commands, matched case-insensitively against the whole message.
const (
	CancelCommand = "cancel"
	HelpCommand   = "help"
	LogoutCommand = "logout"
)

const helpText = "I can set reminders, remember your name and language, and sign you in. " +
	"Say anything to see the menu, \"cancel\" to stop what we're doing, or \"logout\" to sign out."

// Config wires the bot to its state and collaborators.
type Config struct {
	ConversationState *state.State
	UserState         *state.State
	// DateTime recognizes reminder times. Nil uses the olebedev/when recognizer.
	DateTime recognizer.DateTime
	// OAuthConnection enables the sign-in dialog and the logout command.
	OAuthConnection string
	// DefaultLocale applies to activities without a locale from users
	// without a saved preference.
	DefaultLocale string
	Now             func() time.Time
	Logger          *slog.Logger
}

// Bot is the turn handler.
type Bot struct {
	dialogs      *dialog.Set
	conversation *state.State
	user         *state.State
	stack        *state.Property[dialog.Stack]
	profile      *state.Property[Profile]
	reminders    *state.Property[[]Reminder]
	storage      store.Storage
	connection   string
	oauth        *prompt.OAuth
	locale       string
	now          func() time.Time
	logger       *slog.Logger
}

// New creates the bot and registers its dialogs.
func New(cfg Config) (*Bot, error) {
	if cfg.ConversationState == nil || cfg.UserState == nil {
		return nil, errors.New("conversation and user state are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DateTime == nil {
		cfg.DateTime = recognizer.NewWhenRecognizer(recognizer.WithNow(cfg.Now), recognizer.WithLogger(cfg.Logger))
	}

	b := &Bot{
		conversation: cfg.ConversationState,
		user:         cfg.UserState,
		stack:        state.NewProperty[dialog.Stack](cfg.ConversationState, "dialogState"),
		profile:      state.NewProperty[Profile](cfg.UserState, "profile"),
		reminders:    state.NewProperty[[]Reminder](cfg.UserState, "reminders"),
		storage:      cfg.UserState.Storage(),
		connection:   cfg.OAuthConnection,
		locale:       cfg.DefaultLocale,
		now:          cfg.Now,
		logger:       cfg.Logger.With("component", "bot"),
	}
	dialogs, err := b.buildDialogs(cfg.DateTime)
	if err != nil {
		return nil, fmt.Errorf("registering dialogs: %w", err)
	}
	b.dialogs = dialogs
	return b, nil
}

// Dialogs returns the registered dialog set.
func (b *Bot) Dialogs() *dialog.Set {
	return b.dialogs
}

// Middleware returns the middleware the bot needs on its adapter.
func (b *Bot) Middleware() []adapter.Middleware {
	return []adapter.Middleware{state.AutoSave(b.conversation, b.user)}
}

// OnTurn handles one activity.
func (b *Bot) OnTurn(ctx context.Context, tc *turn.Context) error {
	a := tc.Activity()
	logger := b.logger.With("channel", a.ChannelID, "conversation_id", a.ConversationID(), "activity_id", a.ID)

	if err := b.applyLocale(ctx, tc); err != nil {
		return err
	}

	stack, err := b.stack.Get(ctx, tc)
	if err != nil {
		return fmt.Errorf("loading dialog stack: %w", err)
	}
	dc := b.dialogs.CreateContext(tc, stack)

	if a.IsMessage() {
		handled, err := b.interrupt(ctx, dc)
		if err != nil || handled {
			return err
		}
	}

	switch a.Type {
	case activity.TypeConversationUpdate:
		_, err := tc.SendText(ctx, "Hi! Say anything to get started, or \"help\" to learn what I can do.")
		return err
	case activity.TypeEndOfConversation:
		logger.Debug("conversation ended, clearing state")
		b.conversation.Clear(tc)
		return nil
	}

	hadActive := dc.ActiveDialog() != nil
	result, err := dc.Continue(ctx)
	if err != nil {
		return err
	}
	if !hadActive && a.IsMessage() {
		logger.Debug("starting main dialog")
		result, err = dc.Begin(ctx, MainDialog, nil)
		if err != nil {
			return err
		}
	}
	logger.Debug("turn handled", "active", result.Active, "depth", dc.Stack().Depth())
	return nil
}

// interrupt handles commands that work regardless of the active dialog.
func (b *Bot) interrupt(ctx context.Context, dc *dialog.Context) (bool, error) {
	tc := dc.Turn()
	switch strings.ToLower(tc.Activity().TrimmedText()) {
	case CancelCommand:
		if dc.ActiveDialog() == nil {
			_, err := tc.SendText(ctx, "There's nothing to cancel.")
			return true, err
		}
		dc.EndAll()
		_, err := tc.SendText(ctx, "Okay, cancelled.")
		return true, err

	case HelpCommand:
		_, err := tc.SendText(ctx, helpText)
		return true, err

	case LogoutCommand:
		if b.oauth == nil {
			return false, nil
		}
		err := b.oauth.SignOutUser(ctx, tc)
		if errors.Is(err, turn.ErrUnsupportedAdapter) {
			_, err := tc.SendText(ctx, "Sign-in isn't available here.")
			return true, err
		}
		if err != nil {
			return true, fmt.Errorf("signing out: %w", err)
		}
		dc.EndAll()
		_, err = tc.SendText(ctx, "You have been signed out.")
		return true, err
	}
	return false, nil
}

// applyLocale fills in the user's preferred locale, or the default, when
// the channel sent none.
func (b *Bot) applyLocale(ctx context.Context, tc *turn.Context) error {
	a := tc.Activity()
	if a.Locale != "" {
		return nil
	}
	if a.FromID() != "" {
		has, err := b.profile.Has(ctx, tc)
		if err != nil {
			return err
		}
		if has {
			p, err := b.profile.Get(ctx, tc)
			if err != nil {
				return err
			}
			if p.Locale != "" {
				a.Locale = p.Locale
				return nil
			}
		}
	}
	a.Locale = b.locale
	return nil
}
