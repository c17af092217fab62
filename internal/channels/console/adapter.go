// ABOUTME: Terminal transport for talking to the bot locally
// ABOUTME: Each input line is a message turn; replies are printed in color

// Package console runs the bot over a reader and a writer, usually the
// terminal. It exists for trying dialogs without a chat network.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/channels"
	"github.com/2389/coven-bot/internal/turn"
)

// ChannelID names the console channel on activities.
const ChannelID = "console"

// QuitCommand ends Run.
const QuitCommand = "/quit"

// Config names the local user and conversation.
type Config struct {
	UserID         string
	UserName       string
	ConversationID string
	BotName        string
	Locale         string
}

// Adapter is the console transport.
type Adapter struct {
	*adapter.Base
	in      io.Reader
	out     io.Writer
	cfg     Config
	handler adapter.Handler
	tokens  turn.UserTokenProvider

	mu  sync.Mutex
	seq int

	botColor    *color.Color
	promptColor *color.Color
	dimColor    *color.Color
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTokenProvider lets prompts fetch user tokens.
func WithTokenProvider(p turn.UserTokenProvider) Option {
	return func(a *Adapter) { a.tokens = p }
}

// NewAdapter creates a console adapter reading from in and writing to out.
func NewAdapter(in io.Reader, out io.Writer, cfg Config, handler adapter.Handler, logger *slog.Logger, opts ...Option) *Adapter {
	if cfg.UserID == "" {
		cfg.UserID = "user"
	}
	if cfg.UserName == "" {
		cfg.UserName = "User"
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = "console"
	}
	if cfg.BotName == "" {
		cfg.BotName = "bot"
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		Base:        adapter.NewBase(logger.With("component", "console")),
		in:          in,
		out:         out,
		cfg:         cfg,
		handler:     handler,
		botColor:    color.New(color.FgCyan),
		promptColor: color.New(color.FgGreen),
		dimColor:    color.New(color.Faint),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run reads lines until EOF, QuitCommand or ctx cancellation. A failed turn
// is reported and the loop continues.
func (a *Adapter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		a.promptColor.Fprint(a.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(a.out)
			return err
		case line := <-lines:
			text := strings.TrimSpace(line)
			if text == QuitCommand {
				return nil
			}
			if text == "" {
				continue
			}
			if err := a.Send(ctx, text); err != nil {
				color.New(color.FgRed).Fprintf(a.out, "error: %v\n", err)
			}
		}
	}
}

// ContinueReference runs a proactive turn in the conversation ref points at.
func (a *Adapter) ContinueReference(ctx context.Context, ref activity.ConversationReference, handler adapter.Handler) error {
	return a.ContinueConversation(ctx, adapter.WithTokens(a, a.tokens), ref, handler)
}

// Send runs one message turn for text.
func (a *Adapter) Send(ctx context.Context, text string) error {
	a.mu.Lock()
	a.seq++
	id := "in-" + strconv.Itoa(a.seq)
	a.mu.Unlock()

	act := &activity.Activity{
		Type:         activity.TypeMessage,
		ID:           id,
		Timestamp:    time.Now().UTC(),
		ChannelID:    ChannelID,
		From:         &activity.ChannelAccount{ID: a.cfg.UserID, Name: a.cfg.UserName},
		Recipient:    &activity.ChannelAccount{ID: a.cfg.BotName, Name: a.cfg.BotName, Role: "bot"},
		Conversation: &activity.ConversationAccount{ID: a.cfg.ConversationID},
		Locale:       a.cfg.Locale,
		Text:         text,
	}
	return a.ProcessActivity(ctx, adapter.WithTokens(a, a.tokens), act, a.handler)
}

// SendActivities implements turn.Adapter.
func (a *Adapter) SendActivities(ctx context.Context, tc *turn.Context, acts []*activity.Activity) ([]activity.ResourceResponse, error) {
	responses := make([]activity.ResourceResponse, 0, len(acts))
	for _, act := range acts {
		switch act.Type {
		case activity.TypeDelay:
			if err := channels.Sleep(ctx, channels.Delay(act)); err != nil {
				return responses, err
			}
			responses = append(responses, activity.ResourceResponse{})
		case activity.TypeTyping:
			a.dimColor.Fprintf(a.out, "%s is typing...\n", a.cfg.BotName)
			responses = append(responses, activity.ResourceResponse{})
		case activity.TypeMessage:
			a.mu.Lock()
			a.seq++
			id := "out-" + strconv.Itoa(a.seq)
			a.mu.Unlock()
			a.botColor.Fprintf(a.out, "%s: ", a.cfg.BotName)
			fmt.Fprintln(a.out, channels.Text(act))
			responses = append(responses, activity.ResourceResponse{ID: id})
		default:
			responses = append(responses, activity.ResourceResponse{})
		}
	}
	return responses, nil
}

// UpdateActivity prints the new text marked as an edit.
func (a *Adapter) UpdateActivity(ctx context.Context, tc *turn.Context, act *activity.Activity) error {
	a.botColor.Fprintf(a.out, "%s: ", a.cfg.BotName)
	a.dimColor.Fprint(a.out, "(edited) ")
	fmt.Fprintln(a.out, channels.Text(act))
	return nil
}

// DeleteActivity prints a deletion notice.
func (a *Adapter) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	a.dimColor.Fprintf(a.out, "(message %s deleted)\n", ref.ActivityID)
	return nil
}
