// ABOUTME: Discord transport adapter built on a discordgo session
// ABOUTME: Turns MessageCreate/MessageUpdate into activities and sends replies, edits and deletes

// Package discord connects the bot to Discord channels and DMs.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/channels"
	"github.com/2389/coven-bot/internal/turn"
)

// ChannelID names the Discord channel on activities.
const ChannelID = "discord"

// maxMessageLen is Discord's limit on message content.
const maxMessageLen = 2000

// Session is the part of *discordgo.Session the adapter uses.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	AddHandler(handler any) func()
	Open() error
	Close() error
}

// Config controls which messages become turns.
type Config struct {
	// BotUserID filters the bot's own messages. It is learned from the Ready
	// event when empty.
	BotUserID       string
	AllowedChannels []string
	CommandPrefix   string
	// RequireMention ignores guild messages that do not mention the bot.
	// Direct messages are always handled.
	RequireMention bool
	// QuoteReplies sends replies as Discord replies to the triggering message.
	QuoteReplies bool
}

// Adapter is the Discord transport.
type Adapter struct {
	*adapter.Base
	session Session
	cfg     Config
	handler adapter.Handler
	tokens  turn.UserTokenProvider
	logger  *slog.Logger

	mu    sync.RWMutex
	botID string
	ctx   context.Context
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTokenProvider lets prompts on this channel fetch user tokens.
func WithTokenProvider(p turn.UserTokenProvider) Option {
	return func(a *Adapter) { a.tokens = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// Connect creates a bot session for token with the intents the adapter needs.
func Connect(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	return session, nil
}

// NewAdapter creates a Discord adapter that runs handler for every turn.
func NewAdapter(session Session, cfg Config, handler adapter.Handler, opts ...Option) *Adapter {
	a := &Adapter{
		session: session,
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
		botID:   cfg.BotUserID,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "discord")
	a.Base = adapter.NewBase(a.logger)
	return a
}

// Run connects the gateway websocket and handles messages until ctx is
// cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	a.ctx = ctx
	removers := []func(){
		a.session.AddHandler(a.onReady),
		a.session.AddHandler(a.onMessageCreate),
		a.session.AddHandler(a.onMessageUpdate),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("opening discord connection: %w", err)
	}
	a.logger.Info("discord adapter running")

	<-ctx.Done()
	a.logger.Info("shutting down discord adapter")
	err := a.session.Close()
	a.Wait()
	return err
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	a.mu.Lock()
	if a.botID == "" {
		a.botID = r.User.ID
	}
	a.mu.Unlock()
	a.logger.Info("connected to discord", "user", r.User.Username)
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	a.dispatch(m.Message, activity.TypeMessage)
}

func (a *Adapter) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	a.dispatch(m.Message, activity.TypeMessageUpdate)
}

// dispatch keeps the websocket reader free. Turns are queued per channel in
// the order Discord delivered them.
func (a *Adapter) dispatch(m *discordgo.Message, kind activity.Type) {
	if m == nil {
		return
	}
	a.Dispatch(adapter.ConversationKey(ChannelID, m.ChannelID), func() {
		if err := a.Receive(a.ctx, m, kind); err != nil {
			a.logger.Error("turn failed", "channel_id", m.ChannelID, "message_id", m.ID, "error", err)
		}
	})
}

// ContinueReference runs a proactive turn in the conversation ref points at.
func (a *Adapter) ContinueReference(ctx context.Context, ref activity.ConversationReference, handler adapter.Handler) error {
	return a.ContinueConversation(ctx, adapter.WithTokens(a, a.tokens), ref, handler)
}

// Receive runs a turn for m. Messages that should not reach the bot are
// ignored.
func (a *Adapter) Receive(ctx context.Context, m *discordgo.Message, kind activity.Type) error {
	act, ok := a.toActivity(m, kind)
	if !ok {
		return nil
	}
	a.logger.Info("received message",
		"channel_id", m.ChannelID,
		"author", act.FromID(),
		"type", kind,
		"content", channels.Truncate(act.Text, 50),
	)
	return a.ProcessActivity(ctx, adapter.WithTokens(a, a.tokens), act, a.handler)
}

func (a *Adapter) self() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.botID
}

func (a *Adapter) toActivity(m *discordgo.Message, kind activity.Type) (*activity.Activity, bool) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == a.self() {
		return nil, false
	}
	if !channels.Allowed(a.cfg.AllowedChannels, m.ChannelID) {
		return nil, false
	}

	isDM := m.GuildID == ""
	text, mentioned := a.stripMention(m.Content)
	if a.cfg.RequireMention && !isDM && !mentioned {
		return nil, false
	}
	text, ok := channels.StripPrefix(text, a.cfg.CommandPrefix)
	if !ok {
		return nil, false
	}

	act := &activity.Activity{
		Type:         kind,
		ID:           m.ID,
		Timestamp:    m.Timestamp.UTC(),
		ChannelID:    ChannelID,
		From:         &activity.ChannelAccount{ID: m.Author.ID, Name: m.Author.Username},
		Recipient:    &activity.ChannelAccount{ID: a.self(), Role: "bot"},
		Conversation: &activity.ConversationAccount{ID: m.ChannelID, IsGroup: !isDM},
		Text:         text,
	}
	if m.MessageReference != nil {
		act.ReplyToID = m.MessageReference.MessageID
	}
	for _, att := range m.Attachments {
		act.Attachments = append(act.Attachments, activity.Attachment{
			ContentType: att.ContentType,
			ContentURL:  att.URL,
			Name:        att.Filename,
		})
	}
	return act, true
}

// stripMention removes a leading bot mention and reports whether there
// was one.
func (a *Adapter) stripMention(content string) (string, bool) {
	botID := a.self()
	if botID == "" {
		return content, false
	}
	for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(content), mention); ok {
			return strings.TrimSpace(rest), true
		}
		if strings.Contains(content, mention) {
			return strings.TrimSpace(strings.ReplaceAll(content, mention, "")), true
		}
	}
	return content, false
}

// SendActivities implements turn.Adapter.
func (a *Adapter) SendActivities(ctx context.Context, tc *turn.Context, acts []*activity.Activity) ([]activity.ResourceResponse, error) {
	responses := make([]activity.ResourceResponse, 0, len(acts))
	for _, act := range acts {
		channelID := channelOf(tc, act)
		switch act.Type {
		case activity.TypeDelay:
			if err := channels.Sleep(ctx, channels.Delay(act)); err != nil {
				return responses, err
			}
			responses = append(responses, activity.ResourceResponse{})
		case activity.TypeTyping:
			if err := a.session.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
				a.logger.Debug("failed to set typing indicator", "channel_id", channelID, "error", err)
			}
			responses = append(responses, activity.ResourceResponse{})
		case activity.TypeMessage:
			msgID, err := a.send(ctx, channelID, act)
			if err != nil {
				return responses, err
			}
			responses = append(responses, activity.ResourceResponse{ID: msgID})
		default:
			a.logger.Debug("dropping unsupported activity", "type", act.Type, "channel_id", channelID)
			responses = append(responses, activity.ResourceResponse{})
		}
	}
	return responses, nil
}

// send posts act, split into chunks that fit Discord's limit. The id of the
// last chunk identifies the activity.
func (a *Adapter) send(ctx context.Context, channelID string, act *activity.Activity) (string, error) {
	var last string
	for i, chunk := range splitMessage(channels.Text(act), maxMessageLen) {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 && a.cfg.QuoteReplies && act.ReplyToID != "" {
			msg.Reference = &discordgo.MessageReference{MessageID: act.ReplyToID, ChannelID: channelID}
		}
		sent, err := a.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("sending to %s: %w", channelID, err)
		}
		last = sent.ID
	}
	return last, nil
}

// UpdateActivity edits a previously sent message.
func (a *Adapter) UpdateActivity(ctx context.Context, tc *turn.Context, act *activity.Activity) error {
	channelID := channelOf(tc, act)
	content := channels.Text(act)
	if len(content) > maxMessageLen {
		content = splitMessage(content, maxMessageLen)[0]
	}
	if _, err := a.session.ChannelMessageEdit(channelID, act.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("editing %s: %w", act.ID, err)
	}
	return nil
}

// DeleteActivity deletes the referenced message.
func (a *Adapter) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	channelID := ref.ConversationID()
	if channelID == "" {
		channelID = tc.Activity().ConversationID()
	}
	if err := a.session.ChannelMessageDelete(channelID, ref.ActivityID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("deleting %s: %w", ref.ActivityID, err)
	}
	return nil
}

func channelOf(tc *turn.Context, act *activity.Activity) string {
	if id := act.ConversationID(); id != "" {
		return id
	}
	return tc.Activity().ConversationID()
}

// splitMessage cuts text into pieces of at most limit bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
