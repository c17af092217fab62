// ABOUTME: Matrix transport adapter translating room events to activities and back
// ABOUTME: Runs each inbound event as a turn through the shared adapter pipeline

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/channels"
	"github.com/2389/coven-bot/internal/turn"
)

// ChannelID names the Matrix channel on activities.
const ChannelID = "matrix"

// typingTimeout is how long a typing notification lasts.
const typingTimeout = 30 * time.Second

// networkTimeout bounds Matrix API calls made outside a turn.
const networkTimeout = 10 * time.Second

// Client is the part of *mautrix.Client the adapter uses.
type Client interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID, extra ...mautrix.ReqRedact) (*mautrix.RespSendEvent, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
	SyncWithContext(ctx context.Context) error
}

// Config controls which events become turns and how replies look.
type Config struct {
	// UserID is the bot's own Matrix id; its events are ignored.
	UserID          string
	AllowedRooms    []string
	CommandPrefix   string
	TypingIndicator bool
	// Notices sends replies as m.notice, which other bots ignore.
	Notices bool
	// QuoteReplies marks replies as m.in_reply_to the message they answer.
	QuoteReplies bool
}

// Adapter is the Matrix transport.
type Adapter struct {
	*adapter.Base
	client  Client
	cfg     Config
	handler adapter.Handler
	tokens  turn.UserTokenProvider
	logger  *slog.Logger

	ctx context.Context
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

// NewAdapter creates a Matrix adapter that runs handler for every turn.
func NewAdapter(client Client, cfg Config, handler adapter.Handler, opts ...Option) *Adapter {
	a := &Adapter{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  slog.Default(),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "matrix")
	a.Base = adapter.NewBase(a.logger)
	return a
}

// Run syncs with the homeserver until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	a.logger.Info("starting matrix adapter", "user_id", a.cfg.UserID)
	a.ctx = ctx

	if mc, ok := a.client.(*mautrix.Client); ok {
		syncer, ok := mc.Syncer.(*mautrix.DefaultSyncer)
		if !ok {
			return fmt.Errorf("unexpected syncer type: %T", mc.Syncer)
		}
		syncer.OnEventType(event.EventMessage, a.HandleEvent)
	}

	err := a.client.SyncWithContext(ctx)
	a.Wait()
	if ctx.Err() != nil {
		a.logger.Info("shutting down matrix adapter")
		return nil
	}
	if err != nil {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	return nil
}

// HandleEvent is the sync callback. The turn is queued behind earlier events
// from the same room so the sync loop never blocks and turns keep their order.
func (a *Adapter) HandleEvent(_ context.Context, evt *event.Event) {
	a.Dispatch(adapter.ConversationKey(ChannelID, evt.RoomID.String()), func() {
		if err := a.Receive(a.ctx, evt); err != nil {
			a.logger.Error("turn failed", "room", evt.RoomID.String(), "event_id", evt.ID.String(), "error", err)
		}
	})
}

// ContinueReference runs a proactive turn in the conversation ref points at.
func (a *Adapter) ContinueReference(ctx context.Context, ref activity.ConversationReference, handler adapter.Handler) error {
	return a.ContinueConversation(ctx, adapter.WithTokens(a, a.tokens), ref, handler)
}

// Receive runs a turn for evt. Events that do not map to an activity are
// ignored.
func (a *Adapter) Receive(ctx context.Context, evt *event.Event) error {
	act, ok := a.toActivity(evt)
	if !ok {
		return nil
	}
	a.logger.Info("received message",
		"room", act.ConversationID(),
		"sender", act.FromID(),
		"type", act.Type,
		"content", channels.Truncate(act.Text, 50),
	)

	if a.cfg.TypingIndicator && act.IsMessage() {
		a.setTyping(evt.RoomID, true)
		defer a.setTyping(evt.RoomID, false)
	}
	return a.ProcessActivity(ctx, adapter.WithTokens(a, a.tokens), act, a.handler)
}

func (a *Adapter) toActivity(evt *event.Event) (*activity.Activity, bool) {
	if evt.Sender == id.UserID(a.cfg.UserID) {
		return nil, false
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return nil, false
	}
	if !channels.Allowed(a.cfg.AllowedRooms, evt.RoomID.String()) {
		a.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID.String())
		return nil, false
	}

	act := &activity.Activity{
		Type:         activity.TypeMessage,
		ID:           evt.ID.String(),
		ChannelID:    ChannelID,
		From:         &activity.ChannelAccount{ID: evt.Sender.String(), Name: evt.Sender.Localpart()},
		Recipient:    &activity.ChannelAccount{ID: a.cfg.UserID, Role: "bot"},
		Conversation: &activity.ConversationAccount{ID: evt.RoomID.String()},
	}
	if evt.Timestamp > 0 {
		act.Timestamp = time.UnixMilli(evt.Timestamp).UTC()
	}

	body := content.Body
	msgType := content.MsgType
	if rel := content.RelatesTo; rel != nil {
		if rel.Type == event.RelReplace && content.NewContent != nil {
			act.Type = activity.TypeMessageUpdate
			act.ID = rel.EventID.String()
			body = content.NewContent.Body
			msgType = content.NewContent.MsgType
		}
		if rel.InReplyTo != nil {
			act.ReplyToID = rel.InReplyTo.EventID.String()
		}
	}
	if msgType != event.MsgText {
		return nil, false
	}

	text, ok := channels.StripPrefix(body, a.cfg.CommandPrefix)
	if !ok {
		return nil, false
	}
	act.Text = text
	return act, true
}

// SendActivities implements turn.Adapter.
func (a *Adapter) SendActivities(ctx context.Context, tc *turn.Context, acts []*activity.Activity) ([]activity.ResourceResponse, error) {
	responses := make([]activity.ResourceResponse, 0, len(acts))
	for _, act := range acts {
		room := roomOf(tc, act)
		switch act.Type {
		case activity.TypeDelay:
			if err := channels.Sleep(ctx, channels.Delay(act)); err != nil {
				return responses, err
			}
			responses = append(responses, activity.ResourceResponse{})
		case activity.TypeTyping:
			if _, err := a.client.UserTyping(ctx, room, true, typingTimeout); err != nil {
				a.logger.Debug("failed to set typing indicator", "room", room.String(), "error", err)
			}
			responses = append(responses, activity.ResourceResponse{})
		case activity.TypeMessage:
			resp, err := a.client.SendMessageEvent(ctx, room, event.EventMessage, a.messageContent(act))
			if err != nil {
				return responses, fmt.Errorf("sending to %s: %w", room, err)
			}
			responses = append(responses, activity.ResourceResponse{ID: resp.EventID.String()})
		default:
			a.logger.Debug("dropping unsupported activity", "type", act.Type, "room", room.String())
			responses = append(responses, activity.ResourceResponse{})
		}
	}
	return responses, nil
}

// UpdateActivity edits a previously sent message with m.replace.
func (a *Adapter) UpdateActivity(ctx context.Context, tc *turn.Context, act *activity.Activity) error {
	if act.ID == "" {
		return errors.New("updating matrix message: activity has no id")
	}
	newContent := a.messageContent(act)
	newContent.RelatesTo = nil

	edit := &event.MessageEventContent{
		MsgType:    newContent.MsgType,
		Body:       "* " + newContent.Body,
		NewContent: newContent,
		RelatesTo:  &event.RelatesTo{Type: event.RelReplace, EventID: id.EventID(act.ID)},
	}
	if newContent.FormattedBody != "" {
		edit.Format = event.FormatHTML
		edit.FormattedBody = "* " + newContent.FormattedBody
	}
	if _, err := a.client.SendMessageEvent(ctx, roomOf(tc, act), event.EventMessage, edit); err != nil {
		return fmt.Errorf("editing %s: %w", act.ID, err)
	}
	return nil
}

// DeleteActivity redacts the referenced event.
func (a *Adapter) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	room := id.RoomID(ref.ConversationID())
	if room == "" {
		room = id.RoomID(tc.Activity().ConversationID())
	}
	if _, err := a.client.RedactEvent(ctx, room, id.EventID(ref.ActivityID)); err != nil {
		return fmt.Errorf("redacting %s: %w", ref.ActivityID, err)
	}
	return nil
}

func (a *Adapter) messageContent(act *activity.Activity) *event.MessageEventContent {
	msgType := event.MsgText
	if a.cfg.Notices {
		msgType = event.MsgNotice
	}
	body := channels.Text(act)
	content := &event.MessageEventContent{MsgType: msgType, Body: body}
	if html, ok := renderMarkdown(body); ok {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	if a.cfg.QuoteReplies && act.ReplyToID != "" {
		content.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: id.EventID(act.ReplyToID)}}
	}
	return content
}

// setTyping toggles the typing notification outside the turn's context so
// that clearing it still works when the turn was cancelled.
func (a *Adapter) setTyping(room id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := a.client.UserTyping(ctx, room, typing, timeout); err != nil {
		a.logger.Debug("failed to set typing indicator", "room", room.String(), "error", err)
	}
}

func roomOf(tc *turn.Context, act *activity.Activity) id.RoomID {
	if room := act.ConversationID(); room != "" {
		return id.RoomID(room)
	}
	return id.RoomID(tc.Activity().ConversationID())
}
