// ABOUTME: Tests for the Discord adapter using a fake session
// ABOUTME: Covers filtering, mentions, chunked sends, edits and deletes

package discord

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/turn"
)

const botID = "999"

type fakeSession struct {
	mu       sync.Mutex
	seq      int
	sent     []*discordgo.MessageSend
	edits    map[string]string
	deleted  []string
	typing   int
	handlers []any
	opened   bool
	closed   bool
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "m" + strconv.Itoa(f.seq), ChannelID: channelID, Content: data.Content}, nil
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edits == nil {
		f.edits = make(map[string]string)
	}
	f.edits[messageID] = content
	return &discordgo.Message{ID: messageID}, nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSession) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeSession) AddHandler(handler any) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
	return func() {}
}

func (f *fakeSession) Open() error  { f.opened = true; return nil }
func (f *fakeSession) Close() error { f.closed = true; return nil }

func message(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "in1",
		ChannelID: "chan1",
		GuildID:   "guild1",
		Content:   content,
		Timestamp: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Author:    &discordgo.User{ID: "42", Username: "alice"},
	}
}

type recorder struct {
	seen []*activity.Activity
}

func (r *recorder) handler(reply string) func(ctx context.Context, tc *turn.Context) error {
	return func(ctx context.Context, tc *turn.Context) error {
		r.seen = append(r.seen, tc.Activity())
		if reply == "" {
			return nil
		}
		_, err := tc.SendText(ctx, reply)
		return err
	}
}

func TestReceive_MapsMessage(t *testing.T) {
	session := &fakeSession{}
	rec := &recorder{}
	a := NewAdapter(session, Config{BotUserID: botID}, rec.handler("pong"))

	m := message("ping")
	m.Attachments = []*discordgo.MessageAttachment{{URL: "https://cdn/x.png", Filename: "x.png", ContentType: "image/png"}}
	require.NoError(t, a.Receive(context.Background(), m, activity.TypeMessage))

	require.Len(t, rec.seen, 1)
	in := rec.seen[0]
	assert.Equal(t, "in1", in.ID)
	assert.Equal(t, ChannelID, in.ChannelID)
	assert.Equal(t, "42", in.FromID())
	assert.Equal(t, "alice", in.From.Name)
	assert.Equal(t, "chan1", in.ConversationID())
	assert.True(t, in.Conversation.IsGroup)
	assert.Equal(t, "ping", in.Text)
	require.Len(t, in.Attachments, 1)
	assert.Equal(t, "https://cdn/x.png", in.Attachments[0].ContentURL)

	require.Len(t, session.sent, 1)
	assert.Equal(t, "pong", session.sent[0].Content)
	assert.Nil(t, session.sent[0].Reference)
}

func TestReceive_Filters(t *testing.T) {
	own := message("hi")
	own.Author = &discordgo.User{ID: botID}
	otherBot := message("hi")
	otherBot.Author = &discordgo.User{ID: "7", Bot: true}

	tests := []struct {
		name string
		cfg  Config
		msg  *discordgo.Message
	}{
		{"own message", Config{BotUserID: botID}, own},
		{"other bot", Config{BotUserID: botID}, otherBot},
		{"channel not allowed", Config{BotUserID: botID, AllowedChannels: []string{"chan2"}}, message("hi")},
		{"mention required", Config{BotUserID: botID, RequireMention: true}, message("hi")},
		{"prefix required", Config{BotUserID: botID, CommandPrefix: "!"}, message("hi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			a := NewAdapter(&fakeSession{}, tt.cfg, rec.handler(""))
			require.NoError(t, a.Receive(context.Background(), tt.msg, activity.TypeMessage))
			assert.Empty(t, rec.seen)
		})
	}
}

func TestReceive_Mentions(t *testing.T) {
	rec := &recorder{}
	a := NewAdapter(&fakeSession{}, Config{BotUserID: botID, RequireMention: true}, rec.handler(""))

	require.NoError(t, a.Receive(context.Background(), message("<@999> remind me"), activity.TypeMessage))
	require.NoError(t, a.Receive(context.Background(), message("hey <@!999> there"), activity.TypeMessage))

	dm := message("no mention needed")
	dm.GuildID = ""
	require.NoError(t, a.Receive(context.Background(), dm, activity.TypeMessage))

	require.Len(t, rec.seen, 3)
	assert.Equal(t, "remind me", rec.seen[0].Text)
	assert.Equal(t, "hey  there", rec.seen[1].Text)
	assert.Equal(t, "no mention needed", rec.seen[2].Text)
	assert.False(t, rec.seen[2].Conversation.IsGroup)
}

func TestReceive_Update(t *testing.T) {
	rec := &recorder{}
	a := NewAdapter(&fakeSession{}, Config{BotUserID: botID}, rec.handler(""))

	require.NoError(t, a.Receive(context.Background(), message("edited"), activity.TypeMessageUpdate))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, activity.TypeMessageUpdate, rec.seen[0].Type)
	assert.Equal(t, "in1", rec.seen[0].ID)
}

func TestSend_QuoteAndChunks(t *testing.T) {
	session := &fakeSession{}
	long := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1500)
	var resp *activity.ResourceResponse
	a := NewAdapter(session, Config{BotUserID: botID, QuoteReplies: true}, func(ctx context.Context, tc *turn.Context) error {
		var err error
		resp, err = tc.SendText(ctx, long)
		return err
	})

	require.NoError(t, a.Receive(context.Background(), message("long please"), activity.TypeMessage))
	require.Len(t, session.sent, 2)
	assert.Equal(t, strings.Repeat("a", 1500), session.sent[0].Content)
	assert.Equal(t, strings.Repeat("b", 1500), session.sent[1].Content)
	require.NotNil(t, session.sent[0].Reference)
	assert.Equal(t, "in1", session.sent[0].Reference.MessageID)
	assert.Nil(t, session.sent[1].Reference)
	assert.Equal(t, "m2", resp.ID)
}

func TestUpdateDeleteTyping(t *testing.T) {
	session := &fakeSession{}
	a := NewAdapter(session, Config{BotUserID: botID}, func(ctx context.Context, tc *turn.Context) error {
		if _, err := tc.SendActivity(ctx, &activity.Activity{Type: activity.TypeTyping}); err != nil {
			return err
		}
		resp, err := tc.SendText(ctx, "draft")
		if err != nil {
			return err
		}
		update := activity.NewMessage("final")
		update.ID = resp.ID
		if err := tc.UpdateActivity(ctx, update); err != nil {
			return err
		}
		return tc.DeleteActivity(ctx, resp.ID)
	})

	require.NoError(t, a.Receive(context.Background(), message("go"), activity.TypeMessage))
	assert.Equal(t, 1, session.typing)
	assert.Equal(t, map[string]string{"m1": "final"}, session.edits)
	assert.Equal(t, []string{"m1"}, session.deleted)
}

func TestRun_RegistersHandlersAndCloses(t *testing.T) {
	session := &fakeSession{}
	a := NewAdapter(session, Config{}, (&recorder{}).handler(""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return len(session.handlers) == 3
	}, time.Second, 5*time.Millisecond)

	a.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "555", Username: "bot"}})
	assert.Equal(t, "555", a.self())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, session.closed)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Equal(t, []string{"aaaa", "bbbb"}, splitMessage("aaaa\nbbbb", 6))
	assert.Equal(t, []string{"abcde", "fgh"}, splitMessage("abcdefgh", 5))

	// "é" is two bytes; the cut must not land inside it
	chunks := splitMessage("aaaé", 4)
	assert.Equal(t, []string{"aaa", "é"}, chunks)
}

func TestDispatch_KeepsOrderWithinChannel(t *testing.T) {
	session := &fakeSession{}
	rec := &recorder{}
	slowFirst := func(ctx context.Context, tc *turn.Context) error {
		if len(rec.seen) == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		return rec.handler("")(ctx, tc)
	}
	a := NewAdapter(session, Config{BotUserID: botID}, slowFirst)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		a.onMessageCreate(nil, &discordgo.MessageCreate{Message: message(text)})
	}
	a.Wait()

	require.Len(t, rec.seen, len(texts))
	for i, text := range texts {
		assert.Equal(t, text, rec.seen[i].Text)
	}
}
