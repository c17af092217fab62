// ABOUTME: Tests for the Matrix adapter using a fake mautrix client
// ABOUTME: Covers event mapping, filtering, formatting, edits and redactions

package matrix

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/turn"
)

const (
	botID  = "@bot:example.org"
	userID = "@alice:example.org"
	roomID = "!room:example.org"
)

type sentEvent struct {
	room    id.RoomID
	content *event.MessageEventContent
}

type typingCall struct {
	room   id.RoomID
	typing bool
}

type fakeClient struct {
	mu       sync.Mutex
	seq      int
	sent     []sentEvent
	redacted []id.EventID
	typing   []typingCall

	// typingDelay slows the first typing notification.
	typingDelay time.Duration
}

func (f *fakeClient) SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.sent = append(f.sent, sentEvent{room: roomID, content: contentJSON.(*event.MessageEventContent)})
	return &mautrix.RespSendEvent{EventID: id.EventID("$sent" + string(rune('0'+f.seq)))}, nil
}

func (f *fakeClient) RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID, extra ...mautrix.ReqRedact) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redacted = append(f.redacted, eventID)
	return &mautrix.RespSendEvent{EventID: "$redaction"}, nil
}

func (f *fakeClient) UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error) {
	f.mu.Lock()
	first := len(f.typing) == 0
	f.typing = append(f.typing, typingCall{room: roomID, typing: typing})
	delay := f.typingDelay
	f.mu.Unlock()
	if first && delay > 0 {
		time.Sleep(delay)
	}
	return &mautrix.RespTyping{}, nil
}

func (f *fakeClient) SyncWithContext(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func textEvent(sender, room, body string) *event.Event {
	return &event.Event{
		ID:        "$in1",
		Sender:    id.UserID(sender),
		RoomID:    id.RoomID(room),
		Type:      event.EventMessage,
		Timestamp: 1_700_000_000_000,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    body,
		}},
	}
}

// recorder captures the activities the handler saw.
type recorder struct {
	mu   sync.Mutex
	seen []*activity.Activity
}

func (r *recorder) handler(reply string) func(ctx context.Context, tc *turn.Context) error {
	return func(ctx context.Context, tc *turn.Context) error {
		r.mu.Lock()
		r.seen = append(r.seen, tc.Activity())
		r.mu.Unlock()
		if reply == "" {
			return nil
		}
		_, err := tc.SendText(ctx, reply)
		return err
	}
}

func TestReceive_MapsMessage(t *testing.T) {
	client := &fakeClient{}
	rec := &recorder{}
	a := NewAdapter(client, Config{UserID: botID}, rec.handler("hello back"))

	require.NoError(t, a.Receive(context.Background(), textEvent(userID, roomID, "hello")))

	require.Len(t, rec.seen, 1)
	in := rec.seen[0]
	assert.Equal(t, activity.TypeMessage, in.Type)
	assert.Equal(t, "$in1", in.ID)
	assert.Equal(t, ChannelID, in.ChannelID)
	assert.Equal(t, userID, in.FromID())
	assert.Equal(t, "alice", in.From.Name)
	assert.Equal(t, roomID, in.ConversationID())
	assert.Equal(t, "hello", in.Text)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000).UTC(), in.Timestamp)

	require.Len(t, client.sent, 1)
	out := client.sent[0]
	assert.Equal(t, id.RoomID(roomID), out.room)
	assert.Equal(t, event.MsgText, out.content.MsgType)
	assert.Equal(t, "hello back", out.content.Body)
	assert.Empty(t, out.content.FormattedBody, "plain text is not sent as HTML")
	assert.Nil(t, out.content.RelatesTo)
}

func TestReceive_Filters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		evt  *event.Event
	}{
		{"own message", Config{UserID: botID}, textEvent(botID, roomID, "echo")},
		{"room not allowed", Config{UserID: botID, AllowedRooms: []string{"!other:example.org"}}, textEvent(userID, roomID, "hi")},
		{"missing prefix", Config{UserID: botID, CommandPrefix: "!bot"}, textEvent(userID, roomID, "hi")},
		{"only prefix", Config{UserID: botID, CommandPrefix: "!bot"}, textEvent(userID, roomID, "!bot ")},
		{"not text", Config{UserID: botID}, &event.Event{
			ID: "$img", Sender: userID, RoomID: roomID,
			Content: event.Content{Parsed: &event.MessageEventContent{MsgType: event.MsgImage, Body: "cat.png"}},
		}},
		{"not a message", Config{UserID: botID}, &event.Event{
			ID: "$m", Sender: userID, RoomID: roomID,
			Content: event.Content{Parsed: &event.MemberEventContent{Membership: event.MembershipJoin}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			a := NewAdapter(&fakeClient{}, tt.cfg, rec.handler(""))
			require.NoError(t, a.Receive(context.Background(), tt.evt))
			assert.Empty(t, rec.seen)
		})
	}
}

func TestReceive_StripsPrefix(t *testing.T) {
	rec := &recorder{}
	a := NewAdapter(&fakeClient{}, Config{UserID: botID, CommandPrefix: "!bot", AllowedRooms: []string{roomID}}, rec.handler(""))

	require.NoError(t, a.Receive(context.Background(), textEvent(userID, roomID, "!bot remind me")))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, "remind me", rec.seen[0].Text)
}

func TestReceive_Edit(t *testing.T) {
	rec := &recorder{}
	a := NewAdapter(&fakeClient{}, Config{UserID: botID}, rec.handler(""))

	evt := textEvent(userID, roomID, "* fixed")
	evt.ID = "$edit"
	content := evt.Content.Parsed.(*event.MessageEventContent)
	content.NewContent = &event.MessageEventContent{MsgType: event.MsgText, Body: "fixed"}
	content.RelatesTo = &event.RelatesTo{Type: event.RelReplace, EventID: "$original"}

	require.NoError(t, a.Receive(context.Background(), evt))
	require.Len(t, rec.seen, 1)
	assert.Equal(t, activity.TypeMessageUpdate, rec.seen[0].Type)
	assert.Equal(t, "$original", rec.seen[0].ID)
	assert.Equal(t, "fixed", rec.seen[0].Text)
}

func TestReceive_TypingIndicator(t *testing.T) {
	client := &fakeClient{}
	a := NewAdapter(client, Config{UserID: botID, TypingIndicator: true}, (&recorder{}).handler("ok"))

	require.NoError(t, a.Receive(context.Background(), textEvent(userID, roomID, "hi")))
	assert.Equal(t, []typingCall{{roomID, true}, {roomID, false}}, client.typing)
}

func TestSend_MarkdownNoticeAndReply(t *testing.T) {
	client := &fakeClient{}
	a := NewAdapter(client, Config{UserID: botID, Notices: true, QuoteReplies: true}, (&recorder{}).handler("**done**"))

	require.NoError(t, a.Receive(context.Background(), textEvent(userID, roomID, "do it")))
	require.Len(t, client.sent, 1)
	out := client.sent[0].content
	assert.Equal(t, event.MsgNotice, out.MsgType)
	assert.Equal(t, event.FormatHTML, out.Format)
	assert.Equal(t, "<p><strong>done</strong></p>", out.FormattedBody)
	require.NotNil(t, out.RelatesTo)
	require.NotNil(t, out.RelatesTo.InReplyTo)
	assert.Equal(t, id.EventID("$in1"), out.RelatesTo.InReplyTo.EventID)
}

func TestSend_TypingAndDelay(t *testing.T) {
	client := &fakeClient{}
	var responses []activity.ResourceResponse
	a := NewAdapter(client, Config{UserID: botID}, func(ctx context.Context, tc *turn.Context) error {
		var err error
		responses, err = tc.SendActivities(ctx,
			&activity.Activity{Type: activity.TypeTyping},
			&activity.Activity{Type: activity.TypeDelay, Value: 1},
			activity.NewMessage("after the pause"),
		)
		return err
	})

	require.NoError(t, a.Receive(context.Background(), textEvent(userID, roomID, "hi")))
	require.Len(t, responses, 3)
	assert.Empty(t, responses[0].ID)
	assert.Empty(t, responses[1].ID)
	assert.NotEmpty(t, responses[2].ID)
	assert.Equal(t, []typingCall{{roomID, true}}, client.typing)
	require.Len(t, client.sent, 1)
}

func TestUpdateAndDelete(t *testing.T) {
	client := &fakeClient{}
	a := NewAdapter(client, Config{UserID: botID}, func(ctx context.Context, tc *turn.Context) error {
		resp, err := tc.SendText(ctx, "draft")
		if err != nil {
			return err
		}
		update := activity.NewMessage("final _version_")
		update.ID = resp.ID
		if err := tc.UpdateActivity(ctx, update); err != nil {
			return err
		}
		return tc.DeleteActivity(ctx, resp.ID)
	})

	require.NoError(t, a.Receive(context.Background(), textEvent(userID, roomID, "hi")))

	require.Len(t, client.sent, 2)
	edit := client.sent[1].content
	assert.Equal(t, "* final _version_", edit.Body)
	require.NotNil(t, edit.RelatesTo)
	assert.Equal(t, event.RelReplace, edit.RelatesTo.Type)
	assert.Equal(t, id.EventID("$sent1"), edit.RelatesTo.EventID)
	require.NotNil(t, edit.NewContent)
	assert.Equal(t, "final _version_", edit.NewContent.Body)
	assert.Equal(t, "<p>final <em>version</em></p>", edit.NewContent.FormattedBody)

	assert.Equal(t, []id.EventID{"$sent1"}, client.redacted)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a := NewAdapter(&fakeClient{}, Config{UserID: botID}, (&recorder{}).handler(""))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"plain words", "", false},
		{"", "", false},
		{"**bold**", "<p><strong>bold</strong></p>", true},
		{"- a\n- b", "<ul>\n<li>a</li>\n<li>b</li>\n</ul>", true},
		{"<script>x</script>", "", true},
	}
	for _, tt := range tests {
		got, ok := renderMarkdown(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.want != "" {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
		assert.NotContains(t, got, "<script>", "raw HTML must not pass through")
	}
}

func TestHandleEvent_KeepsOrderWithinRoom(t *testing.T) {
	client := &fakeClient{typingDelay: 50 * time.Millisecond}
	rec := &recorder{}
	a := NewAdapter(client, Config{UserID: botID, TypingIndicator: true}, rec.handler(""))

	a.HandleEvent(context.Background(), textEvent(userID, roomID, "first"))
	a.HandleEvent(context.Background(), textEvent(userID, roomID, "second"))
	a.Wait()

	require.Len(t, rec.seen, 2)
	assert.Equal(t, "first", rec.seen[0].Text)
	assert.Equal(t, "second", rec.seen[1].Text)
}
