// ABOUTME: Scripted in-memory adapter for testing bots, dialogs and prompts
// ABOUTME: Records replies, updates and deletes and fakes a user token service

// Package adaptertest provides an in-memory channel for driving turns in
// tests.
package adaptertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/turn"
)

// ChannelID is the channel every scripted activity arrives on.
const ChannelID = "test"

// Adapter drives turns through an adapter.Base and captures everything the
// bot sends back.
type Adapter struct {
	*adapter.Base
	handler adapter.Handler

	// Reference addresses inbound activities. Tests may change it between
	// turns to simulate another user or conversation.
	Reference activity.ConversationReference
	// Locale is stamped on inbound activities when set.
	Locale string
	// NoTokens hides the token capability from turns.
	NoTokens bool

	mu       sync.Mutex
	seq      int
	replies  []*activity.Activity
	updates  []*activity.Activity
	deletes  []activity.ConversationReference
	tokens   map[tokenKey]string
	magic    map[magicKey]string
	signOuts []string
}

type tokenKey struct {
	channel, user, connection string
}

type magicKey struct {
	tokenKey
	code string
}

// New creates an adapter that runs handler for every scripted turn.
func New(handler adapter.Handler) *Adapter {
	return &Adapter{
		Base:    adapter.NewBase(nil),
		handler: handler,
		Reference: activity.ConversationReference{
			ChannelID:    ChannelID,
			ServiceURL:   "https://test.local",
			User:         &activity.ChannelAccount{ID: "user1", Name: "User1"},
			Bot:          &activity.ChannelAccount{ID: "bot", Name: "Bot", Role: "bot"},
			Conversation: &activity.ConversationAccount{ID: "convo1", Name: "Conversation1"},
		},
		tokens: make(map[tokenKey]string),
		magic:  make(map[magicKey]string),
	}
}

// Send runs a turn for a message carrying text.
func (a *Adapter) Send(ctx context.Context, text string) error {
	return a.SendActivity(ctx, activity.NewMessage(text))
}

// SendActivity runs a turn for act, addressed with the adapter's reference.
func (a *Adapter) SendActivity(ctx context.Context, act *activity.Activity) error {
	inbound := activity.ApplyReference(act.Clone(), a.Reference, true)

	a.mu.Lock()
	a.seq++
	if inbound.ID == "" {
		inbound.ID = strconv.Itoa(a.seq)
	}
	a.mu.Unlock()

	if inbound.Type == "" {
		inbound.Type = activity.TypeMessage
	}
	if inbound.Locale == "" {
		inbound.Locale = a.Locale
	}
	if inbound.Timestamp.IsZero() {
		inbound.Timestamp = time.Now().UTC()
	}
	return a.ProcessActivity(ctx, a.turnAdapter(), inbound, a.handler)
}

// Continue runs a proactive turn for the adapter's reference.
func (a *Adapter) Continue(ctx context.Context, handler adapter.Handler) error {
	return a.ContinueConversation(ctx, a.turnAdapter(), a.Reference, handler)
}

// ContinueReference runs a proactive turn for ref.
func (a *Adapter) ContinueReference(ctx context.Context, ref activity.ConversationReference, handler adapter.Handler) error {
	return a.ContinueConversation(ctx, a.turnAdapter(), ref, handler)
}

func (a *Adapter) turnAdapter() turn.Adapter {
	if a.NoTokens {
		return plainAdapter{a}
	}
	return a
}

// plainAdapter exposes only the transport methods.
type plainAdapter struct {
	a *Adapter
}

func (p plainAdapter) SendActivities(ctx context.Context, tc *turn.Context, acts []*activity.Activity) ([]activity.ResourceResponse, error) {
	return p.a.SendActivities(ctx, tc, acts)
}

func (p plainAdapter) UpdateActivity(ctx context.Context, tc *turn.Context, act *activity.Activity) error {
	return p.a.UpdateActivity(ctx, tc, act)
}

func (p plainAdapter) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	return p.a.DeleteActivity(ctx, tc, ref)
}

// SendActivities records outbound activities.
func (a *Adapter) SendActivities(ctx context.Context, tc *turn.Context, acts []*activity.Activity) ([]activity.ResourceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	responses := make([]activity.ResourceResponse, 0, len(acts))
	for _, act := range acts {
		a.seq++
		sent := act.Clone()
		if sent.ID == "" {
			sent.ID = strconv.Itoa(a.seq)
		}
		a.replies = append(a.replies, sent)
		responses = append(responses, activity.ResourceResponse{ID: sent.ID})
	}
	return responses, nil
}

// UpdateActivity records the update.
func (a *Adapter) UpdateActivity(ctx context.Context, tc *turn.Context, act *activity.Activity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, act.Clone())
	return nil
}

// DeleteActivity records the deletion.
func (a *Adapter) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes = append(a.deletes, ref)
	return nil
}

// Replies returns every activity sent so far.
func (a *Adapter) Replies() []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*activity.Activity(nil), a.replies...)
}

// NextReply removes and returns the oldest unread reply, or nil.
func (a *Adapter) NextReply() *activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.replies) == 0 {
		return nil
	}
	next := a.replies[0]
	a.replies = a.replies[1:]
	return next
}

// Updates returns every recorded update.
func (a *Adapter) Updates() []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*activity.Activity(nil), a.updates...)
}

// Deletes returns every recorded deletion.
func (a *Adapter) Deletes() []activity.ConversationReference {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activity.ConversationReference(nil), a.deletes...)
}

// AddUserToken caches token for a user. With a magic code the token only
// becomes available once GetUserToken is called with that code.
func (a *Adapter) AddUserToken(connection, channelID, userID, token, magicCode string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := tokenKey{channel: channelID, user: userID, connection: connection}
	if magicCode == "" {
		a.tokens[key] = token
		return
	}
	a.magic[magicKey{tokenKey: key, code: magicCode}] = token
}

// SignOuts returns the connections signed out so far.
func (a *Adapter) SignOuts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.signOuts...)
}

// GetUserToken returns the cached token, redeeming magicCode first.
func (a *Adapter) GetUserToken(ctx context.Context, tc *turn.Context, connectionName, magicCode string) (*turn.TokenResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := userKey(tc, connectionName)
	if magicCode != "" {
		mk := magicKey{tokenKey: key, code: magicCode}
		token, ok := a.magic[mk]
		if !ok {
			return nil, nil
		}
		delete(a.magic, mk)
		a.tokens[key] = token
	}

	token, ok := a.tokens[key]
	if !ok {
		return nil, nil
	}
	return &turn.TokenResponse{ConnectionName: connectionName, Token: token}, nil
}

// SignOutUser drops the cached token.
func (a *Adapter) SignOutUser(ctx context.Context, tc *turn.Context, connectionName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, userKey(tc, connectionName))
	a.signOuts = append(a.signOuts, connectionName)
	return nil
}

// GetSignInLink returns a fake sign-in URL.
func (a *Adapter) GetSignInLink(ctx context.Context, tc *turn.Context, connectionName string) (string, error) {
	return fmt.Sprintf("https://signin.test/%s?user=%s", connectionName, tc.Activity().FromID()), nil
}

func userKey(tc *turn.Context, connection string) tokenKey {
	a := tc.Activity()
	return tokenKey{channel: a.ChannelID, user: a.FromID(), connection: connection}
}
