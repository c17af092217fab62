// ABOUTME: Tests for the OAuth prompt
// ABOUTME: Covers magic codes, pushed tokens, card synthesis and unsupported adapters

package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter/adaptertest"
	"github.com/2389/coven-bot/internal/dialog"
	"github.com/2389/coven-bot/internal/turn"
)

func newOAuthHarness(t *testing.T, opts *Options) *harness {
	set := dialog.NewSet().MustAdd("login", AsDialog(NewOAuth(OAuthSettings{ConnectionName: "github"}, nil)))
	return newHarness(t, set, promptWith("login", opts))
}

func TestOAuthPrompt_MagicCode(t *testing.T) {
	h := newOAuthHarness(t, nil)
	h.adapter.AddUserToken("github", adaptertest.ChannelID, "user1", "tok-123", "482913")

	replies := h.send("hi")
	require.Len(t, replies, 1)
	require.True(t, HasSigninCard(replies[0]))

	card, ok := replies[0].Attachments[0].Content.(SigninCard)
	require.True(t, ok)
	require.Len(t, card.Buttons, 1)
	assert.Equal(t, "signin", card.Buttons[0].Type)
	assert.Contains(t, card.Buttons[0].Value, "https://signin.test/github")

	h.send("Your code is 482913")
	result, done := h.ended()
	require.True(t, done)
	token, ok := result.(*turn.TokenResponse)
	require.True(t, ok)
	assert.Equal(t, "tok-123", token.Token)
}

func TestOAuthPrompt_WrongCodeKeepsWaiting(t *testing.T) {
	h := newOAuthHarness(t, nil)
	h.adapter.AddUserToken("github", adaptertest.ChannelID, "user1", "tok-123", "482913")

	h.send("hi")
	h.send("111111")
	_, done := h.ended()
	assert.False(t, done)

	h.send("482913")
	result, done := h.ended()
	require.True(t, done)
	assert.Equal(t, "tok-123", result.(*turn.TokenResponse).Token)
}

func TestOAuthPrompt_TokenEvent(t *testing.T) {
	h := newOAuthHarness(t, nil)
	h.send("hi")

	h.sendActivity(activity.NewEvent(TokenResponseEvent, map[string]any{
		"connectionName": "github",
		"token":          "pushed-token",
	}))
	result, done := h.ended()
	require.True(t, done)
	assert.Equal(t, "pushed-token", result.(*turn.TokenResponse).Token)
}

func TestOAuthPrompt_Validator(t *testing.T) {
	reject := func(ctx context.Context, tc *turn.Context, tok *turn.TokenResponse) (*turn.TokenResponse, bool, error) {
		return tok, tok.Token != "bad", nil
	}
	set := dialog.NewSet().MustAdd("login", AsDialog(NewOAuth(OAuthSettings{ConnectionName: "github"}, reject)))
	h := newHarness(t, set, promptWith("login", nil))

	h.send("hi")
	h.sendActivity(activity.NewEvent(TokenResponseEvent, &turn.TokenResponse{Token: "bad"}))
	_, done := h.ended()
	assert.False(t, done)
}

func TestOAuthPrompt_UnsupportedAdapter(t *testing.T) {
	h := newOAuthHarness(t, nil)
	h.adapter.NoTokens = true

	err := h.adapter.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, turn.ErrUnsupportedAdapter)
	assert.Empty(t, h.adapter.Replies())
}

func TestOAuthPrompt_MalformedPrompt(t *testing.T) {
	h := newOAuthHarness(t, &Options{Prompt: activity.NewMessage("please log in")})

	err := h.adapter.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrMalformedPrompt)
	assert.Empty(t, h.adapter.Replies(), "nothing is sent for a malformed prompt")
}

func TestOAuthPrompt_SuppliedCard(t *testing.T) {
	custom := activity.NewMessage("Log in to GitHub")
	custom.Attachments = []activity.Attachment{NewSigninCard("Log in", "GitHub", "https://example.com/login")}
	h := newOAuthHarness(t, &Options{Prompt: custom})

	replies := h.send("hi")
	require.Len(t, replies, 1)
	assert.Equal(t, "Log in to GitHub", replies[0].Text)
}

func TestOAuth_GetUserTokenAndSignOut(t *testing.T) {
	p := NewOAuth(OAuthSettings{ConnectionName: "github"}, nil)
	var before, after *turn.TokenResponse
	a := adaptertest.New(func(ctx context.Context, tc *turn.Context) error {
		var err error
		if before, err = p.GetUserToken(ctx, tc); err != nil {
			return err
		}
		if err := p.SignOutUser(ctx, tc); err != nil {
			return err
		}
		after, err = p.GetUserToken(ctx, tc)
		return err
	})
	a.AddUserToken("github", adaptertest.ChannelID, "user1", "cached", "")
	require.NoError(t, a.Send(context.Background(), "hi"))

	require.NotNil(t, before)
	assert.Equal(t, "cached", before.Token)
	assert.Nil(t, after)
	assert.Equal(t, []string{"github"}, a.SignOuts())
	assert.Empty(t, a.Replies(), "token checks send nothing")

	unsupported := adaptertest.New(func(ctx context.Context, tc *turn.Context) error {
		_, err := p.GetUserToken(ctx, tc)
		assert.ErrorIs(t, err, turn.ErrUnsupportedAdapter)
		assert.ErrorIs(t, p.SignOutUser(ctx, tc), turn.ErrUnsupportedAdapter)
		return nil
	})
	unsupported.NoTokens = true
	require.NoError(t, unsupported.Send(context.Background(), "hi"))
}

func TestMagicCode(t *testing.T) {
	for text, want := range map[string]string{
		"Your code is 482913": "482913",
		"482913":              "482913",
		"code:000001.":        "000001",
	} {
		code, ok := magicCode(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, code, text)
	}

	for _, text := range []string{"12345", "1234567", "111111 or 222222", "no code"} {
		_, ok := magicCode(text)
		assert.False(t, ok, text)
	}
}
