// ABOUTME: OAuth sign-in prompt recognizing pushed tokens and six-digit magic codes
// ABOUTME: Requires an adapter implementing turn.UserTokenProvider

package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/turn"
)

// TokenResponseEvent names the event a channel sends when it pushes a token.
const TokenResponseEvent = "tokens/response"

// DefaultOAuthTimeout bounds how long the prompt waits for a sign-in.
const DefaultOAuthTimeout = 15 * time.Minute

var digitRuns = regexp.MustCompile(`\d+`)

// OAuthSettings configures an OAuth prompt.
type OAuthSettings struct {
	ConnectionName string
	// Title labels the sign-in button.
	Title string
	// Text is shown on the synthesized sign-in card.
	Text string
	// Timeout ends the prompt with a nil result; 0 means DefaultOAuthTimeout.
	Timeout time.Duration
}

// OAuth prompts the user to sign in and recognizes the resulting token.
type OAuth struct {
	settings  OAuthSettings
	validator Validator[*turn.TokenResponse]
}

// NewOAuth creates an OAuth prompt. validator may be nil.
func NewOAuth(settings OAuthSettings, validator Validator[*turn.TokenResponse]) *OAuth {
	if settings.Title == "" {
		settings.Title = "Sign in"
	}
	if settings.Text == "" {
		settings.Text = "Please sign in to continue."
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultOAuthTimeout
	}
	return &OAuth{settings: settings, validator: validator}
}

// Timeout implements Timeouter.
func (p *OAuth) Timeout() time.Duration {
	return p.settings.Timeout
}

// Prompt sends content, or a synthesized sign-in card when content is nil.
// Supplied content must already carry a sign-in card.
func (p *OAuth) Prompt(ctx context.Context, tc *turn.Context, content *activity.Activity, speak string) error {
	provider, err := turn.TokenProvider(tc)
	if err != nil {
		return err
	}

	if content != nil {
		if !HasSigninCard(content) {
			return fmt.Errorf("%w: prompt for connection %q has no sign-in card", ErrMalformedPrompt, p.settings.ConnectionName)
		}
		return send(ctx, tc, content, speak)
	}

	link, err := provider.GetSignInLink(ctx, tc, p.settings.ConnectionName)
	if err != nil {
		return fmt.Errorf("getting sign-in link: %w", err)
	}
	msg := activity.NewMessage(p.settings.Text + "\n" + link)
	msg.Attachments = []activity.Attachment{NewSigninCard(p.settings.Text, p.settings.Title, link)}
	return send(ctx, tc, msg, speak)
}

// Recognize accepts a pushed token event or a message holding exactly one
// six-digit code, which is exchanged for a token.
func (p *OAuth) Recognize(ctx context.Context, tc *turn.Context) (*turn.TokenResponse, bool, error) {
	a := tc.Activity()

	if a.IsEvent(TokenResponseEvent) {
		token, err := tokenFromValue(a.Value)
		if err != nil {
			tc.Logger().Debug("ignoring malformed token event", "error", err)
			return nil, false, nil
		}
		return validate(ctx, tc, p.validator, token, token != nil)
	}

	if !a.IsMessage() {
		return nil, false, nil
	}
	code, ok := magicCode(a.Text)
	if !ok {
		return nil, false, nil
	}

	provider, err := turn.TokenProvider(tc)
	if err != nil {
		return nil, false, err
	}
	token, err := provider.GetUserToken(ctx, tc, p.settings.ConnectionName, code)
	if err != nil {
		return nil, false, fmt.Errorf("exchanging magic code: %w", err)
	}
	return validate(ctx, tc, p.validator, token, token != nil)
}

// GetUserToken returns the cached token without sending anything. It
// returns nil when the user is not signed in.
func (p *OAuth) GetUserToken(ctx context.Context, tc *turn.Context) (*turn.TokenResponse, error) {
	provider, err := turn.TokenProvider(tc)
	if err != nil {
		return nil, err
	}
	return provider.GetUserToken(ctx, tc, p.settings.ConnectionName, "")
}

// SignOutUser clears the user's cached token.
func (p *OAuth) SignOutUser(ctx context.Context, tc *turn.Context) error {
	provider, err := turn.TokenProvider(tc)
	if err != nil {
		return err
	}
	return provider.SignOutUser(ctx, tc, p.settings.ConnectionName)
}

// magicCode returns the only six-digit run in text.
func magicCode(text string) (string, bool) {
	var code string
	count := 0
	for _, run := range digitRuns.FindAllString(text, -1) {
		if len(run) == 6 {
			code = run
			count++
		}
	}
	return code, count == 1
}

// tokenFromValue reads the event payload as a token response.
func tokenFromValue(v any) (*turn.TokenResponse, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *turn.TokenResponse:
		return t, nil
	case turn.TokenResponse:
		return &t, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var token turn.TokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	if token.Token == "" {
		return nil, nil
	}
	return &token, nil
}
