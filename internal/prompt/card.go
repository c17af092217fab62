// ABOUTME: Sign-in card attachment used by the OAuth prompt
// ABOUTME: Channels that can't render cards fall back to the text and button link

package prompt

import "github.com/2389/coven-bot/internal/activity"

// Card content types that carry a sign-in affordance.
const (
	SigninCardContentType = "application/vnd.microsoft.card.signin"
	OAuthCardContentType  = "application/vnd.microsoft.card.oauth"
)

// CardAction is a button on a card.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SigninCard asks the user to sign in through a link.
type SigninCard struct {
	Text    string       `json:"text"`
	Buttons []CardAction `json:"buttons"`
}

// NewSigninCard returns a sign-in card attachment pointing at link.
func NewSigninCard(text, title, link string) activity.Attachment {
	return activity.Attachment{
		ContentType: SigninCardContentType,
		Content: SigninCard{
			Text:    text,
			Buttons: []CardAction{{Type: "signin", Title: title, Value: link}},
		},
	}
}

// HasSigninCard reports whether a carries a sign-in or OAuth card.
func HasSigninCard(a *activity.Activity) bool {
	if a == nil {
		return false
	}
	for _, att := range a.Attachments {
		if att.ContentType == SigninCardContentType || att.ContentType == OAuthCardContentType {
			return true
		}
	}
	return false
}
