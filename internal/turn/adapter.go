// ABOUTME: Transport collaborator interfaces consumed by the turn context
// ABOUTME: Adapter delivers activities; UserTokenProvider is an optional sign-in capability

package turn

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-bot/internal/activity"
)

// ErrUnsupportedAdapter is returned when the adapter lacks a required capability.
var ErrUnsupportedAdapter = errors.New("adapter does not support this operation")

// ErrInvalidStateTransition is returned for illegal turn state mutations.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// Adapter is the channel transport that delivers outbound activities.
type Adapter interface {
	SendActivities(ctx context.Context, tc *Context, activities []*activity.Activity) ([]activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, tc *Context, a *activity.Activity) error
	DeleteActivity(ctx context.Context, tc *Context, ref activity.ConversationReference) error
}

// TokenResponse is a user token cached by the token service.
type TokenResponse struct {
	ConnectionName string    `json:"connectionName"`
	Token          string    `json:"token"`
	Expiration     time.Time `json:"expiration,omitzero"`
}

// UserTokenProvider is implemented by adapters that can retrieve OAuth tokens
// on behalf of the user.
type UserTokenProvider interface {
	// GetUserToken returns the cached token for the turn's user, exchanging
	// magicCode first when it is non-empty. It returns nil, nil when no token
	// is available.
	GetUserToken(ctx context.Context, tc *Context, connectionName, magicCode string) (*TokenResponse, error)
	SignOutUser(ctx context.Context, tc *Context, connectionName string) error
	GetSignInLink(ctx context.Context, tc *Context, connectionName string) (string, error)
}

// TokenProvider returns the turn adapter's token capability.
func TokenProvider(tc *Context) (UserTokenProvider, error) {
	if p, ok := tc.Adapter().(UserTokenProvider); ok {
		return p, nil
	}
	return nil, ErrUnsupportedAdapter
}
