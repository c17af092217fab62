// ABOUTME: Composes a transport with a separate user token service
// ABOUTME: The result satisfies turn.UserTokenProvider so prompts can look it up

package adapter

import "github.com/2389/coven-bot/internal/turn"

type tokenAdapter struct {
	turn.Adapter
	turn.UserTokenProvider
}

// WithTokens returns an adapter that delivers through a and fetches user
// tokens through p. A nil p returns a unchanged.
func WithTokens(a turn.Adapter, p turn.UserTokenProvider) turn.Adapter {
	if p == nil {
		return a
	}
	return tokenAdapter{Adapter: a, UserTokenProvider: p}
}
