// ABOUTME: Middleware saving state scopes after each turn
// ABOUTME: Save failures, including concurrency conflicts, fail the turn

package state

import (
	"context"
	"errors"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/turn"
)

// AutoSave saves every scope after the rest of the turn succeeds.
func AutoSave(states ...*State) adapter.Middleware {
	return adapter.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
		if err := next(ctx); err != nil {
			return err
		}
		var errs []error
		for _, s := range states {
			if err := s.SaveChanges(ctx, tc, false); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
