// Package adapter hosts the turn pipeline shared by every channel transport.
//
// A transport converts platform events into activities and hands them to
// Base.ProcessActivity, which builds a turn.Context, runs the registered
// middleware in order and finally calls the bot's Handler. Turns for the same
// conversation are serialized; turns for different conversations run in
// parallel.
//
// Middleware implements the same next-continuation pattern as the turn
// interceptors:
//
//	base.Use(adapter.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
//		start := time.Now()
//		err := next(ctx)
//		tc.Logger().Info("turn finished", "duration", time.Since(start))
//		return err
//	}))
//
// Transports that cannot fetch OAuth tokens themselves are combined with a
// token service through WithTokens so prompts can check for the capability.
package adapter
