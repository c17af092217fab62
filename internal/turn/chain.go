// ABOUTME: Ordered interceptor composition with next continuations
// ABOUTME: Shared by the send, update and delete pipelines of the turn context

package turn

import "context"

// chain runs n interceptors in order. call(i, ctx, next) invokes the i-th
// interceptor; next resumes the chain at i+1 and runs last after the final
// interceptor. This is plain closure composition: each interceptor that
// calls next adds a stack frame, since it may run code after next returns.
// Continuations are built lazily so an interceptor that never calls next
// never materializes the rest of the chain.
func chain[T any](
	ctx context.Context,
	n int,
	call func(i int, ctx context.Context, next func(context.Context) (T, error)) (T, error),
	last func(context.Context) (T, error),
) (T, error) {
	var step func(i int) func(context.Context) (T, error)
	step = func(i int) func(context.Context) (T, error) {
		if i >= n {
			return last
		}
		return func(ctx context.Context) (T, error) {
			return call(i, ctx, step(i+1))
		}
	}
	return step(0)(ctx)
}

// discard adapts a value-returning continuation to an error-only one.
func discard[T any](next func(context.Context) (T, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := next(ctx)
		return err
	}
}
