// Package turn provides the per-turn context that wraps one inbound activity.
//
// # Overview
//
// A Context is created for every inbound activity and discarded when the turn
// ends. It carries:
//
//   - the inbound activity and its conversation reference
//   - the channel Adapter used to deliver outbound activities
//   - a responded flag (false until the first successful send, never reset)
//   - Services: a turn-scoped key/value cache shared by middleware, state and dialogs
//   - three ordered interceptor lists for send, update and delete
//
// # Interceptors
//
// Interceptors wrap the transport call. They run in registration order and
// must call next to continue; skipping next short-circuits the chain and the
// interceptor's own return value is used instead of the transport's:
//
//	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, acts []*activity.Activity,
//		next func(context.Context) ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
//		log.Println("before")
//		resp, err := next(ctx)
//		log.Println("after")
//		return resp, err
//	})
//
// With H1 and H2 registered, a send observes H1-before, H2-before, transport,
// H2-after, H1-after. An interceptor error aborts the rest of the chain and
// the triggering call; nothing is retried.
//
// # Optional capabilities
//
// Adapters may implement UserTokenProvider. Callers check for it with
// TokenProvider, which returns ErrUnsupportedAdapter when the capability is
// missing.
package turn
