// ABOUTME: Tests for the base adapter pipeline
// ABOUTME: Covers middleware ordering, short-circuiting, turn ordering and proactive turns

package adapter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/adapter/adaptertest"
	"github.com/2389/coven-bot/internal/turn"
)

func recordMiddleware(log *[]string, name string) adapter.Middleware {
	return adapter.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
		*log = append(*log, name+"-before")
		err := next(ctx)
		*log = append(*log, name+"-after")
		return err
	})
}

func TestBase_MiddlewareOrder(t *testing.T) {
	var log []string
	a := adaptertest.New(func(ctx context.Context, tc *turn.Context) error {
		log = append(log, "handler")
		return nil
	})
	a.Use(recordMiddleware(&log, "m1"), recordMiddleware(&log, "m2"))

	require.NoError(t, a.Send(context.Background(), "hi"))
	assert.Equal(t, []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}, log)
}

func TestBase_MiddlewareShortCircuit(t *testing.T) {
	called := false
	a := adaptertest.New(func(ctx context.Context, tc *turn.Context) error {
		called = true
		return nil
	})
	a.Use(adapter.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next func(context.Context) error) error {
		_, err := tc.SendText(ctx, "blocked")
		return err
	}))

	require.NoError(t, a.Send(context.Background(), "hi"))
	assert.False(t, called)
	reply := a.NextReply()
	require.NotNil(t, reply)
	assert.Equal(t, "blocked", reply.Text)
}

func TestBase_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	a := adaptertest.New(func(ctx context.Context, tc *turn.Context) error {
		return boom
	})
	err := a.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)
}

func TestBase_RepliesAddressedToSender(t *testing.T) {
	a := adaptertest.New(func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendText(ctx, "echo: "+tc.Activity().Text)
		return err
	})

	require.NoError(t, a.Send(context.Background(), "hello"))
	reply := a.NextReply()
	require.NotNil(t, reply)
	assert.Equal(t, "echo: hello", reply.Text)
	assert.Equal(t, "bot", reply.From.ID)
	assert.Equal(t, "user1", reply.Recipient.ID)
	assert.Equal(t, "convo1", reply.Conversation.ID)
	assert.NotEmpty(t, reply.ReplyToID)
}

func TestBase_SerializesSameConversation(t *testing.T) {
	var active, maxActive atomic.Int32
	handler := func(ctx context.Context, tc *turn.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}

	base := adapter.NewBase(nil)
	a := adaptertest.New(handler)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			act := activity.ApplyReference(activity.NewMessage("hi"), a.Reference, true)
			assert.NoError(t, base.ProcessActivity(context.Background(), a, act, handler))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestBase_ParallelAcrossConversations(t *testing.T) {
	base := adapter.NewBase(nil)
	a := adaptertest.New(nil)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	handler := func(ctx context.Context, tc *turn.Context) error {
		started.Done()
		<-release
		return nil
	}

	var done sync.WaitGroup
	for _, conv := range []string{"c1", "c2"} {
		ref := a.Reference
		ref.Conversation = &activity.ConversationAccount{ID: conv}
		act := activity.ApplyReference(activity.NewMessage("hi"), ref, true)
		done.Add(1)
		go func() {
			defer done.Done()
			assert.NoError(t, base.ProcessActivity(context.Background(), a, act, handler))
		}()
	}

	// Both handlers must be running at once or this blocks forever
	started.Wait()
	close(release)
	done.Wait()
}

func TestBase_DispatchKeepsArrivalOrder(t *testing.T) {
	base := adapter.NewBase(nil)
	a := adaptertest.New(nil)

	var mu sync.Mutex
	var order []string
	handler := func(ctx context.Context, tc *turn.Context) error {
		mu.Lock()
		order = append(order, tc.Activity().Text)
		mu.Unlock()
		return nil
	}

	key := adapter.ConversationKey(a.Reference.ChannelID, a.Reference.Conversation.ID)
	for i, text := range []string{"first", "second", "third"} {
		act := activity.ApplyReference(activity.NewMessage(text), a.Reference, true)
		base.Dispatch(key, func() {
			// The earliest job is the slowest to reach the turn
			if i == 0 {
				time.Sleep(50 * time.Millisecond)
			}
			assert.NoError(t, base.ProcessActivity(context.Background(), a, act, handler))
		})
	}
	base.Wait()

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBase_DispatchParallelAcrossConversations(t *testing.T) {
	base := adapter.NewBase(nil)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	for _, key := range []string{"test/c1", "test/c2"} {
		base.Dispatch(key, func() {
			started.Done()
			<-release
		})
	}

	// Both jobs must be running at once or this blocks forever
	started.Wait()
	close(release)
	base.Wait()
}

func TestBase_ContinueConversation(t *testing.T) {
	a := adaptertest.New(nil)
	var seen *activity.Activity
	err := a.Continue(context.Background(), func(ctx context.Context, tc *turn.Context) error {
		seen = tc.Activity()
		_, err := tc.SendText(ctx, "reminder!")
		return err
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.True(t, seen.IsEvent(adapter.ContinueConversationEvent))
	assert.Equal(t, "user1", seen.From.ID)

	reply := a.NextReply()
	require.NotNil(t, reply)
	assert.Equal(t, "user1", reply.Recipient.ID)
}

type sendOnly struct{}

func (sendOnly) SendActivities(ctx context.Context, tc *turn.Context, acts []*activity.Activity) ([]activity.ResourceResponse, error) {
	return make([]activity.ResourceResponse, len(acts)), nil
}

func (sendOnly) UpdateActivity(ctx context.Context, tc *turn.Context, a *activity.Activity) error {
	return nil
}

func (sendOnly) DeleteActivity(ctx context.Context, tc *turn.Context, ref activity.ConversationReference) error {
	return nil
}

func TestWithTokens(t *testing.T) {
	base := adapter.NewBase(nil)
	tokens := adaptertest.New(nil)
	act := activity.ApplyReference(activity.NewMessage("hi"), tokens.Reference, true)

	err := base.ProcessActivity(context.Background(), sendOnly{}, act, func(ctx context.Context, tc *turn.Context) error {
		_, err := turn.TokenProvider(tc)
		assert.ErrorIs(t, err, turn.ErrUnsupportedAdapter)
		return nil
	})
	require.NoError(t, err)

	err = base.ProcessActivity(context.Background(), adapter.WithTokens(sendOnly{}, tokens), act, func(ctx context.Context, tc *turn.Context) error {
		p, err := turn.TokenProvider(tc)
		require.NoError(t, err)
		link, err := p.GetSignInLink(ctx, tc, "github")
		require.NoError(t, err)
		assert.Contains(t, link, "github")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, sendOnly{}, adapter.WithTokens(sendOnly{}, nil))
}
