// ABOUTME: Tests for the waterfall dialog
// ABOUTME: Runs steps across turns with the stack persisted as JSON between them

package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/turn"
)

// persistedTurn loads the stack from JSON, runs fn, and saves it back.
func persistedTurn(t *testing.T, set *Set, saved *[]byte, text string, fn func(ctx context.Context, dc *Context) (Result, error)) (Result, []*activity.Activity) {
	t.Helper()
	var res Result
	a := testTurn(t, text, func(ctx context.Context, tc *turn.Context) error {
		var stack Stack
		if len(*saved) > 0 {
			require.NoError(t, json.Unmarshal(*saved, &stack))
		}
		dc := set.CreateContext(tc, &stack)

		var err error
		res, err = fn(ctx, dc)
		require.NoError(t, err)

		*saved, err = json.Marshal(stack)
		require.NoError(t, err)
		return nil
	})
	return res, a.Replies()
}

func continueOrBegin(id string) func(ctx context.Context, dc *Context) (Result, error) {
	return func(ctx context.Context, dc *Context) (Result, error) {
		res, err := dc.Continue(ctx)
		if err != nil || res.Active {
			return res, err
		}
		return dc.Begin(ctx, id, nil)
	}
}

func TestWaterfall_AcrossTurns(t *testing.T) {
	set := NewSet().MustAdd("greet", NewWaterfall(
		func(ctx context.Context, sc *StepContext) error {
			_, err := sc.Turn().SendText(ctx, "What's your name?")
			return err
		},
		func(ctx context.Context, sc *StepContext) error {
			sc.Values["name"] = sc.Result
			_, err := sc.Turn().SendText(ctx, fmt.Sprintf("Hi %v! How old are you?", sc.Result))
			return err
		},
		func(ctx context.Context, sc *StepContext) error {
			_, err := sc.End(ctx, fmt.Sprintf("%v is %v", sc.Values["name"], sc.Result))
			return err
		},
	))

	var saved []byte
	res, replies := persistedTurn(t, set, &saved, "hello", continueOrBegin("greet"))
	assert.True(t, res.Active)
	require.Len(t, replies, 1)
	assert.Equal(t, "What's your name?", replies[0].Text)

	res, replies = persistedTurn(t, set, &saved, "Ada", continueOrBegin("greet"))
	assert.True(t, res.Active)
	require.Len(t, replies, 1)
	assert.Equal(t, "Hi Ada! How old are you?", replies[0].Text)

	res, _ = persistedTurn(t, set, &saved, "36", continueOrBegin("greet"))
	assert.Equal(t, Result{Active: false, Result: "Ada is 36"}, res)
	assert.JSONEq(t, `[]`, string(saved))
}

func TestWaterfall_ChildResultFeedsNextStep(t *testing.T) {
	set := NewSet().
		MustAdd("child", waitDialog{}).
		MustAdd("parent", NewWaterfall(
			func(ctx context.Context, sc *StepContext) error {
				_, err := sc.Begin(ctx, "child", nil)
				return err
			},
			func(ctx context.Context, sc *StepContext) error {
				_, err := sc.End(ctx, fmt.Sprintf("child said %v", sc.Result))
				return err
			},
		))

	var saved []byte
	res, _ := persistedTurn(t, set, &saved, "start", continueOrBegin("parent"))
	assert.True(t, res.Active)

	res, _ = persistedTurn(t, set, &saved, "not yet", continueOrBegin("parent"))
	assert.True(t, res.Active)

	res, _ = persistedTurn(t, set, &saved, "done", continueOrBegin("parent"))
	assert.Equal(t, Result{Active: false, Result: "child said done"}, res)
}

func TestWaterfall_NextSkipsAhead(t *testing.T) {
	var seen []int
	set := NewSet().MustAdd("skip", NewWaterfall(
		func(ctx context.Context, sc *StepContext) error {
			seen = append(seen, sc.Index)
			return sc.Next(ctx, "skipped")
		},
		func(ctx context.Context, sc *StepContext) error {
			seen = append(seen, sc.Index)
			assert.Equal(t, "skipped", sc.Result)
			return sc.Next(ctx, sc.Options)
		},
	))

	var saved []byte
	res, _ := persistedTurn(t, set, &saved, "go", func(ctx context.Context, dc *Context) (Result, error) {
		return dc.Begin(ctx, "skip", "opts")
	})
	assert.Equal(t, []int{0, 1}, seen)
	assert.Equal(t, Result{Active: false, Result: "opts"}, res)
}

func TestWaterfall_IgnoresNonMessages(t *testing.T) {
	calls := 0
	set := NewSet().MustAdd("w", NewWaterfall(
		func(ctx context.Context, sc *StepContext) error { return nil },
		func(ctx context.Context, sc *StepContext) error {
			calls++
			return nil
		},
	))
	stack := Stack{}

	withContext(t, set, &stack, "start", func(ctx context.Context, dc *Context) {
		_, err := dc.Begin(ctx, "w", nil)
		require.NoError(t, err)
	})

	a := testTurnActivity(t, activity.NewEvent("ping", nil), func(ctx context.Context, tc *turn.Context) error {
		_, err := set.CreateContext(tc, &stack).Continue(ctx)
		return err
	})
	assert.Empty(t, a.Replies())
	assert.Equal(t, 0, calls)
}
