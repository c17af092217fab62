// ABOUTME: Test harness running prompt dialogs across turns
// ABOUTME: Persists the dialog stack as JSON between turns like the bot does

package prompt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/adapter/adaptertest"
	"github.com/2389/coven-bot/internal/dialog"
	"github.com/2389/coven-bot/internal/turn"
)

type harness struct {
	t       *testing.T
	adapter *adaptertest.Adapter
	set     *dialog.Set
	saved   []byte
	begun   bool
	begin   func(ctx context.Context, dc *dialog.Context) (dialog.Result, error)
	last    dialog.Result
}

// newHarness begins the dialog on the first turn and continues it after.
func newHarness(t *testing.T, set *dialog.Set, begin func(ctx context.Context, dc *dialog.Context) (dialog.Result, error)) *harness {
	h := &harness{t: t, set: set, begin: begin}
	h.adapter = adaptertest.New(h.onTurn)
	return h
}

func (h *harness) onTurn(ctx context.Context, tc *turn.Context) error {
	var stack dialog.Stack
	if len(h.saved) > 0 {
		if err := json.Unmarshal(h.saved, &stack); err != nil {
			return err
		}
	}
	dc := h.set.CreateContext(tc, &stack)

	res, err := dc.Continue(ctx)
	if err != nil {
		return err
	}
	if !h.begun {
		h.begun = true
		res, err = h.begin(ctx, dc)
		if err != nil {
			return err
		}
	}
	h.last = res

	h.saved, err = json.Marshal(stack)
	return err
}

// send runs a message turn and returns the replies it produced.
func (h *harness) send(text string) []*activity.Activity {
	h.t.Helper()
	return h.sendActivity(activity.NewMessage(text))
}

func (h *harness) sendActivity(a *activity.Activity) []*activity.Activity {
	h.t.Helper()
	before := len(h.adapter.Replies())
	require.NoError(h.t, h.adapter.SendActivity(context.Background(), a))
	return h.adapter.Replies()[before:]
}

// ended reports whether the dialog finished and returns its result.
func (h *harness) ended() (any, bool) {
	return h.last.Result, h.begun && !h.last.Active
}

func promptWith(id string, opts *Options) func(ctx context.Context, dc *dialog.Context) (dialog.Result, error) {
	return func(ctx context.Context, dc *dialog.Context) (dialog.Result, error) {
		return dc.Prompt(ctx, id, nil, nil, opts)
	}
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func jsonMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
