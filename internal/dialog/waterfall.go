// ABOUTME: Waterfall dialog running an ordered list of steps across turns
// ABOUTME: Each step receives the previous step's or child dialog's result

package dialog

import (
	"context"
	"fmt"
)

const (
	stepKey    = "step"
	valuesKey  = "values"
	optionsKey = "options"
)

// Step is one stage of a Waterfall. A step typically begins a prompt and
// returns; the prompt's result arrives as the next step's Result. A step
// that neither begins a child nor ends leaves the waterfall waiting, and the
// next message text becomes the next step's Result.
type Step func(ctx context.Context, sc *StepContext) error

// StepContext is passed to each waterfall step.
type StepContext struct {
	*Context

	// Index of the running step.
	Index int
	// Options passed to the waterfall's Begin.
	Options any
	// Result of the previous step, child dialog or message.
	Result any
	// Values persists across steps for the life of the frame.
	Values map[string]any

	waterfall *Waterfall
	frame     *Instance
}

// Next skips to the following step without waiting for a turn.
func (sc *StepContext) Next(ctx context.Context, result any) error {
	return sc.waterfall.runStep(ctx, sc.Context, sc.frame, sc.Index+1, result)
}

// Waterfall is a Dialog made of sequential steps.
type Waterfall struct {
	steps []Step
}

// NewWaterfall creates a waterfall from steps.
func NewWaterfall(steps ...Step) *Waterfall {
	return &Waterfall{steps: steps}
}

// AddStep appends a step and returns w.
func (w *Waterfall) AddStep(step Step) *Waterfall {
	w.steps = append(w.steps, step)
	return w
}

// Begin runs the first step with args as both Options and Result.
func (w *Waterfall) Begin(ctx context.Context, dc *Context, args any) error {
	frame := dc.ActiveDialog()
	frame.State[optionsKey] = args
	frame.State[valuesKey] = make(map[string]any)
	return w.runStep(ctx, dc, frame, 0, args)
}

// Continue advances on message activities and ignores anything else.
func (w *Waterfall) Continue(ctx context.Context, dc *Context) error {
	a := dc.Turn().Activity()
	if !a.IsMessage() {
		return nil
	}
	frame := dc.ActiveDialog()
	index, _ := Int(frame.State, stepKey)
	return w.runStep(ctx, dc, frame, index+1, a.Text)
}

// Resume advances with a child dialog's result.
func (w *Waterfall) Resume(ctx context.Context, dc *Context, result any) error {
	frame := dc.ActiveDialog()
	index, _ := Int(frame.State, stepKey)
	return w.runStep(ctx, dc, frame, index+1, result)
}

func (w *Waterfall) runStep(ctx context.Context, dc *Context, frame *Instance, index int, result any) error {
	if index >= len(w.steps) {
		_, err := dc.End(ctx, result)
		return err
	}

	frame.State[stepKey] = index
	sc := &StepContext{
		Context:   dc,
		Index:     index,
		Options:   frame.State[optionsKey],
		Result:    result,
		Values:    Map(frame.State, valuesKey),
		waterfall: w,
		frame:     frame,
	}
	if err := w.steps[index](ctx, sc); err != nil {
		return fmt.Errorf("waterfall step %d: %w", index, err)
	}
	return nil
}
