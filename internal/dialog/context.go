// ABOUTME: Dialog context driving the per-conversation stack state machine
// ABOUTME: Implements begin, continue, end with resume propagation, end-all and replace

package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-bot/internal/activity"
	"github.com/2389/coven-bot/internal/recognizer"
	"github.com/2389/coven-bot/internal/turn"
)

// PromptOptions configures a prompt dialog. Context.Prompt builds one and
// passes it to the prompt's Begin as args.
type PromptOptions struct {
	Prompt      *activity.Activity  `json:"prompt,omitempty"`
	RetryPrompt *activity.Activity  `json:"retryPrompt,omitempty"`
	Speak       string              `json:"speak,omitempty"`
	RetrySpeak  string              `json:"retrySpeak,omitempty"`
	Choices     []recognizer.Choice `json:"choices,omitempty"`
}

// Context is the dialog stack of one conversation bound to one turn.
type Context struct {
	set    *Set
	turn   *turn.Context
	stack  *Stack
	logger *slog.Logger

	// final is the result of the End that emptied the stack.
	final any
}

// Turn returns the bound turn context.
func (dc *Context) Turn() *turn.Context {
	return dc.turn
}

// Dialogs returns the bound dialog set.
func (dc *Context) Dialogs() *Set {
	return dc.set
}

// Stack returns the bound stack.
func (dc *Context) Stack() *Stack {
	return dc.stack
}

// ActiveDialog returns the top frame, or nil when the stack is empty.
func (dc *Context) ActiveDialog() *Instance {
	return dc.stack.Top()
}

// Begin pushes a new frame for id and runs the dialog's Begin. Unknown ids
// fail before anything is pushed; a Begin that fails is popped again.
func (dc *Context) Begin(ctx context.Context, id string, args any) (Result, error) {
	d, err := dc.find(id)
	if err != nil {
		return Result{}, err
	}

	inst := &Instance{ID: id, State: make(map[string]any)}
	dc.stack.push(inst)
	dc.logger.Debug("dialog begun", "dialog_id", id, "depth", dc.stack.Depth())

	if err := d.Begin(ctx, dc, args); err != nil {
		// A failed begin leaves no frame behind
		if dc.stack.Top() == inst {
			dc.stack.pop()
		}
		return Result{}, fmt.Errorf("beginning dialog %q: %w", id, err)
	}
	return dc.status(), nil
}

// Prompt begins the prompt registered under id. prompt and choices are
// merged into a copy of opts, which may be nil.
func (dc *Context) Prompt(ctx context.Context, id string, prompt *activity.Activity, choices []recognizer.Choice, opts *PromptOptions) (Result, error) {
	var options PromptOptions
	if opts != nil {
		options = *opts
	}
	if prompt != nil {
		options.Prompt = prompt
	}
	if choices != nil {
		options.Choices = choices
	}
	return dc.Begin(ctx, id, &options)
}

// PromptText is Prompt with a plain text question.
func (dc *Context) PromptText(ctx context.Context, id, text string) (Result, error) {
	return dc.Prompt(ctx, id, activity.NewMessage(text), nil, nil)
}

// Continue hands the turn to the top dialog. On an empty stack it returns
// an inactive Result without a value.
func (dc *Context) Continue(ctx context.Context) (Result, error) {
	top := dc.stack.Top()
	if top == nil {
		return Result{}, nil
	}

	d, err := dc.find(top.ID)
	if err != nil {
		return Result{}, err
	}

	c, ok := d.(Continuer)
	if !ok {
		return dc.End(ctx, nil)
	}
	if err := c.Continue(ctx, dc); err != nil {
		return Result{}, fmt.Errorf("continuing dialog %q: %w", top.ID, err)
	}
	return dc.status(), nil
}

// End pops the top frame and passes result to the parent. A parent without
// Resume ends too, repeating up the stack. Ending an empty stack returns an
// inactive Result.
func (dc *Context) End(ctx context.Context, result any) (Result, error) {
	for {
		ended := dc.stack.pop()
		if ended == nil {
			return Result{}, nil
		}
		dc.logger.Debug("dialog ended", "dialog_id", ended.ID, "depth", dc.stack.Depth())

		parent := dc.stack.Top()
		if parent == nil {
			dc.final = result
			return Result{Active: false, Result: result}, nil
		}

		d, err := dc.find(parent.ID)
		if err != nil {
			return Result{}, err
		}
		r, ok := d.(Resumer)
		if !ok {
			continue
		}
		if err := r.Resume(ctx, dc, result); err != nil {
			return Result{}, fmt.Errorf("resuming dialog %q: %w", parent.ID, err)
		}
		return dc.status(), nil
	}
}

// EndAll clears the stack without resuming anything.
func (dc *Context) EndAll() *Context {
	if depth := dc.stack.Depth(); depth > 0 {
		dc.logger.Debug("ending all dialogs", "depth", depth)
	}
	clear(*dc.stack)
	*dc.stack = (*dc.stack)[:0]
	dc.final = nil
	return dc
}

// Replace swaps the top frame for a new dialog without resuming the parent.
func (dc *Context) Replace(ctx context.Context, id string, args any) (Result, error) {
	if _, err := dc.find(id); err != nil {
		return Result{}, err
	}
	if ended := dc.stack.pop(); ended != nil {
		dc.logger.Debug("dialog replaced", "dialog_id", ended.ID, "replacement", id)
	}
	return dc.Begin(ctx, id, args)
}

// status reports the stack after an operation.
func (dc *Context) status() Result {
	if dc.stack.Depth() > 0 {
		return Result{Active: true}
	}
	return Result{Active: false, Result: dc.final}
}

func (dc *Context) find(id string) (Dialog, error) {
	d := dc.set.Find(id)
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialog, id)
	}
	return d, nil
}
