// ABOUTME: Dialog capabilities, stack frames and turn results
// ABOUTME: Begin is required; Continue and Resume are optional interfaces

package dialog

import (
	"context"
	"errors"
)

// ErrUnknownDialog is returned when a dialog id is not registered in the set.
var ErrUnknownDialog = errors.New("unknown dialog")

// ErrDuplicateDialog is returned when an id is registered twice.
var ErrDuplicateDialog = errors.New("duplicate dialog id")

// Dialog is the minimal dialog capability. Begin runs when the dialog is
// pushed; it either leaves the frame waiting for the next turn or calls
// dc.End to finish immediately.
type Dialog interface {
	Begin(ctx context.Context, dc *Context, args any) error
}

// Continuer is implemented by dialogs that handle later turns. Dialogs
// without it end with no result when continued.
type Continuer interface {
	Continue(ctx context.Context, dc *Context) error
}

// Resumer is implemented by dialogs that receive child results. Dialogs
// without it end with their child's result.
type Resumer interface {
	Resume(ctx context.Context, dc *Context, result any) error
}

// Func adapts a function into a begin-only Dialog.
type Func func(ctx context.Context, dc *Context, args any) error

// Begin calls f.
func (f Func) Begin(ctx context.Context, dc *Context, args any) error {
	return f(ctx, dc, args)
}

// Result reports the stack status after an operation. Result is only set
// when the stack emptied and the last dialog ended with a value.
type Result struct {
	Active bool
	Result any
}
