// Package prompt provides dialogs that ask one question and recognize one
// answer.
//
// A Prompt[T] renders a question and recognizes a T from a later turn. It is
// a capability, not a base type: AsDialog adapts any Prompt[T] into a
// dialog.Dialog whose Begin sends the question and whose Continue ends the
// dialog with the recognized value. When nothing is recognized the frame
// stays active and the optional retry prompt is sent.
//
// Recognition failure is not an error: Recognize reports ok == false.
// Validators supplied at construction may reject or replace a recognized
// value:
//
//	age := prompt.NewNumber(func(ctx context.Context, tc *turn.Context, v float64) (float64, bool, error) {
//		return v, v >= 0 && v < 150, nil
//	})
//	dialogs.MustAdd("age", prompt.AsDialog(age))
//
// The OAuth prompt needs an adapter implementing turn.UserTokenProvider and
// fails with turn.ErrUnsupportedAdapter otherwise.
package prompt
