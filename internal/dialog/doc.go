// Package dialog implements resumable multi-turn conversation logic.
//
// # Model
//
// A Dialog is a capability with a Begin method and, optionally, Continue
// (Continuer) and Resume (Resumer). Dialogs are registered by id in a Set,
// which is shared by every conversation and never holds per-conversation
// state.
//
// Per-conversation progress lives in a Stack of Instance frames. The stack
// is loaded from durable storage at the start of a turn, bound to the turn
// with Set.CreateContext, and saved again when the turn ends. Only the top
// frame receives Continue; a dialog leaves the stack by calling End or
// Replace on the Context.
//
// # Unwinding
//
// End pops the top frame and hands its result to the parent's Resume. A
// parent without Resume ends with the same result, so a stack of dialogs
// that never resume unwinds completely in one call. When the stack empties
// the result is returned to the caller with Active set to false.
//
// A dialog may end during its own Begin; the frame is popped exactly as if
// End had been called on a later turn.
//
// # Waiting across turns
//
// Nothing is kept in memory between turns. A dialog that needs to remember
// something writes it into its Instance.State, which must survive a JSON
// round trip. Numbers come back as float64; use Int to read them.
package dialog
