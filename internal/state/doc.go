// Package state persists conversation and user state between turns.
//
// A State is a JSON object stored under one storage key per conversation
// (ConversationState) or per user (UserState). It is loaded at most once per
// turn and cached in the turn's services. Property[T] gives typed access to
// one field; the value handed out is live, so changes made through the
// pointer are saved without calling Set.
//
// SaveChanges writes only when the serialized state changed and sends the
// ETag read at load time, so a concurrent turn that saved first makes this
// save fail with store.ErrConcurrencyConflict. AutoSave does this after
// every turn.
package state
