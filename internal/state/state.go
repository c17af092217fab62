// ABOUTME: Turn-cached bot state backed by store.Storage with optimistic concurrency
// ABOUTME: Conversation and user scopes differ only in their storage key

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

// ErrMissingKey is returned when the turn lacks the ids a state key needs.
var ErrMissingKey = errors.New("state key unavailable for this activity")

// KeyFunc derives the storage key for a turn.
type KeyFunc func(tc *turn.Context) (string, error)

// State is one scope of persisted bot state.
type State struct {
	name    string
	storage store.Storage
	keyFn   KeyFunc
	logger  *slog.Logger
}

// New creates a state scope. name must be unique among scopes sharing a turn.
func New(name string, storage store.Storage, keyFn KeyFunc, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		name:    name,
		storage: storage,
		keyFn:   keyFn,
		logger:  logger.With("component", "state", "scope", name),
	}
}

// NewConversationState stores state under {channel}/conversations/{conversation}.
func NewConversationState(storage store.Storage, logger *slog.Logger) *State {
	return New("conversation", storage, ConversationKey, logger)
}

// NewUserState stores state under {channel}/users/{user}.
func NewUserState(storage store.Storage, logger *slog.Logger) *State {
	return New("user", storage, UserKey, logger)
}

// ConversationKey is the KeyFunc for conversation state.
func ConversationKey(tc *turn.Context) (string, error) {
	a := tc.Activity()
	if a.ChannelID == "" || a.ConversationID() == "" {
		return "", fmt.Errorf("%w: missing channel or conversation id", ErrMissingKey)
	}
	return a.ChannelID + "/conversations/" + a.ConversationID(), nil
}

// UserKey is the KeyFunc for user state.
func UserKey(tc *turn.Context) (string, error) {
	a := tc.Activity()
	if a.ChannelID == "" || a.FromID() == "" {
		return "", fmt.Errorf("%w: missing channel or user id", ErrMissingKey)
	}
	return a.ChannelID + "/users/" + a.FromID(), nil
}

// Name returns the scope name.
func (s *State) Name() string {
	return s.name
}

// Storage returns the storage the scope persists to.
func (s *State) Storage() store.Storage {
	return s.storage
}

// cached is a scope's state for the current turn.
type cached struct {
	key  string
	raw  map[string]json.RawMessage
	live map[string]any
	item *store.Item
	hash []byte
}

type cacheKey struct {
	name string
}

func (s *State) cached(tc *turn.Context) (*cached, bool) {
	return turn.Value[*cached](tc.Services(), cacheKey{s.name})
}

// Load reads the state into the turn cache. Without force an already
// loaded state is kept.
func (s *State) Load(ctx context.Context, tc *turn.Context, force bool) error {
	if _, ok := s.cached(tc); ok && !force {
		return nil
	}

	key, err := s.keyFn(tc)
	if err != nil {
		return err
	}
	items, err := s.storage.Read(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("loading %s state: %w", s.name, err)
	}

	c := &cached{
		key:  key,
		raw:  make(map[string]json.RawMessage),
		live: make(map[string]any),
		item: &store.Item{},
	}
	if item, ok := items[key]; ok {
		if err := json.Unmarshal(item.Value, &c.raw); err != nil {
			return fmt.Errorf("decoding %s state: %w", s.name, err)
		}
		c.item.ETag = item.ETag
		c.hash = item.Value
	}
	tc.Services().Set(cacheKey{s.name}, c)
	return nil
}

// SaveChanges writes the cached state if it changed since load, or always
// when force is set. A stale ETag fails with store.ErrConcurrencyConflict.
func (s *State) SaveChanges(ctx context.Context, tc *turn.Context, force bool) error {
	c, ok := s.cached(tc)
	if !ok {
		return nil
	}

	data, err := c.serialize()
	if err != nil {
		return fmt.Errorf("encoding %s state: %w", s.name, err)
	}
	if !force && bytes.Equal(data, c.hash) {
		return nil
	}
	if !force && c.hash == nil && len(c.raw) == 0 && len(c.live) == 0 {
		return nil
	}

	c.item.Value = data
	if force {
		c.item.ETag = store.AnyETag
	}
	if err := s.storage.Write(ctx, map[string]*store.Item{c.key: c.item}); err != nil {
		return fmt.Errorf("saving %s state: %w", s.name, err)
	}
	c.hash = data
	s.logger.Debug("state saved", "key", c.key, "etag", c.item.ETag)
	return nil
}

// Clear empties the cached state. The next SaveChanges persists the empty
// object.
func (s *State) Clear(tc *turn.Context) {
	c, ok := s.cached(tc)
	if !ok {
		return
	}
	clear(c.raw)
	clear(c.live)
}

// Delete removes the state from storage and the turn cache.
func (s *State) Delete(ctx context.Context, tc *turn.Context) error {
	key, err := s.keyFn(tc)
	if err != nil {
		return err
	}
	tc.Services().Delete(cacheKey{s.name})
	if err := s.storage.Delete(ctx, []string{key}); err != nil {
		return fmt.Errorf("deleting %s state: %w", s.name, err)
	}
	return nil
}

// serialize merges live values over the loaded raw values. Map keys are
// sorted by encoding/json, so equal state encodes to equal bytes.
func (c *cached) serialize() ([]byte, error) {
	out := maps.Clone(c.raw)
	for name, v := range c.live {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = data
	}
	return json.Marshal(out)
}
