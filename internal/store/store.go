// ABOUTME: Storage interface and item type for durable bot state
// ABOUTME: Items carry an ETag so writes can use optimistic concurrency

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConcurrencyConflict is returned when a write carries an ETag that no
// longer matches the stored item. Nothing is written.
var ErrConcurrencyConflict = errors.New("concurrency conflict: etag mismatch")

// AnyETag writes unconditionally, replacing whatever is stored.
const AnyETag = "*"

// Item is a stored value and its version token.
type Item struct {
	Value json.RawMessage
	// ETag is the version read from the store. On write, "" or AnyETag
	// skips the version check.
	ETag string
}

// NewItem marshals v into an item with the given expected ETag.
func NewItem(v any, eTag string) (*Item, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling item: %w", err)
	}
	return &Item{Value: data, ETag: eTag}, nil
}

// Decode unmarshals the item value into v.
func (i *Item) Decode(v any) error {
	if i == nil || len(i.Value) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(i.Value, v); err != nil {
		return fmt.Errorf("unmarshaling item: %w", err)
	}
	return nil
}

// Storage is the durable key/value store used for conversation and user state.
type Storage interface {
	// Read returns the items present for keys. Missing keys are omitted.
	Read(ctx context.Context, keys []string) (map[string]*Item, error)
	// Write stores every item or none. An ETag mismatch on any item fails
	// the whole write with ErrConcurrencyConflict. On success each item's
	// ETag is updated to the stored version.
	Write(ctx context.Context, items map[string]*Item) error
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys []string) error
}

// checkETag reports whether a write with expected may replace a stored item
// at version current. exists is false when nothing is stored yet.
func checkETag(expected, current string, exists bool) bool {
	if expected == "" || expected == AnyETag || !exists {
		return true
	}
	return expected == current
}

func conflictError(key string) error {
	return fmt.Errorf("%w: key %q", ErrConcurrencyConflict, key)
}

func copyItem(i *Item) *Item {
	return &Item{Value: append(json.RawMessage(nil), i.Value...), ETag: i.ETag}
}
