// ABOUTME: In-memory Storage and TranscriptStore implementation
// ABOUTME: Used by the console bot and by tests that don't need SQLite

package store

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStorage is an in-memory Storage and TranscriptStore.
type MemoryStorage struct {
	mu          sync.RWMutex
	items       map[string]*Item              // keyed by logical key
	transcripts map[string][]*TranscriptEntry // keyed by "channel/conversation"
	version     int64
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items:       make(map[string]*Item),
		transcripts: make(map[string][]*TranscriptEntry),
	}
}

// Read returns copies of the stored items for keys.
func (m *MemoryStorage) Read(ctx context.Context, keys []string) (map[string]*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Item, len(keys))
	for _, key := range keys {
		if item, ok := m.items[key]; ok {
			result[key] = copyItem(item)
		}
	}
	return result, nil
}

// Write stores all items after checking every ETag.
func (m *MemoryStorage) Write(ctx context.Context, items map[string]*Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check everything first so a conflict writes nothing
	for key, item := range items {
		current, exists := m.items[key]
		currentTag := ""
		if exists {
			currentTag = current.ETag
		}
		if !checkETag(item.ETag, currentTag, exists) {
			return conflictError(key)
		}
	}

	for key, item := range items {
		m.version++
		item.ETag = strconv.FormatInt(m.version, 10)
		m.items[key] = copyItem(item)
	}
	return nil
}

// Delete removes keys.
func (m *MemoryStorage) Delete(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

// LogActivity appends a transcript entry.
func (m *MemoryStorage) LogActivity(ctx context.Context, entry *TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Make a copy to avoid external modification
	e := *entry
	e.Activity = entry.Activity.Clone()
	key := entry.ChannelID + "/" + entry.ConversationID
	m.transcripts[key] = append(m.transcripts[key], &e)
	return nil
}

// GetTranscript returns the last limit entries for a conversation.
func (m *MemoryStorage) GetTranscript(ctx context.Context, channelID, conversationID string, limit int) ([]*TranscriptEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.transcripts[channelID+"/"+conversationID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	result := make([]*TranscriptEntry, len(entries))
	for i, e := range entries {
		entryCopy := *e
		entryCopy.Activity = e.Activity.Clone()
		result[i] = &entryCopy
	}
	return result, nil
}

// DeleteTranscript removes a conversation's history.
func (m *MemoryStorage) DeleteTranscript(ctx context.Context, channelID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.transcripts, channelID+"/"+conversationID)
	return nil
}
