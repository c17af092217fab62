// ABOUTME: SQLite implementation of Storage and TranscriptStore
// ABOUTME: Versioned rows give optimistic concurrency; collection tables are provisioned lazily

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-bot/internal/activity"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGo     = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// timestampLayout has fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultCollection is the state table used when none is configured.
const DefaultCollection = "bot_state"

// SQLiteOptions configures a SQLiteStorage.
type SQLiteOptions struct {
	Driver     string // DriverModernc (default) or DriverCGo
	Collection string // state table name, sanitized
	MaxKeyLen  int    // 0 means MaxKeyLength
	Logger     *slog.Logger
}

// SQLiteStorage implements Storage and TranscriptStore using SQLite.
type SQLiteStorage struct {
	db          *sql.DB
	path        string
	table       string
	maxKeyLen   int
	provisioner *Provisioner
	logger      *slog.Logger
}

var tableNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// NewSQLiteStorage opens (creating if needed) a SQLite database at path.
// Parent directories are created if needed.
func NewSQLiteStorage(path string, opts SQLiteOptions) (*SQLiteStorage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGo {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	collection := opts.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	// Ensure parent directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStorage{
		db:          db,
		path:        path,
		table:       "state_" + tableNameSanitizer.ReplaceAllString(collection, "_"),
		maxKeyLen:   opts.MaxKeyLen,
		provisioner: defaultProvisioner,
		logger:      logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite storage initialized", "path", path, "driver", driver, "table", s.table)
	return s, nil
}

// createSchema creates the transcript table. State tables are provisioned
// on first use by ensureTable.
func (s *SQLiteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcripts (
			entry_id        TEXT PRIMARY KEY,
			channel_id      TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			direction       TEXT NOT NULL,
			type            TEXT NOT NULL,
			from_id         TEXT,
			timestamp       TEXT NOT NULL,
			activity_json   TEXT NOT NULL,

			CHECK (direction IN ('inbound', 'outbound'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcripts_conversation
			ON transcripts(channel_id, conversation_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// resource names the state table for the provisioning cache. Each
// in-memory database is private to its handle.
func (s *SQLiteStorage) resource() string {
	if s.path == ":memory:" {
		return fmt.Sprintf(":memory:%p#%s", s, s.table)
	}
	return s.path + "#" + s.table
}

// ensureTable provisions the state table once per process.
func (s *SQLiteStorage) ensureTable(ctx context.Context) error {
	return s.provisioner.Ensure(ctx, s.resource(), func(ctx context.Context) error {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key         TEXT PRIMARY KEY,
				logical_key TEXT NOT NULL,
				value       TEXT NOT NULL,
				version     INTEGER NOT NULL,
				updated_at  TEXT NOT NULL
			)`, s.table)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("provisioning table %s: %w", s.table, err)
		}
		s.logger.Debug("provisioned state table", "table", s.table)
		return nil
	})
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.logger.Info("closing SQLite storage")
	// The table disappears with an in-memory database
	if s.path == ":memory:" {
		s.provisioner.Forget(s.resource())
	}
	return s.db.Close()
}

// Read returns the stored items for keys.
func (s *SQLiteStorage) Read(ctx context.Context, keys []string) (map[string]*Item, error) {
	result := make(map[string]*Item, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		placeholders[i] = "?"
		args[i] = EscapeKey(key, s.maxKeyLen)
	}

	query := fmt.Sprintf(`SELECT logical_key, value, version FROM %s WHERE key IN (%s)`,
		s.table, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var logicalKey, value string
		var version int64
		if err := rows.Scan(&logicalKey, &value, &version); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		result[logicalKey] = &Item{
			Value: json.RawMessage(value),
			ETag:  strconv.FormatInt(version, 10),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state: %w", err)
	}
	return result, nil
}

// Write stores all items in one transaction. Each row's version is checked
// inside the transaction; a mismatch rolls everything back and returns
// ErrConcurrencyConflict.
func (s *SQLiteStorage) Write(ctx context.Context, items map[string]*Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	versions := make(map[string]int64, len(items))
	for logicalKey, item := range items {
		version, err := s.writeItem(ctx, tx, logicalKey, item, now)
		if err != nil {
			return err
		}
		versions[logicalKey] = version
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	for logicalKey, item := range items {
		item.ETag = strconv.FormatInt(versions[logicalKey], 10)
	}
	s.logger.Debug("wrote state", "count", len(items))
	return nil
}

// writeItem stores one item and returns its new version.
func (s *SQLiteStorage) writeItem(ctx context.Context, tx *sql.Tx, logicalKey string, item *Item, now string) (int64, error) {
	key := EscapeKey(logicalKey, s.maxKeyLen)

	var current int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT version FROM %s WHERE key = ?`, s.table), key).Scan(&current)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("querying version: %w", err)
	}

	if !checkETag(item.ETag, strconv.FormatInt(current, 10), exists) {
		s.logger.Debug("etag mismatch", "key", logicalKey, "expected", item.ETag, "current", current)
		return 0, conflictError(logicalKey)
	}

	if !exists {
		insert := fmt.Sprintf(`INSERT INTO %s (key, logical_key, value, version, updated_at) VALUES (?, ?, ?, 1, ?)`, s.table)
		if _, err := tx.ExecContext(ctx, insert, key, logicalKey, string(item.Value), now); err != nil {
			return 0, fmt.Errorf("inserting state: %w", err)
		}
		return 1, nil
	}

	update := fmt.Sprintf(`UPDATE %s SET value = ?, version = ?, updated_at = ? WHERE key = ?`, s.table)
	if _, err := tx.ExecContext(ctx, update, string(item.Value), current+1, now, key); err != nil {
		return 0, fmt.Errorf("updating state: %w", err)
	}
	return current + 1, nil
}

// Delete removes keys.
func (s *SQLiteStorage) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		placeholders[i] = "?"
		args[i] = EscapeKey(key, s.maxKeyLen)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key IN (%s)`, s.table, strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}

// LogActivity persists a transcript entry.
func (s *SQLiteStorage) LogActivity(ctx context.Context, entry *TranscriptEntry) error {
	data, err := json.Marshal(entry.Activity)
	if err != nil {
		return fmt.Errorf("marshaling activity: %w", err)
	}

	query := `
		INSERT INTO transcripts (
			entry_id, channel_id, conversation_id, direction, type, from_id, timestamp, activity_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ChannelID,
		entry.ConversationID,
		string(entry.Direction),
		string(entry.Type),
		nullString(entry.FromID),
		entry.Timestamp.UTC().Format(timestampLayout),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting transcript entry: %w", err)
	}

	s.logger.Debug("logged activity",
		"entry_id", entry.ID,
		"conversation_id", entry.ConversationID,
		"direction", entry.Direction,
		"type", entry.Type,
	)
	return nil
}

// GetTranscript returns the most recent limit entries in chronological order.
func (s *SQLiteStorage) GetTranscript(ctx context.Context, channelID, conversationID string, limit int) ([]*TranscriptEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	// Take the newest rows, then flip them back into chronological order
	query := `
		SELECT entry_id, channel_id, conversation_id, direction, type, from_id, timestamp, activity_json
		FROM (
			SELECT *, rowid AS seq FROM transcripts
			WHERE channel_id = ? AND conversation_id = ?
			ORDER BY timestamp DESC, seq DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, channelID, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var entries []*TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		var direction, kind, timestampStr, activityJSON string
		var fromID sql.NullString
		if err := rows.Scan(&e.ID, &e.ChannelID, &e.ConversationID, &direction, &kind, &fromID, &timestampStr, &activityJSON); err != nil {
			return nil, fmt.Errorf("scanning transcript entry: %w", err)
		}
		e.Direction = Direction(direction)
		e.Type = activity.Type(kind)
		e.FromID = fromID.String
		e.Timestamp, err = time.Parse(timestampLayout, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(activityJSON), &e.Activity); err != nil {
			return nil, fmt.Errorf("unmarshaling activity: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript: %w", err)
	}
	return entries, nil
}

// DeleteTranscript removes a conversation's history.
func (s *SQLiteStorage) DeleteTranscript(ctx context.Context, channelID, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE channel_id = ? AND conversation_id = ?`,
		channelID, conversationID)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	return nil
}

// nullString converts an empty string to nil for nullable columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
