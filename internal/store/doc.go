// Package store provides durable state and transcript storage for the bot.
//
// # Architecture
//
// Two interfaces cover everything the bot persists:
//
//   - Storage: key/value items with ETags for optimistic concurrency
//   - TranscriptStore: per-conversation activity history
//
// MemoryStorage and SQLiteStorage implement both.
//
// # Concurrency
//
// Every stored item carries an ETag. A write that supplies the ETag it read
// succeeds only if nobody has written the key since; otherwise the whole
// batch fails with ErrConcurrencyConflict and nothing is stored. An empty
// ETag or AnyETag ("*") writes unconditionally.
//
// # Keys
//
// SQLiteStorage escapes keys with EscapeKey before using them as primary
// keys. Characters such as '/' and '#' become "*xx" hex sequences and keys
// longer than the limit are truncated with a hash suffix. The logical key is
// stored alongside so reads always return the caller's key.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Either driver can be selected through SQLiteOptions.Driver:
//
//   - "sqlite": modernc.org/sqlite (pure Go, default)
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo)
//
// State tables are created on first use through a process-wide Provisioner,
// so concurrent first writers issue a single CREATE TABLE.
//
// # Testing
//
// Use NewMemoryStorage() for unit tests. Use
// NewSQLiteStorage(":memory:", SQLiteOptions{}) for integration tests with
// real SQLite.
package store
