// Package store provides persistent per-chat storage using SQLite.
//
// # Data Models
//
//   - Conversation: titled message exchange, id assigned by creation count
//   - Message: single user/assistant/system message, keyed by transport id
//   - Mode: reusable named system-prompt template
//
// Each chat additionally carries a nullable current-mode reference. Deleting
// the referenced mode leaves the reference dangling; CurrentMode resolves a
// dangling reference to ErrNotFound so callers read it as "no mode".
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") for tests with real SQLite.
//
// # Concurrency
//
// The store itself is safe for concurrent use, but per-chat data is expected
// to be accessed only by the holder of that chat's serialization slot (see
// the chat package), so reads never observe a half-applied operation.
package store
