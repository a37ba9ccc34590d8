// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides per-chat conversation/mode persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			chat_id         INTEGER PRIMARY KEY,
			current_mode_id TEXT
		);

		CREATE TABLE IF NOT EXISTS conversations (
			chat_id    INTEGER NOT NULL,
			id         INTEGER NOT NULL,
			title      TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			PRIMARY KEY (chat_id, id)
		);

		CREATE TABLE IF NOT EXISTS messages (
			chat_id         INTEGER NOT NULL,
			conversation_id INTEGER NOT NULL,
			seq             INTEGER NOT NULL,
			message_id      INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      DATETIME NOT NULL,
			PRIMARY KEY (chat_id, conversation_id, seq),
			FOREIGN KEY (chat_id, conversation_id) REFERENCES conversations(chat_id, id),

			CHECK (role IN ('system', 'user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(chat_id, conversation_id);

		CREATE TABLE IF NOT EXISTS modes (
			chat_id    INTEGER NOT NULL,
			id         TEXT NOT NULL,
			title      TEXT NOT NULL,
			prompt     TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (chat_id, id)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// CreateConversation persists a new conversation and any messages it already
// carries (the first user message, typically).
func (s *SQLiteStore) CreateConversation(ctx context.Context, chatID int64, conv *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (chat_id, id, title, started_at) VALUES (?, ?, ?, ?)`,
		chatID, conv.ID, conv.Title, conv.StartedAt,
	); err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for seq, msg := range conv.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (chat_id, conversation_id, seq, message_id, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chatID, conv.ID, seq, msg.ID, string(msg.Role), msg.Content, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	return tx.Commit()
}

// GetConversation loads a conversation with its full message history.
func (s *SQLiteStore) GetConversation(ctx context.Context, chatID int64, conversationID int) (*Conversation, error) {
	conv := &Conversation{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, started_at FROM conversations WHERE chat_id = ? AND id = ?`,
		chatID, conversationID,
	).Scan(&conv.ID, &conv.Title, &conv.StartedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	msgs, err := s.loadMessages(ctx, chatID, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

// ListConversations returns a chat's conversations in insertion order,
// without message bodies (history display doesn't need them).
func (s *SQLiteStore) ListConversations(ctx context.Context, chatID int64) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, started_at FROM conversations WHERE chat_id = ? ORDER BY id`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// ConversationCount returns how many conversations the chat has. Used for
// count-at-creation-time id assignment.
func (s *SQLiteStore) ConversationCount(ctx context.Context, chatID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE chat_id = ?`, chatID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return count, nil
}

// AppendMessage adds a message at the end of a conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, chatID int64, conversationID int, msg *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, conversation_id, seq, message_id, role, content, created_at)
		 SELECT ?, ?, COALESCE(MAX(seq) + 1, 0), ?, ?, ?, ?
		 FROM messages WHERE chat_id = ? AND conversation_id = ?`,
		chatID, conversationID, msg.ID, string(msg.Role), msg.Content, msg.CreatedAt,
		chatID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// PopLastMessage removes the single most recent message of a conversation.
// Used by retry-of-last-assistant-reply.
func (s *SQLiteStore) PopLastMessage(ctx context.Context, chatID int64, conversationID int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE chat_id = ? AND conversation_id = ? AND seq = (
			SELECT MAX(seq) FROM messages WHERE chat_id = ? AND conversation_id = ?
		)`,
		chatID, conversationID, chatID, conversationID,
	)
	if err != nil {
		return fmt.Errorf("popping message: %w", err)
	}
	return nil
}

// PutMode inserts or replaces a mode.
func (s *SQLiteStore) PutMode(ctx context.Context, chatID int64, mode *Mode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO modes (chat_id, id, title, prompt, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id, id) DO UPDATE SET title = excluded.title, prompt = excluded.prompt`,
		chatID, mode.ID, mode.Title, mode.Prompt, mode.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("putting mode: %w", err)
	}
	return nil
}

// GetMode returns a mode by id.
func (s *SQLiteStore) GetMode(ctx context.Context, chatID int64, modeID string) (*Mode, error) {
	mode := &Mode{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, prompt, created_at FROM modes WHERE chat_id = ? AND id = ?`,
		chatID, modeID,
	).Scan(&mode.ID, &mode.Title, &mode.Prompt, &mode.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying mode: %w", err)
	}
	return mode, nil
}

// ListModes returns a chat's modes in insertion order.
func (s *SQLiteStore) ListModes(ctx context.Context, chatID int64) ([]*Mode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, prompt, created_at FROM modes WHERE chat_id = ? ORDER BY created_at, id`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying modes: %w", err)
	}
	defer rows.Close()

	var modes []*Mode
	for rows.Next() {
		mode := &Mode{}
		if err := rows.Scan(&mode.ID, &mode.Title, &mode.Prompt, &mode.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mode: %w", err)
		}
		modes = append(modes, mode)
	}
	return modes, rows.Err()
}

// DeleteMode removes a mode. The chat's current-mode reference is left as is;
// a dangling reference resolves to ErrNotFound on the next CurrentMode read.
func (s *SQLiteStore) DeleteMode(ctx context.Context, chatID int64, modeID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM modes WHERE chat_id = ? AND id = ?`, chatID, modeID,
	)
	if err != nil {
		return fmt.Errorf("deleting mode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCurrentMode records which mode is current for the chat. An empty modeID
// clears the reference.
func (s *SQLiteStore) SetCurrentMode(ctx context.Context, chatID int64, modeID string) error {
	var ref any
	if modeID != "" {
		ref = modeID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, current_mode_id) VALUES (?, ?)
		 ON CONFLICT (chat_id) DO UPDATE SET current_mode_id = excluded.current_mode_id`,
		chatID, ref,
	)
	if err != nil {
		return fmt.Errorf("setting current mode: %w", err)
	}
	return nil
}

// CurrentMode resolves the chat's current-mode reference. Returns ErrNotFound
// when no mode is set or the referenced mode was deleted.
func (s *SQLiteStore) CurrentMode(ctx context.Context, chatID int64) (*Mode, error) {
	var modeID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT current_mode_id FROM chats WHERE chat_id = ?`, chatID,
	).Scan(&modeID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying current mode: %w", err)
	}
	if !modeID.Valid || modeID.String == "" {
		return nil, ErrNotFound
	}
	return s.GetMode(ctx, chatID, modeID.String)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadMessages(ctx context.Context, chatID int64, conversationID int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, created_at FROM messages
		 WHERE chat_id = ? AND conversation_id = ? ORDER BY seq`,
		chatID, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		var role string
		var created time.Time
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = Role(role)
		msg.CreatedAt = created
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
