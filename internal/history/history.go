// Package history archives completed chat exchanges in a local sqlite
// database so past conversations survive restarts. Archival is best effort:
// a write failure is logged and the session carries on.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KevinMoonLab/nexarag/internal/types"
)

// ConversationSummary is one archived conversation.
type ConversationSummary struct {
	ChatID    string
	StartedAt time.Time
	UpdatedAt time.Time
	Messages  int
}

// Archive persists chat transcripts keyed by conversation id.
type Archive struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the archive at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &Archive{db: db, dbPath: path}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

func (a *Archive) initSchema() error {
	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS conversations (
		chat_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL REFERENCES conversations(chat_id),
		message_id TEXT NOT NULL,
		is_user INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Append stores a batch of transcript entries for a conversation. Entries
// are stored in slice order; an empty batch or a blank chat id is a no-op.
func (a *Archive) Append(chatID string, msgs []types.ViewChatMessage) error {
	if chatID == "" || len(msgs) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.Exec(`
		INSERT INTO conversations (chat_id, started_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET updated_at = excluded.updated_at`,
		chatID, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (chat_id, message_id, is_user, text, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.Exec(chatID, m.MessageID, m.IsUser, m.Text, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return tx.Commit()
}

// Conversations lists archived conversations, most recently updated first.
func (a *Archive) Conversations() ([]ConversationSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(`
		SELECT c.chat_id, c.started_at, c.updated_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.chat_id = c.chat_id
		GROUP BY c.chat_id
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ChatID, &s.StartedAt, &s.UpdatedAt, &s.Messages); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Messages returns a conversation's transcript in stored order.
func (a *Archive) Messages(chatID string) ([]types.ViewChatMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(`
		SELECT message_id, is_user, text FROM messages
		WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []types.ViewChatMessage
	for rows.Next() {
		var m types.ViewChatMessage
		if err := rows.Scan(&m.MessageID, &m.IsUser, &m.Text); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
