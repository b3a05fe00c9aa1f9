package chat

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// HistorySink receives completed conversation turns for durable storage,
// independent of the TTL-bound session cache.
type HistorySink interface {
	Record(ctx context.Context, sessionID string, user, assistant ChatMessage) error
}

// NopSink discards turns.
type NopSink struct{}

func (NopSink) Record(context.Context, string, ChatMessage, ChatMessage) error { return nil }

const turnsSchema = `
CREATE TABLE IF NOT EXISTS chat_turns (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	user_text    TEXT NOT NULL,
	answer_text  TEXT NOT NULL,
	cached       INTEGER NOT NULL DEFAULT 0,
	partial      INTEGER NOT NULL DEFAULT 0,
	asked_at     TEXT NOT NULL,
	answered_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id);
`

// SQLiteSink persists turns to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if needed) the database at path and ensures
// the schema exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(turnsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Record(ctx context.Context, sessionID string, user, assistant ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (session_id, user_text, answer_text, cached, partial, asked_at, answered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, user.Content, assistant.Content,
		boolInt(assistant.Cached), boolInt(assistant.Partial),
		user.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		assistant.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
