package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	apperrors "diary-assistant/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
)

// HistoryStore persists chat sessions and messages to a local SQLite file.
// A single connection with WAL journaling is all a single local user needs.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.WrapErrorf(err, "create history directory")
	}

	// With the modernc.org/sqlite driver each pragma is prefixed `_pragma=`.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, apperrors.WrapErrorf(err, "open history database")
	}
	if err := db.Ping(); err != nil {
		return nil, apperrors.WrapErrorf(err, "ping history database")
	}

	// SQLite with WAL: a single connection is optimal and avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &HistoryStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_active TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created_at ON messages(session_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return apperrors.WrapErrorf(err, "failed to execute schema statement")
		}
	}
	return nil
}

func (s *HistoryStore) Close() error {
	return s.DB.Close()
}
