package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diary-assistant/web/types"
)

// CreateSession inserts a new chat session. An empty name gets the default
// "Phiên mới HH:MM:SS" label.
func (s *HistoryStore) CreateSession(ctx context.Context, name string) (types.Session, error) {
	now := time.Now()
	if name == "" {
		name = fmt.Sprintf("Phiên mới %s", now.Format("15:04:05"))
	}

	session := types.Session{
		ID:         uuid.New(),
		Name:       name,
		CreatedAt:  now,
		LastActive: now,
	}

	const query = `INSERT INTO sessions (id, name, created_at, last_active) VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query, session.ID.String(), session.Name, session.CreatedAt, session.LastActive); err != nil {
		return types.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession returns one session by id.
func (s *HistoryStore) GetSession(ctx context.Context, id uuid.UUID) (types.Session, error) {
	const query = `SELECT id, name, created_at, last_active FROM sessions WHERE id = $1`

	var session types.Session
	var rawID string
	err := s.DB.QueryRowContext(ctx, query, id.String()).Scan(&rawID, &session.Name, &session.CreatedAt, &session.LastActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, sql.ErrNoRows
		}
		return types.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	session.ID, err = uuid.Parse(rawID)
	if err != nil {
		return types.Session{}, fmt.Errorf("invalid session id in database: %w", err)
	}
	return session, nil
}

// GetSessions lists all sessions, most recently active first.
func (s *HistoryStore) GetSessions(ctx context.Context) ([]types.Session, error) {
	const query = `SELECT id, name, created_at, last_active FROM sessions ORDER BY last_active DESC`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var session types.Session
		var rawID string
		if err := rows.Scan(&rawID, &session.Name, &session.CreatedAt, &session.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("invalid session id in database: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// RenameSession updates a session's display name.
func (s *HistoryStore) RenameSession(ctx context.Context, id uuid.UUID, name string) error {
	const query = `UPDATE sessions SET name = $1 WHERE id = $2`
	result, err := s.DB.ExecContext(ctx, query, name, id.String())
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rename result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchSession bumps a session's last-active timestamp.
func (s *HistoryStore) TouchSession(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE sessions SET last_active = $1 WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, time.Now(), id.String()); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// ClearSessionMessages deletes every message in a session but keeps the
// session itself.
func (s *HistoryStore) ClearSessionMessages(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM messages WHERE session_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, id.String()); err != nil {
		return fmt.Errorf("failed to clear session messages: %w", err)
	}
	return nil
}
