package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"diary-assistant/web/types"
)

// AppendMessage stores one chat message and bumps the session activity.
func (s *HistoryStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string) (types.ChatMessage, error) {
	msg := types.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	const query = `INSERT INTO messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query, msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		return types.ChatMessage{}, fmt.Errorf("failed to append message: %w", err)
	}

	if err := s.TouchSession(ctx, sessionID); err != nil {
		return types.ChatMessage{}, err
	}
	return msg, nil
}

// GetMessagesBySession returns a session's messages in chronological order.
func (s *HistoryStore) GetMessagesBySession(ctx context.Context, sessionID uuid.UUID) ([]types.ChatMessage, error) {
	const query = `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.DB.QueryContext(ctx, query, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
