package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a chat has no stored session binding.
var ErrSessionNotFound = errors.New("session not found")

// ChatSession binds a chat to its active agent conversation.
type ChatSession struct {
	ChatID    int64     `json:"chat_id"`
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session returns the session id bound to chatID.
// Returns ErrSessionNotFound if the chat has no binding.
func (s *Store) Session(chatID int64) (string, error) {
	row := s.db.QueryRow(`
		SELECT session_id FROM chat_sessions WHERE chat_id = ?
	`, chatID)

	var sessionID string
	err := row.Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	return sessionID, nil
}

// SaveSession binds chatID to sessionID, replacing any previous binding.
func (s *Store) SaveSession(chatID int64, sessionID string) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_sessions (chat_id, session_id, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(chat_id) DO UPDATE SET
			session_id = excluded.session_id,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`, chatID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession removes the binding for chatID. Deleting a chat without a
// binding is not an error.
func (s *Store) DeleteSession(chatID int64) error {
	_, err := s.db.Exec(`DELETE FROM chat_sessions WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Sessions returns all chat session bindings, most recently updated first.
func (s *Store) Sessions() ([]ChatSession, error) {
	rows, err := s.db.Query(`
		SELECT chat_id, session_id, updated_at
		FROM chat_sessions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []ChatSession
	for rows.Next() {
		var cs ChatSession
		var updatedAt string
		if err := rows.Scan(&cs.ChatID, &cs.SessionID, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
			cs.UpdatedAt = t
		}
		sessions = append(sessions, cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}
