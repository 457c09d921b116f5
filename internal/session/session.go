// Package session implements the Session & Quota Layer (spec.md §4.4):
// per-user daily execution quotas and the chat session transcript a chat
// trigger appends to. It follows the same thin-Store-over-*db.DB shape as
// internal/workflow.Store and internal/skill.Registry, grounded on the
// teacher's graph/store/sqlite.go row-scanning conventions.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/db"
)

// Role mirrors the model package's RoleUser/RoleAssistant constants for the
// persisted chat transcript, kept as its own type so this package does not
// import the engine for a two-value enum.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat session's transcript.
type Message struct {
	ID        int64
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ChatSession is a running conversation bound to one workflow and user.
type ChatSession struct {
	ID         string
	WorkflowID string
	UserID     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store persists chat sessions, their messages, and daily quota counters.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateSession opens a new chat session for userID against workflowID.
func (s *Store) CreateSession(ctx context.Context, workflowID, userID string) (*ChatSession, error) {
	cs := &ChatSession{ID: uuid.NewString(), WorkflowID: workflowID, UserID: userID}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, workflow_id, user_id) VALUES (?, ?, ?)`,
		cs.ID, cs.WorkflowID, cs.UserID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "create chat session", err)
	}
	return cs, nil
}

// GetSession loads a chat session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, created_at, updated_at FROM chat_sessions WHERE id = ?`, id)
	cs := &ChatSession{}
	if err := row.Scan(&cs.ID, &cs.WorkflowID, &cs.UserID, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "chat session not found", err)
	}
	return cs, nil
}

// AppendMessage records one turn and bumps the session's updated_at, the
// same "touch the parent on child insert" pattern the teacher's
// SQLiteStore.SaveCheckpoint uses for its owning run row.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "begin append message", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, string(role), content,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "insert chat message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "read message id", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "touch chat session", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "commit append message", err)
	}
	return &Message{ID: id, SessionID: sessionID, Role: role, Content: content}, nil
}

// ClearMessages deletes a session's transcript while leaving the session
// row itself intact, matching spec.md §6's "DELETE /sessions/{id}/messages
// — clears content, preserves session".
func (s *Store) ClearMessages(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "clear chat messages", err)
	}
	return nil
}

// History returns a session's transcript in chronological order, the shape
// a chat-triggered execution replays into the LLM node's message list.
func (s *Store) History(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at FROM chat_messages
		WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, "query chat history", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInfrastructure, "scan chat message", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
