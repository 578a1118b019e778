package postgres

import (
	"context"
	"fmt"

	"github.com/pagecraft/pagecraft/internal/domain/conversation"
)

const conversationColumns = `id, workspace_id, user_email, status, created_at, updated_at`

func (s *Store) CreateConversation(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (workspace_id, user_email, status)
		 VALUES ($1, $2, $3)
		 RETURNING `+conversationColumns,
		c.WorkspaceID, c.UserEmail, string(c.Status))

	created, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &created, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)

	c, err := scanConversation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get conversation %s", id)
	}
	return &c, nil
}

func (s *Store) GetOngoingConversation(ctx context.Context, workspaceID string) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE workspace_id = $1 AND status = 'ongoing'`, workspaceID)

	c, err := scanConversation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get ongoing conversation for workspace %s", workspaceID)
	}
	return &c, nil
}

// FinishConversations marks every ongoing conversation of the workspace
// finished. Affecting zero rows is not an error; reset is idempotent.
func (s *Store) FinishConversations(ctx context.Context, workspaceID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status = 'finished', updated_at = now()
		 WHERE workspace_id = $1 AND status = 'ongoing'`, workspaceID)
	if err != nil {
		return fmt.Errorf("finish conversations for workspace %s: %w", workspaceID, err)
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, m *conversation.Message) (*conversation.Message, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversation_messages (conversation_id, session_id, role, content, tool_call_id, tool_name, tool_calls)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, conversation_id, COALESCE(session_id::text, ''), role, content, tool_call_id, tool_name, tool_calls, created_at`,
		m.ConversationID, nullIfEmpty(m.SessionID), string(m.Role), m.Content, m.ToolCallID, m.ToolName, m.ToolCalls)

	created, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &created, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, COALESCE(session_id::text, ''), role, content, tool_call_id, tool_name, tool_calls, created_at
		 FROM conversation_messages WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanConversation(row scannable) (conversation.Conversation, error) {
	var c conversation.Conversation
	var status string
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.UserEmail, &status, &c.CreatedAt, &c.UpdatedAt)
	c.Status = conversation.Status(status)
	return c, err
}

func scanMessage(row scannable) (conversation.Message, error) {
	var m conversation.Message
	var role string
	var toolCalls []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.SessionID, &role, &m.Content, &m.ToolCallID, &m.ToolName, &toolCalls, &m.CreatedAt)
	m.Role = conversation.Role(role)
	if toolCalls != nil {
		m.ToolCalls = toolCalls
	}
	return m, err
}
