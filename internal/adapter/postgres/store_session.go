package postgres

import (
	"context"
	"fmt"

	"github.com/pagecraft/pagecraft/internal/domain/session"
)

const sessionColumns = `id, conversation_id, status, failure_reason, resume_token, chunk_seq, started_at, completed_at, created_at, updated_at`

func (s *Store) CreateSession(ctx context.Context, es *session.EditSession) (*session.EditSession, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO edit_sessions (conversation_id, status)
		 VALUES ($1, $2)
		 RETURNING `+sessionColumns,
		es.ConversationID, string(es.Status))

	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &created, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.EditSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM edit_sessions WHERE id = $1`, id)

	es, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &es, nil
}

func (s *Store) ListSessions(ctx context.Context, conversationID string) ([]session.EditSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM edit_sessions
		 WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.EditSession
	for rows.Next() {
		es, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, es)
	}
	return sessions, rows.Err()
}

// ClaimSession atomically moves a pending session to running. The NOT EXISTS
// guard refuses the claim while a sibling session of the same conversation is
// still running, so at most one session per conversation executes at a time.
// Zero rows affected means the claim was lost, which is not an error: the
// caller acks the duplicate trigger and moves on.
func (s *Store) ClaimSession(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE edit_sessions SET status = 'running', started_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		   AND NOT EXISTS (
		     SELECT 1 FROM edit_sessions sibling
		     WHERE sibling.conversation_id = edit_sessions.conversation_id
		       AND sibling.id <> edit_sessions.id
		       AND sibling.status = 'running'
		   )`, id)
	if err != nil {
		return false, fmt.Errorf("claim session %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteSession moves a running session to a terminal status. The status
// guard keeps terminal states immutable under racing completions.
func (s *Store) CompleteSession(ctx context.Context, id string, status session.Status, reason session.FailureReason) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE edit_sessions SET status = $2, failure_reason = $3, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'running'`,
		id, string(status), string(reason))
	if err != nil {
		return fmt.Errorf("complete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete session %s: not running", id)
	}
	return nil
}

// RequestSessionCancel raises the persisted cancel flag. Terminal sessions
// are left alone; the request is then a no-op by definition.
func (s *Store) RequestSessionCancel(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE edit_sessions SET cancel_requested = TRUE, updated_at = now()
		 WHERE id = $1 AND status IN ('pending', 'running')`, id)
	if err != nil {
		return fmt.Errorf("request session cancel %s: %w", id, err)
	}
	return nil
}

func (s *Store) SessionCancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM edit_sessions WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		return false, notFoundWrap(err, "session cancel flag %s", id)
	}
	return requested, nil
}

func (s *Store) SetSessionResumeToken(ctx context.Context, id, token string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE edit_sessions SET resume_token = $2, updated_at = now() WHERE id = $1`,
		id, token)
	if err != nil {
		return fmt.Errorf("set session resume token %s: %w", id, err)
	}
	return nil
}

func scanSession(row scannable) (session.EditSession, error) {
	var es session.EditSession
	var status, reason string
	err := row.Scan(&es.ID, &es.ConversationID, &status, &reason, &es.ResumeToken,
		&es.ChunkSeq, &es.StartedAt, &es.CompletedAt, &es.CreatedAt, &es.UpdatedAt)
	es.Status = session.Status(status)
	es.FailureReason = session.FailureReason(reason)
	return es, err
}
