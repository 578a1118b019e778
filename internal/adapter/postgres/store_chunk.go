package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagecraft/pagecraft/internal/domain/stream"
)

// AppendChunk assigns the next sequence number for the session and stores
// the chunk under it. Sequence assignment and insert run in one transaction
// so concurrent appends never produce gaps or duplicates.
func (s *Store) AppendChunk(ctx context.Context, sessionID string, chunk stream.Chunk) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var seq int64
	err = tx.QueryRow(ctx,
		`UPDATE edit_sessions SET chunk_seq = chunk_seq + 1, updated_at = now()
		 WHERE id = $1 RETURNING chunk_seq`, sessionID).Scan(&seq)
	if err != nil {
		return 0, notFoundWrap(err, "next chunk seq for session %s", sessionID)
	}

	chunk.Seq = seq
	data, err := json.Marshal(chunk)
	if err != nil {
		return 0, fmt.Errorf("marshal chunk: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO session_chunks (session_id, seq, chunk) VALUES ($1, $2, $3)`,
		sessionID, seq, data); err != nil {
		return 0, fmt.Errorf("insert chunk %s/%d: %w", sessionID, seq, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit chunk: %w", err)
	}
	return seq, nil
}

// RewriteChunkText replaces the text payload of one persisted text chunk.
// Guarded by chunk type so event and message chunks are never touched.
func (s *Store) RewriteChunkText(ctx context.Context, sessionID string, seq int64, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE session_chunks
		 SET chunk = jsonb_set(chunk, '{text}', to_jsonb($3::text))
		 WHERE session_id = $1 AND seq = $2 AND chunk->>'type' = 'text'`,
		sessionID, seq, text)
	if err != nil {
		return fmt.Errorf("rewrite chunk %s/%d: %w", sessionID, seq, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rewrite chunk %s/%d: no such text chunk", sessionID, seq)
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context, sessionID string, afterSeq int64) ([]stream.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk FROM session_chunks
		 WHERE session_id = $1 AND seq > $2 ORDER BY seq ASC`, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []stream.Chunk
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		var c stream.Chunk
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
