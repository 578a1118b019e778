// Package database defines the persistence port for pagecraft entities.
// Services mutate in-memory state and persist at transition points through
// this interface; no implicit flush semantics.
package database

import (
	"context"

	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/session"
	"github.com/pagecraft/pagecraft/internal/domain/stream"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
)

// Store is the persistence port.
type Store interface {
	// Workspaces
	CreateWorkspace(ctx context.Context, w *workspace.Workspace) (*workspace.Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]workspace.Workspace, error)
	// UpdateWorkspaceStatus moves a workspace from one status to another
	// atomically. It returns domain.ErrConflict when the workspace is no
	// longer in the expected status, which is how duplicate queue
	// deliveries detect they already ran.
	UpdateWorkspaceStatus(ctx context.Context, id string, from, to workspace.Status, failureNote string) error

	// Conversations
	CreateConversation(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error)
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
	// GetOngoingConversation returns the single ongoing conversation for a
	// workspace, or domain.ErrNotFound.
	GetOngoingConversation(ctx context.Context, workspaceID string) (*conversation.Conversation, error)
	// FinishConversations marks every ongoing conversation of the workspace
	// finished. Used on workspace reset/teardown.
	FinishConversations(ctx context.Context, workspaceID string) error

	// Messages (append-only)
	CreateMessage(ctx context.Context, m *conversation.Message) (*conversation.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)

	// Edit sessions
	CreateSession(ctx context.Context, s *session.EditSession) (*session.EditSession, error)
	GetSession(ctx context.Context, id string) (*session.EditSession, error)
	ListSessions(ctx context.Context, conversationID string) ([]session.EditSession, error)
	// ClaimSession atomically moves a pending session to running, refusing
	// when a sibling session of the same conversation is already running.
	// Returns false without error when the claim is lost (already claimed,
	// terminal, or sibling running) so handlers stay idempotent.
	ClaimSession(ctx context.Context, id string) (bool, error)
	// CompleteSession moves a running session to a terminal status.
	CompleteSession(ctx context.Context, id string, status session.Status, reason session.FailureReason) error
	SetSessionResumeToken(ctx context.Context, id, token string) error
	// RequestSessionCancel persists a cancellation request. The flag lives in
	// the store rather than process memory so the worker running the session
	// observes it regardless of which process consumed the cancel trigger.
	RequestSessionCancel(ctx context.Context, id string) error
	SessionCancelRequested(ctx context.Context, id string) (bool, error)

	// Chunk log (for reconnect/replay). Append-only except for
	// RewriteChunkText, which scrubs note-to-self spans out of already
	// persisted text chunks so replay never shows them.
	// AppendChunk assigns and returns the next sequence number.
	AppendChunk(ctx context.Context, sessionID string, chunk stream.Chunk) (int64, error)
	ListChunks(ctx context.Context, sessionID string, afterSeq int64) ([]stream.Chunk, error)
	RewriteChunkText(ctx context.Context, sessionID string, seq int64, text string) error
}
