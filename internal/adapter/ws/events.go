package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pagecraft/pagecraft/internal/domain/stream"
)

// Event type constants for WebSocket messages.
const (
	EventSessionChunk    = "session.chunk"
	EventSessionStatus   = "session.status"
	EventWorkspaceStatus = "workspace.status"
	EventBuildStatus     = "workspace.build"
	EventFileEdited      = "workspace.file_edited"
)

// SessionChunkEvent carries one stream chunk of a running edit session.
type SessionChunkEvent struct {
	SessionID string       `json:"session_id"`
	Chunk     stream.Chunk `json:"chunk"`
}

// SessionScope marks the event as scoped to one session for delivery.
func (e SessionChunkEvent) SessionScope() string { return e.SessionID }

// SessionStatusEvent is broadcast when an edit session changes status.
type SessionStatusEvent struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// WorkspaceStatusEvent is broadcast when a workspace changes status.
type WorkspaceStatusEvent struct {
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"`
	FailureNote string `json:"failure_note,omitempty"`
}

// BuildStatusEvent is broadcast around static site rebuilds.
type BuildStatusEvent struct {
	WorkspaceID string `json:"workspace_id"`
	Status      string `json:"status"` // "started", "succeeded", "failed"
}

// FileEditedEvent is broadcast after a patch lands in a workspace file.
type FileEditedEvent struct {
	WorkspaceID  string `json:"workspace_id"`
	SessionID    string `json:"session_id"`
	Path         string `json:"path"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// sessionScoped is implemented by event payloads tied to one session.
type sessionScoped interface {
	SessionScope() string
}

// BroadcastEvent marshals a typed event and broadcasts it. Payloads that
// report a session scope are delivered only to connections watching that
// session.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	sessionID := ""
	if scoped, ok := payload.(sessionScoped); ok {
		sessionID = scoped.SessionScope()
	}

	h.Broadcast(ctx, sessionID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
