// Package conversation defines the Conversation and Message entities: the
// persistent chat thread tied to one workspace and its append-only exchange
// units.
package conversation

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle of a conversation.
type Status string

const (
	StatusOngoing  Status = "ongoing"
	StatusFinished Status = "finished"
)

// Conversation is a user-scoped dialogue tied to one workspace. At most one
// conversation per workspace is Ongoing at a time; resetting or tearing down
// the workspace finishes it. Finished conversations are immutable.
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	UserEmail   string    `json:"user_email"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role identifies who (or what) produced a message.
type Role string

const (
	RoleUser Role = "user"
	// RoleAssistant is the model's user-visible reply text.
	RoleAssistant Role = "assistant"
	// RoleAssistantNote holds text extracted by the note filter. Never
	// rendered to the end user; fed back to the model as its own memory.
	RoleAssistantNote Role = "assistant_note"
	// RoleToolCall and RoleToolCallResult pair a tool invocation with its
	// outcome and always appear adjacently in sequence order.
	RoleToolCall       Role = "tool_call"
	RoleToolCallResult Role = "tool_call_result"
)

// Message is one exchange unit inside a conversation. Append-only, written
// by the edit session engine, immutable after creation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SessionID      string          `json:"session_id,omitempty"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolCalls      json.RawMessage `json:"tool_calls,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SendMessageRequest is the request body for submitting a user instruction.
type SendMessageRequest struct {
	Content string `json:"content"`
}
