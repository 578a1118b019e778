// Package provider defines the LLM/agent provider port. The engine consumes
// the provider's raw event stream; prompt construction, model selection and
// token accounting live on the other side of this boundary.
package provider

import (
	"context"
	"encoding/json"
)

// EventType tags the provider-native events the engine consumes.
type EventType string

const (
	// EventTextDelta carries one literal text fragment of the reply.
	EventTextDelta EventType = "text_delta"
	// EventToolCall carries one fully-assembled tool invocation.
	EventToolCall EventType = "tool_call"
	// EventMessageEnd marks the end of one model turn.
	EventMessageEnd EventType = "message_end"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Event is one raw stream event. Exactly the fields for its Type are set.
type Event struct {
	Type  EventType
	Delta string
	Tool  *ToolCall
	// FinishReason is set on EventMessageEnd: "stop" when the model is done,
	// "tool_calls" when it expects tool results before continuing.
	FinishReason string
	// ResumeToken is an opaque backend session handle, present on
	// EventMessageEnd for backends that support continuation.
	ResumeToken string
}

// Stream is a single-pass, forward-only raw event stream. Recv returns
// io.EOF after the final event; a new provider call is required to
// regenerate the stream.
type Stream interface {
	Recv() (*Event, error)
	Close() error
}

// ChatMessage is one history entry sent to the provider.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

// ToolDefinition describes one tool offered to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is one model call: full conversation history plus the available
// tool definitions, optionally continuing a prior backend session.
type Request struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	ResumeToken string
}

// Client is the port interface for opening a model stream.
type Client interface {
	Stream(ctx context.Context, req *Request) (Stream, error)
}
