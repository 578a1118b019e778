// Package stream defines the typed chunk sequence delivered to live clients
// during an edit session. Chunks are append-only, delivered in emission
// order, and every session's sequence ends with exactly one done chunk.
package stream

import (
	"github.com/pagecraft/pagecraft/internal/domain/conversation"
)

// ChunkType tags the variants of the chunk union.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkEvent    ChunkType = "event"
	ChunkMessage  ChunkType = "message"
	ChunkProgress ChunkType = "progress"
	ChunkDone     ChunkType = "done"
)

// ToolEvent describes a tool invocation observed in the model stream. It is
// surfaced before any message chunk that depends on its outcome.
type ToolEvent struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Data   map[string]any `json:"data,omitempty"`
}

// Progress is an advisory ratio/label pair. It may be dropped under
// backpressure without affecting correctness.
type Progress struct {
	Ratio float64 `json:"ratio"`
	Label string  `json:"label"`
}

// Done is the terminal marker carrying the session's final status.
type Done struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Chunk is the tagged union over the five variants. Exactly one payload
// field is set, matching Type. Seq is assigned at emission time and is
// strictly increasing within a session.
type Chunk struct {
	Type     ChunkType             `json:"type"`
	Seq      int64                 `json:"seq"`
	Text     string                `json:"text,omitempty"`
	Event    *ToolEvent            `json:"event,omitempty"`
	Message  *conversation.Message `json:"message,omitempty"`
	Progress *Progress             `json:"progress,omitempty"`
	Done     *Done                 `json:"done,omitempty"`
}

// NewText wraps a literal text delta.
func NewText(delta string) Chunk {
	return Chunk{Type: ChunkText, Text: delta}
}

// NewEvent wraps a named tool event.
func NewEvent(ev ToolEvent) Chunk {
	return Chunk{Type: ChunkEvent, Event: &ev}
}

// NewMessage wraps a finalized conversation message.
func NewMessage(msg *conversation.Message) Chunk {
	return Chunk{Type: ChunkMessage, Message: msg}
}

// NewProgress wraps an advisory progress update.
func NewProgress(ratio float64, label string) Chunk {
	return Chunk{Type: ChunkProgress, Progress: &Progress{Ratio: ratio, Label: label}}
}

// NewDone wraps the terminal marker.
func NewDone(status, reason string) Chunk {
	return Chunk{Type: ChunkDone, Done: &Done{Status: status, Reason: reason}}
}
