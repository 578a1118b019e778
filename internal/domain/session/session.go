// Package session defines the EditSession entity: one unit of model-driven
// work within a conversation, triggered by a single user instruction.
package session

import "time"

// Status represents the current state of an edit session.
// Pending → Running → {Completed, Failed}; terminal states never resurrect.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FailureReason distinguishes why a session failed. Cancelled is a designated
// terminal reason, not a bug condition.
type FailureReason string

const (
	ReasonNone           FailureReason = ""
	ReasonCancelled      FailureReason = "cancelled"
	ReasonPatchConflict  FailureReason = "patch_conflict"
	ReasonProviderError  FailureReason = "provider_error"
	ReasonInfrastructure FailureReason = "infrastructure"
	ReasonMaxTurns       FailureReason = "max_turns"
)

// EditSession is one bounded run of model and tool-call turns. Mutated only
// by the edit session state machine; retained after completion for history.
// ChunkSeq is the sequence number of the last chunk emitted, kept for
// reconnect/replay. ResumeToken is an opaque backend session handle for
// providers that support continuation; preserved across cancellation so a
// later session in the same conversation can continue the backend context.
type EditSession struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Status         Status        `json:"status"`
	FailureReason  FailureReason `json:"failure_reason,omitempty"`
	ResumeToken    string        `json:"resume_token,omitempty"`
	ChunkSeq       int64         `json:"chunk_seq"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
