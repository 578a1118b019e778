// Package messagequeue defines the trigger queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue. Delivery is
// at-least-once: handlers must be idempotent against duplicates, re-checking
// current entity status before acting. A returned error naks the message for
// redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the trigger subjects used by pagecraft.
const (
	SubjectSessionStart     = "sessions.start"     // start an edit session run
	SubjectSessionCancel    = "sessions.cancel"    // request cancellation of a running session
	SubjectWorkspaceSetup   = "workspaces.setup"   // provision a workspace
	SubjectWorkspaceRebuild = "workspaces.rebuild" // rebuild the static site
)

// SessionStartPayload triggers one edit session run.
type SessionStartPayload struct {
	SessionID string `json:"session_id"`
}

// SessionCancelPayload requests cancellation of a running session.
type SessionCancelPayload struct {
	SessionID string `json:"session_id"`
}

// WorkspaceSetupPayload triggers asynchronous workspace provisioning.
type WorkspaceSetupPayload struct {
	WorkspaceID string `json:"workspace_id"`
	UserEmail   string `json:"user_email"`
}

// WorkspaceRebuildPayload triggers a background static site rebuild.
type WorkspaceRebuildPayload struct {
	WorkspaceID string `json:"workspace_id"`
	SessionID   string `json:"session_id,omitempty"`
}
