// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrWorkspaceNotReady indicates a session was dispatched against a workspace
// that is not in a conversation-ready state. Surfaced to the trigger layer,
// never recorded as a session failure.
var ErrWorkspaceNotReady = errors.New("workspace not ready for conversation")

// ErrInfrastructure indicates the sandboxed execution provider itself failed
// (unreachable, cannot spawn). Fatal to the session, not to the process.
var ErrInfrastructure = errors.New("execution infrastructure error")
