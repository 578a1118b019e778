// Package executor defines the sandboxed command execution port. The engine
// calls only Execute with a timeout and trusts the provider for isolation
// and resource caps, which are fixed at environment creation time.
package executor

import (
	"context"
	"time"
)

// Result is the outcome of one sandboxed command. Non-zero exit codes are
// data for the model loop, not errors; only infrastructure failures surface
// as a hard error from Execute. On timeout the partial output captured so
// far is still returned.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Provider manages isolated execution environments and runs commands in
// them. An environment is keyed by workspace ID; one environment per
// workspace, created during workspace setup.
type Provider interface {
	// Create provisions an environment with resource caps, mounting the
	// workspace root. The caps cannot be changed per call afterwards.
	Create(ctx context.Context, workspaceID, rootPath string) error

	// Start brings a created environment up.
	Start(ctx context.Context, workspaceID string) error

	// Execute runs command inside the environment with a hard timeout. When
	// the timeout elapses the process tree is forcibly terminated, the
	// result carries TimedOut=true, and captured output is preserved.
	// Infrastructure failures wrap domain.ErrInfrastructure.
	Execute(ctx context.Context, workspaceID, command string, timeout time.Duration) (*Result, error)

	// Stop halts the environment without destroying it.
	Stop(ctx context.Context, workspaceID string) error

	// Destroy removes the environment entirely.
	Destroy(ctx context.Context, workspaceID string) error

	// Status reports the environment's current state.
	Status(ctx context.Context, workspaceID string) (string, error)
}
