// Package docker implements the executor port using Docker containers
// driven through the docker CLI. One long-lived container per workspace
// keeps `docker exec` cheap for the command loop.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/port/executor"
)

// Provider manages one Docker container per workspace. The in-memory
// registry is an exec-path shortcut only: container names are
// deterministic, so a registry miss falls back to resolving the container
// by name and workspaces provisioned before a process restart keep their
// sandbox.
type Provider struct {
	cfg config.Sandbox
	run func(ctx context.Context, args ...string) (string, error)

	mu         sync.Mutex
	containers map[string]string // workspaceID -> container ID
}

// New creates a Provider with the given sandbox limits.
func New(cfg config.Sandbox) *Provider {
	return &Provider{
		cfg:        cfg,
		run:        runDocker,
		containers: make(map[string]string),
	}
}

// Create provisions the workspace container: resource caps, workspace
// mounted read-write at /workspace, no network by default. The container
// idles on sleep so Execute can docker-exec into it.
func (p *Provider) Create(ctx context.Context, workspaceID, rootPath string) error {
	args := createArgs(p.cfg, workspaceID, rootPath)

	output, err := p.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("sandbox create for workspace %s: %w: %w", workspaceID, domain.ErrInfrastructure, err)
	}

	p.mu.Lock()
	p.containers[workspaceID] = strings.TrimSpace(output)
	p.mu.Unlock()
	return nil
}

// createArgs builds the docker create invocation for a workspace container.
func createArgs(cfg config.Sandbox, workspaceID, rootPath string) []string {
	args := []string{
		"create",
		"--name", containerName(workspaceID),
		fmt.Sprintf("--memory=%dm", cfg.MemoryMB),
		fmt.Sprintf("--cpus=%d", cfg.CPUQuota/1000),
		fmt.Sprintf("--pids-limit=%d", cfg.PidsLimit),
	}
	if cfg.NetworkMode != "" {
		args = append(args, fmt.Sprintf("--network=%s", cfg.NetworkMode))
	}
	args = append(args,
		"-v", fmt.Sprintf("%s:/workspace", rootPath),
		"--tmpfs", "/tmp",
		"--security-opt=no-new-privileges",
		"--cap-drop=ALL",
		cfg.Image,
		"sleep", "infinity",
	)
	return args
}

// Start brings a created container up.
func (p *Provider) Start(ctx context.Context, workspaceID string) error {
	id, err := p.container(ctx, workspaceID)
	if err != nil {
		return err
	}
	if _, err := p.run(ctx, "start", id); err != nil {
		return fmt.Errorf("sandbox start for workspace %s: %w: %w", workspaceID, domain.ErrInfrastructure, err)
	}
	return nil
}

// Execute runs command through `sh -c` inside the workspace container with
// a hard timeout. A non-zero exit code is returned in the Result, not as an
// error. On timeout the context kills the docker exec process and the
// output captured so far is preserved.
func (p *Provider) Execute(ctx context.Context, workspaceID, command string, timeout time.Duration) (*executor.Result, error) {
	id, err := p.container(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "docker", "exec", "-w", "/workspace", id, "sh", "-c", command) //nolint:gosec // G204: docker args are constructed internally
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	result := &executor.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	switch {
	case execCtx.Err() != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
	case runErr == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// docker itself could not run (daemon down, binary missing).
			return nil, fmt.Errorf("sandbox exec for workspace %s: %w: %w", workspaceID, domain.ErrInfrastructure, runErr)
		}
	}
	return result, nil
}

// Stop halts the container without destroying it.
func (p *Provider) Stop(ctx context.Context, workspaceID string) error {
	id, err := p.container(ctx, workspaceID)
	if err != nil {
		return err
	}
	if _, err := p.run(ctx, "stop", "-t", "10", id); err != nil {
		return fmt.Errorf("sandbox stop for workspace %s: %w: %w", workspaceID, domain.ErrInfrastructure, err)
	}
	return nil
}

// Destroy removes the container entirely. Destroying an unknown workspace
// is a no-op so teardown stays idempotent.
func (p *Provider) Destroy(ctx context.Context, workspaceID string) error {
	id, err := p.container(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	if _, err := p.run(ctx, "rm", "-f", id); err != nil {
		return fmt.Errorf("sandbox destroy for workspace %s: %w: %w", workspaceID, domain.ErrInfrastructure, err)
	}

	p.mu.Lock()
	delete(p.containers, workspaceID)
	p.mu.Unlock()
	return nil
}

// Status reports the container state as docker sees it.
func (p *Provider) Status(ctx context.Context, workspaceID string) (string, error) {
	id, err := p.container(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	out, err := p.run(ctx, "inspect", "--format", "{{.State.Status}}", id)
	if err != nil {
		return "", fmt.Errorf("sandbox status for workspace %s: %w: %w", workspaceID, domain.ErrInfrastructure, err)
	}
	return strings.TrimSpace(out), nil
}

// container returns the container ID for a workspace. On a registry miss it
// resolves by the deterministic container name, so sandboxes provisioned
// by a previous process incarnation are found again.
func (p *Provider) container(ctx context.Context, workspaceID string) (string, error) {
	p.mu.Lock()
	id, ok := p.containers[workspaceID]
	p.mu.Unlock()
	if ok {
		return id, nil
	}

	out, err := p.run(ctx, "inspect", "--format", "{{.Id}}", containerName(workspaceID))
	if err != nil {
		return "", fmt.Errorf("no sandbox for workspace %s: %w", workspaceID, domain.ErrNotFound)
	}
	id = strings.TrimSpace(out)

	p.mu.Lock()
	p.containers[workspaceID] = id
	p.mu.Unlock()
	return id, nil
}

func containerName(workspaceID string) string {
	return "pagecraft-ws-" + shortID(workspaceID)
}

// shortID returns the first 12 characters of an ID.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// runDocker executes a docker command and returns stdout.
func runDocker(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...) //nolint:gosec // G204: docker args are constructed internally

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
