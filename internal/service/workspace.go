package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/internal/adapter/otel"
	"github.com/pagecraft/pagecraft/internal/adapter/ws"
	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
	"github.com/pagecraft/pagecraft/internal/port/broadcast"
	"github.com/pagecraft/pagecraft/internal/port/database"
	"github.com/pagecraft/pagecraft/internal/port/executor"
	"github.com/pagecraft/pagecraft/internal/port/filestore"
	"github.com/pagecraft/pagecraft/internal/port/messagequeue"
)

// scaffoldIndex is the starter page written into every new workspace so the
// first build has something to work with.
const scaffoldIndex = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>New Site</title>
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <main>
    <h1>New Site</h1>
    <p>Start a conversation to edit this page.</p>
  </main>
</body>
</html>
`

const scaffoldStyles = `body {
  margin: 0;
  font-family: system-ui, sans-serif;
}

main {
  max-width: 48rem;
  margin: 4rem auto;
  padding: 0 1rem;
}
`

// WorkspaceService owns the workspace lifecycle: registration, asynchronous
// provisioning through the queue, review transitions and teardown.
type WorkspaceService struct {
	store   database.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	exec    executor.Provider
	files   filestore.Store
	metrics *otel.Metrics
	cfg     config.Workspace
}

func NewWorkspaceService(
	store database.Store,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	exec executor.Provider,
	files filestore.Store,
	cfg config.Workspace,
) *WorkspaceService {
	return &WorkspaceService{
		store: store,
		queue: queue,
		hub:   hub,
		exec:  exec,
		files: files,
		cfg:   cfg,
	}
}

// SetMetrics wires the metric instruments. Nil leaves metrics disabled.
func (s *WorkspaceService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Create registers a workspace and publishes the setup trigger. Provisioning
// happens asynchronously; the workspace comes back in available_for_setup.
func (s *WorkspaceService) Create(ctx context.Context, req *workspace.CreateRequest) (*workspace.Workspace, error) {
	id := uuid.NewString()
	created, err := s.store.CreateWorkspace(ctx, &workspace.Workspace{
		ID:        id,
		Name:      req.Name,
		UserEmail: req.UserEmail,
		RootPath:  filepath.Join(s.cfg.BaseDir, id),
		Status:    workspace.StatusAvailableForSetup,
	})
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	payload, _ := json.Marshal(messagequeue.WorkspaceSetupPayload{
		WorkspaceID: created.ID,
		UserEmail:   created.UserEmail,
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectWorkspaceSetup, payload); err != nil {
		return nil, fmt.Errorf("publish workspace setup: %w", err)
	}

	slog.Info("workspace registered", "workspace_id", created.ID, "name", created.Name)
	return created, nil
}

func (s *WorkspaceService) Get(ctx context.Context, id string) (*workspace.Workspace, error) {
	return s.store.GetWorkspace(ctx, id)
}

func (s *WorkspaceService) List(ctx context.Context) ([]workspace.Workspace, error) {
	return s.store.ListWorkspaces(ctx)
}

// HandleWorkspaceSetup is the queue handler that provisions a workspace:
// scaffold files, sandbox environment, first build. The opening CAS makes
// duplicate deliveries no-ops; a provisioning failure parks the workspace in
// problem with the failure note.
func (s *WorkspaceService) HandleWorkspaceSetup(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.WorkspaceSetupPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Error("malformed workspace setup payload", "error", err)
		return nil
	}

	wsp, err := s.store.GetWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("setup for unknown workspace", "workspace_id", p.WorkspaceID)
			return nil
		}
		return fmt.Errorf("get workspace: %w", err)
	}

	err = s.store.UpdateWorkspaceStatus(ctx, wsp.ID,
		workspace.StatusAvailableForSetup, workspace.StatusInSetup, "")
	if errors.Is(err, domain.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enter setup: %w", err)
	}
	s.broadcastStatus(ctx, wsp.ID, workspace.StatusInSetup, "")

	if err := s.provision(ctx, wsp); err != nil {
		slog.Error("workspace provisioning failed", "workspace_id", wsp.ID, "error", err)
		s.markProblem(ctx, wsp.ID, workspace.StatusInSetup, err.Error())
		return nil
	}

	err = s.store.UpdateWorkspaceStatus(ctx, wsp.ID,
		workspace.StatusInSetup, workspace.StatusAvailableForConversation, "")
	if err != nil {
		return fmt.Errorf("finish setup: %w", err)
	}
	s.broadcastStatus(ctx, wsp.ID, workspace.StatusAvailableForConversation, "")
	slog.Info("workspace provisioned", "workspace_id", wsp.ID)
	return nil
}

func (s *WorkspaceService) provision(ctx context.Context, wsp *workspace.Workspace) error {
	if err := s.files.WriteFile(ctx, wsp.ID, "index.html", scaffoldIndex); err != nil {
		return fmt.Errorf("scaffold index: %w", err)
	}
	if err := s.files.WriteFile(ctx, wsp.ID, "styles.css", scaffoldStyles); err != nil {
		return fmt.Errorf("scaffold styles: %w", err)
	}

	if err := s.exec.Create(ctx, wsp.ID, wsp.RootPath); err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}
	if err := s.exec.Start(ctx, wsp.ID); err != nil {
		return fmt.Errorf("start sandbox: %w", err)
	}

	if ok, detail := s.build(ctx, wsp.ID); !ok {
		return fmt.Errorf("initial build failed: %s", detail)
	}
	return nil
}

// HandleWorkspaceRebuild is the queue handler for background site rebuilds
// after an edit session lands changes. A failed build is broadcast but does
// not park the workspace; the next session can fix it.
func (s *WorkspaceService) HandleWorkspaceRebuild(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.WorkspaceRebuildPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Error("malformed workspace rebuild payload", "error", err)
		return nil
	}

	wsp, err := s.store.GetWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get workspace: %w", err)
	}
	if wsp.Status.Terminal() {
		return nil
	}

	s.hub.BroadcastEvent(ctx, ws.EventBuildStatus, ws.BuildStatusEvent{
		WorkspaceID: wsp.ID,
		Status:      "started",
	})

	ok, detail := s.build(ctx, wsp.ID)
	status := "succeeded"
	if !ok {
		status = "failed"
		slog.Warn("site rebuild failed", "workspace_id", wsp.ID, "detail", detail)
	}
	s.hub.BroadcastEvent(ctx, ws.EventBuildStatus, ws.BuildStatusEvent{
		WorkspaceID: wsp.ID,
		Status:      status,
	})
	return nil
}

// build runs the configured build command in the sandbox. Returns false with
// a short detail string on any non-success, including timeouts.
func (s *WorkspaceService) build(ctx context.Context, workspaceID string) (bool, string) {
	ctx, span := otel.StartBuildSpan(ctx, workspaceID)
	defer span.End()

	started := time.Now()
	res, err := s.exec.Execute(ctx, workspaceID, s.cfg.BuildCommand, s.cfg.BuildTimeout)
	if s.metrics != nil {
		s.metrics.BuildDuration.Record(ctx, time.Since(started).Seconds())
	}
	if err != nil {
		return false, err.Error()
	}
	if res.TimedOut {
		return false, fmt.Sprintf("build timed out after %s", s.cfg.BuildTimeout)
	}
	if res.ExitCode != 0 {
		return false, fmt.Sprintf("build exited %d: %s", res.ExitCode, tail(res.Stderr, 500))
	}
	return true, ""
}

// StartReview moves the workspace into in_review so the user can inspect the
// built site before merging.
func (s *WorkspaceService) StartReview(ctx context.Context, id string) (*workspace.Workspace, error) {
	return s.transition(ctx, id, workspace.StatusInReview)
}

// BackToEditing returns a workspace under review to the conversation.
func (s *WorkspaceService) BackToEditing(ctx context.Context, id string) (*workspace.Workspace, error) {
	return s.transition(ctx, id, workspace.StatusInConversation)
}

// Merge accepts the reviewed site, finishes the conversation and tears the
// sandbox down. Merged is terminal.
func (s *WorkspaceService) Merge(ctx context.Context, id string) (*workspace.Workspace, error) {
	wsp, err := s.transition(ctx, id, workspace.StatusMerged)
	if err != nil {
		return nil, err
	}

	if err := s.store.FinishConversations(ctx, id); err != nil {
		slog.Error("finish conversations failed", "workspace_id", id, "error", err)
	}
	if err := s.exec.Stop(ctx, id); err != nil {
		slog.Error("stop sandbox failed", "workspace_id", id, "error", err)
	}
	if err := s.exec.Destroy(ctx, id); err != nil {
		slog.Error("destroy sandbox failed", "workspace_id", id, "error", err)
	}
	return wsp, nil
}

// Reset finishes the ongoing conversation and returns the workspace to
// available_for_conversation so a fresh conversation can start.
func (s *WorkspaceService) Reset(ctx context.Context, id string) (*workspace.Workspace, error) {
	wsp, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	if err := s.store.FinishConversations(ctx, id); err != nil {
		return nil, fmt.Errorf("finish conversations: %w", err)
	}
	if wsp.Status == workspace.StatusAvailableForConversation {
		return wsp, nil
	}
	return s.transition(ctx, id, workspace.StatusAvailableForConversation)
}

// transition performs a guarded CAS from the workspace's current status.
func (s *WorkspaceService) transition(ctx context.Context, id string, to workspace.Status) (*workspace.Workspace, error) {
	wsp, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	if !wsp.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("workspace %s cannot move from %s to %s: %w",
			id, wsp.Status, to, domain.ErrConflict)
	}

	if err := s.store.UpdateWorkspaceStatus(ctx, id, wsp.Status, to, ""); err != nil {
		return nil, fmt.Errorf("transition workspace: %w", err)
	}
	s.broadcastStatus(ctx, id, to, "")
	return s.store.GetWorkspace(ctx, id)
}

// markProblem parks the workspace in problem with a failure note.
func (s *WorkspaceService) markProblem(ctx context.Context, id string, from workspace.Status, detail string) {
	err := s.store.UpdateWorkspaceStatus(ctx, id, from, workspace.StatusProblem, detail)
	if err != nil {
		slog.Error("mark workspace problem failed", "workspace_id", id, "error", err)
		return
	}
	s.broadcastStatus(ctx, id, workspace.StatusProblem, detail)
}

func (s *WorkspaceService) broadcastStatus(ctx context.Context, id string, status workspace.Status, note string) {
	s.hub.BroadcastEvent(ctx, ws.EventWorkspaceStatus, ws.WorkspaceStatusEvent{
		WorkspaceID: id,
		Status:      string(status),
		FailureNote: note,
	})
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
