package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pagecraft/pagecraft/internal/adapter/ws"
	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
	"github.com/pagecraft/pagecraft/internal/port/executor"
	"github.com/pagecraft/pagecraft/internal/port/messagequeue"
)

type workspaceFixture struct {
	svc   *WorkspaceService
	store *mockStore
	queue *mockQueue
	hub   *mockHub
	exec  *fakeExecutor
	files *fakeFiles
}

func newWorkspaceFixture(t *testing.T) *workspaceFixture {
	t.Helper()
	f := &workspaceFixture{
		store: &mockStore{},
		queue: &mockQueue{},
		hub:   &mockHub{},
		exec:  &fakeExecutor{},
		files: newFakeFiles(),
	}
	f.svc = NewWorkspaceService(f.store, f.queue, f.hub, f.exec, f.files,
		config.Workspace{
			BaseDir:      t.TempDir(),
			BuildCommand: "npm run build",
			BuildTimeout: time.Minute,
		})
	return f
}

func (f *workspaceFixture) seed(t *testing.T, status workspace.Status) *workspace.Workspace {
	t.Helper()
	wsp, err := f.store.CreateWorkspace(context.Background(), &workspace.Workspace{
		Name:      "my-site",
		UserEmail: "owner@example.com",
		Status:    status,
	})
	if err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	return wsp
}

func setupPayload(t *testing.T, workspaceID string) []byte {
	t.Helper()
	data, err := json.Marshal(messagequeue.WorkspaceSetupPayload{WorkspaceID: workspaceID})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestCreatePublishesSetupTrigger(t *testing.T) {
	f := newWorkspaceFixture(t)

	wsp, err := f.svc.Create(context.Background(), &workspace.CreateRequest{
		Name:      "my-site",
		UserEmail: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsp.Status != workspace.StatusAvailableForSetup {
		t.Fatalf("status = %q, want available_for_setup", wsp.Status)
	}
	if wsp.ID == "" || !strings.Contains(wsp.RootPath, wsp.ID) {
		t.Fatalf("root path %q does not embed workspace ID %q", wsp.RootPath, wsp.ID)
	}

	subjects := f.queue.subjects()
	if len(subjects) != 1 || subjects[0] != messagequeue.SubjectWorkspaceSetup {
		t.Fatalf("subjects = %v, want [%s]", subjects, messagequeue.SubjectWorkspaceSetup)
	}
}

func TestHandleSetupProvisionsWorkspace(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusAvailableForSetup)
	ctx := context.Background()

	if err := f.svc.HandleWorkspaceSetup(ctx, messagequeue.SubjectWorkspaceSetup, setupPayload(t, wsp.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.store.GetWorkspace(ctx, wsp.ID)
	if got.Status != workspace.StatusAvailableForConversation {
		t.Fatalf("status = %q (%q), want available_for_conversation", got.Status, got.FailureNote)
	}
	if _, err := f.files.ReadFile(ctx, wsp.ID, "index.html"); err != nil {
		t.Fatalf("scaffold missing: %v", err)
	}
	if len(f.exec.created) != 1 || len(f.exec.started) != 1 {
		t.Fatalf("sandbox created=%v started=%v, want one each", f.exec.created, f.exec.started)
	}
	if len(f.exec.commands) != 1 || f.exec.commands[0] != "npm run build" {
		t.Fatalf("build commands = %v", f.exec.commands)
	}
}

func TestHandleSetupDuplicateAcks(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusAvailableForConversation)

	if err := f.svc.HandleWorkspaceSetup(context.Background(), messagequeue.SubjectWorkspaceSetup, setupPayload(t, wsp.ID)); err != nil {
		t.Fatalf("duplicate delivery should ack, got %v", err)
	}
	if len(f.exec.created) != 0 {
		t.Fatalf("sandbox recreated on duplicate delivery: %v", f.exec.created)
	}
}

func TestHandleSetupBuildFailureMarksProblem(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusAvailableForSetup)
	f.exec.results = []*executor.Result{
		{ExitCode: 1, Stderr: "missing dependency"},
	}
	ctx := context.Background()

	if err := f.svc.HandleWorkspaceSetup(ctx, messagequeue.SubjectWorkspaceSetup, setupPayload(t, wsp.ID)); err != nil {
		t.Fatalf("setup failure should still ack, got %v", err)
	}

	got, _ := f.store.GetWorkspace(ctx, wsp.ID)
	if got.Status != workspace.StatusProblem {
		t.Fatalf("status = %q, want problem", got.Status)
	}
	if !strings.Contains(got.FailureNote, "missing dependency") {
		t.Fatalf("failure note %q does not carry build output", got.FailureNote)
	}
}

func TestHandleRebuildBroadcastsOutcome(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusInConversation)
	payload, _ := json.Marshal(messagequeue.WorkspaceRebuildPayload{WorkspaceID: wsp.ID})

	if err := f.svc.HandleWorkspaceRebuild(context.Background(), messagequeue.SubjectWorkspaceRebuild, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var statuses []string
	for _, e := range f.hub.events {
		if e.eventType == ws.EventBuildStatus {
			statuses = append(statuses, e.payload.(ws.BuildStatusEvent).Status)
		}
	}
	if len(statuses) != 2 || statuses[0] != "started" || statuses[1] != "succeeded" {
		t.Fatalf("build statuses = %v, want [started succeeded]", statuses)
	}
}

func TestHandleRebuildFailureDoesNotParkWorkspace(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusInConversation)
	f.exec.results = []*executor.Result{
		{ExitCode: 1, Stderr: "syntax error"},
	}
	payload, _ := json.Marshal(messagequeue.WorkspaceRebuildPayload{WorkspaceID: wsp.ID})
	ctx := context.Background()

	if err := f.svc.HandleWorkspaceRebuild(ctx, messagequeue.SubjectWorkspaceRebuild, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.store.GetWorkspace(ctx, wsp.ID)
	if got.Status != workspace.StatusInConversation {
		t.Fatalf("status = %q, rebuild failure must not change it", got.Status)
	}
	var last string
	for _, e := range f.hub.events {
		if e.eventType == ws.EventBuildStatus {
			last = e.payload.(ws.BuildStatusEvent).Status
		}
	}
	if last != "failed" {
		t.Fatalf("last build status = %q, want failed", last)
	}
}

func TestMergeFinishesConversationAndTearsDown(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusInReview)
	ctx := context.Background()
	if _, err := f.store.CreateConversation(ctx, &conversation.Conversation{WorkspaceID: wsp.ID}); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := f.svc.Merge(ctx, wsp.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != workspace.StatusMerged {
		t.Fatalf("status = %q, want merged", got.Status)
	}
	conv, _ := f.store.GetOngoingConversation(ctx, wsp.ID)
	if conv != nil {
		t.Fatal("conversation still ongoing after merge")
	}
	if len(f.exec.destroyed) != 1 {
		t.Fatalf("destroyed = %v, want the sandbox gone", f.exec.destroyed)
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusMerged)

	_, err := f.svc.StartReview(context.Background(), wsp.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestResetReturnsWorkspaceToAvailable(t *testing.T) {
	f := newWorkspaceFixture(t)
	wsp := f.seed(t, workspace.StatusInConversation)
	ctx := context.Background()
	if _, err := f.store.CreateConversation(ctx, &conversation.Conversation{WorkspaceID: wsp.ID}); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := f.svc.Reset(ctx, wsp.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != workspace.StatusAvailableForConversation {
		t.Fatalf("status = %q, want available_for_conversation", got.Status)
	}
	if conv, _ := f.store.GetOngoingConversation(ctx, wsp.ID); conv != nil {
		t.Fatal("conversation still ongoing after reset")
	}
}
