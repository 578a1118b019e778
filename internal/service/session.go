package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagecraft/pagecraft/internal/adapter/otel"
	"github.com/pagecraft/pagecraft/internal/adapter/ws"
	"github.com/pagecraft/pagecraft/internal/config"
	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/note"
	"github.com/pagecraft/pagecraft/internal/domain/patch"
	"github.com/pagecraft/pagecraft/internal/domain/session"
	"github.com/pagecraft/pagecraft/internal/domain/stream"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
	"github.com/pagecraft/pagecraft/internal/port/broadcast"
	"github.com/pagecraft/pagecraft/internal/port/database"
	"github.com/pagecraft/pagecraft/internal/port/executor"
	"github.com/pagecraft/pagecraft/internal/port/filestore"
	"github.com/pagecraft/pagecraft/internal/port/messagequeue"
	"github.com/pagecraft/pagecraft/internal/port/provider"
)

const systemPrompt = `You are a website editing assistant working inside a user's site workspace.
You receive instructions in chat and change the site by calling tools.
Use apply_patch to edit files and run_command to inspect the workspace or run builds.
When you are done, reply with a short summary for the user.
You may leave a private note for your future self by ending your reply with
[NOTE TO SELF: ...]; the user never sees it.`

// EditSessionService runs the edit session state machine: it accepts user
// instructions, persists a pending session, and drives the model/tool loop
// when the queue trigger arrives. All mutations go through the store at
// transition points; the queue handler is idempotent against redelivery.
type EditSessionService struct {
	store   database.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	llm     provider.Client
	exec    executor.Provider
	files   filestore.Store
	metrics *otel.Metrics
	cfg     config.Session
	model   string
}

func NewEditSessionService(
	store database.Store,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	llm provider.Client,
	exec executor.Provider,
	files filestore.Store,
	cfg config.Session,
	model string,
) *EditSessionService {
	return &EditSessionService{
		store: store,
		queue: queue,
		hub:   hub,
		llm:   llm,
		exec:  exec,
		files: files,
		cfg:   cfg,
		model: model,
	}
}

// SetMetrics wires the metric instruments. Nil leaves metrics disabled.
func (s *EditSessionService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Start records the user instruction, creates a pending session and publishes
// the start trigger. The session runs asynchronously; callers get the pending
// session back immediately.
func (s *EditSessionService) Start(ctx context.Context, conversationID, content string) (*session.EditSession, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.Status != conversation.StatusOngoing {
		return nil, fmt.Errorf("conversation %s is finished: %w", conversationID, domain.ErrConflict)
	}

	wsp, err := s.store.GetWorkspace(ctx, conv.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	if !wsp.Status.ConversationReady() {
		return nil, fmt.Errorf("workspace %s is %s: %w", wsp.ID, wsp.Status, domain.ErrWorkspaceNotReady)
	}

	if _, err := s.store.CreateMessage(ctx, &conversation.Message{
		ConversationID: conversationID,
		Role:           conversation.RoleUser,
		Content:        content,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	sess, err := s.store.CreateSession(ctx, &session.EditSession{
		ConversationID: conversationID,
		Status:         session.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	payload, _ := json.Marshal(messagequeue.SessionStartPayload{SessionID: sess.ID})
	if err := s.queue.Publish(ctx, messagequeue.SubjectSessionStart, payload); err != nil {
		return nil, fmt.Errorf("publish session start: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1)
	}
	slog.Info("edit session queued", "session_id", sess.ID, "conversation_id", conversationID)
	return sess, nil
}

// Get returns one session by ID.
func (s *EditSessionService) Get(ctx context.Context, sessionID string) (*session.EditSession, error) {
	return s.store.GetSession(ctx, sessionID)
}

// Chunks returns the persisted chunk log of a session after the given
// sequence number, for reconnect and polling clients.
func (s *EditSessionService) Chunks(ctx context.Context, sessionID string, afterSeq int64) ([]stream.Chunk, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s.store.ListChunks(ctx, sessionID, afterSeq)
}

// Cancel requests cancellation of a session. Idempotent; cancelling a
// terminal session is a no-op.
func (s *EditSessionService) Cancel(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess.Status.Terminal() {
		return nil
	}

	payload, _ := json.Marshal(messagequeue.SessionCancelPayload{SessionID: sessionID})
	if err := s.queue.Publish(ctx, messagequeue.SubjectSessionCancel, payload); err != nil {
		return fmt.Errorf("publish session cancel: %w", err)
	}
	return nil
}

// HandleSessionCancel is the queue handler for cancel triggers. It raises
// the persisted cancel flag; whichever worker runs the session observes it
// at its next suspension point.
func (s *EditSessionService) HandleSessionCancel(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.SessionCancelPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Error("malformed session cancel payload", "error", err)
		return nil
	}
	if err := s.store.RequestSessionCancel(ctx, p.SessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("cancel for unknown session", "session_id", p.SessionID)
			return nil
		}
		return fmt.Errorf("request session cancel: %w", err)
	}
	slog.Info("cancellation requested", "session_id", p.SessionID)
	return nil
}

// HandleSessionStart is the queue handler that runs one edit session to a
// terminal state. Duplicates of already-terminal sessions ack immediately; a
// claim lost to a running sibling naks so the instruction runs once the
// sibling finishes.
func (s *EditSessionService) HandleSessionStart(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.SessionStartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Error("malformed session start payload", "error", err)
		return nil
	}

	sess, err := s.store.GetSession(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("session start for unknown session", "session_id", p.SessionID)
			return nil
		}
		return fmt.Errorf("get session: %w", err)
	}
	if sess.Status.Terminal() {
		return nil
	}

	conv, err := s.store.GetConversation(ctx, sess.ConversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	wsp, err := s.store.GetWorkspace(ctx, conv.WorkspaceID)
	if err != nil {
		return fmt.Errorf("get workspace: %w", err)
	}
	if !wsp.Status.ConversationReady() {
		return fmt.Errorf("workspace %s is %s: %w", wsp.ID, wsp.Status, domain.ErrWorkspaceNotReady)
	}

	claimed, err := s.store.ClaimSession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !claimed {
		current, err := s.store.GetSession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("recheck session: %w", err)
		}
		if current.Status == session.StatusPending {
			// A sibling holds the conversation; redeliver until it finishes.
			return fmt.Errorf("session %s waiting on running sibling: %w", sess.ID, domain.ErrConflict)
		}
		return nil
	}

	ctx, sessionSpan := otel.StartSessionSpan(ctx, sess.ID, conv.ID, wsp.ID)
	defer sessionSpan.End()

	s.markWorkspaceInConversation(ctx, wsp)
	s.hub.BroadcastEvent(ctx, ws.EventSessionStatus, ws.SessionStatusEvent{
		SessionID:      sess.ID,
		ConversationID: conv.ID,
		Status:         string(session.StatusRunning),
	})

	mux := newChunkMux(s.store, s.hub, sess.ID)
	started := time.Now()
	status, reason, edited := s.run(ctx, mux, sess, conv, wsp)

	if err := s.store.CompleteSession(ctx, sess.ID, status, reason); err != nil {
		slog.Error("complete session failed", "session_id", sess.ID, "status", status, "error", err)
	}
	mux.Done(ctx, string(status), string(reason))
	s.hub.BroadcastEvent(ctx, ws.EventSessionStatus, ws.SessionStatusEvent{
		SessionID:      sess.ID,
		ConversationID: conv.ID,
		Status:         string(status),
		Reason:         string(reason),
	})
	s.recordOutcome(ctx, status, reason, time.Since(started))

	if edited {
		payload, _ := json.Marshal(messagequeue.WorkspaceRebuildPayload{
			WorkspaceID: wsp.ID,
			SessionID:   sess.ID,
		})
		if err := s.queue.Publish(ctx, messagequeue.SubjectWorkspaceRebuild, payload); err != nil {
			slog.Error("publish rebuild trigger failed", "workspace_id", wsp.ID, "error", err)
		}
	}

	slog.Info("edit session finished",
		"session_id", sess.ID,
		"status", status,
		"reason", reason,
		"duration", time.Since(started))
	return nil
}

// markWorkspaceInConversation moves the workspace into in_conversation on the
// first session of a conversation. A lost race with another instance means
// someone else already did it.
func (s *EditSessionService) markWorkspaceInConversation(ctx context.Context, wsp *workspace.Workspace) {
	if wsp.Status != workspace.StatusAvailableForConversation {
		return
	}
	err := s.store.UpdateWorkspaceStatus(ctx, wsp.ID,
		workspace.StatusAvailableForConversation, workspace.StatusInConversation, "")
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		slog.Error("workspace transition failed", "workspace_id", wsp.ID, "error", err)
		return
	}
	if err == nil {
		s.hub.BroadcastEvent(ctx, ws.EventWorkspaceStatus, ws.WorkspaceStatusEvent{
			WorkspaceID: wsp.ID,
			Status:      string(workspace.StatusInConversation),
		})
	}
}

func (s *EditSessionService) recordOutcome(ctx context.Context, status session.Status, reason session.FailureReason, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionDuration.Record(ctx, d.Seconds())
	switch {
	case status == session.StatusCompleted:
		s.metrics.SessionsCompleted.Add(ctx, 1)
	case reason == session.ReasonCancelled:
		s.metrics.SessionsCancelled.Add(ctx, 1)
	default:
		s.metrics.SessionsFailed.Add(ctx, 1)
	}
}

// cancelRequested polls the persisted flag. A store error keeps the session
// going; the flag will be seen at the next suspension point or the request
// retried.
func (s *EditSessionService) cancelRequested(ctx context.Context, sessionID string) bool {
	requested, err := s.store.SessionCancelRequested(ctx, sessionID)
	if err != nil {
		slog.Error("check cancel flag failed", "session_id", sessionID, "error", err)
		return false
	}
	return requested
}

// run drives the model/tool loop to a terminal outcome. It never returns an
// error: every failure mode maps to a terminal status and reason, which the
// caller persists.
func (s *EditSessionService) run(
	ctx context.Context,
	mux *chunkMux,
	sess *session.EditSession,
	conv *conversation.Conversation,
	wsp *workspace.Workspace,
) (session.Status, session.FailureReason, bool) {
	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		slog.Error("list messages failed", "conversation_id", conv.ID, "error", err)
		return session.StatusFailed, session.ReasonInfrastructure, false
	}
	history := buildHistory(msgs)
	resumeToken := sess.ResumeToken
	patchConflicts := 0
	edited := false

	for turn := 0; turn < s.cfg.MaxTurns; turn++ {
		if s.cancelRequested(ctx, sess.ID) {
			return session.StatusFailed, session.ReasonCancelled, edited
		}

		st, err := s.openStream(ctx, &provider.Request{
			Model:       s.model,
			Messages:    history,
			Tools:       sessionTools,
			ResumeToken: resumeToken,
		})
		if err != nil {
			slog.Error("provider stream failed", "session_id", sess.ID, "error", err)
			return session.StatusFailed, session.ReasonProviderError, edited
		}

		res, err := mux.pump(ctx, st)
		if err != nil {
			slog.Error("provider stream broke mid-turn", "session_id", sess.ID, "error", err)
			return session.StatusFailed, session.ReasonProviderError, edited
		}
		if res.resumeToken != "" && res.resumeToken != resumeToken {
			resumeToken = res.resumeToken
			if err := s.store.SetSessionResumeToken(ctx, sess.ID, resumeToken); err != nil {
				slog.Error("persist resume token failed", "session_id", sess.ID, "error", err)
			}
		}

		if len(res.calls) == 0 {
			s.finalizeReply(ctx, mux, sess, conv, res.text)
			return session.StatusCompleted, session.ReasonNone, edited
		}

		toolCallsJSON, _ := json.Marshal(res.calls)
		if _, err := s.store.CreateMessage(ctx, &conversation.Message{
			ConversationID: conv.ID,
			SessionID:      sess.ID,
			Role:           conversation.RoleToolCall,
			Content:        res.text,
			ToolCalls:      toolCallsJSON,
		}); err != nil {
			slog.Error("persist tool call message failed", "session_id", sess.ID, "error", err)
		}
		history = append(history, provider.ChatMessage{
			Role:      "assistant",
			Content:   res.text,
			ToolCalls: res.calls,
		})

		for _, call := range res.calls {
			if s.cancelRequested(ctx, sess.ID) {
				return session.StatusFailed, session.ReasonCancelled, edited
			}

			mux.Event(ctx, toolEvent(call))
			output, fatal := s.dispatchTool(ctx, mux, sess, wsp, call, &patchConflicts, &edited)
			if fatal != session.ReasonNone {
				return session.StatusFailed, fatal, edited
			}

			if _, err := s.store.CreateMessage(ctx, &conversation.Message{
				ConversationID: conv.ID,
				SessionID:      sess.ID,
				Role:           conversation.RoleToolCallResult,
				Content:        output,
				ToolCallID:     call.ID,
				ToolName:       call.Name,
			}); err != nil {
				slog.Error("persist tool result message failed", "session_id", sess.ID, "error", err)
			}
			history = append(history, provider.ChatMessage{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return session.StatusFailed, session.ReasonMaxTurns, edited
}

// finalizeReply strips the note-to-self block, persists the visible reply
// and (when present) the note, and emits the finalized message chunk.
func (s *EditSessionService) finalizeReply(
	ctx context.Context,
	mux *chunkMux,
	sess *session.EditSession,
	conv *conversation.Conversation,
	text string,
) {
	visible, noteBody, found := note.Extract(text)
	if found {
		// The note already streamed out as raw deltas; scrub it from the
		// persisted chunk log so replay never shows it.
		if start, end, ok := note.Span(text); ok {
			mux.redactRange(ctx, start, end)
		}
	}

	msg, err := s.store.CreateMessage(ctx, &conversation.Message{
		ConversationID: conv.ID,
		SessionID:      sess.ID,
		Role:           conversation.RoleAssistant,
		Content:        visible,
	})
	if err != nil {
		slog.Error("persist assistant message failed", "session_id", sess.ID, "error", err)
		msg = &conversation.Message{
			ConversationID: conv.ID,
			SessionID:      sess.ID,
			Role:           conversation.RoleAssistant,
			Content:        visible,
		}
	}
	mux.Message(ctx, msg)

	if found {
		if _, err := s.store.CreateMessage(ctx, &conversation.Message{
			ConversationID: conv.ID,
			SessionID:      sess.ID,
			Role:           conversation.RoleAssistantNote,
			Content:        noteBody,
		}); err != nil {
			slog.Error("persist assistant note failed", "session_id", sess.ID, "error", err)
		}
	}
}

// openStream opens a provider stream with bounded retries and exponential
// backoff. The circuit breaker lives inside the provider client.
func (s *EditSessionService) openStream(ctx context.Context, req *provider.Request) (provider.Stream, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.ProviderRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.RetryBackoff << (attempt - 1)):
			}
		}
		st, err := s.llm.Stream(ctx, req)
		if err == nil {
			return st, nil
		}
		lastErr = err
		slog.Warn("provider stream attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// dispatchTool executes one tool call. Recoverable problems (bad arguments,
// patch conflicts within budget, non-zero exits) come back as output for the
// model; only exhausted conflict budgets and infrastructure failures are
// fatal to the session.
func (s *EditSessionService) dispatchTool(
	ctx context.Context,
	mux *chunkMux,
	sess *session.EditSession,
	wsp *workspace.Workspace,
	call provider.ToolCall,
	patchConflicts *int,
	edited *bool,
) (string, session.FailureReason) {
	ctx, span := otel.StartToolCallSpan(ctx, call.ID, call.Name)
	defer span.End()

	switch call.Name {
	case toolApplyPatch:
		return s.runApplyPatch(ctx, mux, sess, wsp, call, patchConflicts, edited)
	case toolRunCommand:
		return s.runCommand(ctx, wsp, call)
	default:
		return toolError(fmt.Sprintf("unknown tool %q", call.Name)), session.ReasonNone
	}
}

func (s *EditSessionService) runApplyPatch(
	ctx context.Context,
	mux *chunkMux,
	sess *session.EditSession,
	wsp *workspace.Workspace,
	call provider.ToolCall,
	patchConflicts *int,
	edited *bool,
) (string, session.FailureReason) {
	var args applyPatchArgs
	if err := parseArgs(call.Arguments, &args); err != nil {
		return toolError(err.Error()), session.ReasonNone
	}

	op, err := patch.Parse(args.Patch)
	if err != nil {
		return toolError(fmt.Sprintf("invalid patch: %v", err)), session.ReasonNone
	}

	var before, after string
	switch op.Kind {
	case patch.KindAdd:
		after = op.Content()
		if err := s.files.WriteFile(ctx, wsp.ID, op.Path, after); err != nil {
			slog.Error("write new file failed", "path", op.Path, "error", err)
			return "", session.ReasonInfrastructure
		}
	case patch.KindDelete:
		before, err = s.files.ReadFile(ctx, wsp.ID, op.Path)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return toolError(fmt.Sprintf("file %s does not exist", op.Path)), session.ReasonNone
			}
			slog.Error("read file failed", "path", op.Path, "error", err)
			return "", session.ReasonInfrastructure
		}
		if err := s.files.DeleteFile(ctx, wsp.ID, op.Path); err != nil {
			slog.Error("delete file failed", "path", op.Path, "error", err)
			return "", session.ReasonInfrastructure
		}
	case patch.KindUpdate:
		before, err = s.files.ReadFile(ctx, wsp.ID, op.Path)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return toolError(fmt.Sprintf("file %s does not exist", op.Path)), session.ReasonNone
			}
			slog.Error("read file failed", "path", op.Path, "error", err)
			return "", session.ReasonInfrastructure
		}
		after, err = patch.Apply(before, op)
		if err != nil {
			if errors.Is(err, patch.ErrConflict) {
				*patchConflicts++
				if s.metrics != nil {
					s.metrics.PatchConflicts.Add(ctx, 1)
				}
				if *patchConflicts > s.cfg.MaxPatchRetries {
					slog.Warn("patch conflict budget exhausted",
						"session_id", sess.ID, "path", op.Path, "conflicts", *patchConflicts)
					return "", session.ReasonPatchConflict
				}
				return toolError(fmt.Sprintf(
					"patch conflict: %v. Re-read the file and send a patch against its current content.", err,
				)), session.ReasonNone
			}
			return toolError(fmt.Sprintf("patch failed: %v", err)), session.ReasonNone
		}
		if err := s.files.WriteFile(ctx, wsp.ID, op.Path, after); err != nil {
			slog.Error("write patched file failed", "path", op.Path, "error", err)
			return "", session.ReasonInfrastructure
		}
	}

	*edited = true
	stats := patch.DiffStats(before, after)
	mux.Event(ctx, stream.ToolEvent{
		CallID: call.ID,
		Name:   "file_edited",
		Data: map[string]any{
			"path":          op.Path,
			"lines_added":   stats.Added,
			"lines_removed": stats.Removed,
		},
	})
	s.hub.BroadcastEvent(ctx, ws.EventFileEdited, ws.FileEditedEvent{
		WorkspaceID:  wsp.ID,
		SessionID:    sess.ID,
		Path:         op.Path,
		LinesAdded:   stats.Added,
		LinesRemoved: stats.Removed,
	})

	out, _ := json.Marshal(map[string]any{
		"ok":            true,
		"operation":     string(op.Kind),
		"path":          op.Path,
		"lines_added":   stats.Added,
		"lines_removed": stats.Removed,
	})
	return string(out), session.ReasonNone
}

func (s *EditSessionService) runCommand(ctx context.Context, wsp *workspace.Workspace, call provider.ToolCall) (string, session.FailureReason) {
	var args runCommandArgs
	if err := parseArgs(call.Arguments, &args); err != nil {
		return toolError(err.Error()), session.ReasonNone
	}

	res, err := s.exec.Execute(ctx, wsp.ID, args.Command, s.cfg.CommandTimeout)
	if err != nil {
		slog.Error("sandbox execute failed", "workspace_id", wsp.ID, "error", err)
		return "", session.ReasonInfrastructure
	}
	if s.metrics != nil {
		s.metrics.CommandsRun.Add(ctx, 1)
	}

	out, _ := json.Marshal(commandResult{
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		TimedOut:   res.TimedOut,
		DurationMS: res.Duration.Milliseconds(),
	})
	return string(out), session.ReasonNone
}

type commandResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	TimedOut   bool   `json:"timed_out"`
	DurationMS int64  `json:"duration_ms"`
}

// buildHistory maps stored conversation messages to provider chat messages.
// Notes go back restored to their marker form so the model sees its own
// memory; tool call pairs keep their linkage through the call ID.
func buildHistory(msgs []conversation.Message) []provider.ChatMessage {
	history := make([]provider.ChatMessage, 0, len(msgs)+1)
	history = append(history, provider.ChatMessage{Role: "system", Content: systemPrompt})

	for i := range msgs {
		m := &msgs[i]
		switch m.Role {
		case conversation.RoleUser:
			history = append(history, provider.ChatMessage{Role: "user", Content: m.Content})
		case conversation.RoleAssistant:
			history = append(history, provider.ChatMessage{Role: "assistant", Content: m.Content})
		case conversation.RoleAssistantNote:
			history = append(history, provider.ChatMessage{
				Role:    "assistant",
				Content: note.Marker + " " + m.Content + "]",
			})
		case conversation.RoleToolCall:
			cm := provider.ChatMessage{Role: "assistant", Content: m.Content}
			if len(m.ToolCalls) > 0 {
				if err := json.Unmarshal(m.ToolCalls, &cm.ToolCalls); err != nil {
					slog.Error("malformed stored tool calls", "message_id", m.ID, "error", err)
				}
			}
			history = append(history, cm)
		case conversation.RoleToolCallResult:
			history = append(history, provider.ChatMessage{
				Role:       "tool",
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				Name:       m.ToolName,
			})
		}
	}
	return history
}

func toolEvent(call provider.ToolCall) stream.ToolEvent {
	ev := stream.ToolEvent{CallID: call.ID, Name: call.Name}
	var data map[string]any
	if err := json.Unmarshal(call.Arguments, &data); err == nil {
		ev.Data = data
	}
	return ev
}

func toolError(msg string) string {
	out, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	return string(out)
}
