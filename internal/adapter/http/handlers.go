package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
	"github.com/pagecraft/pagecraft/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workspaces    *service.WorkspaceService
	Conversations *service.ConversationService
	Sessions      *service.EditSessionService

	// WS is the WebSocket entry point, mounted directly on the router.
	WS http.HandlerFunc

	// PingDB and QueueConnected feed the health endpoint.
	PingDB         func(ctx context.Context) error
	QueueConnected func() bool
}

// --- Workspaces ---

func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workspace.CreateRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Name, "name") || !requireField(w, req.UserEmail, "user_email") {
		return
	}

	created, err := h.Workspaces.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.Workspaces.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "workspaces not found")
		return
	}
	if workspaces == nil {
		workspaces = []workspace.Workspace{}
	}
	writeJSON(w, http.StatusOK, workspaces)
}

func (h *Handlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	wsp, err := h.Workspaces.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, wsp)
}

func (h *Handlers) ReviewWorkspace(w http.ResponseWriter, r *http.Request) {
	wsp, err := h.Workspaces.StartReview(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, wsp)
}

func (h *Handlers) EditWorkspace(w http.ResponseWriter, r *http.Request) {
	wsp, err := h.Workspaces.BackToEditing(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, wsp)
}

func (h *Handlers) MergeWorkspace(w http.ResponseWriter, r *http.Request) {
	wsp, err := h.Workspaces.Merge(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, wsp)
}

func (h *Handlers) ResetWorkspace(w http.ResponseWriter, r *http.Request) {
	wsp, err := h.Workspaces.Reset(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, wsp)
}

// --- Conversations ---

type openConversationRequest struct {
	UserEmail string `json:"user_email"`
}

func (h *Handlers) OpenConversation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[openConversationRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.UserEmail, "user_email") {
		return
	}

	conv, err := h.Conversations.OpenOrContinue(r.Context(), urlParam(r, "id"), req.UserEmail)
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Conversations.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Conversations.Messages(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Conversations.Sessions(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// SendMessage accepts a user instruction and queues an edit session for it.
// The session is returned with 202 Accepted; progress arrives over the
// WebSocket or the chunk endpoint.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[conversation.SendMessageRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}

	sess, err := h.Sessions.Start(r.Context(), urlParam(r, "id"), req.Content)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

// --- Sessions ---

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Cancel(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

// ListChunks returns the persisted chunk log of a session, optionally after
// a sequence number (?after_seq=N) for clients filling a replay gap.
func (h *Handlers) ListChunks(w http.ResponseWriter, r *http.Request) {
	var afterSeq int64
	if raw := r.URL.Query().Get("after_seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "after_seq must be a non-negative integer")
			return
		}
		afterSeq = parsed
	}

	chunks, err := h.Sessions.Chunks(r.Context(), urlParam(r, "id"), afterSeq)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{"database": "ok", "queue": "ok"}

	if h.PingDB != nil {
		if err := h.PingDB(r.Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.QueueConnected != nil && !h.QueueConnected() {
		checks["queue"] = "disconnected"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, checks)
}
