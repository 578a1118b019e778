package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/session"
	"github.com/pagecraft/pagecraft/internal/domain/stream"
	"github.com/pagecraft/pagecraft/internal/domain/workspace"
	"github.com/pagecraft/pagecraft/internal/port/database"
	"github.com/pagecraft/pagecraft/internal/port/executor"
	"github.com/pagecraft/pagecraft/internal/port/filestore"
	"github.com/pagecraft/pagecraft/internal/port/messagequeue"
	"github.com/pagecraft/pagecraft/internal/port/provider"
)

// Ensure the mocks satisfy their ports at compile time.
var (
	_ database.Store     = (*mockStore)(nil)
	_ messagequeue.Queue = (*mockQueue)(nil)
	_ provider.Client    = (*fakeLLM)(nil)
	_ executor.Provider  = (*fakeExecutor)(nil)
	_ filestore.Store    = (*fakeFiles)(nil)
)

// mockStore is an in-memory implementation of database.Store for testing.
type mockStore struct {
	mu            sync.Mutex
	workspaces    []workspace.Workspace
	conversations []conversation.Conversation
	messages      []conversation.Message
	sessions      []session.EditSession
	chunks        map[string][]stream.Chunk
	cancels       map[string]bool
	nextID        int

	// Error hooks.
	listMessagesErr error
	claimErr        error
}

func (m *mockStore) genID(prefix string) string {
	m.nextID++
	return prefix + "-" + strconv.Itoa(m.nextID)
}

func (m *mockStore) CreateWorkspace(_ context.Context, w *workspace.Workspace) (*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	if cp.ID == "" {
		cp.ID = m.genID("ws")
	}
	cp.CreatedAt = time.Now()
	m.workspaces = append(m.workspaces, cp)
	return &cp, nil
}

func (m *mockStore) GetWorkspace(_ context.Context, id string) (*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.workspaces {
		if m.workspaces[i].ID == id {
			cp := m.workspaces[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListWorkspaces(_ context.Context) ([]workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]workspace.Workspace(nil), m.workspaces...), nil
}

func (m *mockStore) UpdateWorkspaceStatus(_ context.Context, id string, from, to workspace.Status, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.workspaces {
		if m.workspaces[i].ID == id {
			if m.workspaces[i].Status != from {
				return domain.ErrConflict
			}
			m.workspaces[i].Status = to
			m.workspaces[i].FailureNote = note
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateConversation(_ context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	if cp.ID == "" {
		cp.ID = m.genID("conv")
	}
	if cp.Status == "" {
		cp.Status = conversation.StatusOngoing
	}
	m.conversations = append(m.conversations, cp)
	return &cp, nil
}

func (m *mockStore) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conversations {
		if m.conversations[i].ID == id {
			cp := m.conversations[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetOngoingConversation(_ context.Context, workspaceID string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conversations {
		if m.conversations[i].WorkspaceID == workspaceID && m.conversations[i].Status == conversation.StatusOngoing {
			cp := m.conversations[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) FinishConversations(_ context.Context, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.conversations {
		if m.conversations[i].WorkspaceID == workspaceID {
			m.conversations[i].Status = conversation.StatusFinished
		}
	}
	return nil
}

func (m *mockStore) CreateMessage(_ context.Context, msg *conversation.Message) (*conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	if cp.ID == "" {
		cp.ID = m.genID("msg")
	}
	cp.CreatedAt = time.Now()
	m.messages = append(m.messages, cp)
	return &cp, nil
}

func (m *mockStore) ListMessages(_ context.Context, conversationID string) ([]conversation.Message, error) {
	if m.listMessagesErr != nil {
		return nil, m.listMessagesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []conversation.Message
	for i := range m.messages {
		if m.messages[i].ConversationID == conversationID {
			out = append(out, m.messages[i])
		}
	}
	return out, nil
}

func (m *mockStore) CreateSession(_ context.Context, s *session.EditSession) (*session.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if cp.ID == "" {
		cp.ID = m.genID("sess")
	}
	if cp.Status == "" {
		cp.Status = session.StatusPending
	}
	m.sessions = append(m.sessions, cp)
	return &cp, nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*session.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			cp := m.sessions[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListSessions(_ context.Context, conversationID string) ([]session.EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.EditSession
	for i := range m.sessions {
		if m.sessions[i].ConversationID == conversationID {
			out = append(out, m.sessions[i])
		}
	}
	return out, nil
}

func (m *mockStore) ClaimSession(_ context.Context, id string) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *session.EditSession
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			target = &m.sessions[i]
			break
		}
	}
	if target == nil || target.Status != session.StatusPending {
		return false, nil
	}
	for i := range m.sessions {
		if m.sessions[i].ConversationID == target.ConversationID &&
			m.sessions[i].ID != id &&
			m.sessions[i].Status == session.StatusRunning {
			return false, nil
		}
	}
	target.Status = session.StatusRunning
	now := time.Now()
	target.StartedAt = &now
	return true, nil
}

func (m *mockStore) CompleteSession(_ context.Context, id string, status session.Status, reason session.FailureReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			if m.sessions[i].Status != session.StatusRunning {
				return fmt.Errorf("session %s is not running", id)
			}
			m.sessions[i].Status = status
			m.sessions[i].FailureReason = reason
			now := time.Now()
			m.sessions[i].CompletedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SetSessionResumeToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			m.sessions[i].ResumeToken = token
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) RequestSessionCancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			if !m.sessions[i].Status.Terminal() {
				if m.cancels == nil {
					m.cancels = make(map[string]bool)
				}
				m.cancels[id] = true
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) SessionCancelRequested(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return m.cancels[id], nil
		}
	}
	return false, domain.ErrNotFound
}

func (m *mockStore) AppendChunk(_ context.Context, sessionID string, chunk stream.Chunk) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks == nil {
		m.chunks = make(map[string][]stream.Chunk)
	}
	seq := int64(len(m.chunks[sessionID]) + 1)
	chunk.Seq = seq
	m.chunks[sessionID] = append(m.chunks[sessionID], chunk)
	return seq, nil
}

func (m *mockStore) RewriteChunkText(_ context.Context, sessionID string, seq int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.chunks[sessionID] {
		c := &m.chunks[sessionID][i]
		if c.Seq == seq && c.Type == stream.ChunkText {
			c.Text = text
			return nil
		}
	}
	return fmt.Errorf("no text chunk %s/%d", sessionID, seq)
}

func (m *mockStore) ListChunks(_ context.Context, sessionID string, afterSeq int64) ([]stream.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []stream.Chunk
	for _, c := range m.chunks[sessionID] {
		if c.Seq > afterSeq {
			out = append(out, c)
		}
	}
	return out, nil
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	var out []string
	for _, p := range q.published {
		out = append(out, p.subject)
	}
	return out
}

// mockHub records broadcast events.
type mockHub struct {
	events []struct {
		eventType string
		payload   any
	}
}

func (h *mockHub) BroadcastEvent(_ context.Context, eventType string, payload any) {
	h.events = append(h.events, struct {
		eventType string
		payload   any
	}{eventType, payload})
}

func (h *mockHub) count(eventType string) int {
	n := 0
	for _, e := range h.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// fakeLLM returns scripted event streams, one per model turn.
type fakeLLM struct {
	turns    [][]provider.Event
	err      error
	calls    int
	requests []*provider.Request
}

func (f *fakeLLM) Stream(_ context.Context, req *provider.Request) (provider.Stream, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	if len(f.turns) == 0 {
		return &scriptedStream{}, nil
	}
	events := f.turns[0]
	f.turns = f.turns[1:]
	return &scriptedStream{events: events}, nil
}

type scriptedStream struct {
	events []provider.Event
	pos    int
}

func (s *scriptedStream) Recv() (*provider.Event, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return &ev, nil
}

func (s *scriptedStream) Close() error { return nil }

func textDelta(text string) provider.Event {
	return provider.Event{Type: provider.EventTextDelta, Delta: text}
}

func toolCallEvent(id, name, args string) provider.Event {
	return provider.Event{Type: provider.EventToolCall, Tool: &provider.ToolCall{
		ID:        id,
		Name:      name,
		Arguments: []byte(args),
	}}
}

func messageEnd(finishReason, resumeToken string) provider.Event {
	return provider.Event{Type: provider.EventMessageEnd, FinishReason: finishReason, ResumeToken: resumeToken}
}

// fakeExecutor implements executor.Provider in memory.
type fakeExecutor struct {
	created   []string
	started   []string
	stopped   []string
	destroyed []string
	commands  []string

	// results are popped in order; when empty Execute returns exit 0.
	results   []*executor.Result
	execErr   error
	createErr error
}

func (f *fakeExecutor) Create(_ context.Context, workspaceID, _ string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, workspaceID)
	return nil
}

func (f *fakeExecutor) Start(_ context.Context, workspaceID string) error {
	f.started = append(f.started, workspaceID)
	return nil
}

func (f *fakeExecutor) Execute(_ context.Context, _, command string, _ time.Duration) (*executor.Result, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.commands = append(f.commands, command)
	if len(f.results) > 0 {
		res := f.results[0]
		f.results = f.results[1:]
		return res, nil
	}
	return &executor.Result{ExitCode: 0}, nil
}

func (f *fakeExecutor) Stop(_ context.Context, workspaceID string) error {
	f.stopped = append(f.stopped, workspaceID)
	return nil
}

func (f *fakeExecutor) Destroy(_ context.Context, workspaceID string) error {
	f.destroyed = append(f.destroyed, workspaceID)
	return nil
}

func (f *fakeExecutor) Status(_ context.Context, _ string) (string, error) {
	return "running", nil
}

// fakeFiles is an in-memory filestore.Store keyed by workspace then path.
type fakeFiles struct {
	files map[string]map[string]string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string]map[string]string)}
}

func (f *fakeFiles) ReadFile(_ context.Context, workspaceID, path string) (string, error) {
	content, ok := f.files[workspaceID][path]
	if !ok {
		return "", fmt.Errorf("read %s: %w", path, domain.ErrNotFound)
	}
	return content, nil
}

func (f *fakeFiles) WriteFile(_ context.Context, workspaceID, path, content string) error {
	if f.files[workspaceID] == nil {
		f.files[workspaceID] = make(map[string]string)
	}
	f.files[workspaceID][path] = content
	return nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, workspaceID, path string) error {
	delete(f.files[workspaceID], path)
	return nil
}

func (f *fakeFiles) ListFiles(_ context.Context, workspaceID, _ string) ([]filestore.Entry, error) {
	var out []filestore.Entry
	for name := range f.files[workspaceID] {
		out = append(out, filestore.Entry{Name: name, Size: int64(len(f.files[workspaceID][name]))})
	}
	return out, nil
}
