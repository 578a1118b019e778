package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/pagecraft/pagecraft/internal/adapter/ws"
	"github.com/pagecraft/pagecraft/internal/domain/conversation"
	"github.com/pagecraft/pagecraft/internal/domain/stream"
	"github.com/pagecraft/pagecraft/internal/port/broadcast"
	"github.com/pagecraft/pagecraft/internal/port/database"
	"github.com/pagecraft/pagecraft/internal/port/provider"
)

// chunkMux owns chunk emission for one edit session. Every chunk is
// appended to the durable log first (which assigns the sequence number)
// and then pushed to live clients, so a reconnecting client can always
// fill its gap from the log. The done chunk is a latch: emitted at most
// once, and nothing is emitted after it.
type chunkMux struct {
	store     database.Store
	hub       broadcast.Broadcaster
	sessionID string

	mu   sync.Mutex
	done bool

	// Persisted text chunks of the current turn, with their offsets in the
	// turn's concatenated text. Used to scrub note-to-self spans from the
	// chunk log once the finalized reply is known.
	spans []textSpan
}

type textSpan struct {
	seq   int64
	start int
	text  string
}

func newChunkMux(store database.Store, hub broadcast.Broadcaster, sessionID string) *chunkMux {
	return &chunkMux{store: store, hub: hub, sessionID: sessionID}
}

// emit persists the chunk, then broadcasts it. A persistence failure is
// logged and the live push still happens; the session outcome does not
// depend on the chunk log. Returns the assigned sequence number and whether
// the chunk was persisted.
func (m *chunkMux) emit(ctx context.Context, chunk stream.Chunk) (int64, bool) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return 0, false
	}
	if chunk.Type == stream.ChunkDone {
		m.done = true
	}
	seq, err := m.store.AppendChunk(ctx, m.sessionID, chunk)
	m.mu.Unlock()

	persisted := err == nil
	if err != nil {
		slog.Error("append chunk failed", "session_id", m.sessionID, "type", chunk.Type, "error", err)
	} else {
		chunk.Seq = seq
	}

	m.hub.BroadcastEvent(ctx, ws.EventSessionChunk, ws.SessionChunkEvent{
		SessionID: m.sessionID,
		Chunk:     chunk,
	})
	return seq, persisted
}

func (m *chunkMux) Text(ctx context.Context, delta string) (int64, bool) {
	return m.emit(ctx, stream.NewText(delta))
}

func (m *chunkMux) Event(ctx context.Context, ev stream.ToolEvent) {
	m.emit(ctx, stream.NewEvent(ev))
}

func (m *chunkMux) Message(ctx context.Context, msg *conversation.Message) {
	m.emit(ctx, stream.NewMessage(msg))
}

func (m *chunkMux) Progress(ctx context.Context, ratio float64, label string) {
	m.emit(ctx, stream.NewProgress(ratio, label))
}

// Done closes the sequence with the session's final status. Later calls
// are no-ops.
func (m *chunkMux) Done(ctx context.Context, status, reason string) {
	m.emit(ctx, stream.NewDone(status, reason))
}

// redactRange rewrites this turn's persisted text chunks so the byte range
// [start, end) of the turn's concatenated text no longer appears in the
// chunk log. Reconnecting clients replay from the log, so note-to-self
// spans must not survive there.
func (m *chunkMux) redactRange(ctx context.Context, start, end int) {
	for _, sp := range m.spans {
		spEnd := sp.start + len(sp.text)
		if spEnd <= start || sp.start >= end {
			continue
		}
		lo := max(start-sp.start, 0)
		hi := min(end-sp.start, len(sp.text))
		if err := m.store.RewriteChunkText(ctx, m.sessionID, sp.seq, sp.text[:lo]+sp.text[hi:]); err != nil {
			slog.Error("redact chunk failed", "session_id", m.sessionID, "seq", sp.seq, "error", err)
		}
	}
}

// turnResult is the outcome of pumping one provider stream.
type turnResult struct {
	text         string
	calls        []provider.ToolCall
	finishReason string
	resumeToken  string
}

// pump drains one provider stream, forwarding text deltas as text chunks
// as they arrive and collecting assembled tool calls for the session loop.
// The stream is closed on return.
func (m *chunkMux) pump(ctx context.Context, st provider.Stream) (*turnResult, error) {
	defer func() { _ = st.Close() }()

	m.spans = m.spans[:0]
	res := &turnResult{}
	var sb strings.Builder
	for {
		ev, err := st.Recv()
		if errors.Is(err, io.EOF) {
			res.text = sb.String()
			return res, nil
		}
		if err != nil {
			return nil, err
		}

		switch ev.Type {
		case provider.EventTextDelta:
			start := sb.Len()
			sb.WriteString(ev.Delta)
			if seq, ok := m.Text(ctx, ev.Delta); ok {
				m.spans = append(m.spans, textSpan{seq: seq, start: start, text: ev.Delta})
			}
		case provider.EventToolCall:
			res.calls = append(res.calls, *ev.Tool)
		case provider.EventMessageEnd:
			res.finishReason = ev.FinishReason
			if ev.ResumeToken != "" {
				res.resumeToken = ev.ResumeToken
			}
		}
	}
}
