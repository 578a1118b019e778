// Package ws implements the WebSocket adapter for streaming edit session
// output and status changes to browsers.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/pagecraft/pagecraft/internal/domain/stream"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChunkLister fetches stored session chunks for replay on connect.
type ChunkLister interface {
	ListChunks(ctx context.Context, sessionID string, afterSeq int64) ([]stream.Chunk, error)
}

// conn wraps a single WebSocket connection. sessionID, when set, scopes
// the connection to chunk events of one edit session.
type conn struct {
	ws        *websocket.Conn
	cancel    context.CancelFunc
	sessionID string
}

// Hub manages active WebSocket connections and broadcasts messages.
// Session chunk events are delivered only to connections watching that
// session (or watching everything); status events go to all connections.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*conn]struct{}
	chunks ChunkLister
}

// NewHub creates a hub. lister may be nil, in which case connections get
// no replay of chunks emitted before they connected.
func NewHub(lister ChunkLister) *Hub {
	return &Hub{
		conns:  make(map[*conn]struct{}),
		chunks: lister,
	}
}

// HandleWS upgrades the request to a WebSocket connection. Query params:
//
//	session_id  scope the connection to one session's chunk events
//	after_seq   replay stored chunks with seq greater than this value
//
// Replay is at-least-once; clients deduplicate by chunk seq.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	sessionID := r.URL.Query().Get("session_id")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: sock, cancel: cancel, sessionID: sessionID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "session_id", sessionID)

	if sessionID != "" && h.chunks != nil {
		afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after_seq"), 10, 64)
		h.replay(ctx, c, sessionID, afterSeq)
	}

	// Read loop to detect disconnects and consume pings.
	go func() {
		defer func() {
			h.remove(c)
			_ = sock.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := sock.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// replay writes stored chunks for the session directly to one connection.
func (h *Hub) replay(ctx context.Context, c *conn, sessionID string, afterSeq int64) {
	chunks, err := h.chunks.ListChunks(ctx, sessionID, afterSeq)
	if err != nil {
		slog.Error("chunk replay failed", "session_id", sessionID, "error", err)
		return
	}
	for _, chunk := range chunks {
		payload, err := json.Marshal(SessionChunkEvent{SessionID: sessionID, Chunk: chunk})
		if err != nil {
			slog.Error("marshal replay chunk", "session_id", sessionID, "error", err)
			return
		}
		msg, err := json.Marshal(Message{Type: EventSessionChunk, Payload: payload})
		if err != nil {
			return
		}
		if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
			slog.Debug("replay write failed", "session_id", sessionID, "error", err)
			return
		}
	}
}

// Broadcast sends a message to connected clients. sessionID scopes
// delivery: empty means every connection, otherwise only connections
// watching that session or watching everything.
func (h *Hub) Broadcast(ctx context.Context, sessionID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if sessionID != "" && c.sessionID != "" && c.sessionID != sessionID {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
