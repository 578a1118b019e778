package litellm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pagecraft/pagecraft/internal/port/provider"
)

// sseChunk is one parsed "data:" payload of the completions stream.
type sseChunk struct {
	SessionID string `json:"session_id,omitempty"`
	Choices   []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// toolBuild accumulates a streamed tool call. Arguments arrive as string
// fragments across chunks; the ID and name arrive on the first fragment.
type toolBuild struct {
	id   string
	name string
	args strings.Builder
}

// sseStream adapts the SSE body to provider.Stream. Tool call fragments are
// assembled across chunks and emitted as complete EventToolCall events when
// the turn finishes.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	pending  []*provider.Event
	tools    map[int]*toolBuild
	token    string
	eof      bool
	finished bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{
		body:    body,
		scanner: sc,
		tools:   make(map[int]*toolBuild),
	}
}

// Recv returns the next event, or io.EOF after the final one.
func (s *sseStream) Recv() (*provider.Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.eof {
			return nil, io.EOF
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read stream: %w", err)
			}
			// Stream ended without [DONE]; treat as a plain stop.
			s.eof = true
			if !s.finished {
				s.finishTurn("stop")
			}
			continue
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.eof = true
			continue
		}

		var chunk sseChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		s.consume(&chunk)
	}
}

func (s *sseStream) consume(chunk *sseChunk) {
	if chunk.SessionID != "" {
		s.token = chunk.SessionID
	}
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		s.pending = append(s.pending, &provider.Event{
			Type:  provider.EventTextDelta,
			Delta: choice.Delta.Content,
		})
	}

	for _, tc := range choice.Delta.ToolCalls {
		b, ok := s.tools[tc.Index]
		if !ok {
			b = &toolBuild{}
			s.tools[tc.Index] = b
		}
		if tc.ID != "" {
			b.id = tc.ID
		}
		if tc.Function.Name != "" {
			b.name = tc.Function.Name
		}
		b.args.WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finishTurn(*choice.FinishReason)
	}
}

// finishTurn flushes assembled tool calls in index order, then the
// message_end event carrying the finish reason and resume token.
func (s *sseStream) finishTurn(reason string) {
	s.finished = true
	indexes := make([]int, 0, len(s.tools))
	for i := range s.tools {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		b := s.tools[i]
		args := b.args.String()
		if args == "" {
			args = "{}"
		}
		s.pending = append(s.pending, &provider.Event{
			Type: provider.EventToolCall,
			Tool: &provider.ToolCall{
				ID:        b.id,
				Name:      b.name,
				Arguments: json.RawMessage(args),
			},
		})
	}
	s.tools = make(map[int]*toolBuild)

	s.pending = append(s.pending, &provider.Event{
		Type:         provider.EventMessageEnd,
		FinishReason: reason,
		ResumeToken:  s.token,
	})
}

// Close releases the underlying response body.
func (s *sseStream) Close() error {
	return s.body.Close()
}
