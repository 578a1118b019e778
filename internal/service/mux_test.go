package service

import (
	"context"
	"testing"

	"github.com/pagecraft/pagecraft/internal/domain/stream"
	"github.com/pagecraft/pagecraft/internal/port/provider"
)

func TestMuxNothingAfterDone(t *testing.T) {
	store := &mockStore{}
	hub := &mockHub{}
	mux := newChunkMux(store, hub, "sess-1")
	ctx := context.Background()

	mux.Text(ctx, "hello")
	mux.Done(ctx, "completed", "")
	mux.Done(ctx, "failed", "cancelled")
	mux.Text(ctx, "late")

	chunks, _ := store.ListChunks(ctx, "sess-1", 0)
	if len(chunks) != 2 {
		t.Fatalf("chunk count = %d, want 2", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.Type != stream.ChunkDone || last.Done.Status != "completed" {
		t.Fatalf("last chunk = %+v, want first done marker", last)
	}
}

func TestMuxAssignsIncreasingSeqs(t *testing.T) {
	store := &mockStore{}
	mux := newChunkMux(store, &mockHub{}, "sess-1")
	ctx := context.Background()

	mux.Text(ctx, "a")
	mux.Progress(ctx, 0.5, "halfway")
	mux.Text(ctx, "b")

	chunks, _ := store.ListChunks(ctx, "sess-1", 0)
	for i, c := range chunks {
		if c.Seq != int64(i+1) {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
	}
}

func TestPumpForwardsDeltasAndCollectsTools(t *testing.T) {
	store := &mockStore{}
	mux := newChunkMux(store, &mockHub{}, "sess-1")
	ctx := context.Background()

	st := &scriptedStream{events: []provider.Event{
		textDelta("hel"),
		textDelta("lo"),
		toolCallEvent("call-1", toolRunCommand, `{"command":"ls"}`),
		messageEnd("tool_calls", "tok-9"),
	}}

	res, err := mux.pump(ctx, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.text != "hello" {
		t.Fatalf("text = %q, want hello", res.text)
	}
	if len(res.calls) != 1 || res.calls[0].ID != "call-1" {
		t.Fatalf("calls = %+v", res.calls)
	}
	if res.finishReason != "tool_calls" || res.resumeToken != "tok-9" {
		t.Fatalf("finish = %q token = %q", res.finishReason, res.resumeToken)
	}

	chunks, _ := store.ListChunks(ctx, "sess-1", 0)
	if len(chunks) != 2 {
		t.Fatalf("persisted chunks = %d, want 2 text deltas", len(chunks))
	}
}
