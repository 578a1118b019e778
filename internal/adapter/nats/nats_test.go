package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	q, err := Connect(context.Background(), url, log)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns a per-test subject under "sessions." which the
// PAGECRAFT stream captures (sessions.>).
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "sessions.test." + t.Name()
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	type payload struct {
		SessionID string `json:"session_id"`
	}
	want := payload{SessionID: "sess-42"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *payload
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, subj string, d []byte) error {
		var got payload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()

	if received == nil {
		t.Fatal("handler was not called")
	}
	if received.SessionID != want.SessionID {
		t.Errorf("got %q, want %q", received.SessionID, want.SessionID)
	}
}

func TestQueue_RedeliversOnHandlerError(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	var (
		mu    sync.Mutex
		calls int
		done  = make(chan struct{})
		once  sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, _ []byte) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return errFirstAttempt
		}
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`{"session_id":"sess-redeliver"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("handler calls = %d, want >= 2", calls)
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)

	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}

func TestDurableName(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"sessions.start", "pagecraft-sessions-start"},
		{"workspaces.setup", "pagecraft-workspaces-setup"},
		{"sessions.>", "pagecraft-sessions--"},
	}
	for _, tt := range tests {
		if got := durableName(tt.subject); got != tt.want {
			t.Errorf("durableName(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}

var errFirstAttempt = errSentinel("first attempt fails")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
