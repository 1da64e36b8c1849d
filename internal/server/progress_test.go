package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/anavidal/bentos/pkg/types"
)

// waitForClients polls until the hub has n subscribers or the deadline hits.
func waitForClients(t *testing.T, h *hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		got := len(h.clients)
		h.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", n)
}

func TestProgressWebSocket_StreamsEvents(t *testing.T) {
	t.Parallel()

	srv, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	waitForClients(t, srv.hub, 1)
	srv.Publish(types.ProgressEvent{Stage: "extract", Message: "candidate mentions extracted", Count: 7, At: time.Now()})

	var ev types.ProgressEvent
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Stage != "extract" || ev.Count != 7 {
		t.Errorf("event = %+v", ev)
	}
}

func TestProgressWebSocket_ClientDisconnectUnsubscribes(t *testing.T) {
	t.Parallel()

	srv, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, srv.hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitForClients(t, srv.hub, 0)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	t.Parallel()

	srv := New(Config{})
	ch := srv.hub.subscribe()
	defer srv.hub.unsubscribe(ch)

	// Saturate the client queue well past its buffer; broadcast must drop
	// rather than block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*3; i++ {
			srv.hub.broadcast(types.ProgressEvent{Stage: "dedup", Count: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	if got := len(ch); got != clientBuffer {
		t.Errorf("queued events = %d, want %d", got, clientBuffer)
	}
}
