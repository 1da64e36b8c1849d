package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/pkg/types"
)

// writeTimeout bounds one WebSocket write; a client that cannot keep up is
// disconnected rather than allowed to stall the hub.
const writeTimeout = 5 * time.Second

// clientBuffer is the per-client event queue length. Events beyond it are
// dropped for that client, never queued unboundedly.
const clientBuffer = 16

// hub fans progress events out to connected WebSocket clients.
type hub struct {
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[chan types.ProgressEvent]struct{}
}

func newHub(m *observe.Metrics) *hub {
	return &hub{
		metrics: m,
		clients: make(map[chan types.ProgressEvent]struct{}),
	}
}

// subscribe registers a new client queue.
func (h *hub) subscribe() chan types.ProgressEvent {
	ch := make(chan types.ProgressEvent, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	h.metrics.ProgressClients.Add(context.Background(), 1)
	return ch
}

// unsubscribe removes a client queue.
func (h *hub) unsubscribe(ch chan types.ProgressEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	h.metrics.ProgressClients.Add(context.Background(), -1)
}

// broadcast delivers an event to every client, dropping it for clients
// whose queue is full.
func (h *hub) broadcast(ev types.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// handleProgress serves GET /ws/progress: upgrades to WebSocket and streams
// progress events as JSON until the client disconnects.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", slog.Any("error", err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// Clients only receive; CloseRead drains incoming frames and cancels
	// the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
