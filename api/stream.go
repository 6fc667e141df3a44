package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yairfalse/vigil/telemetry"
	"github.com/yairfalse/vigil/types"
)

const clientBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API is operator-facing and same-origin enforcement happens at
	// the ingress layer
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans processed events out to websocket clients. Slow clients are
// dropped rather than allowed to stall the pipeline.
type Hub struct {
	mu      sync.Mutex
	clients map[chan types.SecurityEvent]struct{}
	closed  bool
	logger  *telemetry.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan types.SecurityEvent]struct{}),
		logger:  telemetry.NewLogger("event-stream"),
	}
}

// Broadcast delivers an event to every connected client without blocking
func (h *Hub) Broadcast(event types.SecurityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			// client is not keeping up
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Hub) register() (chan types.SecurityEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan types.SecurityEvent, clientBuffer)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unregister(ch chan types.SecurityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// handleEventStream upgrades the connection and streams events until the
// client disconnects
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	ch, ok := s.hub.register()
	if !ok {
		return
	}
	defer s.hub.unregister(ch)

	// drain client frames so pings and close messages are handled
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.unregister(ch)
				return
			}
		}
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}
