// Package inspect serves read-only diagnostics for running engines.
//
// It exposes JSON snapshots over HTTP (chi), Prometheus metrics, and a
// WebSocket stream of operation batches and guest events for DevTools
// consumers. The server never mutates engine state; it attaches purely
// through the engine event surface.
package inspect

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weld-ui/weld/pkg/engine"
	"github.com/weld-ui/weld/pkg/protocol"
)

// clientBuffer bounds per-client queued frames; slow consumers drop.
const clientBuffer = 64

// Frame is one streamed message.
type Frame struct {
	Type    string          `json:"type"` // "operation" | "event" | "fatal"
	Engine  string          `json:"engine"`
	Batch   *protocol.Batch `json:"batch,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload any             `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Server is the diagnostics surface for a set of engines.
type Server struct {
	mu      sync.Mutex
	engines map[string]*engine.Engine
	clients map[string]chan []byte
	logger  *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer creates an empty inspect server.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engines: make(map[string]*engine.Engine),
		clients: make(map[string]chan []byte),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Diagnostics are host-local; cross-origin DevTools are
			// expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Attach registers an engine and streams its traffic to connected
// clients. The returned function detaches.
func (s *Server) Attach(e *engine.Engine) func() {
	id := e.ID()
	s.mu.Lock()
	s.engines[id] = e
	s.mu.Unlock()

	offOp := e.On(engine.EventOperation, func(payload any) {
		if batch, ok := payload.(*protocol.Batch); ok {
			s.broadcast(Frame{Type: "operation", Engine: id, Batch: batch})
		}
	})
	offMsg := e.On(engine.EventMessage, func(payload any) {
		if ev, ok := payload.(protocol.GuestEvent); ok {
			s.broadcast(Frame{Type: "event", Engine: id, Event: ev.Event, Payload: ev.Payload})
		}
	})
	offFatal := e.On(engine.EventFatalError, func(payload any) {
		frame := Frame{Type: "fatal", Engine: id}
		if err, ok := payload.(error); ok {
			frame.Error = err.Error()
		}
		s.broadcast(frame)
	})

	return func() {
		offOp()
		offMsg()
		offFatal()
		s.mu.Lock()
		delete(s.engines, id)
		s.mu.Unlock()
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Get("/diagnostics/{engineID}", s.handleEngineDiagnostics)
	r.Get("/debug/tree/{engineID}", s.handleTree)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.engines)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "engines": n})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]engine.Diagnostics)
	s.mu.Lock()
	engines := make([]*engine.Engine, 0, len(s.engines))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	s.mu.Unlock()
	for _, e := range engines {
		out[e.ID()] = e.GetDiagnostics()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEngineDiagnostics(w http.ResponseWriter, r *http.Request) {
	e := s.lookup(chi.URLParam(r, "engineID"))
	if e == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown engine"})
		return
	}
	writeJSON(w, http.StatusOK, e.GetDiagnostics())
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	e := s.lookup(chi.URLParam(r, "engineID"))
	if e == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown engine"})
		return
	}
	recv := e.Receiver()
	if recv == nil {
		writeJSON(w, http.StatusOK, map[string]any{"roots": []any{}, "nodes": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, recv.GetDebugInfo())
}

// handleWS upgrades and streams frames until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("inspect: upgrade failed", "error", err)
		return
	}
	id := uuid.NewString()
	send := make(chan []byte, clientBuffer)
	s.mu.Lock()
	s.clients[id] = send
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	// Reader: discard client input, detect close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// broadcast fans a frame out to every client, dropping frames for
// clients whose buffers are full.
func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Warn("inspect: frame not serializable", "type", frame.Type, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, send := range s.clients {
		select {
		case send <- data:
		default:
			s.logger.Warn("inspect: dropping frame for slow client", "client", id)
		}
	}
}

func (s *Server) lookup(id string) *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engines[id]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
