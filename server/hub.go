package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pywire/pywire/proto"
)

// Session is one connected client, whichever transport carried it in.
type Session interface {
	ID() string
	Transport() string
	Send(msg proto.Message) error
	Close() error
}

func newSessionID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Hub tracks live sessions across all transports and fans messages out to
// them. Transport handlers add and remove sessions; the application owns the
// inbound message callback.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	onMessage func(Session, proto.Message)
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]Session)}
}

// OnMessage sets the callback for inbound messages from any session.
func (h *Hub) OnMessage(fn func(Session, proto.Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

func (h *Hub) Add(s Session) {
	slog.Info("Session connected", "id", s.ID(), "transport", s.Transport())
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID()] = s
}

func (h *Hub) Remove(s Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID()]
	delete(h.sessions, s.ID())
	h.mu.Unlock()

	if ok {
		slog.Info("Session disconnected", "id", s.ID(), "transport", s.Transport())
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// dispatch hands an inbound message to the application callback.
func (h *Hub) dispatch(s Session, msg proto.Message) {
	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()

	if fn == nil {
		slog.Warn("No message handler installed, dropping message", "type", msg.Type, "session", s.ID())
		return
	}
	fn(s, msg)
}

// Broadcast sends a message to every live session. Per-session failures are
// logged and skipped so one dead connection cannot block the rest.
func (h *Hub) Broadcast(msg proto.Message) {
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Send(msg); err != nil {
			slog.Warn("Broadcast send failed", "id", s.ID(), "error", err)
		}
	}
}

// BroadcastReload tells every client to reload the page. The dev server calls
// this when watched sources change.
func (h *Hub) BroadcastReload() {
	slog.Info("Broadcasting reload", "sessions", h.Count())
	h.Broadcast(proto.NewReload())
}
