package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pywire/pywire/proto"
)

// SessionHeader carries the poll session id on every exchange after connect.
const SessionHeader = "X-PyWire-Session"

const (
	defaultPollWait = 25 * time.Second
	defaultPollIdle = 60 * time.Second
	pollQueueSize   = 64
)

// PollHandler serves the request/response fallback: a hello POST issues a
// session id, long-poll GETs drain that session's outbound queue, and send
// POSTs carry single frames inbound.
type PollHandler struct {
	hub  *Hub
	wait time.Duration
	idle time.Duration

	mu       sync.Mutex
	sessions map[string]*pollSession
}

func NewPollHandler(hub *Hub) *PollHandler {
	return &PollHandler{
		hub:      hub,
		wait:     defaultPollWait,
		idle:     defaultPollIdle,
		sessions: make(map[string]*pollSession),
	}
}

func (h *PollHandler) Routes(r chi.Router) {
	r.Post("/", h.handleHello)
	r.Get("/", h.handlePoll)
	r.Post("/send", h.handleSend)
	r.Delete("/", h.handleBye)
}

// Run expires sessions whose client stopped polling without saying goodbye.
func (h *PollHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.expireIdle(time.Now())
		}
	}
}

func (h *PollHandler) expireIdle(now time.Time) {
	h.mu.Lock()
	var expired []*pollSession
	for id, s := range h.sessions {
		if now.Sub(s.touched()) > h.idle {
			delete(h.sessions, id)
			expired = append(expired, s)
		}
	}
	h.mu.Unlock()

	for _, s := range expired {
		slog.Info("Expiring idle poll session", "id", s.id)
		h.hub.Remove(s)
	}
}

func (h *PollHandler) handleHello(w http.ResponseWriter, r *http.Request) {
	session := &pollSession{
		id:       newSessionID("poll"),
		frames:   make(chan []byte, pollQueueSize),
		lastSeen: time.Now(),
		handler:  h,
	}

	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()
	h.hub.Add(session)

	w.Header().Set(SessionHeader, session.id)
	w.WriteHeader(http.StatusOK)
}

func (h *PollHandler) lookup(r *http.Request) *pollSession {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = r.URL.Query().Get("session")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

func (h *PollHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	session := h.lookup(r)
	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	session.touch()

	timeout := time.NewTimer(h.wait)
	defer timeout.Stop()

	var first []byte
	select {
	case first = <-session.frames:
	case <-timeout.C:
		w.WriteHeader(http.StatusNoContent)
		return
	case <-r.Context().Done():
		return
	}

	// Got one frame; drain whatever else is already queued into the batch.
	var buf bytes.Buffer
	proto.WriteFrame(&buf, first)
	for {
		select {
		case frame := <-session.frames:
			proto.WriteFrame(&buf, frame)
		default:
			w.Header().Set("Content-Type", "application/cbor-seq")
			w.WriteHeader(http.StatusOK)
			w.Write(buf.Bytes())
			return
		}
	}
}

func (h *PollHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	session := h.lookup(r)
	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	session.touch()

	body, err := io.ReadAll(io.LimitReader(r.Body, proto.MaxFrameSize))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	msg, err := proto.Decode(body)
	if err != nil {
		slog.Error("Dropping undecodable frame", "id", session.id, "error", err)
		http.Error(w, "bad frame", http.StatusBadRequest)
		return
	}

	h.hub.dispatch(session, msg)
	w.WriteHeader(http.StatusAccepted)
}

func (h *PollHandler) handleBye(w http.ResponseWriter, r *http.Request) {
	session := h.lookup(r)
	if session == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	h.drop(session)
	w.WriteHeader(http.StatusOK)
}

func (h *PollHandler) drop(session *pollSession) {
	h.mu.Lock()
	delete(h.sessions, session.id)
	h.mu.Unlock()
	h.hub.Remove(session)
}

type pollSession struct {
	id      string
	frames  chan []byte
	handler *PollHandler

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *pollSession) ID() string        { return s.id }
func (s *pollSession) Transport() string { return "http-poll" }

func (s *pollSession) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *pollSession) touched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *pollSession) Send(msg proto.Message) error {
	frame, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case s.frames <- frame:
		return nil
	default:
		slog.Warn("Poll queue full, dropping frame", "id", s.id, "type", msg.Type)
		return nil
	}
}

func (s *pollSession) Close() error {
	s.handler.drop(s)
	return nil
}
