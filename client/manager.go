package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pywire/pywire/proto"
)

// ErrAllTransportsFailed is returned by Connect when every candidate was
// skipped or failed. The message text is part of the public contract.
var ErrAllTransportsFailed = errors.New("PyWire: All transports failed")

// TransportManager tries an ordered list of transports and relays the winner's
// message and status streams to the application shell. Order encodes priority:
// WebTransport, then WebSocket, then HTTP polling as the terminal fallback.
type TransportManager struct {
	cfg        Config
	candidates []Transport

	mu     sync.Mutex
	active Transport
	// Handler registrations made before Connect succeeds. Replayed onto the
	// winning transport, then cleared.
	pendingMessage []func(proto.Message)
	pendingStatus  []func(bool)
}

// NewTransportManager builds the candidate list from cfg. Disabled transports
// never appear in the list; the poll fallback is always last so the manager
// cannot end up with zero usable candidates.
func NewTransportManager(cfg Config) *TransportManager {
	m := &TransportManager{cfg: cfg}
	if cfg.EnableWebTransport {
		m.candidates = append(m.candidates, NewWebTransportTransport(cfg))
	}
	if cfg.EnableWebSocket {
		m.candidates = append(m.candidates, NewWebSocketTransport(cfg))
	}
	m.candidates = append(m.candidates, NewPollTransport(cfg))
	return m
}

// Connect attempts each candidate strictly in priority order and stops at the
// first success. Candidates whose environment preconditions fail are skipped
// without a connect attempt. Attempts are sequential on purpose: at most one
// in-flight connection at a time, so a lower-priority candidate is never left
// half-open behind a winner.
func (m *TransportManager) Connect(ctx context.Context) error {
	for _, cand := range m.candidates {
		if g, ok := cand.(gated); ok && !g.Available() {
			slog.Debug("Skipping transport, environment precondition not met", "transport", cand.Name())
			continue
		}

		err := m.attempt(ctx, cand)
		if err != nil {
			slog.Warn("Transport connect failed, trying next", "transport", cand.Name(), "error", err)
			continue
		}

		m.adopt(cand)
		slog.Info("Transport connected", "transport", cand.Name())
		return nil
	}
	return ErrAllTransportsFailed
}

func (m *TransportManager) attempt(ctx context.Context, cand Transport) error {
	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}
	return cand.Connect(ctx)
}

// adopt makes cand the active transport and replays buffered registrations
// onto it in their original order.
func (m *TransportManager) adopt(cand Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = cand
	for _, fn := range m.pendingMessage {
		cand.OnMessage(fn)
	}
	for _, fn := range m.pendingStatus {
		cand.OnStatusChange(fn)
	}
	m.pendingMessage = nil
	m.pendingStatus = nil
}

// Send forwards to the active transport. Without one it is a logged no-op,
// mirroring a not-yet-connected transport: UI events can race connection
// state and must not crash the caller.
func (m *TransportManager) Send(msg proto.Message) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active == nil {
		slog.Warn("Dropping outbound message, no active transport", "type", msg.Type)
		return
	}
	active.Send(msg)
}

// OnMessage registers a handler for decoded inbound messages. Before a
// transport is active the registration is buffered, so handlers installed
// ahead of Connect are never lost.
func (m *TransportManager) OnMessage(fn func(proto.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.OnMessage(fn)
		return
	}
	m.pendingMessage = append(m.pendingMessage, fn)
}

// OnStatusChange registers a handler for connectivity transitions.
func (m *TransportManager) OnStatusChange(fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.active.OnStatusChange(fn)
		return
	}
	m.pendingStatus = append(m.pendingStatus, fn)
}

// ActiveTransport returns the active transport's name, or "" before a
// successful Connect and after Disconnect.
func (m *TransportManager) ActiveTransport() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ""
	}
	return m.active.Name()
}

// IsConnected reports the active transport's connection state.
func (m *TransportManager) IsConnected() bool {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	return active != nil && active.IsConnected()
}

// Disconnect tears down the active transport and clears it.
func (m *TransportManager) Disconnect() {
	m.mu.Lock()
	active := m.active
	m.active = nil
	m.mu.Unlock()

	if active != nil {
		active.Disconnect()
	}
}
