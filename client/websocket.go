package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/pywire/pywire/proto"
)

// WebSocketTransport carries frames over a persistent socket. It supervises
// its own connection: an unexpected close schedules reconnect attempts with
// exponential back-off, invisible to the manager except as status changes.
type WebSocketTransport struct {
	url       string
	dialer    *websocket.Dialer
	clk       clock.Clock
	baseDelay time.Duration
	maxDelay  time.Duration

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	noReconnect    bool
	attempts       int
	reconnectTimer *clock.Timer
	dialCancel     context.CancelFunc

	writeMu sync.Mutex

	callbacks callbacks
}

func NewWebSocketTransport(cfg Config) *WebSocketTransport {
	return &WebSocketTransport{
		url:       cfg.webSocketURL(),
		dialer:    websocket.DefaultDialer,
		clk:       clock.New(),
		baseDelay: cfg.reconnectBase(),
		maxDelay:  cfg.reconnectMax(),
	}
}

func (t *WebSocketTransport) Name() string { return "websocket" }

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", t.url, err)
	}

	if !t.adoptConn(conn) {
		return fmt.Errorf("websocket transport is closed")
	}
	return nil
}

// adoptConn installs an open socket, resets the attempt counter and starts
// the read loop. Shared by the initial connect and the supervisor. A
// Disconnect can land while a dial is in flight; in that case the fresh
// socket is closed and discarded so the transport stays down.
func (t *WebSocketTransport) adoptConn(conn *websocket.Conn) bool {
	t.mu.Lock()
	if t.noReconnect {
		t.mu.Unlock()
		conn.Close()
		return false
	}
	t.conn = conn
	t.connected = true
	t.attempts = 0
	t.mu.Unlock()

	t.callbacks.emitStatus(true)
	go t.readLoop(conn)
	return true
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(err)
			return
		}

		msg, err := proto.Decode(data)
		if err != nil {
			// A malformed frame never takes the connection down.
			slog.Error("Dropping undecodable frame", "transport", t.Name(), "error", err)
			continue
		}
		t.callbacks.emitMessage(msg)
	}
}

func (t *WebSocketTransport) handleClose(err error) {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	t.conn = nil
	skip := t.noReconnect
	t.mu.Unlock()

	if wasConnected {
		t.callbacks.emitStatus(false)
	}
	if skip {
		return
	}

	slog.Warn("WebSocket closed unexpectedly", "error", err)
	t.scheduleReconnect()
}

func (t *WebSocketTransport) scheduleReconnect() {
	t.mu.Lock()
	if t.noReconnect {
		t.mu.Unlock()
		return
	}
	delay := backoffDelay(t.baseDelay, t.maxDelay, t.attempts)
	attempt := t.attempts
	t.attempts++
	t.reconnectTimer = t.clk.AfterFunc(delay, t.reconnect)
	t.mu.Unlock()

	slog.Info("Scheduling WebSocket reconnect", "attempt", attempt, "delay", delay)
}

func (t *WebSocketTransport) reconnect() {
	t.mu.Lock()
	if t.noReconnect {
		t.mu.Unlock()
		return
	}
	t.reconnectTimer = nil
	ctx, cancel := context.WithCancel(context.Background())
	t.dialCancel = cancel
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)

	t.mu.Lock()
	t.dialCancel = nil
	t.mu.Unlock()
	cancel()

	if err != nil {
		slog.Warn("WebSocket reconnect failed", "error", err)
		t.scheduleReconnect()
		return
	}

	if !t.adoptConn(conn) {
		return
	}
	slog.Info("WebSocket reconnected", "url", t.url)
}

// backoffDelay returns min(base << attempt, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt > 20 {
		return max
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

func (t *WebSocketTransport) Send(msg proto.Message) {
	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		slog.Warn("Dropping outbound message, websocket not connected", "type", msg.Type)
		return
	}

	data, err := proto.Encode(msg)
	if err != nil {
		slog.Error("Failed to encode outbound message", "type", msg.Type, "error", err)
		return
	}

	// Application frames are always binary, never text.
	t.writeMu.Lock()
	err = conn.WriteMessage(websocket.BinaryMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		slog.Warn("WebSocket write failed", "error", err)
	}
}

// Disconnect closes the socket and stops the supervisor. The no-reconnect
// flag is set before closing so the close handler skips scheduling.
func (t *WebSocketTransport) Disconnect() {
	t.mu.Lock()
	t.noReconnect = true
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
	if t.dialCancel != nil {
		t.dialCancel()
		t.dialCancel = nil
	}
	conn := t.conn
	t.conn = nil
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		if err != nil {
			slog.Debug("Failed to send close message", "error", err)
		}
		conn.Close()
	}

	if wasConnected {
		t.callbacks.emitStatus(false)
	}
}

func (t *WebSocketTransport) OnMessage(fn func(proto.Message)) {
	t.callbacks.onMessage(fn)
}

func (t *WebSocketTransport) OnStatusChange(fn func(bool)) {
	t.callbacks.onStatus(fn)
}

func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
