package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quic-go/webtransport-go"

	"github.com/pywire/pywire/proto"
)

// webTransportSupported is the capability probe for the datagram transport.
// Overridable so tests can simulate an environment without HTTP/3 support.
var webTransportSupported = func() bool { return true }

// WebTransportTransport multiplexes all traffic over one bidirectional stream
// of an HTTP/3 WebTransport session. It only exists in secure contexts. There
// is no supervisor here: the manager-level fallback already happened at
// startup, so a dropped session is terminal and only fires a status change.
type WebTransportTransport struct {
	url     string
	pageURL string
	tlsConf *tls.Config

	mu        sync.Mutex
	session   *webtransport.Session
	stream    webtransport.Stream
	connected bool
	closed    bool

	writeMu sync.Mutex

	callbacks callbacks
}

func NewWebTransportTransport(cfg Config) *WebTransportTransport {
	return &WebTransportTransport{
		url:     cfg.webTransportURL(),
		pageURL: cfg.PageURL,
		tlsConf: cfg.TLSConfig,
	}
}

func (t *WebTransportTransport) Name() string { return "webtransport" }

// Available gates the connect attempt: the page must be served over a secure
// scheme and the environment must support WebTransport at all. Checked by the
// manager before Connect so an impossible environment produces no noise.
func (t *WebTransportTransport) Available() bool {
	return isSecure(t.pageURL) && webTransportSupported()
}

func (t *WebTransportTransport) Connect(ctx context.Context) error {
	dialer := webtransport.Dialer{TLSClientConfig: t.tlsConf}
	_, session, err := dialer.Dial(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("webtransport dial %s: %w", t.url, err)
	}

	stream, err := session.OpenStreamSync(ctx)
	if err != nil {
		session.CloseWithError(0, "stream open failed")
		return fmt.Errorf("webtransport open stream: %w", err)
	}

	t.mu.Lock()
	t.session = session
	t.stream = stream
	t.connected = true
	t.mu.Unlock()

	t.callbacks.emitStatus(true)
	go t.readLoop(stream)
	return nil
}

func (t *WebTransportTransport) readLoop(stream webtransport.Stream) {
	r := bufio.NewReader(stream)
	for {
		frame, err := proto.ReadFrame(r)
		if err != nil {
			t.handleClose(err)
			return
		}

		msg, err := proto.Decode(frame)
		if err != nil {
			slog.Error("Dropping undecodable frame", "transport", t.Name(), "error", err)
			continue
		}
		t.callbacks.emitMessage(msg)
	}
}

func (t *WebTransportTransport) handleClose(err error) {
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	explicit := t.closed
	session := t.session
	t.session = nil
	t.stream = nil
	t.mu.Unlock()

	if !explicit {
		slog.Warn("WebTransport stream closed, session is done for this page", "error", err)
		if session != nil {
			session.CloseWithError(0, "stream closed")
		}
	}
	if wasConnected {
		t.callbacks.emitStatus(false)
	}
}

func (t *WebTransportTransport) Send(msg proto.Message) {
	t.mu.Lock()
	stream := t.stream
	connected := t.connected
	t.mu.Unlock()

	if !connected || stream == nil {
		slog.Warn("Dropping outbound message, webtransport not connected", "type", msg.Type)
		return
	}

	frame, err := proto.Encode(msg)
	if err != nil {
		slog.Error("Failed to encode outbound message", "type", msg.Type, "error", err)
		return
	}

	t.writeMu.Lock()
	err = proto.WriteFrame(stream, frame)
	t.writeMu.Unlock()
	if err != nil {
		slog.Warn("WebTransport write failed", "error", err)
	}
}

func (t *WebTransportTransport) Disconnect() {
	t.mu.Lock()
	t.closed = true
	session := t.session
	t.session = nil
	t.stream = nil
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()

	if session != nil {
		session.CloseWithError(0, "client disconnect")
	}
	if wasConnected {
		t.callbacks.emitStatus(false)
	}
}

func (t *WebTransportTransport) OnMessage(fn func(proto.Message)) {
	t.callbacks.onMessage(fn)
}

func (t *WebTransportTransport) OnStatusChange(fn func(bool)) {
	t.callbacks.onStatus(fn)
}

func (t *WebTransportTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
