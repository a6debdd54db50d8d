package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pywire/pywire/proto"
)

// SessionHeader carries the poll session id on every exchange after connect.
const SessionHeader = "X-PyWire-Session"

const (
	pollRetryDelay  = 1 * time.Second
	pollSendTimeout = 10 * time.Second
)

// PollTransport is the terminal fallback: repeated request/response exchanges
// instead of a persistent stream. It has no environment preconditions, so the
// manager always has at least one usable candidate. IsConnected reflects
// whether the most recent exchange succeeded.
type PollTransport struct {
	url         string
	client      *http.Client
	clk         clock.Clock
	sendTimeout time.Duration

	mu        sync.Mutex
	sessionID string
	connected bool
	cancel    context.CancelFunc

	callbacks callbacks
}

func NewPollTransport(cfg Config) *PollTransport {
	return &PollTransport{
		url: cfg.pollURL(),
		// No global timeout: the GET long-polls and is bounded server-side.
		// Short exchanges carry their own deadline instead.
		client:      &http.Client{},
		clk:         clock.New(),
		sendTimeout: pollSendTimeout,
	}
}

func (t *PollTransport) Name() string { return "http-poll" }

// Connect performs the hello exchange: the server issues a session id that
// scopes the outbound queue held for this client.
func (t *PollTransport) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, nil)
	if err != nil {
		return fmt.Errorf("poll hello request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll hello: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	sessionID := resp.Header.Get(SessionHeader)
	if resp.StatusCode != http.StatusOK || sessionID == "" {
		return fmt.Errorf("poll hello: unexpected response %d", resp.StatusCode)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.sessionID = sessionID
	t.connected = true
	t.cancel = cancel
	t.mu.Unlock()

	t.callbacks.emitStatus(true)
	go t.pollLoop(loopCtx, sessionID)
	return nil
}

func (t *PollTransport) pollLoop(ctx context.Context, sessionID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		batch, err := t.poll(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Poll exchange failed", "error", err)
			t.setConnected(false)
			t.clk.Sleep(pollRetryDelay)
			continue
		}

		t.setConnected(true)
		for _, frame := range batch {
			msg, err := proto.Decode(frame)
			if err != nil {
				slog.Error("Dropping undecodable frame", "transport", t.Name(), "error", err)
				continue
			}
			t.callbacks.emitMessage(msg)
		}
	}
}

// poll performs one long-poll exchange and returns the drained frames, if any.
func (t *PollTransport) poll(ctx context.Context, sessionID string) ([][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(SessionHeader, sessionID)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	case http.StatusOK:
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected poll status %d", resp.StatusCode)
	}

	var batch [][]byte
	for {
		frame, err := proto.ReadFrame(resp.Body)
		if err == io.EOF {
			return batch, nil
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, frame)
	}
}

func (t *PollTransport) setConnected(connected bool) {
	t.mu.Lock()
	changed := t.connected != connected
	t.connected = connected
	t.mu.Unlock()

	if changed {
		t.callbacks.emitStatus(connected)
	}
}

func (t *PollTransport) Send(msg proto.Message) {
	t.mu.Lock()
	sessionID := t.sessionID
	connected := t.connected
	t.mu.Unlock()

	if !connected || sessionID == "" {
		slog.Warn("Dropping outbound message, poll transport not connected", "type", msg.Type)
		return
	}

	frame, err := proto.Encode(msg)
	if err != nil {
		slog.Error("Failed to encode outbound message", "type", msg.Type, "error", err)
		return
	}

	// A send is a short exchange; a hung server must not block the caller.
	ctx, cancel := context.WithTimeout(context.Background(), t.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/send", bytes.NewReader(frame))
	if err != nil {
		slog.Error("Failed to build send request", "error", err)
		return
	}
	req.Header.Set(SessionHeader, sessionID)
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := t.client.Do(req)
	if err != nil {
		slog.Warn("Poll send failed", "error", err)
		t.setConnected(false)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		slog.Warn("Poll send rejected", "status", resp.StatusCode)
	}
}

func (t *PollTransport) Disconnect() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	sessionID := t.sessionID
	t.sessionID = ""
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sessionID != "" {
		ctx, cancelBye := context.WithTimeout(context.Background(), t.sendTimeout)
		defer cancelBye()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.url, nil)
		if err == nil {
			req.Header.Set(SessionHeader, sessionID)
			if resp, err := t.client.Do(req); err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}
	if wasConnected {
		t.callbacks.emitStatus(false)
	}
}

func (t *PollTransport) OnMessage(fn func(proto.Message)) {
	t.callbacks.onMessage(fn)
}

func (t *PollTransport) OnStatusChange(fn func(bool)) {
	t.callbacks.onStatus(fn)
}

func (t *PollTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
