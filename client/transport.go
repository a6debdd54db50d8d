package client

import (
	"context"
	"net/url"
	"sync"

	"github.com/pywire/pywire/proto"
)

// Transport is a single connection strategy to the PyWire server. Each
// implementation owns exactly one underlying connection.
type Transport interface {
	// Name identifies the transport for diagnostics and ActiveTransport().
	Name() string
	// Connect establishes the underlying connection. It settles exactly once
	// per call and leaves no open socket behind on failure.
	Connect(ctx context.Context) error
	// Send serializes and transmits a message. With no open connection this
	// is a logged no-op: outbound messages are never queued or retried.
	Send(msg proto.Message)
	// Disconnect tears down the connection and disables auto-reconnect.
	// Idempotent, safe on a never-connected instance.
	Disconnect()
	OnMessage(fn func(proto.Message))
	OnStatusChange(fn func(connected bool))
	IsConnected() bool
}

// gated is implemented by transports with environment preconditions. The
// manager skips an unavailable candidate without calling Connect, so a
// structurally unusable transport produces no failure noise.
type gated interface {
	Available() bool
}

// callbacks holds a transport's handler registrations. Lists are append-only
// for the transport's lifetime and invoked in registration order.
type callbacks struct {
	mu      sync.Mutex
	message []func(proto.Message)
	status  []func(bool)
}

func (c *callbacks) onMessage(fn func(proto.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = append(c.message, fn)
}

func (c *callbacks) onStatus(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = append(c.status, fn)
}

func (c *callbacks) emitMessage(msg proto.Message) {
	c.mu.Lock()
	handlers := make([]func(proto.Message), len(c.message))
	copy(handlers, c.message)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
}

func (c *callbacks) emitStatus(connected bool) {
	c.mu.Lock()
	handlers := make([]func(bool), len(c.status))
	copy(handlers, c.status)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(connected)
	}
}

// isSecure reports whether the page was served over a secure scheme. Checked
// on the URL itself, not by probing the network.
func isSecure(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return u.Scheme == "https"
}

// endpointURL derives a transport endpoint from the page URL, swapping the
// scheme and fixing the path while keeping the host.
func endpointURL(pageURL, secureScheme, plainScheme, path string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = secureScheme
	} else {
		u.Scheme = plainScheme
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
