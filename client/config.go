package client

import (
	"crypto/tls"
	"time"
)

const (
	// Default endpoint paths on the page's own host.
	WebSocketPath    = "/_pywire/ws"
	WebTransportPath = "/_pywire/wt"
	PollPath         = "/_pywire/poll"

	defaultReconnectBase = 1 * time.Second
	defaultReconnectMax  = 30 * time.Second
)

// Config controls which transports the manager builds and how they behave.
// The zero value of the Enable flags means disabled; use DefaultConfig for
// the standard setup with every transport on.
type Config struct {
	// PageURL is the URL the page was served from. It decides the secure
	// context gate and the default endpoint URLs.
	PageURL string

	EnableWebTransport bool
	EnableWebSocket    bool

	// Endpoint overrides. Empty means derive from PageURL.
	WebTransportURL string
	WebSocketURL    string
	PollURL         string

	// Reconnect back-off tuning for the socket transport.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// ConnectTimeout bounds each candidate's connect attempt. Zero keeps the
	// historical behavior of trusting the underlying stack's own timeout.
	ConnectTimeout time.Duration

	// TLSConfig applies to the WebTransport dial, mainly so dev setups can
	// trust the server's self-signed certificate.
	TLSConfig *tls.Config
}

// DefaultConfig returns the standard configuration: all transports enabled,
// endpoints derived from the page URL, 1s..30s reconnect back-off.
func DefaultConfig(pageURL string) Config {
	return Config{
		PageURL:            pageURL,
		EnableWebTransport: true,
		EnableWebSocket:    true,
		ReconnectBaseDelay: defaultReconnectBase,
		ReconnectMaxDelay:  defaultReconnectMax,
	}
}

func (c Config) webSocketURL() string {
	if c.WebSocketURL != "" {
		return c.WebSocketURL
	}
	return endpointURL(c.PageURL, "wss", "ws", WebSocketPath)
}

func (c Config) webTransportURL() string {
	if c.WebTransportURL != "" {
		return c.WebTransportURL
	}
	// WebTransport only exists over HTTP/3, the scheme is always https.
	return endpointURL(c.PageURL, "https", "https", WebTransportPath)
}

func (c Config) pollURL() string {
	if c.PollURL != "" {
		return c.PollURL
	}
	return endpointURL(c.PageURL, "https", "http", PollPath)
}

func (c Config) reconnectBase() time.Duration {
	if c.ReconnectBaseDelay > 0 {
		return c.ReconnectBaseDelay
	}
	return defaultReconnectBase
}

func (c Config) reconnectMax() time.Duration {
	if c.ReconnectMaxDelay > 0 {
		return c.ReconnectMaxDelay
	}
	return defaultReconnectMax
}
