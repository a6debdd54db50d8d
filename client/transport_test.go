package client

import "testing"

func TestIsSecure(t *testing.T) {
	tests := []struct {
		pageURL string
		want    bool
	}{
		{"https://app.example/page", true},
		{"http://app.example/page", false},
		{"http://localhost:8000", false},
		{"not a url", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isSecure(tt.pageURL); got != tt.want {
			t.Errorf("isSecure(%q) = %v, want %v", tt.pageURL, got, tt.want)
		}
	}
}

func TestDerivedEndpointURLs(t *testing.T) {
	tests := []struct {
		name    string
		pageURL string
		ws      string
		wt      string
		poll    string
	}{
		{
			name:    "insecure page",
			pageURL: "http://localhost:8000/counter",
			ws:      "ws://localhost:8000/_pywire/ws",
			wt:      "https://localhost:8000/_pywire/wt",
			poll:    "http://localhost:8000/_pywire/poll",
		},
		{
			name:    "secure page upgrades the socket scheme",
			pageURL: "https://app.example/page?tab=2",
			ws:      "wss://app.example/_pywire/ws",
			wt:      "https://app.example/_pywire/wt",
			poll:    "https://app.example/_pywire/poll",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(tt.pageURL)
			if got := cfg.webSocketURL(); got != tt.ws {
				t.Errorf("webSocketURL() = %q, want %q", got, tt.ws)
			}
			if got := cfg.webTransportURL(); got != tt.wt {
				t.Errorf("webTransportURL() = %q, want %q", got, tt.wt)
			}
			if got := cfg.pollURL(); got != tt.poll {
				t.Errorf("pollURL() = %q, want %q", got, tt.poll)
			}
		})
	}
}

func TestEndpointURLOverrides(t *testing.T) {
	cfg := DefaultConfig("http://localhost:8000")
	cfg.WebSocketURL = "ws://other:9001/custom"
	cfg.PollURL = "http://other:9001/poll"

	if got := cfg.webSocketURL(); got != "ws://other:9001/custom" {
		t.Errorf("webSocketURL() = %q, override ignored", got)
	}
	if got := cfg.pollURL(); got != "http://other:9001/poll" {
		t.Errorf("pollURL() = %q, override ignored", got)
	}
}

func TestCallbackOrdering(t *testing.T) {
	var c callbacks
	var order []int

	c.onStatus(func(bool) { order = append(order, 1) })
	c.onStatus(func(bool) { order = append(order, 2) })
	c.onStatus(func(bool) { order = append(order, 3) })

	c.emitStatus(true)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("handlers ran out of registration order: %v", order)
	}
}
