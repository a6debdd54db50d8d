package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pywire/pywire/proto"
)

type fakeTransport struct {
	name         string
	connectErr   error
	connectCalls int
	connected    bool
	sent         []proto.Message
	callbacks    callbacks
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Send(msg proto.Message) { f.sent = append(f.sent, msg) }

func (f *fakeTransport) Disconnect() { f.connected = false }

func (f *fakeTransport) OnMessage(fn func(proto.Message)) { f.callbacks.onMessage(fn) }

func (f *fakeTransport) OnStatusChange(fn func(bool)) { f.callbacks.onStatus(fn) }

func (f *fakeTransport) IsConnected() bool { return f.connected }

type gatedFakeTransport struct {
	fakeTransport
	available bool
}

func (g *gatedFakeTransport) Available() bool { return g.available }

func newFakeManager(candidates ...Transport) *TransportManager {
	return &TransportManager{candidates: candidates}
}

func TestConnectStopsAtFirstSuccess(t *testing.T) {
	first := &fakeTransport{name: "first"}
	second := &fakeTransport{name: "second"}
	m := newFakeManager(first, second)

	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, "first", m.ActiveTransport())
	assert.Equal(t, 1, first.connectCalls)
	assert.Equal(t, 0, second.connectCalls, "lower-priority candidate must not be attempted")
}

func TestConnectFallsBackOnFailure(t *testing.T) {
	first := &fakeTransport{name: "first", connectErr: errors.New("refused")}
	second := &fakeTransport{name: "second"}
	m := newFakeManager(first, second)

	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, "second", m.ActiveTransport())
	assert.Equal(t, 1, first.connectCalls, "failed candidate is attempted exactly once")
}

func TestConnectAllTransportsFailed(t *testing.T) {
	first := &fakeTransport{name: "first", connectErr: errors.New("refused")}
	second := &fakeTransport{name: "second", connectErr: errors.New("refused")}
	m := newFakeManager(first, second)

	err := m.Connect(context.Background())

	require.EqualError(t, err, "PyWire: All transports failed")
	assert.Equal(t, "", m.ActiveTransport())
}

func TestConnectSkipsGatedCandidate(t *testing.T) {
	gated := &gatedFakeTransport{fakeTransport: fakeTransport{name: "gated"}, available: false}
	fallback := &fakeTransport{name: "fallback"}
	m := newFakeManager(gated, fallback)

	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, 0, gated.connectCalls, "precondition failure must skip without a connect attempt")
	assert.Equal(t, "fallback", m.ActiveTransport())
}

func TestConnectAttemptsAvailableGatedCandidate(t *testing.T) {
	gated := &gatedFakeTransport{fakeTransport: fakeTransport{name: "gated"}, available: true}
	m := newFakeManager(gated, &fakeTransport{name: "fallback"})

	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, "gated", m.ActiveTransport())
}

func TestPreConnectHandlersReplayed(t *testing.T) {
	tr := &fakeTransport{name: "only"}
	m := newFakeManager(tr)

	var got []string
	m.OnMessage(func(msg proto.Message) { got = append(got, "a:"+msg.Type) })
	m.OnMessage(func(msg proto.Message) { got = append(got, "b:"+msg.Type) })

	var statuses []bool
	m.OnStatusChange(func(connected bool) { statuses = append(statuses, connected) })

	require.NoError(t, m.Connect(context.Background()))

	tr.callbacks.emitMessage(proto.Message{Type: "patch"})
	tr.callbacks.emitStatus(true)

	assert.Equal(t, []string{"a:patch", "b:patch"}, got, "handlers fire once each, in registration order")
	assert.Equal(t, []bool{true}, statuses)
}

func TestHandlersAfterConnectGoToActiveTransport(t *testing.T) {
	tr := &fakeTransport{name: "only"}
	m := newFakeManager(tr)
	require.NoError(t, m.Connect(context.Background()))

	received := 0
	m.OnMessage(func(proto.Message) { received++ })

	tr.callbacks.emitMessage(proto.Message{Type: "reload"})
	assert.Equal(t, 1, received)
}

func TestSendWithoutActiveTransport(t *testing.T) {
	m := newFakeManager(&fakeTransport{name: "never"})

	// Must be a silent no-op, not a panic or error.
	m.Send(proto.NewReload())
	assert.False(t, m.IsConnected())
}

func TestSendForwardsToActiveTransport(t *testing.T) {
	tr := &fakeTransport{name: "only"}
	m := newFakeManager(tr)
	require.NoError(t, m.Connect(context.Background()))

	m.Send(proto.NewReload())

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "reload", tr.sent[0].Type)
}

func TestDisconnectClearsActive(t *testing.T) {
	tr := &fakeTransport{name: "only"}
	m := newFakeManager(tr)
	require.NoError(t, m.Connect(context.Background()))

	m.Disconnect()
	m.Disconnect()

	assert.Equal(t, "", m.ActiveTransport())
	assert.False(t, tr.connected)
	assert.False(t, m.IsConnected())
}

func candidateNames(m *TransportManager) []string {
	names := make([]string, 0, len(m.candidates))
	for _, c := range m.candidates {
		names = append(names, c.Name())
	}
	return names
}

func TestCandidateOrderFromConfig(t *testing.T) {
	m := NewTransportManager(DefaultConfig("https://app.example"))
	assert.Equal(t, []string{"webtransport", "websocket", "http-poll"}, candidateNames(m))
}

func TestWebTransportDisabledByConfig(t *testing.T) {
	cfg := DefaultConfig("https://app.example")
	cfg.EnableWebTransport = false
	m := NewTransportManager(cfg)
	assert.Equal(t, []string{"websocket", "http-poll"}, candidateNames(m))
}

func TestWebSocketDisabledByConfig(t *testing.T) {
	cfg := DefaultConfig("https://app.example")
	cfg.EnableWebSocket = false
	m := NewTransportManager(cfg)
	assert.Equal(t, []string{"webtransport", "http-poll"}, candidateNames(m))
}

func TestPollFallbackAlwaysPresent(t *testing.T) {
	cfg := DefaultConfig("http://app.example")
	cfg.EnableWebTransport = false
	cfg.EnableWebSocket = false
	m := NewTransportManager(cfg)
	assert.Equal(t, []string{"http-poll"}, candidateNames(m))
}

func TestInsecurePageGatesWebTransport(t *testing.T) {
	m := NewTransportManager(DefaultConfig("http://app.example"))

	wt, ok := m.candidates[0].(*WebTransportTransport)
	require.True(t, ok)
	assert.False(t, wt.Available(), "insecure page must gate the datagram transport")
}

func TestCapabilityProbeGatesWebTransport(t *testing.T) {
	old := webTransportSupported
	webTransportSupported = func() bool { return false }
	defer func() { webTransportSupported = old }()

	m := NewTransportManager(DefaultConfig("https://app.example"))

	wt, ok := m.candidates[0].(*WebTransportTransport)
	require.True(t, ok)
	assert.False(t, wt.Available())
}
