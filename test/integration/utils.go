package integration

import (
	"net"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pywire/pywire/proto"
	"github.com/pywire/pywire/server"
)

func getRandomUDPPort(t *testing.T) int {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to get port: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// startServer runs the HTTP transport endpoints on an ephemeral port and
// returns the hub plus the page URL clients should pretend they loaded.
func startServer(t *testing.T) (*server.Hub, string) {
	t.Helper()
	hub := server.NewHub()
	s := server.New("localhost:0", hub)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return hub, srv.URL
}

// messageRecorder collects inbound messages for assertions.
type messageRecorder struct {
	mu   sync.Mutex
	msgs []proto.Message
}

func (r *messageRecorder) record(msg proto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *messageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *messageRecorder) first() proto.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[0]
}
