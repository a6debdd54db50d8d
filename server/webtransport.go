package server

import (
	"bufio"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/pywire/pywire/proto"
)

// WebTransportServer runs the HTTP/3 side of the dev server. Each client
// session carries all of its traffic on one bidirectional stream with
// varint-framed CBOR, matching the client transport.
type WebTransportServer struct {
	hub *Hub
	wt  *webtransport.Server
}

func NewWebTransportServer(addr string, tlsConf *tls.Config, hub *Hub) *WebTransportServer {
	s := &WebTransportServer{hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("/_pywire/wt", s.handleUpgrade)

	s.wt = &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConf,
			Handler:   mux,
		},
	}
	return s
}

func (s *WebTransportServer) ListenAndServe() error {
	return s.wt.ListenAndServe()
}

func (s *WebTransportServer) Close() error {
	return s.wt.Close()
}

func (s *WebTransportServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wtSess, err := s.wt.Upgrade(w, r)
	if err != nil {
		slog.Error("WebTransport upgrade failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// The client opens the stream right after the session settles.
	stream, err := wtSess.AcceptStream(wtSess.Context())
	if err != nil {
		slog.Error("WebTransport stream accept failed", "error", err)
		wtSess.CloseWithError(0, "no stream")
		return
	}

	session := &wtSession{id: newSessionID("wt"), session: wtSess, stream: stream}
	s.hub.Add(session)

	defer func() {
		s.hub.Remove(session)
		wtSess.CloseWithError(0, "session closed")
	}()

	reader := bufio.NewReader(stream)
	for {
		frame, err := proto.ReadFrame(reader)
		if err != nil {
			return
		}

		msg, err := proto.Decode(frame)
		if err != nil {
			slog.Error("Dropping undecodable frame", "id", session.id, "error", err)
			continue
		}
		s.hub.dispatch(session, msg)
	}
}

type wtSession struct {
	id      string
	session *webtransport.Session
	stream  webtransport.Stream
	writeMu sync.Mutex
}

func (s *wtSession) ID() string        { return s.id }
func (s *wtSession) Transport() string { return "webtransport" }

func (s *wtSession) Send(msg proto.Message) error {
	frame, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return proto.WriteFrame(s.stream, frame)
}

func (s *wtSession) Close() error {
	return s.session.CloseWithError(0, "server close")
}
