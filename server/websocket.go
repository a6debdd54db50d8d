package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pywire/pywire/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dev server serves the page itself, same-origin in practice
	},
}

// WebSocketHandler upgrades requests on the socket endpoint and pumps binary
// CBOR frames between the connection and the hub.
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}

	session := &wsSession{id: newSessionID("ws"), conn: conn}
	h.hub.Add(session)

	defer func() {
		h.hub.Remove(session)
		conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket connection error", "id", session.id, "error", err)
			}
			return
		}

		if kind != websocket.BinaryMessage {
			slog.Warn("Ignoring non-binary frame", "id", session.id, "kind", kind)
			continue
		}

		msg, err := proto.Decode(data)
		if err != nil {
			slog.Error("Dropping undecodable frame", "id", session.id, "error", err)
			continue
		}
		h.hub.dispatch(session, msg)
	}
}

type wsSession struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSession) ID() string        { return s.id }
func (s *wsSession) Transport() string { return "websocket" }

func (s *wsSession) Send(msg proto.Message) error {
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}
