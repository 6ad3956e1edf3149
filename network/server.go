package network

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// webSocketServer upgrades inbound HTTP connections to websockets and
// dispatches a single Envelope exchange per connection to handler.
type webSocketServer struct {
	handler func(ctx context.Context, from PeerID, env Envelope) (Envelope, error)
}

func newWebSocketServer(handler func(ctx context.Context, from PeerID, env Envelope) (Envelope, error)) *webSocketServer {
	return &webSocketServer{handler: handler}
}

func (s *webSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		return
	}

	// The peer's identity is read from the X-Cnd-Peer-Id header of the
	// HTTP upgrade request, not from the envelope (the wire protocol's
	// "id" header is the swap id, not the peer id). A missing or
	// malformed header yields the zero PeerID.
	from, err := ParsePeerID(r.Header.Get("X-Cnd-Peer-Id"))
	if err != nil {
		from = PeerID{}
	}

	resp, err := s.handler(r.Context(), from, env)
	if err != nil {
		_ = conn.WriteJSON(Envelope{})
		return
	}
	_ = conn.WriteJSON(resp)
}
