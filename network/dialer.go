package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Envelope is the framed message exchanged between peers: the wire
// headers (rendered to strings so they survive the grammar's own
// round-trip, see package wire) plus a raw JSON body.
type Envelope struct {
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// PeerDialer sends and receives framed Envelopes to a PeerID, with an
// optional address hint (spec.md §4.6). It is the seam at which the
// genuinely low-level P2P transport (out of scope per spec.md §1)
// would plug in; the reference implementation below frames Envelopes
// as JSON over a websocket connection, which is as far as this spec's
// scope goes.
type PeerDialer interface {
	// Send delivers env to peer and returns the peer's response
	// envelope, or an error classified as swap.TransportFailure by the
	// caller.
	Send(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error)

	// Listen registers handler to be invoked for every inbound
	// envelope from any peer, returning a PeerID extracted from the
	// connection and the peer's response envelope to write back.
	Listen(handler func(ctx context.Context, from PeerID, env Envelope) (Envelope, error)) error

	Close() error
}

// WebsocketDialer is the reference PeerDialer: each peer is reached by
// dialing its address hint over wss:// and exchanging exactly one
// JSON Envelope per connection.
type WebsocketDialer struct {
	mu     sync.Mutex
	server *webSocketServer
}

// NewWebsocketDialer constructs a dialer with no inbound handler; a
// node that only originates outbound requests never calls Listen.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{}
}

func (d *WebsocketDialer) Send(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error) {
	if !peer.HasAddress {
		return Envelope{}, fmt.Errorf("network: no address hint for peer %s", peer.PeerID)
	}

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, peer.Address, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("network: dialing %s: %w", peer.Address, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(env); err != nil {
		return Envelope{}, fmt.Errorf("network: sending envelope to %s: %w", peer.Address, err)
	}

	var resp Envelope
	if err := conn.ReadJSON(&resp); err != nil {
		return Envelope{}, fmt.Errorf("network: reading response from %s: %w", peer.Address, err)
	}
	return resp, nil
}

func (d *WebsocketDialer) Listen(handler func(ctx context.Context, from PeerID, env Envelope) (Envelope, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.server = newWebSocketServer(handler)
	return nil
}

// Handler exposes the underlying http.Handler so node wiring can mount
// it on an *http.ServeMux alongside the httpapi façade.
func (d *WebsocketDialer) Handler() *webSocketServer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.server
}

func (d *WebsocketDialer) Close() error {
	return nil
}
