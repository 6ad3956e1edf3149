// Package network implements the peer-to-peer session glue of
// spec.md §4.4 and the PeerDialer dependency surface of §4.6: PeerID
// derivation, a websocket-based reference PeerDialer, and the
// negotiation session that drives a single outbound or inbound
// request/response exchange.
package network

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// PeerID is the 32-byte peer identifier derived from a libp2p-style
// key, spec.md §4.4. Only the identifier itself is in scope here — the
// low-level P2P transport framing it would normally key into is an
// external collaborator per spec.md §1.
type PeerID [32]byte

// PeerIDFromPublicKey derives a PeerID from an ECDSA public key: the
// SHA3-256 hash of the X coordinate's big-endian bytes followed by the
// Y coordinate's (each without leading zero bytes). The 32-byte digest
// is used whole, with no truncation.
func PeerIDFromPublicKey(pub *ecdsa.PublicKey) PeerID {
	raw := append(pub.X.Bytes(), pub.Y.Bytes()...)
	sum := sha3.Sum256(raw)
	return PeerID(sum)
}

func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// ParsePeerID parses the hex string form.
func ParsePeerID(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("network: invalid peer id %q: %w", s, err)
	}
	if len(b) != 32 {
		return PeerID{}, fmt.Errorf("network: peer id must be 32 bytes, got %d", len(b))
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

// AddressHint is an optional transport address a caller can supply
// alongside a PeerID to short-circuit discovery (spec.md §6: "peer
// (PeerId or {peer_id, address_hint})").
type AddressHint struct {
	PeerID     PeerID
	Address    string // e.g. "wss://host:port"
	HasAddress bool
}
