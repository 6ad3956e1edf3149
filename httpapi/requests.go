package httpapi

import (
	"encoding/json"
	"time"

	"github.com/comit-network/cnd/network"
	"github.com/comit-network/cnd/swap"
)

// createSwapRequest is the body of POST /swaps/rfc003 (spec.md §6).
// AlphaExpiry/BetaExpiry are optional; defaultExpiries fills them in
// the way spec.md names: "alpha now+24h, beta now+12h".
type createSwapRequest struct {
	AlphaLedger swap.Ledger `json:"alpha_ledger"`
	BetaLedger  swap.Ledger `json:"beta_ledger"`
	AlphaAsset  swap.Asset  `json:"alpha_asset"`
	BetaAsset   swap.Asset  `json:"beta_asset"`

	AlphaExpiry *time.Time `json:"alpha_expiry,omitempty"`
	BetaExpiry  *time.Time `json:"beta_expiry,omitempty"`

	// Both identities go into the Request: the alpha refund identity
	// (the initiator funds alpha first and needs a refund path) and the
	// beta redeem identity. Each is optional; one that is omitted is
	// derived from the node's SecretSource for this swap id.
	AlphaLedgerRefundIdentity *swap.Identity `json:"alpha_ledger_refund_identity,omitempty"`
	BetaLedgerRedeemIdentity  *swap.Identity `json:"beta_ledger_redeem_identity,omitempty"`

	Peer peerRequest `json:"peer"`
}

// peerRequest accepts both the bare PeerId form and the
// {peer_id, address_hint} form spec.md §6 documents.
type peerRequest struct {
	PeerID      string `json:"peer_id"`
	AddressHint string `json:"address_hint,omitempty"`
}

func (p *peerRequest) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		p.PeerID = bare
		return nil
	}
	var obj struct {
		PeerID      string `json:"peer_id"`
		AddressHint string `json:"address_hint,omitempty"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.PeerID = obj.PeerID
	p.AddressHint = obj.AddressHint
	return nil
}

func (p peerRequest) toAddressHint() (network.AddressHint, error) {
	id, err := network.ParsePeerID(p.PeerID)
	if err != nil {
		return network.AddressHint{}, err
	}
	return network.AddressHint{PeerID: id, Address: p.AddressHint, HasAddress: p.AddressHint != ""}, nil
}

const (
	defaultAlphaExpiry = 24 * time.Hour
	defaultBetaExpiry  = 12 * time.Hour
)

func (r createSwapRequest) withDefaults(now time.Time) createSwapRequest {
	if r.AlphaExpiry == nil {
		t := now.Add(defaultAlphaExpiry)
		r.AlphaExpiry = &t
	}
	if r.BetaExpiry == nil {
		t := now.Add(defaultBetaExpiry)
		r.BetaExpiry = &t
	}
	return r
}

// createSwapResponse is the 201 body: `{ id }`.
type createSwapResponse struct {
	ID swap.ID `json:"id"`
}

// declineRequest is the body of the decline route and carries the
// reason; the accept route reads no body, since the responder's
// identities come from its own IdentityProvider.
type declineRequest struct {
	Reason swap.DeclineReason `json:"reason"`
}
