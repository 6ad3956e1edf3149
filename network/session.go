package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/comit-network/cnd/swap"
	"github.com/comit-network/cnd/wire"
	"github.com/ethereum/go-ethereum/log"
)

// Response is the outcome of a negotiation: either an Accept or a
// Decline, mutually exclusive (spec.md §3 SwapCommunicationState).
type Response struct {
	Accept  *swap.Accept
	Decline *swap.Decline
}

// ResponderDecision is supplied by the caller (the part of the system
// that actually knows which ledger/asset combinations are enabled
// locally) to decide how an inbound request should be answered.
// Keeping this a callback rather than an interface into statemachine
// or db avoids a package-import cycle; network only needs to know the
// verdict.
type ResponderDecision func(ctx context.Context, from PeerID, req swap.Request) (swap.Accept, swap.Decline, bool)

// Negotiator drives the per-swap negotiation session: it maintains the
// single-owner response-channel map of spec.md §5 ("Response channels
// for in-flight requests: a mapping from swap_id to a one-shot sender,
// single-owner semantics with send-once-and-drop"), and implements the
// implicit outbound timeout equal to alpha_expiry.
type Negotiator struct {
	dialer PeerDialer

	mu      sync.Mutex
	pending map[swap.ID]chan Response
}

// NewNegotiator constructs a Negotiator over the given PeerDialer.
func NewNegotiator(dialer PeerDialer) *Negotiator {
	return &Negotiator{
		dialer:  dialer,
		pending: make(map[swap.ID]chan Response),
	}
}

// Propose sends req to peer and blocks until a response arrives or the
// implicit timeout (req.AlphaExpiry) elapses, whichever is first.
// A timeout is reported as a Decline with ReasonOther, matching
// spec.md §5 exactly ("the swap is marked Declined(Other)").
func (n *Negotiator) Propose(ctx context.Context, peer AddressHint, req swap.Request) (Response, error) {
	ch := make(chan Response, 1)

	n.mu.Lock()
	n.pending[req.SwapID] = ch
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.pending, req.SwapID)
		n.mu.Unlock()
	}()

	headers, body, err := wire.EncodeRequest(req)
	if err != nil {
		return Response{}, fmt.Errorf("network: encoding request: %w", err)
	}
	env := Envelope{
		Headers: map[string]string{
			"id":           req.SwapID.String(),
			"alpha_ledger": headers.AlphaLedger.String(),
			"beta_ledger":  headers.BetaLedger.String(),
			"alpha_asset":  headers.AlphaAsset.String(),
			"beta_asset":   headers.BetaAsset.String(),
			"protocol":     headers.Protocol.String(),
		},
		Body: json.RawMessage(body),
	}

	deadline := req.AlphaExpiry
	timeoutCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	resp, err := n.dialer.Send(timeoutCtx, peer, env)
	if err != nil {
		log.Warn("negotiation transport failure, declining locally", "swap_id", req.SwapID, "err", err)
		return Response{Decline: &swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonOther}}, nil
	}

	return decodeResponse(req, resp)
}

func decodeResponse(req swap.Request, env Envelope) (Response, error) {
	swapID := req.SwapID
	decisionHeader, ok := env.Headers["decision"]
	if !ok {
		return Response{}, fmt.Errorf("network: response missing decision header")
	}
	h, err := wire.ParseHeader(decisionHeader)
	if err != nil {
		return Response{}, fmt.Errorf("network: parsing decision header: %w", err)
	}

	switch wire.Decision(h.Value) {
	case wire.DecisionAccepted:
		var body wire.AcceptBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return Response{}, fmt.Errorf("network: decoding accept body: %w", err)
		}
		// The identity strings only decode against the ledgers the
		// original request named; the wire body itself carries no ledger
		// discriminator (spec.md §4.4).
		alphaRedeem, err := swap.IdentityFromString(body.AlphaLedgerRedeemIdentity, req.AlphaLedger)
		if err != nil {
			return Response{}, fmt.Errorf("network: accept alpha_ledger_redeem_identity: %w", err)
		}
		betaRefund, err := swap.IdentityFromString(body.BetaLedgerRefundIdentity, req.BetaLedger)
		if err != nil {
			return Response{}, fmt.Errorf("network: accept beta_ledger_refund_identity: %w", err)
		}
		return Response{Accept: &swap.Accept{
			SwapID:                    swapID,
			AlphaLedgerRedeemIdentity: alphaRedeem,
			BetaLedgerRefundIdentity:  betaRefund,
		}}, nil
	case wire.DecisionDeclined:
		var body wire.DeclineBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return Response{}, fmt.Errorf("network: decoding decline body: %w", err)
		}
		reason := swap.DeclineReason(body.Reason)
		if !reason.Valid() {
			reason = swap.ReasonOther
		}
		return Response{Decline: &swap.Decline{SwapID: swapID, Reason: reason}}, nil
	default:
		return Response{}, fmt.Errorf("network: unknown decision %q", h.Value)
	}
}

// HandleInbound answers an inbound SWAP request using decide, and
// returns the response Envelope to write back to the peer.
func HandleInbound(ctx context.Context, from PeerID, env Envelope, decide ResponderDecision) (Envelope, error) {
	req, err := decodeRequestEnvelope(env)
	if err != nil {
		return declineEnvelope(swap.ID{}, swap.ReasonUnsupportedProtocol), nil
	}

	accept, decline, ok := decide(ctx, from, req)
	if !ok {
		return declineEnvelope(req.SwapID, decline.Reason), nil
	}
	return acceptEnvelope(req.SwapID, accept)
}

func decodeRequestEnvelope(env Envelope) (swap.Request, error) {
	protocolHeader, err := wire.ParseHeader(env.Headers["protocol"])
	if err != nil {
		return swap.Request{}, err
	}
	hashFn, recognized := wire.DecodeProtocolHeader(protocolHeader)
	if !recognized {
		return swap.Request{}, fmt.Errorf("network: unrecognized protocol")
	}

	idStr := env.Headers["id"]
	id, err := swap.ParseID(idStr)
	if err != nil {
		return swap.Request{}, err
	}

	alphaLedgerHeader, _ := wire.ParseHeader(env.Headers["alpha_ledger"])
	betaLedgerHeader, _ := wire.ParseHeader(env.Headers["beta_ledger"])
	alphaAssetHeader, _ := wire.ParseHeader(env.Headers["alpha_asset"])
	betaAssetHeader, _ := wire.ParseHeader(env.Headers["beta_asset"])

	body, err := wire.DecodeRequestBody(env.Body)
	if err != nil {
		return swap.Request{}, err
	}

	alphaLedger := wire.DecodeLedgerHeader(alphaLedgerHeader)
	betaLedger := wire.DecodeLedgerHeader(betaLedgerHeader)

	req := swap.Request{
		SwapID:       id,
		AlphaLedger:  alphaLedger,
		BetaLedger:   betaLedger,
		AlphaAsset:   wire.DecodeAssetHeader(alphaAssetHeader),
		BetaAsset:    wire.DecodeAssetHeader(betaAssetHeader),
		HashFunction: hashFn,
		AlphaExpiry:  wire.Timestamp(body.AlphaExpiry),
		BetaExpiry:   wire.Timestamp(body.BetaExpiry),
		SecretHash:   body.SecretHash,
	}

	// Identity decoding is best-effort at this layer: an unknown ledger
	// header leaves the identity zero and the request flows on to the
	// decision callback, which declines UnsupportedSwap — the decline
	// path must not be cut off by an undecodable identity (spec.md §4.4
	// "Unknown ledger/asset headers result in decision: declined").
	if identity, err := swap.IdentityFromString(body.AlphaLedgerRefundIdentity, alphaLedger); err == nil {
		req.AlphaLedgerRefundIdentity = identity
	}
	if identity, err := swap.IdentityFromString(body.BetaLedgerRedeemIdentity, betaLedger); err == nil {
		req.BetaLedgerRedeemIdentity = identity
	}

	return req, nil
}

func acceptEnvelope(id swap.ID, accept swap.Accept) (Envelope, error) {
	body, err := wire.EncodeAccept(accept)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Headers: map[string]string{"decision": string(wire.DecisionAccepted)},
		Body:    json.RawMessage(body),
	}, nil
}

func declineEnvelope(id swap.ID, reason swap.DeclineReason) Envelope {
	if !reason.Valid() {
		reason = swap.ReasonOther
	}
	body, _ := wire.EncodeDecline(swap.Decline{SwapID: id, Reason: reason})
	return Envelope{
		Headers: map[string]string{"decision": string(wire.DecisionDeclined)},
		Body:    json.RawMessage(body),
	}
}

// AwaitDecision registers the single-owner response channel for an
// inbound request the local user has yet to decide on: the transport
// handler blocks on the returned channel, and the HTTP accept/decline
// route completes it via Deliver. Callers must Forget the id once the
// exchange resolves, whichever way.
func (n *Negotiator) AwaitDecision(swapID swap.ID) <-chan Response {
	ch := make(chan Response, 1)
	n.mu.Lock()
	n.pending[swapID] = ch
	n.mu.Unlock()
	return ch
}

// Forget drops swapID's pending response channel, if any.
func (n *Negotiator) Forget(swapID swap.ID) {
	n.mu.Lock()
	delete(n.pending, swapID)
	n.mu.Unlock()
}

// Deliver hands resp to the response channel registered for swapID,
// completing an AwaitDecision wait. It never blocks: with no channel
// registered, or with the channel's single slot already full, resp is
// dropped and Deliver returns false. Propose also registers a channel
// under its swap id while in flight, but it takes its answer only from
// the dialer's reply to Send, so a response delivered for an outbound
// Propose is not read.
func (n *Negotiator) Deliver(swapID swap.ID, resp Response) bool {
	n.mu.Lock()
	ch, ok := n.pending[swapID]
	n.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}
