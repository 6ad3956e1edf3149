package network

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/comit-network/cnd/swap"
	"github.com/comit-network/cnd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentities struct {
	alphaRedeem, betaRefund swap.Identity
	err                     error
}

func (s stubIdentities) Identities(ctx context.Context, req swap.Request) (swap.Identity, swap.Identity, error) {
	return s.alphaRedeem, s.betaRefund, s.err
}

func erc20ForErc20Request() swap.Request {
	return swap.Request{
		SwapID:       swap.NewID(),
		AlphaLedger:  swap.EthereumLedger(1),
		BetaLedger:   swap.EthereumLedger(1),
		AlphaAsset:   swap.Erc20Asset(common.HexToAddress("0x1"), uint256.NewInt(1)),
		BetaAsset:    swap.Erc20Asset(common.HexToAddress("0x2"), uint256.NewInt(1)),
		HashFunction: swap.Sha256,
		AlphaExpiry:  time.Now().Add(3 * time.Hour),
		BetaExpiry:   time.Now().Add(1 * time.Hour),
	}
}

func wellFormedRequest() swap.Request {
	return swap.Request{
		SwapID:       swap.NewID(),
		AlphaLedger:  swap.BitcoinLedger(swap.BitcoinRegtest),
		BetaLedger:   swap.EthereumLedger(1337),
		AlphaAsset:   swap.BitcoinAsset(100_000),
		BetaAsset:    swap.EtherAsset(uint256.NewInt(1_000_000_000_000_000_000)),
		HashFunction: swap.Sha256,
		AlphaExpiry:  time.Now().Add(3 * time.Hour),
		BetaExpiry:   time.Now().Add(1 * time.Hour),
	}
}

func envelopeFor(t *testing.T, req swap.Request) Envelope {
	t.Helper()
	headers, body, err := wire.EncodeRequest(req)
	require.NoError(t, err)
	return Envelope{
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
}

// TestHandleInbound_DeclinesUnsupportedCombination locks in boundary
// scenario S4: an erc20-for-erc20 request is declined UnsupportedSwap
// without the decision callback's identity lookup ever running, i.e.
// before anything would be persisted.
func TestHandleInbound_DeclinesUnsupportedCombination(t *testing.T) {
	req := erc20ForErc20Request()
	env := envelopeFor(t, req)

	decide := DefaultDecision(stubIdentities{})

	resp, err := HandleInbound(context.Background(), PeerID{}, env, decide)
	require.NoError(t, err)

	assert.Equal(t, string(wire.DecisionDeclined), resp.Headers["decision"])
	var body wire.DeclineBody
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, string(swap.ReasonUnsupportedSwap), body.Reason)
}

func TestHandleInbound_AcceptsSupportedCombination(t *testing.T) {
	req := wellFormedRequest()
	env := envelopeFor(t, req)

	decide := DefaultDecision(stubIdentities{
		alphaRedeem: swap.BitcoinIdentity(nil),
		betaRefund:  swap.EthereumIdentity(common.HexToAddress("0xabc")),
	})

	resp, err := HandleInbound(context.Background(), PeerID{}, env, decide)
	require.NoError(t, err)
	assert.Equal(t, string(wire.DecisionAccepted), resp.Headers["decision"])
}

// stubDialer lets tests control exactly what Propose observes without a
// real websocket round-trip.
type stubDialer struct {
	sendFunc func(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error)
}

func (d stubDialer) Send(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error) {
	return d.sendFunc(ctx, peer, env)
}
func (d stubDialer) Listen(func(context.Context, PeerID, Envelope) (Envelope, error)) error {
	return nil
}
func (d stubDialer) Close() error { return nil }

func regtestIdentity(t *testing.T, seedByte byte) swap.Identity {
	t.Helper()
	var raw [32]byte
	raw[31] = seedByte
	key, _ := btcec.PrivKeyFromBytes(raw[:])
	params, err := swap.BitcoinParams(swap.BitcoinRegtest)
	require.NoError(t, err)
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), params)
	require.NoError(t, err)
	return swap.BitcoinIdentity(addr)
}

func TestNegotiator_Propose_AcceptedResponse(t *testing.T) {
	req := wellFormedRequest()
	alphaRedeem := regtestIdentity(t, 7)
	betaRefund := swap.EthereumIdentity(common.HexToAddress("0xabc"))

	dialer := stubDialer{sendFunc: func(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error) {
		accept := swap.Accept{
			SwapID:                    req.SwapID,
			AlphaLedgerRedeemIdentity: alphaRedeem,
			BetaLedgerRefundIdentity:  betaRefund,
		}
		body, err := wire.EncodeAccept(accept)
		require.NoError(t, err)
		return Envelope{
			Headers: map[string]string{"decision": string(wire.DecisionAccepted)},
			Body:    json.RawMessage(body),
		}, nil
	}}

	n := NewNegotiator(dialer)
	resp, err := n.Propose(context.Background(), AddressHint{HasAddress: true, Address: "wss://peer"}, req)
	require.NoError(t, err)
	require.NotNil(t, resp.Accept)
	assert.Nil(t, resp.Decline)

	// The identities the responder committed to must survive the wire
	// round-trip, decoded against the ledgers the request named.
	assert.Equal(t, alphaRedeem.String(), resp.Accept.AlphaLedgerRedeemIdentity.String())
	assert.Equal(t, betaRefund.String(), resp.Accept.BetaLedgerRefundIdentity.String())
}

// TestNegotiator_Propose_TimesOutToDeclinedOther exercises the implicit
// outbound negotiation timeout of spec.md §5: a peer that never
// responds before alpha_expiry yields Declined(Other).
func TestNegotiator_Propose_TimesOutToDeclinedOther(t *testing.T) {
	req := wellFormedRequest()
	req.AlphaExpiry = time.Now().Add(20 * time.Millisecond)

	dialer := stubDialer{sendFunc: func(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error) {
		<-ctx.Done()
		return Envelope{}, ctx.Err()
	}}

	n := NewNegotiator(dialer)
	resp, err := n.Propose(context.Background(), AddressHint{HasAddress: true, Address: "wss://peer"}, req)
	require.NoError(t, err)
	require.NotNil(t, resp.Decline)
	assert.Equal(t, swap.ReasonOther, resp.Decline.Reason)
}

func TestNegotiator_Deliver_SendOnceAndDrop(t *testing.T) {
	dialer := stubDialer{sendFunc: func(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error) {
		<-ctx.Done()
		return Envelope{}, ctx.Err()
	}}
	n := NewNegotiator(dialer)

	id := swap.NewID()
	assert.False(t, n.Deliver(id, Response{}), "no pending negotiation to deliver to")
}

// TestNegotiator_AwaitDecision_DeliverCompletes exercises the inbound
// half of the single-owner response-channel pattern: the transport
// handler awaits, the HTTP decision route delivers exactly once.
func TestNegotiator_AwaitDecision_DeliverCompletes(t *testing.T) {
	dialer := stubDialer{sendFunc: func(ctx context.Context, peer AddressHint, env Envelope) (Envelope, error) {
		return Envelope{}, nil
	}}
	n := NewNegotiator(dialer)

	id := swap.NewID()
	ch := n.AwaitDecision(id)

	decline := swap.Decline{SwapID: id, Reason: swap.ReasonBadRateOrExpiry}
	require.True(t, n.Deliver(id, Response{Decline: &decline}))

	select {
	case resp := <-ch:
		require.NotNil(t, resp.Decline)
		assert.Equal(t, swap.ReasonBadRateOrExpiry, resp.Decline.Reason)
	default:
		t.Fatal("delivered response not buffered on the channel")
	}

	n.Forget(id)
	assert.False(t, n.Deliver(id, Response{}), "forgotten channel must not accept a second send")
}
