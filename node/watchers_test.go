package node

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comit-network/cnd/htlc"
	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/swap"
	"github.com/comit-network/cnd/watch"
)

func btcIdentity(t *testing.T, seedByte byte) swap.Identity {
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

// acceptedState is a BTC-for-ETH swap in the Accepted communication
// phase, identities bound on both sides.
func acceptedState(t *testing.T) swap.State {
	t.Helper()

	secret := swap.Secret{}
	copy(secret[:], "hello world, you are beautiful!!")
	secretHash, err := secret.Hash(swap.Sha256)
	require.NoError(t, err)

	base := time.Unix(1_700_000_000, 0).UTC()
	req := swap.Request{
		SwapID:                    swap.NewID(),
		AlphaLedger:               swap.BitcoinLedger(swap.BitcoinRegtest),
		BetaLedger:                swap.EthereumLedger(1337),
		AlphaAsset:                swap.BitcoinAsset(40_000_000),
		BetaAsset:                 swap.EtherAsset(uint256.NewInt(4e17)),
		HashFunction:              swap.Sha256,
		AlphaExpiry:               base.Add(24 * time.Hour),
		BetaExpiry:                base.Add(12 * time.Hour),
		SecretHash:                secretHash,
		AlphaLedgerRefundIdentity: btcIdentity(t, 1),
		BetaLedgerRedeemIdentity:  swap.EthereumIdentity(common.HexToAddress("0x1111111111111111111111111111111111111111")),
	}
	accept := swap.Accept{
		SwapID:                    req.SwapID,
		AlphaLedgerRedeemIdentity: btcIdentity(t, 2),
		BetaLedgerRefundIdentity:  swap.EthereumIdentity(common.HexToAddress("0x2222222222222222222222222222222222222222")),
	}
	return swap.State{
		SwapID:        req.SwapID,
		Role:          swap.Initiator,
		Request:       req,
		Communication: swap.Communication{Phase: swap.Accepted, Accept: &accept},
	}
}

func TestParamsForBothSides(t *testing.T) {
	st := acceptedState(t)

	alpha, err := paramsFor(st, statemachine.SideAlpha)
	require.NoError(t, err)
	assert.Equal(t, swap.LedgerBitcoin, alpha.Ledger.Class)
	assert.Equal(t, st.Request.AlphaExpiry, alpha.Expiry)
	assert.Equal(t, st.Communication.Accept.AlphaLedgerRedeemIdentity, alpha.Redeem)
	assert.Equal(t, st.Request.AlphaLedgerRefundIdentity, alpha.Refund)

	beta, err := paramsFor(st, statemachine.SideBeta)
	require.NoError(t, err)
	assert.Equal(t, swap.LedgerEthereum, beta.Ledger.Class)
	assert.Equal(t, st.Request.BetaLedgerRedeemIdentity, beta.Redeem)
	assert.Equal(t, st.Communication.Accept.BetaLedgerRefundIdentity, beta.Refund)
}

func TestParamsForRequiresAccept(t *testing.T) {
	st := acceptedState(t)
	st.Communication = swap.Communication{Phase: swap.Proposed}
	_, err := paramsFor(st, statemachine.SideAlpha)
	assert.Error(t, err)
}

func TestAppearancePatternBitcoin(t *testing.T) {
	st := acceptedState(t)
	p, err := paramsFor(st, statemachine.SideAlpha)
	require.NoError(t, err)

	pattern, err := appearancePattern(p, st.Request.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, watch.Bitcoin, pattern.Class)
	assert.True(t, strings.HasPrefix(pattern.Bitcoin.ToAddress, "bcrt1"))

	// Both parties must derive the identical address from the same
	// negotiated parameters.
	addr, err := htlc.BitcoinAddress(st.Request.SecretHash, p.Redeem, p.Refund, p.Expiry, swap.BitcoinRegtest)
	require.NoError(t, err)
	assert.Equal(t, addr.EncodeAddress(), pattern.Bitcoin.ToAddress)
}

func TestAppearancePatternEthereum(t *testing.T) {
	st := acceptedState(t)
	p, err := paramsFor(st, statemachine.SideBeta)
	require.NoError(t, err)

	pattern, err := appearancePattern(p, st.Request.SecretHash)
	require.NoError(t, err)
	assert.Equal(t, watch.Ethereum, pattern.Class)
	assert.True(t, pattern.Ethereum.IsContractCreation)
	require.NotNil(t, pattern.Ethereum.FromAddress)
	assert.Equal(t, [20]byte(p.Refund.Ethereum), *pattern.Ethereum.FromAddress)
}

func TestSpendPattern(t *testing.T) {
	btcLoc := swap.HTLCLocation{Ledger: swap.LedgerBitcoin, TxHash: "ff00", Vout: 1}
	p := spendPattern(btcLoc)
	require.NotNil(t, p.Bitcoin.FromOutpoint)
	assert.Equal(t, watch.Outpoint{TxHash: "ff00", Index: 1}, *p.Bitcoin.FromOutpoint)

	ethLoc := swap.HTLCLocation{Ledger: swap.LedgerEthereum, Address: [20]byte{0xaa}}
	p = spendPattern(ethLoc)
	require.NotNil(t, p.Ethereum.ToAddress)
	assert.Equal(t, [20]byte{0xaa}, *p.Ethereum.ToAddress)
}

// fakeRunner hands out pre-filled observation channels, one per watch
// phase, in the order the sideWatch asks for them.
type fakeRunner struct {
	phases []chan watch.Observation
	next   int
}

func (f *fakeRunner) runner() engineRunner {
	return func(ctx context.Context, _ watch.TransactionPattern, _ time.Time) (<-chan watch.Observation, error) {
		ch := f.phases[f.next]
		f.next++
		return ch, nil
	}
}

func obsAt(txHash string, at time.Time) watch.Observation {
	return watch.Observation{TxHash: txHash, Block: watch.BlockRef{Hash: "b-" + txHash, Timestamp: at}}
}

type capturedEvents struct {
	events []statemachine.Event
}

func (c *capturedEvents) submit(_ context.Context, ev statemachine.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func testSideWatch(t *testing.T, runner *fakeRunner, captured *capturedEvents, secret swap.Secret) (*sideWatch, swap.ID) {
	t.Helper()
	id := swap.NewID()

	loc := swap.HTLCLocation{Ledger: swap.LedgerBitcoin, TxHash: "fundtx", Vout: 0}
	return &sideWatch{
		swapID:     id,
		side:       statemachine.SideAlpha,
		cutoff:     time.Unix(1_700_000_000, 0),
		expiry:     time.Unix(1_700_000_000, 0).Add(24 * time.Hour),
		appearance: watch.BitcoinToAddressPattern("bcrt1qdummy"),
		watch:      runner.runner(),
		resolveFunding: func(_ context.Context, txHash string) (swap.HTLCLocation, bool, error) {
			return loc, true, nil
		},
		redeemSecret: func(_ context.Context, txHash string) (swap.Secret, bool, error) {
			if txHash == "redeemtx" {
				return secret, true, nil
			}
			return swap.Secret{}, false, nil
		},
		submit: captured.submit,
	}, id
}

func TestSideWatchRedeemPath(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	secret := swap.Secret{}
	copy(secret[:], "hello world, you are beautiful!!")

	appear := make(chan watch.Observation, 1)
	spends := make(chan watch.Observation, 2)
	appear <- obsAt("fundtx", base.Add(time.Minute))
	// A spend attempt with a wrong secret before expiry moves no funds
	// and must not flip the state (spec.md §8 S3); the real redeem
	// follows it.
	spends <- obsAt("garbagetx", base.Add(2*time.Minute))
	spends <- obsAt("redeemtx", base.Add(3*time.Minute))

	runner := &fakeRunner{phases: []chan watch.Observation{appear, spends}}
	captured := &capturedEvents{}
	w, id := testSideWatch(t, runner, captured, secret)

	require.NoError(t, w.run(context.Background()))

	want := []statemachine.Event{
		statemachine.AlphaDeployed{SwapID: id, Location: swap.HTLCLocation{Ledger: swap.LedgerBitcoin, TxHash: "fundtx", Vout: 0}},
		statemachine.AlphaFunded{SwapID: id, CorrectValue: true},
		statemachine.AlphaRedeemed{SwapID: id, TxHash: "redeemtx", Secret: secret},
	}
	if diff := pretty.Compare(captured.events, want); diff != "" {
		t.Fatalf("event sequence mismatch (-got +want):\n%s", diff)
	}
}

func TestSideWatchRefundAfterExpiry(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	secret := swap.Secret{}
	copy(secret[:], "hello world, you are beautiful!!")

	appear := make(chan watch.Observation, 1)
	spends := make(chan watch.Observation, 1)
	appear <- obsAt("fundtx", base.Add(time.Minute))
	spends <- obsAt("refundtx", base.Add(25*time.Hour)) // past the 24h expiry

	runner := &fakeRunner{phases: []chan watch.Observation{appear, spends}}
	captured := &capturedEvents{}
	w, id := testSideWatch(t, runner, captured, secret)

	require.NoError(t, w.run(context.Background()))

	require.Len(t, captured.events, 3)
	assert.Equal(t, statemachine.AlphaRefunded{SwapID: id, TxHash: "refundtx"}, captured.events[2])
}

func TestSideWatchIncorrectFundingStops(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	appear := make(chan watch.Observation, 1)
	appear <- obsAt("fundtx", base.Add(time.Minute))

	runner := &fakeRunner{phases: []chan watch.Observation{appear}}
	captured := &capturedEvents{}
	w, id := testSideWatch(t, runner, captured, swap.Secret{})
	w.resolveFunding = func(_ context.Context, _ string) (swap.HTLCLocation, bool, error) {
		return swap.HTLCLocation{Ledger: swap.LedgerBitcoin, TxHash: "fundtx"}, false, nil
	}

	require.NoError(t, w.run(context.Background()))

	// IncorrectlyFunded: Deployed then Funded(correct=false), and no
	// further watching — no spend phase channel was ever requested.
	require.Len(t, captured.events, 2)
	assert.Equal(t, statemachine.AlphaFunded{SwapID: id, CorrectValue: false}, captured.events[1])
	assert.Equal(t, 1, runner.next)
}

func TestSideWatchSeparateFundingPhase(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	appear := make(chan watch.Observation, 1)
	fundings := make(chan watch.Observation, 2)
	spends := make(chan watch.Observation, 1)
	appear <- obsAt("deploytx", base.Add(time.Minute))
	fundings <- obsAt("othertransfer", base.Add(2*time.Minute)) // token moved elsewhere
	fundings <- obsAt("fundingtx", base.Add(3*time.Minute))
	spends <- obsAt("redeemtx", base.Add(4*time.Minute))

	secret := swap.Secret{}
	copy(secret[:], "hello world, you are beautiful!!")

	runner := &fakeRunner{phases: []chan watch.Observation{appear, fundings, spends}}
	captured := &capturedEvents{}
	w, id := testSideWatch(t, runner, captured, secret)
	loc := swap.HTLCLocation{Ledger: swap.LedgerEthereum, Address: [20]byte{0xcc}}
	w.resolveFunding = func(_ context.Context, _ string) (swap.HTLCLocation, bool, error) {
		return loc, false, nil
	}
	w.fundingPattern = func(l swap.HTLCLocation) watch.TransactionPattern {
		return spendPattern(l)
	}
	w.checkFunding = func(_ context.Context, txHash string, _ swap.HTLCLocation) (bool, bool, error) {
		return txHash == "fundingtx", txHash == "fundingtx", nil
	}

	require.NoError(t, w.run(context.Background()))

	want := []statemachine.Event{
		statemachine.AlphaDeployed{SwapID: id, Location: loc},
		statemachine.AlphaFunded{SwapID: id, CorrectValue: true},
		statemachine.AlphaRedeemed{SwapID: id, TxHash: "redeemtx", Secret: secret},
	}
	if diff := pretty.Compare(captured.events, want); diff != "" {
		t.Fatalf("event sequence mismatch (-got +want):\n%s", diff)
	}
}
