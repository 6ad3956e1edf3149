package store

import (
	"testing"
	"time"

	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wellFormedRequest(t *testing.T) swap.Request {
	t.Helper()

	secret, err := swap.NewSecret()
	require.NoError(t, err)
	secretHash, err := secret.Hash(swap.Sha256)
	require.NoError(t, err)

	return swap.Request{
		SwapID:                    swap.NewID(),
		AlphaLedger:               swap.EthereumLedger(1),
		BetaLedger:                swap.EthereumLedger(1337),
		AlphaAsset:                swap.EtherAsset(uint256.NewInt(1_000_000_000_000_000_000)),
		BetaAsset:                 swap.Erc20Asset(common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), uint256.NewInt(42)),
		HashFunction:              swap.Sha256,
		AlphaExpiry:               time.Now().UTC().Add(3 * time.Hour),
		BetaExpiry:                time.Now().UTC().Add(1 * time.Hour),
		SecretHash:                secretHash,
		AlphaLedgerRefundIdentity: swap.EthereumIdentity(common.HexToAddress("0x111111111111111111111111111111111111aaaa")),
		BetaLedgerRedeemIdentity:  swap.EthereumIdentity(common.HexToAddress("0x222222222222222222222222222222222222bbbb")),
	}
}

func TestStore_RegisterThenSnapshot(t *testing.T) {
	s := New()
	req := wellFormedRequest(t)
	driver := statemachine.NewDriver(statemachine.Propose(req), nil)
	t.Cleanup(driver.Close)

	require.NoError(t, s.Register(req.SwapID, driver))

	snap, ok := s.Snapshot(req.SwapID)
	require.True(t, ok)
	assert.Equal(t, req.SwapID, snap.SwapID)
	assert.Equal(t, swap.Initiator, snap.Role)
}

func TestStore_SnapshotMissingSwapReportsNotFound(t *testing.T) {
	s := New()
	_, ok := s.Snapshot(swap.NewID())
	assert.False(t, ok)
}

func TestStore_RegisterTwiceUnderSameIDFails(t *testing.T) {
	s := New()
	req := wellFormedRequest(t)
	first := statemachine.NewDriver(statemachine.Propose(req), nil)
	second := statemachine.NewDriver(statemachine.Propose(req), nil)
	t.Cleanup(first.Close)
	t.Cleanup(second.Close)

	require.NoError(t, s.Register(req.SwapID, first))
	assert.Error(t, s.Register(req.SwapID, second))
}

func TestStore_ListReturnsEverySwap(t *testing.T) {
	s := New()
	reqA := wellFormedRequest(t)
	reqB := wellFormedRequest(t)

	driverA := statemachine.NewDriver(statemachine.Propose(reqA), nil)
	driverB := statemachine.NewDriver(statemachine.Propose(reqB), nil)
	t.Cleanup(driverA.Close)
	t.Cleanup(driverB.Close)

	require.NoError(t, s.Register(reqA.SwapID, driverA))
	require.NoError(t, s.Register(reqB.SwapID, driverB))

	ids := map[swap.ID]bool{}
	for _, snap := range s.List() {
		ids[snap.SwapID] = true
	}
	assert.True(t, ids[reqA.SwapID])
	assert.True(t, ids[reqB.SwapID])
	assert.Len(t, ids, 2)
}

// TestStore_RemoveDropsFromIndex confirms a removed swap disappears
// from both Driver lookups and List, so a terminal swap doesn't leak.
func TestStore_RemoveDropsFromIndex(t *testing.T) {
	s := New()
	req := wellFormedRequest(t)
	driver := statemachine.NewDriver(statemachine.Propose(req), nil)
	require.NoError(t, s.Register(req.SwapID, driver))

	s.Remove(req.SwapID)

	_, ok := s.Driver(req.SwapID)
	assert.False(t, ok)
	assert.Empty(t, s.List())

	// Remove is a no-op on an id that was never registered or was
	// already removed.
	s.Remove(req.SwapID)
}
