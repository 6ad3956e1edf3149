package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerState_MonotonicTransitions(t *testing.T) {
	var s LedgerState
	assert.Equal(t, NotDeployed, s.Phase)

	require.NoError(t, s.Deploy(HTLCLocation{Ledger: LedgerBitcoin, TxHash: "abc", Vout: 0}))
	assert.Equal(t, Deployed, s.Phase)

	// Deploying twice is illegal: state is strictly monotonic
	// (spec.md §8 invariant 2).
	assert.Error(t, s.Deploy(HTLCLocation{Ledger: LedgerBitcoin, TxHash: "def", Vout: 0}))

	require.NoError(t, s.Fund(true))
	assert.Equal(t, Funded, s.Phase)
	assert.False(t, s.Phase.Terminal())

	secret, err := NewSecret()
	require.NoError(t, err)
	require.NoError(t, s.Redeem("txhash", secret))
	assert.Equal(t, Redeemed, s.Phase)
	assert.True(t, s.Phase.Terminal())
	assert.Equal(t, secret, s.Secret)

	// No transition is legal out of a terminal phase.
	assert.Error(t, s.Refund("refundtx"))
}

func TestLedgerState_IncorrectFunding(t *testing.T) {
	var s LedgerState
	require.NoError(t, s.Deploy(HTLCLocation{Ledger: LedgerEthereum}))
	require.NoError(t, s.Fund(false))
	assert.Equal(t, IncorrectlyFunded, s.Phase)

	// Before expiry, no manual refund is offered (Open Question,
	// SPEC_FULL.md §9).
	assert.False(t, s.ManualRefundDerivable())

	s.MarkExpiryElapsed()
	assert.True(t, s.ManualRefundDerivable())
}

func TestLedgerState_RefundRequiresFunded(t *testing.T) {
	var s LedgerState
	assert.Error(t, s.Refund("txhash"))

	require.NoError(t, s.Deploy(HTLCLocation{Ledger: LedgerBitcoin}))
	assert.Error(t, s.Refund("txhash"))

	require.NoError(t, s.Fund(true))
	require.NoError(t, s.Refund("txhash"))
	assert.Equal(t, Refunded, s.Phase)
	assert.True(t, s.Phase.Terminal())
}
