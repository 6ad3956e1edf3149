package seed

import (
	"testing"

	"github.com/comit-network/cnd/swap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() [32]byte {
	var root [32]byte
	for i := range root {
		root[i] = byte(i)
	}
	return root
}

func TestSecretSource_DerivationIsDeterministic(t *testing.T) {
	src := NewSecretSource(testRoot())
	id := swap.NewID()

	first, err := src.RefundKey(id)
	require.NoError(t, err)
	second, err := src.RefundKey(id)
	require.NoError(t, err)

	assert.Equal(t, first.Serialize(), second.Serialize())
}

// TestSecretSource_DistinctSwapsNeverCollide covers the SecretSource
// requirement of spec.md §4.6: no collisions across swaps, even for
// the same purpose.
func TestSecretSource_DistinctSwapsNeverCollide(t *testing.T) {
	src := NewSecretSource(testRoot())

	a, err := src.RefundKey(swap.NewID())
	require.NoError(t, err)
	b, err := src.RefundKey(swap.NewID())
	require.NoError(t, err)

	assert.NotEqual(t, a.Serialize(), b.Serialize())
}

// TestSecretSource_PurposesAreUnlinkable confirms refund, redeem, and
// secret derive independent material for the same swap_id — a
// counterparty who learns one must not be able to predict another.
func TestSecretSource_PurposesAreUnlinkable(t *testing.T) {
	src := NewSecretSource(testRoot())
	id := swap.NewID()

	refund, err := src.RefundKey(id)
	require.NoError(t, err)
	redeem, err := src.RedeemKey(id)
	require.NoError(t, err)
	secret, err := src.Secret(id)
	require.NoError(t, err)

	assert.NotEqual(t, refund.Serialize(), redeem.Serialize())
	assert.NotEqual(t, refund.Serialize(), secret[:])
	assert.NotEqual(t, redeem.Serialize(), secret[:])
}

func TestFromMnemonic_RecoversTheSameSecretSource(t *testing.T) {
	mnemonic, root, err := NewMnemonic()
	require.NoError(t, err)

	original := NewSecretSource(root)
	recovered, err := FromMnemonic(mnemonic, "")
	require.NoError(t, err)

	id := swap.NewID()
	wantSecret, err := original.Secret(id)
	require.NoError(t, err)
	gotSecret, err := recovered.Secret(id)
	require.NoError(t, err)

	assert.Equal(t, wantSecret, gotSecret)
}

func TestFromMnemonic_RejectsInvalidMnemonic(t *testing.T) {
	_, err := FromMnemonic("not a real mnemonic at all", "")
	assert.Error(t, err)
}

func TestSecretSource_RefundIdentity_Ethereum(t *testing.T) {
	src := NewSecretSource(testRoot())
	id := swap.NewID()
	ledger := swap.EthereumLedger(1)

	identity, err := src.RefundIdentity(ledger, id)
	require.NoError(t, err)
	assert.Equal(t, swap.LedgerEthereum, identity.Class)
	assert.False(t, identity.IsZero())

	again, err := src.RefundIdentity(ledger, id)
	require.NoError(t, err)
	assert.Equal(t, identity.String(), again.String())
}

func TestSecretSource_RedeemIdentity_Bitcoin(t *testing.T) {
	src := NewSecretSource(testRoot())
	id := swap.NewID()
	ledger := swap.BitcoinLedger(swap.BitcoinRegtest)

	identity, err := src.RedeemIdentity(ledger, id)
	require.NoError(t, err)
	assert.Equal(t, swap.LedgerBitcoin, identity.Class)
	assert.False(t, identity.IsZero())

	// Round-trips through the string form the way db.decodeIdentity
	// would when reloading a persisted swap.
	decoded, err := swap.BitcoinIdentityFromString(identity.String(), swap.BitcoinRegtest)
	require.NoError(t, err)
	assert.Equal(t, identity.String(), decoded.String())
}
