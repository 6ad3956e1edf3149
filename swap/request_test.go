package swap

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest(t *testing.T) Request {
	t.Helper()
	secret, err := NewSecret()
	require.NoError(t, err)
	hash, err := secret.Hash(Sha256)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	return Request{
		SwapID:       NewID(),
		AlphaLedger:  BitcoinLedger(BitcoinRegtest),
		BetaLedger:   EthereumLedger(1337),
		AlphaAsset:   BitcoinAsset(40_000_000),
		BetaAsset:    EtherAsset(uint256.NewInt(400_000_000_000_000_000)),
		HashFunction: Sha256,
		AlphaExpiry:  now.Add(24 * time.Hour),
		BetaExpiry:   now.Add(12 * time.Hour),
		SecretHash:   hash,
	}
}

func TestRequestValidate_ExpiryMargin(t *testing.T) {
	r := validRequest(t)
	assert.NoError(t, r.Validate())

	// Invariant 1 (spec.md §8): alpha_expiry > beta_expiry by a safe
	// margin, not just a strict inequality.
	r.AlphaExpiry = r.BetaExpiry.Add(time.Minute)
	assert.Error(t, r.Validate())

	r.AlphaExpiry = r.BetaExpiry.Add(-time.Hour)
	assert.Error(t, r.Validate())
}

func TestRequestValidate_UnsupportedHashFunction(t *testing.T) {
	r := validRequest(t)
	r.HashFunction = "MD5"
	assert.Error(t, r.Validate())
}

func TestUnsupportedCombination_Erc20ForErc20(t *testing.T) {
	// Boundary scenario S4 (spec.md §8).
	r := validRequest(t)
	r.AlphaLedger = EthereumLedger(1)
	r.AlphaAsset = Erc20Asset(common.HexToAddress("0x1111111111111111111111111111111111111111"), uint256.NewInt(1))
	r.BetaLedger = EthereumLedger(42)
	r.BetaAsset = Erc20Asset(common.HexToAddress("0x2222222222222222222222222222222222222222"), uint256.NewInt(1))

	assert.True(t, r.UnsupportedCombination())
}

func TestUnsupportedCombination_HappyPathIsSupported(t *testing.T) {
	r := validRequest(t)
	assert.False(t, r.UnsupportedCombination())
}

func TestUnsupportedCombination_MismatchedAssetForLedger(t *testing.T) {
	r := validRequest(t)
	// Ether asset on a Bitcoin ledger makes no sense.
	r.AlphaLedger = BitcoinLedger(BitcoinRegtest)
	r.AlphaAsset = EtherAsset(uint256.NewInt(1))
	assert.True(t, r.UnsupportedCombination())
}

func TestDeclineReason_ClosedSet(t *testing.T) {
	assert.True(t, ReasonUnsupportedSwap.Valid())
	assert.True(t, ReasonUnsupportedProtocol.Valid())
	assert.True(t, ReasonBadRateOrExpiry.Valid())
	assert.True(t, ReasonOther.Valid())
	assert.False(t, DeclineReason("SomethingElse").Valid())
}
