package wire

import (
	"strings"
	"testing"

	"github.com/comit-network/cnd/swap"
	"github.com/google/gofuzz"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_RoundTrip(t *testing.T) {
	h := NewHeader("ethereum", map[string]string{"network": "1337"})
	parsed, err := ParseHeader(h.String())
	require.NoError(t, err)
	assert.Equal(t, h.Value, parsed.Value)
	assert.Equal(t, h.Params, parsed.Params)
}

func TestHeader_StableOrdering(t *testing.T) {
	h := NewHeader("erc20", map[string]string{"quantity": "1", "address": "0xabc"})
	assert.Equal(t, "erc20; address=0xabc; quantity=1", h.String())
}

func TestParseHeader_RejectsEmptyValue(t *testing.T) {
	_, err := ParseHeader("; network=1")
	assert.Error(t, err)
}

func TestLedgerHeader_RoundTrip(t *testing.T) {
	cases := []swap.Ledger{
		swap.BitcoinLedger(swap.BitcoinMainnet),
		swap.BitcoinLedger(swap.BitcoinTestnet),
		swap.BitcoinLedger(swap.BitcoinRegtest),
		swap.EthereumLedger(1),
		swap.EthereumLedger(1337),
	}
	for _, l := range cases {
		h := EncodeLedgerHeader(l)
		roundTripped, err := ParseHeader(h.String())
		require.NoError(t, err)
		got := DecodeLedgerHeader(roundTripped)
		assert.Equal(t, l, got)
	}
}

func TestLedgerHeader_UnknownDoesNotError(t *testing.T) {
	h, err := ParseHeader("litecoin; network=mainnet")
	require.NoError(t, err)
	got := DecodeLedgerHeader(h)
	assert.Equal(t, swap.LedgerUnknown, got.Class)
	assert.False(t, got.Supported())
}

func TestAssetHeader_RoundTrip(t *testing.T) {
	cases := []swap.Asset{
		swap.BitcoinAsset(40_000_000),
		swap.EtherAsset(uint256.NewInt(400_000_000_000_000_000)),
	}
	for _, a := range cases {
		h := EncodeAssetHeader(a)
		roundTripped, err := ParseHeader(h.String())
		require.NoError(t, err)
		got := DecodeAssetHeader(roundTripped)
		assert.Equal(t, a.Class, got.Class)
		assert.Equal(t, a.Satoshis, got.Satoshis)
		if a.Quantity != nil {
			assert.Equal(t, a.Quantity.Dec(), got.Quantity.Dec())
		}
	}
}

func TestProtocolHeader_RoundTrip(t *testing.T) {
	h := EncodeProtocolHeader(swap.Sha256)
	roundTripped, err := ParseHeader(h.String())
	require.NoError(t, err)
	hashFn, recognized := DecodeProtocolHeader(roundTripped)
	assert.True(t, recognized)
	assert.Equal(t, swap.Sha256, hashFn)
}

func TestProtocolHeader_UnrecognizedProtocol(t *testing.T) {
	h, err := ParseHeader("comit-rfc-004; hash_function=SHA-256")
	require.NoError(t, err)
	_, recognized := DecodeProtocolHeader(h)
	assert.False(t, recognized)
}

// TestHeader_FuzzRoundTrip exercises the grammar with randomized
// values: serialize → parse is the identity for any value/param set
// that doesn't itself contain the grammar's own separators or begin or
// end with whitespace (ParseHeader trims it), which is true of every
// known {ledger, asset, decision, protocol, swap_id} value (spec.md §8
// round-trip property).
func TestHeader_FuzzRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).Funcs(func(s *string, c fuzz.Continue) {
		*s = c.RandString()
	})

	for i := 0; i < 200; i++ {
		var value string
		f.Fuzz(&value)
		if value == "" || containsSeparator(value) || strings.TrimSpace(value) != value {
			continue
		}

		params := map[string]string{}
		var n int
		f.Fuzz(&n)
		count := n % 4
		if count < 0 {
			count = -count
		}
		for j := 0; j < count; j++ {
			var k, v string
			f.Fuzz(&k)
			f.Fuzz(&v)
			if k == "" || v == "" || containsSeparator(k) || containsSeparator(v) {
				continue
			}
			params[k] = v
		}

		h := NewHeader(value, params)
		parsed, err := ParseHeader(h.String())
		require.NoError(t, err)
		assert.Equal(t, h.Value, parsed.Value)
		assert.Equal(t, len(h.Params), len(parsed.Params))
	}
}

func containsSeparator(s string) bool {
	for _, r := range s {
		if r == ';' || r == '=' {
			return true
		}
	}
	return false
}
