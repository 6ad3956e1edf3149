package htlc

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comit-network/cnd/swap"
)

func regtestIdentity(t *testing.T, seed byte) swap.Identity {
	t.Helper()
	var raw [32]byte
	raw[31] = seed
	key, _ := btcec.PrivKeyFromBytes(raw[:])
	params, err := swap.BitcoinParams(swap.BitcoinRegtest)
	require.NoError(t, err)
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), params)
	require.NoError(t, err)
	return swap.BitcoinIdentity(addr)
}

func TestBitcoinScriptEmbedsParameters(t *testing.T) {
	secret := swap.Secret{}
	copy(secret[:], "hello world, you are beautiful!!")
	secretHash := swap.SecretHash(sha256.Sum256(secret[:]))

	redeem := regtestIdentity(t, 1)
	refund := regtestIdentity(t, 2)
	expiry := time.Unix(2_000_000_000, 0)

	script, err := BitcoinScript(secretHash, redeem, refund, expiry)
	require.NoError(t, err)

	assert.True(t, bytes.Contains(script, secretHash[:]), "script must commit to the secret hash")
	assert.True(t, bytes.Contains(script, redeem.Bitcoin.ScriptAddress()), "script must commit to the redeem pubkey hash")
	assert.True(t, bytes.Contains(script, refund.Bitcoin.ScriptAddress()), "script must commit to the refund pubkey hash")
}

func TestBitcoinAddressDeterministic(t *testing.T) {
	secretHash := swap.SecretHash(sha256.Sum256([]byte("s")))
	redeem := regtestIdentity(t, 1)
	refund := regtestIdentity(t, 2)
	expiry := time.Unix(2_000_000_000, 0)

	a, err := BitcoinAddress(secretHash, redeem, refund, expiry, swap.BitcoinRegtest)
	require.NoError(t, err)
	b, err := BitcoinAddress(secretHash, redeem, refund, expiry, swap.BitcoinRegtest)
	require.NoError(t, err)
	assert.Equal(t, a.EncodeAddress(), b.EncodeAddress())
	assert.True(t, strings.HasPrefix(a.EncodeAddress(), "bcrt1"), "regtest p2wsh addresses are bech32 with the bcrt prefix")

	otherHash := swap.SecretHash(sha256.Sum256([]byte("t")))
	c, err := BitcoinAddress(otherHash, redeem, refund, expiry, swap.BitcoinRegtest)
	require.NoError(t, err)
	assert.NotEqual(t, a.EncodeAddress(), c.EncodeAddress(), "a different secret hash must produce a different HTLC")
}

func TestBitcoinScriptRejectsEthereumIdentity(t *testing.T) {
	secretHash := swap.SecretHash(sha256.Sum256([]byte("s")))
	refund := regtestIdentity(t, 2)

	_, err := BitcoinScript(secretHash, swap.Identity{Class: swap.LedgerEthereum}, refund, time.Unix(0, 0))
	assert.Error(t, err)
}
