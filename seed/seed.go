// Package seed implements the SecretSource of spec.md §4.6: every key
// and secret a swap needs is derived deterministically from one 32-byte
// root seed, so the node carries no per-swap key storage at all.
package seed

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const (
	infoRefund = "cnd/refund"
	infoRedeem = "cnd/redeem"
	infoSecret = "cnd/secret"
)

// SecretSource derives every per-swap secret from one root seed via
// HKDF, keyed on swap_id so that no two swaps' key material collides
// and a counterparty holding many swap_ids gains nothing about the
// node's other swaps (spec.md GLOSSARY "SecretSource").
type SecretSource struct {
	root [32]byte
}

// NewSecretSource wraps an already-generated 32-byte root seed.
func NewSecretSource(root [32]byte) *SecretSource {
	return &SecretSource{root: root}
}

// NewMnemonic generates a fresh 24-word BIP-39 mnemonic for operators
// to back up, and the root seed it encodes.
func NewMnemonic() (mnemonic string, root [32]byte, err error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", root, fmt.Errorf("seed: generating entropy: %w", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", root, fmt.Errorf("seed: generating mnemonic: %w", err)
	}
	copy(root[:], entropy)
	return mnemonic, root, nil
}

// FromMnemonic recovers the root seed from a previously generated
// mnemonic and optional passphrase.
func FromMnemonic(mnemonic, passphrase string) (*SecretSource, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("seed: invalid mnemonic")
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("seed: decoding mnemonic: %w", err)
	}
	var root [32]byte
	if passphrase == "" {
		copy(root[:], entropy)
		return NewSecretSource(root), nil
	}
	// A passphrase changes the derived root by running the combined
	// material through the BIP-39 seed KDF rather than plain entropy.
	stretched := bip39.NewSeed(mnemonic, passphrase)
	sum := sha256.Sum256(stretched)
	return NewSecretSource(sum), nil
}

// RefundKey derives secp256k1_refund(swap_id): the key the node asks
// the funding wallet to use as the refund identity on the ledger it
// funds first.
func (s *SecretSource) RefundKey(id swap.ID) (*btcec.PrivateKey, error) {
	return s.derivePrivateKey(id, infoRefund)
}

// RedeemKey derives secp256k1_redeem(swap_id): the key the node asks
// the funding wallet to use as the redeem identity on the ledger it
// redeems from.
func (s *SecretSource) RedeemKey(id swap.ID) (*btcec.PrivateKey, error) {
	return s.derivePrivateKey(id, infoRedeem)
}

// Secret derives secret(swap_id), the 32-byte preimage whose hash the
// initiator publishes as secret_hash. Only the initiator ever calls
// this for a given swap; the responder never learns it before it's
// revealed on-chain.
func (s *SecretSource) Secret(id swap.ID) (swap.Secret, error) {
	material, err := s.derive(id, infoSecret)
	if err != nil {
		return swap.Secret{}, err
	}
	var secret swap.Secret
	copy(secret[:], material)
	return secret, nil
}

// RefundIdentity derives the refund key for id and encodes its public
// key as a ledger-native address, ready to hand the funding wallet as
// alpha_ledger_refund_identity.
func (s *SecretSource) RefundIdentity(ledger swap.Ledger, id swap.ID) (swap.Identity, error) {
	key, err := s.RefundKey(id)
	if err != nil {
		return swap.Identity{}, err
	}
	return identityFor(ledger, key)
}

// RedeemIdentity derives the redeem key for id and encodes its public
// key as a ledger-native address.
func (s *SecretSource) RedeemIdentity(ledger swap.Ledger, id swap.ID) (swap.Identity, error) {
	key, err := s.RedeemKey(id)
	if err != nil {
		return swap.Identity{}, err
	}
	return identityFor(ledger, key)
}

func (s *SecretSource) derivePrivateKey(id swap.ID, info string) (*btcec.PrivateKey, error) {
	material, err := s.derive(id, info)
	if err != nil {
		return nil, err
	}
	key, _ := btcec.PrivKeyFromBytes(material)
	return key, nil
}

// derive reads 32 bytes of HKDF output salted on id and labeled by
// info, so the same root seed produces unlinkable material for every
// (swap_id, purpose) pair.
func (s *SecretSource) derive(id swap.ID, info string) ([]byte, error) {
	idBytes := [16]byte(id)
	reader := hkdf.New(sha256.New, s.root[:], idBytes[:], []byte(info))
	out := make([]byte, 32)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("seed: deriving %s for swap %s: %w", info, id, err)
	}
	return out, nil
}

// identityFor encodes key's public key the way ledger expects an
// address to look: an Ethereum common.Address for an Ethereum ledger,
// a P2PKH btcutil.Address for a Bitcoin one.
func identityFor(ledger swap.Ledger, key *btcec.PrivateKey) (swap.Identity, error) {
	pub := key.PubKey()
	switch ledger.Class {
	case swap.LedgerEthereum:
		return swap.EthereumIdentity(crypto.PubkeyToAddress(*pub.ToECDSA())), nil
	case swap.LedgerBitcoin:
		params, err := swap.BitcoinParams(ledger.BitcoinNetwork)
		if err != nil {
			return swap.Identity{}, err
		}
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
		if err != nil {
			return swap.Identity{}, fmt.Errorf("seed: encoding bitcoin address: %w", err)
		}
		return swap.BitcoinIdentity(addr), nil
	default:
		return swap.Identity{}, fmt.Errorf("seed: unsupported ledger class %q", ledger.Class)
	}
}
