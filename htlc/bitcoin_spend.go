package htlc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/comit-network/cnd/swap"
)

// Conservative weight-unit bounds for the two spend shapes, used to
// turn a fee_per_wu rate into an absolute fee before signing (the fee
// must be fixed up front: the output value is committed to by the
// signature). Redeem carries one extra 32-byte witness push (the
// secret) plus the branch selector.
const (
	redeemTxWeight = 640
	refundTxWeight = 560

	dustLimit = 546
)

// BitcoinSpend describes the spend of a funded Bitcoin HTLC output:
// the negotiated parameters that reconstruct the witness script, the
// funding outpoint and value the watcher observed, and where the
// spent coins should go at what fee rate.
type BitcoinSpend struct {
	SecretHash swap.SecretHash
	Redeem     swap.Identity
	Refund     swap.Identity
	Expiry     time.Time

	FundingTxHash string
	FundingVout   uint32
	FundingValue  int64 // satoshis held by the HTLC output

	To       btcutil.Address
	FeePerWU int64
}

// RedeemTx builds and signs the transaction taking the HTLC output via
// its preimage branch, returning raw transaction hex ready for
// bitcoin-broadcast-signed-transaction.
func (s BitcoinSpend) RedeemTx(key *btcec.PrivateKey, secret swap.Secret) (string, error) {
	return s.sign(key, &secret)
}

// RefundTx builds and signs the time-locked refund spend. The
// transaction commits to a lock time of Expiry, so it is only valid in
// a block whose median time is past it (the payload's
// min_median_block_time mirrors the same value).
func (s BitcoinSpend) RefundTx(key *btcec.PrivateKey) (string, error) {
	return s.sign(key, nil)
}

func (s BitcoinSpend) sign(key *btcec.PrivateKey, secret *swap.Secret) (string, error) {
	script, err := BitcoinScript(s.SecretHash, s.Redeem, s.Refund, s.Expiry)
	if err != nil {
		return "", err
	}
	fundingHash, err := chainhash.NewHashFromStr(s.FundingTxHash)
	if err != nil {
		return "", fmt.Errorf("htlc: invalid funding tx hash %q: %w", s.FundingTxHash, err)
	}

	weight := int64(redeemTxWeight)
	if secret == nil {
		weight = refundTxWeight
	}
	fee := s.FeePerWU * weight
	value := s.FundingValue - fee
	if value <= dustLimit {
		return "", fmt.Errorf("htlc: %d sat after %d sat fee is below the dust limit", value, fee)
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(wire.NewOutPoint(fundingHash, s.FundingVout), nil, nil)
	if secret == nil {
		// OP_CHECKLOCKTIMEVERIFY only passes when the spending
		// transaction commits to a lock time at or past the expiry and
		// the input's sequence is non-final.
		tx.LockTime = uint32(s.Expiry.Unix())
		txIn.Sequence = 0
	}
	tx.AddTxIn(txIn)

	pkScript, err := txscript.PayToAddrScript(s.To)
	if err != nil {
		return "", fmt.Errorf("htlc: destination %s: %w", s.To.EncodeAddress(), err)
	}
	tx.AddTxOut(wire.NewTxOut(value, pkScript))

	scriptHash := sha256.Sum256(script)
	htlcPkScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(scriptHash[:]).Script()
	if err != nil {
		return "", err
	}
	fetcher := txscript.NewCannedPrevOutputFetcher(htlcPkScript, s.FundingValue)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	sig, err := txscript.RawTxInWitnessSignature(tx, sigHashes, 0, s.FundingValue, script, txscript.SigHashAll, key)
	if err != nil {
		return "", fmt.Errorf("htlc: signing spend: %w", err)
	}

	pub := key.PubKey().SerializeCompressed()
	if secret != nil {
		// Truthy selector takes the OP_IF preimage branch.
		tx.TxIn[0].Witness = wire.TxWitness{sig, pub, secret[:], {0x01}, script}
	} else {
		// Empty selector falls through to the OP_ELSE refund branch.
		tx.TxIn[0].Witness = wire.TxWitness{sig, pub, nil, script}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("htlc: serializing spend: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
