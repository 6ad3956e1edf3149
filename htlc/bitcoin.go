// Package htlc derives the on-chain coordinates of a swap's Hash
// Time-Locked Contracts from the negotiated parameters. The contract
// code itself is executed by the counterparties' wallets; cnd only
// needs to know where on each ledger the HTLC will appear so the
// ledger watcher can be pointed at it.
package htlc

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/comit-network/cnd/swap"
)

// BitcoinScript builds the witness script of a Bitcoin HTLC: spendable
// by the redeemer on revealing the preimage of secretHash, or by the
// refunder once expiry has passed.
//
//	OP_IF
//	    OP_SHA256 <secret_hash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <redeem_pkh>
//	OP_ELSE
//	    <expiry> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    OP_DUP OP_HASH160 <refund_pkh>
//	OP_ENDIF
//	OP_EQUALVERIFY
//	OP_CHECKSIG
func BitcoinScript(secretHash swap.SecretHash, redeem, refund swap.Identity, expiry time.Time) ([]byte, error) {
	redeemHash, err := pubKeyHash(redeem)
	if err != nil {
		return nil, fmt.Errorf("htlc: redeem identity: %w", err)
	}
	refundHash, err := pubKeyHash(refund)
	if err != nil {
		return nil, fmt.Errorf("htlc: refund identity: %w", err)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(secretHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(redeemHash)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(expiry.Unix())
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(refundHash)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	return builder.Script()
}

// BitcoinAddress derives the P2WSH address at which the HTLC for the
// given parameters sits on network. Both parties compute the same
// address independently from the request and accept, which is what
// lets each side watch for the other's funding transaction without
// any further message exchange.
func BitcoinAddress(secretHash swap.SecretHash, redeem, refund swap.Identity, expiry time.Time, network swap.BitcoinNetwork) (btcutil.Address, error) {
	script, err := BitcoinScript(secretHash, redeem, refund, expiry)
	if err != nil {
		return nil, err
	}
	params, err := swap.BitcoinParams(network)
	if err != nil {
		return nil, err
	}
	scriptHash := sha256.Sum256(script)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
	if err != nil {
		return nil, fmt.Errorf("htlc: encoding p2wsh address: %w", err)
	}
	return addr, nil
}

func pubKeyHash(identity swap.Identity) ([]byte, error) {
	if identity.Class != swap.LedgerBitcoin || identity.Bitcoin == nil {
		return nil, fmt.Errorf("not a bitcoin identity")
	}
	hash := identity.Bitcoin.ScriptAddress()
	if len(hash) != 20 {
		return nil, fmt.Errorf("identity %s does not encode a 20-byte pubkey hash", identity.Bitcoin.EncodeAddress())
	}
	return hash, nil
}
