package bitcoin

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/comit-network/cnd/swap"
)

// InspectClient is the transaction-level RPC surface the Inspector
// needs on top of the block-level RawClient.
type InspectClient interface {
	GetRawTransaction(ctx context.Context, hash *chainhash.Hash) (*wire.MsgTx, error)
}

// Inspector decodes individual matched transactions for the swap state
// machine: the funding output's outpoint and value, and the secret a
// redeem's witness reveals.
type Inspector struct {
	client InspectClient
	params *chaincfg.Params
}

func NewInspector(client InspectClient, params *chaincfg.Params) *Inspector {
	return &Inspector{client: client, params: params}
}

// Funding locates the output of txHash that pays htlcAddress and
// checks its value against the committed satoshi quantity. The
// outpoint it returns is the HTLC's location: the coordinate a later
// redeem or refund transaction must spend.
func (i *Inspector) Funding(ctx context.Context, txHash, htlcAddress string, expectedSats uint64) (swap.HTLCLocation, bool, error) {
	tx, err := i.fetch(ctx, txHash)
	if err != nil {
		return swap.HTLCLocation{}, false, err
	}

	for vout, out := range tx.TxOut {
		addr, err := extractAddress(out.PkScript, i.params)
		if err != nil || addr == nil || addr.EncodeAddress() != htlcAddress {
			continue
		}
		loc := swap.HTLCLocation{Ledger: swap.LedgerBitcoin, TxHash: txHash, Vout: uint32(vout)}
		correct := btcutil.Amount(out.Value) == btcutil.Amount(expectedSats)
		return loc, correct, nil
	}
	return swap.HTLCLocation{}, false, fmt.Errorf("bitcoin: tx %s pays no output to %s", txHash, htlcAddress)
}

// RedeemSecret scans txHash's witnesses and signature scripts for a
// 32-byte push hashing to secretHash. A spend that reveals no such
// preimage is the refund path (or noise), not a redeem.
func (i *Inspector) RedeemSecret(ctx context.Context, txHash string, secretHash swap.SecretHash) (swap.Secret, bool, error) {
	tx, err := i.fetch(ctx, txHash)
	if err != nil {
		return swap.Secret{}, false, err
	}

	for _, in := range tx.TxIn {
		for _, item := range in.Witness {
			if secret, ok := matchPreimage(item, secretHash); ok {
				return secret, true, nil
			}
		}
		pushes, err := txscript.PushedData(in.SignatureScript)
		if err != nil {
			continue
		}
		for _, push := range pushes {
			if secret, ok := matchPreimage(push, secretHash); ok {
				return secret, true, nil
			}
		}
	}
	return swap.Secret{}, false, nil
}

func (i *Inspector) fetch(ctx context.Context, txHash string) (*wire.MsgTx, error) {
	hash, err := chainhash.NewHashFromStr(txHash)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: invalid tx hash %q: %w", txHash, err)
	}
	tx, err := i.client.GetRawTransaction(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("bitcoin: fetching tx %s: %w", txHash, err)
	}
	return tx, nil
}

func matchPreimage(candidate []byte, secretHash swap.SecretHash) (swap.Secret, bool) {
	if len(candidate) != 32 {
		return swap.Secret{}, false
	}
	if sha256.Sum256(candidate) != [32]byte(secretHash) {
		return swap.Secret{}, false
	}
	var secret swap.Secret
	copy(secret[:], candidate)
	return secret, true
}
