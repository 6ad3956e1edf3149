// Package bitcoin implements watch.Connector for the Bitcoin ledger
// family.
package bitcoin

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/comit-network/cnd/watch"
)

// RawClient is the minimal Bitcoin Core RPC surface a Connector needs.
// It is declared locally and satisfied by whatever concrete JSON-RPC
// client the node wires in, the same way the Bitcoin chain adapter in
// the wider adapter pack abstracts node access behind a narrow
// interface rather than depending on one RPC library directly.
type RawClient interface {
	GetBestBlockHash(ctx context.Context) (*chainhash.Hash, error)
	GetBlockHeader(ctx context.Context, hash *chainhash.Hash) (*wire.BlockHeader, error)
	GetBlock(ctx context.Context, hash *chainhash.Hash) (*wire.MsgBlock, error)
}

// Connector implements watch.Connector for Bitcoin.
type Connector struct {
	client RawClient
	params *chaincfg.Params
}

func NewConnector(client RawClient, params *chaincfg.Params) *Connector {
	return &Connector{client: client, params: params}
}

func (c *Connector) LatestBlock(ctx context.Context) (watch.BlockRef, error) {
	hash, err := c.client.GetBestBlockHash(ctx)
	if err != nil {
		return watch.BlockRef{}, err
	}
	return c.blockRef(ctx, hash)
}

func (c *Connector) BlockByHash(ctx context.Context, hash string) (watch.BlockRef, error) {
	h, err := chainhash.NewHashFromStr(hash)
	if err != nil {
		return watch.BlockRef{}, err
	}
	return c.blockRef(ctx, h)
}

func (c *Connector) blockRef(ctx context.Context, hash *chainhash.Hash) (watch.BlockRef, error) {
	header, err := c.client.GetBlockHeader(ctx, hash)
	if err != nil {
		return watch.BlockRef{}, err
	}
	return watch.BlockRef{
		Hash:      header.BlockHash().String(),
		PrevHash:  header.PrevBlock.String(),
		Timestamp: header.Timestamp,
	}, nil
}

// Matches decodes the full block and evaluates pattern.Bitcoin against
// every transaction; non-Bitcoin patterns never match here.
func (c *Connector) Matches(ctx context.Context, block watch.BlockRef, pattern watch.TransactionPattern) ([]string, error) {
	if pattern.Class != watch.Bitcoin {
		return nil, nil
	}
	hash, err := chainhash.NewHashFromStr(block.Hash)
	if err != nil {
		return nil, err
	}
	msgBlock, err := c.client.GetBlock(ctx, hash)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, tx := range msgBlock.Transactions {
		if c.txMatches(tx, pattern.Bitcoin) {
			matches = append(matches, tx.TxHash().String())
		}
	}
	return matches, nil
}

func (c *Connector) txMatches(tx *wire.MsgTx, pattern watch.BitcoinPattern) bool {
	if pattern.FromOutpoint != nil && !spendsOutpoint(tx, *pattern.FromOutpoint) {
		return false
	}
	if pattern.UnlockScriptPrefix != nil && !hasUnlockPrefix(tx, pattern.UnlockScriptPrefix) {
		return false
	}
	if pattern.ToAddress != "" && !paysAddress(tx, pattern.ToAddress, c.params) {
		return false
	}
	return true
}

func spendsOutpoint(tx *wire.MsgTx, outpoint watch.Outpoint) bool {
	for _, in := range tx.TxIn {
		if in.PreviousOutPoint.Hash.String() == outpoint.TxHash && in.PreviousOutPoint.Index == outpoint.Index {
			return true
		}
	}
	return false
}

func hasUnlockPrefix(tx *wire.MsgTx, prefix []byte) bool {
	for _, in := range tx.TxIn {
		script := in.SignatureScript
		if len(script) >= len(prefix) && bytes.Equal(script[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

func paysAddress(tx *wire.MsgTx, address string, params *chaincfg.Params) bool {
	for _, out := range tx.TxOut {
		addr, err := extractAddress(out.PkScript, params)
		if err == nil && addr != nil && addr.EncodeAddress() == address {
			return true
		}
	}
	return false
}

func extractAddress(pkScript []byte, params *chaincfg.Params) (btcutil.Address, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) == 0 {
		return nil, err
	}
	return addrs[0], nil
}
