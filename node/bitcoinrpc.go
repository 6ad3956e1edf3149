package node

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	btcwire "github.com/btcsuite/btcd/wire"
)

// bitcoinRPC adapts btcd's synchronous rpcclient to the
// context-carrying RawClient/InspectClient interfaces of
// watch/bitcoin. The contexts are accepted for interface parity only;
// rpcclient manages its own request lifecycle.
type bitcoinRPC struct {
	client *rpcclient.Client
}

func newBitcoinRPC(cfg BitcoinConfig) (*bitcoinRPC, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(cfg.NodeURL, "https://"), "http://")
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPassword,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("node: connecting to bitcoin node %s: %w", cfg.NodeURL, err)
	}
	return &bitcoinRPC{client: client}, nil
}

func (b *bitcoinRPC) GetBestBlockHash(context.Context) (*chainhash.Hash, error) {
	return b.client.GetBestBlockHash()
}

func (b *bitcoinRPC) GetBlockHeader(_ context.Context, hash *chainhash.Hash) (*btcwire.BlockHeader, error) {
	return b.client.GetBlockHeader(hash)
}

func (b *bitcoinRPC) GetBlock(_ context.Context, hash *chainhash.Hash) (*btcwire.MsgBlock, error) {
	return b.client.GetBlock(hash)
}

func (b *bitcoinRPC) GetRawTransaction(_ context.Context, hash *chainhash.Hash) (*btcwire.MsgTx, error) {
	tx, err := b.client.GetRawTransaction(hash)
	if err != nil {
		return nil, err
	}
	return tx.MsgTx(), nil
}
