// Package ethereum implements watch.Connector for Ethereum-family
// ledgers.
package ethereum

import (
	"bytes"
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/comit-network/cnd/watch"
)

// RawClient is the subset of ethclient.Client a Connector needs; an
// *ethclient.Client satisfies it without adaptation.
type RawClient interface {
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Connector implements watch.Connector for Ethereum.
type Connector struct {
	client  RawClient
	chainID *big.Int
}

func NewConnector(client RawClient, chainID *big.Int) *Connector {
	return &Connector{client: client, chainID: chainID}
}

func (c *Connector) LatestBlock(ctx context.Context) (watch.BlockRef, error) {
	block, err := c.client.BlockByNumber(ctx, nil)
	if err != nil {
		return watch.BlockRef{}, err
	}
	return blockRef(block), nil
}

func (c *Connector) BlockByHash(ctx context.Context, hash string) (watch.BlockRef, error) {
	block, err := c.client.BlockByHash(ctx, common.HexToHash(hash))
	if err != nil {
		return watch.BlockRef{}, err
	}
	return blockRef(block), nil
}

func blockRef(block *types.Block) watch.BlockRef {
	return watch.BlockRef{
		Hash:      block.Hash().Hex(),
		PrevHash:  block.ParentHash().Hex(),
		Timestamp: time.Unix(int64(block.Time()), 0),
	}
}

// Matches re-fetches the block by hash (the Engine only hands Matches
// a BlockRef, not the full block) and evaluates pattern.Ethereum
// against every transaction, fetching the receipt lazily only when
// the pattern references an event.
func (c *Connector) Matches(ctx context.Context, ref watch.BlockRef, pattern watch.TransactionPattern) ([]string, error) {
	if pattern.Class != watch.Ethereum {
		return nil, nil
	}
	block, err := c.client.BlockByHash(ctx, common.HexToHash(ref.Hash))
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, tx := range block.Transactions() {
		ok, err := c.txMatches(ctx, tx, pattern.Ethereum)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, tx.Hash().Hex())
		}
	}
	return matches, nil
}

func (c *Connector) txMatches(ctx context.Context, tx *types.Transaction, pattern watch.EthereumPattern) (bool, error) {
	if pattern.IsContractCreation && tx.To() != nil {
		return false, nil
	}
	if pattern.ToAddress != nil && (tx.To() == nil || *tx.To() != common.Address(*pattern.ToAddress)) {
		return false, nil
	}
	if pattern.InputDataPrefix != nil {
		data := tx.Data()
		if len(data) < len(pattern.InputDataPrefix) || !bytes.Equal(data[:len(pattern.InputDataPrefix)], pattern.InputDataPrefix) {
			return false, nil
		}
	}
	if pattern.FromAddress != nil {
		from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
		if err != nil || from != common.Address(*pattern.FromAddress) {
			return false, nil
		}
	}
	if pattern.EventAddress != nil {
		matched, err := c.logsMatch(ctx, tx.Hash(), pattern)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func (c *Connector) logsMatch(ctx context.Context, txHash common.Hash, pattern watch.EthereumPattern) (bool, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return false, err
	}
	for _, lg := range receipt.Logs {
		if lg.Address != common.Address(*pattern.EventAddress) {
			continue
		}
		if topicsMatch(lg.Topics, pattern.EventTopics) {
			return true, nil
		}
	}
	return false, nil
}

func topicsMatch(got []common.Hash, want [][32]byte) bool {
	if len(want) > len(got) {
		return false
	}
	for i, topic := range want {
		if got[i] != common.Hash(topic) {
			return false
		}
	}
	return true
}
