package ethereum

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/comit-network/cnd/swap"
)

// InspectClient is the transaction-level RPC surface the Inspector
// needs on top of the block-level RawClient; *ethclient.Client
// satisfies both.
type InspectClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Inspector decodes individual matched transactions: the Engine only
// reports that a transaction matched, while the swap state machine
// needs to know where the HTLC was created, whether the funded value
// equals the committed quantity, and what secret a redeem revealed.
type Inspector struct {
	client InspectClient
}

func NewInspector(client InspectClient) *Inspector {
	return &Inspector{client: client}
}

// Funding resolves the contract address a deployment transaction
// created and checks the deployed value against the committed asset
// quantity (spec.md §4.3 AlphaFunded: "verifying the on-chain value
// equals the committed asset quantity").
func (i *Inspector) Funding(ctx context.Context, txHash string, expectedWei *uint256.Int) (swap.HTLCLocation, bool, error) {
	hash := common.HexToHash(txHash)
	tx, pending, err := i.client.TransactionByHash(ctx, hash)
	if err != nil {
		return swap.HTLCLocation{}, false, fmt.Errorf("ethereum: fetching funding tx %s: %w", txHash, err)
	}
	if pending {
		return swap.HTLCLocation{}, false, fmt.Errorf("ethereum: funding tx %s still pending", txHash)
	}

	receipt, err := i.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return swap.HTLCLocation{}, false, fmt.Errorf("ethereum: fetching funding receipt %s: %w", txHash, err)
	}

	contract := receipt.ContractAddress
	if tx.To() != nil {
		contract = *tx.To()
	}

	expected := new(big.Int)
	if expectedWei != nil {
		expected = expectedWei.ToBig()
	}
	correct := tx.Value().Cmp(expected) == 0

	loc := swap.HTLCLocation{Ledger: swap.LedgerEthereum, Address: contract}
	return loc, correct, nil
}

// transferTopic is the topic0 of the canonical ERC-20 Transfer event.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// TransferTopic exposes the Transfer event signature hash for callers
// building watch patterns over token contracts.
func TransferTopic() [32]byte {
	return [32]byte(transferTopic)
}

// ERC20Funding inspects a candidate token transaction for a Transfer
// of exactly expected tokens into the HTLC at htlc. found is false
// when the transaction moved tokens somewhere else entirely; correct
// distinguishes a right-amount funding from a wrong-amount one.
func (i *Inspector) ERC20Funding(ctx context.Context, txHash string, token, htlc common.Address, expected *uint256.Int) (found, correct bool, err error) {
	receipt, err := i.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return false, false, fmt.Errorf("ethereum: fetching receipt %s: %w", txHash, err)
	}
	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != htlc {
			continue
		}
		value := new(big.Int).SetBytes(lg.Data)
		expectedBig := new(big.Int)
		if expected != nil {
			expectedBig = expected.ToBig()
		}
		return true, value.Cmp(expectedBig) == 0, nil
	}
	return false, false, nil
}

// RedeemSecret extracts the preimage from a call to the HTLC: the
// redeem path's call data is exactly the 32-byte secret. A call whose
// data does not hash to secretHash is reported as not-a-redeem — the
// HTLC leaves the funds untouched for such calls (spec.md §8 S3), so
// the observation is either a refund or noise.
func (i *Inspector) RedeemSecret(ctx context.Context, txHash string, secretHash swap.SecretHash) (swap.Secret, bool, error) {
	tx, pending, err := i.client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return swap.Secret{}, false, fmt.Errorf("ethereum: fetching tx %s: %w", txHash, err)
	}
	if pending {
		return swap.Secret{}, false, fmt.Errorf("ethereum: tx %s still pending", txHash)
	}

	data := tx.Data()
	if len(data) != 32 {
		return swap.Secret{}, false, nil
	}
	if sha256.Sum256(data) != [32]byte(secretHash) {
		return swap.Secret{}, false, nil
	}
	var secret swap.Secret
	copy(secret[:], data)
	return secret, true, nil
}
