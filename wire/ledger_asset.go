package wire

import (
	"fmt"

	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Protocol header value, spec.md §4.4:
//
//	protocol: comit-rfc-003; hash_function=SHA-256
const ProtocolHeaderValue = "comit-rfc-003"

// EncodeProtocolHeader renders the protocol header for hashFn.
func EncodeProtocolHeader(hashFn swap.HashFunction) Header {
	return NewHeader(ProtocolHeaderValue, map[string]string{"hash_function": string(hashFn)})
}

// DecodeProtocolHeader parses the protocol header, reporting whether
// the protocol name itself is recognized (independent of whether the
// hash_function parameter is supported — callers distinguish
// UnsupportedProtocol from other decline reasons on that basis).
func DecodeProtocolHeader(h Header) (hashFn swap.HashFunction, recognized bool) {
	if h.Value != ProtocolHeaderValue {
		return "", false
	}
	v, _ := h.Param("hash_function")
	return swap.HashFunction(v), true
}

// EncodeLedgerHeader renders a LedgerKind header, spec.md §4.4:
//
//	bitcoin; network=mainnet|testnet|regtest
//	ethereum; network=<chain_id:u32>
func EncodeLedgerHeader(l swap.Ledger) Header {
	switch l.Class {
	case swap.LedgerBitcoin:
		return NewHeader(string(swap.LedgerBitcoin), map[string]string{"network": string(l.BitcoinNetwork)})
	case swap.LedgerEthereum:
		return NewHeader(string(swap.LedgerEthereum), map[string]string{"network": fmt.Sprintf("%d", l.ChainID)})
	default:
		return NewHeader(l.Name, nil)
	}
}

// DecodeLedgerHeader parses a ledger header. An unrecognized ledger
// name decodes to swap.UnknownLedger rather than erroring, so the
// caller can respond with decision: declined, reason: UnsupportedSwap
// per spec.md §4.4 rather than a transport-level failure.
func DecodeLedgerHeader(h Header) swap.Ledger {
	switch h.Value {
	case string(swap.LedgerBitcoin):
		network, _ := h.Param("network")
		return swap.BitcoinLedger(swap.BitcoinNetwork(network))
	case string(swap.LedgerEthereum):
		chainID, err := h.ParamUint32("network")
		if err != nil {
			return swap.UnknownLedger(h.Value)
		}
		return swap.EthereumLedger(chainID)
	default:
		return swap.UnknownLedger(h.Value)
	}
}

// EncodeAssetHeader renders an AssetKind header, spec.md §4.4:
//
//	bitcoin; quantity=<satoshis>
//	ether; quantity=<wei>
//	erc20; address=0x…; quantity=<wei>
func EncodeAssetHeader(a swap.Asset) Header {
	switch a.Class {
	case swap.AssetBitcoin:
		return NewHeader(string(swap.AssetBitcoin), map[string]string{"quantity": fmt.Sprintf("%d", a.Satoshis)})
	case swap.AssetEther:
		return NewHeader(string(swap.AssetEther), map[string]string{"quantity": quantityString(a.Quantity)})
	case swap.AssetErc20:
		return NewHeader(string(swap.AssetErc20), map[string]string{
			"address":  a.Contract.Hex(),
			"quantity": quantityString(a.Quantity),
		})
	default:
		return NewHeader(a.Name, nil)
	}
}

func quantityString(q *uint256.Int) string {
	if q == nil {
		return "0"
	}
	return q.Dec()
}

// DecodeAssetHeader parses an asset header, mirroring
// DecodeLedgerHeader's unknown-value fallback behavior.
func DecodeAssetHeader(h Header) swap.Asset {
	switch h.Value {
	case string(swap.AssetBitcoin):
		n, err := h.ParamUint64("quantity")
		if err != nil {
			return swap.UnknownAsset(h.Value)
		}
		return swap.BitcoinAsset(n)
	case string(swap.AssetEther):
		q, ok := parseQuantity(h)
		if !ok {
			return swap.UnknownAsset(h.Value)
		}
		return swap.EtherAsset(q)
	case string(swap.AssetErc20):
		addr, ok := h.Param("address")
		if !ok || !common.IsHexAddress(addr) {
			return swap.UnknownAsset(h.Value)
		}
		q, ok := parseQuantity(h)
		if !ok {
			return swap.UnknownAsset(h.Value)
		}
		return swap.Erc20Asset(common.HexToAddress(addr), q)
	default:
		return swap.UnknownAsset(h.Value)
	}
}

func parseQuantity(h Header) (*uint256.Int, bool) {
	v, ok := h.Param("quantity")
	if !ok {
		return nil, false
	}
	q, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, false
	}
	return q, true
}
