package swap

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetClass is the closed set of asset families, mirroring LedgerClass.
type AssetClass string

const (
	AssetBitcoin AssetClass = "bitcoin"
	AssetEther   AssetClass = "ether"
	AssetErc20   AssetClass = "erc20"
	AssetUnknown AssetClass = "unknown"
)

// Asset is the tagged AssetKind variant of spec.md §3:
//
//	Bitcoin(satoshis)
//	Ether(wei)
//	Erc20(contract, quantity)
//	Unknown(string)
type Asset struct {
	Class AssetClass

	// Set when Class == AssetBitcoin.
	Satoshis uint64

	// Set when Class == AssetEther or AssetErc20.
	Quantity *uint256.Int

	// Set when Class == AssetErc20.
	Contract common.Address

	// Set when Class == AssetUnknown.
	Name string
}

func BitcoinAsset(satoshis uint64) Asset {
	return Asset{Class: AssetBitcoin, Satoshis: satoshis}
}

func EtherAsset(wei *uint256.Int) Asset {
	return Asset{Class: AssetEther, Quantity: wei}
}

func Erc20Asset(contract common.Address, quantity *uint256.Int) Asset {
	return Asset{Class: AssetErc20, Contract: contract, Quantity: quantity}
}

func UnknownAsset(name string) Asset {
	return Asset{Class: AssetUnknown, Name: name}
}

// Supported mirrors Ledger.Supported: erc20-for-erc20 swaps are
// explicitly unsupported per spec.md §8 scenario S4; that rule lives in
// the pairing check in Request.UnsupportedCombination, not here, since a single
// Asset's support is independent of its counterpart.
func (a Asset) Supported() bool {
	switch a.Class {
	case AssetBitcoin:
		return a.Satoshis > 0
	case AssetEther:
		return a.Quantity != nil && !a.Quantity.IsZero()
	case AssetErc20:
		return a.Quantity != nil && !a.Quantity.IsZero() && a.Contract != (common.Address{})
	default:
		return false
	}
}

func (a Asset) String() string {
	switch a.Class {
	case AssetBitcoin:
		return fmt.Sprintf("bitcoin; quantity=%d", a.Satoshis)
	case AssetEther:
		return fmt.Sprintf("ether; quantity=%s", a.quantityString())
	case AssetErc20:
		return fmt.Sprintf("erc20; address=%s; quantity=%s", a.Contract.Hex(), a.quantityString())
	default:
		return fmt.Sprintf("unknown(%s)", a.Name)
	}
}

func (a Asset) quantityString() string {
	if a.Quantity == nil {
		return "0"
	}
	return a.Quantity.Dec()
}

type assetJSON struct {
	Class    AssetClass     `json:"class"`
	Satoshis uint64         `json:"satoshis,omitempty"`
	Quantity string         `json:"quantity,omitempty"`
	Contract common.Address `json:"contract,omitempty"`
	Name     string         `json:"name,omitempty"`
}

func (a Asset) MarshalJSON() ([]byte, error) {
	j := assetJSON{Class: a.Class, Satoshis: a.Satoshis, Contract: a.Contract, Name: a.Name}
	if a.Quantity != nil {
		j.Quantity = a.Quantity.Dec()
	}
	return json.Marshal(j)
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var j assetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	a.Class = j.Class
	a.Satoshis = j.Satoshis
	a.Contract = j.Contract
	a.Name = j.Name
	if j.Quantity != "" {
		q, ok := new(big.Int).SetString(j.Quantity, 10)
		if !ok {
			return fmt.Errorf("swap: invalid asset quantity %q", j.Quantity)
		}
		u, overflow := uint256.FromBig(q)
		if overflow {
			return fmt.Errorf("swap: asset quantity %q overflows u256", j.Quantity)
		}
		a.Quantity = u
	}
	return nil
}
