package swap

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
)

// Identity is a ledger-native address: an Ethereum common.Address when
// bound to an Ethereum ledger, or a Bitcoin btcutil.Address when bound
// to a Bitcoin ledger. Request and Accept carry four of these
// (alpha/beta × refund/redeem identity); which concrete form is valid
// for a given field is determined by the corresponding Ledger, not by
// the Identity itself, matching how the wire protocol discriminates by
// ledger name rather than by identity shape.
type Identity struct {
	Class    LedgerClass
	Ethereum common.Address
	Bitcoin  btcutil.Address
}

func EthereumIdentity(addr common.Address) Identity {
	return Identity{Class: LedgerEthereum, Ethereum: addr}
}

func BitcoinIdentity(addr btcutil.Address) Identity {
	return Identity{Class: LedgerBitcoin, Bitcoin: addr}
}

func (i Identity) String() string {
	switch i.Class {
	case LedgerEthereum:
		return i.Ethereum.Hex()
	case LedgerBitcoin:
		if i.Bitcoin == nil {
			return ""
		}
		return i.Bitcoin.EncodeAddress()
	default:
		return ""
	}
}

func (i Identity) IsZero() bool {
	switch i.Class {
	case LedgerEthereum:
		return i.Ethereum == (common.Address{})
	case LedgerBitcoin:
		return i.Bitcoin == nil
	default:
		return true
	}
}

type identityJSON struct {
	Class   LedgerClass `json:"class"`
	Address string      `json:"address"`
}

func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{Class: i.Class, Address: i.String()})
}

// UnmarshalJSON parses the Ethereum form; Bitcoin addresses require a
// network parameter to decode and so are parsed by the caller (who
// knows the relevant Ledger) via BitcoinIdentityFromString, not here.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var j identityJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	i.Class = j.Class
	switch j.Class {
	case LedgerEthereum:
		if !common.IsHexAddress(j.Address) {
			return fmt.Errorf("swap: invalid ethereum identity %q", j.Address)
		}
		i.Ethereum = common.HexToAddress(j.Address)
	case LedgerBitcoin:
		// Deferred: see doc comment above.
	}
	return nil
}

// IdentityFromString decodes addr against the ledger it is bound to:
// a hex address for Ethereum, a network-checked base58/bech32 address
// for Bitcoin. This is the entry point for wire bodies, where the
// identity string arrives separately from the ledger header that gives
// it meaning.
func IdentityFromString(addr string, ledger Ledger) (Identity, error) {
	switch ledger.Class {
	case LedgerEthereum:
		if !common.IsHexAddress(addr) {
			return Identity{}, fmt.Errorf("swap: invalid ethereum identity %q", addr)
		}
		return EthereumIdentity(common.HexToAddress(addr)), nil
	case LedgerBitcoin:
		return BitcoinIdentityFromString(addr, ledger.BitcoinNetwork)
	default:
		return Identity{}, fmt.Errorf("swap: cannot decode identity for ledger class %q", ledger.Class)
	}
}

// BitcoinIdentityFromString decodes a Bitcoin address string against
// the chain parameters implied by network.
func BitcoinIdentityFromString(addr string, network BitcoinNetwork) (Identity, error) {
	params, err := BitcoinParams(network)
	if err != nil {
		return Identity{}, err
	}
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return Identity{}, fmt.Errorf("swap: invalid bitcoin identity %q: %w", addr, err)
	}
	return BitcoinIdentity(decoded), nil
}

// BitcoinParams maps the wire-level BitcoinNetwork tag to the
// btcsuite chain parameters needed to decode/encode addresses.
// Exported so other packages deriving Bitcoin addresses (seed) don't
// need their own copy of this mapping.
func BitcoinParams(network BitcoinNetwork) (*chaincfg.Params, error) {
	switch network {
	case BitcoinMainnet:
		return &chaincfg.MainNetParams, nil
	case BitcoinTestnet:
		return &chaincfg.TestNet3Params, nil
	case BitcoinRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("swap: unknown bitcoin network %q", network)
	}
}
