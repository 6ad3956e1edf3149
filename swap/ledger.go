package swap

import (
	"encoding/json"
	"fmt"
)

// LedgerClass is the closed set of ledger families cnd understands.
// New ledgers are added by extending this set, not by opening the type
// up to arbitrary implementations — the wire protocol already
// discriminates by string name (spec.md §4.4), so there is nothing to
// gain from interface-level open extensibility here (Design Notes §9).
type LedgerClass string

const (
	LedgerBitcoin  LedgerClass = "bitcoin"
	LedgerEthereum LedgerClass = "ethereum"
	LedgerUnknown  LedgerClass = "unknown"
)

// BitcoinNetwork is the closed set of Bitcoin networks cnd can target.
type BitcoinNetwork string

const (
	BitcoinMainnet BitcoinNetwork = "mainnet"
	BitcoinTestnet BitcoinNetwork = "testnet"
	BitcoinRegtest BitcoinNetwork = "regtest"
)

// Ledger is the tagged LedgerKind variant of spec.md §3:
//
//	Bitcoin(network)
//	Ethereum(chain_id)
//	Unknown(string)
type Ledger struct {
	Class LedgerClass

	// Set when Class == LedgerBitcoin.
	BitcoinNetwork BitcoinNetwork

	// Set when Class == LedgerEthereum.
	ChainID uint32

	// Set when Class == LedgerUnknown; carries the unrecognized name
	// verbatim so a decline response can echo it back.
	Name string
}

func BitcoinLedger(network BitcoinNetwork) Ledger {
	return Ledger{Class: LedgerBitcoin, BitcoinNetwork: network}
}

func EthereumLedger(chainID uint32) Ledger {
	return Ledger{Class: LedgerEthereum, ChainID: chainID}
}

func UnknownLedger(name string) Ledger {
	return Ledger{Class: LedgerUnknown, Name: name}
}

// Supported reports whether cnd can actually drive this ledger, as
// opposed to merely being able to parse its wire representation.
func (l Ledger) Supported() bool {
	switch l.Class {
	case LedgerBitcoin:
		switch l.BitcoinNetwork {
		case BitcoinMainnet, BitcoinTestnet, BitcoinRegtest:
			return true
		}
		return false
	case LedgerEthereum:
		return l.ChainID != 0
	default:
		return false
	}
}

func (l Ledger) String() string {
	switch l.Class {
	case LedgerBitcoin:
		return fmt.Sprintf("bitcoin; network=%s", l.BitcoinNetwork)
	case LedgerEthereum:
		return fmt.Sprintf("ethereum; network=%d", l.ChainID)
	default:
		return fmt.Sprintf("unknown(%s)", l.Name)
	}
}

type ledgerJSON struct {
	Class   LedgerClass    `json:"class"`
	Network BitcoinNetwork `json:"network,omitempty"`
	ChainID uint32         `json:"chain_id,omitempty"`
	Name    string         `json:"name,omitempty"`
}

func (l Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{
		Class:   l.Class,
		Network: l.BitcoinNetwork,
		ChainID: l.ChainID,
		Name:    l.Name,
	})
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	var j ledgerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	l.Class = j.Class
	l.BitcoinNetwork = j.Network
	l.ChainID = j.ChainID
	l.Name = j.Name
	return nil
}
