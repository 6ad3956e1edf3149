// Package watch implements the ledger watcher contract of spec.md
// §4.1 (component C1): a ledger-agnostic engine that drives the
// forward-scan/backward-scan/backfill algorithm over any Connector,
// plus the Bitcoin and Ethereum TransactionPattern predicates. Concrete
// connectors live in the watch/bitcoin and watch/ethereum subpackages.
package watch

// TransactionPattern is the tagged predicate conjunction of spec.md
// §4.1: a Bitcoin pattern or an Ethereum pattern, never both. As with
// LedgerKind/AssetKind (Design Notes §9), this is a closed variant
// rather than an open interface — the predicate shapes for the two
// ledger families are fixed and known in advance.
type TransactionPattern struct {
	Class LedgerClass

	Bitcoin  BitcoinPattern
	Ethereum EthereumPattern
}

// LedgerClass mirrors swap.LedgerClass but is redeclared here rather
// than imported so watch never needs to special-case swap.LedgerUnknown:
// a watch pattern is always for one of exactly two concrete families.
type LedgerClass int

const (
	Bitcoin LedgerClass = iota
	Ethereum
)

// BitcoinPattern is a conjunction of optional predicates over a
// Bitcoin transaction; a nil/zero field means "don't care."
type BitcoinPattern struct {
	ToAddress          string // P2SH/P2WSH/P2PKH encoded address, or "" for any
	FromOutpoint       *Outpoint
	UnlockScriptPrefix []byte
}

// Outpoint identifies a previous transaction output being spent.
type Outpoint struct {
	TxHash string
	Index  uint32
}

// EthereumPattern is a conjunction of optional predicates over an
// Ethereum transaction and, when EventAddress is set, its receipt's
// logs. Predicates referencing events require the receipt; connectors
// must fetch it lazily, only when this field is non-zero (spec.md
// §4.1: "the watcher lazily fetches receipts only when needed").
type EthereumPattern struct {
	FromAddress        *[20]byte
	ToAddress          *[20]byte
	IsContractCreation bool
	InputDataPrefix    []byte

	EventAddress *[20]byte
	EventTopics  [][32]byte
}

// BitcoinToAddressPattern matches any transaction paying address.
func BitcoinToAddressPattern(address string) TransactionPattern {
	return TransactionPattern{Class: Bitcoin, Bitcoin: BitcoinPattern{ToAddress: address}}
}

func EthereumToAddressPattern(address [20]byte) TransactionPattern {
	return TransactionPattern{Class: Ethereum, Ethereum: EthereumPattern{ToAddress: &address}}
}

func EthereumContractCreationPattern(fromAddress [20]byte) TransactionPattern {
	return TransactionPattern{Class: Ethereum, Ethereum: EthereumPattern{FromAddress: &fromAddress, IsContractCreation: true}}
}
