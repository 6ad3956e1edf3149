// Package actions computes the set of legal user actions for a swap
// state. Derive is a pure projection: no I/O, no hidden globals
// (Design Notes §9 "Action legality is a pure projection") — the
// highest-leverage test surface in the system.
package actions

import "github.com/comit-network/cnd/swap"

// Kind is the closed set of action types a swap can expose.
type Kind string

const (
	KindFund    Kind = "fund"
	KindRedeem  Kind = "redeem"
	KindRefund  Kind = "refund"
	KindAccept  Kind = "accept"
	KindDecline Kind = "decline"
)

// Side identifies which leg of the swap an action applies to.
type Side string

const (
	SideAlpha Side = "alpha"
	SideBeta  Side = "beta"
)

// Action is a legal, self-describing user action: a transaction to
// broadcast, or contract-call data with gas and chain id (spec.md §6).
type Action struct {
	Kind Kind
	Side Side

	// Secret is set for KindRedeem.
	Secret *swap.Secret

	Payload Payload
}

// Payload is implemented by the four action payload shapes of
// spec.md §6, tagged by Type for JSON marshaling.
type Payload interface {
	Type() string
}

type BitcoinSendAmountToAddress struct {
	To      string
	Amount  string // satoshis, decimal string per spec.md §6
	Network swap.BitcoinNetwork
}

func (BitcoinSendAmountToAddress) Type() string { return "bitcoin-send-amount-to-address" }

type BitcoinBroadcastSignedTransaction struct {
	Hex                string
	Network            swap.BitcoinNetwork
	MinMedianBlockTime *int64
}

func (BitcoinBroadcastSignedTransaction) Type() string { return "bitcoin-broadcast-signed-transaction" }

type EthereumDeployContract struct {
	Data     []byte
	Amount   string // wei, decimal string
	GasLimit uint64
	ChainID  uint32
	Network  string
}

func (EthereumDeployContract) Type() string { return "ethereum-deploy-contract" }

type EthereumCallContract struct {
	ContractAddress   [20]byte
	Data              []byte
	GasLimit          uint64
	ChainID           uint32
	Network           string
	MinBlockTimestamp *int64
}

func (EthereumCallContract) Type() string { return "ethereum-call-contract" }
