package watch

import (
	"context"
	"time"
)

// BlockRef is the minimal ledger-agnostic description of a block the
// engine needs to walk the chain: its own hash, its parent's hash, and
// its timestamp. Concrete connectors translate their native block type
// into this shape.
type BlockRef struct {
	Hash      string
	PrevHash  string
	Timestamp time.Time
}

// Observation is a single matched transaction, emitted at most once
// per transaction hash for the lifetime of an Engine run (spec.md
// §4.1 guarantee). It is the one concrete type fed through the
// engine's internal event.Feed fan-in (see engine.go) — unlike
// statemachine.Event, every sender here emits this exact type, which
// is what makes event.Feed's type discipline the right tool.
type Observation struct {
	TxHash string
	Block  BlockRef
}

// Connector is the per-ledger dependency the Engine drives: block
// traversal plus pattern evaluation. Pattern evaluation is delegated
// to the connector because only it knows how to decode its ledger's
// native transaction/receipt shapes against the predicates of
// TransactionPattern (spec.md §4.1's "Contract").
type Connector interface {
	LatestBlock(ctx context.Context) (BlockRef, error)
	BlockByHash(ctx context.Context, hash string) (BlockRef, error)

	// Matches returns the hash of every transaction in block that
	// satisfies pattern. Implementations fetch receipts lazily, only
	// when pattern references an event.
	Matches(ctx context.Context, block BlockRef, pattern TransactionPattern) ([]string, error)
}
