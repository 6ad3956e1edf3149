package watch

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	forwardPollInterval = time.Second
	seenCacheSize       = 4096
)

// Engine runs the forward-scan/backward-scan/backfill algorithm of
// spec.md §4.1 over one Connector for one TransactionPattern, from one
// cutoff timestamp. One Engine watches one side (alpha or beta) of one
// swap; the node wires one per ledger side once a swap is Accepted.
type Engine struct {
	connector Connector
	pattern   TransactionPattern
	cutoff    time.Time

	seenBlocks *lru.Cache[string, struct{}]
	seenTxs    *lru.Cache[string, struct{}]

	limiter *rate.Limiter

	pollInterval time.Duration

	firstHeadOnce sync.Once
	firstHead     chan BlockRef
}

// EngineOption configures an Engine beyond its required arguments.
type EngineOption func(*Engine)

// WithPollInterval overrides the forward-scan poll cadence, which
// otherwise defaults to forwardPollInterval. Tests use this to avoid
// waiting on the production cadence.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.pollInterval = d }
}

// NewEngine constructs an Engine. cutoff is the earliest block time the
// backward scan must examine (spec.md GLOSSARY "Cutoff timestamp").
func NewEngine(connector Connector, pattern TransactionPattern, cutoff time.Time, opts ...EngineOption) (*Engine, error) {
	seenBlocks, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	seenTxs, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		connector:    connector,
		pattern:      pattern,
		cutoff:       cutoff,
		seenBlocks:   seenBlocks,
		seenTxs:      seenTxs,
		limiter:      rate.NewLimiter(rate.Every(2*time.Second), 1),
		pollInterval: forwardPollInterval,
		firstHead:    make(chan BlockRef, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run starts the forward scan, backward scan, and backfill drain, and
// returns the channel of matched Observations. The channel is never
// closed by the engine — per spec.md §4.1 guarantee (c), the sequence
// is terminated only by the caller dropping it (cancelling ctx and
// discarding the channel).
func (e *Engine) Run(ctx context.Context) <-chan Observation {
	var feed event.Feed
	out := make(chan Observation, 64)
	feed.Subscribe(out)

	backfill := newBackfillQueue()

	go e.forwardScan(ctx, &feed, backfill)
	go e.backwardScan(ctx, &feed)
	go e.drainBackfill(ctx, &feed, backfill)

	return out
}

// forwardScan polls latest_block on a fixed cadence, deduplicating by
// blockhash and enqueueing orphaned parents for backfill (spec.md
// §4.1 algorithm step 1).
func (e *Engine) forwardScan(ctx context.Context, feed *event.Feed, backfill *backfillQueue) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := e.connector.LatestBlock(ctx)
		if err != nil {
			log.Warn("watch: forward scan poll failed", "err", err)
			continue
		}

		e.firstHeadOnce.Do(func() { e.firstHead <- head })
		isFirst := first
		first = false

		if _, ok := e.seenBlocks.Get(head.Hash); ok {
			continue
		}
		// The very first head's parent is unseen by construction —
		// backwardScan, not backfill, is responsible for walking it.
		// A later head with an unseen parent is a genuine gap or reorg.
		if !isFirst && head.PrevHash != "" {
			if _, ok := e.seenBlocks.Get(head.PrevHash); !ok {
				backfill.Push(head.PrevHash)
			}
		}
		e.visit(ctx, feed, head)
	}
}

// backwardScan walks the prev_hash chain from the first observed head
// back to cutoff, checking every visited block against the pattern
// (spec.md §4.1 algorithm step 2).
func (e *Engine) backwardScan(ctx context.Context, feed *event.Feed) {
	cursor, err := e.waitForFirstHead(ctx)
	if err != nil {
		return
	}

	for {
		if cursor.Timestamp.Before(e.cutoff) {
			return
		}
		e.visit(ctx, feed, cursor)

		if cursor.PrevHash == "" {
			return
		}
		parent, err := e.fetchWithRetry(ctx, cursor.PrevHash)
		if err != nil {
			return
		}
		cursor = parent
	}
}

// drainBackfill processes orphaned-parent hashes enqueued by
// forwardScan, chasing further parents of interest until it reaches
// an already-seen block — healing reorgs or gaps deeper than one block
// (spec.md §4.1: "chase parents of interest").
func (e *Engine) drainBackfill(ctx context.Context, feed *event.Feed, backfill *backfillQueue) {
	for {
		hash, err := backfill.Pop(ctx)
		if err != nil {
			return
		}

		block, err := e.fetchWithRetry(ctx, hash)
		if err != nil {
			return
		}
		e.visit(ctx, feed, block)

		if block.PrevHash == "" {
			continue
		}
		if _, ok := e.seenBlocks.Get(block.PrevHash); !ok {
			backfill.Push(block.PrevHash)
		}
	}
}

func (e *Engine) waitForFirstHead(ctx context.Context) (BlockRef, error) {
	select {
	case head := <-e.firstHead:
		return head, nil
	case <-ctx.Done():
		return BlockRef{}, ctx.Err()
	}
}

// visit checks block against the pattern and emits an Observation for
// every not-yet-seen matching transaction. It is idempotent: revisiting
// the same block (e.g. after a healed reorg re-confirms the same
// transaction) is a no-op, which is what gives the engine its "at most
// once" guarantee and makes boundary scenario S5 hold.
func (e *Engine) visit(ctx context.Context, feed *event.Feed, block BlockRef) {
	if _, ok := e.seenBlocks.Get(block.Hash); ok {
		return
	}
	e.seenBlocks.Add(block.Hash, struct{}{})

	matches, err := e.retryMatches(ctx, block)
	if err != nil {
		return
	}
	for _, txHash := range matches {
		if _, ok := e.seenTxs.Get(txHash); ok {
			continue
		}
		e.seenTxs.Add(txHash, struct{}{})
		feed.Send(Observation{TxHash: txHash, Block: block})
	}
}

// retryMatches and fetchWithRetry implement "transient fetch errors
// re-enqueue the same hash without advancing" (spec.md §4.1) as an
// in-place retry loop paced by a rate limiter, rather than literally
// re-enqueueing — equivalent effect, no risk of the retry itself
// starving the backfill queue.
func (e *Engine) retryMatches(ctx context.Context, block BlockRef) ([]string, error) {
	for {
		matches, err := e.connector.Matches(ctx, block, e.pattern)
		if err == nil {
			return matches, nil
		}
		log.Warn("watch: transient match-fetch error, retrying", "block", block.Hash, "err", err)
		if werr := e.limiter.Wait(ctx); werr != nil {
			return nil, werr
		}
	}
}

func (e *Engine) fetchWithRetry(ctx context.Context, hash string) (BlockRef, error) {
	for {
		block, err := e.connector.BlockByHash(ctx, hash)
		if err == nil {
			return block, nil
		}
		log.Warn("watch: transient block-fetch error, retrying", "hash", hash, "err", err)
		if werr := e.limiter.Wait(ctx); werr != nil {
			return BlockRef{}, werr
		}
	}
}

// backfillQueue is a dedup-guarded FIFO of block hashes awaiting a
// backfill visit.
type backfillQueue struct {
	ch   chan string
	mu   sync.Mutex
	seen mapset.Set[string]
}

func newBackfillQueue() *backfillQueue {
	return &backfillQueue{
		ch:   make(chan string, 256),
		seen: mapset.NewSet[string](),
	}
}

func (q *backfillQueue) Push(hash string) {
	q.mu.Lock()
	if q.seen.Contains(hash) {
		q.mu.Unlock()
		return
	}
	q.seen.Add(hash)
	q.mu.Unlock()

	select {
	case q.ch <- hash:
	default:
		// Queue saturated under a deep reorg; the forward or backward
		// scan will re-discover this hash from a later head if it's
		// still needed.
		q.mu.Lock()
		q.seen.Remove(hash)
		q.mu.Unlock()
	}
}

func (q *backfillQueue) Pop(ctx context.Context) (string, error) {
	select {
	case hash := <-q.ch:
		q.mu.Lock()
		q.seen.Remove(hash)
		q.mu.Unlock()
		return hash, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
