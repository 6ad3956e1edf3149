package node

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/comit-network/cnd/htlc"
	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/swap"
	"github.com/comit-network/cnd/watch"
)

// paramsFor pulls the negotiated HTLC parameters for one ledger side
// out of the swap state, so the watch code never has to care which of
// the two it is driving.
func paramsFor(st swap.State, side statemachine.Side) (swap.HTLCParams, error) {
	if side == statemachine.SideBeta {
		return st.BetaHTLC()
	}
	return st.AlphaHTLC()
}

// appearancePattern derives the TransactionPattern under which this
// side's HTLC first shows up on chain: for Bitcoin the deterministic
// P2WSH address both parties can compute from the negotiated
// parameters, for Ethereum a contract creation by the funder.
func appearancePattern(p swap.HTLCParams, secretHash swap.SecretHash) (watch.TransactionPattern, error) {
	switch p.Ledger.Class {
	case swap.LedgerBitcoin:
		addr, err := htlc.BitcoinAddress(secretHash, p.Redeem, p.Refund, p.Expiry, p.Ledger.BitcoinNetwork)
		if err != nil {
			return watch.TransactionPattern{}, err
		}
		return watch.BitcoinToAddressPattern(addr.EncodeAddress()), nil
	case swap.LedgerEthereum:
		if p.Refund.Class != swap.LedgerEthereum {
			return watch.TransactionPattern{}, fmt.Errorf("node: ethereum side carries a %s refund identity", p.Refund.Class)
		}
		return watch.EthereumContractCreationPattern([20]byte(p.Refund.Ethereum)), nil
	default:
		return watch.TransactionPattern{}, fmt.Errorf("node: cannot watch ledger class %q", p.Ledger.Class)
	}
}

// spendPattern derives the TransactionPattern matching any transaction
// consuming the HTLC at loc — redeem and refund alike; which of the
// two a match was is decided by inspecting it for the secret.
func spendPattern(loc swap.HTLCLocation) watch.TransactionPattern {
	switch loc.Ledger {
	case swap.LedgerBitcoin:
		return watch.TransactionPattern{
			Class: watch.Bitcoin,
			Bitcoin: watch.BitcoinPattern{
				FromOutpoint: &watch.Outpoint{TxHash: loc.TxHash, Index: loc.Vout},
			},
		}
	default:
		return watch.EthereumToAddressPattern(loc.Address)
	}
}

// engineRunner starts a watch engine for pattern from cutoff and
// returns its observation stream. The indirection exists so sideWatch
// can be exercised in tests without a real connector behind it.
type engineRunner func(ctx context.Context, pattern watch.TransactionPattern, cutoff time.Time) (<-chan watch.Observation, error)

func connectorRunner(c watch.Connector, opts ...watch.EngineOption) engineRunner {
	return func(ctx context.Context, pattern watch.TransactionPattern, cutoff time.Time) (<-chan watch.Observation, error) {
		engine, err := watch.NewEngine(c, pattern, cutoff, opts...)
		if err != nil {
			return nil, err
		}
		return engine.Run(ctx), nil
	}
}

// sideWatch drives one ledger side of one accepted swap from HTLC
// appearance through funding to redeem or refund, translating raw
// watch.Observations into statemachine events. Ledger specifics enter
// only through the closures, never through type switches here.
type sideWatch struct {
	swapID swap.ID
	side   statemachine.Side
	cutoff time.Time
	expiry time.Time

	appearance watch.TransactionPattern

	// fundingPattern, when set, watches for a separate funding
	// transaction after deployment (ERC-20: the token transfer into the
	// already-created HTLC). When nil, the appearance transaction is
	// itself the funding transaction.
	fundingPattern func(loc swap.HTLCLocation) watch.TransactionPattern

	watch engineRunner

	// resolveFunding inspects the appearance transaction: where the
	// HTLC sits, and whether the value matches the committed quantity.
	resolveFunding func(ctx context.Context, txHash string) (swap.HTLCLocation, bool, error)

	// checkFunding inspects a fundingPattern match: whether it funds
	// the HTLC at loc at all, and if so whether the amount is correct.
	checkFunding func(ctx context.Context, txHash string, loc swap.HTLCLocation) (found, correct bool, err error)

	// redeemSecret reports the preimage a spend revealed, if any.
	redeemSecret func(ctx context.Context, txHash string) (swap.Secret, bool, error)

	submit func(ctx context.Context, ev statemachine.Event) error
}

func (w *sideWatch) run(ctx context.Context) error {
	appear, err := w.watch(ctx, w.appearance, w.cutoff)
	if err != nil {
		return err
	}

	var obs watch.Observation
	select {
	case obs = <-appear:
	case <-ctx.Done():
		return ctx.Err()
	}

	loc, correct, err := w.resolveFunding(ctx, obs.TxHash)
	if err != nil {
		// The HTLC was sighted but could not be decoded; flag the swap
		// and stop — re-running the watcher (restart, resume) examines
		// the same chain region again (spec.md §4.3 failure semantics).
		_ = w.submit(ctx, statemachine.DeserializationFailed{SwapID: w.swapID, Cause: swap.NewError(swap.LedgerFailure, err)})
		return err
	}
	if err := w.submit(ctx, w.deployed(loc)); err != nil {
		return err
	}

	if w.fundingPattern != nil {
		correct, err = w.awaitSeparateFunding(ctx, loc, obs.Block.Timestamp)
		if err != nil {
			return err
		}
	}
	if err := w.submit(ctx, w.funded(correct)); err != nil {
		return err
	}
	if !correct {
		// IncorrectlyFunded is terminal for automation: no redeem or
		// refund is driven for it, only the manual refund the expiry
		// timer unlocks (SPEC_FULL.md §9).
		return nil
	}

	spends, err := w.watch(ctx, spendPattern(loc), obs.Block.Timestamp)
	if err != nil {
		return err
	}
	for {
		var spend watch.Observation
		select {
		case spend = <-spends:
		case <-ctx.Done():
			return ctx.Err()
		}

		secret, ok, err := w.redeemSecret(ctx, spend.TxHash)
		if err != nil {
			log.Warn("node: could not inspect HTLC spend, skipping", "swap_id", w.swapID, "side", w.side, "tx", spend.TxHash, "err", err)
			continue
		}
		if ok {
			return w.submit(ctx, w.redeemed(spend.TxHash, secret))
		}
		if !spend.Block.Timestamp.Before(w.expiry) {
			return w.submit(ctx, w.refunded(spend.TxHash))
		}
		// A spend attempt before expiry that revealed no valid preimage
		// moved no funds (spec.md §8 S3); keep watching.
	}
}

func (w *sideWatch) awaitSeparateFunding(ctx context.Context, loc swap.HTLCLocation, from time.Time) (bool, error) {
	fundings, err := w.watch(ctx, w.fundingPattern(loc), from)
	if err != nil {
		return false, err
	}
	for {
		var obs watch.Observation
		select {
		case obs = <-fundings:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		found, correct, err := w.checkFunding(ctx, obs.TxHash, loc)
		if err != nil {
			log.Warn("node: could not inspect funding candidate, skipping", "swap_id", w.swapID, "side", w.side, "tx", obs.TxHash, "err", err)
			continue
		}
		if found {
			return correct, nil
		}
	}
}

func (w *sideWatch) deployed(loc swap.HTLCLocation) statemachine.Event {
	if w.side == statemachine.SideBeta {
		return statemachine.BetaDeployed{SwapID: w.swapID, Location: loc}
	}
	return statemachine.AlphaDeployed{SwapID: w.swapID, Location: loc}
}

func (w *sideWatch) funded(correct bool) statemachine.Event {
	if w.side == statemachine.SideBeta {
		return statemachine.BetaFunded{SwapID: w.swapID, CorrectValue: correct}
	}
	return statemachine.AlphaFunded{SwapID: w.swapID, CorrectValue: correct}
}

func (w *sideWatch) redeemed(txHash string, secret swap.Secret) statemachine.Event {
	if w.side == statemachine.SideBeta {
		return statemachine.BetaRedeemed{SwapID: w.swapID, TxHash: txHash, Secret: secret}
	}
	return statemachine.AlphaRedeemed{SwapID: w.swapID, TxHash: txHash, Secret: secret}
}

func (w *sideWatch) refunded(txHash string) statemachine.Event {
	if w.side == statemachine.SideBeta {
		return statemachine.BetaRefunded{SwapID: w.swapID, TxHash: txHash}
	}
	return statemachine.AlphaRefunded{SwapID: w.swapID, TxHash: txHash}
}
