package swap

import (
	"fmt"
	"time"
)

// State is the full in-memory state of one swap (spec.md §4.3):
// communication phase, alpha/beta ledger phase, role, the original
// request, the accept (once known), and an error flag. This is the
// single struct actions.Derive projects over and statemachine mutates;
// persistence and watchers only ever see read-only copies of it
// (spec.md §3 "Ownership").
type State struct {
	SwapID  ID
	Role    Role
	Request Request

	Communication Communication

	Alpha LedgerState
	Beta  LedgerState

	// Err is set when an unexpected on-chain inconsistency or
	// deserialization failure was observed while watching (spec.md
	// §4.3). It never halts the machine; it only affects Status.
	Err error
}

// HTLCParams are the negotiated facts that locate one side's HTLC on
// chain and say who may spend it: the ledger and asset committed for
// that side, its expiry, the identity that may redeem with the secret,
// and the identity that funded and may refund after expiry.
type HTLCParams struct {
	Ledger Ledger
	Asset  Asset
	Expiry time.Time

	Redeem Identity
	Refund Identity
}

// AlphaHTLC returns the alpha-side HTLC parameters. The redeem
// identity is only bound by the Accept, so this requires the swap to
// have been accepted.
func (s State) AlphaHTLC() (HTLCParams, error) {
	if s.Communication.Accept == nil {
		return HTLCParams{}, fmt.Errorf("swap: %s is not accepted; alpha HTLC parameters are not bound yet", s.SwapID)
	}
	return HTLCParams{
		Ledger: s.Request.AlphaLedger,
		Asset:  s.Request.AlphaAsset,
		Expiry: s.Request.AlphaExpiry,
		Redeem: s.Communication.Accept.AlphaLedgerRedeemIdentity,
		Refund: s.Request.AlphaLedgerRefundIdentity,
	}, nil
}

// BetaHTLC is AlphaHTLC's beta-side counterpart; here the refund
// identity is the one the Accept binds.
func (s State) BetaHTLC() (HTLCParams, error) {
	if s.Communication.Accept == nil {
		return HTLCParams{}, fmt.Errorf("swap: %s is not accepted; beta HTLC parameters are not bound yet", s.SwapID)
	}
	return HTLCParams{
		Ledger: s.Request.BetaLedger,
		Asset:  s.Request.BetaAsset,
		Expiry: s.Request.BetaExpiry,
		Redeem: s.Request.BetaLedgerRedeemIdentity,
		Refund: s.Communication.Accept.BetaLedgerRefundIdentity,
	}, nil
}

// Status is the derived, externally-reported swap status of spec.md §4.3.
type Status string

const (
	StatusInProgress      Status = "in_progress"
	StatusSwapped         Status = "swapped"
	StatusNotSwapped      Status = "not_swapped"
	StatusInternalFailure Status = "internal_failure"
)

// Terminal reports whether both ledger states have reached a terminal
// value, or communication has been declined (spec.md §4.3 "Terminal").
func (s State) Terminal() bool {
	if s.Communication.Phase == Declined {
		return true
	}
	return s.Alpha.Phase.Terminal() && s.Beta.Phase.Terminal()
}

// DerivedStatus computes the externally-reported Status.
func (s State) DerivedStatus() Status {
	if s.Err != nil {
		return StatusInternalFailure
	}
	if !s.Terminal() {
		return StatusInProgress
	}
	if s.Communication.Phase == Declined {
		return StatusNotSwapped
	}
	if s.Alpha.Phase == Redeemed && s.Beta.Phase == Redeemed {
		return StatusSwapped
	}
	return StatusNotSwapped
}
