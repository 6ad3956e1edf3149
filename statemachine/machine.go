// Package statemachine implements the per-swap state machine of
// spec.md §4.3: the transition table, terminal/derived-status logic,
// and the serialized single-consumer Driver that applies events to one
// swap at a time (Design Notes §9 "Reentrant state store").
package statemachine

import (
	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/log"
)

// Apply computes the next state after ev, per the transition table of
// spec.md §4.3. It never panics and never blocks: an event that is
// illegal for the current phase (the node missed a block, or two
// watchers raced) is logged and otherwise ignored rather than treated
// as fatal — spec.md §4.3's failure semantics call this out explicitly
// ("An unexpected transition ... is not fatal"). Apply is a pure
// function of its two inputs so it can be tested without a Driver.
func Apply(s swap.State, ev Event) swap.State {
	switch e := ev.(type) {
	case ReceiveAccept:
		if s.Communication.Phase != swap.Proposed {
			logIgnored(s.SwapID, ev, "communication not in Proposed")
			break
		}
		accept := e.Accept
		s.Communication = swap.Communication{Phase: swap.Accepted, Accept: &accept}

	case ReceiveDecline:
		if s.Communication.Phase != swap.Proposed {
			logIgnored(s.SwapID, ev, "communication not in Proposed")
			break
		}
		decline := e.Decline
		s.Communication = swap.Communication{Phase: swap.Declined, Decline: &decline}

	case AlphaDeployed:
		if err := s.Alpha.Deploy(e.Location); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case BetaDeployed:
		if err := s.Beta.Deploy(e.Location); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case AlphaFunded:
		if err := s.Alpha.Fund(e.CorrectValue); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case BetaFunded:
		if err := s.Beta.Fund(e.CorrectValue); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case AlphaRedeemed:
		if !secretMatches(s, e.Secret) {
			s.Err = swap.NewError(swap.IntegrityFailure, errSecretMismatch(s.SwapID, "alpha"))
			break
		}
		if err := s.Alpha.Redeem(e.TxHash, e.Secret); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case BetaRedeemed:
		if !secretMatches(s, e.Secret) {
			s.Err = swap.NewError(swap.IntegrityFailure, errSecretMismatch(s.SwapID, "beta"))
			break
		}
		if err := s.Beta.Redeem(e.TxHash, e.Secret); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case AlphaRefunded:
		if err := s.Alpha.Refund(e.TxHash); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case BetaRefunded:
		if err := s.Beta.Refund(e.TxHash); err != nil {
			logIgnored(s.SwapID, ev, err.Error())
		}

	case ExpiryElapsed:
		switch e.Side {
		case SideAlpha:
			s.Alpha.MarkExpiryElapsed()
		case SideBeta:
			s.Beta.MarkExpiryElapsed()
		}

	case DeserializationFailed:
		s.Err = e.Cause
	}

	return s
}

// secretMatches enforces spec.md §8 invariant 3: the secret_hash
// observed in a redeem must equal H(secret) under the request's
// declared hash function.
func secretMatches(s swap.State, secret swap.Secret) bool {
	got, err := secret.Hash(s.Request.HashFunction)
	if err != nil {
		return false
	}
	return got == s.Request.SecretHash
}

func errSecretMismatch(id swap.ID, side string) error {
	return &secretMismatchError{swapID: id, side: side}
}

type secretMismatchError struct {
	swapID swap.ID
	side   string
}

func (e *secretMismatchError) Error() string {
	return "statemachine: " + e.side + " redeem secret does not hash to the committed secret_hash for swap " + e.swapID.String()
}

func logIgnored(id swap.ID, ev Event, reason string) {
	log.Debug("statemachine: ignoring event", "swap_id", id, "event", eventName(ev), "reason", reason)
}

func eventName(ev Event) string {
	switch ev.(type) {
	case ReceiveAccept:
		return "ReceiveAccept"
	case ReceiveDecline:
		return "ReceiveDecline"
	case AlphaDeployed:
		return "AlphaDeployed"
	case BetaDeployed:
		return "BetaDeployed"
	case AlphaFunded:
		return "AlphaFunded"
	case BetaFunded:
		return "BetaFunded"
	case AlphaRedeemed:
		return "AlphaRedeemed"
	case BetaRedeemed:
		return "BetaRedeemed"
	case AlphaRefunded:
		return "AlphaRefunded"
	case BetaRefunded:
		return "BetaRefunded"
	default:
		return "unknown"
	}
}
