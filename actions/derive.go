package actions

import (
	"time"

	"github.com/comit-network/cnd/swap"
)

// Options carries the caller-supplied context Derive needs beyond the
// swap state itself: wall-clock time (to evaluate expiries) and the
// initiator's secret, if known locally. The secret is not part of
// swap.State because, prior to on-chain reveal, only the initiator
// holds it (spec.md §3) — it lives with the SecretSource (package
// seed), not the state machine.
type Options struct {
	Now             time.Time
	InitiatorSecret *swap.Secret
}

// Derive computes the set of legal actions for s, in priority order
// (spec.md §4.2: "When both Redeem and Refund are simultaneously
// available due to timing, Redeem is listed first"). It performs no
// I/O and touches no state outside its arguments.
func Derive(s swap.State, opts Options) []Action {
	if s.Communication.Phase == swap.Declined {
		return nil
	}
	if s.Communication.Phase == swap.Proposed {
		if s.Role == swap.Responder {
			return []Action{{Kind: KindAccept}, {Kind: KindDecline}}
		}
		return nil // initiator awaits response
	}

	var out []Action

	// Redeem actions take priority over Refund on the same side
	// whenever both are legal (spec.md §4.2).
	out = append(out, redeemActions(s, opts)...)
	out = append(out, fundActions(s)...)
	out = append(out, refundActions(s, opts.Now)...)

	return out
}

func fundActions(s swap.State) []Action {
	var out []Action
	if s.Role == swap.Initiator && s.Alpha.Phase == swap.NotDeployed {
		out = append(out, Action{Kind: KindFund, Side: SideAlpha})
	}
	if s.Role == swap.Responder && s.Alpha.Phase == swap.Funded && s.Beta.Phase == swap.NotDeployed {
		out = append(out, Action{Kind: KindFund, Side: SideBeta})
	}
	return out
}

func redeemActions(s swap.State, opts Options) []Action {
	var out []Action

	// Initiator redeems beta once both legs are funded, using the
	// secret only they hold pre-reveal.
	if s.Role == swap.Initiator && s.Alpha.Phase == swap.Funded && s.Beta.Phase == swap.Funded {
		if opts.InitiatorSecret != nil {
			secret := *opts.InitiatorSecret
			out = append(out, Action{Kind: KindRedeem, Side: SideBeta, Secret: &secret})
		}
	}

	// Responder redeems alpha once beta has been redeemed and the
	// secret extracted on-chain.
	if s.Role == swap.Responder && s.Alpha.Phase == swap.Funded && s.Beta.Phase == swap.Redeemed {
		secret := s.Beta.Secret
		out = append(out, Action{Kind: KindRedeem, Side: SideAlpha, Secret: &secret})
	}

	return out
}

func refundActions(s swap.State, now time.Time) []Action {
	var out []Action

	alphaExpired := !now.Before(s.Request.AlphaExpiry)
	betaExpired := !now.Before(s.Request.BetaExpiry)

	// Alpha was funded by the initiator, so once alpha_expiry passes
	// while alpha is still Funded, the initiator can reclaim their own
	// deposit regardless of beta's state — including when beta has
	// already been Redeemed by the initiator themselves (spec.md §4.2
	// row "Funded | Redeemed(_, secret) | Refund(alpha) if past expiry").
	if s.Role == swap.Initiator && s.Alpha.Phase == swap.Funded && alphaExpired {
		out = append(out, Action{Kind: KindRefund, Side: SideAlpha})
	}
	if s.Role == swap.Responder && s.Beta.Phase == swap.Funded && betaExpired {
		out = append(out, Action{Kind: KindRefund, Side: SideBeta})
	}

	// IncorrectlyFunded manual refund, parameterized per the Open
	// Question decision (SPEC_FULL.md §9).
	if s.Alpha.ManualRefundDerivable() {
		out = append(out, Action{Kind: KindRefund, Side: SideAlpha})
	}
	if s.Beta.ManualRefundDerivable() {
		out = append(out, Action{Kind: KindRefund, Side: SideBeta})
	}

	return out
}
