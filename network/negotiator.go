package network

import (
	"context"

	"github.com/comit-network/cnd/swap"
)

// IdentityProvider supplies the local identities a responder commits
// to when accepting req: the identity that will redeem alpha, and the
// identity that will refund beta (spec.md §3 Accept).
type IdentityProvider interface {
	Identities(ctx context.Context, req swap.Request) (alphaRedeem, betaRefund swap.Identity, err error)
}

// DefaultDecision builds the ResponderDecision a responder installs by
// default: decline before ever touching persistence when the request
// is structurally invalid or drives a ledger/asset combination cnd
// cannot run (spec.md §8 boundary scenario S4 — alpha=erc20/beta=erc20
// is declined UnsupportedSwap without ever creating a swap record).
func DefaultDecision(identities IdentityProvider) ResponderDecision {
	return func(ctx context.Context, from PeerID, req swap.Request) (swap.Accept, swap.Decline, bool) {
		if req.UnsupportedCombination() {
			return swap.Accept{}, swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonUnsupportedSwap}, false
		}
		if err := req.Validate(); err != nil {
			return swap.Accept{}, swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonBadRateOrExpiry}, false
		}

		alphaRedeem, betaRefund, err := identities.Identities(ctx, req)
		if err != nil {
			return swap.Accept{}, swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonOther}, false
		}

		return swap.Accept{
			SwapID:                    req.SwapID,
			AlphaLedgerRedeemIdentity: alphaRedeem,
			BetaLedgerRefundIdentity:  betaRefund,
		}, swap.Decline{}, true
	}
}
