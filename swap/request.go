package swap

import (
	"fmt"
	"time"
)

// MinExpiryMargin is the minimum safe margin by which alpha_expiry
// must exceed beta_expiry (spec.md §3 invariant: "the longer expiry
// protects the party funding first"). A thin margin defeats the
// protection it's meant to provide, so Validate rejects anything
// below it rather than merely requiring alpha > beta.
const MinExpiryMargin = 1 * time.Hour

// Request is the initiator's swap proposal (spec.md §3).
type Request struct {
	SwapID ID

	AlphaLedger Ledger
	BetaLedger  Ledger
	AlphaAsset  Asset
	BetaAsset   Asset

	HashFunction HashFunction

	AlphaExpiry time.Time
	BetaExpiry  time.Time

	SecretHash SecretHash

	AlphaLedgerRefundIdentity Identity
	BetaLedgerRedeemIdentity  Identity
}

// Accept binds both parties' identities on both ledgers (spec.md §3).
type Accept struct {
	SwapID ID

	AlphaLedgerRedeemIdentity Identity
	BetaLedgerRefundIdentity  Identity
}

// DeclineReason is the closed set of reasons a Decline may carry.
// Per Design Notes §9 ("Open question — Decline reasons"): additional
// reasons may be added in the future but the set must stay closed on
// the wire; it is not opened up to arbitrary strings.
type DeclineReason string

const (
	ReasonUnsupportedSwap     DeclineReason = "UnsupportedSwap"
	ReasonUnsupportedProtocol DeclineReason = "UnsupportedProtocol"
	ReasonBadRateOrExpiry     DeclineReason = "BadRateOrExpiry"
	ReasonOther               DeclineReason = "Other"
)

func (r DeclineReason) Valid() bool {
	switch r {
	case ReasonUnsupportedSwap, ReasonUnsupportedProtocol, ReasonBadRateOrExpiry, ReasonOther:
		return true
	default:
		return false
	}
}

// Decline is the responder's rejection of a Request (spec.md §3).
type Decline struct {
	SwapID ID
	Reason DeclineReason
}

// Validate enforces the invariants spec.md §8 lists as testable
// property 1, plus a supported hash function. Asset/ledger support
// (the UnsupportedSwap decision) is checked by UnsupportedCombination,
// not here.
func (r Request) Validate() error {
	if !r.AlphaExpiry.After(r.BetaExpiry.Add(MinExpiryMargin)) {
		return fmt.Errorf("swap: alpha_expiry %s does not exceed beta_expiry %s by the safe margin %s",
			r.AlphaExpiry, r.BetaExpiry, MinExpiryMargin)
	}
	if !r.HashFunction.Supported() {
		return fmt.Errorf("swap: unsupported hash function %q", r.HashFunction)
	}
	return nil
}

// UnsupportedCombination reports whether this request's ledger/asset
// pairing is one cnd can drive at all — independent of expiry/identity
// validity. Boundary scenario S4 (spec.md §8) is the canonical case:
// alpha=erc20, beta=erc20 is unsupported regardless of how well-formed
// the rest of the request is.
func (r Request) UnsupportedCombination() bool {
	if !r.AlphaLedger.Supported() || !r.BetaLedger.Supported() {
		return true
	}
	if !r.AlphaAsset.Supported() || !r.BetaAsset.Supported() {
		return true
	}
	if !ledgerAssetCompatible(r.AlphaLedger, r.AlphaAsset) || !ledgerAssetCompatible(r.BetaLedger, r.BetaAsset) {
		return true
	}
	// erc20-for-erc20 is the specific combination spec.md §8 S4 calls
	// out as currently unsupported.
	if r.AlphaAsset.Class == AssetErc20 && r.BetaAsset.Class == AssetErc20 {
		return true
	}
	return false
}

func ledgerAssetCompatible(l Ledger, a Asset) bool {
	switch l.Class {
	case LedgerBitcoin:
		return a.Class == AssetBitcoin
	case LedgerEthereum:
		return a.Class == AssetEther || a.Class == AssetErc20
	default:
		return false
	}
}
