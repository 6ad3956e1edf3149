package swap

import "fmt"

// LedgerPhase is the closed set of phases a single ledger side of a
// swap moves through (spec.md §3 LedgerState(L)).
type LedgerPhase int

const (
	NotDeployed LedgerPhase = iota
	Deployed
	Funded
	Redeemed
	Refunded
	IncorrectlyFunded
)

func (p LedgerPhase) String() string {
	switch p {
	case NotDeployed:
		return "not_deployed"
	case Deployed:
		return "deployed"
	case Funded:
		return "funded"
	case Redeemed:
		return "redeemed"
	case Refunded:
		return "refunded"
	case IncorrectlyFunded:
		return "incorrectly_funded"
	default:
		return "unknown"
	}
}

// Terminal reports whether this phase is one of the terminal values
// spec.md §3 names: Redeemed, Refunded, or IncorrectlyFunded (the
// latter only terminal in the sense that no further automatic
// transition is offered — see LedgerState.ManualRefundDerivable).
func (p LedgerPhase) Terminal() bool {
	switch p {
	case Redeemed, Refunded, IncorrectlyFunded:
		return true
	default:
		return false
	}
}

// HTLCLocation is the ledger-native coordinate at which an HTLC sits:
// a UTXO for Bitcoin, an address for Ethereum.
type HTLCLocation struct {
	Ledger LedgerClass

	// Set when Ledger == LedgerBitcoin.
	TxHash string
	Vout   uint32

	// Set when Ledger == LedgerEthereum.
	Address [20]byte
}

func (l HTLCLocation) String() string {
	switch l.Ledger {
	case LedgerBitcoin:
		return fmt.Sprintf("%s:%d", l.TxHash, l.Vout)
	case LedgerEthereum:
		return fmt.Sprintf("0x%x", l.Address)
	default:
		return ""
	}
}

// LedgerState is the full state of one side (alpha or beta) of a swap,
// per spec.md §3. Exactly one of the phase-specific fields is
// meaningful at a time, selected by Phase; this mirrors the tagged
// LedgerKind/AssetKind representation rather than a Go interface,
// since the legal transitions between phases are exhaustively known
// and the zero value (NotDeployed) must be a valid starting state.
type LedgerState struct {
	Phase LedgerPhase

	Location HTLCLocation // valid from Deployed onward

	RedeemTxHash string // valid at Redeemed
	Secret       Secret // valid at Redeemed

	RefundTxHash string // valid at Refunded

	// manualRefundPastExpiry records whether the expiry for this side
	// has elapsed while stuck in IncorrectlyFunded; it parameterizes
	// the open question of whether a manual refund action should be
	// derivable (SPEC_FULL.md §9), rather than hard-coding an answer.
	manualRefundPastExpiry bool
}

// ManualRefundDerivable reports whether actions.Derive should offer a
// manual refund for an IncorrectlyFunded ledger state. cnd never
// refunds incorrect funding automatically (the source it's modeled on
// only observes it), but once the expiry has passed there is no
// remaining reason to withhold the option from the user.
func (s LedgerState) ManualRefundDerivable() bool {
	return s.Phase == IncorrectlyFunded && s.manualRefundPastExpiry
}

// MarkExpiryElapsed records that the relevant ledger's expiry has
// passed; called by the state machine once per expiry observation.
func (s *LedgerState) MarkExpiryElapsed() {
	if s.Phase == IncorrectlyFunded {
		s.manualRefundPastExpiry = true
	}
}

// Deploy transitions NotDeployed -> Deployed. It is an error to deploy
// twice; ledger state is strictly monotonic (spec.md §8 invariant 2).
func (s *LedgerState) Deploy(loc HTLCLocation) error {
	if s.Phase != NotDeployed {
		return fmt.Errorf("swap: cannot deploy from phase %s", s.Phase)
	}
	s.Phase = Deployed
	s.Location = loc
	return nil
}

// Fund transitions Deployed -> Funded, or Deployed -> IncorrectlyFunded
// when correct reports false (the on-chain value did not match the
// committed asset quantity, spec.md §4.3).
func (s *LedgerState) Fund(correct bool) error {
	if s.Phase != Deployed {
		return fmt.Errorf("swap: cannot fund from phase %s", s.Phase)
	}
	if correct {
		s.Phase = Funded
	} else {
		s.Phase = IncorrectlyFunded
	}
	return nil
}

// Redeem transitions Funded -> Redeemed, extracting the secret
// observed in the redeem transaction.
func (s *LedgerState) Redeem(txHash string, secret Secret) error {
	if s.Phase != Funded {
		return fmt.Errorf("swap: cannot redeem from phase %s", s.Phase)
	}
	s.Phase = Redeemed
	s.RedeemTxHash = txHash
	s.Secret = secret
	return nil
}

// Refund transitions Funded -> Refunded. Whether the corresponding
// expiry has passed is not checked here, nor by the state machine; the
// watcher only reports a refund it observed at or after expiry.
func (s *LedgerState) Refund(txHash string) error {
	if s.Phase != Funded {
		return fmt.Errorf("swap: cannot refund from phase %s", s.Phase)
	}
	s.Phase = Refunded
	s.RefundTxHash = txHash
	return nil
}
