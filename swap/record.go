package swap

import "time"

// CommunicationPhase is the closed set of phases the negotiation
// itself moves through (spec.md §3 SwapCommunicationState).
type CommunicationPhase int

const (
	Proposed CommunicationPhase = iota
	Accepted
	Declined
)

func (p CommunicationPhase) String() string {
	switch p {
	case Proposed:
		return "proposed"
	case Accepted:
		return "accepted"
	case Declined:
		return "declined"
	default:
		return "unknown"
	}
}

// Communication holds the current SwapCommunicationState: Proposed,
// Accepted(Accept), or Declined(Decline).
type Communication struct {
	Phase   CommunicationPhase
	Accept  *Accept
	Decline *Decline
}

// Record is the persisted SwapRecord of spec.md §3. It is immutable
// after acceptance/decline; ledger events are never stored here — they
// are recovered by replaying the ledger watcher from CreatedAt.
type Record struct {
	SwapID           ID
	Role             Role
	CounterpartyPeer [32]byte
	Request          Request
	Accept           *Accept
	Decline          *Decline
	CreatedAt        time.Time
}

// Decision reports the persisted decision, if any has been recorded.
func (r Record) Decision() CommunicationPhase {
	switch {
	case r.Accept != nil:
		return Accepted
	case r.Decline != nil:
		return Declined
	default:
		return Proposed
	}
}
