package swap

// Role distinguishes the party that constructs the Request (Initiator)
// from the party that answers Accept or Decline (Responder).
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}
