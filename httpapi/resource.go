package httpapi

import (
	"fmt"

	"github.com/comit-network/cnd/actions"
	"github.com/comit-network/cnd/network"
	"github.com/comit-network/cnd/swap"
)

// swapPath returns the canonical path of one swap, reused for both
// the Location header on creation and the self link on every GET.
func swapPath(id swap.ID) string {
	return "/swaps/rfc003/" + id.String()
}

func actionPath(id swap.ID, kind actions.Kind) string {
	return fmt.Sprintf("%s/%s", swapPath(id), kind)
}

type swapProperties struct {
	ID           swap.ID          `json:"id"`
	Role         string           `json:"role"`
	Counterparty string           `json:"counterparty"`
	Protocol     string           `json:"protocol"`
	Status       swap.Status      `json:"status"`
	Parameters   swapParameters   `json:"parameters"`
	State        *swapStateFields `json:"state,omitempty"`
}

type swapParameters struct {
	AlphaLedger swap.Ledger `json:"alpha_ledger"`
	BetaLedger  swap.Ledger `json:"beta_ledger"`
	AlphaAsset  swap.Asset  `json:"alpha_asset"`
	BetaAsset   swap.Asset  `json:"beta_asset"`
}

// swapStateFields is the optional "state" member (`?include_state=true`
// per swap_resource.rs's IncludeState switch): the raw ledger/
// communication phases, for callers that want more than the derived
// status.
type swapStateFields struct {
	Communication string `json:"communication"`
	AlphaLedger   string `json:"alpha_ledger"`
	BetaLedger    string `json:"beta_ledger"`
}

// BuildSwapEntity renders s as the Siren entity spec.md §6 describes.
// peer is the counterparty's network.PeerID; legal is the output of
// actions.Derive for s. includeState mirrors the Rust implementation's
// IncludeState switch.
func BuildSwapEntity(s swap.State, peer network.PeerID, legal []actions.Action, includeState bool) Entity {
	props := swapProperties{
		ID:           s.SwapID,
		Role:         s.Role.String(),
		Counterparty: peer.String(),
		Protocol:     "rfc003",
		Status:       s.DerivedStatus(),
		Parameters: swapParameters{
			AlphaLedger: s.Request.AlphaLedger,
			BetaLedger:  s.Request.BetaLedger,
			AlphaAsset:  s.Request.AlphaAsset,
			BetaAsset:   s.Request.BetaAsset,
		},
	}
	if includeState {
		props.State = &swapStateFields{
			Communication: s.Communication.Phase.String(),
			AlphaLedger:   s.Alpha.Phase.String(),
			BetaLedger:    s.Beta.Phase.String(),
		}
	}

	entity := Entity{
		Class:      []string{"swap"},
		Properties: props,
		Links:      []Link{selfLink(swapPath(s.SwapID)), humanProtocolSpecLink()},
	}
	for _, a := range legal {
		entity.Actions = append(entity.Actions, sirenAction(s.SwapID, a))
	}
	return entity
}

// sirenAction renders one derived action as a Siren action link. accept
// and decline are POSTs with no fields; fund/redeem/refund are GETs,
// and the Bitcoin-side ones accept address/fee_per_wu query parameters
// (action.rs's ListRequiredFields for SendToAddress/SpendOutput).
func sirenAction(id swap.ID, a actions.Action) Action {
	switch a.Kind {
	case actions.KindAccept:
		return Action{Name: "accept", Method: "POST", Href: swapPath(id) + "/accept"}
	case actions.KindDecline:
		return Action{Name: "decline", Method: "POST", Href: swapPath(id) + "/decline"}
	default:
		act := Action{
			Name:   string(a.Kind),
			Class:  []string{string(a.Side)},
			Method: "GET",
			Href:   actionPath(id, a.Kind),
		}
		if a.Kind == actions.KindFund || a.Kind == actions.KindRedeem || a.Kind == actions.KindRefund {
			if a.Side == actions.SideAlpha || a.Side == actions.SideBeta {
				act.Fields = bitcoinActionFields(a.Kind)
			}
		}
		return act
	}
}

// bitcoinActionFields returns the query fields a Bitcoin-side action
// may need; for Ethereum-side actions these are simply unused by the
// caller, matching the Rust ListRequiredFields impl being specific to
// the Bitcoin SendToAddress/SpendOutput payload builders.
func bitcoinActionFields(kind actions.Kind) []Field {
	switch kind {
	case actions.KindFund:
		return nil
	case actions.KindRedeem, actions.KindRefund:
		return []Field{
			{Name: "address", Class: []string{"bitcoin", "address"}},
			{Name: "fee_per_wu", Class: []string{"bitcoin", "feerate", "per-byte"}},
		}
	default:
		return nil
	}
}
