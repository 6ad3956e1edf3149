package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/comit-network/cnd/swap"
)

// RequestHeaders are the fixed header set a SWAP request carries,
// spec.md §4.4:
//
//	id: <swap_id>
//	alpha_ledger: <ledger-header>
//	beta_ledger:  <ledger-header>
//	alpha_asset:  <asset-header>
//	beta_asset:   <asset-header>
//	protocol:     comit-rfc-003; hash_function=SHA-256
type RequestHeaders struct {
	ID          swap.ID
	AlphaLedger Header
	BetaLedger  Header
	AlphaAsset  Header
	BetaAsset   Header
	Protocol    Header
}

// RequestBody is the JSON body of a SWAP request, spec.md §4.4.
type RequestBody struct {
	AlphaLedgerRefundIdentity string          `json:"alpha_ledger_refund_identity"`
	BetaLedgerRedeemIdentity  string          `json:"beta_ledger_redeem_identity"`
	AlphaExpiry               int64           `json:"alpha_expiry"`
	BetaExpiry                int64           `json:"beta_expiry"`
	SecretHash                swap.SecretHash `json:"secret_hash"`
}

// EncodeRequest renders a Request into its wire headers and JSON body.
func EncodeRequest(r swap.Request) (RequestHeaders, []byte, error) {
	headers := RequestHeaders{
		ID:          r.SwapID,
		AlphaLedger: EncodeLedgerHeader(r.AlphaLedger),
		BetaLedger:  EncodeLedgerHeader(r.BetaLedger),
		AlphaAsset:  EncodeAssetHeader(r.AlphaAsset),
		BetaAsset:   EncodeAssetHeader(r.BetaAsset),
		Protocol:    EncodeProtocolHeader(r.HashFunction),
	}
	body := RequestBody{
		AlphaLedgerRefundIdentity: r.AlphaLedgerRefundIdentity.String(),
		BetaLedgerRedeemIdentity:  r.BetaLedgerRedeemIdentity.String(),
		AlphaExpiry:               r.AlphaExpiry.Unix(),
		BetaExpiry:                r.BetaExpiry.Unix(),
		SecretHash:                r.SecretHash,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return RequestHeaders{}, nil, fmt.Errorf("wire: encoding request body: %w", err)
	}
	return headers, data, nil
}

// DecodeRequestBody parses the JSON body; identities are returned as
// raw strings since decoding them into swap.Identity requires knowing
// the ledger (for Bitcoin, the network) already carried in the
// headers — callers combine the two.
func DecodeRequestBody(data []byte) (RequestBody, error) {
	var body RequestBody
	if err := json.Unmarshal(data, &body); err != nil {
		return RequestBody{}, fmt.Errorf("wire: decoding request body: %w", err)
	}
	return body, nil
}

// Decision is the closed set of response decisions, spec.md §4.4.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionDeclined Decision = "declined"
)

// DecisionHeader renders `decision: accepted|declined`.
func DecisionHeader(d Decision) Header {
	return NewHeader(string(d), nil)
}

// AcceptBody is the JSON body of an accepted response, spec.md §4.4.
type AcceptBody struct {
	AlphaLedgerRedeemIdentity string `json:"alpha_ledger_redeem_identity"`
	BetaLedgerRefundIdentity  string `json:"beta_ledger_refund_identity"`
}

// DeclineBody is the JSON body of a declined response, spec.md §4.4.
type DeclineBody struct {
	Reason string `json:"reason,omitempty"`
}

// EncodeAccept renders an Accept into its JSON body.
func EncodeAccept(a swap.Accept) ([]byte, error) {
	body := AcceptBody{
		AlphaLedgerRedeemIdentity: a.AlphaLedgerRedeemIdentity.String(),
		BetaLedgerRefundIdentity:  a.BetaLedgerRefundIdentity.String(),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding accept body: %w", err)
	}
	return data, nil
}

// EncodeDecline renders a Decline into its JSON body.
func EncodeDecline(d swap.Decline) ([]byte, error) {
	data, err := json.Marshal(DeclineBody{Reason: string(d.Reason)})
	if err != nil {
		return nil, fmt.Errorf("wire: encoding decline body: %w", err)
	}
	return data, nil
}

// Timestamp is a small helper converting Unix seconds to time.Time in
// the UTC-normalized form every other part of cnd expects.
func Timestamp(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0).UTC()
}
