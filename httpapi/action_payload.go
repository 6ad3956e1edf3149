package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/comit-network/cnd/actions"
)

// encodeActionPayload renders a.Payload in the `{type, payload}` shape
// spec.md §6 and action.rs's `ActionResponseBody` (`tag = "type",
// content = "payload"`) both use, instead of flattening the fields
// alongside "type" the way the default Go tagged-union idiom usually
// would — matching the wire shape exactly, not the more common
// encoding/json convention, since clients (Comit's reference wallet
// tooling) expect the Rust node's literal body.
func encodeActionPayload(p actions.Payload) ([]byte, error) {
	payload, err := payloadBody(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type    string      `json:"type"`
		Payload interface{} `json:"payload"`
	}{Type: p.Type(), Payload: payload})
}

func payloadBody(p actions.Payload) (interface{}, error) {
	switch v := p.(type) {
	case actions.BitcoinSendAmountToAddress:
		return struct {
			To      string `json:"to"`
			Amount  string `json:"amount"`
			Network string `json:"network"`
		}{To: v.To, Amount: v.Amount, Network: string(v.Network)}, nil

	case actions.BitcoinBroadcastSignedTransaction:
		return struct {
			Hex                string `json:"hex"`
			Network            string `json:"network"`
			MinMedianBlockTime *int64 `json:"min_median_block_time,omitempty"`
		}{Hex: v.Hex, Network: string(v.Network), MinMedianBlockTime: v.MinMedianBlockTime}, nil

	case actions.EthereumDeployContract:
		return struct {
			Data     string `json:"data"`
			Amount   string `json:"amount"`
			GasLimit uint64 `json:"gas_limit"`
			ChainID  uint32 `json:"chain_id"`
			Network  string `json:"network"`
		}{
			Data:     "0x" + hex.EncodeToString(v.Data),
			Amount:   v.Amount,
			GasLimit: v.GasLimit,
			ChainID:  v.ChainID,
			Network:  v.Network,
		}, nil

	case actions.EthereumCallContract:
		var data *string
		if v.Data != nil {
			s := "0x" + hex.EncodeToString(v.Data)
			data = &s
		}
		return struct {
			ContractAddress   string  `json:"contract_address"`
			Data              *string `json:"data,omitempty"`
			GasLimit          uint64  `json:"gas_limit"`
			ChainID           uint32  `json:"chain_id"`
			Network           string  `json:"network"`
			MinBlockTimestamp *int64  `json:"min_block_timestamp,omitempty"`
		}{
			ContractAddress:   "0x" + hex.EncodeToString(v.ContractAddress[:]),
			Data:              data,
			GasLimit:          v.GasLimit,
			ChainID:           v.ChainID,
			Network:           v.Network,
			MinBlockTimestamp: v.MinBlockTimestamp,
		}, nil

	default:
		return nil, fmt.Errorf("httpapi: unknown action payload type %T", p)
	}
}
