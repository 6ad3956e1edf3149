package httpapi

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/comit-network/cnd/actions"
	"github.com/comit-network/cnd/htlc"
	"github.com/comit-network/cnd/swap"
)

const (
	deployGasLimit = 120_000
	callGasLimit   = 100_000

	// defaultFeePerWU applies when the caller omits ?fee_per_wu=.
	defaultFeePerWU = 10
)

// buildActionPayload renders a's wire-level payload. Fund payloads
// carry the HTLC's own coordinates (the deterministic P2WSH address on
// Bitcoin; amount and chain parameters on Ethereum — the contract
// bytecode itself comes from the user's wallet, spec.md §1). Redeem
// and Refund payloads are fully executable: a signed spend on Bitcoin,
// a call against the observed HTLC contract on Ethereum.
func (s *Server) buildActionPayload(st swap.State, a actions.Action, query url.Values) (actions.Payload, error) {
	params, ledgerState, err := sideOf(st, a.Side)
	if err != nil {
		return nil, err
	}

	switch a.Kind {
	case actions.KindFund:
		return fundPayload(st, params)
	case actions.KindRedeem, actions.KindRefund:
		return s.spendPayload(st, a, params, ledgerState, query)
	default:
		return nil, fmt.Errorf("httpapi: %s has no action payload", a.Kind)
	}
}

// sideOf picks out the HTLC parameters and current ledger state for
// the side (alpha or beta) an action applies to.
func sideOf(st swap.State, side actions.Side) (swap.HTLCParams, swap.LedgerState, error) {
	if side == actions.SideAlpha {
		p, err := st.AlphaHTLC()
		return p, st.Alpha, err
	}
	p, err := st.BetaHTLC()
	return p, st.Beta, err
}

func fundPayload(st swap.State, p swap.HTLCParams) (actions.Payload, error) {
	switch p.Ledger.Class {
	case swap.LedgerBitcoin:
		// Funding means paying the HTLC's deterministic P2WSH address,
		// the same address the watcher derives its appearance pattern
		// from — not any party's own identity.
		addr, err := htlc.BitcoinAddress(st.Request.SecretHash, p.Redeem, p.Refund, p.Expiry, p.Ledger.BitcoinNetwork)
		if err != nil {
			return nil, err
		}
		return actions.BitcoinSendAmountToAddress{
			To:      addr.EncodeAddress(),
			Amount:  fmt.Sprintf("%d", p.Asset.Satoshis),
			Network: p.Ledger.BitcoinNetwork,
		}, nil
	case swap.LedgerEthereum:
		// amount is a bare decimal wei string. An ERC-20 HTLC deploys
		// with no ether attached; its funding is the token transfer
		// that follows.
		amount := "0"
		if p.Asset.Class == swap.AssetEther && p.Asset.Quantity != nil {
			amount = p.Asset.Quantity.Dec()
		}
		return actions.EthereumDeployContract{
			Amount:   amount,
			GasLimit: deployGasLimit,
			ChainID:  p.Ledger.ChainID,
			Network:  "ethereum",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported ledger %s", p.Ledger)
	}
}

func (s *Server) spendPayload(st swap.State, a actions.Action, p swap.HTLCParams, ls swap.LedgerState, query url.Values) (actions.Payload, error) {
	switch p.Ledger.Class {
	case swap.LedgerBitcoin:
		return s.bitcoinSpendPayload(st, a, p, ls, query)
	case swap.LedgerEthereum:
		if ls.Location.Address == ([20]byte{}) {
			return nil, fmt.Errorf("httpapi: %s HTLC contract not yet observed on chain", a.Side)
		}
		call := actions.EthereumCallContract{
			ContractAddress: ls.Location.Address,
			GasLimit:        callGasLimit,
			ChainID:         p.Ledger.ChainID,
			Network:         "ethereum",
		}
		if a.Kind == actions.KindRedeem {
			if a.Secret == nil {
				return nil, fmt.Errorf("httpapi: redeem secret not known yet")
			}
			// The redeem call's data is the bare 32-byte preimage.
			call.Data = a.Secret[:]
		} else {
			minTimestamp := p.Expiry.Unix()
			call.MinBlockTimestamp = &minTimestamp
		}
		return call, nil
	default:
		return nil, fmt.Errorf("unsupported ledger %s", p.Ledger)
	}
}

// bitcoinSpendPayload builds and signs the transaction spending the
// HTLC output, using the key material the SecretSource derived for
// this swap (spec.md §4.6). The optional ?address= overrides the
// destination (defaulting to the spender's own identity address) and
// ?fee_per_wu= the fee rate.
func (s *Server) bitcoinSpendPayload(st swap.State, a actions.Action, p swap.HTLCParams, ls swap.LedgerState, query url.Values) (actions.Payload, error) {
	if ls.Location.TxHash == "" {
		return nil, fmt.Errorf("httpapi: %s HTLC funding output not yet observed on chain", a.Side)
	}

	identity := p.Redeem
	key, err := s.deps.Secrets.RedeemKey(st.SwapID)
	if a.Kind == actions.KindRefund {
		identity = p.Refund
		key, err = s.deps.Secrets.RefundKey(st.SwapID)
	}
	if err != nil {
		return nil, err
	}
	if identity.Bitcoin == nil {
		return nil, fmt.Errorf("httpapi: %s side carries no bitcoin identity", a.Side)
	}
	// The swap's identity may have been supplied by an external wallet
	// rather than derived from this node's seed; then the wallet holds
	// the only key that can sign.
	derivedHash := btcutil.Hash160(key.PubKey().SerializeCompressed())
	if !bytes.Equal(derivedHash, identity.Bitcoin.ScriptAddress()) {
		return nil, fmt.Errorf("httpapi: %s identity %s was not derived from this node's seed; its wallet must sign the spend",
			a.Kind, identity.Bitcoin.EncodeAddress())
	}

	destination := identity.Bitcoin
	if addr := query.Get("address"); addr != "" {
		decoded, err := swap.BitcoinIdentityFromString(addr, p.Ledger.BitcoinNetwork)
		if err != nil {
			return nil, err
		}
		destination = decoded.Bitcoin
	}
	feePerWU := int64(defaultFeePerWU)
	if raw := query.Get("fee_per_wu"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("httpapi: invalid fee_per_wu %q", raw)
		}
		feePerWU = parsed
	}

	spend := htlc.BitcoinSpend{
		SecretHash:    st.Request.SecretHash,
		Redeem:        p.Redeem,
		Refund:        p.Refund,
		Expiry:        p.Expiry,
		FundingTxHash: ls.Location.TxHash,
		FundingVout:   ls.Location.Vout,
		FundingValue:  int64(p.Asset.Satoshis),
		To:            destination,
		FeePerWU:      feePerWU,
	}

	payload := actions.BitcoinBroadcastSignedTransaction{Network: p.Ledger.BitcoinNetwork}
	if a.Kind == actions.KindRedeem {
		if a.Secret == nil {
			return nil, fmt.Errorf("httpapi: redeem secret not known yet")
		}
		payload.Hex, err = spend.RedeemTx(key, *a.Secret)
	} else {
		minMedianBlockTime := p.Expiry.Unix()
		payload.MinMedianBlockTime = &minMedianBlockTime
		payload.Hex, err = spend.RefundTx(key)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}
