package db

import (
	"fmt"
	"time"

	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/common"
)

// row is the flat column shape rfc003_swaps stores; toRow/fromRow
// translate it to and from swap.Record, which is the shape every other
// package works with.
type row struct {
	SwapID              swap.ID
	Role                swap.Role
	CounterpartyPeer    [32]byte
	AlphaLedger         swap.Ledger
	BetaLedger          swap.Ledger
	AlphaAsset          swap.Asset
	BetaAsset           swap.Asset
	AlphaExpiry         time.Time
	BetaExpiry          time.Time
	SecretHash          swap.SecretHash
	AlphaRefundIdentity string
	BetaRedeemIdentity  string
	AlphaRedeemIdentity *string
	BetaRefundIdentity  *string
	Decision            swap.CommunicationPhase
	DeclineReason       *swap.DeclineReason
	CompletedAt         *time.Time
	CreatedAt           time.Time
}

func toRow(rec swap.Record) row {
	r := row{
		SwapID:              rec.SwapID,
		Role:                rec.Role,
		CounterpartyPeer:    rec.CounterpartyPeer,
		AlphaLedger:         rec.Request.AlphaLedger,
		BetaLedger:          rec.Request.BetaLedger,
		AlphaAsset:          rec.Request.AlphaAsset,
		BetaAsset:           rec.Request.BetaAsset,
		AlphaExpiry:         rec.Request.AlphaExpiry,
		BetaExpiry:          rec.Request.BetaExpiry,
		SecretHash:          rec.Request.SecretHash,
		AlphaRefundIdentity: rec.Request.AlphaLedgerRefundIdentity.String(),
		BetaRedeemIdentity:  rec.Request.BetaLedgerRedeemIdentity.String(),
		Decision:            rec.Decision(),
		CreatedAt:           rec.CreatedAt,
	}

	if rec.Accept != nil {
		alphaRedeem := rec.Accept.AlphaLedgerRedeemIdentity.String()
		betaRefund := rec.Accept.BetaLedgerRefundIdentity.String()
		r.AlphaRedeemIdentity = &alphaRedeem
		r.BetaRefundIdentity = &betaRefund
	}
	if rec.Decline != nil {
		reason := rec.Decline.Reason
		r.DeclineReason = &reason
	}
	return r
}

func fromRow(r row) (swap.Record, error) {
	alphaRefund, err := decodeIdentity(r.AlphaLedger, r.AlphaRefundIdentity)
	if err != nil {
		return swap.Record{}, fmt.Errorf("db: alpha_refund_identity: %w", err)
	}
	betaRedeem, err := decodeIdentity(r.BetaLedger, r.BetaRedeemIdentity)
	if err != nil {
		return swap.Record{}, fmt.Errorf("db: beta_redeem_identity: %w", err)
	}

	req := swap.Request{
		SwapID:                    r.SwapID,
		AlphaLedger:               r.AlphaLedger,
		BetaLedger:                r.BetaLedger,
		AlphaAsset:                r.AlphaAsset,
		BetaAsset:                 r.BetaAsset,
		HashFunction:              swap.Sha256,
		AlphaExpiry:               r.AlphaExpiry,
		BetaExpiry:                r.BetaExpiry,
		SecretHash:                r.SecretHash,
		AlphaLedgerRefundIdentity: alphaRefund,
		BetaLedgerRedeemIdentity:  betaRedeem,
	}

	rec := swap.Record{
		SwapID:           r.SwapID,
		Role:             r.Role,
		CounterpartyPeer: r.CounterpartyPeer,
		Request:          req,
		CreatedAt:        r.CreatedAt,
	}

	switch r.Decision {
	case swap.Accepted:
		if r.AlphaRedeemIdentity == nil || r.BetaRefundIdentity == nil {
			return swap.Record{}, fmt.Errorf("db: swap %s marked accepted with no recorded identities", r.SwapID)
		}
		alphaRedeem, err := decodeIdentity(r.AlphaLedger, *r.AlphaRedeemIdentity)
		if err != nil {
			return swap.Record{}, fmt.Errorf("db: alpha_redeem_identity: %w", err)
		}
		betaRefund, err := decodeIdentity(r.BetaLedger, *r.BetaRefundIdentity)
		if err != nil {
			return swap.Record{}, fmt.Errorf("db: beta_refund_identity: %w", err)
		}
		rec.Accept = &swap.Accept{
			SwapID:                    r.SwapID,
			AlphaLedgerRedeemIdentity: alphaRedeem,
			BetaLedgerRefundIdentity:  betaRefund,
		}
	case swap.Declined:
		if r.DeclineReason == nil {
			return swap.Record{}, fmt.Errorf("db: swap %s marked declined with no recorded reason", r.SwapID)
		}
		rec.Decline = &swap.Decline{SwapID: r.SwapID, Reason: *r.DeclineReason}
	}

	return rec, nil
}

// decodeIdentity reconstructs a swap.Identity from its persisted
// address string, using ledger to know which concrete form to decode
// into — the same role the wire protocol's ledger-name discrimination
// plays for Identity's tagged variant (swap.Identity doc comment).
func decodeIdentity(ledger swap.Ledger, address string) (swap.Identity, error) {
	switch ledger.Class {
	case swap.LedgerEthereum:
		if !common.IsHexAddress(address) {
			return swap.Identity{}, fmt.Errorf("invalid ethereum address %q", address)
		}
		return swap.EthereumIdentity(common.HexToAddress(address)), nil
	case swap.LedgerBitcoin:
		return swap.BitcoinIdentityFromString(address, ledger.BitcoinNetwork)
	default:
		return swap.Identity{}, fmt.Errorf("unsupported ledger class %q", ledger.Class)
	}
}
