package httpapi

import (
	"testing"
	"time"

	"github.com/comit-network/cnd/actions"
	"github.com/comit-network/cnd/network"
	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wellFormedRequest(t *testing.T) swap.Request {
	t.Helper()
	secret, err := swap.NewSecret()
	require.NoError(t, err)
	secretHash, err := secret.Hash(swap.Sha256)
	require.NoError(t, err)
	return swap.Request{
		SwapID:                    swap.NewID(),
		AlphaLedger:               swap.EthereumLedger(1),
		BetaLedger:                swap.EthereumLedger(1337),
		AlphaAsset:                swap.EtherAsset(uint256.NewInt(1)),
		BetaAsset:                 swap.Erc20Asset(common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), uint256.NewInt(1)),
		HashFunction:              swap.Sha256,
		AlphaExpiry:               time.Now().UTC().Add(3 * time.Hour),
		BetaExpiry:                time.Now().UTC().Add(1 * time.Hour),
		SecretHash:                secretHash,
		AlphaLedgerRefundIdentity: swap.EthereumIdentity(common.HexToAddress("0x1111111111111111111111111111111111111111")),
		BetaLedgerRedeemIdentity:  swap.EthereumIdentity(common.HexToAddress("0x2222222222222222222222222222222222222222")),
	}
}

func TestBuildSwapEntity_ResponderProposedOffersAcceptAndDecline(t *testing.T) {
	req := wellFormedRequest(t)
	state := statemachine.Receive(req)
	legal := actions.Derive(state, actions.Options{Now: time.Now()})

	entity := BuildSwapEntity(state, network.PeerID{0xaa}, legal, false)

	names := map[string]bool{}
	for _, a := range entity.Actions {
		names[a.Name] = true
	}
	assert.True(t, names["accept"])
	assert.True(t, names["decline"])
	assert.Contains(t, entity.Class, "swap")
}

func TestBuildSwapEntity_HasSelfAndHumanProtocolSpecLinks(t *testing.T) {
	req := wellFormedRequest(t)
	state := statemachine.Propose(req)

	entity := BuildSwapEntity(state, network.PeerID{}, nil, false)

	var rels []string
	for _, l := range entity.Links {
		rels = append(rels, l.Rel[0])
	}
	assert.Contains(t, rels, "self")
	assert.Contains(t, rels, "human-protocol-spec")
}

func TestBuildSwapEntity_IncludeStateAddsStateMember(t *testing.T) {
	req := wellFormedRequest(t)
	state := statemachine.Propose(req)

	without := BuildSwapEntity(state, network.PeerID{}, nil, false)
	with := BuildSwapEntity(state, network.PeerID{}, nil, true)

	assert.Nil(t, without.Properties.(swapProperties).State)
	require.NotNil(t, with.Properties.(swapProperties).State)
	assert.Equal(t, "proposed", with.Properties.(swapProperties).State.Communication)
}
