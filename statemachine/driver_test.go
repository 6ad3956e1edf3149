package statemachine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/comit-network/cnd/swap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_SerializesEventsToFinalSnapshot(t *testing.T) {
	req, secret := requestWithSecret(t)

	var transitions int
	d := NewDriver(Propose(req), func(before, after swap.State, ev Event) {
		transitions++
	})
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, d.Submit(ctx, ReceiveAccept{SwapID: req.SwapID, Accept: swap.Accept{SwapID: req.SwapID}}))
	require.NoError(t, d.Submit(ctx, AlphaDeployed{SwapID: req.SwapID}))
	require.NoError(t, d.Submit(ctx, AlphaFunded{SwapID: req.SwapID, CorrectValue: true}))
	require.NoError(t, d.Submit(ctx, AlphaRedeemed{SwapID: req.SwapID, TxHash: "tx1", Secret: secret}))

	require.Eventually(t, func() bool {
		return d.Snapshot().Alpha.Phase == swap.Redeemed
	}, time.Second, time.Millisecond)

	assert.Equal(t, 4, transitions)
}

func TestDriver_SubmitRespectsContextCancellation(t *testing.T) {
	req, _ := requestWithSecret(t)
	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	d := NewDriver(Propose(req), func(before, after swap.State, ev Event) {
		once.Do(func() {
			close(blocked)
			<-release
		})
	})
	defer func() {
		close(release)
		d.Close()
	}()

	require.NoError(t, d.Submit(context.Background(), ExpiryElapsed{SwapID: req.SwapID, Side: SideAlpha}))
	<-blocked // the consumer is now stuck inside onTransition; the queue won't drain further

	for i := 0; i < eventQueueSize; i++ {
		require.NoError(t, d.Submit(context.Background(), ExpiryElapsed{SwapID: req.SwapID, Side: SideAlpha}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Submit(ctx, ExpiryElapsed{SwapID: req.SwapID, Side: SideAlpha})
	assert.ErrorIs(t, err, context.Canceled)
}
