package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// TestExecutor_CancelIsPerTask locks in the Executor requirement of
// spec.md §4.6: cancelling one task must not affect any other.
func TestExecutor_CancelIsPerTask(t *testing.T) {
	exec := New(context.Background())

	exec.Spawn("a", blockUntilCancelled)
	exec.Spawn("b", blockUntilCancelled)
	require.True(t, exec.Running("a"))
	require.True(t, exec.Running("b"))

	exec.Cancel("a")

	require.Eventually(t, func() bool { return !exec.Running("a") }, time.Second, time.Millisecond)
	assert.True(t, exec.Running("b"))

	exec.Cancel("b")
	require.NoError(t, exec.Wait())
}

// TestExecutor_RespawningUnderSameKeySupersedesPriorTask covers the
// restart case: negotiating a swap again after a crash spawns a new
// task under the swap's id without first checking whether a stale one
// is still registered.
func TestExecutor_RespawningUnderSameKeySupersedesPriorTask(t *testing.T) {
	exec := New(context.Background())

	firstCancelled := make(chan struct{})
	exec.Spawn("swap-1", func(ctx context.Context) error {
		<-ctx.Done()
		close(firstCancelled)
		return nil
	})

	exec.Spawn("swap-1", blockUntilCancelled)

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("respawning under the same key did not cancel the prior task")
	}
	assert.True(t, exec.Running("swap-1"))

	exec.Cancel("swap-1")
	require.NoError(t, exec.Wait())
}

// TestExecutor_WaitReturnsFirstTaskError confirms a failing task's
// error surfaces from Wait without the executor panicking or
// swallowing it.
func TestExecutor_WaitReturnsFirstTaskError(t *testing.T) {
	exec := New(context.Background())
	boom := errors.New("boom")

	exec.Spawn("failing", func(ctx context.Context) error { return boom })

	err := exec.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

// TestExecutor_ParentCancellationStopsEveryTask confirms that, unlike
// a single task's own Cancel, cancelling the Executor's parent context
// does bring everything down together — the "node shutdown" case.
func TestExecutor_ParentCancellationStopsEveryTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := New(ctx)

	exec.Spawn("a", blockUntilCancelled)
	exec.Spawn("b", blockUntilCancelled)

	cancel()

	require.NoError(t, exec.Wait())
	assert.False(t, exec.Running("a"))
	assert.False(t, exec.Running("b"))
}
