package statemachine

import (
	"context"
	"sync"

	"github.com/comit-network/cnd/swap"
)

// eventQueueSize bounds how far a watcher can run ahead of the
// consumer goroutine before Submit starts applying backpressure.
const eventQueueSize = 64

// OnTransition is invoked by the driver goroutine after every applied
// event, letting callers react (subscribe new TransactionPatterns on
// Accept, persist terminal states, update the store) without Apply
// itself doing any I/O.
type OnTransition func(before, after swap.State, ev Event)

// Driver owns one swap's state and serializes every event for it
// through a single consumer goroutine, per Design Notes §9 ("Reentrant
// state store": message-pass to a per-swap task rather than locking
// the whole map). Snapshot is safe to call concurrently with Submit;
// callers never see the live mutable state.
type Driver struct {
	events chan Event
	done   chan struct{}

	mu    sync.RWMutex
	state swap.State

	onTransition OnTransition
}

// NewDriver starts the consumer goroutine seeded with initial, the
// state installed by Propose (spec.md §4.3).
func NewDriver(initial swap.State, onTransition OnTransition) *Driver {
	d := &Driver{
		events:       make(chan Event, eventQueueSize),
		done:         make(chan struct{}),
		state:        initial,
		onTransition: onTransition,
	}
	go d.run()
	return d
}

func (d *Driver) run() {
	defer close(d.done)
	for ev := range d.events {
		d.mu.Lock()
		before := d.state
		d.state = Apply(d.state, ev)
		after := d.state
		d.mu.Unlock()

		if d.onTransition != nil {
			d.onTransition(before, after, ev)
		}
	}
}

// Submit enqueues ev for processing, blocking only while the queue is
// full or ctx is cancelled first.
func (d *Driver) Submit(ctx context.Context, ev Event) error {
	select {
	case d.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (d *Driver) Snapshot() swap.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Close stops accepting events and waits for the consumer goroutine to
// drain its queue and exit. Submit must not be called after Close.
func (d *Driver) Close() {
	close(d.events)
	<-d.done
}

// Propose installs the initial state an initiator enters when sending
// a Request (spec.md §4.3: "installs state (Proposed, NotDeployed,
// NotDeployed)").
func Propose(req swap.Request) swap.State {
	return swap.State{
		SwapID:        req.SwapID,
		Role:          swap.Initiator,
		Request:       req,
		Communication: swap.Communication{Phase: swap.Proposed},
	}
}

// Receive installs the initial state a responder enters on an inbound
// Request it has already decided to accept or decline; the decision
// itself is recorded via the first ReceiveAccept/ReceiveDecline event
// submitted to the resulting Driver.
func Receive(req swap.Request) swap.State {
	return swap.State{
		SwapID:        req.SwapID,
		Role:          swap.Responder,
		Request:       req,
		Communication: swap.Communication{Phase: swap.Proposed},
	}
}
