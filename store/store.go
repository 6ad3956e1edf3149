// Package store implements the in-memory "reentrant state store" of
// Design Notes §9 (spec.md §5 "Shared mutable state" (a)): a mapping
// from swap_id to swap state, guarded by a reader-writer policy — many
// readers, a single writer per key at a time. The single-writer
// discipline is already provided by statemachine.Driver (one consumer
// goroutine per swap); this package is the swap_id-keyed index over a
// set of Drivers, one per live swap.
package store

import (
	"fmt"
	"sync"

	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/swap"
)

// Store indexes every live swap's Driver by swap_id. sync.Map is
// chosen over a mutex-guarded map because lookups (action derivation,
// HTTP reads) vastly outnumber inserts/deletes, which is exactly
// sync.Map's documented sweet spot.
type Store struct {
	swaps sync.Map // swap.ID -> *statemachine.Driver
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Register installs driver under id. It is an error to register a
// second Driver for an id that is already registered — callers must
// Remove the old one first (see executor.Spawn's same-key-supersedes
// behavior for the analogous task-level rule).
func (s *Store) Register(id swap.ID, driver *statemachine.Driver) error {
	if _, loaded := s.swaps.LoadOrStore(id, driver); loaded {
		return fmt.Errorf("store: swap %s is already registered", id)
	}
	return nil
}

// Driver returns the registered Driver for id, if any.
func (s *Store) Driver(id swap.ID) (*statemachine.Driver, bool) {
	v, ok := s.swaps.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*statemachine.Driver), true
}

// Snapshot returns a read-only copy of id's current state. Safe to
// call concurrently with any number of other Snapshot calls and with
// the swap's own Driver processing events — callers never see the
// live mutable swap.State.
func (s *Store) Snapshot(id swap.ID) (swap.State, bool) {
	driver, ok := s.Driver(id)
	if !ok {
		return swap.State{}, false
	}
	return driver.Snapshot(), true
}

// List returns a snapshot of every currently registered swap, for any
// caller that needs the whole set rather than one id at a time.
func (s *Store) List() []swap.State {
	var out []swap.State
	s.swaps.Range(func(_, v interface{}) bool {
		out = append(out, v.(*statemachine.Driver).Snapshot())
		return true
	})
	return out
}

// Remove stops id's Driver and drops it from the index. Called once a
// swap reaches a terminal state and has been durably marked completed
// (db.Store.MarkCompleted) — watchers and the negotiation task for it
// have already been cancelled by then (executor.Cancel).
func (s *Store) Remove(id swap.ID) {
	v, ok := s.swaps.LoadAndDelete(id)
	if !ok {
		return
	}
	v.(*statemachine.Driver).Close()
}
