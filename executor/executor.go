// Package executor schedules the node's long-lived background tasks
// (one watch.Engine per ledger side, one negotiation session per swap
// in flight) under a single scheduling model — goroutines plus
// context.Context — resolving Design Note "Watcher futures returning
// futures" (spec.md §9).
package executor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor runs named tasks to completion and supports cancelling any
// one of them without affecting the others (spec.md §4.6 "Executor").
// Each task gets its own context derived from the Executor's parent,
// not from the errgroup.Group's own context, which is what keeps one
// task's failure from tearing down every other task: errgroup.Group's
// context-cancel-on-first-error behavior is deliberately not used here.
type Executor struct {
	parent context.Context

	mu    sync.Mutex
	group errgroup.Group
	tasks map[string]*taskHandle
}

// taskHandle exists so forget can tell whether the key it's cleaning
// up still refers to its own task, rather than one that superseded it
// — cancel funcs aren't comparable, but pointers to this struct are.
type taskHandle struct {
	cancel context.CancelFunc
}

// New returns an Executor whose tasks are all descendants of parent;
// cancelling parent stops every task currently running.
func New(parent context.Context) *Executor {
	return &Executor{parent: parent, tasks: make(map[string]*taskHandle)}
}

// Spawn starts fn under key. A second Spawn under the same key cancels
// the first task before starting the second — the executor re-starting
// a swap's negotiation task after a restart doesn't need to special-case
// "is one already running."
func (e *Executor) Spawn(key string, fn func(ctx context.Context) error) {
	taskCtx, cancel := context.WithCancel(e.parent)
	handle := &taskHandle{cancel: cancel}

	e.mu.Lock()
	if prior, ok := e.tasks[key]; ok {
		prior.cancel()
	}
	e.tasks[key] = handle
	e.mu.Unlock()

	e.group.Go(func() error {
		defer e.forget(key, handle)
		if err := fn(taskCtx); err != nil {
			return fmt.Errorf("executor: task %s: %w", key, err)
		}
		return nil
	})
}

// Cancel stops the task registered under key, if any. A task that has
// already finished is a no-op.
func (e *Executor) Cancel(key string) {
	e.mu.Lock()
	handle, ok := e.tasks[key]
	delete(e.tasks, key)
	e.mu.Unlock()
	if ok {
		handle.cancel()
	}
}

// Running reports whether a task is currently registered under key.
func (e *Executor) Running(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tasks[key]
	return ok
}

// Wait blocks until every spawned task has returned, and reports the
// first error any of them returned. Spawning more tasks concurrently
// with Wait is fine; Wait only returns once the group has drained.
func (e *Executor) Wait() error {
	return e.group.Wait()
}

func (e *Executor) forget(key string, handle *taskHandle) {
	e.mu.Lock()
	if current, ok := e.tasks[key]; ok && current == handle {
		delete(e.tasks, key)
	}
	e.mu.Unlock()
}
