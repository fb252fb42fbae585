// Package unfolding implements the deduplicating event store and the
// immediate-conflict relation over it.
package unfolding

import (
	"fmt"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
)

// Unfolding owns every event ever built during exploration. Events are
// never freed: all cross-references are non-owning pointers, and a
// Remove only unlinks a leaf event from the store's indices, it does
// not invalidate any pointer held elsewhere.
type Unfolding struct {
	root *event.Event
	all  []*event.Event

	byKey          map[string][]*event.Event
	byThreadPred   map[*event.Event][]*event.Event
	byLockPred     map[*event.Event][]*event.Event
	byNotifyTarget map[*event.Event][]*event.Event

	optionalCreation bool
}

// Option configures a new Unfolding.
type Option func(*Unfolding)

// WithOptionalCreation enables optional-creation semantics: lock and condition variable create events
// become unnecessary scaffolding, and the first acquire/wait on an id
// may have a nil lock/cond predecessor.
func WithOptionalCreation(enabled bool) Option {
	return func(u *Unfolding) { u.optionalCreation = enabled }
}

// New builds an empty Unfolding, seeded with the unique program_init
// root event.
func New(opts ...Option) *Unfolding {
	u := &Unfolding{
		root:           event.NewProgramInit(),
		byKey:          make(map[string][]*event.Event),
		byThreadPred:   make(map[*event.Event][]*event.Event),
		byLockPred:     make(map[*event.Event][]*event.Event),
		byNotifyTarget: make(map[*event.Event][]*event.Event),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.all = append(u.all, u.root)
	u.index(u.root)
	return u
}

// Root returns the unique program_init event.
func (u *Unfolding) Root() *event.Event { return u.root }

// All returns every event currently in the store, in insertion order.
func (u *Unfolding) All() []*event.Event { return u.all }

// Len returns the number of events currently in the store.
func (u *Unfolding) Len() int { return len(u.all) }

// OptionalCreation reports whether this unfolding was built with
// optional-creation semantics.
func (u *Unfolding) OptionalCreation() bool { return u.optionalCreation }

func keyFor(e *event.Event) string {
	return fmt.Sprintf("%s|%d|%s", e.Tid(), e.Depth(), e.Kind())
}

// Deduplicate admits candidate into the unfolding, or returns an
// already-present event with the same (kind, predecessors) shape.
// Every event must be built via event.New* and then passed through
// this function exactly once before being used further.
//
// The returned bool is true iff candidate was newly admitted.
func (u *Unfolding) Deduplicate(candidate *event.Event) (*event.Event, bool) {
	key := keyFor(candidate)
	for _, existing := range u.byKey[key] {
		if samePredecessors(existing, candidate) {
			if candidate.IsCutoff() && !existing.IsCutoff() {
				existing.MarkAsCutoff()
			}
			return existing, false
		}
	}
	u.register(candidate)
	return candidate, true
}

func samePredecessors(a, b *event.Event) bool {
	ap, bp := a.Predecessors(), b.Predecessors()
	if len(ap) != len(bp) {
		return false
	}
	set := make(map[*event.Event]bool, len(ap))
	for _, p := range ap {
		set[p] = true
	}
	for _, p := range bp {
		if !set[p] {
			return false
		}
	}
	return true
}

func (u *Unfolding) register(e *event.Event) {
	e.Commit()
	key := keyFor(e)
	u.byKey[key] = append(u.byKey[key], e)
	u.all = append(u.all, e)
	u.index(e)
	u.computeImmediateConflicts(e)
}

// index populates the auxiliary lookup tables used by
// computeImmediateConflicts and Remove.
func (u *Unfolding) index(e *event.Event) {
	if tp := e.ThreadPredecessor(); tp != nil {
		u.byThreadPred[tp] = append(u.byThreadPred[tp], e)
	}
	if lp := e.LockPredecessor(); lp != nil && (e.Kind() == por.LockAcquire || e.Kind() == por.Wait2) {
		u.byLockPred[lp] = append(u.byLockPred[lp], e)
	}
	switch e.Kind() {
	case por.Signal:
		if target := e.Notifies(); target != nil {
			u.byNotifyTarget[target] = append(u.byNotifyTarget[target], e)
		}
	case por.Broadcast:
		for _, target := range e.NotifySet() {
			u.byNotifyTarget[target] = append(u.byNotifyTarget[target], e)
		}
	}
}

func deindex(slice []*event.Event, e *event.Event) []*event.Event {
	for i, x := range slice {
		if x == e {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}

func (u *Unfolding) unindex(e *event.Event) {
	if tp := e.ThreadPredecessor(); tp != nil {
		u.byThreadPred[tp] = deindex(u.byThreadPred[tp], e)
	}
	if lp := e.LockPredecessor(); lp != nil {
		u.byLockPred[lp] = deindex(u.byLockPred[lp], e)
	}
	switch e.Kind() {
	case por.Signal:
		if target := e.Notifies(); target != nil {
			u.byNotifyTarget[target] = deindex(u.byNotifyTarget[target], e)
		}
	case por.Broadcast:
		for _, target := range e.NotifySet() {
			u.byNotifyTarget[target] = deindex(u.byNotifyTarget[target], e)
		}
	}
}

// link records a and b as immediate-conflict partners of one another.
func link(a, b *event.Event) {
	a.AddImmediateConflict(b)
	b.AddImmediateConflict(a)
}

// computeImmediateConflicts runs the unfolding's three conflict rules
// against e's peers:
//
//  1. Two distinct events sharing the same thread predecessor conflict
//     (the unfolding branched the same thread down two paths).
//  2. Two lock_acquire/wait2 events sharing the same lock predecessor
//     conflict (they race to become the lock's next holder).
//  3. Two signal/broadcast events that both target the same wait1
//     conflict (only one notifier can wake a given waiter).
func (u *Unfolding) computeImmediateConflicts(e *event.Event) {
	if tp := e.ThreadPredecessor(); tp != nil {
		for _, other := range u.byThreadPred[tp] {
			if other != e {
				link(e, other)
			}
		}
	}
	if lp := e.LockPredecessor(); lp != nil && (e.Kind() == por.LockAcquire || e.Kind() == por.Wait2) {
		for _, other := range u.byLockPred[lp] {
			if other != e {
				link(e, other)
			}
		}
	}
	switch e.Kind() {
	case por.Signal:
		if target := e.Notifies(); target != nil {
			for _, other := range u.byNotifyTarget[target] {
				if other != e {
					link(e, other)
				}
			}
		}
	case por.Broadcast:
		for _, target := range e.NotifySet() {
			for _, other := range u.byNotifyTarget[target] {
				if other != e {
					link(e, other)
				}
			}
		}
	}
	e.MarkConflictsComputed()
}

// Remove withdraws a leaf event (one with no successors) from the
// store. It returns an error if e still has successors, mirroring
// unfolding.cpp's leaf-only removal invariant.
func (u *Unfolding) Remove(e *event.Event) error {
	if e.HasSuccessors() {
		return fmt.Errorf("por/unfolding: cannot remove %s, it still has successors", e)
	}
	if e == u.root {
		return fmt.Errorf("por/unfolding: cannot remove the program_init root")
	}
	e.Uncommit()
	u.unindex(e)
	key := keyFor(e)
	u.byKey[key] = deindex(u.byKey[key], e)
	u.all = deindex(u.all, e)
	for _, c := range e.ImmediateConflicts() {
		c.RemoveImmediateConflict(e)
	}
	return nil
}
