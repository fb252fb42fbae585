// Package event implements the immutable node of the unfolding: one
// Event per (kind, predecessors), its cone, and the causal and
// conflict relations over events.
package event

import (
	"fmt"

	"github.com/wbrown/janus-por/por"
)

// Event is an immutable node of the unfolding. All cross-event
// references are non-owning pointers into the arena an Unfolding
// keeps alive for the engine's lifetime; predecessor edges strictly
// decrease in depth, so the graph has no cycles.
type Event struct {
	kind  por.EventKind
	tid   por.ThreadId
	depth uint64
	cone  Cone

	threadPred *Event // nil only for ProgramInit
	lockPred   *Event
	condPreds  []*Event
	notifier   *Event // wait2: the signal/broadcast that woke it
	notifies   *Event // signal: the wait1 it wakes (nil if lost)
	notifySet  []*Event // broadcast: the wait1s it wakes
	joinTarget *Event // thread_join: the joined thread's thread_exit
	creator    *Event // thread_init: thread_create predecessor, or program_init for the main thread

	lockID        por.LockId
	condID        por.CondId
	localPathBits uint64

	successors         []*Event
	immediateConflicts []*Event
	conflictsComputed  bool

	isCutoff bool
	lcSize   int

	fingerprintSet bool
	fingerprint    uint64
	threadDelta    uint64

	// reason records, for diagnostics only, why a conflicting-extension
	// search emitted this event as a candidate. Empty for ordinarily
	// committed events.
	reason string
}

// Kind returns the event's kind.
func (e *Event) Kind() por.EventKind { return e.kind }

// Tid returns the id of the thread that owns this event.
func (e *Event) Tid() por.ThreadId { return e.tid }

// Depth returns 1 + the maximum depth of this event's predecessors;
// ProgramInit has depth 0.
func (e *Event) Depth() uint64 { return e.depth }

// Cone returns the event's cone.
func (e *Event) Cone() Cone { return e.cone }

// ThreadPredecessor returns the single same-thread predecessor, or nil
// for ProgramInit and for the first event of a thread (ThreadInit).
func (e *Event) ThreadPredecessor() *Event { return e.threadPred }

// LockPredecessor returns the lock-chain predecessor, if this event's
// kind has one.
func (e *Event) LockPredecessor() *Event { return e.lockPred }

// CondPredecessors returns the condition-variable predecessor list.
func (e *Event) CondPredecessors() []*Event { return e.condPreds }

// Notifier returns the signal/broadcast event that woke a Wait2 event.
func (e *Event) Notifier() *Event { return e.notifier }

// Notifies returns the Wait1 event a Signal targets, or nil if lost.
func (e *Event) Notifies() *Event { return e.notifies }

// NotifySet returns the Wait1 events a Broadcast targets.
func (e *Event) NotifySet() []*Event { return e.notifySet }

// JoinTarget returns the joined thread's ThreadExit event, for a
// ThreadJoin event.
func (e *Event) JoinTarget() *Event { return e.joinTarget }

// Creator returns the thread_create (or, for the main thread,
// program_init) predecessor of a ThreadInit event.
func (e *Event) Creator() *Event { return e.creator }

// LockID returns the lock id this event operates on, or 0 if none.
func (e *Event) LockID() por.LockId { return e.lockID }

// CondID returns the condition variable id this event operates on, or
// 0 if none.
func (e *Event) CondID() por.CondId { return e.condID }

// LocalPathBits returns the branch-history bits of a Local event.
func (e *Event) LocalPathBits() uint64 { return e.localPathBits }

// IsCutoff reports whether this event (or something in its past) has
// been marked as a cutoff.
func (e *Event) IsCutoff() bool { return e.isCutoff }

// Reason returns the diagnostic string explaining why a
// conflicting-extension search produced this event, if any.
func (e *Event) Reason() string { return e.reason }

// SetReason attaches a diagnostic reason string. It is purely
// informational and never affects engine semantics.
func (e *Event) SetReason(reason string) { e.reason = reason }

// Successors returns the events that have this event as an immediate
// predecessor.
func (e *Event) Successors() []*Event { return e.successors }

// HasSuccessors reports whether any event has been built on top of
// this one.
func (e *Event) HasSuccessors() bool { return len(e.successors) > 0 }

func (e *Event) addToSuccessors() {
	for _, p := range e.Predecessors() {
		p.successors = append(p.successors, e)
	}
}

// removeFromSuccessorsOf detaches e from p's successor list; used when
// an event is withdrawn from the unfolding.
func (e *Event) removeFromSuccessorsOf(p *Event) {
	for i, s := range p.successors {
		if s == e {
			p.successors = append(p.successors[:i], p.successors[i+1:]...)
			return
		}
	}
}

// Predecessors returns the ordered list of this event's immediate
// predecessors: thread-predecessor first (if any), then lock
// predecessor, condition-variable predecessors, notifier, join
// target, and broadcast notify set, each included at most once.
func (e *Event) Predecessors() []*Event {
	seen := make(map[*Event]bool)
	var out []*Event
	add := func(p *Event) {
		if p == nil || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	add(e.threadPred)
	add(e.lockPred)
	for _, c := range e.condPreds {
		add(c)
	}
	add(e.notifier)
	add(e.joinTarget)
	add(e.creator)
	for _, n := range e.notifySet {
		add(n)
	}
	return out
}

// LessThanEq reports whether e is causally at or before other: either
// the same event, on the same thread at no greater depth, or reachable
// through other's cone entry for e's thread. Assumes e and other do
// not conflict (original_source/include/por/event/base.h's
// is_less_than_eq).
func (e *Event) LessThanEq(other *Event) bool {
	if e == other {
		return true
	}
	if other == nil {
		return false
	}
	if e.tid.Equal(other.tid) {
		return e.depth <= other.depth
	}
	if ce, ok := other.cone.Get(e.tid); ok {
		return e.depth <= ce.Depth()
	}
	return e.kind == por.ProgramInit
}

// String renders a short diagnostic label, e.g. "lock_acquire@1,2#7".
func (e *Event) String() string {
	return fmt.Sprintf("%s@%s#%d", e.kind, e.tid, e.depth)
}

func maxDepth(preds []*Event) uint64 {
	var m uint64
	for _, p := range preds {
		if p != nil && p.depth > m {
			m = p.depth
		}
	}
	return m
}

func anyCutoff(preds []*Event) bool {
	for _, p := range preds {
		if p != nil && p.isCutoff {
			return true
		}
	}
	return false
}
