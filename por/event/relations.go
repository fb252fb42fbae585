package event

import (
	"sort"

	"github.com/wbrown/janus-por/por"
)

// LessThan reports whether e causally precedes rhs. Callers must
// guarantee e and rhs are not in conflict.
func (e *Event) LessThan(rhs *Event) bool {
	if e == rhs {
		return false
	}
	if e.tid.Equal(rhs.tid) {
		return e.depth < rhs.depth
	}
	if other, ok := rhs.cone.Get(e.tid); ok {
		return e.depth <= other.depth
	}
	return e.kind == por.ProgramInit
}

// CausallyOrdered reports whether e and rhs are related by LessThanEq
// in either direction.
func CausallyOrdered(a, b *Event) bool {
	return a.LessThanEq(b) || b.LessThanEq(a)
}

// Concurrent reports whether a and b are not causally ordered. This
// does not by itself imply conflict-freedom; see InConflict.
func Concurrent(a, b *Event) bool {
	return !CausallyOrdered(a, b)
}

// ImmediateConflicts returns the cached immediate-conflict partners of
// e, as computed by the unfolding at insertion time.
func (e *Event) ImmediateConflicts() []*Event {
	return e.immediateConflicts
}

// SetImmediateConflicts installs the immediate-conflict cache computed
// by the owning Unfolding. It is exported for por/unfolding, the only
// caller that is allowed to mutate this cache.
func (e *Event) SetImmediateConflicts(conflicts []*Event) {
	e.immediateConflicts = conflicts
	e.conflictsComputed = true
}

// AddImmediateConflict records rhs as an immediate-conflict partner of
// e. Used by the unfolding to keep the relation symmetric.
func (e *Event) AddImmediateConflict(rhs *Event) {
	for _, c := range e.immediateConflicts {
		if c == rhs {
			return
		}
	}
	e.immediateConflicts = append(e.immediateConflicts, rhs)
}

// RemoveImmediateConflict withdraws rhs from e's immediate-conflict
// cache, used when rhs is removed from the unfolding.
func (e *Event) RemoveImmediateConflict(rhs *Event) {
	for i, c := range e.immediateConflicts {
		if c == rhs {
			e.immediateConflicts = append(e.immediateConflicts[:i], e.immediateConflicts[i+1:]...)
			return
		}
	}
}

// ConflictsComputed reports whether the unfolding has already computed
// this event's immediate-conflict cache.
func (e *Event) ConflictsComputed() bool { return e.conflictsComputed }

// MarkConflictsComputed records that the owning unfolding has finished
// its one-time immediate-conflict pass for e, even if no conflicts
// were found.
func (e *Event) MarkConflictsComputed() { e.conflictsComputed = true }

// Commit wires e into its predecessors' successor lists. The owning
// Unfolding calls this exactly once, when e is permanently admitted
// (as opposed to probed and found a duplicate of an existing event).
func (e *Event) Commit() { e.addToSuccessors() }

// Uncommit detaches e from its predecessors' successor lists, the
// inverse of Commit, used when e is withdrawn from the unfolding.
func (e *Event) Uncommit() {
	for _, p := range e.Predecessors() {
		e.removeFromSuccessorsOf(p)
	}
}

// InConflict decides general conflict between a and b: true iff they
// are not causally ordered and some pair of their causal-past events
// (inclusive) are immediate conflicts of each other.
func InConflict(a, b *Event) bool {
	if a == b || CausallyOrdered(a, b) {
		return false
	}
	aPast := a.LocalConfiguration(true)
	bSet := make(map[*Event]bool, 0)
	for _, x := range b.LocalConfiguration(true) {
		bSet[x] = true
	}
	for _, x := range aPast {
		for _, y := range x.immediateConflicts {
			if bSet[y] {
				return true
			}
		}
	}
	return false
}

// MarkAsCutoff marks e (and transitively every event whose cone
// contains e) as a cutoff event, and returns the number of events
// newly marked.
func (e *Event) MarkAsCutoff() int {
	if e.isCutoff {
		return 0
	}
	count := 0
	var mark func(*Event)
	mark = func(x *Event) {
		if x.isCutoff {
			return
		}
		x.isCutoff = true
		count++
		for _, s := range x.successors {
			mark(s)
		}
	}
	mark(e)
	return count
}

// HasFingerprint reports whether a memory-state fingerprint has been
// attached to this event.
func (e *Event) HasFingerprint() bool { return e.fingerprintSet }

// Fingerprint returns the attached memory-state fingerprint. Callers
// must check HasFingerprint first.
func (e *Event) Fingerprint() uint64 { return e.fingerprint }

// ThreadDelta returns the running per-thread write hash attached to
// this event. Callers must check HasFingerprint first.
func (e *Event) ThreadDelta() uint64 { return e.threadDelta }

// SetFingerprint attaches a memory-state fingerprint, idempotently: if
// one is already set, it returns whether the new value agrees with it.
func (e *Event) SetFingerprint(fingerprint, threadDelta uint64) bool {
	if e.fingerprintSet {
		return fingerprint == e.fingerprint && threadDelta == e.threadDelta
	}
	e.fingerprintSet = true
	e.fingerprint = fingerprint
	e.threadDelta = threadDelta
	return true
}

// LocalConfiguration returns the set of events reachable from e
// through predecessors (including e itself), in a deterministic order.
// Because predecessor edges strictly decrease in depth, this traversal
// always terminates.
func (e *Event) LocalConfiguration(includeProgramInit bool) []*Event {
	seen := make(map[*Event]bool)
	var out []*Event
	var visit func(*Event)
	visit = func(x *Event) {
		if seen[x] {
			return
		}
		if !includeProgramInit && x.kind == por.ProgramInit {
			seen[x] = true
			return
		}
		seen[x] = true
		out = append(out, x)
		for _, p := range x.Predecessors() {
			visit(p)
		}
	}
	visit(e)
	sort.Slice(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		if !out[i].tid.Equal(out[j].tid) {
			return out[i].tid.Less(out[j].tid)
		}
		return out[i].kind < out[j].kind
	})
	if includeProgramInit {
		e.lcSize = len(out)
	}
	return out
}

// LocalConfigurationSize returns len(LocalConfiguration(true)), cached
// after the first call.
func (e *Event) LocalConfigurationSize() int {
	if e.lcSize == 0 {
		e.LocalConfiguration(true)
	}
	return e.lcSize
}

// Causes returns LocalConfiguration(includeProgramInit) minus e itself.
func (e *Event) Causes(includeProgramInit bool) []*Event {
	lc := e.LocalConfiguration(includeProgramInit)
	out := make([]*Event, 0, len(lc))
	for _, x := range lc {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}
