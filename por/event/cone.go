package event

import (
	"sort"

	"github.com/wbrown/janus-por/por"
)

// Cone maps each thread to the causally latest event on that thread
// that is in an event's past. It is derived, not stored
// independently of events: every Event owns the Cone of its causal
// history.
type Cone struct {
	entries map[string]*Event
}

func newCone() Cone {
	return Cone{entries: make(map[string]*Event)}
}

// Get returns the maximal event on tid in this cone, if any.
func (c Cone) Get(tid por.ThreadId) (*Event, bool) {
	e, ok := c.entries[tid.String()]
	return e, ok
}

// Len returns the number of threads represented in the cone.
func (c Cone) Len() int {
	return len(c.entries)
}

// Threads returns the threads present in the cone, sorted by ThreadId
// order, for deterministic iteration.
func (c Cone) Threads() []por.ThreadId {
	tids := make([]por.ThreadId, 0, len(c.entries))
	for _, e := range c.entries {
		tids = append(tids, e.Tid())
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i].Less(tids[j]) })
	return tids
}

// Range calls fn for every (thread, event) pair in the cone, in
// deterministic ThreadId order.
func (c Cone) Range(fn func(por.ThreadId, *Event) bool) {
	for _, tid := range c.Threads() {
		e := c.entries[tid.String()]
		if !fn(tid, e) {
			return
		}
	}
}

// set records e as the maximal event on its thread if it is causally
// later than what is already recorded (or nothing is recorded yet).
func (c Cone) set(e *Event) {
	if e.Kind() == por.ProgramInit {
		return
	}
	key := e.Tid().String()
	if existing, ok := c.entries[key]; !ok || existing.Depth() < e.Depth() {
		c.entries[key] = e
	}
}

// merge folds every entry of other into this cone, keeping the
// causally later event per thread (cone.cpp's cone::insert).
func (c Cone) merge(other Cone) {
	other.Range(func(_ por.ThreadId, e *Event) bool {
		c.set(e)
		return true
	})
}

// coneFrom builds the cone for a new event out of its immediate
// predecessor plus any additional predecessors, by point-wise union
// of their cones plus the predecessors themselves.
func coneFrom(immediatePredecessor *Event, others ...*Event) Cone {
	c := newCone()
	if immediatePredecessor != nil {
		c.merge(immediatePredecessor.cone)
		c.set(immediatePredecessor)
	}
	for _, o := range others {
		if o == nil {
			continue
		}
		c.merge(o.cone)
		c.set(o)
	}
	return c
}

// ConeOf builds the cone that would result from treating every
// non-nil event in events as an immediate predecessor of some
// hypothetical new event: the point-wise union of their cones plus
// the events themselves. Used by por/cex to compare a candidate
// predecessor set's reach against an existing event's own cone.
func ConeOf(events ...*Event) Cone {
	return coneFrom(nil, events...)
}

// LessThanEqForAll reports whether, on every thread present in both
// cones, this cone's entry is at no greater depth than rhs's entry —
// i.e. this cone is a subset, depth-wise, of rhs on their shared
// threads; threads present only in this cone are not compared
// (cone::is_lte_for_all_of).
func (c Cone) LessThanEqForAll(rhs Cone) bool {
	ok := true
	rhs.Range(func(tid por.ThreadId, e *Event) bool {
		if own, has := c.Get(tid); has && own.Depth() > e.Depth() {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// Setminus computes the comb of events causally in c but not in rhs,
// per thread: for each thread present in c, walk the thread-predecessor
// chain from c's maximal event down to (but not including) rhs's
// maximal event on that thread, or to the start of the thread if rhs
// has none (cone.cpp's cone::setminus).
//
// The result is returned as a flat, per-thread grouped slice; callers
// that need comb.Comb semantics build one from it (por/comb depends on
// por/event, so por/event cannot import por/comb itself).
func (c Cone) Setminus(rhs Cone) map[string][]*Event {
	result := make(map[string][]*Event)
	c.Range(func(tid por.ThreadId, e *Event) bool {
		key := tid.String()
		if r, has := rhs.Get(tid); !has {
			for cur := e; cur != nil; cur = cur.ThreadPredecessor() {
				result[key] = append(result[key], cur)
			}
			return true
		} else if r.Depth() > e.Depth() {
			return true
		} else {
			for cur := e; cur != nil && r.Depth() < cur.Depth(); cur = cur.ThreadPredecessor() {
				result[key] = append(result[key], cur)
			}
			return true
		}
	})
	return result
}
