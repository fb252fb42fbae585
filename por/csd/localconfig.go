package csd

import (
	"sort"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
)

// preemption classifies why an event cannot yet run. Nonpreempting:
// the thread is blocked anyway (a join target, creator or wait2
// notifier has not run, or the lock it needs is recorded as held), so
// switching away costs nothing. Preempting: the thread's lock is free,
// or it waits only on condition-variable predecessors that have not
// run, and realizing that causal order means switching the thread out.
// Only the latter counts towards a context-switch-degree bound
// (original_source/lib/Por/csd2.cpp's enabled_t).
type preemption int

const (
	enabled preemption = iota
	preemptingDisabled
	nonpreemptingDisabled
)

// threadChain is one thread's compressed, newest-first slice of
// blocking-relevant events within a local configuration, plus how many
// of its entries remain unconsumed (events[:pos]; entries are consumed
// oldest-first, from the end of the slice): pos == len(events) means
// nothing has run yet, pos == 0 means the chain is fully drained.
type threadChain struct {
	events []*event.Event
	pos    int
}

// search is the mutable branch-and-bound state for one compute/above
// query: per-thread advancement plus which locks are currently held,
// mirroring csd2.cpp's csd_search_t. Its threadChain.pos and locked
// fields are advanced and reverted in place by the recursive search
// rather than copied, so every call that mutates them must restore its
// own mutation via a deferred revert before returning.
type search struct {
	chains map[string]*threadChain
	locked map[por.LockId]bool
}

// threadCount mirrors csd2.cpp's compute_thread_count: a thread_init
// event's own thread is absent from its cone (it has no
// thread-predecessor of its own yet), so it must be counted separately
// from the cone's size.
func threadCount(root *event.Event) int {
	n := root.Cone().Len()
	if root.Kind() == por.ThreadInit {
		n++
	}
	return n
}

// mayBeBlocking reports whether ev could itself be the reason some
// other event is not yet enabled, and so must be kept in a compressed
// chain even though it carries no lock/wait state of its own
// (csd2.cpp's may_be_blocking).
func mayBeBlocking(ev *event.Event) bool {
	switch ev.Kind() {
	case por.LockAcquire:
		lp := ev.LockPredecessor()
		return lp != nil && !lp.LessThanEq(ev.ThreadPredecessor())
	case por.ThreadInit:
		return true
	case por.ThreadJoin:
		return true
	case por.Wait1:
		cps := ev.CondPredecessors()
		if len(cps) == 0 {
			return false
		}
		tp := ev.ThreadPredecessor()
		for _, cp := range cps {
			if !cp.LessThanEq(tp) {
				return true
			}
		}
		return false
	case por.Wait2:
		return true
	case por.Signal, por.Broadcast:
		cps := ev.CondPredecessors()
		if len(cps) == 0 {
			return false
		}
		tp := ev.ThreadPredecessor()
		for _, cp := range cps {
			if !cp.LessThanEq(tp) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// newSearch builds the compressed per-thread advancement state for
// root's local configuration, and returns the thread id the search
// must start from (the lexicographically smallest, always the initial
// main thread), or ok=false if root's local configuration involves at
// most one thread (csd2.cpp's csd_search_t constructor).
func newSearch(root *event.Event) (s *search, start string, ok bool) {
	if threadCount(root) <= 1 {
		return nil, "", false
	}

	s = &search{chains: make(map[string]*threadChain), locked: make(map[por.LockId]bool)}

	if root.Kind() == por.ThreadInit {
		s.chains[root.Tid().String()] = &threadChain{events: []*event.Event{root}, pos: 1}
	}

	root.Cone().Range(func(tid por.ThreadId, coneEvent *event.Event) bool {
		var vec []*event.Event
		if root.Tid().Equal(tid) {
			switch root.Kind() {
			case por.LockAcquire, por.LockRelease, por.Wait1, por.Wait2:
				s.track(root)
			}
			vec = append(vec, root)
		}
		for cur := coneEvent; cur != nil; cur = cur.ThreadPredecessor() {
			switch cur.Kind() {
			case por.Local:
				// never a cross-thread dependency, never needed
			case por.ThreadInit, por.ThreadJoin:
				vec = append(vec, cur)
			case por.LockAcquire, por.LockRelease, por.Wait1, por.Wait2:
				s.track(cur)
				vec = append(vec, cur)
			default:
				// Runs of non-blocking events collapse to their last
				// member, whose depth still suffices for has_run checks,
				// unless that member may itself block a successor.
				if len(vec) == 0 || mayBeBlocking(vec[len(vec)-1]) {
					vec = append(vec, cur)
				}
			}
		}
		s.chains[tid.String()] = &threadChain{events: vec, pos: len(vec)}
		return true
	})

	return s, firstThread(s.chains), true
}

func (s *search) track(ev *event.Event) {
	if _, ok := s.locked[ev.LockID()]; !ok {
		s.locked[ev.LockID()] = false
	}
}

// hasRun reports whether ev has already been consumed by its own
// thread's advancement.
func (s *search) hasRun(ev *event.Event) bool {
	c := s.chains[ev.Tid().String()]
	return c.pos < len(c.events) && c.events[c.pos].Depth() >= ev.Depth()
}

// eventPreemption classifies the next-to-run event ev, distinguishing
// an acquire or wait2 whose lock is recorded as held (nonpreempting)
// from one whose lock is free but whose lock predecessor has not run
// yet (preempting) (csd2.cpp's event_preemption).
func (s *search) eventPreemption(ev *event.Event) preemption {
	switch ev.Kind() {
	case por.ThreadJoin:
		if s.hasRun(ev.JoinTarget()) {
			return enabled
		}
		return nonpreemptingDisabled
	case por.ThreadInit:
		creator := ev.Creator()
		if creator.Kind() == por.ProgramInit || s.hasRun(creator) {
			return enabled
		}
		return nonpreemptingDisabled
	case por.LockAcquire:
		lp := ev.LockPredecessor()
		if lp == nil || lp.Tid().Equal(ev.Tid()) || s.hasRun(lp) {
			return enabled
		}
		if s.locked[ev.LockID()] {
			return nonpreemptingDisabled
		}
		return preemptingDisabled
	case por.Wait1:
		for _, cp := range ev.CondPredecessors() {
			if !s.hasRun(cp) {
				return preemptingDisabled
			}
		}
		return enabled
	case por.Wait2:
		if !s.hasRun(ev.Notifier()) {
			return nonpreemptingDisabled
		}
		lp := ev.LockPredecessor()
		if lp.Tid().Equal(ev.Tid()) || s.hasRun(lp) {
			return enabled
		}
		if s.locked[ev.LockID()] {
			return nonpreemptingDisabled
		}
		return preemptingDisabled
	case por.Signal, por.Broadcast:
		for _, cp := range ev.CondPredecessors() {
			if !s.hasRun(cp) {
				return preemptingDisabled
			}
		}
		return enabled
	default:
		return enabled
	}
}

// threadIsEnabled is the coarse, lock-state-blind enabled check used
// to decide whether a thread is even a candidate to switch into next
// (csd2.cpp's event_is_enabled).
func (s *search) threadIsEnabled(ev *event.Event) bool {
	switch ev.Kind() {
	case por.ThreadJoin:
		return s.hasRun(ev.JoinTarget())
	case por.ThreadInit:
		creator := ev.Creator()
		return creator.Kind() == por.ProgramInit || s.hasRun(creator)
	case por.LockAcquire:
		lp := ev.LockPredecessor()
		return lp == nil || lp.Tid().Equal(ev.Tid()) || s.hasRun(lp)
	case por.Wait1:
		for _, cp := range ev.CondPredecessors() {
			if !s.hasRun(cp) {
				return false
			}
		}
		return true
	case por.Wait2:
		if !s.hasRun(ev.Notifier()) {
			return false
		}
		lp := ev.LockPredecessor()
		return lp.Tid().Equal(ev.Tid()) || s.hasRun(lp)
	case por.Signal, por.Broadcast:
		for _, cp := range ev.CondPredecessors() {
			if !s.hasRun(cp) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// advanceThread drains c from its next unconsumed event (oldest first)
// until it hits a disabled event or empties the chain, toggling
// locked's entries as lock/wait events are consumed, and returns the
// preempting cost incurred: 0 or 1 (csd2.cpp's advance_thread).
func (s *search) advanceThread(c *threadChain) int {
	for c.pos > 0 {
		ev := c.events[c.pos-1]
		switch s.eventPreemption(ev) {
		case nonpreemptingDisabled:
			return 0
		case preemptingDisabled:
			return 1
		}
		switch ev.Kind() {
		case por.LockAcquire:
			s.locked[ev.LockID()] = true
		case por.LockRelease:
			s.locked[ev.LockID()] = false
		case por.Wait1:
			s.locked[ev.LockID()] = false
		case por.Wait2:
			s.locked[ev.LockID()] = true
		}
		c.pos--
	}
	return 0
}

// revertThread undoes advanceThread back up to position to, restoring
// locked's entries (csd2.cpp's revert_thread).
func (s *search) revertThread(c *threadChain, to int) {
	for c.pos < to {
		ev := c.events[c.pos]
		switch ev.Kind() {
		case por.LockAcquire:
			s.locked[ev.LockID()] = false
		case por.LockRelease:
			s.locked[ev.LockID()] = true
		case por.Wait1:
			s.locked[ev.LockID()] = true
		case por.Wait2:
			s.locked[ev.LockID()] = false
		}
		c.pos++
	}
}

func (s *search) allDrained() bool {
	for _, c := range s.chains {
		if c.pos != 0 {
			return false
		}
	}
	return true
}

func (s *search) threadIDs() []string {
	ids := make([]string, 0, len(s.chains))
	for k := range s.chains {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}

// firstThread returns the lexicographically-smallest thread id among
// the chains, which original_source/lib/Por/csd2.cpp always seeds the
// search with (it asserts this is the initial main thread, id "1").
func firstThread(chains map[string]*threadChain) string {
	ids := make([]string, 0, len(chains))
	for k := range chains {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids[0]
}

// isAbove is the branch-and-bound feasibility search: it reports true
// when the remainder of the local configuration cannot be drained
// without the preempting switch count exceeding limit, and false as
// soon as one schedule within the limit is found (csd2.cpp's
// _is_above).
func (s *search) isAbove(tid string, currentCSD, limit int) bool {
	c := s.chains[tid]
	prev := c.pos
	defer s.revertThread(c, prev)
	step := s.advanceThread(c)

	if s.allDrained() {
		return false
	}
	if currentCSD+step > limit {
		return true
	}

	for _, other := range s.threadIDs() {
		if other == tid {
			continue
		}
		oc := s.chains[other]
		if oc.pos == 0 {
			continue
		}
		if !s.threadIsEnabled(oc.events[oc.pos-1]) {
			continue
		}
		if !s.isAbove(other, currentCSD+step, limit) {
			return false
		}
	}
	return true
}

// compute is the exact branch-and-bound minimizer: the fewest further
// preempting switches needed to drain every thread's chain, given
// budget as an already-known-achievable upper bound (csd2.cpp's
// _compute).
func (s *search) compute(tid string, budget int) int {
	c := s.chains[tid]
	prev := c.pos
	defer s.revertThread(c, prev)
	step := s.advanceThread(c)

	if s.allDrained() {
		return 0
	}
	if step > budget {
		return budget + 1
	}

	csd := budget + 1
	for _, other := range s.threadIDs() {
		if other == tid {
			continue
		}
		oc := s.chains[other]
		if oc.pos == 0 {
			continue
		}
		if !s.threadIsEnabled(oc.events[oc.pos-1]) {
			continue
		}
		next := s.compute(other, csd-1-step) + step
		if next <= step {
			return next
		}
		if next < csd {
			csd = next
		}
	}
	return csd
}

// EventIsAboveLimit reports whether e's local configuration needs more
// than limit preempting context switches to realize.
func EventIsAboveLimit(e *event.Event, limit int) bool {
	s, start, ok := newSearch(e)
	if !ok {
		return false
	}
	return s.isAbove(start, 0, limit)
}

// EventCSD returns the exact minimum number of preempting context
// switches e's local configuration requires.
func EventCSD(e *event.Event) int {
	s, start, ok := newSearch(e)
	if !ok {
		return 0
	}
	const unbounded = int(^uint(0) >> 1)
	return s.compute(start, unbounded-1)
}
