// Package cex enumerates conflicting extensions: alternative next
// events a configuration could have taken instead of the one it did,
// grounded on original_source/include/por/configuration.h's
// cex_acquire, cex_wait1, and cex_notification, which walk the
// historical event graph (lock chains, condition-variable combs of
// concurrent events) rather than the configuration's live state.
//
// Every conflicting-extension candidate built here (all but
// DeadlockCandidates') is passed through the unfolding's
// Deduplicate exactly once, the same bookkeeping step the original
// engine performs for every conflicting extension it considers,
// whether or not that alternative is ever actually scheduled.
package cex

import (
	"strconv"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/comb"
	"github.com/wbrown/janus-por/por/configuration"
	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/unfolding"
)

// Candidate wraps an alternative event with a short diagnostic
// explanation of why the search produced it. The reason is purely
// informational and never affects engine semantics.
type Candidate struct {
	Event  *event.Event
	Reason string
}

// register runs built through the unfolding's deduplication exactly
// once, folding it onto an existing canonical event when one already
// has the same (kind, predecessors) shape. This mirrors the
// original's unconditional deduplicate-on-every-candidate step: it is
// part of how the unfolding is constructed, not optional bookkeeping.
func register(u *unfolding.Unfolding, built *event.Event, reason string) Candidate {
	resolved, _ := u.Deduplicate(built)
	resolved.SetReason(reason)
	return Candidate{Event: resolved, Reason: reason}
}

// liveCandidate wraps an extension built directly against a
// configuration's live state (DeadlockCandidates only), without
// registering it in the unfolding: a deadlock alternative is only
// ever offered to the scheduler, never folded into the causal graph
// on its own.
func liveCandidate(e *event.Event, reason string) Candidate {
	e.SetReason(reason)
	return Candidate{Event: e, Reason: reason}
}

// AcquireAlternatives enumerates the conflicting extensions of a
// lock_acquire or wait2 event actual by walking the lock's historical
// chain backward from actual's own lock predecessor, generating an
// alternative acquire (or wait2) for actual's own thread at every
// link of that chain that is concurrent with actual's immediate
// causes. This is cex_acquire.
func AcquireAlternatives(c *configuration.Configuration, actual *event.Event) []Candidate {
	if actual.Kind() != por.LockAcquire && actual.Kind() != por.Wait2 {
		panic("por/cex: AcquireAlternatives requires a lock_acquire or wait2 event")
	}
	u := c.Unfolding()
	lid := actual.LockID()

	et := actual.ThreadPredecessor()
	if et == nil || et.IsCutoff() {
		return nil
	}
	er := actual.LockPredecessor()
	em := er
	var es *event.Event

	if actual.Kind() == por.LockAcquire {
		for em != nil && !em.LessThanEq(et) {
			em = em.LockPredecessor()
		}
	} else {
		es = actual.Notifier()
		if es == nil || es.IsCutoff() {
			return nil
		}
		for em != nil && !em.LessThanEq(et) && !em.LessThan(es) {
			em = em.LockPredecessor()
		}
	}

	if em == er {
		return nil
	}

	var out []Candidate
	reason := "alternative acquirer of lock " + strconv.FormatUint(uint64(lid), 10)

	wait1For := func(notifier *event.Event) *event.Event {
		switch notifier.Kind() {
		case por.Signal:
			return notifier.Notifies()
		case por.Broadcast:
			for _, w := range notifier.NotifySet() {
				if w.Tid().Equal(actual.Tid()) {
					return w
				}
			}
		}
		return nil
	}

	switch {
	case em == nil:
		built := event.NewLockAcquire(et, nil, lid)
		out = append(out, register(u, built, reason))
	case em.Kind() == por.LockRelease:
		if actual.Kind() == por.LockAcquire {
			built := event.NewLockAcquire(et, em, lid)
			out = append(out, register(u, built, reason))
		} else {
			built := event.NewWait2(et, em, wait1For(es), es, actual.CondID(), lid)
			out = append(out, register(u, built, reason))
		}
	case em.Kind() == por.Wait1:
		if actual.Kind() == por.LockAcquire {
			built := event.NewLockAcquire(et, em, lid)
			out = append(out, register(u, built, reason))
		}
	case em.Kind() == por.LockCreate:
		built := event.NewLockAcquire(et, em, lid)
		out = append(out, register(u, built, reason))
	}

	ep := er.LockPredecessor()
	for ep != nil {
		boundedByEm := em != nil && ep.LessThanEq(em)
		boundedByEs := es != nil && ep.LessThanEq(es)
		if boundedByEm || boundedByEs {
			break
		}
		switch ep.Kind() {
		case por.LockRelease, por.Wait1:
			if actual.Kind() == por.LockAcquire {
				built := event.NewLockAcquire(et, ep, lid)
				out = append(out, register(u, built, reason))
			} else {
				built := event.NewWait2(et, ep, wait1For(es), es, actual.CondID(), lid)
				out = append(out, register(u, built, reason))
			}
		case por.LockCreate:
			if actual.Kind() == por.LockAcquire {
				built := event.NewLockAcquire(et, ep, lid)
				out = append(out, register(u, built, reason))
			}
		}
		ep = ep.LockPredecessor()
	}

	return out
}

// Wait1Alternatives enumerates the conflicting extensions of a wait1
// event actual: every maximal combination of pairwise-concurrent
// events drawn from actual's non-create condition-variable
// predecessors that, combined with actual's thread predecessor, would
// produce a causally different wait1 than the one actually taken.
// This is cex_wait1.
func Wait1Alternatives(c *configuration.Configuration, actual *event.Event) []Candidate {
	if actual.Kind() != por.Wait1 {
		panic("por/cex: Wait1Alternatives requires a wait1 event")
	}
	u := c.Unfolding()

	et := actual.ThreadPredecessor()
	if et == nil || et.IsCutoff() {
		return nil
	}

	var condCreate *event.Event
	cb := comb.New()
	for _, p := range actual.CondPredecessors() {
		if p.Kind() == por.CondCreate {
			condCreate = p
		} else {
			cb.Insert(p)
		}
	}

	var out []Candidate
	actualCone := actual.Cone()

	cb.ConcurrentCombinations(func(m []*event.Event) bool {
		members := append([]*event.Event{et, condCreate}, m...)
		candidateCone := event.ConeOf(members...)

		cexFound := candidateCone.Len() != actualCone.Len()
		if !cexFound {
			for _, tid := range actualCone.Threads() {
				own, _ := actualCone.Get(tid)
				at, ok := candidateCone.Get(tid)
				if ok && at.LessThan(own) {
					cexFound = true
					break
				}
			}
		}
		if !cexFound {
			return true
		}

		n := append([]*event.Event(nil), m...)
		if condCreate != nil {
			n = append(n, condCreate)
		}
		built := event.NewWait1(et, actual.LockPredecessor(), n, actual.CondID(), actual.LockID())
		out = append(out, register(u, built, "alternative wait1 predecessor set"))
		return true
	})

	return out
}

// NotificationAlternatives enumerates the conflicting extensions of a
// signal or broadcast event actual on condition cid, across three
// families: lost notifications (actual's comb of concurrent
// notification-relevant events wakes nobody), alternative signal
// targets (a different single outstanding waiter is woken instead),
// and alternative broadcast subsets (a different, non-maximal set of
// still-outstanding waiters is woken instead). This is
// cex_notification.
func NotificationAlternatives(c *configuration.Configuration, actual *event.Event, cid por.CondId) []Candidate {
	if actual.Kind() != por.Signal && actual.Kind() != por.Broadcast {
		panic("por/cex: NotificationAlternatives requires a signal or broadcast event")
	}
	u := c.Unfolding()

	et := actual.ThreadPredecessor()
	if et == nil || et.IsCutoff() {
		return nil
	}

	maxComb := comb.New()
	for _, p := range actual.CondPredecessors() {
		if p.Tid().Equal(actual.Tid()) || p.LessThan(et) {
			continue
		}
		maxComb.Insert(p)
	}
	maxSet := maxComb.Max()

	bigComb := comb.New()
	wait1Comb := comb.New()
	var condCreate *event.Event
	for _, head := range c.ThreadHeads() {
		for pred := head; pred != nil; pred = pred.ThreadPredecessor() {
			if pred.Tid().Equal(actual.Tid()) {
				break
			}
			if actual.LessThan(pred) {
				break
			}
			if pred.LessThan(et) {
				break
			}
			if pred.CondID() != cid {
				continue
			}
			if pred.Kind() == por.CondCreate {
				condCreate = pred
			} else if pred.Kind() != por.Wait2 {
				bigComb.Insert(pred)
				if pred.Kind() == por.Wait1 {
					wait1Comb.Insert(pred)
				}
			}
		}
	}

	var out []Candidate

	bigComb.ConcurrentCombinations(func(m []*event.Event) bool {
		if sameAsMax(m, maxSet) {
			return true
		}

		if len(m) == 1 && m[0].Kind() == por.Broadcast {
			if m[0].IsLost() {
				return true
			}
		} else {
			for _, mm := range m {
				if mm.Kind() != por.Signal || mm.IsLost() {
					return true
				}
			}
		}

		mEt := append(append([]*event.Event(nil), m...), et)
		if len(outstandingWait1(cid, event.ConeOf(mEt...))) != 0 {
			return true
		}

		var n []*event.Event
		for _, mm := range m {
			switch mm.Kind() {
			case por.Broadcast:
				if mm.IsLost() {
					continue
				}
				if mm.IsNotifyingThread(actual.Tid()) {
					continue
				}
			case por.Signal:
				if mm.IsLost() {
					continue
				}
				if mm.Notifies().Tid().Equal(actual.Tid()) {
					continue
				}
			default:
				continue
			}
			n = append(n, mm)
		}
		if condCreate != nil {
			n = append(n, condCreate)
		}

		var built *event.Event
		if actual.Kind() == por.Signal {
			built = event.NewSignal(et, nil, n, cid)
		} else {
			built = event.NewBroadcast(et, nil, n, cid)
		}
		out = append(out, register(u, built, "lost notification"))
		return true
	})

	if actual.Kind() == por.Signal {
		w := append([]*event.Event(nil), outstandingWait1(cid, et.Cone())...)
		for _, tid := range wait1Comb.Threads() {
			w = append(w, wait1Comb.Tooth(tid)...)
		}
		for _, waiter := range w {
			if waiter == actual.Notifies() {
				continue
			}
			built := event.NewSignal(et, waiter, nil, cid)
			out = append(out, register(u, built, "alternative signal target"))
		}
	}

	if actual.Kind() == por.Broadcast {
		bigComb.ConcurrentCombinations(func(m []*event.Event) bool {
			if sameAsMax(m, maxSet) {
				return true
			}
			for _, mm := range m {
				if mm.Kind() != por.Wait1 {
					return true
				}
			}
			mEt := append(append([]*event.Event(nil), m...), et)
			if len(outstandingWait1(cid, event.ConeOf(mEt...))) == 0 {
				return true
			}
			n := append([]*event.Event(nil), m...)
			built := event.NewBroadcast(et, n, nil, cid)
			out = append(out, register(u, built, "alternative broadcast subset"))
			return true
		})
	}

	return out
}

// sameAsMax reports whether m, as a set, is causally no smaller than
// max: every element of m is either in max or causally at-or-after
// every element of max it could be compared to. Used to skip
// combinations that only reproduce the maximal set actual was already
// built from.
func sameAsMax(m []*event.Event, max map[string]*event.Event) bool {
	if len(m) != len(max) {
		return false
	}
	for _, mm := range m {
		for _, x := range max {
			if mm.LessThan(x) {
				return false
			}
		}
	}
	return true
}

// outstandingWait1 collects the wait1 events on cid within cone that
// have not yet been notified: walking each thread's maximal cone
// entry backward, a non-lost signal or broadcast on cid removes the
// wait1(s) it targets from the result, stopping each thread's walk
// once its depth drops below the shallowest remaining wait1.
func outstandingWait1(cid por.CondId, cone event.Cone) []*event.Event {
	var wait1s []*event.Event
	cone.Range(func(_ por.ThreadId, e *event.Event) bool {
		if e.Kind() == por.Wait1 && e.CondID() == cid {
			wait1s = append(wait1s, e)
		}
		return true
	})
	if len(wait1s) == 0 {
		return nil
	}
	sortByDepth(wait1s)

	removeExact := func(target *event.Event) {
		for i, w := range wait1s {
			if w == target {
				wait1s = append(wait1s[:i], wait1s[i+1:]...)
				return
			}
		}
	}
	removeMatching := func(tid por.ThreadId, depth uint64) {
		for i, w := range wait1s {
			if w.Tid().Equal(tid) && w.Depth() == depth {
				wait1s = append(wait1s[:i], wait1s[i+1:]...)
				return
			}
		}
	}

	cone.Range(func(_ por.ThreadId, head *event.Event) bool {
		for cur := head; cur != nil; cur = cur.ThreadPredecessor() {
			if len(wait1s) == 0 {
				break
			}
			if cur.Depth() < wait1s[0].Depth() {
				break
			}
			switch cur.Kind() {
			case por.Signal:
				if cur.CondID() != cid || cur.IsLost() {
					continue
				}
				removeExact(cur.Notifies())
			case por.Broadcast:
				if cur.CondID() != cid || cur.IsLost() {
					continue
				}
				for _, w := range cur.NotifySet() {
					removeMatching(w.Tid(), w.Depth())
				}
			}
		}
		return true
	})
	return wait1s
}

func sortByDepth(events []*event.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Depth() < events[j-1].Depth(); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

// Enumerate dispatches actual — a candidate event not yet committed —
// to the matching kind-directed enumerator, given c as it stood
// immediately before actual was chosen. Kinds with no registered
// alternative family (thread lifecycle, lock create/destroy/release,
// cond create/destroy, local) return nil. When unknownOnly is true,
// only candidates with no successors of their own yet and not marked
// cutoff are returned.
func Enumerate(c *configuration.Configuration, actual *event.Event, unknownOnly bool) []Candidate {
	var out []Candidate
	switch actual.Kind() {
	case por.LockAcquire, por.Wait2:
		out = AcquireAlternatives(c, actual)
	case por.Wait1:
		out = Wait1Alternatives(c, actual)
	case por.Signal, por.Broadcast:
		out = NotificationAlternatives(c, actual, actual.CondID())
	}
	if !unknownOnly {
		return out
	}
	filtered := out[:0]
	for _, cand := range out {
		if !cand.Event.HasSuccessors() && !cand.Event.IsCutoff() {
			filtered = append(filtered, cand)
		}
	}
	return filtered
}

// DeadlockCandidates enumerates the alternative lock acquisitions that
// could unblock a detected deadlock: one per blocked thread able to
// acquire lid from the configuration's live state. These are offered
// directly to the scheduler and are not registered in the unfolding,
// since a deadlock alternative may never be taken.
func DeadlockCandidates(c *configuration.Configuration, blocked []por.ThreadId, lid por.LockId) []Candidate {
	var out []Candidate
	for _, tid := range blocked {
		ext, err := c.AcquireLock(tid, lid)
		if err != nil {
			continue
		}
		out = append(out, liveCandidate(ext.Event(), "deadlock: alternative acquirer of lock "+strconv.FormatUint(uint64(lid), 10)))
	}
	return out
}
