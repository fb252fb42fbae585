package event

import "github.com/wbrown/janus-por/por"

// newEnvelope builds the common envelope (depth, cone, cutoff) for a
// new event out of its thread-predecessor (nil only for ProgramInit)
// and any further predecessors, mirroring the depth/cone invariants of
// original_source/lib/por/event.cpp's per-kind constructors.
func newEnvelope(kind por.EventKind, tid por.ThreadId, threadPred *Event, others ...*Event) *Event {
	if kind == por.ProgramInit {
		return &Event{kind: kind, tid: tid, depth: 0, cone: newCone()}
	}

	all := make([]*Event, 0, len(others)+1)
	if threadPred != nil {
		all = append(all, threadPred)
	}
	all = append(all, others...)

	e := &Event{
		kind:       kind,
		tid:        tid,
		depth:      maxDepth(all) + 1,
		cone:       coneFrom(threadPred, others...),
		threadPred: threadPred,
		isCutoff:   anyCutoff(all),
	}
	for _, p := range all {
		if p != nil && p.depth >= e.depth {
			panic("por/event: predecessor depth must be strictly less than new event's depth")
		}
	}
	return e
}

// NewProgramInit builds the unique root event of an unfolding. It has
// no predecessors and depth 0.
func NewProgramInit() *Event {
	return newEnvelope(por.ProgramInit, por.ThreadId{})
}

// NewThreadCreate builds a thread_create event: creator spawns a new
// thread (newTid), recorded on the creator's own thread.
func NewThreadCreate(creator *Event, newTid por.ThreadId) *Event {
	requireNonNil(creator, "thread_create requires a creator predecessor")
	e := newEnvelope(por.ThreadCreate, creator.tid, creator)
	_ = newTid // the spawned thread's id is carried by the matching ThreadInit, not this event
	return e
}

// NewThreadInit builds a thread_init event for tid. creator is the
// ThreadCreate event from the parent thread for a child thread, or the
// ProgramInit event for the main thread.
func NewThreadInit(tid por.ThreadId, creator *Event) *Event {
	requireNonNil(creator, "thread_init requires a creator predecessor")
	if creator.kind != por.ThreadCreate && creator.kind != por.ProgramInit {
		panic("por/event: thread_init's creator predecessor must be thread_create or program_init")
	}
	// thread_init has no same-thread predecessor: it is the first event
	// on tid. Its structural predecessor lives across threads, so build
	// the envelope without a thread-predecessor and fold the creator in
	// as an "other" predecessor instead.
	e := newEnvelope(por.ThreadInit, tid, nil, creator)
	e.creator = creator
	return e
}

// NewThreadExit builds a thread_exit event.
func NewThreadExit(threadPred *Event) *Event {
	requireNonNil(threadPred, "thread_exit requires a thread predecessor")
	return newEnvelope(por.ThreadExit, threadPred.tid, threadPred)
}

// NewThreadJoin builds a thread_join event: threadPred's thread joins
// the thread that exited via joinTarget.
func NewThreadJoin(threadPred, joinTarget *Event) *Event {
	requireNonNil(threadPred, "thread_join requires a thread predecessor")
	requireNonNil(joinTarget, "thread_join requires a join target")
	if joinTarget.kind != por.ThreadExit {
		panic("por/event: thread_join's target must be a thread_exit event")
	}
	e := newEnvelope(por.ThreadJoin, threadPred.tid, threadPred, joinTarget)
	e.joinTarget = joinTarget
	return e
}

// NewLockCreate builds a lock_create event.
func NewLockCreate(threadPred *Event, lid por.LockId) *Event {
	requireNonNil(threadPred, "lock_create requires a thread predecessor")
	e := newEnvelope(por.LockCreate, threadPred.tid, threadPred)
	e.lockID = lid
	return e
}

// NewLockDestroy builds a lock_destroy event. lockPred is the lock's
// current head event, or nil under optional-creation semantics for a
// lock that was never created.
func NewLockDestroy(threadPred, lockPred *Event, lid por.LockId) *Event {
	requireNonNil(threadPred, "lock_destroy requires a thread predecessor")
	e := newEnvelope(por.LockDestroy, threadPred.tid, threadPred, lockPred)
	e.lockPred = lockPred
	e.lockID = lid
	return e
}

// NewLockAcquire builds a lock_acquire event. lockPred is the lock
// event being superseded: lock_create, lock_release, wait1, or nil
// under optional-creation semantics.
func NewLockAcquire(threadPred, lockPred *Event, lid por.LockId) *Event {
	requireNonNil(threadPred, "lock_acquire requires a thread predecessor")
	e := newEnvelope(por.LockAcquire, threadPred.tid, threadPred, lockPred)
	e.lockPred = lockPred
	e.lockID = lid
	return e
}

// NewLockRelease builds a lock_release event. lockPred is normally the
// matching lock_acquire (or wait2) by the same thread.
func NewLockRelease(threadPred, lockPred *Event, lid por.LockId) *Event {
	requireNonNil(threadPred, "lock_release requires a thread predecessor")
	requireNonNil(lockPred, "lock_release requires a lock predecessor")
	e := newEnvelope(por.LockRelease, threadPred.tid, threadPred, lockPred)
	e.lockPred = lockPred
	e.lockID = lid
	return e
}

// NewCondCreate builds a cond_create event.
func NewCondCreate(threadPred *Event, cid por.CondId) *Event {
	requireNonNil(threadPred, "cond_create requires a thread predecessor")
	e := newEnvelope(por.CondCreate, threadPred.tid, threadPred)
	e.condID = cid
	return e
}

// NewCondDestroy builds a cond_destroy event. condPreds is the current
// set of heads tracked for the condition variable.
func NewCondDestroy(threadPred *Event, condPreds []*Event, cid por.CondId) *Event {
	requireNonNil(threadPred, "cond_destroy requires a thread predecessor")
	e := newEnvelope(por.CondDestroy, threadPred.tid, threadPred, condPreds...)
	e.condPreds = append([]*Event(nil), condPreds...)
	e.condID = cid
	return e
}

// NewWait1 builds a wait1 event: threadPred releases lockPred and
// blocks on condition cid, with condPreds the outstanding
// notification-relevant predecessors on that condition.
func NewWait1(threadPred, lockPred *Event, condPreds []*Event, cid por.CondId, lid por.LockId) *Event {
	requireNonNil(threadPred, "wait1 requires a thread predecessor")
	all := append([]*Event{lockPred}, condPreds...)
	e := newEnvelope(por.Wait1, threadPred.tid, threadPred, all...)
	e.lockPred = lockPred
	e.condPreds = append([]*Event(nil), condPreds...)
	e.condID = cid
	e.lockID = lid
	return e
}

// NewWait2 builds a wait2 event: threadPred was woken by notifier
// (matching its own earlier wait1) and re-acquires the lock via
// lockPred.
func NewWait2(threadPred, lockPred, wait1, notifier *Event, cid por.CondId, lid por.LockId) *Event {
	requireNonNil(threadPred, "wait2 requires a thread predecessor")
	requireNonNil(wait1, "wait2 requires its matching wait1")
	requireNonNil(notifier, "wait2 requires a notifying signal/broadcast")
	e := newEnvelope(por.Wait2, threadPred.tid, threadPred, lockPred, wait1, notifier)
	e.lockPred = lockPred
	e.condPreds = []*Event{wait1}
	e.notifier = notifier
	e.condID = cid
	e.lockID = lid
	return e
}

// NewSignal builds a signal event. notifies is the wait1 event it
// wakes, or nil for a lost signal. condPreds is the set of
// notification-relevant predecessors consulted to decide whether the
// signal is lost.
func NewSignal(threadPred *Event, notifies *Event, condPreds []*Event, cid por.CondId) *Event {
	requireNonNil(threadPred, "signal requires a thread predecessor")
	all := append([]*Event{notifies}, condPreds...)
	e := newEnvelope(por.Signal, threadPred.tid, threadPred, all...)
	e.notifies = notifies
	e.condPreds = append([]*Event(nil), condPreds...)
	e.condID = cid
	return e
}

// NewBroadcast builds a broadcast event waking every event in notifySet.
func NewBroadcast(threadPred *Event, notifySet []*Event, condPreds []*Event, cid por.CondId) *Event {
	requireNonNil(threadPred, "broadcast requires a thread predecessor")
	all := append(append([]*Event{}, notifySet...), condPreds...)
	e := newEnvelope(por.Broadcast, threadPred.tid, threadPred, all...)
	e.notifySet = append([]*Event(nil), notifySet...)
	e.condPreds = append([]*Event(nil), condPreds...)
	e.condID = cid
	return e
}

// NewLocal builds a local (branch) event carrying pathBits as its
// branch-history fingerprint.
func NewLocal(threadPred *Event, pathBits uint64) *Event {
	requireNonNil(threadPred, "local requires a thread predecessor")
	e := newEnvelope(por.Local, threadPred.tid, threadPred)
	e.localPathBits = pathBits
	return e
}

func requireNonNil(e *Event, msg string) {
	if e == nil {
		panic("por/event: " + msg)
	}
}

// IsLost reports whether a Signal or Broadcast event woke nobody.
func (e *Event) IsLost() bool {
	switch e.kind {
	case por.Signal:
		return e.notifies == nil
	case por.Broadcast:
		return len(e.notifySet) == 0
	default:
		panic("por/event: IsLost only applies to signal or broadcast events")
	}
}

// IsNotifyingThread reports whether this Broadcast notifies t.
func (e *Event) IsNotifyingThread(t por.ThreadId) bool {
	if e.kind != por.Broadcast {
		panic("por/event: IsNotifyingThread only applies to broadcast events")
	}
	for _, w := range e.notifySet {
		if w.tid.Equal(t) {
			return true
		}
	}
	return false
}
