// Package configuration implements a single conflict-free,
// downward-closed execution over an unfolding.
package configuration

import (
	"fmt"
	"sort"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/unfolding"
)

// Configuration tracks one execution: the set of committed events plus
// the bookkeeping (per-thread frontier, lock/condition state) needed
// to decide which operations are currently enabled.
type Configuration struct {
	u *unfolding.Unfolding

	included map[*event.Event]bool
	frontier map[string]*event.Event // thread -> latest committed event on it
	exited   map[string]*event.Event // thread -> its thread_exit event

	lockHead map[por.LockId]*event.Event // current lock_create/release/acquire/wait1/wait2 head
	condPend map[por.CondId][]*event.Event // wait1 events committed on each condition since its creation

	waitingLock map[string]por.LockId // thread -> lock it is blocked acquiring
	waitingCond map[string]por.CondId // thread -> condition it is blocked waiting on

	generation uint64 // bumped on every commit, used to invalidate stale Extensions
}

// New builds a Configuration containing only the unfolding's root.
func New(u *unfolding.Unfolding) *Configuration {
	c := &Configuration{
		u:           u,
		included:    map[*event.Event]bool{u.Root(): true},
		frontier:    make(map[string]*event.Event),
		exited:      make(map[string]*event.Event),
		lockHead:    make(map[por.LockId]*event.Event),
		condPend:    make(map[por.CondId][]*event.Event),
		waitingLock: make(map[string]por.LockId),
		waitingCond: make(map[string]por.CondId),
	}
	return c
}

// Unfolding returns the backing unfolding this configuration draws
// events from.
func (c *Configuration) Unfolding() *unfolding.Unfolding { return c.u }

// Includes reports whether e has been committed into this configuration.
func (c *Configuration) Includes(e *event.Event) bool { return c.included[e] }

// Frontier returns the latest committed event of tid, or nil if tid
// has not yet been initialized in this configuration.
func (c *Configuration) Frontier(tid por.ThreadId) *event.Event {
	return c.frontier[tid.String()]
}

// ActiveThreads returns every thread that has been initialized and has
// not yet exited, in ThreadId order.
func (c *Configuration) ActiveThreads() []por.ThreadId {
	var out []por.ThreadId
	for key, e := range c.frontier {
		if _, exited := c.exited[key]; exited {
			continue
		}
		out = append(out, e.Tid())
	}
	sortThreadIds(out)
	return out
}

// RunnableThreads returns the subset of ActiveThreads that are not
// currently blocked on a lock acquire or a condition wait.
func (c *Configuration) RunnableThreads() []por.ThreadId {
	var out []por.ThreadId
	for _, tid := range c.ActiveThreads() {
		key := tid.String()
		if _, blocked := c.waitingLock[key]; blocked {
			continue
		}
		if _, blocked := c.waitingCond[key]; blocked {
			continue
		}
		out = append(out, tid)
	}
	return out
}

// CanAcquireLock reports whether lid is currently free to acquire: it
// was never created (and the unfolding uses optional-creation
// semantics), or its head event is a create, release or wait1 (which
// gives the lock up) rather than a live acquire/wait2.
func (c *Configuration) CanAcquireLock(lid por.LockId) bool {
	head, ok := c.lockHead[lid]
	if !ok {
		return c.u.OptionalCreation()
	}
	switch head.Kind() {
	case por.LockCreate, por.LockRelease, por.Wait1:
		return true
	default:
		return false
	}
}

// WasNotified returns the signal or broadcast event that already
// wakes wait1 in this configuration, or nil if wait1 remains
// unnotified.
func (c *Configuration) WasNotified(wait1 *event.Event) *event.Event {
	if wait1.Kind() != por.Wait1 {
		panic("por/configuration: WasNotified requires a wait1 event")
	}
	for e := range c.included {
		switch e.Kind() {
		case por.Signal:
			if e.Notifies() == wait1 {
				return e
			}
		case por.Broadcast:
			if e.IsNotifyingThread(wait1.Tid()) {
				return e
			}
		}
	}
	return nil
}

// ThreadHeads returns the latest committed event of every thread this
// configuration has ever initialized, including exited threads, in
// ThreadId order. Conflicting-extension search walks these backward
// per thread to gather notification-relevant predecessors outside an
// event's immediate causal past (por/cex's cex_notification).
func (c *Configuration) ThreadHeads() []*event.Event {
	out := make([]*event.Event, 0, len(c.frontier))
	for _, e := range c.frontier {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tid().Less(out[j].Tid()) })
	return out
}

// Events returns every event this configuration has committed
// (excluding the unfolding's program_init root), in a deterministic
// depth-then-thread order.
func (c *Configuration) Events() []*event.Event {
	out := make([]*event.Event, 0, len(c.included))
	for e := range c.included {
		if e == c.u.Root() {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth() != out[j].Depth() {
			return out[i].Depth() < out[j].Depth()
		}
		if !out[i].Tid().Equal(out[j].Tid()) {
			return out[i].Tid().Less(out[j].Tid())
		}
		return out[i].Kind() < out[j].Kind()
	})
	return out
}

func (c *Configuration) setLockHead(lid por.LockId, e *event.Event) {
	c.lockHead[lid] = e
}

func (c *Configuration) getLockHead(lid por.LockId) (*event.Event, bool) {
	e, ok := c.lockHead[lid]
	return e, ok
}

func sortThreadIds(ids []por.ThreadId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func (c *Configuration) requireActive(tid por.ThreadId) (*event.Event, error) {
	e, ok := c.frontier[tid.String()]
	if !ok {
		return nil, fmt.Errorf("por/configuration: thread %s has not been initialized", tid)
	}
	if _, exited := c.exited[tid.String()]; exited {
		return nil, fmt.Errorf("por/configuration: thread %s has already exited", tid)
	}
	return e, nil
}
