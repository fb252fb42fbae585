package configuration

import (
	"fmt"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
)

// Extension is a one-shot token wrapping a candidate event: building
// it does not mutate the configuration, only Commit does. Committing the same Extension twice, or committing a stale
// Extension built against an older generation, returns an error.
type Extension struct {
	c          *Configuration
	candidate  *event.Event
	generation uint64
	applied    bool
}

// Event returns the candidate event this Extension was built with. It
// is not deduplicated: Commit may store a pre-existing equal event of
// the unfolding in its place.
func (x *Extension) Event() *event.Event { return x.candidate }

// Commit admits the extension's event into the configuration. It
// returns the event as actually stored in the unfolding (which may be
// a pre-existing duplicate of the candidate built).
func (x *Extension) Commit() (*event.Event, error) {
	if x.applied {
		return nil, fmt.Errorf("por/configuration: extension already committed")
	}
	if x.generation != x.c.generation {
		return nil, fmt.Errorf("por/configuration: stale extension, configuration has moved on")
	}
	resolved, _ := x.c.u.Deduplicate(x.candidate)
	x.c.commit(resolved)
	x.applied = true
	x.c.generation++
	return resolved, nil
}

func (c *Configuration) newExtension(candidate *event.Event) *Extension {
	return &Extension{c: c, candidate: candidate, generation: c.generation}
}

// commit folds e's effects into the configuration's bookkeeping. It
// assumes e has already been reconciled against the unfolding.
func (c *Configuration) commit(e *event.Event) {
	c.included[e] = true
	key := e.Tid().String()
	c.frontier[key] = e

	switch e.Kind() {
	case por.ThreadExit:
		c.exited[key] = e
	case por.LockCreate, por.LockRelease:
		c.setLockHead(e.LockID(), e)
	case por.LockAcquire, por.Wait2:
		c.setLockHead(e.LockID(), e)
		delete(c.waitingLock, key)
	case por.LockDestroy:
		delete(c.lockHead, e.LockID())
	case por.CondCreate:
		c.condPend[e.CondID()] = nil
	case por.CondDestroy:
		delete(c.condPend, e.CondID())
	case por.Wait1:
		c.waitingCond[key] = e.CondID()
		c.condPend[e.CondID()] = append(c.condPend[e.CondID()], e)
		c.setLockHead(e.LockID(), e)
	case por.Signal:
		if e.Notifies() != nil {
			delete(c.waitingCond, e.Notifies().Tid().String())
		}
	case por.Broadcast:
		for _, w := range e.NotifySet() {
			delete(c.waitingCond, w.Tid().String())
		}
	}
}

// CreateThread builds an extension spawning newTid as a child of tid.
func (c *Configuration) CreateThread(tid por.ThreadId, newTid por.ThreadId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewThreadCreate(pred, newTid)), nil
}

// InitThread builds an extension for the first event of newTid,
// caused by the thread_create event creator (or program_init for the
// main thread).
func (c *Configuration) InitThread(newTid por.ThreadId, creator *event.Event) (*Extension, error) {
	if _, already := c.frontier[newTid.String()]; already {
		return nil, fmt.Errorf("por/configuration: thread %s already initialized", newTid)
	}
	return c.newExtension(event.NewThreadInit(newTid, creator)), nil
}

// ExitThread builds an extension ending tid.
func (c *Configuration) ExitThread(tid por.ThreadId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewThreadExit(pred)), nil
}

// JoinThread builds an extension for tid joining the already-exited
// target thread.
func (c *Configuration) JoinThread(tid, target por.ThreadId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	exit, exited := c.exited[target.String()]
	if !exited {
		return nil, fmt.Errorf("por/configuration: thread %s has not exited, cannot be joined", target)
	}
	return c.newExtension(event.NewThreadJoin(pred, exit)), nil
}

// CreateLock builds an extension creating lock lid on thread tid.
func (c *Configuration) CreateLock(tid por.ThreadId, lid por.LockId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	if _, exists := c.getLockHead(lid); exists {
		return nil, fmt.Errorf("por/configuration: lock %d already created", lid)
	}
	return c.newExtension(event.NewLockCreate(pred, lid)), nil
}

// DestroyLock builds an extension destroying lock lid on thread tid.
func (c *Configuration) DestroyLock(tid por.ThreadId, lid por.LockId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	head, _ := c.getLockHead(lid)
	return c.newExtension(event.NewLockDestroy(pred, head, lid)), nil
}

// AcquireLock builds an extension for tid acquiring lid. It fails if
// the lock is currently held (callers should consult CanAcquireLock
// before offering this as a runnable operation).
func (c *Configuration) AcquireLock(tid por.ThreadId, lid por.LockId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	if !c.CanAcquireLock(lid) {
		return nil, fmt.Errorf("por/configuration: lock %d is currently held", lid)
	}
	head, _ := c.getLockHead(lid)
	return c.newExtension(event.NewLockAcquire(pred, head, lid)), nil
}

// ReleaseLock builds an extension for tid releasing lid, which it must
// currently hold via its frontier event.
func (c *Configuration) ReleaseLock(tid por.ThreadId, lid por.LockId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	head, held := c.getLockHead(lid)
	if !held || (head.Kind() != por.LockAcquire && head.Kind() != por.Wait2) {
		return nil, fmt.Errorf("por/configuration: lock %d is not held", lid)
	}
	return c.newExtension(event.NewLockRelease(pred, head, lid)), nil
}

// CreateCond builds an extension creating condition variable cid.
func (c *Configuration) CreateCond(tid por.ThreadId, cid por.CondId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewCondCreate(pred, cid)), nil
}

// DestroyCond builds an extension destroying condition variable cid.
func (c *Configuration) DestroyCond(tid por.ThreadId, cid por.CondId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewCondDestroy(pred, c.condPend[cid], cid)), nil
}

// Wait1 builds an extension for tid releasing lid and blocking on cid.
func (c *Configuration) Wait1(tid por.ThreadId, lid por.LockId, cid por.CondId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	head, held := c.getLockHead(lid)
	if !held || (head.Kind() != por.LockAcquire && head.Kind() != por.Wait2) {
		return nil, fmt.Errorf("por/configuration: lock %d is not held, cannot wait on it", lid)
	}
	return c.newExtension(event.NewWait1(pred, head, c.condPend[cid], cid, lid)), nil
}

// Wait2 builds an extension for tid waking from wait1 via notifier and
// re-acquiring lid.
func (c *Configuration) Wait2(tid por.ThreadId, wait1, notifier *event.Event, lid por.LockId, cid por.CondId) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	head, _ := c.getLockHead(lid)
	return c.newExtension(event.NewWait2(pred, head, wait1, notifier, cid, lid)), nil
}

// SignalThread builds an extension for tid signaling condition cid,
// waking target (nil for a lost signal).
func (c *Configuration) SignalThread(tid por.ThreadId, cid por.CondId, target *event.Event) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewSignal(pred, target, c.condPend[cid], cid)), nil
}

// BroadcastThreads builds an extension for tid broadcasting condition
// cid, waking every event in targets.
func (c *Configuration) BroadcastThreads(tid por.ThreadId, cid por.CondId, targets []*event.Event) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewBroadcast(pred, targets, c.condPend[cid], cid)), nil
}

// Local builds an extension for a branch/bookkeeping event carrying
// pathBits, on thread tid.
func (c *Configuration) Local(tid por.ThreadId, pathBits uint64) (*Extension, error) {
	pred, err := c.requireActive(tid)
	if err != nil {
		return nil, err
	}
	return c.newExtension(event.NewLocal(pred, pathBits)), nil
}

// PendingWaiters returns the wait1 events on cid still waiting for a
// notification in this configuration.
func (c *Configuration) PendingWaiters(cid por.CondId) []*event.Event {
	var out []*event.Event
	for _, e := range c.condPend[cid] {
		if e.Kind() == por.Wait1 && c.WasNotified(e) == nil {
			out = append(out, e)
		}
	}
	return out
}
