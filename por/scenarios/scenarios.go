// Package scenarios builds the concrete example programs of the
// concurrency-exploration demo set run by cmd/porexplore. Each
// builder commits a linear
// history into a fresh Unfolding/Configuration pair the caller can then
// analyze (enumerate conflicting extensions, compute CSD, check races).
package scenarios

import (
	"fmt"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/configuration"
	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/race"
	"github.com/wbrown/janus-por/por/unfolding"
)

// Result bundles a scenario's backing unfolding, its final committed
// configuration, and the thread ids the scenario used, so callers don't
// need to recompute them.
type Result struct {
	Unfolding *unfolding.Unfolding
	Cfg       *configuration.Configuration
	Main      por.ThreadId
	Other     por.ThreadId
	Final     *event.Event
}

func must(ext *configuration.Extension, err error) *event.Event {
	if err != nil {
		panic(fmt.Sprintf("por/scenarios: %v", err))
	}
	e, err := ext.Commit()
	if err != nil {
		panic(fmt.Sprintf("por/scenarios: commit: %v", err))
	}
	return e
}

func spawnMainAndOther(c *configuration.Configuration) (por.ThreadId, por.ThreadId) {
	main := por.RootThreadId()
	must(c.InitThread(main, c.Unfolding().Root()))
	other := por.NewThreadId(2)
	createEvent := must(c.CreateThread(main, other))
	must(c.InitThread(other, createEvent))
	return main, other
}

// TwoThreadsNoContention builds scenario 1: main creates T,
// both acquire a disjoint lock, release, and exit. The unfolding ends
// up with exactly one lock_acquire per (thread, lock) and no
// conflicting extensions over the final configuration, since the two
// threads never touch the same resource.
func TwoThreadsNoContention() Result {
	u := unfolding.New()
	c := configuration.New(u)
	main, other := spawnMainAndOther(c)

	const l1, l2 por.LockId = 1, 2
	must(c.CreateLock(main, l1))
	must(c.CreateLock(other, l2))

	must(c.AcquireLock(main, l1))
	must(c.AcquireLock(other, l2))
	must(c.ReleaseLock(main, l1))
	final := must(c.ReleaseLock(other, l2))

	must(c.ExitThread(main))
	final = must(c.ExitThread(other))

	return Result{Unfolding: u, Cfg: c, Main: main, Other: other, Final: final}
}

// TwoThreadsContendingLock builds scenario 2: main creates
// T, and each of them runs acquire(L); release(L) once, committed in
// the order Main_acq, Main_rel, T_acq, T_rel.
func TwoThreadsContendingLock() Result {
	u := unfolding.New()
	c := configuration.New(u)
	main, other := spawnMainAndOther(c)

	const lid por.LockId = 1
	must(c.CreateLock(main, lid))

	must(c.AcquireLock(main, lid))
	must(c.ReleaseLock(main, lid))
	must(c.AcquireLock(other, lid))
	final := must(c.ReleaseLock(other, lid))

	return Result{Unfolding: u, Cfg: c, Main: main, Other: other, Final: final}
}

// PendingAcquire rebuilds TwoThreadsContendingLock up to, but not
// including, main's acquire, returning the configuration and the
// not-yet-committed extension so callers can feed its event to
// cex.Enumerate and then commit it to continue the scenario. Main's
// acquire takes the lock straight from lock_create(L), which is already
// in main's own past, so cex.AcquireAlternatives finds no alternative
// for it; T's acquire is not built here.
func PendingAcquire() (*configuration.Configuration, *configuration.Extension) {
	u := unfolding.New()
	c := configuration.New(u)
	main, _ := spawnMainAndOther(c)

	const lid por.LockId = 1
	must(c.CreateLock(main, lid))

	ext, err := c.AcquireLock(main, lid)
	if err != nil {
		panic(fmt.Sprintf("por/scenarios: %v", err))
	}
	return c, ext
}

// SignalWait builds scenario 3: main creates T; T waits on
// C/L via wait1; main signals C targeting T; T completes the wait via
// wait2. After this, WasNotified(wait1) reports the signal event.
func SignalWait() Result {
	u := unfolding.New()
	c := configuration.New(u)
	main, other := spawnMainAndOther(c)

	const lid, cid = por.LockId(1), por.CondId(1)
	must(c.CreateLock(main, lid))
	must(c.CreateCond(main, cid))

	must(c.AcquireLock(other, lid))
	wait1 := must(c.Wait1(other, lid, cid))
	signal := must(c.SignalThread(main, cid, wait1))
	final := must(c.Wait2(other, wait1, signal, lid, cid))

	return Result{Unfolding: u, Cfg: c, Main: main, Other: other, Final: final}
}

// LostNotification builds scenario 4: main signals C with no
// waiter present, so the signal is lost; a later wait1 from T must not
// retroactively make WasNotified true for the earlier signal.
func LostNotification() Result {
	u := unfolding.New()
	c := configuration.New(u)
	main, other := spawnMainAndOther(c)

	const lid, cid = por.LockId(1), por.CondId(1)
	must(c.CreateLock(main, lid))
	must(c.CreateCond(main, cid))

	must(c.SignalThread(main, cid, nil)) // lost: no waiter yet

	must(c.AcquireLock(other, lid))
	final := must(c.Wait1(other, lid, cid))

	return Result{Unfolding: u, Cfg: c, Main: main, Other: other, Final: final}
}

// DataRaceConcreteOffsets builds scenario 5: T1 writes *p at
// offset 0 while T2 reads *p at offset 0, with no synchronization
// between the two accesses, returning the two Access values ready to
// feed into a Detector.
func DataRaceConcreteOffsets() (a, b race.Access, result Result) {
	result = TwoThreadsNoContention()
	write := result.Cfg.Frontier(result.Main)
	read := result.Cfg.Frontier(result.Other)
	a = race.Access{Event: write, Kind: race.Write, Address: "0", IsAlloc: false, IsFree: false}
	b = race.Access{Event: read, Kind: race.Read, Address: "0", IsAlloc: false, IsFree: false}
	return a, b, result
}

// DataRaceSymbolicOffset builds scenario 6: T1 writes *p at
// symbolic offset i while T2 writes *p at symbolic offset j, with the
// path constraint i ≠ j left for the caller's solver to decide.
func DataRaceSymbolicOffset() (a, b race.Access, result Result) {
	result = TwoThreadsNoContention()
	write1 := result.Cfg.Frontier(result.Main)
	write2 := result.Cfg.Frontier(result.Other)
	a = race.Access{Event: write1, Kind: race.Write, Address: "i", IsAlloc: false, IsFree: false}
	b = race.Access{Event: write2, Kind: race.Write, Address: "j", IsAlloc: false, IsFree: false}
	return a, b, result
}

// CSDBound builds scenario 7's history: two threads and one lock,
// alternating acquire/release five times (main, T, main, T, main) so
// that each acquire after the first depends causally on the other
// thread's immediately preceding release. Unlike scenario 2's single
// acquire/release pair, which main and T can always realize by
// draining one thread fully before switching to the other at zero
// cost, this alternation cannot be drained without repeatedly
// switching back and forth: compute_csd/is_above_limit over its final
// event finds the bound's worked example of three preempting
// switches.
func CSDBound() Result {
	u := unfolding.New()
	c := configuration.New(u)
	main, other := spawnMainAndOther(c)

	const lid por.LockId = 1
	must(c.CreateLock(main, lid))

	acquireRelease := func(tid por.ThreadId) *event.Event {
		must(c.AcquireLock(tid, lid))
		return must(c.ReleaseLock(tid, lid))
	}

	acquireRelease(main)
	acquireRelease(other)
	acquireRelease(main)
	acquireRelease(other)
	final := acquireRelease(main)

	return Result{Unfolding: u, Cfg: c, Main: main, Other: other, Final: final}
}
