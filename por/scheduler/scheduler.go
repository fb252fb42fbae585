// Package scheduler provides the glue between an interpreter and the
// rest of the engine: choosing which runnable thread to advance next,
// detecting deadlock, and driving the catch-up replay that seeds a
// fresh branch from a conflicting extension. None of this package's
// core algorithms live here — it only orchestrates por/configuration,
// por/cex, por/csd, and por/race without implementing any of them
// itself.
package scheduler

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/cex"
	"github.com/wbrown/janus-por/por/configuration"
	"github.com/wbrown/janus-por/por/csd"
	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/race"
	"github.com/wbrown/janus-por/por/unfolding"
)

// Operation names the kind of step a thread is about to take, for
// trace/diagnostic purposes only. The instruction-level decision of
// exactly which EventKind to build, and with what arguments, belongs
// to the interpreter, which is why this carries only the kind and the
// resource ids involved, not a full Event.
type Operation struct {
	Kind   por.EventKind
	LockID por.LockId
	CondID por.CondId
}

// Policy selects which runnable thread a Scheduler advances next,
// matching the four --thread-scheduling choices.
type Policy int

const (
	First Policy = iota
	Last
	RoundRobin
	Random
)

// ParsePolicy parses the --thread-scheduling flag value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "first":
		return First, nil
	case "last":
		return Last, nil
	case "round-robin":
		return RoundRobin, nil
	case "random":
		return Random, nil
	default:
		return First, fmt.Errorf("por/scheduler: unknown thread-scheduling policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case First:
		return "first"
	case Last:
		return "last"
	case RoundRobin:
		return "round-robin"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// ScheduleTree records which terminal events a branch has already
// explored. Commit and CatchUp do not consult it: a caller that skips
// re-running cex.Enumerate on an already-explored event checks Explored
// itself. Event identity is a valid
// key here because the unfolding deduplicates structurally-equal events
// to a single pointer.
type ScheduleTree struct {
	explored map[*event.Event]bool
}

// NewScheduleTree returns an empty ScheduleTree.
func NewScheduleTree() *ScheduleTree {
	return &ScheduleTree{explored: make(map[*event.Event]bool)}
}

// MarkExplored records that every conflicting extension reachable from
// e has been enumerated at least once.
func (t *ScheduleTree) MarkExplored(e *event.Event) { t.explored[e] = true }

// Explored reports whether MarkExplored(e) has already been called.
func (t *ScheduleTree) Explored(e *event.Event) bool { return t.explored[e] }

// Scheduler orchestrates one exploration branch: a Configuration, the
// policy used to pick its next runnable thread, the trace Context it
// reports decisions to, an optional CSD bound, and an optional race
// detector.
type Scheduler struct {
	Cfg      *configuration.Configuration
	Policy   Policy
	Trace    Context
	CSDLimit int // negative = unlimited
	Race     *race.Detector // nil disables race detection

	Tree *ScheduleTree

	rng *rand.Rand
	rr  int
}

// New builds a Scheduler. trace may be nil, in which case BaseContext
// is used.
func New(cfg *configuration.Configuration, policy Policy, trace Context, csdLimit int) *Scheduler {
	if trace == nil {
		trace = BaseContext{}
	}
	return &Scheduler{
		Cfg:      cfg,
		Policy:   policy,
		Trace:    trace,
		CSDLimit: csdLimit,
		Tree:     NewScheduleTree(),
		rng:      rand.New(rand.NewSource(1)),
	}
}

// ChooseNext selects the next runnable thread per s.Policy. The second
// return value is false if no thread is runnable.
func (s *Scheduler) ChooseNext() (por.ThreadId, bool) {
	runnable := s.Cfg.RunnableThreads()
	if len(runnable) == 0 {
		return por.ThreadId{}, false
	}
	switch s.Policy {
	case Last:
		return runnable[len(runnable)-1], true
	case RoundRobin:
		idx := s.rr % len(runnable)
		s.rr++
		return runnable[idx], true
	case Random:
		return runnable[s.rng.Intn(len(runnable))], true
	default: // First
		return runnable[0], true
	}
}

// DetectDeadlock reports every active thread when none is runnable.
// It returns nil when the configuration is not deadlocked.
func (s *Scheduler) DetectDeadlock() []por.ThreadId {
	if len(s.Cfg.RunnableThreads()) > 0 {
		return nil
	}
	active := s.Cfg.ActiveThreads()
	if len(active) == 0 {
		return nil
	}
	s.Trace.DeadlockDetected(active)
	return active
}

// DeadlockAlternatives surfaces the conflicting extensions that could
// unblock a detected deadlock on lid.
func (s *Scheduler) DeadlockAlternatives(blocked []por.ThreadId, lid por.LockId) []cex.Candidate {
	return cex.DeadlockCandidates(s.Cfg, blocked, lid)
}

// Commit applies ext, first checking it against the CSD bound. Because an Extension's candidate
// event is not registered in the Unfolding until Commit runs, rejecting
// it here is equivalent to the original's "the event is removed from
// the unfolding": there is nothing to unregister, since it was never
// registered.
func (s *Scheduler) Commit(ext *configuration.Extension) (*event.Event, error) {
	if s.CSDLimit >= 0 && csd.EventIsAboveLimit(ext.Event(), s.CSDLimit) {
		return nil, fmt.Errorf("por/scheduler: event %s exceeds context-switch-depth limit %d", ext.Event(), s.CSDLimit)
	}
	committed, err := ext.Commit()
	if err != nil {
		return nil, err
	}
	s.Trace.EventCommitted(committed)
	return committed, nil
}

// Replay rebuilds a fresh Configuration sharing u by re-issuing every
// non-root event of prefix, in depth order, through Configuration's
// operations. Because Unfolding.Deduplicate
// collapses structurally identical events to the same object, replaying events that already exist in u only rebuilds the new
// Configuration's bookkeeping; it does not create duplicate events.
func Replay(u *unfolding.Unfolding, prefix []*event.Event) (*configuration.Configuration, error) {
	sorted := append([]*event.Event(nil), prefix...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Depth() < sorted[j].Depth() })

	cfg := configuration.New(u)
	for _, e := range sorted {
		if e.Kind() == por.ProgramInit {
			continue
		}
		if err := replayOne(cfg, e); err != nil {
			return nil, fmt.Errorf("por/scheduler: replay %s: %w", e, err)
		}
	}
	return cfg, nil
}

// replayOne re-issues a single event's originating Configuration call.
// Arguments that name another already-existing event (join targets,
// wait/notify pairs) are passed through as the original pointers: they
// belong to the shared unfolding and never need to be re-derived.
func replayOne(cfg *configuration.Configuration, e *event.Event) error {
	var (
		ext *configuration.Extension
		err error
	)
	switch e.Kind() {
	case por.ThreadCreate:
		// NewThreadCreate does not retain the spawned thread's id
		// (event/build.go): any placeholder reproduces the identical
		// event, since dedup only compares kind/thread/depth/predecessors.
		ext, err = cfg.CreateThread(e.Tid(), e.Tid())
	case por.ThreadInit:
		ext, err = cfg.InitThread(e.Tid(), e.Creator())
	case por.ThreadExit:
		ext, err = cfg.ExitThread(e.Tid())
	case por.ThreadJoin:
		ext, err = cfg.JoinThread(e.Tid(), e.JoinTarget().Tid())
	case por.LockCreate:
		ext, err = cfg.CreateLock(e.Tid(), e.LockID())
	case por.LockDestroy:
		ext, err = cfg.DestroyLock(e.Tid(), e.LockID())
	case por.LockAcquire:
		ext, err = cfg.AcquireLock(e.Tid(), e.LockID())
	case por.LockRelease:
		ext, err = cfg.ReleaseLock(e.Tid(), e.LockID())
	case por.CondCreate:
		ext, err = cfg.CreateCond(e.Tid(), e.CondID())
	case por.CondDestroy:
		ext, err = cfg.DestroyCond(e.Tid(), e.CondID())
	case por.Wait1:
		ext, err = cfg.Wait1(e.Tid(), e.LockID(), e.CondID())
	case por.Wait2:
		wait1 := e.CondPredecessors()[0]
		ext, err = cfg.Wait2(e.Tid(), wait1, e.Notifier(), e.LockID(), e.CondID())
	case por.Signal:
		ext, err = cfg.SignalThread(e.Tid(), e.CondID(), e.Notifies())
	case por.Broadcast:
		ext, err = cfg.BroadcastThreads(e.Tid(), e.CondID(), e.NotifySet())
	case por.Local:
		ext, err = cfg.Local(e.Tid(), e.LocalPathBits())
	default:
		return fmt.Errorf("unhandled event kind %s", e.Kind())
	}
	if err != nil {
		return err
	}
	_, err = ext.Commit()
	return err
}

// CatchUp enumerates the conflicting extensions of actual — a candidate
// about to be committed into cfg — and, for each alternative, builds
// the fresh branch Configuration that replaying its local configuration
// produces, running the independent replays concurrently across pool's
// workers. Call this
// before committing actual, since cex.Enumerate reads cfg as it stood
// prior to actual.
func CatchUp(cfg *configuration.Configuration, actual *event.Event, pool *WorkerPool, unknownOnly bool) ([]*configuration.Configuration, error) {
	candidates := cex.Enumerate(cfg, actual, unknownOnly)
	if len(candidates) == 0 {
		return nil, nil
	}
	events := make([]*event.Event, len(candidates))
	for i, c := range candidates {
		events[i] = c.Event
	}
	return pool.Run(events, func(e *event.Event) (*configuration.Configuration, error) {
		return Replay(cfg.Unfolding(), e.LocalConfiguration(true))
	})
}

// Access records a memory access attributed to the configuration's
// current thread, forwarding to s.Race and returning nil when race
// detection is disabled (--enable-race-detection not set).
func (s *Scheduler) Access(fingerprint uint64, a race.Access) []race.Race {
	if s.Race == nil {
		return nil
	}
	return s.Race.Observe(fingerprint, a)
}
