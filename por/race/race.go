// Package race detects data races between memory accesses attributed
// to events of the unfolding, using a per-thread epoch index plus an
// optional SMT solver for symbolic addresses.
package race

import (
	"fmt"
	"log"

	"github.com/cespare/xxhash/v2"

	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/solver"
)

// AccessKind distinguishes a read from a write, since read/read pairs
// never race.
type AccessKind uint8

const (
	Read AccessKind = iota
	Write
)

// Access records one memory operation attributed to an event.
type Access struct {
	Event   *event.Event
	Kind    AccessKind
	Address solver.Expr // concrete or symbolic address
	IsAlloc bool         // true for the allocating write of this memory
	IsFree  bool         // true for the freeing access of this memory
}

// EpochMemoryAccesses tracks, per thread, the most recent access to
// each distinct memory location observed so far, so a new access can
// be compared only against the other threads' latest touch rather than
// the full history.
type EpochMemoryAccesses struct {
	// latest[fingerprint][thread] is the most recent access by that
	// thread to the memory location identified by fingerprint.
	latest map[uint64]map[string]Access
}

// NewEpochMemoryAccesses returns an empty tracker.
func NewEpochMemoryAccesses() *EpochMemoryAccesses {
	return &EpochMemoryAccesses{latest: make(map[uint64]map[string]Access)}
}

// Fingerprint computes a rolling hash identifying a memory location
// from its symbolic/concrete address description, using the same
// hash the rest of the corpus uses for content addressing.
func Fingerprint(seed uint64, addressLabel string) uint64 {
	h := xxhash.New()
	var seedBytes [8]byte
	for i := 0; i < 8; i++ {
		seedBytes[i] = byte(seed >> (8 * i))
	}
	h.Write(seedBytes[:])
	h.Write([]byte(addressLabel))
	return h.Sum64()
}

// TrackAccess records a new access to the memory location identified
// by fingerprint, returning the prior accesses (one per other thread)
// it should be checked against for a race.
func (m *EpochMemoryAccesses) TrackAccess(fingerprint uint64, a Access) []Access {
	byThread, ok := m.latest[fingerprint]
	if !ok {
		byThread = make(map[string]Access)
		m.latest[fingerprint] = byThread
	}
	var others []Access
	tidKey := a.Event.Tid().String()
	for thread, prior := range byThread {
		if thread != tidKey {
			others = append(others, prior)
		}
	}
	byThread[tidKey] = a
	return others
}

// Detector runs IsRace over every pair an EpochMemoryAccesses tracker
// surfaces, delegating symbolic disequality decisions to a Solver.
type Detector struct {
	tracker *EpochMemoryAccesses
	solver  solver.Solver
}

// NewDetector builds a Detector. A nil Solver defaults to
// solver.NopSolver{}.
func NewDetector(s solver.Solver) *Detector {
	if s == nil {
		s = solver.NopSolver{}
	}
	return &Detector{tracker: NewEpochMemoryAccesses(), solver: s}
}

// Race is one (prior, new) access pair flagged by IsRace, carrying the
// same fields as RaceResult: whether it's a hard race or
// one that could still be proven safe, the thread and event the race
// was found against, and a derived constraint a caller can fold into
// its path condition going forward.
type Race struct {
	A, B              Access
	Reason            string
	CanBeSafe         bool
	ConditionToBeSafe string       // non-empty when CanBeSafe: "A.Address != B.Address"
	RacingThread      string       // A.Event.Tid().String()
	RacingInstruction *event.Event // A.Event
	NewConstraints    []string     // safe conditions collected so far in this Observe call, from proven-safe and ambiguous pairs (this one included)
}

// Observe tracks a new access and returns every race it forms with a
// prior access on a different thread. The causal relation is consulted
// first: events already ordered by ≤ are never reported as racing. A
// pair whose solver query timed out is never reported as a race
// either — isRace returned an absent result, which this layer treats
// as assume safe, after logging a warning so the omission isn't
// silent.
func (d *Detector) Observe(fingerprint uint64, a Access) []Race {
	priors := d.tracker.TrackAccess(fingerprint, a)
	var races []Race
	var constraints []string
	for _, prior := range priors {
		if !event.Concurrent(prior.Event, a.Event) {
			continue
		}
		v := d.isRace(prior, a)
		if v.timedOut {
			log.Printf("race: solver timed out on %v vs %v; assuming safe", prior.Address, a.Address)
			continue
		}
		if v.safeCondition != "" {
			constraints = append(constraints, v.safeCondition)
		}
		if !v.isRace {
			continue
		}
		races = append(races, Race{
			A:                 prior,
			B:                 a,
			Reason:            v.reason,
			CanBeSafe:         v.canBeSafe,
			ConditionToBeSafe: v.safeCondition,
			RacingThread:      prior.Event.Tid().String(),
			RacingInstruction: prior.Event,
			NewConstraints:    append([]string(nil), constraints...),
		})
	}
	return races
}

// raceVerdict is isRace's result: a definite decision, or timedOut
// when a solver query's budget was exhausted before reaching one.
// Absent is represented here as timedOut since the caller's response
// to it — assume safe, warn — doesn't depend on which query timed
// out.
type raceVerdict struct {
	reason        string
	isRace        bool
	canBeSafe     bool
	safeCondition string
	timedOut      bool
}

// isRace implements the decision ladder: cheap syntactic checks first,
// solver queries only as a last resort. The returned safe condition is
// non-empty exactly when the pair resolved to "safe, derived
// disequality" or "ambiguous, condition to stay safe" — both cases a
// caller may want to remember.
func (d *Detector) isRace(a, b Access) raceVerdict {
	if a.Kind == Read && b.Kind == Read {
		return raceVerdict{}
	}
	if a.IsAlloc || a.IsFree || b.IsAlloc || b.IsFree {
		return raceVerdict{reason: "use after free/alloc boundary", isRace: true}
	}
	if a.Address == b.Address {
		return raceVerdict{reason: "syntactically identical address", isRace: true}
	}
	if av, aok := d.solver.GetValue(a.Address); aok {
		if bv, bok := d.solver.GetValue(b.Address); bok {
			if av != bv {
				return raceVerdict{}
			}
			return raceVerdict{reason: "constant addresses coincide", isRace: true}
		}
	}
	disequality := fmt.Sprintf("%v != %v", a.Address, b.Address)
	mustBeFalse, ok := d.solver.MustBeFalse(a.Address, b.Address)
	if !ok {
		return raceVerdict{timedOut: true}
	}
	if mustBeFalse {
		return raceVerdict{safeCondition: disequality}
	}
	mustBeTrue, ok := d.solver.MustBeTrue(a.Address, b.Address)
	if !ok {
		return raceVerdict{timedOut: true}
	}
	if mustBeTrue {
		return raceVerdict{reason: "addresses provably equal", isRace: true}
	}
	mayBeTrue, ok := d.solver.MayBeTrue(a.Address, b.Address)
	if !ok {
		return raceVerdict{timedOut: true}
	}
	if mayBeTrue {
		return raceVerdict{reason: "addresses may be equal", isRace: true, canBeSafe: true, safeCondition: disequality}
	}
	return raceVerdict{}
}
