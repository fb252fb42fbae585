// Package csd bounds exploration by context-switch depth: the number
// of times consecutive steps of a schedule run on different threads.
package csd

import "github.com/wbrown/janus-por/por"

// ComputeCSD counts the context switches in an advancement vector: the
// number of adjacent positions whose thread id differs. This is the
// exhaustive, whole-vector definition used as ground truth for
// Tracker's incremental bound.
func ComputeCSD(vector []por.ThreadId) int {
	switches := 0
	for i := 1; i < len(vector); i++ {
		if !vector[i].Equal(vector[i-1]) {
			switches++
		}
	}
	return switches
}

// Tracker computes the same quantity incrementally, as a schedule is
// built step by step, so a branch-and-bound search can prune a branch
// the moment its running count exceeds the configured limit without
// re-scanning the whole vector so far.
type Tracker struct {
	limit   int
	last    por.ThreadId
	hasLast bool
	count   int
}

// NewTracker builds a Tracker bounding context-switch depth at limit.
// A negative limit means unbounded.
func NewTracker(limit int) *Tracker {
	return &Tracker{limit: limit}
}

// Advance records that tid ran next. It returns false if doing so
// would push the running context-switch count above the tracker's
// limit — in which case the count is NOT updated, so the caller can
// try a different next thread from the same state.
func (t *Tracker) Advance(tid por.ThreadId) bool {
	switchesHere := 0
	if t.hasLast && !t.last.Equal(tid) {
		switchesHere = 1
	}
	if t.limit >= 0 && t.count+switchesHere > t.limit {
		return false
	}
	t.count += switchesHere
	t.last = tid
	t.hasLast = true
	return true
}

// CSD returns the context-switch count accumulated so far.
func (t *Tracker) CSD() int { return t.count }

// IsAboveLimit reports whether advancing to tid next would exceed the
// tracker's limit, without mutating the tracker (a pure lookahead used
// by search code that wants to try several candidates before
// committing to one).
func (t *Tracker) IsAboveLimit(tid por.ThreadId) bool {
	if t.limit < 0 {
		return false
	}
	switchesHere := 0
	if t.hasLast && !t.last.Equal(tid) {
		switchesHere = 1
	}
	return t.count+switchesHere > t.limit
}

// Clone returns an independent copy of the tracker's state, for
// branch-and-bound search code that needs to try several continuations
// from the same point.
func (t *Tracker) Clone() *Tracker {
	cp := *t
	return &cp
}
