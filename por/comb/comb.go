// Package comb implements the per-thread event combs used to enumerate
// concurrent combinations of events across threads.
package comb

import (
	"sort"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
)

// Comb groups events by thread, each thread's events ("teeth") kept in
// depth order. It is the Go counterpart of comb.cpp's comb, used both
// to hold a cone's setminus result and to enumerate combinations of
// pairwise-concurrent events drawn from at most one event per thread.
type Comb struct {
	teeth map[string][]*event.Event
	order []por.ThreadId
}

// New returns an empty Comb.
func New() *Comb {
	return &Comb{teeth: make(map[string][]*event.Event)}
}

// FromSetminus builds a Comb from the per-thread grouping returned by
// Cone.Setminus, re-keyed by the threads' own ThreadId (Setminus only
// carries the string form).
func FromSetminus(grouped map[string][]*event.Event) *Comb {
	c := New()
	for _, events := range grouped {
		for _, e := range events {
			c.Insert(e)
		}
	}
	return c
}

// Insert adds e to its thread's tooth, keeping the tooth sorted by
// depth and deduplicated.
func (c *Comb) Insert(e *event.Event) {
	key := e.Tid().String()
	tooth, existed := c.teeth[key]
	if !existed {
		c.order = append(c.order, e.Tid())
	}
	for _, x := range tooth {
		if x == e {
			return
		}
	}
	tooth = append(tooth, e)
	sort.Slice(tooth, func(i, j int) bool { return tooth[i].Depth() < tooth[j].Depth() })
	c.teeth[key] = tooth
}

// Threads returns the threads with at least one tooth, in a
// deterministic order (insertion order of first sighting, then sorted
// for full determinism regardless of map iteration).
func (c *Comb) Threads() []por.ThreadId {
	out := append([]por.ThreadId(nil), c.order...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Tooth returns the ordered event list for tid, or nil if tid has none.
func (c *Comb) Tooth(tid por.ThreadId) []*event.Event {
	return c.teeth[tid.String()]
}

// Len returns the total number of events across all teeth.
func (c *Comb) Len() int {
	n := 0
	for _, t := range c.teeth {
		n += len(t)
	}
	return n
}

// NumThreads returns the number of distinct threads with a tooth.
func (c *Comb) NumThreads() int {
	return len(c.teeth)
}

// maxCombThreads mirrors comb.cpp's hard cap: concurrent_combinations
// enumerates subsets of threads via a bitmask, so the comb must fit in
// a single machine word's worth of bits.
const maxCombThreads = 63

// ConcurrentCombinations enumerates every non-empty selection of
// threads together with one event drawn from each selected thread's
// tooth, keeping only selections whose events are pairwise concurrent.
// filter is called once per valid combination; it returns false to
// stop the enumeration early.
//
// Panics if the comb holds more than maxCombThreads distinct threads,
// matching comb.cpp's correctness precondition (it asserts
// num_threads() < 64 before building its bitmask).
func (c *Comb) ConcurrentCombinations(filter func(combo []*event.Event) bool) {
	threads := c.Threads()
	if len(threads) > maxCombThreads {
		panic("por/comb: concurrent combinations require fewer than 64 threads in the comb")
	}
	if len(threads) == 0 {
		return
	}

	teeth := make([][]*event.Event, len(threads))
	for i, tid := range threads {
		teeth[i] = c.teeth[tid.String()]
	}

	var combo []*event.Event
	var recurse func(idx int) bool
	recurse = func(idx int) bool {
		if idx == len(teeth) {
			if len(combo) == 0 {
				return true
			}
			return filter(append([]*event.Event(nil), combo...))
		}
		// Skip this thread entirely (the empty choice for its slot).
		if !recurse(idx + 1) {
			return false
		}
		for _, candidate := range teeth[idx] {
			if !concurrentWithAll(candidate, combo) {
				continue
			}
			combo = append(combo, candidate)
			cont := recurse(idx + 1)
			combo = combo[:len(combo)-1]
			if !cont {
				return false
			}
		}
		return true
	}
	recurse(0)
}

func concurrentWithAll(candidate *event.Event, combo []*event.Event) bool {
	for _, x := range combo {
		if !event.Concurrent(candidate, x) {
			return false
		}
	}
	return true
}

// Max returns, per thread, the causally maximal event in that thread's
// tooth (the last element, since teeth are kept in depth order).
func (c *Comb) Max() map[string]*event.Event {
	out := make(map[string]*event.Event, len(c.teeth))
	for k, tooth := range c.teeth {
		if len(tooth) > 0 {
			out[k] = tooth[len(tooth)-1]
		}
	}
	return out
}
