package unfolding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
)

func TestNewSeedsRoot(t *testing.T) {
	u := New()
	assert.Equal(t, 1, u.Len())
	assert.Equal(t, por.ProgramInit, u.Root().Kind())
}

func TestDeduplicateCollapsesIdenticalEvents(t *testing.T) {
	u := New()
	create := event.NewThreadCreate(u.Root(), por.NewThreadId(1))
	create, _ = u.Deduplicate(create)

	t1 := event.NewThreadInit(por.NewThreadId(1), create)
	t1, added := u.Deduplicate(t1)
	require.True(t, added)

	t1Again := event.NewThreadInit(por.NewThreadId(1), create)
	resolved, added2 := u.Deduplicate(t1Again)
	assert.False(t, added2)
	assert.Same(t, t1, resolved)
}

func TestDeduplicatePropagatesCutoff(t *testing.T) {
	u := New()
	create := event.NewThreadCreate(u.Root(), por.NewThreadId(1))
	create, _ = u.Deduplicate(create)
	t1, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(1), create))
	assert.False(t, t1.IsCutoff())

	// Build a second, cutoff copy of the same logical event and
	// re-dedup it: the existing object should inherit the cutoff mark.
	cutoffCopy := event.NewThreadInit(por.NewThreadId(1), create)
	cutoffCopy.MarkAsCutoff()
	resolved, added := u.Deduplicate(cutoffCopy)
	assert.False(t, added)
	assert.Same(t, t1, resolved)
	assert.True(t, t1.IsCutoff())
}

func TestLockAcquireSharingLockPredecessorConflict(t *testing.T) {
	u := New()
	create1 := event.NewThreadCreate(u.Root(), por.NewThreadId(1))
	create1, _ = u.Deduplicate(create1)
	t1, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(1), create1))

	create2 := event.NewThreadCreate(u.Root(), por.NewThreadId(2))
	create2, _ = u.Deduplicate(create2)
	t2, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(2), create2))

	lc, _ := u.Deduplicate(event.NewLockCreate(t1, 1))

	acq1, _ := u.Deduplicate(event.NewLockAcquire(t1, lc, 1))
	acq2, _ := u.Deduplicate(event.NewLockAcquire(t2, lc, 1))

	assert.Contains(t, acq1.ImmediateConflicts(), acq2)
	assert.Contains(t, acq2.ImmediateConflicts(), acq1)
}

func TestThreadBranchingConflict(t *testing.T) {
	u := New()
	create := event.NewThreadCreate(u.Root(), por.NewThreadId(1))
	create, _ = u.Deduplicate(create)
	t1, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(1), create))

	branchA, _ := u.Deduplicate(event.NewLocal(t1, 0))
	branchB, _ := u.Deduplicate(event.NewLocal(t1, 1))

	assert.Contains(t, branchA.ImmediateConflicts(), branchB)
}

func TestSignalsTargetingSameWaiterConflict(t *testing.T) {
	u := New()
	create1 := event.NewThreadCreate(u.Root(), por.NewThreadId(1))
	create1, _ = u.Deduplicate(create1)
	t1, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(1), create1))
	create2 := event.NewThreadCreate(u.Root(), por.NewThreadId(2))
	create2, _ = u.Deduplicate(create2)
	t2, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(2), create2))
	create3 := event.NewThreadCreate(u.Root(), por.NewThreadId(3))
	create3, _ = u.Deduplicate(create3)
	t3, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(3), create3))

	lc, _ := u.Deduplicate(event.NewLockCreate(t1, 1))
	cc, _ := u.Deduplicate(event.NewCondCreate(t1, 1))
	acq, _ := u.Deduplicate(event.NewLockAcquire(t1, lc, 1))
	rel, _ := u.Deduplicate(event.NewLockRelease(acq, acq, 1))
	wait1, _ := u.Deduplicate(event.NewWait1(rel, rel, []*event.Event{cc}, 1, 1))

	sig1, _ := u.Deduplicate(event.NewSignal(t2, wait1, []*event.Event{cc}, 1))
	sig2, _ := u.Deduplicate(event.NewSignal(t3, wait1, []*event.Event{cc}, 1))

	assert.Contains(t, sig1.ImmediateConflicts(), sig2)
}

func TestRemoveRejectsEventWithSuccessors(t *testing.T) {
	u := New()
	create, _ := u.Deduplicate(event.NewThreadCreate(u.Root(), por.NewThreadId(1)))
	err := u.Remove(u.Root())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "successors"))
	_ = create
}

func TestRemoveLeaf(t *testing.T) {
	u := New()
	create, _ := u.Deduplicate(event.NewThreadCreate(u.Root(), por.NewThreadId(1)))
	before := u.Len()
	require.NoError(t, u.Remove(create))
	assert.Equal(t, before-1, u.Len())
	assert.False(t, u.Root().HasSuccessors())
}

func TestStatsCountsEventsAndConflicts(t *testing.T) {
	u := New()
	create, _ := u.Deduplicate(event.NewThreadCreate(u.Root(), por.NewThreadId(1)))
	t1, _ := u.Deduplicate(event.NewThreadInit(por.NewThreadId(1), create))
	u.Deduplicate(event.NewLocal(t1, 0))
	u.Deduplicate(event.NewLocal(t1, 1))

	s := u.Stats()
	assert.Equal(t, u.Len(), s.TotalEvents)
	assert.Equal(t, 1, s.ConflictEdges)
}
