package csd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wbrown/janus-por/por"
)

func TestComputeCSDCountsSwitches(t *testing.T) {
	t1, t2 := por.NewThreadId(1), por.NewThreadId(2)
	vector := []por.ThreadId{t1, t1, t2, t2, t1}
	assert.Equal(t, 2, ComputeCSD(vector))
}

func TestComputeCSDEmptyAndSingleton(t *testing.T) {
	t1 := por.NewThreadId(1)
	assert.Equal(t, 0, ComputeCSD(nil))
	assert.Equal(t, 0, ComputeCSD([]por.ThreadId{t1}))
}

func TestTrackerAgreesWithComputeCSD(t *testing.T) {
	t1, t2, t3 := por.NewThreadId(1), por.NewThreadId(2), por.NewThreadId(3)
	vector := []por.ThreadId{t1, t1, t2, t3, t3, t1, t2}

	tracker := NewTracker(-1)
	for _, tid := range vector {
		require := tracker.Advance(tid)
		assert.True(t, require)
	}
	assert.Equal(t, ComputeCSD(vector), tracker.CSD())
}

func TestTrackerRefusesOverLimitAdvance(t *testing.T) {
	t1, t2 := por.NewThreadId(1), por.NewThreadId(2)
	tracker := NewTracker(1)
	assert.True(t, tracker.Advance(t1))
	assert.True(t, tracker.Advance(t2)) // one switch, at the limit
	assert.False(t, tracker.Advance(t1), "a second switch should exceed the limit of 1")
	assert.Equal(t, 1, tracker.CSD(), "refused advance must not mutate state")
}

func TestTrackerIsAboveLimitIsPure(t *testing.T) {
	t1, t2 := por.NewThreadId(1), por.NewThreadId(2)
	tracker := NewTracker(0)
	tracker.Advance(t1)
	assert.True(t, tracker.IsAboveLimit(t2))
	assert.Equal(t, 0, tracker.CSD(), "IsAboveLimit must not mutate the tracker")
}

func TestTrackerCloneIsIndependent(t *testing.T) {
	t1, t2 := por.NewThreadId(1), por.NewThreadId(2)
	tracker := NewTracker(-1)
	tracker.Advance(t1)
	clone := tracker.Clone()
	clone.Advance(t2)
	assert.NotEqual(t, tracker.CSD(), clone.CSD())
}
