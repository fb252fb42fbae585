package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/configuration"
	"github.com/wbrown/janus-por/por/unfolding"
)

func twoActiveThreads(t *testing.T) (*configuration.Configuration, por.ThreadId, por.ThreadId) {
	t.Helper()
	u := unfolding.New()
	c := configuration.New(u)

	mainTid := por.NewThreadId(1)
	initMain, err := c.InitThread(mainTid, u.Root())
	require.NoError(t, err)
	_, err = initMain.Commit()
	require.NoError(t, err)

	otherTid := por.NewThreadId(2)
	createOther, err := c.CreateThread(mainTid, otherTid)
	require.NoError(t, err)
	createEvent, err := createOther.Commit()
	require.NoError(t, err)
	initOther, err := c.InitThread(otherTid, createEvent)
	require.NoError(t, err)
	_, err = initOther.Commit()
	require.NoError(t, err)

	return c, mainTid, otherTid
}

func TestChooseNextFirstAndLast(t *testing.T) {
	cfg, mainTid, otherTid := twoActiveThreads(t)

	first := New(cfg, First, nil, -1)
	tid, ok := first.ChooseNext()
	require.True(t, ok)
	assert.True(t, tid.Equal(mainTid))

	last := New(cfg, Last, nil, -1)
	tid, ok = last.ChooseNext()
	require.True(t, ok)
	assert.True(t, tid.Equal(otherTid))
}

func TestChooseNextRoundRobinAlternates(t *testing.T) {
	cfg, mainTid, otherTid := twoActiveThreads(t)
	s := New(cfg, RoundRobin, nil, -1)

	first, ok := s.ChooseNext()
	require.True(t, ok)
	second, ok := s.ChooseNext()
	require.True(t, ok)
	assert.True(t, first.Equal(mainTid))
	assert.True(t, second.Equal(otherTid))
}

func TestChooseNextNoneRunnable(t *testing.T) {
	u := unfolding.New()
	cfg := configuration.New(u)
	s := New(cfg, First, nil, -1)
	_, ok := s.ChooseNext()
	assert.False(t, ok)
}

func TestParsePolicyRejectsUnknown(t *testing.T) {
	_, err := ParsePolicy("round_robin")
	assert.Error(t, err)
	p, err := ParsePolicy("round-robin")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, p)
}

func TestDetectDeadlockEmptyConfigurationIsNotDeadlocked(t *testing.T) {
	u := unfolding.New()
	cfg := configuration.New(u)
	s := New(cfg, First, nil, -1)
	assert.Nil(t, s.DetectDeadlock())
}

func TestDetectDeadlockNoneWhenThreadsRunnable(t *testing.T) {
	cfg, _, _ := twoActiveThreads(t)
	s := New(cfg, First, nil, -1)
	assert.Nil(t, s.DetectDeadlock())
}

func TestCommitRejectsExtensionOverCSDLimit(t *testing.T) {
	u := unfolding.New()
	cfg := configuration.New(u)
	s := New(cfg, First, nil, 0)

	mainTid := por.NewThreadId(1)
	initMain, err := cfg.InitThread(mainTid, u.Root())
	require.NoError(t, err)
	_, err = s.Commit(initMain)
	require.NoError(t, err)

	otherTid := por.NewThreadId(2)
	createOther, err := cfg.CreateThread(mainTid, otherTid)
	require.NoError(t, err)
	createEvent, err := s.Commit(createOther)
	require.NoError(t, err)

	initOther, err := cfg.InitThread(otherTid, createEvent)
	require.NoError(t, err)
	_, err = s.Commit(initOther)
	require.NoError(t, err)

	lockCreate, err := cfg.CreateLock(mainTid, 1)
	require.NoError(t, err)
	_, err = s.Commit(lockCreate)
	require.NoError(t, err)

	mainAcq, err := cfg.AcquireLock(mainTid, 1)
	require.NoError(t, err)
	_, err = s.Commit(mainAcq)
	require.NoError(t, err)

	mainRel, err := cfg.ReleaseLock(mainTid, 1)
	require.NoError(t, err)
	_, err = s.Commit(mainRel)
	require.NoError(t, err)

	// The other thread's critical section right after main's needs no
	// preempting switch: main can be drained to completion first.
	otherAcq, err := cfg.AcquireLock(otherTid, 1)
	require.NoError(t, err)
	_, err = s.Commit(otherAcq)
	require.NoError(t, err)
	otherRel, err := cfg.ReleaseLock(otherTid, 1)
	require.NoError(t, err)
	_, err = s.Commit(otherRel)
	require.NoError(t, err)

	// Main re-acquiring after the other thread's release requires one
	// preempting switch, which a CSD limit of 0 must refuse.
	mainAcq2, err := cfg.AcquireLock(mainTid, 1)
	require.NoError(t, err)
	_, err = s.Commit(mainAcq2)
	assert.Error(t, err)

	lenient := New(cfg, First, nil, 1)
	mainAcq3, err := cfg.AcquireLock(mainTid, 1)
	require.NoError(t, err)
	_, err = lenient.Commit(mainAcq3)
	assert.NoError(t, err)
}

func TestReplayRebuildsEquivalentConfiguration(t *testing.T) {
	cfg, mainTid, otherTid := twoActiveThreads(t)
	lockCreate, err := cfg.CreateLock(mainTid, 1)
	require.NoError(t, err)
	_, err = lockCreate.Commit()
	require.NoError(t, err)

	acq, err := cfg.AcquireLock(mainTid, 1)
	require.NoError(t, err)
	acqEvent, err := acq.Commit()
	require.NoError(t, err)

	replayed, err := Replay(cfg.Unfolding(), acqEvent.LocalConfiguration(true))
	require.NoError(t, err)
	assert.True(t, replayed.Includes(acqEvent))
	assert.True(t, replayed.Frontier(mainTid).Tid().Equal(mainTid))
	assert.False(t, replayed.CanAcquireLock(1))
	_ = otherTid
}

func TestCatchUpExploresAlternativeAcquirer(t *testing.T) {
	u := unfolding.New()
	cfg := configuration.New(u)

	mainTid := por.NewThreadId(1)
	initMain, err := cfg.InitThread(mainTid, u.Root())
	require.NoError(t, err)
	_, err = initMain.Commit()
	require.NoError(t, err)

	lockCreate, err := cfg.CreateLock(mainTid, 1)
	require.NoError(t, err)
	_, err = lockCreate.Commit()
	require.NoError(t, err)

	otherTid := por.NewThreadId(2)
	createOther, err := cfg.CreateThread(mainTid, otherTid)
	require.NoError(t, err)
	createEvent, err := createOther.Commit()
	require.NoError(t, err)
	initOther, err := cfg.InitThread(otherTid, createEvent)
	require.NoError(t, err)
	_, err = initOther.Commit()
	require.NoError(t, err)

	mainAcq, err := cfg.AcquireLock(mainTid, 1)
	require.NoError(t, err)
	_, err = mainAcq.Commit()
	require.NoError(t, err)
	mainRel, err := cfg.ReleaseLock(mainTid, 1)
	require.NoError(t, err)
	_, err = mainRel.Commit()
	require.NoError(t, err)

	// The other thread's acquire follows main's release; its one
	// alternative acquires straight from lock_create instead.
	acqExt, err := cfg.AcquireLock(otherTid, 1)
	require.NoError(t, err)

	pool := NewWorkerPool(2)
	branches, err := CatchUp(cfg, acqExt.Event(), pool, false)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, acqExt.Event().Kind(), branches[0].Frontier(otherTid).Kind())
}
