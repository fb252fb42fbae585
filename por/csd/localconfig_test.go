package csd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/configuration"
	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/unfolding"
)

// spawnThread commits a thread_create/thread_init pair and returns the
// new thread's id.
func spawnThread(t *testing.T, c *configuration.Configuration, parent por.ThreadId, id uint16) por.ThreadId {
	t.Helper()
	tid := por.NewThreadId(id)
	create, err := c.CreateThread(parent, tid)
	require.NoError(t, err)
	createdEvent, err := create.Commit()
	require.NoError(t, err)
	init, err := c.InitThread(tid, createdEvent)
	require.NoError(t, err)
	_, err = init.Commit()
	require.NoError(t, err)
	return tid
}

func acquireRelease(t *testing.T, c *configuration.Configuration, tid por.ThreadId, lid por.LockId) *event.Event {
	t.Helper()
	acq, err := c.AcquireLock(tid, lid)
	require.NoError(t, err)
	_, err = acq.Commit()
	require.NoError(t, err)
	rel, err := c.ReleaseLock(tid, lid)
	require.NoError(t, err)
	relEvent, err := rel.Commit()
	require.NoError(t, err)
	return relEvent
}

// twoThreadLockContention builds a two-thread, one-lock history where
// main creates T and each acquires and releases the lock once, T's
// acquire causally following main's release. Neither thread ever
// blocks on a lock the other currently holds, so the whole history can
// be realized by draining main to completion before switching to T:
// zero preempting switches are required.
func twoThreadLockContention(t *testing.T) *event.Event {
	t.Helper()
	const lockID = por.LockId(1)

	u := unfolding.New()
	c := configuration.New(u)
	mainTid := por.NewThreadId(1)
	initMain, err := c.InitThread(mainTid, u.Root())
	require.NoError(t, err)
	_, err = initMain.Commit()
	require.NoError(t, err)

	tid := spawnThread(t, c, mainTid, 2)

	lc, err := c.CreateLock(mainTid, lockID)
	require.NoError(t, err)
	_, err = lc.Commit()
	require.NoError(t, err)

	acquireRelease(t, c, mainTid, lockID)
	return acquireRelease(t, c, tid, lockID)
}

// pingPongLockContention builds a history where main and T alternate
// acquiring and releasing the same lock five times total (main, T,
// main, T, main). Each acquire after the first depends causally on
// the other thread's immediately preceding release, so the search can
// never drain both threads to completion without repeatedly switching
// back and forth between them. This realizes the CSD bound worked
// example: two threads and one lock, minimally requiring exactly
// three preempting switches.
func pingPongLockContention(t *testing.T) *event.Event {
	t.Helper()
	const lockID = por.LockId(1)

	u := unfolding.New()
	c := configuration.New(u)
	mainTid := por.NewThreadId(1)
	initMain, err := c.InitThread(mainTid, u.Root())
	require.NoError(t, err)
	_, err = initMain.Commit()
	require.NoError(t, err)

	tid := spawnThread(t, c, mainTid, 2)

	lc, err := c.CreateLock(mainTid, lockID)
	require.NoError(t, err)
	_, err = lc.Commit()
	require.NoError(t, err)

	acquireRelease(t, c, mainTid, lockID)
	acquireRelease(t, c, tid, lockID)
	acquireRelease(t, c, mainTid, lockID)
	acquireRelease(t, c, tid, lockID)
	return acquireRelease(t, c, mainTid, lockID)
}

func TestEventCSDTwoThreadContention(t *testing.T) {
	final := twoThreadLockContention(t)
	assert.Equal(t, 0, EventCSD(final))
}

// TestEventCSDPingPongContention is the CSD bound worked example: two
// threads and one lock, with enough alternation that main starting,
// switching to T, and switching back cannot be avoided, and the
// minimal realization needs exactly three preempting switches.
func TestEventCSDPingPongContention(t *testing.T) {
	final := pingPongLockContention(t)
	assert.Equal(t, 3, EventCSD(final))
	assert.True(t, EventIsAboveLimit(final, 2))
	assert.False(t, EventIsAboveLimit(final, 3))
}

func TestEventIsAboveLimitAgreesWithEventCSD(t *testing.T) {
	final := pingPongLockContention(t)
	csd := EventCSD(final)
	assert.True(t, EventIsAboveLimit(final, csd-1), "limit one below the minimum must be exceeded")
	assert.False(t, EventIsAboveLimit(final, csd), "limit equal to the minimum must not be exceeded")
	assert.False(t, EventIsAboveLimit(final, csd+1), "limit above the minimum must not be exceeded")
}

// TestEventIsAboveLimitMonotonic checks that above(e, k) is monotonic
// in k: if the limit is large enough to be satisfied, every larger
// limit must also be satisfied (non-increasing in k).
func TestEventIsAboveLimitMonotonic(t *testing.T) {
	final := pingPongLockContention(t)
	for k := 0; k < 5; k++ {
		if !EventIsAboveLimit(final, k) {
			assert.False(t, EventIsAboveLimit(final, k+1), "once below the limit, a larger limit must stay below it")
		}
	}
}

func TestEventCSDSingleThreadIsZero(t *testing.T) {
	root := event.NewProgramInit()
	mainInit := event.NewThreadInit(por.RootThreadId(), root)
	local := event.NewLocal(mainInit, 0)
	require.Equal(t, 0, EventCSD(local))
	assert.False(t, EventIsAboveLimit(local, 0))
}
