package configuration

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/unfolding"
)

func initMainThread(t *testing.T, c *Configuration) por.ThreadId {
	t.Helper()
	mainTid := por.NewThreadId(1)
	ext, err := c.InitThread(mainTid, c.Unfolding().Root())
	require.NoError(t, err)
	_, err = ext.Commit()
	require.NoError(t, err)
	return mainTid
}

func TestInitThreadAndActiveThreads(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)

	active := c.ActiveThreads()
	require.Len(t, active, 1)
	assert.True(t, active[0].Equal(mainTid))
}

func TestLockLifecycle(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)

	createExt, err := c.CreateLock(mainTid, 1)
	require.NoError(t, err)
	_, err = createExt.Commit()
	require.NoError(t, err)
	assert.True(t, c.CanAcquireLock(1))

	acqExt, err := c.AcquireLock(mainTid, 1)
	require.NoError(t, err)
	_, err = acqExt.Commit()
	require.NoError(t, err)
	assert.False(t, c.CanAcquireLock(1))

	_, err = c.AcquireLock(mainTid, 1)
	assert.Error(t, err, "lock already held, acquire should be refused")

	relExt, err := c.ReleaseLock(mainTid, 1)
	require.NoError(t, err)
	_, err = relExt.Commit()
	require.NoError(t, err)
	assert.True(t, c.CanAcquireLock(1))
}

func TestExtensionCannotCommitTwice(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)

	ext, err := c.CreateLock(mainTid, 1)
	require.NoError(t, err)
	_, err = ext.Commit()
	require.NoError(t, err)

	_, err = ext.Commit()
	assert.Error(t, err)
}

func TestStaleExtensionRejected(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)

	staleExt, err := c.CreateLock(mainTid, 1)
	require.NoError(t, err)

	freshExt, err := c.CreateLock(mainTid, 2)
	require.NoError(t, err)
	_, err = freshExt.Commit()
	require.NoError(t, err)

	_, err = staleExt.Commit()
	assert.Error(t, err, "extension built before a later commit should be stale")
}

func TestRunnableThreadsExcludesLockWaiters(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)

	lc, _ := c.CreateLock(mainTid, 1)
	lc.Commit()
	acq, _ := c.AcquireLock(mainTid, 1)
	acq.Commit()
	cc, _ := c.CreateCond(mainTid, 1)
	cc.Commit()

	waitExt, err := c.Wait1(mainTid, 1, 1)
	require.NoError(t, err)
	wait1, err := waitExt.Commit()
	require.NoError(t, err)

	runnable := c.RunnableThreads()
	assert.Empty(t, runnable, "thread blocked in wait1 should not be runnable")
	assert.True(t, c.CanAcquireLock(1), "wait1 releases the lock")
	_ = wait1
}

func TestSignalUnblocksWaiter(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)
	otherTid := por.NewThreadId(2)
	createOther, _ := c.CreateThread(mainTid, otherTid)
	createOtherEvent, err := createOther.Commit()
	require.NoError(t, err)
	initOther, err := c.InitThread(otherTid, createOtherEvent)
	require.NoError(t, err)
	_, err = initOther.Commit()
	require.NoError(t, err)

	lc, _ := c.CreateLock(mainTid, 1)
	lc.Commit()
	cc, _ := c.CreateCond(mainTid, 1)
	cc.Commit()
	acq, _ := c.AcquireLock(mainTid, 1)
	acq.Commit()
	waitExt, _ := c.Wait1(mainTid, 1, 1)
	wait1, err := waitExt.Commit()
	require.NoError(t, err)

	assert.Nil(t, c.WasNotified(wait1))

	sigExt, err := c.SignalThread(otherTid, 1, wait1)
	require.NoError(t, err)
	sig, err := sigExt.Commit()
	require.NoError(t, err)

	assert.Equal(t, sig, c.WasNotified(wait1))
}

func TestToDotRendersWithoutPanicking(t *testing.T) {
	u := unfolding.New()
	c := New(u)
	mainTid := initMainThread(t, c)
	lc, _ := c.CreateLock(mainTid, 1)
	lc.Commit()

	var buf bytes.Buffer
	c.ToDot(&buf)
	assert.Contains(t, buf.String(), "digraph configuration")
}
