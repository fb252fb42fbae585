package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-por/por"
	"github.com/wbrown/janus-por/por/event"
	"github.com/wbrown/janus-por/por/solver"
)

func twoConcurrentEvents(t *testing.T) (*event.Event, *event.Event) {
	t.Helper()
	root := event.NewProgramInit()
	ca := event.NewThreadCreate(root, por.NewThreadId(1))
	a := event.NewThreadInit(por.NewThreadId(1), ca)
	cb := event.NewThreadCreate(root, por.NewThreadId(2))
	b := event.NewThreadInit(por.NewThreadId(2), cb)
	return a, b
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(1, "x")
	b := Fingerprint(1, "x")
	c := Fingerprint(1, "y")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestReadReadNeverRaces(t *testing.T) {
	a, b := twoConcurrentEvents(t)
	d := NewDetector(nil)
	fp := Fingerprint(0, "x")
	d.Observe(fp, Access{Event: a, Kind: Read, Address: "x"})
	races := d.Observe(fp, Access{Event: b, Kind: Read, Address: "x"})
	assert.Empty(t, races)
}

func TestWriteWriteSameAddressRaces(t *testing.T) {
	a, b := twoConcurrentEvents(t)
	d := NewDetector(nil)
	fp := Fingerprint(0, "x")
	d.Observe(fp, Access{Event: a, Kind: Write, Address: "x"})
	races := d.Observe(fp, Access{Event: b, Kind: Write, Address: "x"})
	require.Len(t, races, 1)
	assert.Equal(t, "syntactically identical address", races[0].Reason)
}

func TestAllocFreeAlwaysRaces(t *testing.T) {
	a, b := twoConcurrentEvents(t)
	d := NewDetector(nil)
	fp := Fingerprint(0, "buf")
	d.Observe(fp, Access{Event: a, Kind: Write, Address: "buf", IsAlloc: true})
	races := d.Observe(fp, Access{Event: b, Kind: Write, Address: "buf", IsFree: true})
	require.Len(t, races, 1)
}

func TestCausallyOrderedAccessesNeverRace(t *testing.T) {
	root := event.NewProgramInit()
	ca := event.NewThreadCreate(root, por.NewThreadId(1))
	a := event.NewThreadInit(por.NewThreadId(1), ca)
	aNext := event.NewLocal(a, 0)

	d := NewDetector(nil)
	fp := Fingerprint(0, "x")
	d.Observe(fp, Access{Event: a, Kind: Write, Address: "x"})
	races := d.Observe(fp, Access{Event: aNext, Kind: Write, Address: "x"})
	assert.Empty(t, races, "same-thread causally ordered accesses are never flagged as races")
}

type constSolver struct {
	value int64
}

func (s constSolver) MustBeTrue(a, b solver.Expr) (bool, bool)  { return false, true }
func (s constSolver) MustBeFalse(a, b solver.Expr) (bool, bool) { return false, true }
func (s constSolver) MayBeTrue(a, b solver.Expr) (bool, bool)   { return true, true }
func (s constSolver) GetValue(e solver.Expr) (int64, bool) {
	if v, ok := e.(int64); ok {
		return v, true
	}
	return 0, false
}
func (s constSolver) GetRange(e solver.Expr) (int64, int64) { return s.value, s.value }

// timeoutSolver reports every disequality query as timed out, never
// reaching a verdict.
type timeoutSolver struct{}

func (timeoutSolver) MustBeTrue(a, b solver.Expr) (bool, bool)  { return false, false }
func (timeoutSolver) MustBeFalse(a, b solver.Expr) (bool, bool) { return false, false }
func (timeoutSolver) MayBeTrue(a, b solver.Expr) (bool, bool)   { return false, false }
func (timeoutSolver) GetValue(e solver.Expr) (int64, bool)      { return 0, false }
func (timeoutSolver) GetRange(e solver.Expr) (int64, int64)     { return 0, 0 }

func TestSymbolicAddressesWithDifferentConstantValuesDoNotRace(t *testing.T) {
	a, b := twoConcurrentEvents(t)
	d := NewDetector(constSolver{})
	fp := Fingerprint(0, "sym")
	d.Observe(fp, Access{Event: a, Kind: Write, Address: int64(1)})
	races := d.Observe(fp, Access{Event: b, Kind: Write, Address: int64(2)})
	assert.Empty(t, races)
}

func TestSolverTimeoutAssumesSafe(t *testing.T) {
	a, b := twoConcurrentEvents(t)
	d := NewDetector(timeoutSolver{})
	fp := Fingerprint(0, "sym")
	d.Observe(fp, Access{Event: a, Kind: Write, Address: "i"})
	races := d.Observe(fp, Access{Event: b, Kind: Write, Address: "j"})
	assert.Empty(t, races, "a solver that times out must be treated as assume-safe, not as a race")
}

func TestAmbiguousSymbolicAddressesReportCanBeSafe(t *testing.T) {
	a, b := twoConcurrentEvents(t)
	d := NewDetector(nil) // NopSolver: MayBeTrue always true, never Must*
	fp := Fingerprint(0, "sym")
	d.Observe(fp, Access{Event: a, Kind: Write, Address: "i"})
	races := d.Observe(fp, Access{Event: b, Kind: Write, Address: "j"})
	require.Len(t, races, 1)
	assert.True(t, races[0].CanBeSafe)
	assert.Equal(t, "i != j", races[0].ConditionToBeSafe)
	assert.Equal(t, a, races[0].RacingInstruction)
}
