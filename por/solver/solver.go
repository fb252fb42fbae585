// Package solver defines the gateway the race detector uses to
// delegate symbolic disequality and range queries to an external SMT
// backend. The engine never embeds a solver itself;
// callers plug one in, or use NopSolver for memory addresses that are
// always concrete.
package solver

// Expr is an opaque symbolic expression handle. The engine never
// inspects its contents, only passes it back to the Solver that
// produced it.
type Expr interface{}

// Solver answers queries about symbolic memory addresses and values,
// the way por/race needs to decide whether two accesses could alias.
// Every disequality query carries a caller-supplied time budget
// internally; when that budget is exhausted before a verdict is
// reached, the method returns ok=false rather than guessing.
type Solver interface {
	// MustBeTrue reports whether a == b holds in every model
	// satisfying the current path condition. ok is false if the query
	// timed out before reaching a verdict.
	MustBeTrue(a, b Expr) (result, ok bool)
	// MustBeFalse reports whether a == b is unsatisfiable under the
	// current path condition. ok is false if the query timed out
	// before reaching a verdict.
	MustBeFalse(a, b Expr) (result, ok bool)
	// MayBeTrue reports whether some model satisfying the current path
	// condition has a == b; it is the negation of MustBeFalse, offered
	// separately since callers usually want one or the other without
	// double negation. ok is false if the query timed out before
	// reaching a verdict.
	MayBeTrue(a, b Expr) (result, ok bool)
	// GetValue returns a concrete value for e if the path condition
	// pins it to exactly one, and ok is false otherwise.
	GetValue(e Expr) (value int64, ok bool)
	// GetRange returns a conservative [lo, hi] bound on e's possible
	// concrete values under the current path condition.
	GetRange(e Expr) (lo, hi int64)
}

// NopSolver answers every disequality query with "maybe" and declines
// to narrow values or ranges. It is the zero-configuration default for
// test programs that only ever touch concrete addresses: por/race
// falls back to syntactic/constant comparisons before ever consulting
// a Solver, so NopSolver only matters for genuinely symbolic offsets.
// Its answers are instantaneous, so it never reports a timeout.
type NopSolver struct{}

func (NopSolver) MustBeTrue(Expr, Expr) (bool, bool)  { return false, true }
func (NopSolver) MustBeFalse(Expr, Expr) (bool, bool) { return false, true }
func (NopSolver) MayBeTrue(Expr, Expr) (bool, bool)   { return true, true }
func (NopSolver) GetValue(Expr) (int64, bool)         { return 0, false }
func (NopSolver) GetRange(Expr) (lo, hi int64)        { return 0, 0 }
