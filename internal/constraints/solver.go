package constraints

import (
	"context"
	"errors"
)

// ErrInfeasible is returned when a Model has no valid Assignment within the
// position space and constraints given (spec.md §7: SolverInfeasible).
var ErrInfeasible = errors.New("constraints: model is infeasible")

// ErrTimeout is returned when a time- or step-bounded search exhausts its
// budget before proving feasibility or infeasibility (spec.md §7:
// SolverTimeout).
var ErrTimeout = errors.New("constraints: search budget exhausted")

// Solver solves Models (spec.md §4.3: "time-bounded search, incremental
// retry at fixed stalls with a different objective, and model-reset
// between calls"). Implementations need not be safe for concurrent use by
// multiple goroutines against the same instance.
type Solver interface {
	// Solve finds an Assignment for m that uses at most m.StallsAllowed
	// bubble slots, or returns ErrInfeasible/ErrTimeout. Minimizing the
	// stall count is left to the caller, which varies StallsAllowed. A successful Solve fixes the solver's
	// internal state to that Assignment so Retry can reuse its work.
	Solve(ctx context.Context, m *Model) (*Assignment, error)

	// Retry re-optimizes the most recent successful Solve's Model at the
	// same stall count under a different secondary objective, without
	// relaxing the stall count already proven achievable.
	Retry(ctx context.Context, objective ObjectiveKind) (*Assignment, error)

	// Reset discards any cached search state, so the next Solve call starts
	// from scratch rather than incrementally extending a previous search.
	Reset()
}
