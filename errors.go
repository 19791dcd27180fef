package slothy

import "fmt"

// ConfigError reports incompatible configuration flags (spec.md §7), e.g.
// a linear entry point called with SW pipelining enabled.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("slothy: invalid configuration for %s: %s", e.Field, e.Reason)
}

// SolverInfeasible means the current stall budget admits no schedule.
// Optimize does not return it: the heuristic driver handles an infeasible
// attempt internally by raising the bound, and an exhausted search is
// reported as SearchExhausted.
type SolverInfeasible struct {
	StallsAllowed int
}

func (e *SolverInfeasible) Error() string {
	return fmt.Sprintf("slothy: no schedule fits within %d stalls", e.StallsAllowed)
}

// SolverTimeout means the solver hit its configured timeout; treated as
// infeasible for search purposes (spec.md §7).
type SolverTimeout struct {
	StallsAllowed int
}

func (e *SolverTimeout) Error() string {
	return fmt.Sprintf("slothy: solver timed out searching at %d stalls", e.StallsAllowed)
}

// SearchExhausted means the binary search hit stalls_maximum_attempt
// without finding a feasible schedule; fatal, carries diagnostics.
type SearchExhausted struct {
	StallsMaximumAttempt int
	Source               string
}

func (e *SearchExhausted) Error() string {
	return fmt.Sprintf("slothy: search exhausted at stalls_maximum_attempt=%d without a feasible schedule", e.StallsMaximumAttempt)
}

// SelfCheckFailed means the emitted code's DFG is not isomorphic to the
// input's; non-recoverable, since it indicates a modeling bug rather than
// a missed optimization (spec.md §7).
type SelfCheckFailed struct {
	Reason string
}

func (e *SelfCheckFailed) Error() string {
	return fmt.Sprintf("slothy: self-check failed: %s", e.Reason)
}

// LoopNotFound means the requested loop label is absent, or present
// without a recognizable terminator (spec.md §7).
type LoopNotFound struct {
	Label string
}

func (e *LoopNotFound) Error() string {
	return fmt.Sprintf("slothy: loop %q not found (missing label or terminator)", e.Label)
}
