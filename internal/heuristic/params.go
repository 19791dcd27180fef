// Package heuristic is SLOTHY's heuristic driver (spec.md §4.5): the
// outer search loop that turns "find the minimal feasible stall count"
// into a bounded sequence of constraints.Solver calls, plus the
// SW-pipelining, halving, split, and naive-warm-start strategies layered
// on top of a single Solve.
//
// heuristic does not know about the root Config type (slothy.go builds a
// Params from it before calling in, the way the teacher's compiler
// packages take a narrow options struct rather than the whole runtime
// Config) so this package stays leaf-level and import-cycle-free.
package heuristic

import (
	"time"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/constraints"
)

// SWPipeliningParams mirrors Config.SWPipelining (spec.md §6).
type SWPipeliningParams struct {
	Enabled             bool
	Unroll              int
	MinimizeOverlapping bool
	HalvingHeuristic    bool
	// HalvingPeriodic selects which of the halving heuristic's two
	// re-optimization modes spec.md §4.5 describes: periodic ("no-pre/
	// post", considering the inter-iteration seam) when true, or plain
	// linear when false.
	HalvingPeriodic bool

	// AllowPre/AllowPost gate whether the solved schedule may carry a
	// preamble/postamble at all; false collapses that stage into the
	// steady-state kernel (Model.SuppressPreamble/SuppressPostamble).
	AllowPre  bool
	AllowPost bool
	// OptimizePreamble/OptimizePostamble additionally re-optimize that
	// stage's instructions as an independent linear chunk once the
	// periodic solve settles (spec.md §4.5 step 4).
	OptimizePreamble  bool
	OptimizePostamble bool
}

// SplitParams mirrors Config.SplitHeuristic (spec.md §6).
type SplitParams struct {
	Enabled      bool
	WindowSize   int
	StepSize     int
	AbortCycleAt int

	// Factor sizes the window as len(instrs)/Factor when WindowSize is
	// unset (spec.md §6's "split_heuristic_factor f: define a sliding
	// window of size 1/f over the block").
	Factor int
	// Repeat runs the whole chunked pass this many times, each pass
	// operating on the previous pass's output (spec.md §6: "repeat for
	// split_heuristic_repeat passes").
	Repeat int
	// RegionStart/RegionEnd restrict the split heuristic to a contiguous
	// sub-slice of instrs, leaving everything outside untouched (spec.md
	// §6's "split_heuristic_region"). Both zero means the whole listing.
	RegionStart int
	RegionEnd   int
	// Random visits chunks in a deterministically shuffled order instead
	// of top-to-bottom; BottomToTop reverses it. Random takes precedence
	// when both are set.
	Random      bool
	BottomToTop bool
	// OptimizeSeam adds a final pass over the window straddling every
	// chunk boundary, catching reorderings the non-overlapping chunking
	// itself cannot see (spec.md §6's "split_heuristic_optimize_seam").
	OptimizeSeam bool

	// VisualizeStalls/VisualizeUnits request per-chunk annotation
	// comments in OptimizeSplit's output: each chunk's own stall count,
	// and/or each instruction's assigned execution unit(s) (spec.md §6's
	// split_heuristic_visualize_stalls/_units).
	VisualizeStalls bool
	VisualizeUnits  bool
}

// Params is the subset of slothy.Config the driver needs, translated into
// plain fields so this package never imports the root package (spec.md
// §9's "driver takes a narrow options struct").
type Params struct {
	StallsMinimumAttempt        int
	StallsFirstAttempt          int
	StallsMaximumAttempt        int
	StallsPrecision             int
	StallsTimeoutBelowPrecision time.Duration

	IssueWidth      int
	AllowReordering bool
	AllowRenaming   bool

	InputsAreOutputs bool
	LockedRegisters  asmir.RegSet
	HazardWindow     int

	// InputRenamePolicy/OutputRenamePolicy mirror Config.RenameInputs/
	// RenameOutputs, translated into constraints.RenamePolicy at the
	// package boundary (spec.md §6's rename_inputs/rename_outputs).
	InputRenamePolicy  map[string]constraints.RenamePolicy
	OutputRenamePolicy map[string]constraints.RenamePolicy

	// TypingHints mirrors Config.TypingHints (spec.md §6).
	TypingHints map[string]string

	HasObjective bool
	Objective    constraints.ObjectiveKind
	CostFn       func(*constraints.Assignment) int

	SWPipelining   SWPipeliningParams
	SplitHeuristic SplitParams

	NaivePreprocessing bool

	Timeout time.Duration
}

// DefaultParams returns the same attempt schedule NewConfig does.
func DefaultParams() Params {
	return Params{
		StallsMinimumAttempt: 0,
		StallsFirstAttempt:   0,
		StallsMaximumAttempt: 64,
		StallsPrecision:      0,
		IssueWidth:           1,
		AllowReordering:      true,
		AllowRenaming:        true,
		Timeout:              30 * time.Second,
		HasObjective:         true,
	}
}
