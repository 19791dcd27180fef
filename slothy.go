// Package slothy optimizes straight-line and loop-body assembly for
// instruction scheduling and register allocation, the way the teacher's
// wazevo compiler backend lowers and allocates SSA (tetratelabs/wazero,
// internal/engine/wazevo): Optimize wires the assembly IR parser
// (internal/asmir), the dataflow graph (internal/dfg), the constraint
// core (internal/constraints) and the heuristic driver
// (internal/heuristic) into one entry point.
package slothy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/slothy-opt/slothy/internal/arch"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/constraints"
	"github.com/slothy-opt/slothy/internal/dfg"
	"github.com/slothy-opt/slothy/internal/heuristic"
)

// Result is the outcome of one Optimize call (spec.md §3's Result,
// reported at the root package boundary rather than heuristic.Result so
// callers of Optimize never import internal/heuristic).
type Result struct {
	Output string
	Stalls int

	// SelfCheckPassed is true when Config.SelfCheck was set and the
	// post-optimization isomorphism check succeeded. False when
	// self-check was disabled.
	SelfCheckPassed bool

	// Reordering maps each instruction's original program-order index to
	// its rank in the solved schedule with stall slots compacted out;
	// InverseReordering is its inverse (spec.md §3's
	// Result.reordering/inverse_reordering). Both are nil for a linear
	// program optimized by the split heuristic, which never builds a
	// single Assignment over the whole listing.
	Reordering        map[int]int
	InverseReordering map[int]int
	// ReorderingWithBubbles is indexed by flattened position: the
	// original index placed there, or -1 for a stall (spec.md §3's
	// Result.reordering_with_bubbles).
	ReorderingWithBubbles []int
	// StallPositions lists the flattened positions the solved schedule
	// left empty.
	StallPositions []int

	// InputRenamings/OutputRenamings record the live-in/live-out
	// boundary renamings the solver actually chose, keyed by original
	// register name (spec.md §3's Result.input_renamings/
	// output_renamings).
	InputRenamings  map[string]string
	OutputRenamings map[string]string

	// KernelInputOutput is the set of cross-iteration dependencies the
	// optimized loop body's kernel carries into the next iteration
	// (spec.md §3's kernel_input_output); empty for a linear program.
	KernelInputOutput []dfg.CrossIterationDep

	// NumExceptionalIterations counts the iterations handled outside the
	// steady-state kernel when SW pipelining is enabled; 0 otherwise.
	NumExceptionalIterations int
}

// fromHeuristicResult copies the reporting fields of an internal heuristic.Result
// onto a root Result, so the public API surfaces the same boundary
// renaming/reordering/cross-iteration data the driver computed.
func fromHeuristicResult(r *Result, hr *heuristic.Result) {
	r.Reordering = hr.Reordering
	r.InverseReordering = hr.InverseReordering
	r.ReorderingWithBubbles = hr.ReorderingWithBubbles
	r.StallPositions = hr.StallPositions
	r.InputRenamings = hr.InputRenamings
	r.OutputRenamings = hr.OutputRenamings
	r.KernelInputOutput = hr.KernelInputOutput
	r.NumExceptionalIterations = hr.NumExceptionalIterations
}

// Optimize parses src with reg, finds at most one loop (spec.md §6: "the
// driver recognizes loops by a label and a terminating subs/cbnz pair"),
// optimizes either that loop's body or, if none is found, the whole
// listing as a single linear block, and re-emits the result.
func Optimize(src string, reg *asmir.Registry, target arch.Target, cfg *Config) (*Result, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	program, err := asmir.ParseProgram(src, reg)
	if err != nil {
		return nil, err
	}

	driver := heuristic.NewDriver(target, logrus.NewEntry(logrus.StandardLogger()))
	p := toParams(cfg)
	ctx := context.Background()

	loop, found := findAnyLoop(program)
	var stalls int
	var hr *heuristic.Result
	if found {
		stalls, hr, err = optimizeLoopBody(ctx, program, loop, driver, cfg, p)
	} else {
		stalls, hr, err = optimizeLinearProgram(ctx, program, driver, cfg, p)
	}
	if err == heuristic.ErrSearchExhausted {
		return nil, &SearchExhausted{StallsMaximumAttempt: cfg.Constraints.StallsMaximumAttempt, Source: src}
	}
	if err != nil {
		return nil, err
	}

	output := program.Emit()
	result := &Result{Output: output, Stalls: stalls}
	if hr != nil {
		fromHeuristicResult(result, hr)
	}

	if cfg.SelfCheck {
		if err := SelfCheck(src, output, reg); err != nil {
			return nil, err
		}
		result.SelfCheckPassed = true
	}
	return result, nil
}

// findAnyLoop scans program for a label whose subsequent lines match
// AArch64Terminator, the way the driver discovers loops without the
// caller naming one up front (spec.md §6).
func findAnyLoop(program *asmir.Program) (*asmir.Loop, bool) {
	for _, l := range program.Lines {
		if l.Instr != nil {
			continue
		}
		name, ok := labelName(l.Passthrough)
		if !ok {
			continue
		}
		if loop, ok := asmir.FindLoop(program, name, asmir.AArch64Terminator{}); ok {
			return loop, true
		}
	}
	return nil, false
}

func labelName(trimmedOrRaw string) (string, bool) {
	s := trimmedOrRaw
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	if len(s) < 2 || s[len(s)-1] != ':' {
		return "", false
	}
	return s[:len(s)-1], true
}

func bodyInstructions(program *asmir.Program, loop *asmir.Loop) []*asmir.Instruction {
	var out []*asmir.Instruction
	for i := loop.BodyStart; i < loop.BodyEnd; i++ {
		if in := program.Lines[i].Instr; in != nil {
			out = append(out, in)
		}
	}
	return out
}

func optimizeLoopBody(ctx context.Context, program *asmir.Program, loop *asmir.Loop, driver *heuristic.Driver, cfg *Config, p heuristic.Params) (int, *heuristic.Result, error) {
	body := bodyInstructions(program, loop)
	if cfg.NaivePreprocessing {
		body = heuristic.NaiveReorder(body, dfg.Config{InputsAreOutputs: cfg.InputsAreOutputs})
	}

	var ordered []*asmir.Instruction
	var result *heuristic.Result
	var err error

	if cfg.SWPipelining.Enabled {
		unroll := cfg.SWPipelining.Unroll
		if unroll < 1 {
			unroll = 1
		}
		unrolled := unrollBody(body, unroll)
		result, err = driver.OptimizePeriodic(ctx, unrolled, p)
		if err != nil {
			return 0, nil, err
		}
		ordered = result.Ordered()
		adjustLoopTerminator(program, loop, unroll)
	} else {
		g := dfg.BuildPeriodic(body, dfg.Config{InputsAreOutputs: cfg.InputsAreOutputs})
		result, err = driver.Search(ctx, g, p)
		if err != nil {
			return 0, nil, err
		}
		ordered = result.Ordered()
	}

	var comments []string
	if cfg.VisualizeReordering {
		comments = reorderingComments(result)
	}
	spliceBody(program, loop, ordered, comments)
	return result.Stalls, result, nil
}

// unrollBody duplicates body unroll times, the sw_pipelining.unroll
// expansion spec.md §4.5 requires before building the periodic DFG.
// Register names are left untouched across copies: renaming the
// duplicated live-ins/live-outs apart is the constraint core's job
// (constraint 4, renaming consistency), not the unroller's.
func unrollBody(body []*asmir.Instruction, unroll int) []*asmir.Instruction {
	out := make([]*asmir.Instruction, 0, len(body)*unroll)
	for i := 0; i < unroll; i++ {
		for _, in := range body {
			copyInstr := *in
			out = append(out, &copyInstr)
		}
	}
	return out
}

// adjustLoopTerminator scales the loop's decrement immediate by unroll,
// so the emitted countdown still exits after the same total number of
// original iterations.
func adjustLoopTerminator(program *asmir.Program, loop *asmir.Loop, unroll int) {
	if loop.BodyEnd >= len(program.Lines) {
		return
	}
	subs := program.Lines[loop.BodyEnd].Instr
	if subs == nil || subs.Mnemonic != "subs" {
		return
	}
	subs.Imm = loop.DecrementImm * int64(unroll)
}

func spliceBody(program *asmir.Program, loop *asmir.Loop, ordered []*asmir.Instruction, comments []string) {
	newLines := annotatedLines(ordered, comments)
	head := append([]asmir.Line(nil), program.Lines[:loop.BodyStart]...)
	tail := append([]asmir.Line(nil), program.Lines[loop.BodyEnd:]...)
	program.Lines = append(head, append(newLines, tail...)...)
}

// annotatedLines builds one asmir.Line per instruction in ordered,
// preceded by a passthrough comment line when comments is non-nil (spec.md
// §6's visualize_reordering: "annotate output"). comments, when present,
// must be the same length as ordered.
func annotatedLines(ordered []*asmir.Instruction, comments []string) []asmir.Line {
	lines := make([]asmir.Line, 0, len(ordered)*2)
	for i, in := range ordered {
		if comments != nil && i < len(comments) {
			lines = append(lines, asmir.Line{Passthrough: comments[i]})
		}
		lines = append(lines, asmir.Line{Instr: in})
	}
	return lines
}

// reorderingComments returns one "// orig #N" (or "// stall xK; orig #N")
// passthrough comment per instruction in hr's compacted schedule order,
// aligned with heuristic.Result.Ordered()'s output (spec.md §6's
// visualize_reordering). Returns nil when hr carries no schedule (the
// split heuristic path, which never produces one Assignment over the
// whole listing).
func reorderingComments(hr *heuristic.Result) []string {
	if hr == nil || len(hr.ReorderingWithBubbles) == 0 {
		return nil
	}
	comments := make([]string, 0, len(hr.Reordering))
	stalls := 0
	for _, id := range hr.ReorderingWithBubbles {
		if id == -1 {
			stalls++
			continue
		}
		if stalls > 0 {
			comments = append(comments, fmt.Sprintf("// stall x%d; orig #%d", stalls, id))
		} else {
			comments = append(comments, fmt.Sprintf("// orig #%d", id))
		}
		stalls = 0
	}
	return comments
}

func optimizeLinearProgram(ctx context.Context, program *asmir.Program, driver *heuristic.Driver, cfg *Config, p heuristic.Params) (int, *heuristic.Result, error) {
	instrs := program.Instructions()
	if len(instrs) == 0 {
		return 0, nil, nil
	}
	if cfg.NaivePreprocessing {
		instrs = heuristic.NaiveReorder(instrs, dfg.Config{})
	}

	var ordered []*asmir.Instruction
	var comments []string
	var stalls int
	var result *heuristic.Result

	if cfg.SplitHeuristic.Enabled {
		split := heuristic.SplitParams{
			Enabled:         true,
			WindowSize:      cfg.SplitHeuristic.Chunks,
			StepSize:        cfg.SplitHeuristic.StepSize,
			AbortCycleAt:    cfg.SplitHeuristic.AbortCycleAt,
			Factor:          cfg.SplitHeuristic.Factor,
			Repeat:          cfg.SplitHeuristic.Repeat,
			RegionStart:     cfg.SplitHeuristic.RegionStart,
			RegionEnd:       cfg.SplitHeuristic.RegionEnd,
			Random:          cfg.SplitHeuristic.Random,
			BottomToTop:     cfg.SplitHeuristic.BottomToTop,
			OptimizeSeam:    cfg.SplitHeuristic.OptimizeSeam,
			VisualizeStalls: cfg.SplitHeuristic.VisualizeStalls,
			VisualizeUnits:  cfg.SplitHeuristic.VisualizeUnits,
		}
		p.SplitHeuristic = split
		out, outComments, err := driver.OptimizeSplit(ctx, instrs, p)
		if err != nil {
			return 0, nil, err
		}
		ordered = out
		comments = outComments
		// The split heuristic never produces one Assignment over the
		// whole listing, so result stays nil: the root Result's
		// boundary-renaming/reordering fields are left unpopulated.
	} else {
		g := dfg.Build(instrs, dfg.Config{})
		var err error
		result, err = driver.Search(ctx, g, p)
		if err != nil {
			return 0, nil, err
		}
		ordered = result.Ordered()
		stalls = result.Stalls
		if cfg.VisualizeReordering {
			comments = reorderingComments(result)
		}
	}

	spliceLinear(program, ordered, comments)
	return stalls, result, nil
}

// spliceLinear replaces every Instruction line with ordered's corresponding
// entry, inserting a passthrough comment line immediately before it when
// comments names one for that index (visualize_reordering for a plain
// search, visualize_stalls/visualize_units for the split heuristic).
func spliceLinear(program *asmir.Program, ordered []*asmir.Instruction, comments []string) {
	newLines := make([]asmir.Line, 0, len(program.Lines)+len(comments))
	i := 0
	for _, l := range program.Lines {
		if l.Instr == nil {
			newLines = append(newLines, l)
			continue
		}
		if comments != nil && i < len(comments) && comments[i] != "" {
			newLines = append(newLines, asmir.Line{Passthrough: comments[i]})
		}
		newLines = append(newLines, asmir.Line{Instr: ordered[i]})
		i++
	}
	program.Lines = newLines
}

// toParams translates cfg into the narrow Params internal/heuristic
// consumes (spec.md §9: "driver takes a narrow options struct", avoiding
// an import cycle between the root package and internal/heuristic).
func toParams(cfg *Config) heuristic.Params {
	locked := cfg.LockedRegisters.Union(cfg.ReservedRegs)
	return heuristic.Params{
		StallsMinimumAttempt:        cfg.Constraints.StallsMinimumAttempt,
		StallsFirstAttempt:          cfg.Constraints.StallsFirstAttempt,
		StallsMaximumAttempt:        cfg.Constraints.StallsMaximumAttempt,
		StallsPrecision:             cfg.Constraints.StallsPrecision,
		StallsTimeoutBelowPrecision: cfg.Constraints.StallsTimeoutBelowPrecision,
		IssueWidth:                  cfg.Constraints.IssueWidth,
		AllowReordering:             cfg.Constraints.AllowReordering,
		AllowRenaming:               cfg.Constraints.AllowRenaming,
		InputsAreOutputs:            cfg.InputsAreOutputs,
		LockedRegisters:             locked,
		HazardWindow:                hazardWindow(cfg),
		HasObjective:                cfg.HasObjective && !cfg.IgnoreObjective,
		Objective:                   objectiveFor(cfg),
		InputRenamePolicy:           toRenamePolicyMap(cfg.RenameInputs),
		OutputRenamePolicy:          toRenamePolicyMap(cfg.RenameOutputs),
		TypingHints:                cfg.TypingHints,
		SWPipelining: heuristic.SWPipeliningParams{
			Enabled:             cfg.SWPipelining.Enabled,
			Unroll:              cfg.SWPipelining.Unroll,
			MinimizeOverlapping: cfg.SWPipelining.MinimizeOverlapping,
			HalvingHeuristic:    cfg.SWPipelining.HalvingHeuristic,
			HalvingPeriodic:     cfg.SWPipelining.HalvingPeriodic,
			AllowPre:            cfg.SWPipelining.AllowPre,
			AllowPost:           cfg.SWPipelining.AllowPost,
			OptimizePreamble:    cfg.SWPipelining.OptimizePreamble,
			OptimizePostamble:   cfg.SWPipelining.OptimizePostamble,
		},
		NaivePreprocessing: cfg.NaivePreprocessing,
		Timeout:            cfg.Timeout,
	}
}

// toRenamePolicyMap translates the root package's byte-encoded
// RenamePolicy into internal/constraints's own int-encoded RenamePolicy
// (model.go documents why the two types are kept separate rather than
// shared across the package boundary). A nil/empty map translates to nil,
// reproducing the solver's default (every boundary name is RenameStatic).
func toRenamePolicyMap(m map[string]RenamePolicy) map[string]constraints.RenamePolicy {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]constraints.RenamePolicy, len(m))
	for k, v := range m {
		out[k] = constraints.RenamePolicy(v)
	}
	return out
}

func hazardWindow(cfg *Config) int {
	if !cfg.Constraints.StLdHazard {
		return 0
	}
	if cfg.Constraints.HazardWindow > 0 {
		return cfg.Constraints.HazardWindow
	}
	return 1
}

func objectiveFor(cfg *Config) constraints.ObjectiveKind {
	if !cfg.HasObjective || cfg.IgnoreObjective {
		return constraints.ObjectiveNone
	}
	if cfg.SWPipelining.Enabled || cfg.SWPipelining.MinimizeOverlapping {
		return constraints.ObjectiveOverlap
	}
	return constraints.ObjectiveNone
}

// SelfCheck re-parses in and out with reg and verifies their DFGs are
// isomorphic modulo renaming (spec.md §4.3, §8 property 1). A caller
// driving its own emit step (rather than going through Optimize) can call
// this directly; Optimize calls it automatically when Config.SelfCheck is
// set.
func SelfCheck(in, out string, reg *asmir.Registry) error {
	pIn, err := asmir.ParseProgram(in, reg)
	if err != nil {
		return err
	}
	pOut, err := asmir.ParseProgram(out, reg)
	if err != nil {
		return &SelfCheckFailed{Reason: "output no longer parses: " + err.Error()}
	}
	gIn := dfg.Build(pIn.Instructions(), dfg.Config{})
	gOut := dfg.Build(pOut.Instructions(), dfg.Config{})
	if !dfg.IsomorphicModuloRenaming(gIn, gOut) {
		return &SelfCheckFailed{Reason: "output DFG is not isomorphic modulo renaming to input DFG"}
	}
	return nil
}
