package heuristic

import (
	"context"
	"sort"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/constraints"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// OptimizePeriodic runs the software-pipelining entry point (spec.md
// §4.5): builds the periodic DFG over one already-unrolled copy of the
// loop body (the caller performs the sw_pipelining.unroll expansion before
// calling, the same way it performs label/terminator stripping before
// building any graph), runs Search with Model.SWPipelining set, and, if
// requested, refines the result with the halving heuristic.
func (d *Driver) OptimizePeriodic(ctx context.Context, instrs []*asmir.Instruction, p Params) (*Result, error) {
	p.SWPipelining.Enabled = true
	cfg := dfg.Config{InputsAreOutputs: p.InputsAreOutputs}

	g := dfg.BuildPeriodic(instrs, cfg)
	result, err := d.Search(ctx, g, p)
	if err != nil {
		return nil, err
	}

	if p.SWPipelining.OptimizePreamble {
		optimizeStageChunk(ctx, d, result, constraints.StagePre, p)
	}
	if p.SWPipelining.OptimizePostamble {
		optimizeStageChunk(ctx, d, result, constraints.StagePost, p)
	}

	if p.SWPipelining.HalvingHeuristic {
		refined, ok := d.applyHalving(ctx, result, cfg, p)
		if ok {
			return refined, nil
		}
	}
	return result, nil
}

// optimizeStageChunk re-optimizes one exceptional stage (preamble or
// postamble) of an already-solved periodic Result as an independent linear
// block (spec.md §4.5 step 4: "optionally re-optimize preamble/postamble as
// linear chunks"). It rebuilds a non-periodic DFG over the same
// *asmir.Instruction pointers the stage currently occupies, re-solves it
// with renaming forced off — a stage re-solved on its own has no visibility
// into the naming choices the rest of the kernel is relying on, so only
// intra-stage reordering is allowed to change, never register names — and,
// if a zero-stall linear order is found, permutes just that stage's
// entries in the outer Assignment.Pos to match. Leaves result untouched
// (including on failure) when the stage has fewer than two instructions or
// no zero-stall reordering exists.
func optimizeStageChunk(ctx context.Context, d *Driver, result *Result, stage constraints.Stage, p Params) {
	a := result.Assignment
	if a.Stage == nil {
		return
	}

	var nodes []*dfg.Node
	for n, s := range a.Stage {
		if s == stage {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) < 2 {
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool { return a.Pos[nodes[i]] < a.Pos[nodes[j]] })

	positions := make([]int, len(nodes))
	instrs := make([]*asmir.Instruction, len(nodes))
	instrToNode := make(map[*asmir.Instruction]*dfg.Node, len(nodes))
	for i, n := range nodes {
		positions[i] = a.Pos[n]
		instrs[i] = n.Instr
		instrToNode[n.Instr] = n
	}

	subP := p
	subP.AllowRenaming = false
	subP.SWPipelining = SWPipeliningParams{}
	subP.StallsMinimumAttempt, subP.StallsFirstAttempt, subP.StallsMaximumAttempt, subP.StallsPrecision = 0, 0, 0, 0

	g := dfg.Build(instrs, dfg.Config{})
	sub, err := d.Search(ctx, g, subP)
	if err != nil {
		d.Log.Debugf("heuristic: stage re-optimization found no zero-stall reordering: %v", err)
		return
	}

	for i, in := range sub.Ordered() {
		a.Pos[instrToNode[in]] = positions[i]
	}
	*result = *buildResult(result.Model, a, result.Graph, result.Stalls)
}

// Ordered returns r's nodes' instructions sorted by their solved
// position: the concrete program order this Result represents, ready for
// the caller to splice back into a Program.
func (r *Result) Ordered() []*asmir.Instruction {
	return orderedInstrs(r)
}

// orderedInstrs returns result's nodes' instructions sorted by their
// solved position, the concrete program order a Result represents. Each
// renameable operand is rewritten in place to the name
// result.Assignment.RegOut chose, so the returned instructions reflect
// the solver's renaming decision, not just its reordering one.
func orderedInstrs(result *Result) []*asmir.Instruction {
	nodes := result.Graph.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return result.Assignment.Pos[nodes[i]] < result.Assignment.Pos[nodes[j]]
	})
	out := make([]*asmir.Instruction, len(nodes))
	for i, n := range nodes {
		applyRegisterAssignment(n, result.Assignment)
		out[i] = n.Instr
	}
	return out
}

// applyRegisterAssignment rewrites every renameable operand on n to the
// concrete name a chose for it (constraints.Assignment.RegOut), the step
// that turns a solved Assignment into emittable code (spec.md §4.3
// constraint 4-8's renaming decisions were otherwise never written back
// into the instruction stream).
func applyRegisterAssignment(n *dfg.Node, a *constraints.Assignment) {
	for _, p := range n.Instr.OperandPositions() {
		if name, ok := a.RenamedName(n, p.Pos); ok {
			n.Instr.Rename(p.Pos, name)
		}
	}
}

// applyHalving implements spec.md §4.5's halving heuristic: take the
// kernel in its already-optimized order, split it in half, rotate the
// halves ([second; first]), and re-optimize — either in periodic mode
// (considering the inter-iteration seam, Params.SWPipelining.HalvingPeriodic)
// or as a plain linear re-optimization. The rotated kernel is kept only if
// it does not use more stalls than the original; this bounds the
// heuristic to never regress the primary objective, since its purpose is
// exploring alternate overlap shapes, not alternate stall counts.
func (d *Driver) applyHalving(ctx context.Context, result *Result, cfg dfg.Config, p Params) (*Result, bool) {
	ordered := orderedInstrs(result)
	if len(ordered) < 2 {
		return nil, false
	}
	mid := len(ordered) / 2
	rotated := make([]*asmir.Instruction, 0, len(ordered))
	rotated = append(rotated, ordered[mid:]...)
	rotated = append(rotated, ordered[:mid]...)

	linearP := p
	var g *dfg.Graph
	if p.SWPipelining.HalvingPeriodic {
		g = dfg.BuildPeriodic(rotated, cfg)
	} else {
		g = dfg.Build(rotated, cfg)
		linearP.SWPipelining = SWPipeliningParams{}
	}
	refined, err := d.Search(ctx, g, linearP)
	if err != nil {
		d.Log.Debugf("heuristic: halving heuristic found no feasible rotation: %v", err)
		return nil, false
	}
	if refined.Stalls > result.Stalls {
		return nil, false
	}
	refined.NumExceptionalIterations = 1
	return refined, true
}
