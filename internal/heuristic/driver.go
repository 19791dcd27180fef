package heuristic

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slothy-opt/slothy/internal/arch"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/constraints"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// ErrSearchExhausted is returned when the binary search over stall counts
// reaches stalls_maximum_attempt without finding a feasible schedule
// (spec.md §7: SearchExhausted). The root package wraps this into its own
// typed SearchExhausted error, attaching the source text.
var ErrSearchExhausted = errors.New("heuristic: search exhausted stalls_maximum_attempt without a feasible schedule")

// Result is one successful optimization: the solved Model/Assignment pair
// plus the stall count it took, in program order ready for emission
// (spec.md §3's Result).
type Result struct {
	Model      *constraints.Model
	Assignment *constraints.Assignment
	Graph      *dfg.Graph
	Stalls     int

	// Code is this Result's instructions, renamed and reordered per
	// Assignment, emitted back to text (spec.md §3's Result.code).
	Code string

	// Reordering maps each node's original program-order index
	// (dfg.Node.ID) to its rank in the solved schedule with stall slots
	// compacted out; InverseReordering is its inverse.
	Reordering        map[int]int
	InverseReordering map[int]int
	// ReorderingWithBubbles is indexed by flattened position [0, L): the
	// original node ID placed there, or -1 for a stall/bubble slot
	// (spec.md §3's Result.reordering_with_bubbles).
	ReorderingWithBubbles []int
	// StallPositions lists the flattened positions the solved schedule
	// left empty.
	StallPositions []int

	// InputRenamings/OutputRenamings record the live-in/live-out boundary
	// renamings the solver actually chose, keyed by original register
	// name (spec.md §3's Result.input_renamings/output_renamings). Both
	// are empty when InputRenamePolicy/OutputRenamePolicy left every
	// boundary name unchanged (the default).
	InputRenamings  map[string]string
	OutputRenamings map[string]string

	// KernelInputOutput is the set of cross-iteration dependencies this
	// Result's kernel carries into the next iteration (spec.md §3's
	// kernel_input_output), read from Graph.CrossIterationEdges.
	KernelInputOutput []dfg.CrossIterationDep

	// NumExceptionalIterations counts the iterations handled outside the
	// steady-state kernel — the preamble and postamble combined — when
	// Model.SWPipelining is set; 0 for a non-pipelined Result.
	NumExceptionalIterations int
}

// buildResult assembles a Result from one solved (Model, Assignment,
// Graph) triple, deriving every reporting field spec.md §3 promises
// before applying the chosen renaming to the graph's instructions (so
// InputRenamings/OutputRenamings still see each operand's pre-renaming
// original name).
func buildResult(m *constraints.Model, a *constraints.Assignment, g *dfg.Graph, stalls int) *Result {
	r := &Result{Model: m, Assignment: a, Graph: g, Stalls: stalls}
	r.Reordering, r.InverseReordering, r.ReorderingWithBubbles, r.StallPositions = reorderingMaps(g, a)
	r.InputRenamings, r.OutputRenamings = renamingMaps(g, a)
	r.KernelInputOutput = g.CrossIterationDeps()
	if m.SWPipelining {
		r.NumExceptionalIterations = 1
	}

	instrs := orderedInstrs(r) // applies the chosen renaming as a side effect
	var b strings.Builder
	for i, in := range instrs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(asmir.Emit(in))
	}
	r.Code = b.String()
	return r
}

func reorderingMaps(g *dfg.Graph, a *constraints.Assignment) (reordering, inverse map[int]int, withBubbles, stalls []int) {
	nodes := g.Nodes()
	withBubbles = make([]int, a.L)
	for i := range withBubbles {
		withBubbles[i] = -1
	}
	for _, n := range nodes {
		withBubbles[a.Pos[n]] = n.ID
	}
	for p, id := range withBubbles {
		if id == -1 {
			stalls = append(stalls, p)
		}
	}

	sorted := append([]*dfg.Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool { return a.Pos[sorted[i]] < a.Pos[sorted[j]] })
	reordering = make(map[int]int, len(sorted))
	inverse = make(map[int]int, len(sorted))
	for rank, n := range sorted {
		reordering[n.ID] = rank
		inverse[rank] = n.ID
	}
	return reordering, inverse, withBubbles, stalls
}

// renamingMaps reports the boundary renamings actually chosen: a live-in
// read with no producer edge feeds InputRenamings, and an output/in-out
// whose original name is a live-out feeds OutputRenamings. Both skip
// entries left unchanged, so an empty InputRenamePolicy/OutputRenamePolicy
// yields empty maps.
func renamingMaps(g *dfg.Graph, a *constraints.Assignment) (inputs, outputs map[string]string) {
	inputs = map[string]string{}
	outputs = map[string]string{}
	for _, n := range g.Nodes() {
		for _, p := range n.Instr.OperandPositions() {
			orig := originalOperandName(n.Instr, p.Pos)
			switch p.Role {
			case asmir.RoleInput:
				if _, hasProducer := n.Producers[p.Pos]; hasProducer {
					continue
				}
				if name, ok := a.RenamedName(n, p.Pos); ok && name != orig {
					inputs[orig] = name
				}
			case asmir.RoleOutput, asmir.RoleInOut:
				if !g.LiveOuts.Contains(orig) {
					continue
				}
				if name, ok := a.RenamedName(n, p.Pos); ok && name != orig {
					outputs[orig] = name
				}
			}
		}
	}
	return inputs, outputs
}

func originalOperandName(in *asmir.Instruction, pos int) string {
	for _, p := range in.OperandPositions() {
		if p.Pos != pos {
			continue
		}
		switch p.Role {
		case asmir.RoleInput:
			return in.Inputs[p.Idx].Name
		case asmir.RoleOutput:
			return in.Outputs[p.Idx].Name
		default:
			return in.InOuts[p.Idx].Name
		}
	}
	return ""
}

// Driver orchestrates repeated Solver calls into the strategies spec.md
// §4.5 describes: binary search over stalls, SW pipelining (with the
// halving heuristic), the split heuristic, and naive warm-start
// preprocessing. Grounded on felix/bpf/asm's logrus usage
// (_examples/other_examples/76e1325a_*): Debugf for search progress,
// WithError for fatal diagnostics.
type Driver struct {
	Solver constraints.Solver
	Target arch.Target
	Log    *logrus.Entry
}

// NewDriver returns a Driver backed by the package's built-in
// branch-and-bound Solver.
func NewDriver(target arch.Target, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{Solver: constraints.NewBranchAndBoundSolver(), Target: target, Log: log}
}

// buildModel assembles a Model for one (graph, stalls) attempt from p.
func (d *Driver) buildModel(g *dfg.Graph, p Params, stalls int) *constraints.Model {
	locked := p.LockedRegisters.Clone()
	return &constraints.Model{
		Graph:              g,
		Target:             d.Target,
		IssueWidth:         p.IssueWidth,
		StallsAllowed:      stalls,
		AllowReordering:    p.AllowReordering,
		AllowRenaming:      p.AllowRenaming,
		SWPipelining:       p.SWPipelining.Enabled,
		SuppressPreamble:   p.SWPipelining.Enabled && !p.SWPipelining.AllowPre,
		SuppressPostamble:  p.SWPipelining.Enabled && !p.SWPipelining.AllowPost,
		InputsAreOutputs:   p.InputsAreOutputs,
		LockedRegisters:    locked,
		InputRenamePolicy:  p.InputRenamePolicy,
		OutputRenamePolicy: p.OutputRenamePolicy,
		TypingHints:        p.TypingHints,
		HazardWindow:       p.HazardWindow,
		Objective:          p.Objective,
		CostFn:             p.CostFn,
	}
}

// attempt runs one Solve at a fixed stall count, resetting the Solver
// first (spec.md §4.3: "model-reset between calls").
func (d *Driver) attempt(ctx context.Context, g *dfg.Graph, p Params, stalls int) (*constraints.Model, *constraints.Assignment, error) {
	d.Solver.Reset()
	m := d.buildModel(g, p, stalls)
	a, err := d.Solver.Solve(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	return m, a, nil
}

// timeoutFor returns the per-attempt context, tight once the search window
// has narrowed to p.StallsPrecision or less (spec.md §6:
// "stalls_timeout_below_precision bounds each attempt once the binary
// search window has closed to stalls_precision").
func (d *Driver) timeoutFor(ctx context.Context, p Params, windowWidth int) (context.Context, context.CancelFunc) {
	timeout := p.Timeout
	if windowWidth <= p.StallsPrecision && p.StallsTimeoutBelowPrecision > 0 {
		timeout = p.StallsTimeoutBelowPrecision
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Search runs the binary search over stalls (spec.md §4.5): starting at
// stalls_first_attempt, it doubles upward until a feasible stall count is
// found or stalls_maximum_attempt is exceeded, then binary-searches
// downward between the last-known-infeasible and first-known-feasible
// bounds until the window closes to stalls_precision.
func (d *Driver) Search(ctx context.Context, g *dfg.Graph, p Params) (*Result, error) {
	attemptStalls := p.StallsFirstAttempt
	if attemptStalls < p.StallsMinimumAttempt {
		attemptStalls = p.StallsMinimumAttempt
	}
	lastInfeasible := p.StallsMinimumAttempt - 1
	var bestModel *constraints.Model
	var bestAssignment *constraints.Assignment
	bestStalls := -1

	// Doubling phase: find any feasible stall count.
	for {
		tctx, cancel := d.timeoutFor(ctx, p, p.StallsMaximumAttempt)
		m, a, err := d.attempt(tctx, g, p, attemptStalls)
		cancel()
		if err == nil {
			bestModel, bestAssignment, bestStalls = m, a, attemptStalls
			d.Log.Debugf("heuristic: feasible at %d stalls", attemptStalls)
			break
		}
		if !errors.Is(err, constraints.ErrInfeasible) && !errors.Is(err, constraints.ErrTimeout) {
			return nil, err
		}
		d.Log.Debugf("heuristic: infeasible at %d stalls", attemptStalls)
		lastInfeasible = attemptStalls
		if attemptStalls >= p.StallsMaximumAttempt {
			d.Log.WithField("stalls_maximum_attempt", p.StallsMaximumAttempt).Error("search exhausted")
			return nil, ErrSearchExhausted
		}
		attemptStalls = attemptStalls*2 + 1
		if attemptStalls > p.StallsMaximumAttempt {
			attemptStalls = p.StallsMaximumAttempt
		}
	}

	// Binary-search phase: narrow [lastInfeasible+1, bestStalls] to within
	// stalls_precision.
	lo, hi := lastInfeasible+1, bestStalls
	for hi-lo > p.StallsPrecision {
		mid := lo + (hi-lo)/2
		tctx, cancel := d.timeoutFor(ctx, p, hi-lo)
		m, a, err := d.attempt(tctx, g, p, mid)
		cancel()
		switch {
		case err == nil:
			bestModel, bestAssignment, bestStalls = m, a, mid
			hi = mid
		case errors.Is(err, constraints.ErrInfeasible) || errors.Is(err, constraints.ErrTimeout):
			lo = mid + 1
		default:
			return nil, err
		}
	}

	// Step 3 (spec.md §4.3/§4.5): once the minimal stall count is proven
	// feasible, retry once at that fixed count to optimize the secondary
	// objective, unless the caller asked to skip it.
	if p.HasObjective {
		if retried, err := d.Solver.Retry(ctx, p.Objective); err == nil {
			bestAssignment = retried
		} else {
			d.Log.WithError(err).Debug("heuristic: objective retry failed, keeping primary solution")
		}
	}

	return buildResult(bestModel, bestAssignment, g, bestStalls), nil
}
