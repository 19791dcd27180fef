package heuristic

import (
	"context"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/slothy-opt/slothy/internal/arch/samplearm"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/constraints"
	"github.com/slothy-opt/slothy/internal/dfg"
	"github.com/stretchr/testify/require"
)

func testDriver(t *testing.T) *Driver {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return NewDriver(samplearm.Target{}, logrus.NewEntry(logger))
}

func mustParse(t *testing.T, lines []string) []*asmir.Instruction {
	t.Helper()
	reg := samplearm.NewRegistry()
	out := make([]*asmir.Instruction, len(lines))
	for i, line := range lines {
		in, rejects, ok := reg.ParseLine(line)
		require.True(t, ok, "line %q: %v", line, rejects)
		instr := in
		out[i] = &instr
	}
	return out
}

// Scenario A (spec.md §8): a 4-instruction chain with unit latencies and
// issue width 2 should need zero stalls.
func TestScenarioA_ChainNeedsNoStalls(t *testing.T) {
	instrs := mustParse(t, []string{
		"mov x1, x0",
		"mov x2, x1",
		"mov x3, x2",
		"mov x4, x3",
	})
	g := dfg.Build(instrs, dfg.Config{})
	p := DefaultParams()
	p.IssueWidth = 2
	p.StallsMaximumAttempt = 8

	d := testDriver(t)
	result, err := d.Search(context.Background(), g, p)
	require.NoError(t, err)
	require.Equal(t, 0, result.Stalls)
	require.True(t, constraints.Validate(result.Model, result.Assignment))
}

// Scenario B (spec.md §8): two independent loads with no shared
// dependency should be issued in the same cycle under issue width 2.
func TestScenarioB_IndependentLoadsShareACycle(t *testing.T) {
	reg := samplearm.NewRegistry()
	a, rejects, ok := reg.ParseLine("ldp x1, x2, [x0]")
	require.True(t, ok, "%v", rejects)
	b, rejects, ok := reg.ParseLine("ldp x3, x4, [x5]")
	require.True(t, ok, "%v", rejects)
	nodes := []*asmir.Instruction{&a, &b}

	g := dfg.Build(nodes, dfg.Config{})
	p := DefaultParams()
	p.IssueWidth = 2
	p.StallsMaximumAttempt = 8

	d := testDriver(t)
	result, err := d.Search(context.Background(), g, p)
	require.NoError(t, err)
	require.True(t, constraints.Validate(result.Model, result.Assignment))

	cycles := map[int]bool{}
	for _, n := range result.Graph.Nodes() {
		cycles[result.Assignment.Pos[n]/p.IssueWidth] = true
	}
	require.Len(t, cycles, 1, "both independent loads should land in a single cycle")
}

// Property 9 (spec.md §8): increasing stalls_allowed never increases the
// achieved stall count.
func TestStallMonotonicity(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
		"mul x3, x2, x2",
		"add x4, x3, x3",
	})
	d := testDriver(t)

	prevStalls := 1 << 30
	for _, maxStalls := range []int{4, 8, 16, 32} {
		g := dfg.Build(instrs, dfg.Config{})
		p := DefaultParams()
		p.IssueWidth = 1
		p.StallsMaximumAttempt = maxStalls
		p.AllowReordering = false
		p.AllowRenaming = false

		result, err := d.Search(context.Background(), g, p)
		require.NoError(t, err)
		require.LessOrEqual(t, result.Stalls, prevStalls)
		prevStalls = result.Stalls
	}
}

// Property 8 (spec.md §8): re-running the optimizer on its own output
// yields no further stall improvement.
func TestIdempotenceAtOptimum(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
	})
	d := testDriver(t)
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 8

	g1 := dfg.Build(instrs, dfg.Config{})
	first, err := d.Search(context.Background(), g1, p)
	require.NoError(t, err)

	optimized := orderedInstrs(first)
	g2 := dfg.Build(optimized, dfg.Config{})
	second, err := d.Search(context.Background(), g2, p)
	require.NoError(t, err)
	require.Equal(t, first.Stalls, second.Stalls)
}

func TestSearchExhaustedWhenNoStallCountFits(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
	})
	g := dfg.Build(instrs, dfg.Config{})
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 0
	p.AllowReordering = false
	p.AllowRenaming = false

	d := testDriver(t)
	_, err := d.Search(context.Background(), g, p)
	require.ErrorIs(t, err, ErrSearchExhausted)
}

func TestNaiveReorderPreservesTopologicalValidity(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"mov x5, x6",
		"add x2, x1, x1",
	})
	reordered := NaiveReorder(instrs, dfg.Config{})
	require.Len(t, reordered, 3)
	// mul must still precede add, since add consumes mul's output.
	mulIdx, addIdx := -1, -1
	for i, in := range reordered {
		if in.Mnemonic == "mul" {
			mulIdx = i
		}
		if in.Mnemonic == "add" {
			addIdx = i
		}
	}
	require.Less(t, mulIdx, addIdx)
}

// Property 2 (spec.md §8): the solved positions form a bijection onto
// [0, L) restricted to the node set — no two nodes share a position.
func TestPermutationPropertyPositionsAreDistinct(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
		"mul x3, x0, x0",
		"add x4, x3, x3",
	})
	g := dfg.Build(instrs, dfg.Config{})
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 16

	d := testDriver(t)
	result, err := d.Search(context.Background(), g, p)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, n := range result.Graph.Nodes() {
		pos := result.Assignment.Pos[n]
		require.False(t, seen[pos], "position %d assigned to more than one node", pos)
		seen[pos] = true
	}
}

// Property 5 (spec.md §8): renaming faithfulness. If o produces a value
// consumed by i, the concrete register name chosen for o's output must
// equal the concrete name read at i's corresponding input.
func TestRenamingFaithfulnessAcrossEdges(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
		"mul x3, x2, x2",
	})
	g := dfg.Build(instrs, dfg.Config{})
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 16
	p.AllowRenaming = true

	d := testDriver(t)
	result, err := d.Search(context.Background(), g, p)
	require.NoError(t, err)

	for _, n := range result.Graph.Nodes() {
		for toPos, edge := range n.Producers {
			producerName, ok := result.Assignment.RenamedName(edge.From, edge.FromPos)
			require.True(t, ok, "producer output must have a chosen name")
			consumerName, ok := result.Assignment.RenamedName(n, toPos)
			require.True(t, ok, "consumer input must resolve to the producer's chosen name")
			require.Equal(t, producerName, consumerName,
				"edge %d->%d: producer chose %q but consumer reads %q", edge.From.ID, n.ID, producerName, consumerName)
		}
	}
}

// Property 7 (spec.md §8): determinism. The branch-and-bound solver has no
// randomness or seed parameter, so running the same search twice under the
// same ctx/timeout must return the identical stall count and the same
// mnemonic order every time.
func TestDeterminismAcrossRepeatedSearches(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
		"mul x3, x0, x0",
		"add x4, x3, x3",
	})
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 16

	d := testDriver(t)

	g1 := dfg.Build(instrs, dfg.Config{})
	first, err := d.Search(context.Background(), g1, p)
	require.NoError(t, err)

	g2 := dfg.Build(instrs, dfg.Config{})
	second, err := d.Search(context.Background(), g2, p)
	require.NoError(t, err)

	require.Equal(t, first.Stalls, second.Stalls)
	firstOrder := orderedInstrs(first)
	secondOrder := orderedInstrs(second)
	require.Equal(t, len(firstOrder), len(secondOrder))
	for i := range firstOrder {
		require.Equal(t, firstOrder[i].Mnemonic, secondOrder[i].Mnemonic)
	}
}

// Scenario C (spec.md §8): 8 independent multiplies under sw_pipelining
// with mul latency 3 / throughput 2 (samplearm's Target) and issue width 1
// should pipeline into a steady-state kernel rather than fail to improve.
func TestScenarioC_IndependentMultipliesPipeline(t *testing.T) {
	var lines []string
	for i := 1; i <= 8; i++ {
		lines = append(lines, fmt.Sprintf("mul x%d, x0, x0", i))
	}
	instrs := mustParse(t, lines)

	d := testDriver(t)
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 32
	p.SWPipelining.Enabled = true

	result, err := d.OptimizePeriodic(context.Background(), instrs, p)
	require.NoError(t, err)
	require.True(t, constraints.Validate(result.Model, result.Assignment))
	require.Len(t, result.Ordered(), 8)
}

// Scenario D (spec.md §8): a three-instruction chain whose last
// instruction re-writes x1, the register the first one wrote; with
// reordering and renaming both allowed, the solved assignment must still
// satisfy every constraint family.
func TestScenarioD_RenamingUnderReorder(t *testing.T) {
	instrs := mustParse(t, []string{
		"mov x1, x0",
		"add x2, x1, x1",
		"mul x1, x2, x2",
	})
	g := dfg.Build(instrs, dfg.Config{})
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 16
	p.AllowReordering = true
	p.AllowRenaming = true

	d := testDriver(t)
	result, err := d.Search(context.Background(), g, p)
	require.NoError(t, err)
	require.True(t, constraints.Validate(result.Model, result.Assignment))
}

// Scenario E (spec.md §8): the halving heuristic on a 16-instruction
// kernel must never leave the driver with more stalls than the
// non-rotated optimum.
func TestScenarioE_HalvingHeuristicNeverRegresses(t *testing.T) {
	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, "mul x1, x0, x0", "add x2, x1, x1")
	}
	instrs := mustParse(t, lines)

	d := testDriver(t)
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 32

	baseline, err := d.OptimizePeriodic(context.Background(), instrs, p)
	require.NoError(t, err)

	p.SWPipelining.HalvingHeuristic = true
	halved, err := d.OptimizePeriodic(context.Background(), instrs, p)
	require.NoError(t, err)
	require.LessOrEqual(t, halved.Stalls, baseline.Stalls)
}

func TestOptimizeSplitRespectsChunkBoundaries(t *testing.T) {
	instrs := mustParse(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
		"mul x3, x0, x0",
		"add x4, x3, x3",
	})
	p := DefaultParams()
	p.IssueWidth = 1
	p.StallsMaximumAttempt = 8
	p.SplitHeuristic = SplitParams{Enabled: true, WindowSize: 2}

	d := testDriver(t)
	out, _, err := d.OptimizeSplit(context.Background(), instrs, p)
	require.NoError(t, err)
	require.Len(t, out, 4)
}
