package constraints

import (
	"context"
	"testing"

	"github.com/slothy-opt/slothy/internal/arch/samplearm"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/dfg"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, lines []string) *dfg.Graph {
	t.Helper()
	reg := samplearm.NewRegistry()
	instrs := make([]*asmir.Instruction, len(lines))
	for i, line := range lines {
		in, rejects, ok := reg.ParseLine(line)
		require.True(t, ok, "line %q: %v", line, rejects)
		instr := in
		instrs[i] = &instr
	}
	return dfg.Build(instrs, dfg.Config{})
}

func TestSolveFeasibleIndependentChain(t *testing.T) {
	g := buildGraph(t, []string{
		"mov x1, x0",
		"mov x3, x2",
	})
	m := &Model{
		Graph: g, Target: samplearm.Target{},
		IssueWidth: 2, StallsAllowed: 0, AllowReordering: true, AllowRenaming: false,
	}
	s := NewBranchAndBoundSolver()
	a, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	require.True(t, Validate(m, a))
}

func TestSolveRespectsLatencyWithStalls(t *testing.T) {
	g := buildGraph(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
	})
	m := &Model{
		Graph: g, Target: samplearm.Target{},
		IssueWidth: 1, StallsAllowed: 4, AllowReordering: false, AllowRenaming: false,
	}
	s := NewBranchAndBoundSolver()
	a, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	require.True(t, Validate(m, a))
}

func TestSolveInfeasibleWithoutEnoughStalls(t *testing.T) {
	g := buildGraph(t, []string{
		"mul x1, x0, x0",
		"add x2, x1, x1",
	})
	m := &Model{
		Graph: g, Target: samplearm.Target{},
		IssueWidth: 1, StallsAllowed: 0, AllowReordering: false, AllowRenaming: false,
	}
	s := NewBranchAndBoundSolver()
	_, err := s.Solve(context.Background(), m)
	require.ErrorIs(t, err, ErrInfeasible)
}

func TestSolveWithRenamingRespectsReserved(t *testing.T) {
	g := buildGraph(t, []string{
		"mov x1, x0",
	})
	m := &Model{
		Graph: g, Target: samplearm.Target{},
		IssueWidth: 1, StallsAllowed: 0, AllowReordering: false, AllowRenaming: true,
	}
	s := NewBranchAndBoundSolver()
	a, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	reserved := samplearm.Target{}.DefaultReserved()
	for _, name := range a.RegOut {
		require.False(t, reserved.Contains(name))
	}
}

func TestRetryReturnsCachedAssignment(t *testing.T) {
	g := buildGraph(t, []string{"mov x1, x0"})
	m := &Model{Graph: g, Target: samplearm.Target{}, IssueWidth: 1, StallsAllowed: 0}
	s := NewBranchAndBoundSolver()
	first, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	second, err := s.Retry(context.Background(), ObjectiveOverlap)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResetClearsCache(t *testing.T) {
	s := NewBranchAndBoundSolver().(*branchAndBoundSolver)
	g := buildGraph(t, []string{"mov x1, x0"})
	m := &Model{Graph: g, Target: samplearm.Target{}, IssueWidth: 1, StallsAllowed: 0}
	_, err := s.Solve(context.Background(), m)
	require.NoError(t, err)
	s.Reset()
	_, err = s.Retry(context.Background(), ObjectiveNone)
	require.ErrorIs(t, err, ErrInfeasible)
}
