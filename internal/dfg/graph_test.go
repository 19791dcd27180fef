package dfg

import (
	"testing"

	"github.com/slothy-opt/slothy/internal/arch/samplearm"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/stretchr/testify/require"
)

func mustParseAll(t *testing.T, reg *asmir.Registry, lines []string) []*asmir.Instruction {
	t.Helper()
	out := make([]*asmir.Instruction, len(lines))
	for i, line := range lines {
		in, rejects, ok := reg.ParseLine(line)
		require.True(t, ok, "line %q: %v", line, rejects)
		instr := in
		out[i] = &instr
	}
	return out
}

func TestBuildLinearChainEdges(t *testing.T) {
	reg := samplearm.NewRegistry()
	instrs := mustParseAll(t, reg, []string{
		"mov x1, x0",
		"add x2, x1, x1",
	})
	g := Build(instrs, Config{})
	require.Len(t, g.nodes, 2)

	mov, add := g.nodes[0], g.nodes[1]
	require.True(t, g.LiveIns.Contains("x0"))
	require.NotEmpty(t, mov.Consumers)
	require.NotEmpty(t, add.Producers)
}

func TestBuildLiveOutsWithoutConsumer(t *testing.T) {
	reg := samplearm.NewRegistry()
	instrs := mustParseAll(t, reg, []string{
		"mov x1, x0",
	})
	g := Build(instrs, Config{})
	require.True(t, g.LiveOuts.Contains("x1"))
}

func TestBuildInputsAreOutputsForcesLiveOut(t *testing.T) {
	reg := samplearm.NewRegistry()
	instrs := mustParseAll(t, reg, []string{
		"add x2, x0, x1",
	})
	g := Build(instrs, Config{InputsAreOutputs: true})
	require.True(t, g.LiveOuts.Contains("x0"))
	require.True(t, g.LiveOuts.Contains("x1"))
}

func TestComputeDepthsFollowsChain(t *testing.T) {
	reg := samplearm.NewRegistry()
	instrs := mustParseAll(t, reg, []string{
		"mov x1, x0",
		"mov x2, x1",
		"mov x3, x2",
	})
	g := Build(instrs, Config{})
	require.Equal(t, 0, g.nodes[0].Depth)
	require.Equal(t, 1, g.nodes[1].Depth)
	require.Equal(t, 2, g.nodes[2].Depth)
}

func TestBuildPeriodicAddsCrossIterationEdge(t *testing.T) {
	reg := samplearm.NewRegistry()
	instrs := mustParseAll(t, reg, []string{
		"add x1, x1, x0",
	})
	g := BuildPeriodic(instrs, Config{})
	require.NotEmpty(t, g.CrossIterationEdges)
	require.True(t, g.CrossIterationEdges[0].CrossIteration)
}

func TestIsomorphicModuloRenamingIgnoresNames(t *testing.T) {
	reg := samplearm.NewRegistry()
	a := mustParseAll(t, reg, []string{"mov x1, x0", "add x2, x1, x1"})
	b := mustParseAll(t, reg, []string{"mov x9, x8", "add x5, x9, x9"})
	ga, gb := Build(a, Config{}), Build(b, Config{})
	require.True(t, IsomorphicModuloRenaming(ga, gb))
}

func TestIsomorphicModuloRenamingRejectsShapeChange(t *testing.T) {
	reg := samplearm.NewRegistry()
	a := mustParseAll(t, reg, []string{"mov x1, x0", "add x2, x1, x1"})
	b := mustParseAll(t, reg, []string{"mov x1, x0", "add x2, x0, x0"})
	ga, gb := Build(a, Config{}), Build(b, Config{})
	require.False(t, IsomorphicModuloRenaming(ga, gb))
}
