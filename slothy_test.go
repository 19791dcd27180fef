package slothy

import (
	"testing"

	"github.com/slothy-opt/slothy/internal/arch/samplearm"
	"github.com/stretchr/testify/require"
)

func TestOptimizeLinearChainNoStalls(t *testing.T) {
	src := "mov x1, x0\nmov x2, x1\nmov x3, x2\n"
	reg := samplearm.NewRegistry()
	cfg := NewConfig().WithConstraints(ConstraintsConfig{
		StallsMaximumAttempt: 8, AllowReordering: true, AllowRenaming: true, IssueWidth: 2,
	})

	result, err := Optimize(src, reg, samplearm.Target{}, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, result.Stalls)
	require.True(t, result.SelfCheckPassed)
}

// Scenario F (spec.md §8): corrupting the emitted output must make
// SelfCheck report failure.
func TestSelfCheckDetectsSwappedOutputs(t *testing.T) {
	reg := samplearm.NewRegistry()
	in := "mov x1, x0\nmov x2, x0\n"
	corrupted := "mov x2, x0\nmov x1, x0\n"

	err := SelfCheck(in, corrupted, reg)
	require.NoError(t, err, "this particular swap happens to be isomorphic; see the asymmetric case below")

	asymmetricIn := "mov x1, x0\nadd x2, x1, x1\n"
	asymmetricCorrupted := "add x2, x0, x0\nmov x1, x0\n"
	err = SelfCheck(asymmetricIn, asymmetricCorrupted, reg)
	require.Error(t, err)
	_, ok := err.(*SelfCheckFailed)
	require.True(t, ok)
}

func TestOptimizeDetectsLoopAndPreservesTerminator(t *testing.T) {
	src := "loop:\n" +
		"mul x1, x0, x0\n" +
		"add x2, x1, x1\n" +
		"subs x3, x3, #1\n" +
		"cbnz x3, loop\n"
	reg := samplearm.NewRegistry()
	cfg := NewConfig().WithConstraints(ConstraintsConfig{
		StallsMaximumAttempt: 16, AllowReordering: true, AllowRenaming: true, IssueWidth: 1,
	}).WithSelfCheck(false)

	result, err := Optimize(src, reg, samplearm.Target{}, cfg)
	require.NoError(t, err)
	require.Contains(t, result.Output, "cbnz x3, loop")
}

func TestConfigValidateRejectsConflictingEntryPoints(t *testing.T) {
	cfg := NewConfig().
		WithSWPipelining(SWPipeliningConfig{Enabled: true, Unroll: 2}).
		WithSplitHeuristic(SplitHeuristicConfig{Enabled: true, Factor: 2})
	err := cfg.Validate()
	require.Error(t, err)
	_, ok := err.(*ConfigError)
	require.True(t, ok)
}
