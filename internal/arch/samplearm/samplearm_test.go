package samplearm

import (
	"testing"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/stretchr/testify/require"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	src := "mul x1, x0, x0\nadd x2, x1, x1\n"
	program, err := asmir.ParseProgram(src, reg)
	require.NoError(t, err)
	require.Equal(t, src, program.Emit())
}

func TestSubsAcceptsPlainAndFoldedImmediate(t *testing.T) {
	reg := NewRegistry()

	plain, _, ok := reg.ParseLine("subs x3, x3, #8")
	require.True(t, ok)
	require.Equal(t, int64(8), plain.Imm)

	folded, _, ok := reg.ParseLine("subs x3, x3, #(4*2)")
	require.True(t, ok)
	require.Equal(t, int64(8), folded.Imm)
}

func TestLoopTerminatorParses(t *testing.T) {
	reg := NewRegistry()
	src := "loop:\n" +
		"mul x1, x0, x0\n" +
		"subs x3, x3, #(1<<0)\n" +
		"cbnz x3, loop\n"
	program, err := asmir.ParseProgram(src, reg)
	require.NoError(t, err)

	loop, ok := asmir.FindLoop(program, "loop", asmir.AArch64Terminator{})
	require.True(t, ok)
	require.Equal(t, int64(1), loop.DecrementImm)
}
