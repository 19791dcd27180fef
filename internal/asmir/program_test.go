package asmir

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProgramKeepsPassthroughAndLoop(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())

	// subs/cbnz are not product variants but the loop detector only needs
	// their SourceText, so register minimal pass-through variants for them.
	r.Register(&Variant{
		Mnemonic: "subs",
		Pattern:  regexp.MustCompile(`^(?P<a>\w+),\s*(?P<b>\w+),\s*#(?P<imm>\d+)$`),
		Parse: func(_ string, g map[string]string) (Instruction, error) {
			return Instruction{Mnemonic: "subs", InOuts: []Operand{{Name: g["a"]}}, Inputs: []Operand{{Name: g["b"]}}}, nil
		},
		Emit: func(in *Instruction) string { return in.SourceText() },
	})
	r.Register(&Variant{
		Mnemonic: "cbnz",
		Pattern:  regexp.MustCompile(`^(?P<reg>\w+),\s*(?P<label>\w+)$`),
		Parse: func(_ string, g map[string]string) (Instruction, error) {
			return Instruction{Mnemonic: "cbnz", Inputs: []Operand{{Name: g["reg"]}}}, nil
		},
		Emit: func(in *Instruction) string { return in.SourceText() },
	})

	src := "loop_start:\n" +
		"// body\n" +
		"mov x1, x2\n" +
		"subs x3, x3, #1\n" +
		"cbnz x3, loop_start\n"

	p, err := ParseProgram(src, r)
	require.NoError(t, err)
	require.Len(t, p.Instructions(), 3)

	loop, ok := FindLoop(p, "loop_start", AArch64Terminator{})
	require.True(t, ok)
	require.Equal(t, "x3", loop.CounterReg)
	require.Equal(t, int64(1), loop.DecrementImm)
}

func TestParseProgramRejectsUnknownMnemonic(t *testing.T) {
	r := NewRegistry()
	_, err := ParseProgram("frobnicate x1, x2\n", r)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 0, pe.LineIndex)
}

func TestProgramEmitRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())
	src := "// a comment\nmov x1, x2"
	p, err := ParseProgram(src, r)
	require.NoError(t, err)
	require.Equal(t, src, p.Emit())
}
