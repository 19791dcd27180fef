package asmir

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func movVariant() *Variant {
	re := regexp.MustCompile(`^(?P<dst>x\d+),\s*(?P<src>x\d+)$`)
	return &Variant{
		Mnemonic: "mov",
		Pattern:  re,
		Parse: func(_ string, g map[string]string) (Instruction, error) {
			return Instruction{
				Mnemonic: "mov",
				Inputs:   []Operand{{Name: g["src"]}},
				Outputs:  []Operand{{Name: g["dst"]}},
			}, nil
		},
		Emit: func(in *Instruction) string {
			return "mov " + in.Outputs[0].Name + ", " + in.Inputs[0].Name
		},
	}
}

func TestRegistryParseLineSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())

	in, rejects, ok := r.ParseLine("mov x1, x2")
	require.True(t, ok)
	require.Empty(t, rejects)
	require.Equal(t, "x1", in.Outputs[0].Name)
	require.Equal(t, "x2", in.Inputs[0].Name)
	require.Equal(t, "mov x1, x2", in.SourceText())
}

func TestRegistryParseLineUnknownMnemonic(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())

	_, rejects, ok := r.ParseLine("add x1, x2, x3")
	require.False(t, ok)
	require.Len(t, rejects, 1)
	require.Equal(t, "unknown mnemonic", rejects[0].Reason)
}

func TestRegistryParseLineOperandMismatch(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())

	_, rejects, ok := r.ParseLine("mov x1")
	require.False(t, ok)
	require.Len(t, rejects, 1)
}

func TestEmitRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())

	in, _, ok := r.ParseLine("mov x1, x2")
	require.True(t, ok)
	require.Equal(t, "mov x1, x2", Emit(&in))
}

func TestEmitPanicsWithoutVariant(t *testing.T) {
	in := &Instruction{Mnemonic: "mov"}
	require.Panics(t, func() { Emit(in) })
}

func TestParseErrorMessageListsRejections(t *testing.T) {
	r := NewRegistry()
	r.Register(movVariant())
	_, rejects, ok := r.ParseLine("mov x1")
	require.False(t, ok)
	err := &ParseError{Line: "mov x1", Rejects: rejects, LineIndex: 3}
	require.Contains(t, err.Error(), "line 3")
	require.Contains(t, err.Error(), "mov x1")
}
