package asmir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func gpr() *RegClass {
	return NewRegClass("GPR", NewRegSet("x0", "x1", "x2", "x3"))
}

func TestOperandPositionsFlattensInOutputInout(t *testing.T) {
	in := &Instruction{
		Mnemonic: "fma",
		Inputs:   []Operand{{Name: "x0", Class: gpr()}},
		Outputs:  []Operand{{Name: "x1", Class: gpr()}},
		InOuts:   []Operand{{Name: "x2", Class: gpr()}},
	}
	positions := in.OperandPositions()
	require.Len(t, positions, 3)
	require.Equal(t, RoleInput, positions[0].Role)
	require.Equal(t, RoleOutput, positions[1].Role)
	require.Equal(t, RoleInOut, positions[2].Role)
}

func TestRenameByFlattenedPosition(t *testing.T) {
	in := &Instruction{
		Inputs:  []Operand{{Name: "x0", Class: gpr()}},
		Outputs: []Operand{{Name: "x1", Class: gpr()}},
	}
	in.Rename(1, "x3")
	require.Equal(t, "x3", in.Outputs[0].Name)
}

func TestRenameOutOfRangePanics(t *testing.T) {
	in := &Instruction{Inputs: []Operand{{Name: "x0", Class: gpr()}}}
	require.Panics(t, func() { in.Rename(5, "x1") })
}

func TestValidateRejectsOutOfSubsetRestriction(t *testing.T) {
	c := gpr()
	bad := NewRegSet("x9")
	in := &Instruction{
		Inputs:       []Operand{{Name: "x0", Class: c, Restriction: &bad}},
		Restrictions: map[int]RegSet{0: bad},
	}
	require.Error(t, in.Validate())
}

func TestValidateAcceptsSubsetRestriction(t *testing.T) {
	c := gpr()
	ok := NewRegSet("x0", "x1")
	in := &Instruction{
		Inputs: []Operand{{Name: "x0", Class: c, Restriction: &ok}},
	}
	require.NoError(t, in.Validate())
}
