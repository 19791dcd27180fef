package dfg

import (
	"testing"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/stretchr/testify/require"
)

func gprClass() *asmir.RegClass {
	return asmir.NewRegClass("GPR", asmir.NewRegSet("x0", "x1", "x2", "v0"))
}

// buildInOutChain builds a two-node graph by hand: a node with an in-out
// operand ("acc"), consumed once by a second node, to exercise
// InOutSuccessor/PromoteInOutToOutput without needing a real Variant.
func buildInOutChain(t *testing.T) (*Graph, *Node, *Node) {
	t.Helper()
	c := gprClass()
	producer := &asmir.Instruction{
		Mnemonic: "fmla",
		Inputs:   []asmir.Operand{{Name: "v0", Class: c}},
		InOuts:   []asmir.Operand{{Name: "x0", Class: c}},
	}
	consumer := &asmir.Instruction{
		Mnemonic: "mov",
		Inputs:   []asmir.Operand{{Name: "x0", Class: c}},
		Outputs:  []asmir.Operand{{Name: "x1", Class: c}},
	}
	g := Build([]*asmir.Instruction{producer, consumer}, Config{})
	return g, g.nodes[0], g.nodes[1]
}

func TestInOutSuccessorFindsUniqueConsumer(t *testing.T) {
	_, p, c := buildInOutChain(t)
	// producer's in-out "x0" is flattened position 1 (input v0 is pos 0).
	instr, operandIdx, ok := p.InOutSuccessor(1)
	require.True(t, ok)
	require.Equal(t, c.Instr, instr)
	require.Equal(t, 0, operandIdx)
}

func TestPromoteInOutToOutputMovesOperand(t *testing.T) {
	g, p, _ := buildInOutChain(t)
	require.Len(t, p.Instr.InOuts, 1)
	require.Len(t, p.Instr.Outputs, 0)

	p.PromoteInOutToOutput(1)

	require.Len(t, p.Instr.InOuts, 0)
	require.Len(t, p.Instr.Outputs, 1)
	require.Equal(t, "x0", p.Instr.Outputs[0].Name)
	require.True(t, g.dirty)
}

func TestPromoteInOutToOutputPanicsOnInput(t *testing.T) {
	_, p, _ := buildInOutChain(t)
	require.Panics(t, func() { p.PromoteInOutToOutput(0) }) // pos 0 is the input, not in-out
}
