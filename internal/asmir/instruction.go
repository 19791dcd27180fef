package asmir

import "fmt"

// OperandRole is the read/write role of an operand position within an
// Instruction (spec.md §3: input/output/in-out lists are disjoint by
// position).
type OperandRole byte

const (
	RoleInput OperandRole = iota
	RoleOutput
	RoleInOut
)

func (r OperandRole) String() string {
	switch r {
	case RoleInput:
		return "in"
	case RoleOutput:
		return "out"
	case RoleInOut:
		return "inout"
	default:
		return "invalid"
	}
}

// Operand is one operand of a parsed Instruction: a concrete register name
// (or symbolic placeholder prior to renaming), its register class, and an
// optional restriction narrower than the class's pool.
type Operand struct {
	Name        string
	Class       *RegClass
	Restriction *RegSet // nil if unrestricted
}

// Combination restricts a tuple of operand positions to a fixed list of
// legal concrete-register tuples (spec.md §3: "operand combination
// restrictions... used for multi-register grouped loads/stores").
type Combination struct {
	Positions []int
	Tuples    [][]string
}

// AddrMode carries addressing metadata for load/store Instructions
// (spec.md §4.1): base register, pre/post index offsets, writeback.
type AddrMode struct {
	HasAddressing bool
	BaseReg       string
	PreIndexImm   int64
	PostIndexImm  int64
	Writeback     bool
}

// RewriteFunc is a pair-fusion callback (spec.md §4.1, §9): invoked once
// per DFG node after construction. The node is seen only through the
// RewriteContext interface declared below, to avoid an import cycle
// (internal/dfg imports internal/asmir, not the reverse); internal/dfg's
// *Node implements RewriteContext and is what the fixpoint driver passes.
type RewriteFunc func(ctx RewriteContext) (changed bool)

// RewriteContext is implemented by *dfg.Node so that Instruction rewrite
// callbacks can inspect and mutate operand lists without internal/asmir
// importing internal/dfg.
type RewriteContext interface {
	// Instruction returns the node's current Instruction.
	Instruction() *Instruction
	// InOutSuccessor returns the unique consumer of the in-out operand at
	// position idx, or ok=false if it is a live-out (no consumer).
	InOutSuccessor(idx int) (consumerInstr *Instruction, consumerOperandIdx int, ok bool)
	// PromoteInOutToOutput demotes the in-out operand at idx to a pure
	// output operand (spec.md §4.1's half-lane-write fusion).
	PromoteInOutToOutput(idx int)
}

// Instruction is SLOTHY's typed assembly-IR node (spec.md §3).
type Instruction struct {
	Mnemonic string

	Inputs  []Operand
	Outputs []Operand
	InOuts  []Operand

	Restrictions map[int]RegSet // keyed by flattened operand position, see OperandPositions
	Combinations []Combination

	Addr AddrMode

	Datatype string
	Lane     int // -1 if not lane-indexed
	Imm      int64
	HasImm   bool

	Rewrite RewriteFunc

	// sourceText is the original line this Instruction was parsed from,
	// retained so the emitter can fall back to it for non-rewritten
	// passthrough lines (labels, directives, comments) and so diagnostics
	// can quote the offending line.
	sourceText string
	// variant is set by the parser to the Variant that produced this
	// Instruction, used by the emitter to re-serialize after renaming.
	variant *Variant
}

// SourceText returns the original text this Instruction was parsed from.
func (in *Instruction) SourceText() string { return in.sourceText }

// OperandPositions enumerates every operand across Inputs, Outputs and
// InOuts as a flattened (role, index-within-role) pair used to key
// Restrictions/Combinations. Position numbering is: inputs first (0..),
// then outputs, then in-outs, matching the order operands are declared in
// a Variant (spec.md §3: "the three operand lists are disjoint by
// position").
func (in *Instruction) OperandPositions() []struct {
	Role OperandRole
	Idx  int
	Pos  int
} {
	var out []struct {
		Role OperandRole
		Idx  int
		Pos  int
	}
	pos := 0
	for i := range in.Inputs {
		out = append(out, struct {
			Role OperandRole
			Idx  int
			Pos  int
		}{RoleInput, i, pos})
		pos++
	}
	for i := range in.Outputs {
		out = append(out, struct {
			Role OperandRole
			Idx  int
			Pos  int
		}{RoleOutput, i, pos})
		pos++
	}
	for i := range in.InOuts {
		out = append(out, struct {
			Role OperandRole
			Idx  int
			Pos  int
		}{RoleInOut, i, pos})
		pos++
	}
	return out
}

// Validate checks the invariants spec.md §3 requires of a parsed
// Instruction: flags class has exactly one name, restrictions are subsets
// of their class's pool.
func (in *Instruction) Validate() error {
	checkOperand := func(op Operand) error {
		if op.Class != nil && op.Class.Name == "Flags" {
			if op.Name != FlagsRegisterName && op.Class.Contains(op.Name) == false {
				return fmt.Errorf("flags operand %q is not the distinguished flags register", op.Name)
			}
		}
		if op.Restriction != nil && op.Class != nil {
			if err := ValidateRestriction(op.Class, *op.Restriction); err != nil {
				return err
			}
		}
		return nil
	}
	for _, op := range in.Inputs {
		if err := checkOperand(op); err != nil {
			return err
		}
	}
	for _, op := range in.Outputs {
		if err := checkOperand(op); err != nil {
			return err
		}
	}
	for _, op := range in.InOuts {
		if err := checkOperand(op); err != nil {
			return err
		}
	}
	for pos, rs := range in.Restrictions {
		positions := in.OperandPositions()
		if pos < 0 || pos >= len(positions) {
			return fmt.Errorf("restriction references out-of-range operand position %d", pos)
		}
		p := positions[pos]
		op := in.operandAt(p.Role, p.Idx)
		if op.Class != nil {
			if err := ValidateRestriction(op.Class, rs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *Instruction) operandAt(role OperandRole, idx int) Operand {
	switch role {
	case RoleInput:
		return in.Inputs[idx]
	case RoleOutput:
		return in.Outputs[idx]
	default:
		return in.InOuts[idx]
	}
}

// Rename replaces the concrete name of an operand at the given flattened
// position (see OperandPositions) with newName; used by the heuristic
// driver (applyRegisterAssignment) to thread the constraint core's chosen
// renaming back into the Instruction before emission (spec.md §4.3 constraint 4, renaming consistency).
func (in *Instruction) Rename(pos int, newName string) {
	positions := in.OperandPositions()
	if pos < 0 || pos >= len(positions) {
		panic(fmt.Sprintf("BUG: Rename position %d out of range", pos))
	}
	p := positions[pos]
	switch p.Role {
	case RoleInput:
		in.Inputs[p.Idx].Name = newName
	case RoleOutput:
		in.Outputs[p.Idx].Name = newName
	case RoleInOut:
		in.InOuts[p.Idx].Name = newName
	}
}

// String renders a compact debug form, not the emitted assembly text (use
// Emit for that).
func (in *Instruction) String() string {
	return fmt.Sprintf("%s(in=%v out=%v inout=%v)", in.Mnemonic, in.Inputs, in.Outputs, in.InOuts)
}

func (op Operand) String() string { return op.Name }
