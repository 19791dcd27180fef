// Package constraints is SLOTHY's constraint core (spec.md §4.3): it binds
// one combinatorial scheduling-and-renaming problem per invocation over a
// DFG and a target micro-architectural model, and solves it through a
// Solver. The built-in branchAndBoundSolver is grounded on the teacher's
// register allocator (tetratelabs/wazero, backend/regalloc) structurally —
// an Allocator-shaped object with Reset()/Done()-style lifecycle methods —
// generalized from pure register coloring to joint position-and-renaming
// search, since wazero's allocator never reorders instructions.
package constraints

import (
	"github.com/slothy-opt/slothy/internal/arch"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// ObjectiveKind selects the secondary, has_objective lexicographic
// objective (spec.md §4.3: "minimize stalls... then, if has_objective,
// minimize a secondary objective").
type ObjectiveKind int

const (
	// ObjectiveNone means only the primary (stall count) objective applies.
	ObjectiveNone ObjectiveKind = iota
	// ObjectiveOverlap minimizes the count of instructions with
	// stage != core (SW pipelining's overlap metric).
	ObjectiveOverlap
	// ObjectiveCost delegates to Model.CostFn, a target-provided cost.
	ObjectiveCost
)

// RenamePolicy controls how the registers of one register class may be
// renamed at a loop body's live-in/live-out boundary (spec.md §6's
// rename_inputs/rename_outputs, keyed by class name). The root
// package's Config carries its own byte-based RenamePolicy with the same
// constant order;
// heuristic.Params translates one into the other at the package boundary.
type RenamePolicy int

const (
	// RenameStatic keeps the boundary operand's original name. This is
	// also the implicit policy for any class absent from
	// InputRenamePolicy/OutputRenamePolicy, so empty maps keep every
	// boundary name unchanged.
	RenameStatic RenamePolicy = iota
	// RenameAny allows the solver to pick any register in the class.
	RenameAny
	// RenameOther allows any register in the class except the original name.
	RenameOther
)

// Stage is a SW-pipelining stage assignment (spec.md §4.3 decision
// variable stage[i]).
type Stage int

const (
	StageNone Stage = iota // SW pipelining disabled
	StagePre
	StageCore
	StagePost
)

// Model is one combinatorial problem instance (spec.md §4.3).
type Model struct {
	Graph  *dfg.Graph
	Target arch.Target

	// IssueWidth is the number of instructions that may issue in the same
	// cycle (spec.md §4.3: "cyc[i] = floor(pos[i] / issue_width)").
	IssueWidth int
	// StallsAllowed is the number of bubble slots added to len(Graph.Nodes())
	// to form L, the total position space.
	StallsAllowed int

	AllowReordering bool
	AllowRenaming   bool

	// SWPipelining enables the stage[i] decision variable and
	// cross-iteration position-ordering relaxation (spec.md §4.3 rule 1's
	// "pos[v] + L > pos[u] with stage offsetting").
	SWPipelining bool

	// SuppressPreamble/SuppressPostamble collapse that stage's split to
	// zero, folding it entirely into the steady-state kernel (spec.md §6's
	// sw_pipelining.allow_pre/allow_post, negated: the root Config default
	// is "allowed", so Params only sets these true when a caller turned a
	// side off).
	SuppressPreamble  bool
	SuppressPostamble bool

	// InputsAreOutputs requires every live-in to be a live-out under the
	// same concrete name after renaming (constraint 10).
	InputsAreOutputs bool

	// LockedRegisters never appear as rename targets (constraint 11).
	LockedRegisters asmir.RegSet

	// InputRenamePolicy/OutputRenamePolicy govern renaming of live-in
	// reads and live-out writes specifically, keyed by the operand's
	// register class name (asmir.RegClass.Name). A class absent from
	// either map is RenameStatic. Both are consulted only by assignRegisters's live-in/live-out
	// branches; internal (non-boundary) renaming is unaffected and
	// remains governed solely by AllowRenaming.
	InputRenamePolicy  map[string]RenamePolicy
	OutputRenamePolicy map[string]RenamePolicy

	// TypingHints overrides class resolution for a boundary operand whose
	// class cannot be inferred from its position (symbolic/templated
	// code), keyed by the operand's original register name to the
	// target-declared class name Target.ClassByName resolves (spec.md
	// §6's typing_hints). Consulted only when the position's own Class is
	// nil; ignored otherwise.
	TypingHints map[string]string

	// HazardWindow, if > 0, forbids a load at cycle c from reading an
	// address a store at cycle c' within |c-c'| < HazardWindow may have
	// written, unless AddressesProvablyDiffer says otherwise (constraint
	// 9). Zero disables the hazard check.
	HazardWindow int
	// AddressesProvablyDiffer, if set, lets the caller supply
	// base/offset-level alias analysis; nil means no pair is ever proven
	// to differ, i.e. the hazard window applies to every load/store pair.
	AddressesProvablyDiffer func(load, store *dfg.Node) bool

	Objective ObjectiveKind
	// CostFn computes the ObjectiveCost value of a candidate Assignment;
	// required when Objective == ObjectiveCost.
	CostFn func(*Assignment) int
}

// positionKey identifies one renameable operand: a node and its flattened
// operand position within that node.
type positionKey struct {
	node *dfg.Node
	pos  int
}

// Assignment is one feasible solution to a Model (spec.md §3's Result
// fields, restricted to what the constraint core itself produces; the
// heuristic driver assembles the final Result from one or more
// Assignments).
type Assignment struct {
	// Pos maps each node to its chosen position in [0, L).
	Pos map[*dfg.Node]int
	// Stage is populated only when Model.SWPipelining is set.
	Stage map[*dfg.Node]Stage
	// RegOut maps each renameable operand to its chosen concrete register
	// name.
	RegOut map[positionKey]string

	L      int
	Stalls int
}

// RenamedName returns the concrete register name recorded in RegOut for
// node's operand at flattened position pos, and ok=false (with an empty
// name) if RegOut has no entry for that position. With AllowRenaming
// disabled, RegOut records each operand's original name.
func (a *Assignment) RenamedName(n *dfg.Node, pos int) (string, bool) {
	name, ok := a.RegOut[positionKey{n, pos}]
	return name, ok
}
