// Package arch defines the abstract micro-architectural model SLOTHY's
// constraint core and heuristic driver are built against (spec.md §4.4),
// in the shape of the teacher's regalloc.Function/Block/Instr interfaces
// (tetratelabs/wazero, backend/regalloc/api.go): a small set of methods an
// ISA-specific implementation supplies so the rest of the package never
// depends on a concrete instruction set.
package arch

import "github.com/slothy-opt/slothy/internal/asmir"

// ExecutionUnit is an opaque per-target execution-port identifier (e.g.
// "V0", "LSU", "ALU0"). Targets define their own set; the constraint core
// only ever compares them for equality.
type ExecutionUnit string

// InstructionTags carries the classification bits the constraint core and
// heuristic driver consult when deciding which optional constraint
// families apply to an instruction (spec.md §4.3): whether it is a load or
// store (address-increment/combination constraints), whether it writes
// flags (flag-dependency constraints), and whether it is a branch (excluded
// from reordering entirely).
type InstructionTags struct {
	IsLoad    bool
	IsStore   bool
	SetsFlags bool
	IsBranch  bool
}

// Target is the abstract micro-architectural model (spec.md §4.4):
// register inventory, per-instruction execution units, inter-instruction
// latency, throughput, and classification. Every method must be a pure
// function of its arguments, since the constraint core and heuristic
// driver call it repeatedly during search and expect stable answers.
type Target interface {
	// ListRegisters returns every concrete register name in class's pool,
	// optionally widened with target-specific extra aliases when
	// includeExtras is set (spec.md §3: "classes may expose additional
	// alias names beyond their canonical pool").
	ListRegisters(class *asmir.RegClass, includeExtras bool) asmir.RegSet

	// DefaultReserved returns the registers reserved by default across all
	// classes (stack pointer, frame pointer, and similar), independent of
	// any one class's own DefaultReserved.
	DefaultReserved() asmir.RegSet

	// Units returns the execution units i can issue to. The outer slice is
	// an ordered list of "issue slots" i occupies simultaneously (most
	// instructions have exactly one); each inner slice is the set of units
	// any one of which may service that slot.
	Units(i *asmir.Instruction) [][]ExecutionUnit

	// Latency returns the number of cycles that must elapse between
	// producer issuing and consumer issuing, given that consumer reads a
	// value producer defines in the operand role described by role
	// (spec.md §4.2: "latency is a function of the producer, the consumer,
	// and which operand carries the dependency").
	Latency(producer, consumer *asmir.Instruction, role asmir.OperandRole) int

	// Throughput returns the number of cycles i occupies its execution
	// unit(s) for, independent of any consumer.
	Throughput(i *asmir.Instruction) int

	// Classify returns i's InstructionTags.
	Classify(i *asmir.Instruction) InstructionTags

	// ClassByName resolves a register class by its declared name, or nil
	// if the target has no such class. This backs typing_hints (spec.md
	// §6): a symbol's class cannot always be inferred from the operand
	// position it occupies (symbolic/templated code), so the caller may
	// name the class explicitly instead.
	ClassByName(name string) *asmir.RegClass
}
