// Package samplearm is a minimal AArch64-like test fixture target
// (SPEC_FULL.md §6.4.4): four mnemonics — register move, register-register
// add, multiply, and a paired load — plus the subs/cbnz loop-terminator
// pair, enough to drive the module's seed tests without requiring a licensed ISA/uarch
// database. It is not a product deliverable; spec.md §1 excludes "the ISA
// and micro-architectural models" as external collaborators SLOTHY itself
// must supply.
package samplearm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/slothy-opt/slothy/internal/arch"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/casfold"
)

// GPR is the general-purpose register class: x0..x30.
var GPR = buildGPR()

func buildGPR() *asmir.RegClass {
	names := make([]string, 0, 31)
	for i := 0; i <= 30; i++ {
		names = append(names, fmt.Sprintf("x%d", i))
	}
	pool := asmir.NewRegSet(names...)
	reserved := asmir.NewRegSet("x30") // link register, reserved by default
	return asmir.NewRegClass("GPR", pool).WithDefaultReserved(reserved)
}

// Flags is the distinguished single-name flags class.
var Flags = asmir.NewFlagsClass()

var regPair = `x(\d|[12]\d|30)`

var movRe = regexp.MustCompile(`^(?P<dst>` + regPair + `),\s*(?P<src>` + regPair + `)$`)
var addRe = regexp.MustCompile(`^(?P<dst>` + regPair + `),\s*(?P<a>` + regPair + `),\s*(?P<b>` + regPair + `)$`)
var mulRe = regexp.MustCompile(`^(?P<dst>` + regPair + `),\s*(?P<a>` + regPair + `),\s*(?P<b>` + regPair + `)$`)
var ldpRe = regexp.MustCompile(`^(?P<d1>` + regPair + `),\s*(?P<d2>` + regPair + `),\s*\[(?P<base>` + regPair + `)\]$`)
// imm accepts either a plain decimal literal or a parenthesized symbolic
// expression (e.g. "#(16+8*2)"), the latter folded via casfold.
var subsRe = regexp.MustCompile(`^(?P<dst>` + regPair + `),\s*(?P<a>` + regPair + `),\s*#(?P<imm>\(.+\)|\d+)$`)
var cbnzRe = regexp.MustCompile(`^(?P<cond>` + regPair + `),\s*(?P<label>\w+)$`)

func gprOperand(name string) asmir.Operand {
	return asmir.Operand{Name: name, Class: GPR}
}

// parseImmediate accepts either a plain decimal literal or a parenthesized
// symbolic expression folded via casfold, so an address-mode or loop-count
// immediate like "#(16+8*2)" parses to the same Instruction as "#32".
func parseImmediate(raw string) (int64, error) {
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		v, ok := casfold.FoldImmediate(raw[1 : len(raw)-1])
		if !ok {
			return 0, fmt.Errorf("samplearm: cannot fold immediate expression %q", raw)
		}
		return v, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// NewRegistry builds the Variant registry for samplearm's four mnemonics,
// plus the subs/cbnz pair used as a loop terminator.
func NewRegistry() *asmir.Registry {
	r := asmir.NewRegistry()

	r.Register(&asmir.Variant{
		Mnemonic: "mov",
		Pattern:  movRe,
		Parse: func(_ string, g map[string]string) (asmir.Instruction, error) {
			return asmir.Instruction{
				Mnemonic: "mov",
				Inputs:   []asmir.Operand{gprOperand(g["src"])},
				Outputs:  []asmir.Operand{gprOperand(g["dst"])},
			}, nil
		},
		Emit: func(in *asmir.Instruction) string {
			return fmt.Sprintf("mov %s, %s", in.Outputs[0].Name, in.Inputs[0].Name)
		},
	})

	r.Register(&asmir.Variant{
		Mnemonic: "add",
		Pattern:  addRe,
		Parse: func(_ string, g map[string]string) (asmir.Instruction, error) {
			return asmir.Instruction{
				Mnemonic: "add",
				Inputs:   []asmir.Operand{gprOperand(g["a"]), gprOperand(g["b"])},
				Outputs:  []asmir.Operand{gprOperand(g["dst"])},
			}, nil
		},
		Emit: func(in *asmir.Instruction) string {
			return fmt.Sprintf("add %s, %s, %s", in.Outputs[0].Name, in.Inputs[0].Name, in.Inputs[1].Name)
		},
	})

	r.Register(&asmir.Variant{
		Mnemonic: "mul",
		Pattern:  mulRe,
		Parse: func(_ string, g map[string]string) (asmir.Instruction, error) {
			return asmir.Instruction{
				Mnemonic: "mul",
				Inputs:   []asmir.Operand{gprOperand(g["a"]), gprOperand(g["b"])},
				Outputs:  []asmir.Operand{gprOperand(g["dst"])},
			}, nil
		},
		Emit: func(in *asmir.Instruction) string {
			return fmt.Sprintf("mul %s, %s, %s", in.Outputs[0].Name, in.Inputs[0].Name, in.Inputs[1].Name)
		},
	})

	r.Register(&asmir.Variant{
		Mnemonic: "ldp",
		Pattern:  ldpRe,
		Parse: func(_ string, g map[string]string) (asmir.Instruction, error) {
			return asmir.Instruction{
				Mnemonic: "ldp",
				Inputs:   []asmir.Operand{gprOperand(g["base"])},
				Outputs:  []asmir.Operand{gprOperand(g["d1"]), gprOperand(g["d2"])},
				Addr:     asmir.AddrMode{HasAddressing: true, BaseReg: g["base"]},
				Combinations: []asmir.Combination{
					{Positions: []int{1, 2}, Tuples: pairedLoadTuples()},
				},
			}, nil
		},
		Emit: func(in *asmir.Instruction) string {
			return fmt.Sprintf("ldp %s, %s, [%s]", in.Outputs[0].Name, in.Outputs[1].Name, in.Inputs[0].Name)
		},
	})

	// subs/cbnz are registered so loop-terminating countdown-and-branch
	// pairs parse as ordinary Instructions (asmir.FindLoop's
	// AArch64Terminator matches against their re-serialized SourceText,
	// the same way any other recognized Variant round-trips).
	r.Register(&asmir.Variant{
		Mnemonic: "subs",
		Pattern:  subsRe,
		Parse: func(_ string, g map[string]string) (asmir.Instruction, error) {
			imm, err := parseImmediate(g["imm"])
			if err != nil {
				return asmir.Instruction{}, err
			}
			return asmir.Instruction{
				Mnemonic: "subs",
				Inputs:   []asmir.Operand{gprOperand(g["a"])},
				Outputs:  []asmir.Operand{gprOperand(g["dst"]), {Name: asmir.FlagsRegisterName, Class: Flags}},
				Imm:      imm,
				HasImm:   true,
			}, nil
		},
		Emit: func(in *asmir.Instruction) string {
			return fmt.Sprintf("subs %s, %s, #%d", in.Outputs[0].Name, in.Inputs[0].Name, in.Imm)
		},
	})

	r.Register(&asmir.Variant{
		Mnemonic: "cbnz",
		Pattern:  cbnzRe,
		Parse: func(_ string, g map[string]string) (asmir.Instruction, error) {
			return asmir.Instruction{
				Mnemonic: "cbnz",
				Inputs:   []asmir.Operand{gprOperand(g["cond"])},
				Datatype: g["label"],
			}, nil
		},
		Emit: func(in *asmir.Instruction) string {
			return fmt.Sprintf("cbnz %s, %s", in.Inputs[0].Name, in.Datatype)
		},
	})

	return r
}

// pairedLoadTuples enumerates the destination-register pairs samplearm's
// ldp accepts: the consecutive pairs (xi, xi+1) for i in 0..29, starting
// at any index, even or odd. This records the restriction shape (spec.md
// §3's "operand combination restrictions"); any other pair of destinations
// is rejected by the combination check.
func pairedLoadTuples() [][]string {
	var tuples [][]string
	for i := 0; i <= 29; i++ {
		tuples = append(tuples, []string{fmt.Sprintf("x%d", i), fmt.Sprintf("x%d", i+1)})
	}
	return tuples
}

// Target implements arch.Target for the samplearm fixture. Latencies and
// throughputs are small made-up constants sufficient to exercise the
// constraint core and heuristic driver's stall/overlap objective; they are
// not measurements of any real core.
type Target struct{}

var _ arch.Target = Target{}

func (Target) ListRegisters(class *asmir.RegClass, includeExtras bool) asmir.RegSet {
	_ = includeExtras
	return class.Pool()
}

func (Target) DefaultReserved() asmir.RegSet {
	return asmir.NewRegSet("x30")
}

// ClassByName resolves the two classes samplearm defines, by their
// declared RegClass.Name ("GPR", "Flags").
func (Target) ClassByName(name string) *asmir.RegClass {
	switch name {
	case GPR.Name:
		return GPR
	case Flags.Name:
		return Flags
	default:
		return nil
	}
}

func (Target) Units(i *asmir.Instruction) [][]arch.ExecutionUnit {
	switch i.Mnemonic {
	case "ldp":
		return [][]arch.ExecutionUnit{{"LSU0", "LSU1"}}
	case "mul":
		return [][]arch.ExecutionUnit{{"MUL"}}
	default:
		return [][]arch.ExecutionUnit{{"ALU0", "ALU1"}}
	}
}

func (Target) Latency(producer, consumer *asmir.Instruction, role asmir.OperandRole) int {
	_ = consumer
	_ = role
	switch producer.Mnemonic {
	case "ldp":
		return 4
	case "mul":
		return 3
	default:
		return 1
	}
}

func (Target) Throughput(i *asmir.Instruction) int {
	if i.Mnemonic == "mul" {
		return 2
	}
	return 1
}

func (Target) Classify(i *asmir.Instruction) arch.InstructionTags {
	return arch.InstructionTags{
		IsLoad:    i.Mnemonic == "ldp",
		IsStore:   false,
		SetsFlags: i.Mnemonic == "subs",
		IsBranch:  i.Mnemonic == "cbnz",
	}
}
