package asmir

import (
	"regexp"
	"strconv"
	"strings"
)

// Line is one line of a parsed Program: either an Instruction or a
// passthrough line (label, directive, comment) the emitter must reproduce
// verbatim (spec.md §6: "Labels encountered outside the recognized loop
// are copied verbatim" and "comments that the parser classified as
// non-instruction lines").
type Line struct {
	Instr      *Instruction // nil for passthrough lines
	Passthrough string
}

// Program is a parsed, line-oriented assembly listing.
type Program struct {
	Lines []Line
}

// Instructions returns just the Instruction lines, in program order.
func (p *Program) Instructions() []*Instruction {
	var out []*Instruction
	for i := range p.Lines {
		if p.Lines[i].Instr != nil {
			out = append(out, p.Lines[i].Instr)
		}
	}
	return out
}

var labelRe = regexp.MustCompile(`^(\w+):\s*$`)

// commentOrDirective reports whether a trimmed line is a comment or
// assembler directive rather than an instruction or label, so the parser
// can classify it as passthrough without attempting variant matching.
func commentOrDirective(trimmed string) bool {
	return trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, ";") ||
		strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ".")
}

// ParseProgram parses src line by line using reg. Lines recognized as
// labels, comments, or directives are kept as passthrough lines; every
// other line must match a Variant in reg or a ParseError is returned
// (spec.md §7: parse errors are fatal to the current call).
func ParseProgram(src string, reg *Registry) (*Program, error) {
	p := &Program{}
	for i, raw := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(raw)
		if commentOrDirective(trimmed) || labelRe.MatchString(trimmed) {
			p.Lines = append(p.Lines, Line{Passthrough: raw})
			continue
		}
		in, rejects, ok := reg.ParseLine(raw)
		if !ok {
			return nil, &ParseError{Line: raw, Rejects: rejects, LineIndex: i}
		}
		instr := in
		p.Lines = append(p.Lines, Line{Instr: &instr})
	}
	return p, nil
}

// Emit renders the Program back to assembly text, emitting Instructions
// via their Variant and passthrough lines verbatim (spec.md §6).
func (p *Program) Emit() string {
	var b strings.Builder
	for i, l := range p.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if l.Instr != nil {
			b.WriteString(Emit(l.Instr))
		} else {
			b.WriteString(l.Passthrough)
		}
	}
	return b.String()
}

// Loop is a recognized countdown loop (spec.md §3, §6): a label, a body of
// instructions, and the terminating subs/cbnz (or architecturally
// equivalent) pair.
type Loop struct {
	StartLabel   string
	EndLabel     string
	CounterReg   string
	DecrementImm int64
	Unroll       int

	// BodyStart/BodyEnd are indices into Program.Lines spanning the loop
	// body, exclusive of the label line and the terminator pair.
	BodyStart, BodyEnd int
}

// LoopTerminatorMatcher recognizes a loop's countdown-and-branch
// terminator pair for a specific ISA family (spec.md §6: "architecturally
// equivalent patterns for other ISAs"). AArch64Terminator is the only
// concrete implementation shipped; the interface exists so another ISA
// family's idiom can be plugged in without changing loop-discovery logic.
type LoopTerminatorMatcher interface {
	// Match attempts to parse lines[i] and lines[i+1] as a countdown
	// decrement followed by a conditional branch back to label. It
	// returns the counter register and decrement immediate on success.
	Match(lines []Line, i int, label string) (counterReg string, decrementImm int64, ok bool)
}

var subsRe = regexp.MustCompile(`^subs\s+(\w+),\s*(\w+),\s*#(\d+)\s*$`)
var cbnzRe = regexp.MustCompile(`^cbnz\s+(\w+),\s*(\w+)\s*$`)

// AArch64Terminator recognizes the "subs <reg>, <reg>, #<imm>" followed by
// "cbnz <reg>, <label>" pair spec.md §6 specifies for AArch64.
type AArch64Terminator struct{}

func (AArch64Terminator) Match(lines []Line, i int, label string) (string, int64, bool) {
	if i+1 >= len(lines) {
		return "", 0, false
	}
	a, b := lines[i], lines[i+1]
	if a.Instr == nil || b.Instr == nil {
		return "", 0, false
	}
	// Match the re-serialized text rather than the raw source line, so an
	// immediate the parser folded (e.g. "#(4*2)") is seen as its value.
	subs := subsRe.FindStringSubmatch(strings.TrimSpace(Emit(a.Instr)))
	if subs == nil || subs[1] != subs[2] {
		return "", 0, false
	}
	cbnz := cbnzRe.FindStringSubmatch(strings.TrimSpace(Emit(b.Instr)))
	if cbnz == nil || cbnz[1] != subs[1] || cbnz[2] != label {
		return "", 0, false
	}
	imm, err := strconv.ParseInt(subs[3], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return subs[1], imm, true
}

// FindLoop scans p for a label matching name, followed eventually by a
// terminator pair matcher recognizes that branches back to it. It returns
// LoopNotFound-shaped errors (nil, err) via the caller; this function
// itself just returns ok=false so the caller can build the right error
// type with its own context.
func FindLoop(p *Program, label string, matcher LoopTerminatorMatcher) (*Loop, bool) {
	labelIdx := -1
	for i, l := range p.Lines {
		if l.Instr == nil {
			if m := labelRe.FindStringSubmatch(strings.TrimSpace(l.Passthrough)); m != nil && m[1] == label {
				labelIdx = i
				break
			}
		}
	}
	if labelIdx < 0 {
		return nil, false
	}
	for i := labelIdx + 1; i < len(p.Lines)-1; i++ {
		if counter, imm, ok := matcher.Match(p.Lines, i, label); ok {
			return &Loop{
				StartLabel:   label,
				EndLabel:     label,
				CounterReg:   counter,
				DecrementImm: imm,
				Unroll:       1,
				BodyStart:    labelIdx + 1,
				BodyEnd:      i,
			}, true
		}
	}
	return nil, false
}
