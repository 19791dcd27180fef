package asmir

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Variant is one instruction-kind parser/emitter pair (spec.md §4.1): a
// static pattern, a parse function producing an Instruction, and an
// emitter that is the pattern's inverse. Parsing tries each Variant's
// pattern in turn and the first success wins (spec.md design note:
// "Dynamic class-per-variant dispatch maps to a tagged variant").
type Variant struct {
	// Mnemonic is the instruction mnemonic this variant handles, used as
	// the registry key (spec.md design note: "registered in a table keyed
	// by mnemonic prefix to reduce the try-all cost").
	Mnemonic string
	// Pattern matches an operand string (the text after the mnemonic) and
	// captures named groups for Parse to consume. Compiled once at
	// registration time, never per call.
	Pattern *regexp.Regexp
	// Parse builds an Instruction from the named captures of a successful
	// Pattern match plus the matched mnemonic text.
	Parse func(mnemonic string, groups map[string]string) (Instruction, error)
	// Emit is Parse's inverse: render an Instruction (post-renaming, post
	// reordering) back to assembly text.
	Emit func(in *Instruction) string
}

// Registry is a read-only-after-construction table of Variants keyed by
// mnemonic, matching spec.md §5's "parser variant registries (populated at
// startup, read-only thereafter)". Targets build one Registry and reuse it
// across every ParseLine call.
type Registry struct {
	byMnemonic map[string][]*Variant
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byMnemonic: map[string][]*Variant{}}
}

// Register adds v, keyed by its Mnemonic. Multiple variants may share a
// mnemonic (e.g. register-form vs immediate-form); they are tried in
// registration order.
func (r *Registry) Register(v *Variant) {
	r.byMnemonic[v.Mnemonic] = append(r.byMnemonic[v.Mnemonic], v)
}

// Mnemonics returns the registered mnemonics in sorted order, for
// diagnostics and tests.
func (r *Registry) Mnemonics() []string {
	out := make([]string, 0, len(r.byMnemonic))
	for m := range r.byMnemonic {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// VariantReject records why one Variant's Pattern failed to match, used to
// build a ParseError's full rejection trace (spec.md §7: "a per-variant
// reason trace").
type VariantReject struct {
	Mnemonic string
	Pattern  string
	Reason   string
}

// ParseLine parses one line of assembly text into an Instruction. It
// returns ok=false with the list of per-variant rejections if no variant's
// pattern matches; callers (the line-oriented frontend) turn that into a
// ParseError.
func (r *Registry) ParseLine(line string) (Instruction, []VariantReject, bool) {
	trimmed := strings.TrimSpace(line)
	mnemonic, rest := splitMnemonic(trimmed)
	variants, known := r.byMnemonic[mnemonic]
	if !known {
		return Instruction{}, []VariantReject{{Mnemonic: mnemonic, Reason: "unknown mnemonic"}}, false
	}

	var rejects []VariantReject
	for _, v := range variants {
		m := v.Pattern.FindStringSubmatch(rest)
		if m == nil {
			rejects = append(rejects, VariantReject{
				Mnemonic: mnemonic, Pattern: v.Pattern.String(),
				Reason: "operand text did not match pattern",
			})
			continue
		}
		groups := map[string]string{}
		for i, name := range v.Pattern.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			groups[name] = m[i]
		}
		in, err := v.Parse(mnemonic, groups)
		if err != nil {
			rejects = append(rejects, VariantReject{Mnemonic: mnemonic, Pattern: v.Pattern.String(), Reason: err.Error()})
			continue
		}
		in.sourceText = line
		in.variant = v
		return in, nil, true
	}
	return Instruction{}, rejects, false
}

// Emit renders in back to assembly text via the Variant it was parsed
// with. Panics if in was constructed without going through ParseLine,
// since that indicates a modeling bug in the caller (every Instruction the
// driver emits must have come from a successful parse).
func Emit(in *Instruction) string {
	if in.variant == nil {
		panic("BUG: Emit called on an Instruction with no originating Variant")
	}
	return in.variant.Emit(in)
}

func splitMnemonic(line string) (mnemonic, rest string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

// ParseError is returned when a line matches no known instruction variant
// (spec.md §7).
type ParseError struct {
	Line      string
	Rejects   []VariantReject
	LineIndex int
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parse error at line %d: %q matches no instruction variant\n", e.LineIndex, e.Line)
	for _, rj := range e.Rejects {
		fmt.Fprintf(&b, "  - %s %s: %s\n", rj.Mnemonic, rj.Pattern, rj.Reason)
	}
	return b.String()
}
