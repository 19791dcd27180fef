// Package asmir is the assembly IR and parser frontend (spec.md §4.1): a
// typed Instruction record with explicit input/output/in-out operand
// lists, register classes, and a registry of instruction Variants that
// parse text lines into Instructions and emit Instructions back to text.
package asmir

import (
	"fmt"
	"sort"
	"strings"
)

// RegClass is a closed, target-specific register class (spec.md §3):
// GPR, Vector, StackGPR, StackVec, StackAny, Flags, ... Targets register
// their own classes; this package only fixes the shape of a class.
type RegClass struct {
	Name string

	pool            RegSet
	defaultReserved RegSet
	alias           map[string]string
}

// NewRegClass builds a RegClass with the given register pool. Use
// WithDefaultReserved/WithAlias to extend it before use; RegClass values
// are treated as immutable once handed to a Target.
func NewRegClass(name string, pool RegSet) *RegClass {
	return &RegClass{Name: name, pool: pool.Clone(), alias: map[string]string{}}
}

// WithDefaultReserved marks a subset of the pool as reserved by default
// (e.g. the stack pointer, frame pointer).
func (c *RegClass) WithDefaultReserved(reserved RegSet) *RegClass {
	c.defaultReserved = reserved.Clone()
	return c
}

// WithAlias registers an alternate spelling for a concrete register name
// (e.g. "ip0" for "x16" on AArch64).
func (c *RegClass) WithAlias(alias, canonical string) *RegClass {
	c.alias[alias] = canonical
	return c
}

// Pool returns the full set of concrete register names in this class.
func (c *RegClass) Pool() RegSet { return c.pool.Clone() }

// DefaultReserved returns the subset of Pool reserved by default.
func (c *RegClass) DefaultReserved() RegSet { return c.defaultReserved.Clone() }

// Resolve maps an alias to its canonical register name, or returns name
// unchanged if it isn't an alias.
func (c *RegClass) Resolve(name string) string {
	if canon, ok := c.alias[name]; ok {
		return canon
	}
	return name
}

// Contains reports whether name (after alias resolution) is in the pool.
func (c *RegClass) Contains(name string) bool {
	return c.pool.Contains(c.Resolve(name))
}

// Flags is the distinguished single-name register class every target must
// expose (spec.md §3: "flags are a distinguished register class with a
// single name").
const FlagsRegisterName = "flags"

// NewFlagsClass builds the one-register Flags class.
func NewFlagsClass() *RegClass {
	return NewRegClass("Flags", NewRegSet(FlagsRegisterName))
}

// RegSet is a set of concrete register names. It mirrors the shape of the
// teacher's regalloc.RegSet (Contains/Add/Range) but is keyed by name
// rather than a fixed-width bitset, since SLOTHY's register pools are
// architecture-defined string names, not a dense 0..63 index space.
type RegSet struct {
	m map[string]struct{}
}

// NewRegSet builds a RegSet containing the given names.
func NewRegSet(names ...string) RegSet {
	rs := RegSet{m: make(map[string]struct{}, len(names))}
	for _, n := range names {
		rs.m[n] = struct{}{}
	}
	return rs
}

// Contains reports whether name is a member.
func (rs RegSet) Contains(name string) bool {
	if rs.m == nil {
		return false
	}
	_, ok := rs.m[name]
	return ok
}

// Add inserts name, allocating the set's storage if it is nil.
func (rs *RegSet) Add(name string) {
	if rs.m == nil {
		rs.m = map[string]struct{}{}
	}
	rs.m[name] = struct{}{}
}

// Remove deletes name if present.
func (rs *RegSet) Remove(name string) {
	delete(rs.m, name)
}

// Len returns the number of members.
func (rs RegSet) Len() int { return len(rs.m) }

// Range calls f for every member in a deterministic (sorted) order, so
// solver search/output is reproducible under a fixed seed (spec.md §8
// property 7, determinism under seed).
func (rs RegSet) Range(f func(name string)) {
	for _, n := range rs.Sorted() {
		f(n)
	}
}

// Sorted returns the members in sorted order.
func (rs RegSet) Sorted() []string {
	out := make([]string, 0, len(rs.m))
	for n := range rs.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (rs RegSet) Clone() RegSet {
	out := NewRegSet()
	for n := range rs.m {
		out.m[n] = struct{}{}
	}
	return out
}

// Union returns the union of rs and other.
func (rs RegSet) Union(other RegSet) RegSet {
	out := rs.Clone()
	for n := range other.m {
		out.m[n] = struct{}{}
	}
	return out
}

// Sub returns rs with every member of other removed.
func (rs RegSet) Sub(other RegSet) RegSet {
	out := rs.Clone()
	for n := range other.m {
		delete(out.m, n)
	}
	return out
}

// IsSubsetOf reports whether every member of rs is also in other; used to
// validate the "restrictions ⊆ class pool" invariant from spec.md §3.
func (rs RegSet) IsSubsetOf(other RegSet) bool {
	for n := range rs.m {
		if !other.Contains(n) {
			return false
		}
	}
	return true
}

func (rs RegSet) String() string {
	return "{" + strings.Join(rs.Sorted(), ", ") + "}"
}

// ValidateRestriction returns an error if restriction is not a subset of
// class's pool (spec.md §3 invariant).
func ValidateRestriction(class *RegClass, restriction RegSet) error {
	if !restriction.IsSubsetOf(class.pool) {
		return fmt.Errorf("register restriction %s is not a subset of class %s's pool %s", restriction, class.Name, class.pool)
	}
	return nil
}
