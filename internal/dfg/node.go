// Package dfg builds and maintains the dataflow graph SLOTHY's constraint
// core schedules over (spec.md §4.2): one Node per instruction, SSA-style
// producer/consumer edges per register, cross-iteration edges for loop
// bodies, and the rewrite-callback fixpoint that lets a Variant mutate its
// own node after construction.
package dfg

import (
	"fmt"
	"sort"

	"github.com/slothy-opt/slothy/internal/asmir"
)

// Edge is one producer→consumer dependency (spec.md §3's dst_out/dst_in_out
// and src_in/src_in_out tuples, unified into a single directed edge type).
type Edge struct {
	From, To *Node
	// FromPos/ToPos are flattened operand positions (asmir.OperandPositions)
	// on the producer and consumer respectively.
	FromPos, ToPos int
	// CrossIteration marks an edge that reaches back into a previous loop
	// iteration's copy of the body (spec.md §4.2).
	CrossIteration bool
	// IsWAW marks a write-after-write edge, only ever present when the
	// WAW modeling toggle (see Config) requested them (spec.md §4.2).
	IsWAW bool
}

// Node is one instruction in the graph. Nodes are arena-allocated and
// linked by prev/next in program order, mirroring the teacher's SSA
// instruction arena (tetratelabs/wazero, ssa/instructions.go: "prev, next
// *Instruction") rather than holding owning references between nodes.
type Node struct {
	ID  int
	Instr *asmir.Instruction

	prev, next *Node

	// Outgoing consumer edges, one slice per flattened operand position
	// that is an output or in-out (spec.md §3's dst_out/dst_in_out).
	Consumers map[int][]*Edge
	// Incoming producer edge, one per flattened operand position that is
	// an input or in-out; absent means the position is a live-in (spec.md
	// §3's src_in/src_in_out, "or external").
	Producers map[int]*Edge

	Depth int

	g *Graph
}

// Next returns the next node in program order, or nil at the tail.
func (n *Node) Next() *Node { return n.next }

// Prev returns the previous node in program order, or nil at the head.
func (n *Node) Prev() *Node { return n.prev }

// Instruction implements asmir.RewriteContext.
func (n *Node) Instruction() *asmir.Instruction { return n.Instr }

// InOutSuccessor implements asmir.RewriteContext: it returns the unique
// consumer of the in-out operand at idx (flattened position), or ok=false
// if that in-out is live-out (no consumer read it).
func (n *Node) InOutSuccessor(idx int) (*asmir.Instruction, int, bool) {
	edges := n.Consumers[idx]
	if len(edges) == 0 {
		return nil, 0, false
	}
	// An in-out that fed more than one later read cannot be collapsed to
	// a pure output without changing program semantics for the other
	// readers, so only a single downstream edge qualifies.
	if len(edges) != 1 {
		return nil, 0, false
	}
	e := edges[0]
	return e.To.Instr, e.ToPos, true
}

// PromoteInOutToOutput implements asmir.RewriteContext (spec.md §4.1's
// half-lane-write pair-fusion: a node may demote an in-out operand to a
// pure output once its sole consumer is known to no longer need the
// pre-existing value).
func (n *Node) PromoteInOutToOutput(idx int) {
	positions := n.Instr.OperandPositions()
	if idx < 0 || idx >= len(positions) {
		panic(fmt.Sprintf("BUG: PromoteInOutToOutput position %d out of range", idx))
	}
	p := positions[idx]
	if p.Role != asmir.RoleInOut {
		panic("BUG: PromoteInOutToOutput called on a non-in-out operand")
	}
	op := n.Instr.InOuts[p.Idx]
	n.Instr.InOuts = append(n.Instr.InOuts[:p.Idx], n.Instr.InOuts[p.Idx+1:]...)
	n.Instr.Outputs = append(n.Instr.Outputs, op)
	delete(n.Producers, idx)
	n.g.dirty = true
}

// LiveIns returns the flattened operand positions with no producer edge
// (spec.md §3: "external, i.e. live-in").
func (n *Node) LiveIns() []int {
	var out []int
	positions := n.Instr.OperandPositions()
	for _, p := range positions {
		if p.Role == asmir.RoleOutput {
			continue
		}
		if _, ok := n.Producers[p.Pos]; !ok {
			out = append(out, p.Pos)
		}
	}
	sort.Ints(out)
	return out
}
