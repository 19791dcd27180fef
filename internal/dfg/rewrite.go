package dfg

import "github.com/slothy-opt/slothy/internal/diag"

// rewriteMaxIter bounds the rewrite fixpoint the same way the teacher
// bounds its constant-folding fixpoint (tetratelabs/wazero,
// ssa/pass.go's passConstFoldingOptMaxIter): a defensive ceiling, not a
// tuning knob expected to bind in practice.
const rewriteMaxIter = 1 << 16

// ApplyRewrites runs every node's Instruction.Rewrite callback to a
// fixpoint, rebuilding the graph whenever any callback reports a change
// (spec.md §4.1: "the DFG must be rebuilt while any callback reports
// change"; §9: "the driver fixpoints these"). It returns the final graph,
// which may be g itself if no callback ever fired.
func ApplyRewrites(g *Graph) *Graph {
	cur := g
	for iter := 0; iter < rewriteMaxIter; iter++ {
		changed := false
		for _, n := range cur.nodes {
			if n.Instr.Rewrite == nil {
				continue
			}
			if n.Instr.Rewrite(n) {
				changed = true
			}
		}
		if !changed {
			return cur
		}
		if diag.TraceDFG {
			diag.Tracef("dfg: rewrite fixpoint iteration %d changed the graph, rebuilding", iter)
		}
		cur = cur.Rebuild()
	}
	panic("BUG: rewrite fixpoint did not converge within rewriteMaxIter iterations")
}
