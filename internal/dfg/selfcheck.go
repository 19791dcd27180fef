package dfg

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/core"
)

// toCoreGraph renders g's mnemonic-and-edge-shape skeleton into a
// lvlath/core.Graph (grounded on builder.BuildGraph's NewGraph/AddVertex/
// AddEdge usage, other_examples/a62d3eb8_katalvlaran-lvlath__builder-api.go.go):
// each Node becomes a vertex named by its position and mnemonic, each Edge
// becomes a directed edge. Concrete register names are deliberately left
// out of the vertex/edge identity so that IsomorphicModuloRenaming can
// compare two graphs "up to renaming" (spec.md §8 property 1) by comparing
// these skeletons rather than matching register names directly.
func toCoreGraph(g *Graph) *core.Graph {
	cg := core.NewGraph(core.WithDirected(true))
	for _, n := range g.nodes {
		_ = cg.AddVertex(vertexID(n))
	}
	for _, n := range g.nodes {
		for _, edges := range n.Consumers {
			for _, e := range edges {
				_ = cg.AddEdge(vertexID(e.From), vertexID(e.To), 1)
			}
		}
	}
	return cg
}

func vertexID(n *Node) string {
	return fmt.Sprintf("%d:%s", n.ID, n.Instr.Mnemonic)
}

// IsomorphicModuloRenaming reports whether a and b have the same shape: the
// same number of nodes, the same sequence of mnemonics in program order,
// and, for every node, the same multiset of program-order offsets to its
// producers (which also fixes the number of producer edges); the lvlath
// projections of both graphs must also have equal vertex and edge counts.
// This is the canonical-form comparison the root package's SelfCheck uses (spec.md
// §4.3: "reconstruct the DFG of the emitted code and verify structural
// equivalence (isomorphism up to renaming) with the input DFG"); register
// names are intentionally excluded from the comparison since renaming is
// exactly what a successful optimization is allowed to change.
func IsomorphicModuloRenaming(a, b *Graph) bool {
	if len(a.nodes) != len(b.nodes) {
		return false
	}
	for i := range a.nodes {
		if a.nodes[i].Instr.Mnemonic != b.nodes[i].Instr.Mnemonic {
			return false
		}
		if !sameEdgeShape(a.nodes[i], b.nodes[i], a, b) {
			return false
		}
	}
	ga, gb := toCoreGraph(a), toCoreGraph(b)
	return ga.VertexCount() == gb.VertexCount() && ga.EdgeCount() == gb.EdgeCount()
}

func sameEdgeShape(na, nb *Node, ga, gb *Graph) bool {
	offsetsFor := func(n *Node, g *Graph) []int {
		var out []int
		for _, e := range n.Producers {
			out = append(out, n.ID-e.From.ID)
		}
		sort.Ints(out)
		return out
	}
	oa, ob := offsetsFor(na, ga), offsetsFor(nb, gb)
	if len(oa) != len(ob) {
		return false
	}
	for i := range oa {
		if oa[i] != ob[i] {
			return false
		}
	}
	return true
}
