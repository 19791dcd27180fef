package heuristic

import (
	"sort"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// NaiveReorder produces a greedy warm-start instruction order (spec.md
// §4.5: "naive preprocessing (optional)"): instructions sorted by
// ascending DFG depth, stable on ties. Because dfg.Graph.computeDepths
// guarantees depth[consumer] > depth[producer] for every producer edge,
// sorting by depth ascending can never place a consumer before its
// producer, so the result is always a valid program order — just not
// necessarily a good one. It is never itself a final schedule: the driver
// only uses it to seed AllowReordering-enabled searches with a plausible
// starting point, never as the value handed back in a Result.
func NaiveReorder(instrs []*asmir.Instruction, cfg dfg.Config) []*asmir.Instruction {
	g := dfg.Build(instrs, cfg)
	nodes := g.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Depth < nodes[j].Depth
	})
	out := make([]*asmir.Instruction, len(nodes))
	for i, n := range nodes {
		out[i] = n.Instr
	}
	return out
}
