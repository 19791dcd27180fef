package constraints

import (
	"github.com/slothy-opt/slothy/internal/arch"
	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// This file holds the eleven constraint-family checks from spec.md §4.3, as
// pure predicates over a (Model, Assignment) pair. The solver calls the
// cheap, incremental forms of several of these during search; Validate
// re-runs all eleven against a finished Assignment as a final check (and is
// what the package's tests exercise directly).

func cyc(m *Model, pos int) int {
	if m.IssueWidth <= 0 {
		return pos
	}
	return pos / m.IssueWidth
}

// checkDataflowOrdering is constraint 1.
func checkDataflowOrdering(m *Model, a *Assignment) bool {
	for _, n := range m.Graph.Nodes() {
		for _, e := range producerEdges(n) {
			pu, pv := a.Pos[e.From], a.Pos[n]
			if e.CrossIteration && m.SWPipelining {
				if pv+a.L <= pu {
					return false
				}
				continue
			}
			if pv <= pu {
				return false
			}
		}
	}
	return true
}

func producerEdges(n *dfg.Node) []*dfg.Edge {
	var out []*dfg.Edge
	for _, e := range n.Producers {
		out = append(out, e)
	}
	return out
}

// checkLatency is constraint 2.
func checkLatency(m *Model, a *Assignment) bool {
	for _, n := range m.Graph.Nodes() {
		for pos, e := range n.Producers {
			role := roleAtFlattenedPos(n.Instr, pos)
			lat := m.Target.Latency(e.From.Instr, n.Instr, role)
			if cyc(m, a.Pos[n]) < cyc(m, a.Pos[e.From])+lat {
				return false
			}
		}
	}
	return true
}

func roleAtFlattenedPos(in *asmir.Instruction, pos int) asmir.OperandRole {
	for _, p := range in.OperandPositions() {
		if p.Pos == pos {
			return p.Role
		}
	}
	return asmir.RoleInput
}

// checkIssueWidth is constraint 3: per cycle, the instructions issuing that
// cycle must admit an injective assignment to the target's execution-unit
// slots. Checked with unitsMatchable's greedy most-constrained-first
// assignment (no augmenting paths), small enough per cycle that this is
// never the bottleneck.
func checkIssueWidth(m *Model, a *Assignment) bool {
	byCycle := map[int][]*dfg.Node{}
	for _, n := range m.Graph.Nodes() {
		c := cyc(m, a.Pos[n])
		byCycle[c] = append(byCycle[c], n)
	}
	for _, nodes := range byCycle {
		if !unitsMatchable(m, nodes) {
			return false
		}
	}
	return true
}

// unitsMatchable reports whether nodes can be injectively assigned to
// distinct concrete execution units, where each node may occupy one unit
// per issue "slot" it declares (Units returns a list of slots, each a list
// of acceptable alternatives for that slot).
func unitsMatchable(m *Model, nodes []*dfg.Node) bool {
	type demand struct {
		node *dfg.Node
		alts []arch.ExecutionUnit
	}
	var demands []demand
	for _, n := range nodes {
		for _, slot := range m.Target.Units(n.Instr) {
			demands = append(demands, demand{n, slot})
		}
	}
	used := map[arch.ExecutionUnit]bool{}
	matchOne := func(d demand) bool {
		for _, u := range d.alts {
			if !used[u] {
				used[u] = true
				return true
			}
		}
		return false
	}
	// Try units with fewer alternatives first (most constrained first),
	// a standard greedy heuristic for small bipartite matching instances.
	for pass := 0; pass < len(demands); pass++ {
		bestIdx, bestLen := -1, 1<<30
		for i, d := range demands {
			if d.node == nil {
				continue
			}
			if len(d.alts) < bestLen {
				bestIdx, bestLen = i, len(d.alts)
			}
		}
		if bestIdx < 0 {
			break
		}
		d := demands[bestIdx]
		demands[bestIdx].node = nil
		if !matchOne(d) {
			return false
		}
	}
	return true
}

// checkRenamingConsistency is constraint 4: every consumer of a renamed
// output observes the same concrete name.
func checkRenamingConsistency(m *Model, a *Assignment) bool {
	for _, n := range m.Graph.Nodes() {
		for pos, edges := range n.Consumers {
			producerName, ok := a.RenamedName(n, pos)
			if !ok {
				continue
			}
			for _, e := range edges {
				consumerName, ok := a.RenamedName(e.To, e.ToPos)
				if ok && consumerName != producerName {
					return false
				}
			}
		}
	}
	return true
}

// checkRegisterDisjointness is constraint 5: two outputs live in the same
// cycle in the same class must have distinct registers. Approximated here
// as "assigned the same cycle", matching the spec's "live at the same
// cycle" phrasing for the issue-width-bound scheduling model.
func checkRegisterDisjointness(m *Model, a *Assignment) bool {
	byCycleClass := map[[2]interface{}][]string{}
	for key, name := range a.RegOut {
		c := cyc(m, a.Pos[key.node])
		class := classAtFlattenedPos(key.node.Instr, key.pos)
		if class == nil {
			continue
		}
		k := [2]interface{}{c, class}
		for _, seen := range byCycleClass[k] {
			if seen == name {
				return false
			}
		}
		byCycleClass[k] = append(byCycleClass[k], name)
	}
	return true
}

func classAtFlattenedPos(in *asmir.Instruction, pos int) *asmir.RegClass {
	positions := in.OperandPositions()
	for _, p := range positions {
		if p.Pos != pos {
			continue
		}
		switch p.Role {
		case asmir.RoleOutput:
			return in.Outputs[p.Idx].Class
		case asmir.RoleInOut:
			return in.InOuts[p.Idx].Class
		}
	}
	return nil
}

// checkOperandRestrictions is constraint 6.
func checkOperandRestrictions(m *Model, a *Assignment) bool {
	for key, name := range a.RegOut {
		rs, ok := key.node.Instr.Restrictions[key.pos]
		if ok && !rs.Contains(name) {
			return false
		}
	}
	return true
}

// checkCombinationRestrictions is constraint 7.
func checkCombinationRestrictions(m *Model, a *Assignment) bool {
	for _, n := range m.Graph.Nodes() {
		for _, comb := range n.Instr.Combinations {
			tuple := make([]string, len(comb.Positions))
			for i, pos := range comb.Positions {
				name, ok := a.RenamedName(n, pos)
				if !ok {
					name = regNameAtFlattenedPos(n.Instr, pos)
				}
				tuple[i] = name
			}
			if !tupleAllowed(tuple, comb.Tuples) {
				return false
			}
		}
	}
	return true
}

func regNameAtFlattenedPos(in *asmir.Instruction, pos int) string {
	positions := in.OperandPositions()
	for _, p := range positions {
		if p.Pos != pos {
			continue
		}
		switch p.Role {
		case asmir.RoleInput:
			return in.Inputs[p.Idx].Name
		case asmir.RoleOutput:
			return in.Outputs[p.Idx].Name
		default:
			return in.InOuts[p.Idx].Name
		}
	}
	return ""
}

func tupleAllowed(tuple []string, allowed [][]string) bool {
	for _, candidate := range allowed {
		if len(candidate) != len(tuple) {
			continue
		}
		match := true
		for i := range tuple {
			if candidate[i] != tuple[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// checkReservedRegisters is constraint 8.
func checkReservedRegisters(m *Model, a *Assignment) bool {
	reserved := m.Target.DefaultReserved()
	for _, name := range a.RegOut {
		if reserved.Contains(name) {
			return false
		}
	}
	return true
}

// checkStoreLoadHazards is constraint 9.
func checkStoreLoadHazards(m *Model, a *Assignment) bool {
	if m.HazardWindow <= 0 {
		return true
	}
	for _, load := range m.Graph.Nodes() {
		tags := m.Target.Classify(load.Instr)
		if !tags.IsLoad {
			continue
		}
		for _, store := range m.Graph.Nodes() {
			storeTags := m.Target.Classify(store.Instr)
			if !storeTags.IsStore {
				continue
			}
			if m.AddressesProvablyDiffer != nil && m.AddressesProvablyDiffer(load, store) {
				continue
			}
			cl, cs := cyc(m, a.Pos[load]), cyc(m, a.Pos[store])
			d := cl - cs
			if d < 0 {
				d = -d
			}
			if d < m.HazardWindow {
				return false
			}
		}
	}
	return true
}

// checkInputsAreOutputs is constraint 10.
func checkInputsAreOutputs(m *Model, a *Assignment) bool {
	if !m.InputsAreOutputs {
		return true
	}
	liveInName := map[string]bool{}
	for _, n := range m.Graph.Nodes() {
		for _, pos := range n.LiveIns() {
			liveInName[regNameAtFlattenedPos(n.Instr, pos)] = true
		}
	}
	for name := range liveInName {
		if !m.Graph.LiveOuts.Contains(name) {
			return false
		}
	}
	return true
}

// checkLockedRegisters is constraint 11.
func checkLockedRegisters(m *Model, a *Assignment) bool {
	for _, name := range a.RegOut {
		if m.LockedRegisters.Contains(name) {
			return false
		}
	}
	return true
}

// Validate runs all eleven constraint families against a finished
// Assignment, for use in tests and as SelfCheck's modeling-level
// counterpart to dfg.IsomorphicModuloRenaming.
func Validate(m *Model, a *Assignment) bool {
	return checkDataflowOrdering(m, a) &&
		checkLatency(m, a) &&
		checkIssueWidth(m, a) &&
		checkRenamingConsistency(m, a) &&
		checkRegisterDisjointness(m, a) &&
		checkOperandRestrictions(m, a) &&
		checkCombinationRestrictions(m, a) &&
		checkReservedRegisters(m, a) &&
		checkStoreLoadHazards(m, a) &&
		checkInputsAreOutputs(m, a) &&
		checkLockedRegisters(m, a)
}
