package constraints

import (
	"context"
	"sort"

	"github.com/slothy-opt/slothy/internal/dfg"
)

// scheduleBudget bounds the branch-and-bound position search so a
// pathological instance fails fast with ErrTimeout rather than hanging
// (spec.md §4.3: "time-bounded search").
type scheduleBudget struct {
	ctx           context.Context
	nodesExplored int
	maxNodes      int
}

func (b *scheduleBudget) tick() error {
	b.nodesExplored++
	if b.nodesExplored > b.maxNodes {
		return ErrTimeout
	}
	select {
	case <-b.ctx.Done():
		return ErrTimeout
	default:
		return nil
	}
}

// defaultMaxNodesExplored is generous enough for the seed-scenario sizes
// this package's tests use, and small enough that a genuinely infeasible
// search still returns promptly.
const defaultMaxNodesExplored = 200000

// schedulePositions assigns every node a position in [0, L) honoring
// dataflow ordering, latency, and issue-width (constraints 1-3), where
// L = len(nodes) + m.StallsAllowed. If !m.AllowReordering, nodes keep
// their original relative order and the search only chooses where the
// StallsAllowed bubble slots go; otherwise the search may also reorder.
func schedulePositions(ctx context.Context, m *Model) (map[*dfg.Node]int, error) {
	nodes := m.Graph.Nodes()
	l := len(nodes) + m.StallsAllowed
	budget := &scheduleBudget{ctx: ctx, maxNodes: defaultMaxNodesExplored}

	pos := make(map[*dfg.Node]int, len(nodes))
	placed := make([]bool, len(nodes))
	cycleUnits := map[int][]*dfg.Node{} // tentative per-cycle node lists, for incremental issue-width pruning

	order := nodes
	if m.AllowReordering {
		order = append([]*dfg.Node(nil), nodes...)
	}

	var backtrack func(next int, lastPos int) (bool, error)
	backtrack = func(next int, lastPos int) (bool, error) {
		if err := budget.tick(); err != nil {
			return false, err
		}
		if next == len(order) {
			return true, nil
		}
		n := order[next]
		candidates := readyCandidates(m, order, placed, next, pos)
		if !m.AllowReordering {
			candidates = []*dfg.Node{n}
		}
		for _, candidate := range candidates {
			minPos := lastPos + 1
			if p := minPosFromEdges(m, candidate, pos); p > minPos {
				minPos = p
			}
			for p := minPos; p < l; p++ {
				if positionTaken(pos, p) {
					continue
				}
				pos[candidate] = p
				cycleUnits[cyc(m, p)] = append(cycleUnits[cyc(m, p)], candidate)
				if latencyOKIncremental(m, candidate, pos) && unitsMatchable(m, cycleUnits[cyc(m, p)]) {
					idx := indexOf(order, candidate)
					placed[idx] = true
					ok, err := backtrack(next+1, p)
					if err != nil || ok {
						return ok, err
					}
					placed[idx] = false
				}
				cycleUnits[cyc(m, p)] = cycleUnits[cyc(m, p)][:len(cycleUnits[cyc(m, p)])-1]
				delete(pos, candidate)
			}
		}
		return false, nil
	}

	ok, err := backtrack(0, -1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInfeasible
	}
	return pos, nil
}

func indexOf(nodes []*dfg.Node, n *dfg.Node) int {
	for i, c := range nodes {
		if c == n {
			return i
		}
	}
	return -1
}

func positionTaken(pos map[*dfg.Node]int, p int) bool {
	for _, v := range pos {
		if v == p {
			return true
		}
	}
	return false
}

// readyCandidates returns the nodes not yet placed whose dataflow
// predecessors are all placed (so placing them next cannot violate
// constraint 1). When reordering is disabled this is never consulted.
func readyCandidates(m *Model, order []*dfg.Node, placed []bool, next int, pos map[*dfg.Node]int) []*dfg.Node {
	var out []*dfg.Node
	for i, n := range order {
		if placed[i] {
			continue
		}
		if isReady(n, pos, m) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func isReady(n *dfg.Node, pos map[*dfg.Node]int, m *Model) bool {
	for _, e := range n.Producers {
		if e.CrossIteration && m.SWPipelining {
			continue
		}
		if _, ok := pos[e.From]; !ok {
			return false
		}
	}
	return true
}

func minPosFromEdges(m *Model, n *dfg.Node, pos map[*dfg.Node]int) int {
	min := 0
	for _, e := range n.Producers {
		p, ok := pos[e.From]
		if !ok {
			continue
		}
		if e.CrossIteration && m.SWPipelining {
			continue
		}
		if p+1 > min {
			min = p + 1
		}
	}
	return min
}

func latencyOKIncremental(m *Model, n *dfg.Node, pos map[*dfg.Node]int) bool {
	for fpos, e := range n.Producers {
		pu, ok := pos[e.From]
		if !ok {
			continue
		}
		role := roleAtFlattenedPos(n.Instr, fpos)
		lat := m.Target.Latency(e.From.Instr, n.Instr, role)
		if cyc(m, pos[n]) < cyc(m, pu)+lat {
			return false
		}
	}
	return true
}
