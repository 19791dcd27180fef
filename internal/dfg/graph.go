package dfg

import (
	"sort"

	"github.com/slothy-opt/slothy/internal/asmir"
)

// Config is the DFG construction configuration surface (spec.md §4.2):
// "whitelist of inputs treated as outputs", "explicit outputs list", "WAW
// modeling toggle".
type Config struct {
	// InputsAreOutputs forces every live-in to also appear as a live-out,
	// preventing the loop body from permanently overwriting a register
	// that must survive into the next iteration.
	InputsAreOutputs bool
	// ExplicitOutputs, if non-empty, is the live-out set used instead of
	// whatever the graph would otherwise infer.
	ExplicitOutputs asmir.RegSet
	// ModelWAW requests write-after-write edges between two writers of the
	// same register with no intervening read (spec.md §4.2, §9 open
	// question: WAW edge policy is configuration-dependent and the two
	// behaviors are both exposed rather than guessed at).
	ModelWAW bool
}

// Graph is the built dataflow graph for one linear block or one loop body
// (spec.md §3, §4.2).
type Graph struct {
	head, tail *Node
	nodes      []*Node

	LiveIns  asmir.RegSet
	LiveOuts asmir.RegSet

	// CrossIterationEdges collects every edge marked CrossIteration, for
	// callers building the solver's kernel_input_output set (spec.md §3).
	CrossIterationEdges []*Edge

	cfg   Config
	dirty bool // set by PromoteInOutToOutput; ApplyRewrites relies on the callback's return value instead
}

// Nodes returns the graph's nodes in program order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// regName resolves the concrete register name written/read at a flattened
// operand position.
func regName(in *asmir.Instruction, pos int) string {
	positions := in.OperandPositions()
	p := positions[pos]
	switch p.Role {
	case asmir.RoleInput:
		return in.Inputs[p.Idx].Name
	case asmir.RoleOutput:
		return in.Outputs[p.Idx].Name
	default:
		return in.InOuts[p.Idx].Name
	}
}

// Build constructs a Graph over instrs in program order (spec.md §4.2,
// linear/non-periodic form): each input or in-out operand consumes the
// current producer of its register if one exists (else it is a live-in);
// each output or in-out operand installs the node as the new producer.
func Build(instrs []*asmir.Instruction, cfg Config) *Graph {
	g := &Graph{cfg: cfg, LiveIns: asmir.NewRegSet(), LiveOuts: asmir.NewRegSet()}
	lastWriter := map[string]*Node{}
	lastReaderSinceWrite := map[string]bool{}

	for i, instr := range instrs {
		n := &Node{ID: i, Instr: instr, Consumers: map[int][]*Edge{}, Producers: map[int]*Edge{}, g: g}
		g.link(n)

		positions := instr.OperandPositions()
		for _, p := range positions {
			if p.Role == asmir.RoleOutput {
				continue
			}
			name := regName(instr, p.Pos)
			if producer, ok := lastWriter[name]; ok {
				e := &Edge{From: producer, To: n, FromPos: producerOutPos(producer, name), ToPos: p.Pos}
				producer.Consumers[e.FromPos] = append(producer.Consumers[e.FromPos], e)
				n.Producers[p.Pos] = e
				lastReaderSinceWrite[name] = true
			} else {
				g.LiveIns.Add(name)
			}
		}

		for _, p := range positions {
			if p.Role == asmir.RoleInput {
				continue
			}
			name := regName(instr, p.Pos)
			if cfg.ModelWAW {
				if prevWriter, ok := lastWriter[name]; ok && !lastReaderSinceWrite[name] {
					e := &Edge{From: prevWriter, To: n, FromPos: producerOutPos(prevWriter, name), ToPos: p.Pos, IsWAW: true}
					prevWriter.Consumers[e.FromPos] = append(prevWriter.Consumers[e.FromPos], e)
				}
			}
			lastWriter[name] = n
			lastReaderSinceWrite[name] = false
		}
	}

	for name, n := range lastWriter {
		if !hasOutgoing(n, name) || cfg.InputsAreOutputs && g.LiveIns.Contains(name) {
			g.LiveOuts.Add(name)
		}
	}
	if cfg.ExplicitOutputs.Len() > 0 {
		g.LiveOuts = cfg.ExplicitOutputs.Clone()
	}
	if cfg.InputsAreOutputs {
		g.LiveOuts = g.LiveOuts.Union(g.LiveIns)
	}

	g.computeDepths()
	return g
}

func producerOutPos(n *Node, name string) int {
	positions := n.Instr.OperandPositions()
	for _, p := range positions {
		if p.Role == asmir.RoleInput {
			continue
		}
		if regName(n.Instr, p.Pos) == name {
			return p.Pos
		}
	}
	return -1
}

func hasOutgoing(n *Node, name string) bool {
	pos := producerOutPos(n, name)
	return len(n.Consumers[pos]) > 0
}

func (g *Graph) link(n *Node) {
	if g.tail == nil {
		g.head = n
	} else {
		g.tail.next = n
		n.prev = g.tail
	}
	g.tail = n
	g.nodes = append(g.nodes, n)
}

// computeDepths assigns each node the length of its longest producer chain
// back to a live-in (spec.md §3: "computed depth (longest producer chain in
// ops)"). Nodes are in program order, so a single forward pass suffices:
// every producer of a node already has its depth computed.
func (g *Graph) computeDepths() {
	for _, n := range g.nodes {
		max := 0
		for _, e := range n.Producers {
			if d := e.From.Depth + 1; d > max {
				max = d
			}
		}
		n.Depth = max
	}
}

// BuildPeriodic constructs the loop-periodic DFG (spec.md §4.2): the body
// is conceptually replicated twice so that edges reaching back into the
// preceding copy can be identified as cross-iteration. Rather than
// literally materializing 2n nodes, this builds n nodes once and, for
// every register still live at the end of the body that was also a
// live-in, synthesizes the wrap-around edge directly — the same set of
// cross-iteration edges a literal two-copy build would produce, in O(n)
// instead of O(2n).
func BuildPeriodic(instrs []*asmir.Instruction, cfg Config) *Graph {
	g := Build(instrs, cfg)

	wrapCandidates := g.LiveIns.Sorted()
	sort.Strings(wrapCandidates)
	lastWriter := map[string]*Node{}
	for _, n := range g.nodes {
		positions := n.Instr.OperandPositions()
		for _, p := range positions {
			if p.Role == asmir.RoleInput {
				continue
			}
			lastWriter[regName(n.Instr, p.Pos)] = n
		}
	}

	for _, name := range wrapCandidates {
		writer, wrote := lastWriter[name]
		if !wrote {
			continue
		}
		// Every operand position that reads name as a live-in (no producer
		// in this copy) gets a wrap-around edge, since in a second body copy
		// each such read would be fed by writer's first-copy value rather
		// than remaining a true live-in.
		for _, n := range g.nodes {
			positions := n.Instr.OperandPositions()
			for _, p := range positions {
				if p.Role == asmir.RoleOutput {
					continue
				}
				if regName(n.Instr, p.Pos) != name {
					continue
				}
				if _, hasProducer := n.Producers[p.Pos]; hasProducer {
					continue
				}
				e := &Edge{From: writer, To: n, FromPos: producerOutPos(writer, name), ToPos: p.Pos, CrossIteration: true}
				writer.Consumers[e.FromPos] = append(writer.Consumers[e.FromPos], e)
				g.CrossIterationEdges = append(g.CrossIterationEdges, e)
			}
		}
	}
	return g
}

// CrossIterationDep describes one cross-iteration dependency surfaced to
// the heuristic driver's Result.KernelInputOutput (spec.md §3's
// kernel_input_output set): the register name carried from one
// iteration's producing instruction into a live-in read resolved against
// the previous iteration's copy of the body.
type CrossIterationDep struct {
	Register   string
	ProducerID int
	ConsumerID int
}

// CrossIterationDeps summarizes g.CrossIterationEdges into the
// caller-facing form the heuristic driver's Result reports.
func (g *Graph) CrossIterationDeps() []CrossIterationDep {
	out := make([]CrossIterationDep, 0, len(g.CrossIterationEdges))
	for _, e := range g.CrossIterationEdges {
		out = append(out, CrossIterationDep{
			Register:   regName(e.From.Instr, e.FromPos),
			ProducerID: e.From.ID,
			ConsumerID: e.To.ID,
		})
	}
	return out
}

// Rebuild re-derives producer/consumer edges and depths from the current
// (possibly rewritten) instruction list, used by the fixpoint driver after
// a rewrite callback mutates a node (spec.md §3: "DFG is rebuilt after any
// such mutation").
func (g *Graph) Rebuild() *Graph {
	instrs := make([]*asmir.Instruction, len(g.nodes))
	for i, n := range g.nodes {
		instrs[i] = n.Instr
	}
	return Build(instrs, g.cfg)
}
