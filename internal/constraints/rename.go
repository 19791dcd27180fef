package constraints

import (
	"context"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// targetKind distinguishes the three ways a flattened operand position
// gets its concrete register name.
type targetKind int

const (
	// targetOutput is a true output/in-out: it chooses a name, subject to
	// OutputRenamePolicy when the name is also a live-out.
	targetOutput targetKind = iota
	// targetInherit is an input fed by a producer: it must inherit that
	// producer's chosen name (constraint 4).
	targetInherit
	// targetLiveIn is an input with no producer (a true live-in read): its
	// name is governed by InputRenamePolicy, consistently across every
	// occurrence of the same original name.
	targetLiveIn
)

// renameTarget is one flattened operand position that needs a concrete
// register.
type renameTarget struct {
	node *dfg.Node
	pos  int
	kind targetKind
}

// assignRegisters solves constraints 4-8 and 11 given a fixed position
// assignment. If !m.AllowRenaming, every renameable operand keeps its
// parsed name and this only validates constraints 5/6/7/8/11 against that
// fixed naming.
func assignRegisters(ctx context.Context, m *Model, pos map[*dfg.Node]int, l int) (map[positionKey]string, error) {
	targets := renameableTargets(m)

	if !m.AllowRenaming {
		assignment := map[positionKey]string{}
		for _, t := range targets {
			assignment[positionKey{t.node, t.pos}] = regNameAtFlattenedPos(t.node.Instr, t.pos)
		}
		if !validatePartial(m, pos, l, assignment) {
			return nil, ErrInfeasible
		}
		return assignment, nil
	}

	var found map[positionKey]string
	err := searchRegisterAssignments(ctx, m, pos, l, targets, func(a map[positionKey]string) bool {
		found = cloneRegOut(a)
		return false // stop at the first feasible completion
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrInfeasible
	}
	return found, nil
}

// searchRegisterAssignments is the backtracking core shared by
// assignRegisters (stop at the first feasible completion) and
// Solver.Retry's secondary-objective search (keep exploring feasible
// completions within budget, ranking each with onComplete). onComplete
// receives a live view of assignment at each completion; it must clone
// before retaining it. onComplete returns true to keep searching for a
// better completion, false to stop.
func searchRegisterAssignments(ctx context.Context, m *Model, pos map[*dfg.Node]int, l int, targets []renameTarget, onComplete func(map[positionKey]string) bool) error {
	assignment := map[positionKey]string{}
	budget := &scheduleBudget{ctx: ctx, maxNodes: defaultMaxNodesExplored}
	liveInChosen := map[string]string{} // original live-in name -> the one concrete name every occurrence shares

	var backtrack func(i int) (bool, error)
	backtrack = func(i int) (bool, error) {
		if err := budget.tick(); err != nil {
			return false, err
		}
		if i == len(targets) {
			keepGoing := onComplete(assignment)
			return !keepGoing, nil
		}
		t := targets[i]
		key := positionKey{t.node, t.pos}

		switch t.kind {
		case targetInherit:
			inherited, _ := inheritedName(t, assignment)
			assignment[key] = inherited
			ok, err := backtrack(i + 1)
			if err != nil || ok {
				return ok, err
			}
			delete(assignment, key)
			return false, nil

		case targetLiveIn:
			origName := regNameAtFlattenedPos(t.node.Instr, t.pos)
			class := classForOperand(t.node.Instr, t.pos)
			if class == nil {
				class = typingHintClass(m, origName)
			}
			policy := RenameStatic // also for an operand with no resolvable class
			if class != nil {
				policy = m.InputRenamePolicy[class.Name] // absent class: RenameStatic
			}
			if policy == RenameStatic {
				assignment[key] = origName
				ok, err := backtrack(i + 1)
				if err != nil || ok {
					return ok, err
				}
				delete(assignment, key)
				return false, nil
			}
			if chosen, ok := liveInChosen[origName]; ok {
				assignment[key] = chosen
				ok2, err := backtrack(i + 1)
				if err != nil || ok2 {
					return ok2, err
				}
				delete(assignment, key)
				return false, nil
			}
			if class == nil {
				assignment[key] = origName
				ok, err := backtrack(i + 1)
				if err != nil || ok {
					return ok, err
				}
				delete(assignment, key)
				return false, nil
			}
			for _, candidate := range renameCandidates(m, class, origName, policy) {
				assignment[key] = candidate
				liveInChosen[origName] = candidate
				if localConstraintsOK(m, pos, t, candidate, assignment) {
					ok, err := backtrack(i + 1)
					if err != nil || ok {
						return ok, err
					}
				}
				delete(liveInChosen, origName)
				delete(assignment, key)
			}
			return false, nil

		default: // targetOutput
			class := classAtFlattenedPos(t.node.Instr, t.pos)
			if class == nil {
				class = typingHintClass(m, regNameAtFlattenedPos(t.node.Instr, t.pos))
			}
			if class == nil {
				assignment[key] = regNameAtFlattenedPos(t.node.Instr, t.pos)
				ok, err := backtrack(i + 1)
				if err != nil || ok {
					return ok, err
				}
				delete(assignment, key)
				return false, nil
			}
			origName := regNameAtFlattenedPos(t.node.Instr, t.pos)
			candidates := candidateNames(m, t, class)
			if m.Graph.LiveOuts.Contains(origName) {
				switch m.OutputRenamePolicy[class.Name] { // absent class: RenameStatic
				case RenameStatic:
					candidates = []string{origName}
				case RenameOther:
					candidates = excludeName(candidates, origName)
				}
			}
			for _, candidate := range candidates {
				assignment[key] = candidate
				if localConstraintsOK(m, pos, t, candidate, assignment) {
					ok, err := backtrack(i + 1)
					if err != nil || ok {
						return ok, err
					}
				}
				delete(assignment, key)
			}
			return false, nil
		}
	}

	_, err := backtrack(0)
	return err
}

func cloneRegOut(a map[positionKey]string) map[positionKey]string {
	out := make(map[positionKey]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// renameableTargets enumerates every output/in-out position (targetOutput),
// then every producer-fed input (targetInherit, resolved after its
// producer so the inheritedName fast path always applies), then every
// true live-in read with no producer (targetLiveIn).
func renameableTargets(m *Model) []renameTarget {
	var outs, ins, liveIns []renameTarget
	for _, n := range m.Graph.Nodes() {
		for _, p := range n.Instr.OperandPositions() {
			switch p.Role {
			case asmir.RoleOutput, asmir.RoleInOut:
				outs = append(outs, renameTarget{n, p.Pos, targetOutput})
			case asmir.RoleInput:
				if _, hasProducer := n.Producers[p.Pos]; hasProducer {
					ins = append(ins, renameTarget{n, p.Pos, targetInherit})
				} else {
					liveIns = append(liveIns, renameTarget{n, p.Pos, targetLiveIn})
				}
			}
		}
	}
	return append(append(outs, ins...), liveIns...)
}

func inheritedName(t renameTarget, assignment map[positionKey]string) (string, bool) {
	e, ok := t.node.Producers[t.pos]
	if !ok {
		return "", false
	}
	name, ok := assignment[positionKey{e.From, e.FromPos}]
	return name, ok
}

// classForOperand returns the register class at a flattened position for
// any role, including RoleInput — unlike classAtFlattenedPos (checks.go),
// which deliberately returns nil for inputs so register-disjointness
// checking only counts a value once, at its producing output.
func classForOperand(in *asmir.Instruction, pos int) *asmir.RegClass {
	positions := in.OperandPositions()
	for _, p := range positions {
		if p.Pos != pos {
			continue
		}
		switch p.Role {
		case asmir.RoleInput:
			return in.Inputs[p.Idx].Class
		case asmir.RoleOutput:
			return in.Outputs[p.Idx].Class
		default:
			return in.InOuts[p.Idx].Class
		}
	}
	return nil
}

// typingHintClass resolves name's class via Model.TypingHints when the
// operand's own position carries no Class (spec.md §6's typing_hints:
// "overrides for unclassifiable operands in symbolic code").
func typingHintClass(m *Model, name string) *asmir.RegClass {
	hint, ok := m.TypingHints[name]
	if !ok {
		return nil
	}
	return m.Target.ClassByName(hint)
}

func candidateNames(m *Model, t renameTarget, class *asmir.RegClass) []string {
	reserved := m.Target.DefaultReserved()
	var out []string
	for _, name := range class.Pool().Sorted() {
		if reserved.Contains(name) || m.LockedRegisters.Contains(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// renameCandidates is candidateNames restricted to a live-in's
// InputRenamePolicy: RenameOther drops the original name from the pool,
// RenameAny leaves it eligible alongside every other register.
func renameCandidates(m *Model, class *asmir.RegClass, origName string, policy RenamePolicy) []string {
	reserved := m.Target.DefaultReserved()
	var out []string
	for _, name := range class.Pool().Sorted() {
		if reserved.Contains(name) || m.LockedRegisters.Contains(name) {
			continue
		}
		if policy == RenameOther && name == origName {
			continue
		}
		out = append(out, name)
	}
	return out
}

func excludeName(names []string, exclude string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != exclude {
			out = append(out, n)
		}
	}
	return out
}

func localConstraintsOK(m *Model, pos map[*dfg.Node]int, t renameTarget, candidate string, assignment map[positionKey]string) bool {
	if rs, ok := t.node.Instr.Restrictions[t.pos]; ok && !rs.Contains(candidate) {
		return false
	}
	for key, name := range assignment {
		if key == (positionKey{t.node, t.pos}) {
			continue
		}
		if name != candidate {
			continue
		}
		if cyc(m, pos[key.node]) != cyc(m, pos[t.node]) {
			continue
		}
		if classAtFlattenedPos(key.node.Instr, key.pos) == classAtFlattenedPos(t.node.Instr, t.pos) {
			return false
		}
	}
	return true
}

func validatePartial(m *Model, pos map[*dfg.Node]int, l int, assignment map[positionKey]string) bool {
	a := &Assignment{Pos: pos, RegOut: assignment, L: l}
	return checkRegisterDisjointness(m, a) &&
		checkOperandRestrictions(m, a) &&
		checkCombinationRestrictions(m, a) &&
		checkReservedRegisters(m, a) &&
		checkLockedRegisters(m, a)
}
