package constraints

import (
	"context"
	"errors"

	"github.com/slothy-opt/slothy/internal/dfg"
)

// branchAndBoundSolver is the Solver shipped with this package (see
// DESIGN.md for why no pack/ecosystem CP/ILP library was wired instead of
// hand-rolling this search). It solves Model.StallsAllowed as a fixed
// budget per call; the heuristic driver's binary search (spec.md §4.5)
// drives repeated Solve calls across different StallsAllowed values to
// find the minimal feasible stall count.
type branchAndBoundSolver struct {
	lastModel      *Model
	lastAssignment *Assignment
}

// NewBranchAndBoundSolver returns the built-in Solver.
func NewBranchAndBoundSolver() Solver {
	return &branchAndBoundSolver{}
}

func (s *branchAndBoundSolver) Solve(ctx context.Context, m *Model) (*Assignment, error) {
	pos, err := schedulePositions(ctx, m)
	if err != nil {
		return nil, err
	}
	l := len(m.Graph.Nodes()) + m.StallsAllowed
	regOut, err := assignRegisters(ctx, m, pos, l)
	if err != nil {
		return nil, err
	}

	a := &Assignment{
		Pos:    pos,
		RegOut: regOut,
		L:      l,
		Stalls: m.StallsAllowed,
	}
	if m.SWPipelining {
		preSplit, postSplit := l/3, l/3
		if m.SuppressPreamble {
			preSplit = 0
		}
		if m.SuppressPostamble {
			postSplit = 0
		}
		a.Stage = assignStages(m, pos, l, preSplit, postSplit)
	}
	if !checkStoreLoadHazards(m, a) || !checkInputsAreOutputs(m, a) {
		return nil, ErrInfeasible
	}

	s.lastModel = m
	s.lastAssignment = a
	return a, nil
}

// Retry re-solves the last successful Model at the same stall count,
// searching for a strictly better value of the given secondary objective
// without disturbing the primary stall count (spec.md §4.3 step 3:
// "retries once at the found minimum to optimize the secondary
// objective"). It keeps the original Assignment whenever nothing better
// is found, so Retry never regresses the primary solution.
func (s *branchAndBoundSolver) Retry(ctx context.Context, objective ObjectiveKind) (*Assignment, error) {
	if s.lastModel == nil || s.lastAssignment == nil {
		return nil, ErrInfeasible
	}
	m := s.lastModel
	m.Objective = objective
	base := s.lastAssignment

	best := base
	bestVal := ObjectiveValue(m, base)

	switch objective {
	case ObjectiveOverlap:
		if m.SWPipelining {
			for _, split := range stageSplitCandidates(base.L) {
				preSplit, postSplit := split, split
				if m.SuppressPreamble {
					preSplit = 0
				}
				if m.SuppressPostamble {
					postSplit = 0
				}
				a := &Assignment{Pos: base.Pos, RegOut: base.RegOut, L: base.L, Stalls: base.Stalls}
				a.Stage = assignStages(m, base.Pos, base.L, preSplit, postSplit)
				if v := ObjectiveValue(m, a); v < bestVal {
					best, bestVal = a, v
				}
			}
		}
	case ObjectiveCost:
		if m.CostFn != nil {
			targets := renameableTargets(m)
			err := searchRegisterAssignments(ctx, m, base.Pos, base.L, targets, func(regOut map[positionKey]string) bool {
				a := &Assignment{Pos: base.Pos, RegOut: regOut, Stage: base.Stage, L: base.L, Stalls: base.Stalls}
				if !validatePartial(m, base.Pos, base.L, regOut) {
					return true
				}
				if v := ObjectiveValue(m, a); v < bestVal {
					best, bestVal = &Assignment{Pos: base.Pos, RegOut: cloneRegOut(regOut), Stage: base.Stage, L: base.L, Stalls: base.Stalls}, v
				}
				return true // keep exploring for a lower-cost completion
			})
			if err != nil && !errors.Is(err, ErrTimeout) {
				return nil, err
			}
		}
	}

	s.lastAssignment = best
	return best, nil
}

func (s *branchAndBoundSolver) Reset() {
	s.lastModel = nil
	s.lastAssignment = nil
}

// stageSplitCandidates enumerates preamble/postamble sizes Retry tries
// when re-optimizing the overlap objective, from a single-instruction
// boundary up to the naive thirds split, in both directions.
func stageSplitCandidates(l int) []int {
	max := l / 3
	if max < 1 {
		return nil
	}
	seen := map[int]bool{}
	var out []int
	for _, k := range []int{1, l / 8, l / 6, l / 4, max} {
		if k >= 1 && k <= max && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// assignStages assigns SW-pipelining stages from a flat position order:
// the first preSplit positions carry the preamble, the last postSplit
// carry the postamble, and everything between is the steady-state kernel
// (spec.md §4.3 decision variable stage[i]; §4.5 step 4's "solve with
// stage variables, optionally re-optimize preamble/postamble as linear
// chunks"). Solve seeds both splits at l/3, zeroing whichever side
// Model.SuppressPreamble/SuppressPostamble disables; Retry's
// ObjectiveOverlap search then tries other splits (stageSplitCandidates)
// to shrink the non-steady-state instruction count.
func assignStages(m *Model, pos map[*dfg.Node]int, l int, preSplit, postSplit int) map[*dfg.Node]Stage {
	stage := make(map[*dfg.Node]Stage, len(pos))
	for n, p := range pos {
		switch {
		case p < preSplit:
			stage[n] = StagePre
		case p >= l-postSplit:
			stage[n] = StagePost
		default:
			stage[n] = StageCore
		}
	}
	return stage
}
