package constraints

// ObjectiveValue computes the secondary, has_objective lexicographic
// metric for a finished Assignment (spec.md §4.3's objective list, second
// bullet): the overlap count under SW pipelining, or Model.CostFn's
// target-provided cost. Returns 0 for ObjectiveNone.
func ObjectiveValue(m *Model, a *Assignment) int {
	switch m.Objective {
	case ObjectiveOverlap:
		count := 0
		for _, st := range a.Stage {
			if st != StageCore {
				count++
			}
		}
		return count
	case ObjectiveCost:
		if m.CostFn == nil {
			return 0
		}
		return m.CostFn(a)
	default:
		return 0
	}
}
