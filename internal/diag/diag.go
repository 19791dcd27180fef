// Package diag centralizes SLOTHY's two logging tiers.
//
// In-package trace logging follows wazevoapi's debug-const idiom: a set of
// consts that default to false, flipped only when debugging this module
// itself (see wazero's internal/engine/wazevo/wazevoapi/debug_consts.go).
// User-facing diagnostics (a search exhausted its budget, a self-check
// failed) go through logrus instead, since those need structured fields and
// are meant to be read by a caller embedding SLOTHY in a larger tool.
package diag

import "fmt"

// These must stay false by default; flip locally when debugging SLOTHY
// itself, never in committed code that isn't actively being debugged.
const (
	TraceParser      = false
	TraceDFG         = false
	TraceConstraints = false
	TraceHeuristic   = false
)

// Tracef prints a trace message. Callers gate every call site behind one of
// the consts above, e.g.:
//
//	if diag.TraceDFG {
//		diag.Tracef("node %d depth=%d", n.ID, n.Depth)
//	}
func Tracef(format string, args ...interface{}) {
	fmt.Printf("[slothy] "+format+"\n", args...)
}
