package slothy

import (
	"time"

	"github.com/slothy-opt/slothy/internal/asmir"
)

// RenamePolicy controls how a register class is renamed at loop-body
// boundaries (spec.md §6: "rename_inputs / rename_outputs (map: class →
// policy in {static, any, other})").
type RenamePolicy byte

const (
	// RenameStatic keeps the boundary operand's original name.
	RenameStatic RenamePolicy = iota
	// RenameAny allows the solver to pick any register in the class.
	RenameAny
	// RenameOther allows any register in the class except the original name.
	RenameOther
)

// SWPipeliningConfig is the sw_pipelining.* configuration surface (spec.md
// §6).
type SWPipeliningConfig struct {
	Enabled             bool
	Unroll              int
	MinimizeOverlapping bool
	AllowPre            bool
	AllowPost           bool
	OptimizePreamble    bool
	OptimizePostamble   bool
	HalvingHeuristic    bool
	HalvingPeriodic     bool
}

// ConstraintsConfig is the constraints.* configuration surface (spec.md
// §6): the binary-search parameters plus the two freeze toggles used for
// "visualization" passes.
type ConstraintsConfig struct {
	StallsAllowed             int
	StallsMinimumAttempt      int
	StallsFirstAttempt        int
	StallsMaximumAttempt      int
	StallsPrecision           int
	StallsTimeoutBelowPrecision time.Duration

	StLdHazard      bool
	HazardWindow    int
	AllowReordering bool
	AllowRenaming   bool

	// IssueWidth is the number of instructions that may issue per cycle;
	// not named in spec.md's configuration list but required by the
	// constraint core's cyc[i] = floor(pos[i] / issue_width) (§4.3).
	IssueWidth int
}

// SplitHeuristicConfig is the split_heuristic.* configuration surface
// (spec.md §6).
type SplitHeuristicConfig struct {
	Enabled         bool
	Factor          int
	StepSize        int
	Repeat          int
	RegionStart     int
	RegionEnd       int
	Random          bool
	Chunks          int
	BottomToTop     bool
	OptimizeSeam    bool
	AbortCycleAt    int
	VisualizeStalls bool
	VisualizeUnits  bool
}

// Config is SLOTHY's immutable configuration object (spec.md §5: "one
// Config object per solver call; the driver deep-copies configuration
// before mutating and restores it afterward"; §9: "configuration as bag of
// flags should be a structured record with defaults and explicit
// validation at construction"). Built via NewConfig and the With* builder
// methods, in the teacher's own immutable-clone-and-return idiom
// (tetratelabs/wazero, config.go's RuntimeConfig.With* methods).
type Config struct {
	SWPipelining SWPipeliningConfig
	Constraints  ConstraintsConfig
	SplitHeuristic SplitHeuristicConfig

	InputsAreOutputs bool
	Outputs          asmir.RegSet
	ReservedRegs     asmir.RegSet
	LockedRegisters  asmir.RegSet

	RenameInputs  map[string]RenamePolicy
	RenameOutputs map[string]RenamePolicy
	TypingHints   map[string]string

	Timeout time.Duration

	HasObjective    bool
	IgnoreObjective bool

	VisualizeReordering bool

	SelfCheck bool

	NaivePreprocessing bool
}

// NewConfig returns a Config with spec.md-consistent defaults: reordering
// and renaming both allowed, self-check on, SW pipelining off, a single
// issue slot, and a 30s solver timeout.
func NewConfig() *Config {
	return &Config{
		Constraints: ConstraintsConfig{
			StallsMinimumAttempt: 0,
			StallsFirstAttempt:   0,
			StallsMaximumAttempt: 64,
			StallsPrecision:      0,
			AllowReordering:      true,
			AllowRenaming:        true,
			IssueWidth:           1,
		},
		SWPipelining: SWPipeliningConfig{
			AllowPre:  true,
			AllowPost: true,
		},
		SplitHeuristic: SplitHeuristicConfig{Factor: 2, StepSize: 1, Repeat: 1},
		RenameInputs:   map[string]RenamePolicy{},
		RenameOutputs:  map[string]RenamePolicy{},
		TypingHints:    map[string]string{},
		Timeout:        30 * time.Second,
		HasObjective:   true,
		SelfCheck:      true,
	}
}

// clone returns a deep-enough copy: every field that Optimize/the driver
// mutates through a With* call gets its own backing storage, so two Configs
// derived from a common ancestor never alias each other's maps/sets
// (tetratelabs/wazero, config.go's clone(): "ensures all fields are copied
// even if nil").
func (c *Config) clone() *Config {
	ret := *c
	ret.Outputs = c.Outputs.Clone()
	ret.ReservedRegs = c.ReservedRegs.Clone()
	ret.LockedRegisters = c.LockedRegisters.Clone()
	ret.RenameInputs = cloneRenameMap(c.RenameInputs)
	ret.RenameOutputs = cloneRenameMap(c.RenameOutputs)
	ret.TypingHints = cloneStringMap(c.TypingHints)
	return &ret
}

func cloneRenameMap(m map[string]RenamePolicy) map[string]RenamePolicy {
	out := make(map[string]RenamePolicy, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithSWPipelining returns a copy of c with SW pipelining configured.
func (c *Config) WithSWPipelining(cfg SWPipeliningConfig) *Config {
	ret := c.clone()
	ret.SWPipelining = cfg
	return ret
}

// WithConstraints returns a copy of c with the binary-search/freeze
// parameters configured.
func (c *Config) WithConstraints(cfg ConstraintsConfig) *Config {
	ret := c.clone()
	ret.Constraints = cfg
	return ret
}

// WithSplitHeuristic returns a copy of c with the split-heuristic
// parameters configured.
func (c *Config) WithSplitHeuristic(cfg SplitHeuristicConfig) *Config {
	ret := c.clone()
	ret.SplitHeuristic = cfg
	return ret
}

// WithInputsAreOutputs forces every live-in to also be a live-out.
func (c *Config) WithInputsAreOutputs(v bool) *Config {
	ret := c.clone()
	ret.InputsAreOutputs = v
	return ret
}

// WithOutputs sets an explicit live-out set, overriding inference.
func (c *Config) WithOutputs(outputs asmir.RegSet) *Config {
	ret := c.clone()
	ret.Outputs = outputs.Clone()
	return ret
}

// WithReservedRegs sets the registers excluded from renaming, replacing
// any previously set.
func (c *Config) WithReservedRegs(regs asmir.RegSet) *Config {
	ret := c.clone()
	ret.ReservedRegs = regs.Clone()
	return ret
}

// WithLockedRegisters sets registers that are never chosen as rename
// targets and are not counted as available to the solver.
func (c *Config) WithLockedRegisters(regs asmir.RegSet) *Config {
	ret := c.clone()
	ret.LockedRegisters = regs.Clone()
	return ret
}

// WithTimeout sets the per-solver-call timeout.
func (c *Config) WithTimeout(d time.Duration) *Config {
	ret := c.clone()
	ret.Timeout = d
	return ret
}

// WithSelfCheck toggles the post-solve isomorphism check.
func (c *Config) WithSelfCheck(v bool) *Config {
	ret := c.clone()
	ret.SelfCheck = v
	return ret
}

// WithNaivePreprocessing toggles the greedy warm-start pre-pass (spec.md
// §4.5's "naive preprocessing (optional)").
func (c *Config) WithNaivePreprocessing(v bool) *Config {
	ret := c.clone()
	ret.NaivePreprocessing = v
	return ret
}

// Validate checks cross-field invariants that must hold before Optimize
// runs the driver (spec.md §7: ConfigError, "incompatible flags, e.g. a
// linear entry called with pipelining enabled"; §9: "explicit validation
// at construction"). It is called automatically by Optimize, and is
// exported so callers can fail fast after building a Config.
func (c *Config) Validate() error {
	if c.SWPipelining.Enabled && c.SplitHeuristic.Enabled {
		return &ConfigError{Field: "sw_pipelining.enabled/split_heuristic.enabled",
			Reason: "SW pipelining and the split heuristic are mutually exclusive entry points"}
	}
	if c.SWPipelining.Enabled && c.SWPipelining.Unroll < 1 {
		return &ConfigError{Field: "sw_pipelining.unroll", Reason: "must be >= 1"}
	}
	if c.SWPipelining.HalvingHeuristic && !c.SWPipelining.Enabled {
		return &ConfigError{Field: "sw_pipelining.halving_heuristic",
			Reason: "halving heuristic requires sw_pipelining.enabled"}
	}
	if c.Constraints.StallsMaximumAttempt < c.Constraints.StallsFirstAttempt {
		return &ConfigError{Field: "constraints.stalls_maximum_attempt",
			Reason: "must be >= stalls_first_attempt"}
	}
	if c.Constraints.IssueWidth < 1 {
		return &ConfigError{Field: "constraints.issue_width", Reason: "must be >= 1"}
	}
	if !c.Constraints.AllowRenaming {
		for k := range c.RenameInputs {
			if c.RenameInputs[k] != RenameStatic {
				return &ConfigError{Field: "rename_inputs",
					Reason: "non-static rename policy requires constraints.allow_renaming"}
			}
		}
		for k := range c.RenameOutputs {
			if c.RenameOutputs[k] != RenameStatic {
				return &ConfigError{Field: "rename_outputs",
					Reason: "non-static rename policy requires constraints.allow_renaming"}
			}
		}
	}
	if c.SplitHeuristic.Enabled && c.SplitHeuristic.Factor < 1 {
		return &ConfigError{Field: "split_heuristic.factor", Reason: "must be >= 1"}
	}
	return nil
}
