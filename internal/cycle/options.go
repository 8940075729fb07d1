package cycle

import "time"

// Depth limits. MaxRecursionDepth defaults to DefaultMaxDepth and is clamped
// to DepthHardCap no matter what configuration asks for.
const (
	DefaultMaxDepth = 3
	DepthHardCap    = 10
)

// autoProgressCap bounds a single auto-progress run. The fixed sequence has
// four phases; anything past this indicates a transition decision loop.
const autoProgressCap = 10

// DefaultQualityGate is the per-phase quality threshold used when no
// phase-specific value is configured.
const DefaultQualityGate = 0.9

// historicalEffectivenessFloor is the fixed effectiveness score below which
// past recursion outcomes for a task type veto new recursion.
const historicalEffectivenessFloor = 0.5

// Thresholds configures the termination heuristics. Zero values are replaced
// by defaults in DefaultThresholds; see ShouldTerminateRecursion for how each
// threshold is applied.
type Thresholds struct {
	Granularity        float64
	CostBenefit        float64
	Quality            float64
	Resource           float64
	Complexity         float64
	Convergence        float64
	DiminishingReturns float64
}

// DefaultThresholds returns the stock heuristic thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Granularity:        0.2,
		CostBenefit:        0.5,
		Quality:            0.9,
		Resource:           0.8,
		Complexity:         0.8,
		Convergence:        0.9,
		DiminishingReturns: 0.2,
	}
}

// Options configures a Coordinator.
type Options struct {
	MaxRecursionDepth int
	Thresholds        Thresholds

	// AutoPhaseTransitions enables the transition engine's automatic
	// progression. When false, phases advance only on explicit calls or a
	// manual override.
	AutoPhaseTransitions bool

	// PhaseTransitionTimeout force-advances a phase that has been running
	// longer than this, even without an explicit completion signal.
	PhaseTransitionTimeout time.Duration

	// QualityThresholds overrides the quality gate per phase. Phases absent
	// from the map use DefaultQualityGate.
	QualityThresholds map[Phase]float64

	// Aggregation behavior.
	MergeSimilar        bool
	PrioritizeByQuality bool
	HandleConflicts     bool
}

// DefaultOptions returns the stock coordinator configuration.
func DefaultOptions() Options {
	return Options{
		MaxRecursionDepth:      DefaultMaxDepth,
		Thresholds:             DefaultThresholds(),
		AutoPhaseTransitions:   true,
		PhaseTransitionTimeout: time.Hour,
		MergeSimilar:           true,
		PrioritizeByQuality:    true,
		HandleConflicts:        true,
	}
}

// qualityGate returns the quality threshold for phase.
func (o Options) qualityGate(phase Phase) float64 {
	if v, ok := o.QualityThresholds[phase]; ok {
		return v
	}
	return DefaultQualityGate
}

// normalize clamps the depth limit and fills zero thresholds.
func (o Options) normalize() Options {
	if o.MaxRecursionDepth <= 0 {
		o.MaxRecursionDepth = DefaultMaxDepth
	}
	if o.MaxRecursionDepth > DepthHardCap {
		o.MaxRecursionDepth = DepthHardCap
	}
	def := DefaultThresholds()
	if o.Thresholds == (Thresholds{}) {
		o.Thresholds = def
	}
	if o.PhaseTransitionTimeout <= 0 {
		o.PhaseTransitionTimeout = time.Hour
	}
	return o
}
