package cycle

import "context"

// Reasons reported by ShouldTerminateRecursion, one per heuristic.
const (
	ReasonHumanOverride      = "human override"
	ReasonGranularity        = "granularity threshold"
	ReasonCostBenefit        = "cost-benefit analysis"
	ReasonQuality            = "quality threshold"
	ReasonResourceLimit      = "resource limit"
	ReasonComplexity         = "complexity threshold"
	ReasonConvergence        = "convergence threshold"
	ReasonDiminishingReturns = "diminishing returns"
	ReasonParentPhase        = "parent phase compatibility"
	ReasonHistorical         = "historical ineffectiveness"
)

// ShouldTerminateRecursion evaluates the termination heuristics against task
// in fixed order, short-circuiting on the first that fires. A heuristic whose
// signal field is absent from the task is skipped. Returns whether recursion
// must stop and the name of the deciding heuristic.
func (c *Coordinator) ShouldTerminateRecursion(ctx context.Context, task TaskRecord) (bool, string) {
	t := c.opts.Thresholds

	// An explicit human decision overrides everything, in both directions.
	switch getString(task, "human_override") {
	case "terminate":
		return true, ReasonHumanOverride
	case "continue":
		return false, ""
	}

	if v, ok := getFloat(task, "granularity_score"); ok && v < t.Granularity {
		return true, ReasonGranularity
	}

	// Recursing costs more than it returns: zero benefit with a known cost,
	// or a cost/benefit ratio above the threshold.
	if cost, ok := getFloat(task, "cost_score"); ok {
		if benefit, ok := getFloat(task, "benefit_score"); ok {
			if benefit == 0 || cost/benefit > t.CostBenefit {
				return true, ReasonCostBenefit
			}
		}
	}

	if v, ok := getFloat(task, "quality_score"); ok && v >= t.Quality {
		return true, ReasonQuality
	}

	if v, ok := getFloat(task, "resource_usage"); ok && v >= t.Resource {
		return true, ReasonResourceLimit
	}

	if v, ok := getFloat(task, "complexity_score"); ok && v >= t.Complexity {
		return true, ReasonComplexity
	}

	if v, ok := getFloat(task, "convergence_score"); ok && v >= t.Convergence {
		return true, ReasonConvergence
	}

	if v, ok := getFloat(task, "improvement_rate"); ok && v < t.DiminishingReturns {
		return true, ReasonDiminishingReturns
	}

	// Retrospect extracts learnings from completed work; spawning new work
	// under it would undermine the phase's purpose.
	if c.parentPhase == PhaseRetrospect {
		return true, ReasonParentPhase
	}

	if stop := c.historicallyIneffective(ctx, task); stop {
		return true, ReasonHistorical
	}

	return false, ""
}

// historicallyIneffective consults stored recursion outcomes for the task's
// type, when the store exposes them.
func (c *Coordinator) historicallyIneffective(ctx context.Context, task TaskRecord) bool {
	hp, ok := c.store.(HistoryProvider)
	if !ok {
		return false
	}
	taskType := getString(task, "type")
	if taskType == "" {
		return false
	}
	for _, pattern := range hp.RetrieveHistoricalPatterns(ctx) {
		if getString(pattern, "task_type") != taskType {
			continue
		}
		if eff, ok := getFloat(pattern, "recursion_effectiveness"); ok && eff < historicalEffectivenessFloor {
			return true
		}
	}
	return false
}
