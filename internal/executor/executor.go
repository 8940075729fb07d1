// Package executor provides a built-in phase executor so the CLI can run a
// cycle end to end. Domain-specific executors implement cycle.PhaseExecutor
// externally.
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cycled/internal/cycle"
)

// Basic produces completed, scored phase results derived from the task. It
// is total: it never returns an error.
type Basic struct {
	logger *zap.Logger
}

// NewBasic builds the executor.
func NewBasic(logger *zap.Logger) *Basic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Basic{logger: logger.Named("executor")}
}

// Execute synthesizes a result for each phase from the task description and
// the prior phases' output.
func (b *Basic) Execute(ctx context.Context, phase cycle.Phase, pc cycle.PhaseContext) (cycle.PhaseResult, error) {
	desc := taskDescription(pc.Task)

	b.logger.Debug("executing phase",
		zap.String("cycle_id", pc.CycleID),
		zap.String("phase", string(phase)))

	result := cycle.PhaseResult{
		"phase":          string(phase),
		"phase_complete": true,
		"quality_score":  0.95,
	}

	switch phase {
	case cycle.PhaseExpand:
		result["description"] = desc
		result["ideas"] = []any{
			"direct implementation of " + desc,
			"incremental decomposition of " + desc,
		}
	case cycle.PhaseDifferentiate:
		result["analysis"] = "evaluated candidate approaches for " + desc
		result["approach"] = "incremental decomposition"
	case cycle.PhaseRefine:
		approach := "incremental decomposition"
		if prior, ok := pc.Prior[cycle.PhaseDifferentiate]; ok {
			if a, ok := prior["approach"].(string); ok && a != "" {
				approach = a
			}
		}
		result["implementation"] = fmt.Sprintf("plan for %s using %s", desc, approach)
		result["solution"] = fmt.Sprintf("refined solution for %s", desc)
	case cycle.PhaseRetrospect:
		result["analysis"] = "retrospective of cycle " + pc.CycleID
		result["learnings"] = []any{
			fmt.Sprintf("completed %d prior phase(s)", len(pc.Prior)),
		}
	}

	return result, nil
}

func taskDescription(task cycle.TaskRecord) string {
	if d, ok := task["description"].(string); ok && d != "" {
		return d
	}
	if id, ok := task["id"].(string); ok && id != "" {
		return "task " + id
	}
	return "unnamed task"
}
