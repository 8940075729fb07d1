package cycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Micro-cycle lifecycle events delivered to registered MicroCycleHooks.
const (
	EventMicroCycleCreated   = "micro_cycle_created"
	EventMicroCycleCompleted = "micro_cycle_completed"
)

// CreateMicroCycle spawns a child coordinator for subtask under parentPhase
// and runs it to completion. The child shares this coordinator's
// collaborators, options, and hook registry, at depth+1.
//
// Creation is refused with ErrRecursionDepthExceeded at the depth limit and
// with a RecursionTerminatedError when a termination heuristic fires. The
// child's outcome is recorded under micro_cycle_results of the parent phase's
// result.
func (c *Coordinator) CreateMicroCycle(ctx context.Context, subtask TaskRecord, parentPhase Phase) (*Coordinator, error) {
	if parentPhase.Index() < 0 {
		return nil, errUnknown(parentPhase)
	}
	if len(subtask) == 0 {
		return nil, ErrInvalidTask
	}

	parentID := c.ID()

	if c.depth >= c.opts.MaxRecursionDepth {
		c.inst.addMicroCycleRefused(ctx)
		return nil, fmt.Errorf("%w: depth %d at limit %d",
			ErrRecursionDepthExceeded, c.depth, c.opts.MaxRecursionDepth)
	}
	if stop, reason := c.ShouldTerminateRecursion(ctx, subtask); stop {
		c.inst.addMicroCycleRefused(ctx)
		c.logger.Info("micro cycle refused",
			zap.String("reason", reason),
			zap.String("parent_phase", string(parentPhase)))
		return nil, &RecursionTerminatedError{Reason: reason}
	}

	child := newChild(c, parentPhase)

	c.hooks.InvokeMicroCycleHooks(EventMicroCycleCreated, map[string]any{
		"parent_cycle_id": parentID,
		"parent_phase":    string(parentPhase),
		"depth":           child.depth,
		"task":            map[string]any(subtask),
	})

	c.recordMicroCyclePlaceholder(parentPhase, child, subtask)
	c.safeStore(ctx, map[string]any{
		"parent_cycle_id": parentID,
		"parent_phase":    string(parentPhase),
		"depth":           child.depth,
		"task":            map[string]any(subtask),
	}, KindMicroCycle, parentPhase, map[string]any{"cycle_id": parentID})

	c.inst.addMicroCycleSpawned(ctx)
	report, err := child.StartCycle(ctx, subtask)
	if err != nil {
		c.markMicroCycleFailed(parentPhase, child, err)
		return nil, fmt.Errorf("micro cycle failed: %w", err)
	}

	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()
	c.markMicroCycleCompleted(parentPhase, child, report)

	c.hooks.InvokeMicroCycleHooks(EventMicroCycleCompleted, map[string]any{
		"parent_cycle_id": parentID,
		"cycle_id":        child.ID(),
		"parent_phase":    string(parentPhase),
		"quality_score":   child.aggregateQuality(),
	})

	return child, nil
}

// newChild builds a coordinator sharing c's collaborators at depth+1. The
// hook registry is shared so observers registered on the root see the whole
// tree.
func newChild(c *Coordinator, parentPhase Phase) *Coordinator {
	child := New(Collaborators{
		Store:    c.store,
		Executor: c.executor,
		Team:     c.rawTeam,
	}, c.opts, c.logger)
	child.id = uuid.NewString()
	child.depth = c.depth + 1
	child.parentID = c.ID()
	child.parentPhase = parentPhase
	child.hooks = c.hooks
	child.inst = c.inst
	child.now = c.now
	return child
}

func (c *Coordinator) recordMicroCyclePlaceholder(parentPhase Phase, child *Coordinator, subtask TaskRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := map[string]any{
		"task":   map[string]any(subtask),
		"status": "created",
	}
	c.microResultsLocked(parentPhase)[child.id] = entry
}

func (c *Coordinator) markMicroCycleCompleted(parentPhase Phase, child *Coordinator, report map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.microResultsLocked(parentPhase)[child.id].(map[string]any); ok {
		entry["status"] = "completed"
		entry["quality_score"] = child.aggregateQuality()
		entry["report"] = report
	}
}

func (c *Coordinator) markMicroCycleFailed(parentPhase Phase, child *Coordinator, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.microResultsLocked(parentPhase)[child.id].(map[string]any); ok {
		entry["status"] = "failed"
		entry["error"] = err.Error()
	}
}

// microResultsLocked returns the micro_cycle_results map of the parent
// phase's result, creating result and map as needed. Callers hold c.mu.
func (c *Coordinator) microResultsLocked(parentPhase Phase) map[string]any {
	result, ok := c.results[parentPhase]
	if !ok {
		result = PhaseResult{}
		c.results[parentPhase] = result
	}
	micro, ok := result["micro_cycle_results"].(map[string]any)
	if !ok {
		micro = map[string]any{}
		result["micro_cycle_results"] = micro
	}
	return micro
}

// recursionMetrics summarizes the coordinator tree rooted here.
func (c *Coordinator) recursionMetrics() map[string]any {
	byDepth := map[int]int{}
	total := c.countCycles(byDepth)

	var scores []float64
	c.collectDescendantQuality(&scores)

	improvement := 0.0
	if len(scores) > 0 {
		for _, s := range scores {
			improvement += s
		}
		improvement /= float64(len(scores))
	}

	convergence := 0.0
	if len(scores) >= 2 {
		convergence = 1 - 2*sampleStddev(scores)
		if convergence < 0 {
			convergence = 0
		}
		if convergence > 1 {
			convergence = 1
		}
	}

	return map[string]any{
		"total_cycles":        total,
		"cycles_by_depth":     byDepth,
		"max_depth":           c.depth,
		"improvement_rate":    improvement,
		"convergence_rate":    convergence,
		"effectiveness_score": 0.6*improvement + 0.4*convergence,
	}
}

func (c *Coordinator) countCycles(byDepth map[int]int) int {
	byDepth[c.depth]++
	total := 1
	for _, child := range c.children {
		total += child.countCycles(byDepth)
	}
	return total
}

func (c *Coordinator) collectDescendantQuality(scores *[]float64) {
	for _, child := range c.children {
		*scores = append(*scores, child.aggregateQuality())
		child.collectDescendantQuality(scores)
	}
}
