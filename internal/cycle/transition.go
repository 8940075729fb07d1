package cycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func errUnknown(phase Phase) error {
	return fmt.Errorf("%w: %q", ErrUnknownPhase, string(phase))
}

// SetManualPhaseOverride forces the next transition decision to pick phase,
// regardless of every other consideration. The override is consumed by the
// first decision that uses it.
func (c *Coordinator) SetManualPhaseOverride(phase Phase) error {
	if phase.Index() < 0 {
		return errUnknown(phase)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = phase
	return nil
}

// ClearManualPhaseOverride drops a pending override.
func (c *Coordinator) ClearManualPhaseOverride() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = ""
}

// decideNextPhase implements the transition decision. Checks run in strict
// order; the first applicable one wins:
//
//  1. a pending manual override (consumed here)
//  2. automatic transitions disabled -> stay
//  3. terminal or unstarted phase -> stay
//  4. recorded quality below the phase's gate -> stay, recording the issue
//  5. explicit phase_complete signal -> advance
//  6. phase running past the transition timeout -> advance
//
// Callers hold c.mu.
func (c *Coordinator) decideNextPhase() (Phase, bool) {
	if c.override != "" {
		next := c.override
		c.override = ""
		return next, true
	}

	if !c.opts.AutoPhaseTransitions {
		return "", false
	}

	if c.current == "" || c.current.Terminal() {
		return "", false
	}
	next, _ := c.current.Next()

	result := c.results[c.current]
	if score, ok := getFloat(result, "quality_score"); ok {
		gate := c.opts.qualityGate(c.current)
		if score < gate {
			c.recordQualityIssue(result, score, gate)
			return "", false
		}
	}

	if getBool(result, "phase_complete") {
		return next, true
	}

	if start, ok := c.phaseStart[c.current]; ok {
		if c.now().Sub(start) > c.opts.PhaseTransitionTimeout {
			return next, true
		}
	}

	return "", false
}

// recordQualityIssue annotates the gated phase result so later phases and the
// final report can see why progression stalled.
func (c *Coordinator) recordQualityIssue(result PhaseResult, score, gate float64) {
	if result == nil {
		return
	}
	result["additional_processing"] = true
	issues, _ := result["quality_issues"].([]any)
	result["quality_issues"] = append(issues, map[string]any{
		"metric":    "quality",
		"value":     score,
		"threshold": gate,
	})
	c.logger.Debug("phase gated on quality",
		zap.String("phase", string(c.current)),
		zap.Float64("score", score),
		zap.Float64("threshold", gate))
}

// maybeAutoProgress drives consecutive transitions until the engine picks no
// phase. Bounded by autoProgressCap and guarded against re-entry so hook or
// collaborator callbacks cannot recurse into the loop.
func (c *Coordinator) maybeAutoProgress(ctx context.Context) {
	c.mu.Lock()
	if c.inAutoProgress {
		c.mu.Unlock()
		return
	}
	c.inAutoProgress = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inAutoProgress = false
		c.mu.Unlock()
	}()

	for i := 0; i < autoProgressCap; i++ {
		c.mu.Lock()
		next, ok := c.decideNextPhase()
		c.mu.Unlock()
		if !ok {
			return
		}
		if _, err := c.enterPhase(ctx, next); err != nil {
			c.logger.Warn("auto progression halted",
				zap.String("phase", string(next)),
				zap.Error(err))
			return
		}
	}
	c.logger.Warn("auto progression hit safety cap",
		zap.Int("cap", autoProgressCap))
}
