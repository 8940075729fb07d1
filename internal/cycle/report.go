package cycle

import "time"

// buildFinalReport assembles the cycle's final report from whatever phases
// have run: per-phase results and summaries, the refined outcome, aggregate
// quality, recursion lineage, and child-cycle summaries.
func (c *Coordinator) buildFinalReport() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	title := getString(c.task, "description")
	if title == "" {
		title = getString(c.task, "id")
	}

	report := map[string]any{
		"title":        "Cycle Report: " + title,
		"cycle_id":     c.id,
		"generated_at": c.now().UTC().Format(time.RFC3339),
		"task":         map[string]any(c.task),
	}

	phases := make(map[string]any)
	summary := make(map[string]any)
	for _, p := range AllPhases() {
		result, ok := c.results[p]
		if !ok {
			continue
		}
		phases[string(p)] = map[string]any(result)

		entry := map[string]any{"quality_score": scoreResult(result)}
		if micro := getMap(result, "micro_cycle_results"); len(micro) > 0 {
			entry["micro_cycles"] = len(micro)
		}
		if getBool(result, "additional_processing") {
			entry["additional_processing"] = true
		}
		if errMsg := getString(result, "error"); errMsg != "" {
			entry["error"] = errMsg
		}
		summary[string(p)] = entry
	}
	report["phases"] = phases
	report["process_summary"] = summary

	if refine, ok := c.results[PhaseRefine]; ok {
		outcome := make(map[string]any)
		for _, key := range []string{"solution", "implementation", "next_steps"} {
			if v, ok := refine[key]; ok {
				outcome[key] = v
			}
		}
		if len(outcome) > 0 {
			report["outcome"] = outcome
		}
	}

	if c.aggregate != nil {
		report["aggregate"] = c.aggregate
	}

	if c.depth > 0 {
		report["recursion_info"] = map[string]any{
			"depth":           c.depth,
			"parent_cycle_id": c.parentID,
			"parent_phase":    string(c.parentPhase),
		}
	}

	if len(c.children) > 0 {
		kids := make([]any, 0, len(c.children))
		for _, child := range c.children {
			kids = append(kids, map[string]any{
				"cycle_id":      child.ID(),
				"depth":         child.depth,
				"quality_score": child.aggregateQuality(),
			})
		}
		report["child_cycles"] = kids
	}

	return report
}
