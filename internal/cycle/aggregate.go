package cycle

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ConflictField is the result key the aggregator reconciles when sibling
// micro-cycles disagree.
const ConflictField = "approach"

// SourceResult pairs a micro-cycle result with the cycle that produced it.
type SourceResult struct {
	CycleID string
	Result  map[string]any
}

// Aggregator combines the results of sibling micro-cycles: similar results
// are merged into unions, survivors are ranked by quality, and disagreements
// on the designated conflict field are resolved in favor of the
// highest-quality candidate.
type Aggregator struct {
	MergeSimilar        bool
	PrioritizeByQuality bool
	HandleConflicts     bool
}

// NewAggregator returns an aggregator with the given behavior toggles.
func NewAggregator(mergeSimilar, prioritizeByQuality, handleConflicts bool) *Aggregator {
	return &Aggregator{
		MergeSimilar:        mergeSimilar,
		PrioritizeByQuality: prioritizeByQuality,
		HandleConflicts:     handleConflicts,
	}
}

// QualityScore exposes the heuristic result scorer.
func (a *Aggregator) QualityScore(result map[string]any) float64 {
	return scoreResult(result)
}

// SimilarityKey buckets results that describe the same work: same type and
// same normalized description. Results without either get no bucket.
func (a *Aggregator) SimilarityKey(result map[string]any) string {
	typ := strings.ToLower(strings.TrimSpace(getString(result, "type")))
	desc := strings.ToLower(strings.TrimSpace(getString(result, "description")))
	desc = strings.Join(strings.Fields(desc), " ")
	if typ == "" && desc == "" {
		return ""
	}
	return typ + "|" + desc
}

// MergeResults folds a group of similar results into one union result.
// List fields become deduplicated unions, nested maps merge recursively, and
// scalar disagreements keep the first value seen. The merge is idempotent:
// merging a result into a union that already contains it changes nothing.
// The union carries a merged_from field listing the contributing cycle ids.
func (a *Aggregator) MergeResults(group []SourceResult) map[string]any {
	if len(group) == 0 {
		return nil
	}

	merged := make(map[string]any)
	var from []any
	for _, src := range group {
		mergeInto(merged, src.Result)
		if src.CycleID != "" && !containsValue(from, src.CycleID) {
			from = append(from, src.CycleID)
		}
	}
	delete(merged, "merged_from")
	if len(from) > 0 {
		merged["merged_from"] = from
	}
	return merged
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = cloneValue(v)
			continue
		}
		switch ev := existing.(type) {
		case map[string]any:
			if sv, ok := v.(map[string]any); ok {
				mergeInto(ev, sv)
			}
		case []any:
			if sv, ok := v.([]any); ok {
				dst[k] = unionLists(ev, sv)
			}
		default:
			// Scalar conflict: first writer wins.
		}
	}
}

func unionLists(a, b []any) []any {
	out := make([]any, len(a))
	copy(out, a)
	for _, v := range b {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	key := fmt.Sprint(v)
	for _, item := range list {
		if fmt.Sprint(item) == key {
			return true
		}
	}
	return false
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = cloneValue(vv)
		}
		return out
	}
	return v
}

// IdentifyConflicts reports the distinct non-empty values of the conflict
// field across results, keyed by value, when more than one value exists.
func (a *Aggregator) IdentifyConflicts(results []SourceResult) map[string][]SourceResult {
	groups := make(map[string][]SourceResult)
	for _, src := range results {
		value := getString(src.Result, ConflictField)
		if value == "" {
			continue
		}
		groups[value] = append(groups[value], src)
	}
	if len(groups) < 2 {
		return nil
	}
	return groups
}

// ResolveConflict picks the value backed by the highest-quality candidate.
// Ties break lexicographically on the value so resolution is deterministic.
func (a *Aggregator) ResolveConflict(groups map[string][]SourceResult) map[string]any {
	if len(groups) == 0 {
		return nil
	}
	type scored struct {
		value string
		best  float64
	}
	ranked := make([]scored, 0, len(groups))
	for value, candidates := range groups {
		best := 0.0
		for _, src := range candidates {
			if q := scoreResult(src.Result); q > best {
				best = q
			}
		}
		ranked = append(ranked, scored{value: value, best: best})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].best != ranked[j].best {
			return ranked[i].best > ranked[j].best
		}
		return ranked[i].value < ranked[j].value
	})

	alternatives := make([]any, 0, len(ranked)-1)
	for _, r := range ranked[1:] {
		alternatives = append(alternatives, r.value)
	}
	return map[string]any{
		"primary":           ranked[0].value,
		"alternatives":      alternatives,
		"resolution_method": "quality_based_selection",
		"resolution_notes": fmt.Sprintf("selected %q (quality %.2f) over %d alternative(s)",
			ranked[0].value, ranked[0].best, len(alternatives)),
	}
}

// ProcessPhaseResults rewrites a phase result's micro_cycle_results in place:
// similar results merged, survivors ranked into top_results, conflicts on the
// designated field resolved into resolved_conflicts.
func (a *Aggregator) ProcessPhaseResults(result PhaseResult) {
	raw := getMap(result, "micro_cycle_results")
	if len(raw) == 0 {
		return
	}

	sources := make([]SourceResult, 0, len(raw))
	for id, v := range raw {
		if m, ok := v.(map[string]any); ok {
			sources = append(sources, SourceResult{CycleID: id, Result: m})
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].CycleID < sources[j].CycleID })

	if a.MergeSimilar {
		sources = a.mergeSimilar(sources)
		combined := make(map[string]any, len(sources))
		for _, src := range sources {
			combined[src.CycleID] = src.Result
		}
		result["micro_cycle_results"] = combined
	}

	if a.PrioritizeByQuality {
		ranked := make([]SourceResult, len(sources))
		copy(ranked, sources)
		sort.SliceStable(ranked, func(i, j int) bool {
			return scoreResult(ranked[i].Result) > scoreResult(ranked[j].Result)
		})
		top := make([]any, 0, len(ranked))
		for _, src := range ranked {
			top = append(top, map[string]any{
				"cycle_id":      src.CycleID,
				"quality_score": scoreResult(src.Result),
			})
		}
		result["top_results"] = top
	}

	if a.HandleConflicts {
		if groups := a.IdentifyConflicts(sources); groups != nil {
			result["resolved_conflicts"] = map[string]any{
				ConflictField: a.ResolveConflict(groups),
			}
		}
	}
}

// mergeSimilar collapses sources sharing a similarity key. The merged entry
// keeps the first contributor's cycle id.
func (a *Aggregator) mergeSimilar(sources []SourceResult) []SourceResult {
	byKey := make(map[string][]SourceResult)
	order := make([]string, 0, len(sources))
	var out []SourceResult

	for _, src := range sources {
		key := a.SimilarityKey(src.Result)
		if key == "" {
			out = append(out, src)
			continue
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], src)
	}

	for _, key := range order {
		group := byKey[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		out = append(out, SourceResult{
			CycleID: group[0].CycleID,
			Result:  a.MergeResults(group),
		})
	}
	return out
}

// sampleStddev returns the sample standard deviation; 0 for fewer than two
// values.
func sampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
