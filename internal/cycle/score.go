package cycle

// descriptiveFields are the result keys whose presence raises the heuristic
// quality score when no explicit quality_score is reported.
var descriptiveFields = []string{
	"description",
	"approach",
	"implementation",
	"analysis",
	"solution",
}

// scoreResult computes a quality score in [0, 1] for a phase or micro-cycle
// result. An explicit quality_score field wins; otherwise the score starts at
// a 0.1 base and each populated descriptive field adds 0.15. A reported error
// subtracts 0.3 in either case.
func scoreResult(result map[string]any) float64 {
	if len(result) == 0 {
		return 0
	}

	score, explicit := getFloat(result, "quality_score")
	if !explicit {
		score = 0.1
		for _, field := range descriptiveFields {
			if hasContent(result[field]) {
				score += 0.15
			}
		}
	}

	if hasContent(result["error"]) {
		score -= 0.3
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func hasContent(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
