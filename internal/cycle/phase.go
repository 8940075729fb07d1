package cycle

import "fmt"

// Phase represents one step of the fixed four-phase sequence.
type Phase string

const (
	// PhaseExpand explores broadly: divergent thinking and idea generation.
	PhaseExpand Phase = "expand"

	// PhaseDifferentiate compares and evaluates the options produced by Expand.
	PhaseDifferentiate Phase = "differentiate"

	// PhaseRefine elaborates the selected option into a concrete plan.
	PhaseRefine Phase = "refine"

	// PhaseRetrospect extracts learnings. It is terminal: no successor.
	PhaseRetrospect Phase = "retrospect"
)

// AllPhases returns the phases in execution order.
func AllPhases() []Phase {
	return []Phase{PhaseExpand, PhaseDifferentiate, PhaseRefine, PhaseRetrospect}
}

// Index returns the position of p in the fixed order, or -1 if p is not a
// valid phase.
func (p Phase) Index() int {
	for i, q := range AllPhases() {
		if q == p {
			return i
		}
	}
	return -1
}

// Next returns the successor phase. The second return value is false when p
// is terminal or invalid.
func (p Phase) Next() (Phase, bool) {
	idx := p.Index()
	if idx < 0 || idx == len(AllPhases())-1 {
		return "", false
	}
	return AllPhases()[idx+1], true
}

// Terminal reports whether p has no successor.
func (p Phase) Terminal() bool {
	return p == PhaseRetrospect
}

// ParsePhase converts a phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if p.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}
