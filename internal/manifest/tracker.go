package manifest

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/cycled/internal/cycle"
)

// Tracker enforces a manifest's phase dependencies and records an execution
// trace. It implements cycle.ManifestTracker.
type Tracker struct {
	m *Manifest

	mu        sync.Mutex
	started   map[cycle.Phase]time.Time
	completed map[cycle.Phase]time.Time
	results   map[cycle.Phase]any
}

// NewTracker builds a tracker for m.
func NewTracker(m *Manifest) *Tracker {
	return &Tracker{
		m:         m,
		started:   make(map[cycle.Phase]time.Time),
		completed: make(map[cycle.Phase]time.Time),
		results:   make(map[cycle.Phase]any),
	}
}

// CheckDependencies reports whether every declared dependency of phase has
// completed. Phases without declarations are unconstrained.
func (t *Tracker) CheckDependencies(phase cycle.Phase) bool {
	spec, ok := t.m.Phases[string(phase)]
	if !ok {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, dep := range spec.DependsOn {
		if _, done := t.completed[cycle.Phase(dep)]; !done {
			return false
		}
	}
	return true
}

// StartPhase records phase entry.
func (t *Tracker) StartPhase(phase cycle.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.started[phase]; !ok {
		t.started[phase] = time.Now()
	}
}

// CompletePhase records phase completion and its result.
func (t *Tracker) CompletePhase(phase cycle.Phase, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[phase] = time.Now()
	t.results[phase] = result
}

// Trace summarizes the execution so far.
func (t *Tracker) Trace() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	phases := make(map[string]any, len(t.started))
	for phase, begin := range t.started {
		entry := map[string]any{
			"started_at": begin.UTC().Format(time.RFC3339),
		}
		if end, ok := t.completed[phase]; ok {
			entry["completed_at"] = end.UTC().Format(time.RFC3339)
			entry["duration_seconds"] = end.Sub(begin).Seconds()
		}
		phases[string(phase)] = entry
	}
	return map[string]any{
		"manifest_id": t.m.ID,
		"phases":      phases,
	}
}
