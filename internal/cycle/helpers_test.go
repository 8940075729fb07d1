package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeStore records writes and can be flipped into failure modes. It also
// serves historical patterns for the termination heuristics.
type fakeStore struct {
	mu           sync.Mutex
	stored       []storedRecord
	flushed      int
	failStore    bool
	failRetrieve bool
	failFlush    bool
	hooks        []SyncHook
	patterns     []map[string]any
}

type storedRecord struct {
	Kind    string
	Phase   Phase
	Content any
	Meta    map[string]any
}

func (s *fakeStore) StoreWithPhase(ctx context.Context, content any, kind string, phase Phase, meta map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStore {
		return "", errors.New("store unavailable")
	}
	s.stored = append(s.stored, storedRecord{Kind: kind, Phase: phase, Content: content, Meta: meta})
	return fmt.Sprintf("rec-%d", len(s.stored)), nil
}

func (s *fakeStore) RetrieveWithPhase(ctx context.Context, kind string, phase Phase, meta map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRetrieve {
		return nil, errors.New("store unavailable")
	}
	var items []any
	for _, r := range s.stored {
		if r.Kind == kind && r.Phase == phase {
			items = append(items, r.Content)
		}
	}
	return map[string]any{"items": items}, nil
}

func (s *fakeStore) FlushUpdates(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFlush {
		return errors.New("store unavailable")
	}
	s.flushed++
	return nil
}

func (s *fakeStore) RegisterSyncHook(fn SyncHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *fakeStore) RetrieveHistoricalPatterns(ctx context.Context) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patterns
}

func (s *fakeStore) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.stored))
	for _, r := range s.stored {
		out = append(out, r.Kind)
	}
	return out
}

// fakeTeam counts calls and can fail selected methods with a consensus error
// or a hard error.
type fakeTeam struct {
	mu              sync.Mutex
	rotations       int
	assignments     int
	rotateConsensus bool
	rotateErr       error
}

func (t *fakeTeam) RotatePrimus() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotations++
	if t.rotateConsensus {
		return fmt.Errorf("primus vote split: %w", ErrConsensusFailure)
	}
	return t.rotateErr
}

func (t *fakeTeam) AssignRoles(phase Phase, task TaskRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assignments++
	return nil
}

func (t *fakeTeam) RoleMap() map[string]string {
	return map[string]string{"a": "primus"}
}

// completingExecutor returns a completed, scored result for every phase and
// counts executions per phase.
type completingExecutor struct {
	mu    sync.Mutex
	calls []Phase
	score float64
}

func (e *completingExecutor) Execute(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, phase)
	e.mu.Unlock()
	score := e.score
	if score == 0 {
		score = 0.95
	}
	return PhaseResult{
		"phase":          string(phase),
		"description":    "result of " + string(phase),
		"phase_complete": true,
		"quality_score":  score,
	}, nil
}

func (e *completingExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *completingExecutor) callOrder() []Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Phase, len(e.calls))
	copy(out, e.calls)
	return out
}

func manualOptions() Options {
	opts := DefaultOptions()
	opts.AutoPhaseTransitions = false
	return opts
}

// staticTracker is a canned ManifestTracker for dependency-gate tests.
type staticTracker struct {
	mu      sync.Mutex
	blocked map[Phase]bool
	started []Phase
	done    []Phase
}

func (t *staticTracker) CheckDependencies(phase Phase) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.blocked[phase]
}

func (t *staticTracker) StartPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = append(t.started, phase)
}

func (t *staticTracker) CompletePhase(phase Phase, result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = append(t.done, phase)
}
