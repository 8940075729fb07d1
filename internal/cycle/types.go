package cycle

import (
	"context"
	"errors"
	"time"
)

// TaskRecord is the opaque description of the work a cycle operates on. The
// orchestrator only inspects a handful of well-known keys (id, description,
// type, and the heuristic signal fields); everything else passes through to
// the phase executor untouched.
type TaskRecord map[string]any

// PhaseResult is the opaque output of a single phase execution.
type PhaseResult map[string]any

// Record kinds used when persisting orchestration artifacts to the store.
const (
	KindTask              = "TASK"
	KindRoleAssignment    = "ROLE_ASSIGNMENT"
	KindPhaseTransition   = "PHASE_TRANSITION"
	KindPhaseResults      = "PHASE_RESULTS"
	KindMicroCycle        = "MICRO_CYCLE"
	KindFinalReport       = "FINAL_REPORT"
	KindHistoricalPattern = "HISTORICAL_PATTERN"
)

// ErrConsensusFailure marks team errors that represent a failure to reach
// consensus rather than a broken collaborator. The team proxy neutralizes
// these so a disagreement never aborts a cycle.
var ErrConsensusFailure = errors.New("consensus failure")

// PhaseContext carries everything an executor needs to run one phase.
type PhaseContext struct {
	CycleID string
	Task    TaskRecord
	Depth   int

	// Prior holds the results of already-executed phases of this cycle.
	Prior map[Phase]PhaseResult
}

// PhaseExecutor runs the domain work of a single phase.
type PhaseExecutor interface {
	Execute(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error)
}

// ExecutorFunc adapts a function to the PhaseExecutor interface.
type ExecutorFunc func(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error) {
	return f(ctx, phase, pc)
}

// Store is the persistence boundary. Implementations may be remote and
// unreliable; the coordinator treats every call as best-effort.
type Store interface {
	// StoreWithPhase persists content tagged with a record kind, the phase it
	// belongs to, and free-form metadata. Returns the record id.
	StoreWithPhase(ctx context.Context, content any, kind string, phase Phase, meta map[string]any) (string, error)

	// RetrieveWithPhase returns previously stored content matching kind,
	// phase, and the given metadata subset.
	RetrieveWithPhase(ctx context.Context, kind string, phase Phase, meta map[string]any) (map[string]any, error)

	// FlushUpdates pushes buffered writes out and fires sync hooks.
	FlushUpdates(ctx context.Context) error

	// RegisterSyncHook subscribes fn to flushed items.
	RegisterSyncHook(fn SyncHook)
}

// HistoryProvider is an optional richer store interface. When the configured
// store implements it, the termination heuristics consult historical
// recursion outcomes for the task's type.
type HistoryProvider interface {
	RetrieveHistoricalPatterns(ctx context.Context) []map[string]any
}

// Team coordinates the agents working a cycle.
type Team interface {
	// RotatePrimus advances the primus role to the next member.
	RotatePrimus() error

	// AssignRoles distributes roles for the upcoming phase.
	AssignRoles(phase Phase, task TaskRecord) error

	// RoleMap returns the current member-to-role assignment.
	RoleMap() map[string]string
}

// RoleProgressor is an optional richer team interface: phase-aware role
// progression with access to the store. Preferred over AssignRoles when
// available.
type RoleProgressor interface {
	ProgressRoles(ctx context.Context, phase Phase, store Store) error
}

// HistoryEvent is one entry of a cycle's execution history.
type HistoryEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Phase     Phase          `json:"phase"`
	Action    string         `json:"action"` // "start" or "end"
	Details   map[string]any `json:"details,omitempty"`
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// getFloat accepts the numeric types that survive JSON and YAML decoding.
func getFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
