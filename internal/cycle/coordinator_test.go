package cycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCycleRejectsEmptyTask(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, DefaultOptions(), nil)

	_, err := c.StartCycle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = c.StartCycle(context.Background(), TaskRecord{})
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestStartCycleRunsAllPhases(t *testing.T) {
	store := &fakeStore{}
	exec := &completingExecutor{}
	c := New(Collaborators{Store: store, Executor: exec, Team: &fakeTeam{}}, DefaultOptions(), nil)

	report, err := c.StartCycle(context.Background(), TaskRecord{"description": "build the thing"})
	require.NoError(t, err)

	assert.Equal(t, PhaseRetrospect, c.CurrentPhase())
	assert.Equal(t, []Phase{PhaseExpand, PhaseDifferentiate, PhaseRefine, PhaseRetrospect}, exec.callOrder())

	for _, p := range AllPhases() {
		_, ok := c.PhaseResultFor(p)
		assert.True(t, ok, "missing result for %s", p)
	}

	assert.Equal(t, "Cycle Report: build the thing", report["title"])
	assert.NotEmpty(t, report["cycle_id"])
	assert.Contains(t, report, "phases")
	assert.Contains(t, report, "process_summary")
	assert.Contains(t, report, "aggregate")
	assert.NotContains(t, report, "recursion_info")

	kinds := store.kinds()
	assert.Contains(t, kinds, KindTask)
	assert.Contains(t, kinds, KindPhaseResults)
	assert.Contains(t, kinds, KindPhaseTransition)
	assert.Contains(t, kinds, KindRoleAssignment)
	assert.Contains(t, kinds, KindFinalReport)
	assert.Equal(t, 1, store.flushed)
}

func TestStartCycleAssignsTaskID(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "untagged"})
	require.NoError(t, err)

	c.mu.Lock()
	id := getString(c.task, "id")
	c.mu.Unlock()
	assert.NotEmpty(t, id)
}

func TestProgressToPhaseIdempotent(t *testing.T) {
	exec := &completingExecutor{}
	c := New(Collaborators{Executor: exec}, manualOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)
	require.Equal(t, PhaseExpand, c.CurrentPhase())
	callsAfterStart := exec.callCount()

	first, ok := c.PhaseResultFor(PhaseExpand)
	require.True(t, ok)

	again, err := c.ProgressToPhase(context.Background(), PhaseExpand)
	require.NoError(t, err)
	assert.Equal(t, callsAfterStart, exec.callCount(), "re-entering the current phase must not re-execute")
	assert.Equal(t, map[string]any(first), map[string]any(again))
}

func TestProgressToPhaseExecutesIntermediates(t *testing.T) {
	exec := &completingExecutor{}
	c := New(Collaborators{Executor: exec}, manualOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)

	_, err = c.ProgressToPhase(context.Background(), PhaseRefine)
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseExpand, PhaseDifferentiate, PhaseRefine}, exec.callOrder())
	assert.Equal(t, PhaseRefine, c.CurrentPhase())
}

func TestProgressToPhaseBackwardsReturnsCached(t *testing.T) {
	exec := &completingExecutor{}
	c := New(Collaborators{Executor: exec}, manualOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)
	_, err = c.ProgressToPhase(context.Background(), PhaseDifferentiate)
	require.NoError(t, err)
	calls := exec.callCount()

	res, err := c.ProgressToPhase(context.Background(), PhaseExpand)
	require.NoError(t, err)
	assert.Equal(t, "result of expand", res["description"])
	assert.Equal(t, calls, exec.callCount())
	assert.Equal(t, PhaseDifferentiate, c.CurrentPhase())
}

func TestProgressToPhaseUnknown(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	_, err := c.ProgressToPhase(context.Background(), Phase("polish"))
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestProgressToNextPhaseRequiresCycle(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	_, err := c.ProgressToNextPhase(context.Background())
	assert.ErrorIs(t, err, ErrNoCycleStarted)
}

func TestProgressToNextPhaseAtFinal(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)
	_, err = c.ProgressToPhase(context.Background(), PhaseRetrospect)
	require.NoError(t, err)

	_, err = c.ProgressToNextPhase(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyAtFinalPhase)
}

func TestExecutorFailureUsesRecoveryHook(t *testing.T) {
	boom := errors.New("differentiate blew up")
	exec := ExecutorFunc(func(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error) {
		if phase == PhaseDifferentiate {
			return nil, boom
		}
		return PhaseResult{"phase_complete": true, "quality_score": 0.95}, nil
	})

	c := New(Collaborators{Executor: exec}, manualOptions(), nil)
	c.RegisterRecoveryHook(PhaseDifferentiate, func(err error, phase Phase) map[string]any {
		return map[string]any{
			"action": "substitute",
			"result": map[string]any{"analysis": "fallback analysis", "phase_complete": true},
		}
	})

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)

	res, err := c.ProgressToNextPhase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback analysis", res["analysis"])
	assert.Equal(t, true, res["recovered"])
}

func TestExecutorFailureDegradesWithoutHooks(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error) {
		if phase == PhaseDifferentiate {
			return nil, errors.New("no ideas survived")
		}
		return PhaseResult{"phase_complete": true, "quality_score": 0.95}, nil
	})

	c := New(Collaborators{Executor: exec}, DefaultOptions(), nil)
	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)

	// The failed phase yields a degraded result instead of aborting, and
	// auto-progression stops there for lack of a completion signal.
	assert.Equal(t, PhaseDifferentiate, c.CurrentPhase())
	res, ok := c.PhaseResultFor(PhaseDifferentiate)
	require.True(t, ok)
	assert.Equal(t, "failed", res["status"])
	assert.Equal(t, "no ideas survived", res["error"])
}

func TestStoreOutageNeverFailsCycle(t *testing.T) {
	store := &fakeStore{failStore: true, failFlush: true, failRetrieve: true}
	c := New(Collaborators{Store: store, Executor: &completingExecutor{}}, DefaultOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)
	assert.Equal(t, PhaseRetrospect, c.CurrentPhase())

	perf := c.PerformanceMetrics()
	failures, _ := perf["store_failures"].([]any)
	assert.NotEmpty(t, failures)

	assert.Empty(t, c.StoredArtifacts(context.Background(), KindPhaseResults, PhaseExpand))
}

func TestConsensusFailureNeutralized(t *testing.T) {
	team := &fakeTeam{rotateConsensus: true}
	c := New(Collaborators{Executor: &completingExecutor{}, Team: team}, DefaultOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)
	assert.Equal(t, PhaseRetrospect, c.CurrentPhase())
	assert.Equal(t, 3, team.rotations, "one rotation per transition after the first phase")

	perf := c.PerformanceMetrics()
	failures, _ := perf["consensus_failures"].([]any)
	require.Len(t, failures, 3)
	entry := failures[0].(map[string]any)
	assert.Equal(t, "consensus_failure", entry["type"])
	assert.Equal(t, "rotate_primus", entry["method"])
}

func TestManifestDependencyGate(t *testing.T) {
	tracker := &staticTracker{blocked: map[Phase]bool{PhaseDifferentiate: true}}
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)

	_, err := c.StartCycleWithManifest(context.Background(), TaskRecord{"description": "t"}, tracker)
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseExpand}, tracker.started)
	assert.Equal(t, []Phase{PhaseExpand}, tracker.done)

	_, err = c.ProgressToNextPhase(context.Background())
	assert.ErrorIs(t, err, ErrUnmetDependencies)
}

func TestExecutionHistoryRecordsStartAndEnd(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, DefaultOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)

	history := c.ExecutionHistory()
	require.Len(t, history, 8)
	assert.Equal(t, "start", history[0].Action)
	assert.Equal(t, PhaseExpand, history[0].Phase)
	assert.Equal(t, "end", history[7].Action)
	assert.Equal(t, PhaseRetrospect, history[7].Phase)
	assert.Contains(t, history[7].Details, "quality_score")
}

func TestGenerateReportRequiresCycle(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, DefaultOptions(), nil)
	_, err := c.GenerateReport(context.Background())
	assert.ErrorIs(t, err, ErrNoCycleStarted)
}

func TestGenerateReportIncludesOutcome(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, phase Phase, pc PhaseContext) (PhaseResult, error) {
		res := PhaseResult{"phase_complete": true, "quality_score": 0.95}
		if phase == PhaseRefine {
			res["solution"] = "the refined solution"
		}
		return res, nil
	})
	c := New(Collaborators{Executor: exec}, DefaultOptions(), nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "t"})
	require.NoError(t, err)

	report, err := c.GenerateReport(context.Background())
	require.NoError(t, err)
	outcome, ok := report["outcome"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "the refined solution", outcome["solution"])
}
