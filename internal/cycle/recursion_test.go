package cycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMicroCycleRunsChild(t *testing.T) {
	exec := &completingExecutor{}
	c := New(Collaborators{Executor: exec}, manualOptions(), nil)

	var events []string
	c.RegisterMicroCycleHook(EventMicroCycleCreated, func(event string, data map[string]any) any {
		events = append(events, event)
		return nil
	})
	c.RegisterMicroCycleHook(EventMicroCycleCompleted, func(event string, data map[string]any) any {
		events = append(events, event)
		return nil
	})

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "parent"})
	require.NoError(t, err)

	child, err := c.CreateMicroCycle(context.Background(),
		TaskRecord{"description": "subproblem"}, PhaseExpand)
	require.NoError(t, err)
	require.NotNil(t, child)

	assert.Equal(t, 1, child.Depth())
	assert.Equal(t, c.ID(), child.parentID)
	assert.Equal(t, PhaseExpand, child.parentPhase)
	assert.Len(t, c.Children(), 1)
	assert.Equal(t, []string{EventMicroCycleCreated, EventMicroCycleCompleted}, events)

	res, ok := c.PhaseResultFor(PhaseExpand)
	require.True(t, ok)
	micro := getMap(res, "micro_cycle_results")
	require.Len(t, micro, 1)
	entry := micro[child.ID()].(map[string]any)
	assert.Equal(t, "completed", entry["status"])
	assert.Contains(t, entry, "report")
}

func TestCreateMicroCycleDepthLimit(t *testing.T) {
	opts := manualOptions()
	opts.MaxRecursionDepth = 1
	c := New(Collaborators{Executor: &completingExecutor{}}, opts, nil)

	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "root"})
	require.NoError(t, err)

	child, err := c.CreateMicroCycle(context.Background(),
		TaskRecord{"description": "level one"}, PhaseExpand)
	require.NoError(t, err)

	_, err = child.CreateMicroCycle(context.Background(),
		TaskRecord{"description": "level two"}, PhaseExpand)
	assert.ErrorIs(t, err, ErrRecursionDepthExceeded)
}

func TestCreateMicroCycleHeuristicVeto(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "root"})
	require.NoError(t, err)

	_, err = c.CreateMicroCycle(context.Background(),
		TaskRecord{"description": "too fine", "granularity_score": 0.05}, PhaseExpand)

	var terminated *RecursionTerminatedError
	require.ErrorAs(t, err, &terminated)
	assert.Equal(t, ReasonGranularity, terminated.Reason)
}

func TestCreateMicroCycleRejectsBadInput(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "root"})
	require.NoError(t, err)

	_, err = c.CreateMicroCycle(context.Background(), nil, PhaseExpand)
	assert.ErrorIs(t, err, ErrInvalidTask)

	_, err = c.CreateMicroCycle(context.Background(), TaskRecord{"description": "s"}, Phase("warmup"))
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestChildReportCarriesRecursionInfo(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "root"})
	require.NoError(t, err)

	child, err := c.CreateMicroCycle(context.Background(),
		TaskRecord{"description": "sub"}, PhaseExpand)
	require.NoError(t, err)

	report, err := child.GenerateReport(context.Background())
	require.NoError(t, err)
	info, ok := report["recursion_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, info["depth"])
	assert.Equal(t, c.ID(), info["parent_cycle_id"])
	assert.Equal(t, "expand", info["parent_phase"])
}

func TestRecursionMetrics(t *testing.T) {
	mk := func(depth int, quality float64) *Coordinator {
		cc := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
		cc.depth = depth
		cc.aggregate = map[string]any{"quality_score": quality}
		return cc
	}

	root := mk(0, 0.95)
	childA := mk(1, 0.7)
	childB := mk(1, 0.9)
	grandchild := mk(2, 0.8)
	childA.children = []*Coordinator{grandchild}
	root.children = []*Coordinator{childA, childB}

	m := root.recursionMetrics()
	assert.Equal(t, 4, m["total_cycles"])
	assert.Equal(t, map[int]int{0: 1, 1: 2, 2: 1}, m["cycles_by_depth"])
	assert.Equal(t, 0, m["max_depth"])
	assert.InDelta(t, 0.8, m["improvement_rate"].(float64), 1e-9)
	assert.InDelta(t, 0.8, m["convergence_rate"].(float64), 1e-9)
	assert.InDelta(t, 0.8, m["effectiveness_score"].(float64), 1e-9)
}

func TestRecursionMetricsLeaf(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	m := c.recursionMetrics()
	assert.Equal(t, 1, m["total_cycles"])
	assert.Equal(t, 0.0, m["improvement_rate"])
	assert.Equal(t, 0.0, m["convergence_rate"], "fewer than two samples")
}

func TestStartCycleReportListsChildCycles(t *testing.T) {
	c := New(Collaborators{Executor: &completingExecutor{}}, manualOptions(), nil)
	_, err := c.StartCycle(context.Background(), TaskRecord{"description": "root"})
	require.NoError(t, err)

	_, err = c.CreateMicroCycle(context.Background(), TaskRecord{"description": "sub"}, PhaseExpand)
	require.NoError(t, err)

	report, err := c.GenerateReport(context.Background())
	require.NoError(t, err)
	kids, ok := report["child_cycles"].([]any)
	require.True(t, ok)
	require.Len(t, kids, 1)
	kid := kids[0].(map[string]any)
	assert.Equal(t, 1, kid["depth"])
	assert.Greater(t, kid["quality_score"].(float64), 0.0)
}
