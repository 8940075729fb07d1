package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManifestTracker gates phase entry on declared dependencies and records an
// execution trace. Implemented by internal/manifest.Tracker.
type ManifestTracker interface {
	CheckDependencies(phase Phase) bool
	StartPhase(phase Phase)
	CompletePhase(phase Phase, result any)
}

// Collaborators are the external components a coordinator drives. Executor is
// required for useful work; Store and Team are optional and treated as
// unreliable.
type Collaborators struct {
	Store    Store
	Executor PhaseExecutor
	Team     Team
}

// Coordinator runs one cycle through the fixed phase sequence. It is the
// root of a tree: micro-cycles get their own child coordinators sharing the
// same collaborators and hook registry.
//
// Methods are safe for concurrent use, but a cycle's phases execute
// sequentially by design.
type Coordinator struct {
	opts     Options
	logger   *zap.Logger
	inst     *Instruments
	store    Store
	executor PhaseExecutor
	rawTeam  Team
	team     *TeamProxy
	hooks    *HookRegistry
	now      func() time.Time

	depth       int
	parentID    string
	parentPhase Phase

	mu             sync.Mutex
	id             string
	task           TaskRecord
	current        Phase
	override       Phase
	results        map[Phase]PhaseResult
	phaseStart     map[Phase]time.Time
	history        []HistoryEvent
	perf           map[string]any
	manifest       ManifestTracker
	children       []*Coordinator
	aggregate      map[string]any
	inAutoProgress bool
}

// New builds a coordinator at depth zero.
func New(collab Collaborators, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		opts:       opts.normalize(),
		logger:     logger.Named("cycle"),
		store:      collab.Store,
		executor:   collab.Executor,
		rawTeam:    collab.Team,
		now:        time.Now,
		results:    make(map[Phase]PhaseResult),
		phaseStart: make(map[Phase]time.Time),
		perf:       make(map[string]any),
	}
	c.hooks = NewHookRegistry(c.logger)
	if collab.Team != nil {
		c.team = NewTeamProxy(collab.Team, c.logger, c.recordConsensusFailure, c.ID)
	}
	return c
}

// SetInstruments attaches telemetry instruments. Nil disables recording.
func (c *Coordinator) SetInstruments(inst *Instruments) {
	c.inst = inst
}

// ID returns the cycle id, empty before StartCycle.
func (c *Coordinator) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Depth returns the coordinator's recursion depth (0 for the root).
func (c *Coordinator) Depth() int {
	return c.depth
}

// CurrentPhase returns the phase being or last executed, empty before the
// first phase.
func (c *Coordinator) CurrentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// PhaseResultFor returns the recorded result for phase.
func (c *Coordinator) PhaseResultFor(phase Phase) (PhaseResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[phase]
	return r, ok
}

// Children returns the completed micro-cycle coordinators spawned by this
// cycle.
func (c *Coordinator) Children() []*Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Coordinator, len(c.children))
	copy(out, c.children)
	return out
}

// ExecutionHistory returns a copy of the phase start/end log.
func (c *Coordinator) ExecutionHistory() []HistoryEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HistoryEvent, len(c.history))
	copy(out, c.history)
	return out
}

// PerformanceMetrics returns a shallow copy of the collected metrics:
// per-phase timings, neutralized failures, and (after completion) a TOTAL
// entry with recursion metrics.
func (c *Coordinator) PerformanceMetrics() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMap(c.perf)
}

// RegisterMicroCycleHook subscribes fn to micro-cycle lifecycle events.
func (c *Coordinator) RegisterMicroCycleHook(event string, fn MicroCycleHook) {
	c.hooks.RegisterMicroCycleHook(event, fn)
}

// RegisterRecoveryHook subscribes fn to executor failures in phase.
func (c *Coordinator) RegisterRecoveryHook(phase Phase, fn RecoveryHook) {
	c.hooks.RegisterRecoveryHook(phase, fn)
}

// RegisterSyncHook subscribes fn to flushed store items, both locally and on
// the store when one is configured.
func (c *Coordinator) RegisterSyncHook(fn SyncHook) {
	c.hooks.RegisterSyncHook(fn)
	if c.store != nil {
		c.store.RegisterSyncHook(fn)
	}
}

// StartCycle validates task, resets cycle state, and drives the phase
// sequence starting at Expand until the transition engine selects no further
// phase. Results are aggregated and the final report returned.
func (c *Coordinator) StartCycle(ctx context.Context, task TaskRecord) (map[string]any, error) {
	if len(task) == 0 {
		return nil, ErrInvalidTask
	}

	c.mu.Lock()
	c.task = TaskRecord(cloneMap(task))
	if getString(c.task, "id") == "" {
		c.task["id"] = uuid.NewString()
	}
	// Micro-cycles arrive with an id pre-assigned by their parent.
	if c.id == "" {
		c.id = uuid.NewString()
	}
	c.current = ""
	c.override = ""
	c.results = make(map[Phase]PhaseResult)
	c.phaseStart = make(map[Phase]time.Time)
	c.history = nil
	c.children = nil
	c.aggregate = nil
	id := c.id
	storedTask := map[string]any(c.task)
	c.mu.Unlock()

	c.inst.addCycleStarted(ctx)
	c.logger.Info("cycle started",
		zap.String("cycle_id", id),
		zap.Int("depth", c.depth))
	c.safeStore(ctx, storedTask, KindTask, PhaseExpand, map[string]any{"cycle_id": id})

	if _, err := c.ProgressToPhase(ctx, PhaseExpand); err != nil {
		return nil, err
	}

	c.aggregateResults(ctx)
	report := c.buildFinalReport()
	c.safeStore(ctx, report, KindFinalReport, c.CurrentPhase(), map[string]any{"cycle_id": id})
	c.safeFlush(ctx)
	c.inst.addCycleCompleted(ctx)
	c.logger.Info("cycle completed",
		zap.String("cycle_id", id),
		zap.String("final_phase", string(c.CurrentPhase())))
	return report, nil
}

// StartCycleWithManifest runs a cycle whose phase entry is gated by the
// tracker's dependency declarations.
func (c *Coordinator) StartCycleWithManifest(ctx context.Context, task TaskRecord, tracker ManifestTracker) (map[string]any, error) {
	c.mu.Lock()
	c.manifest = tracker
	c.mu.Unlock()
	return c.StartCycle(ctx, task)
}

// ProgressToPhase moves the cycle to phase. Progressing to the current phase
// is idempotent and returns the cached result. Jumping ahead executes the
// skipped intermediate phases in order first. Moving backwards returns the
// cached result when the phase already ran, an error otherwise.
func (c *Coordinator) ProgressToPhase(ctx context.Context, phase Phase) (PhaseResult, error) {
	if phase.Index() < 0 {
		return nil, errUnknown(phase)
	}

	c.mu.Lock()
	if c.task == nil {
		c.mu.Unlock()
		return nil, ErrNoCycleStarted
	}
	if c.current == phase {
		res := c.results[phase]
		c.mu.Unlock()
		return res, nil
	}
	start := 0
	if c.current != "" {
		cur := c.current.Index()
		if phase.Index() < cur {
			if res, ok := c.results[phase]; ok {
				c.mu.Unlock()
				return res, nil
			}
			c.mu.Unlock()
			return nil, fmt.Errorf("cannot progress backwards from %s to %s", c.current, phase)
		}
		start = cur + 1
	}
	c.mu.Unlock()

	var result PhaseResult
	for _, p := range AllPhases()[start : phase.Index()+1] {
		r, err := c.enterPhase(ctx, p)
		if err != nil {
			return nil, err
		}
		result = r
	}
	c.maybeAutoProgress(ctx)
	return result, nil
}

// ProgressToNextPhase advances along the fixed phase order.
func (c *Coordinator) ProgressToNextPhase(ctx context.Context) (PhaseResult, error) {
	c.mu.Lock()
	if c.task == nil || c.current == "" {
		c.mu.Unlock()
		return nil, ErrNoCycleStarted
	}
	next, ok := c.current.Next()
	c.mu.Unlock()
	if !ok {
		return nil, ErrAlreadyAtFinalPhase
	}
	return c.ProgressToPhase(ctx, next)
}

// enterPhase executes exactly one phase: dependency gate, team rotation and
// role assignment, persistence, executor call, bookkeeping.
func (c *Coordinator) enterPhase(ctx context.Context, phase Phase) (PhaseResult, error) {
	c.mu.Lock()
	tracker := c.manifest
	prev := c.current
	task := c.task
	id := c.id
	depth := c.depth
	c.mu.Unlock()

	if tracker != nil {
		if !tracker.CheckDependencies(phase) {
			return nil, fmt.Errorf("%w: %s", ErrUnmetDependencies, phase)
		}
		tracker.StartPhase(phase)
	}

	if c.team != nil {
		if prev != "" {
			if err := c.team.RotatePrimus(); err != nil {
				c.logger.Warn("primus rotation failed",
					zap.String("phase", string(phase)), zap.Error(err))
			}
		}
		c.assignRoles(ctx, phase, task)
		c.safeStore(ctx, stringMapToAny(c.team.RoleMap()), KindRoleAssignment, phase,
			map[string]any{"cycle_id": id})
	}

	c.safeStore(ctx, map[string]any{
		"from": string(prev),
		"to":   string(phase),
	}, KindPhaseTransition, phase, map[string]any{"cycle_id": id})

	started := c.now()
	c.mu.Lock()
	c.current = phase
	c.phaseStart[phase] = started
	c.history = append(c.history, HistoryEvent{
		Timestamp: started,
		Phase:     phase,
		Action:    "start",
	})
	prior := make(map[Phase]PhaseResult, len(c.results))
	for p, r := range c.results {
		prior[p] = r
	}
	c.mu.Unlock()

	c.logger.Debug("entering phase",
		zap.String("cycle_id", id),
		zap.String("phase", string(phase)))

	result := c.executePhase(ctx, phase, PhaseContext{
		CycleID: id,
		Task:    task,
		Depth:   depth,
		Prior:   prior,
	})

	elapsed := c.now().Sub(started)
	c.inst.recordPhaseDuration(ctx, phase, elapsed.Seconds())

	c.mu.Lock()
	// Micro-cycles spawned while the executor ran have already written into
	// this phase's result slot; carry their entries over.
	if existing, ok := c.results[phase]; ok {
		if micro, ok := existing["micro_cycle_results"]; ok && result["micro_cycle_results"] == nil {
			result["micro_cycle_results"] = micro
		}
	}
	c.results[phase] = result
	c.history = append(c.history, HistoryEvent{
		Timestamp: started.Add(elapsed),
		Phase:     phase,
		Action:    "end",
		Details: map[string]any{
			"duration_seconds": elapsed.Seconds(),
			"quality_score":    scoreResult(result),
		},
	})
	c.perf[string(phase)] = map[string]any{
		"duration_seconds": elapsed.Seconds(),
		"result_fields":    len(result),
	}
	c.mu.Unlock()

	c.safeStore(ctx, map[string]any(result), KindPhaseResults, phase, map[string]any{
		"cycle_id":        id,
		"recursion_depth": depth,
	})
	if tracker != nil {
		tracker.CompletePhase(phase, map[string]any(result))
	}
	return result, nil
}

// assignRoles prefers phase-aware role progression when the team supports it.
// Assignment failures are advisory and never abort the phase.
func (c *Coordinator) assignRoles(ctx context.Context, phase Phase, task TaskRecord) {
	var err error
	if c.team.SupportsRoleProgression() {
		err = c.team.ProgressRoles(ctx, phase, c.store)
	} else {
		err = c.team.AssignRoles(phase, task)
	}
	if err != nil {
		c.logger.Warn("role assignment failed",
			zap.String("phase", string(phase)), zap.Error(err))
	}
}

// executePhase runs the executor and converts failures into either a
// hook-supplied substitute result or a degraded error result. A phase never
// aborts the cycle.
func (c *Coordinator) executePhase(ctx context.Context, phase Phase, pc PhaseContext) PhaseResult {
	if c.executor == nil {
		return PhaseResult{"phase": string(phase), "status": "skipped"}
	}

	result, err := c.executor.Execute(ctx, phase, pc)
	if err == nil {
		if result == nil {
			result = PhaseResult{}
		}
		return result
	}

	c.logger.Error("phase execution failed",
		zap.String("cycle_id", pc.CycleID),
		zap.String("phase", string(phase)),
		zap.Error(err))

	actions := c.hooks.InvokeRecoveryHooks(err, phase)
	for _, action := range actions {
		if sub, ok := action["result"].(map[string]any); ok {
			recovered := PhaseResult(cloneMap(sub))
			recovered["recovered"] = true
			return recovered
		}
	}

	degraded := PhaseResult{
		"phase":  string(phase),
		"status": "failed",
		"error":  err.Error(),
	}
	if len(actions) > 0 {
		list := make([]any, 0, len(actions))
		for _, a := range actions {
			list = append(list, a)
		}
		degraded["recovery_actions"] = list
	}
	return degraded
}

// aggregateResults post-processes every executed phase's micro-cycle results
// and computes the cycle-level aggregate: mean phase quality plus recursion
// metrics over the coordinator tree.
func (c *Coordinator) aggregateResults(ctx context.Context) {
	agg := NewAggregator(c.opts.MergeSimilar, c.opts.PrioritizeByQuality, c.opts.HandleConflicts)

	c.mu.Lock()
	var scores []float64
	for _, phase := range AllPhases() {
		result, ok := c.results[phase]
		if !ok {
			continue
		}
		agg.ProcessPhaseResults(result)
		scores = append(scores, scoreResult(result))
	}
	quality := 0.0
	for _, s := range scores {
		quality += s
	}
	if len(scores) > 0 {
		quality /= float64(len(scores))
	}
	c.aggregate = map[string]any{
		"quality_score":   quality,
		"phases_executed": len(scores),
	}
	c.mu.Unlock()

	metrics := c.recursionMetrics()

	c.mu.Lock()
	c.aggregate["recursion_metrics"] = metrics
	c.perf["TOTAL"] = map[string]any{"recursion_metrics": metrics}
	c.mu.Unlock()
}

// aggregateQuality returns the cycle's aggregate quality score, 0 before
// aggregation.
func (c *Coordinator) aggregateQuality() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aggregate == nil {
		return 0
	}
	v, _ := getFloat(c.aggregate, "quality_score")
	return v
}

// GenerateReport aggregates (if needed) and returns the final report for the
// cycle's current state.
func (c *Coordinator) GenerateReport(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	if c.task == nil {
		c.mu.Unlock()
		return nil, ErrNoCycleStarted
	}
	needAggregate := c.aggregate == nil
	c.mu.Unlock()

	if needAggregate {
		c.aggregateResults(ctx)
	}
	return c.buildFinalReport(), nil
}

func (c *Coordinator) recordConsensusFailure(entry map[string]any) {
	c.inst.addConsensusFailure(context.Background())
	c.mu.Lock()
	defer c.mu.Unlock()
	failures, _ := c.perf["consensus_failures"].([]any)
	c.perf["consensus_failures"] = append(failures, entry)
}

func (c *Coordinator) recordStoreFailure(ctx context.Context, op, kind string, err error) {
	c.logger.Warn("store operation failed, continuing",
		zap.String("op", op),
		zap.String("kind", kind),
		zap.Error(err))
	c.inst.addStoreFailure(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	failures, _ := c.perf["store_failures"].([]any)
	c.perf["store_failures"] = append(failures, map[string]any{
		"op":    op,
		"kind":  kind,
		"error": err.Error(),
	})
}

// safeStore persists best-effort: failures are logged and recorded, never
// surfaced.
func (c *Coordinator) safeStore(ctx context.Context, content any, kind string, phase Phase, meta map[string]any) {
	if c.store == nil {
		return
	}
	if _, err := c.store.StoreWithPhase(ctx, content, kind, phase, meta); err != nil {
		c.recordStoreFailure(ctx, "store", kind, err)
	}
}

// safeRetrieve reads best-effort: failures yield an empty map.
func (c *Coordinator) safeRetrieve(ctx context.Context, kind string, phase Phase, meta map[string]any) map[string]any {
	if c.store == nil {
		return map[string]any{}
	}
	out, err := c.store.RetrieveWithPhase(ctx, kind, phase, meta)
	if err != nil {
		c.recordStoreFailure(ctx, "retrieve", kind, err)
		return map[string]any{}
	}
	if out == nil {
		return map[string]any{}
	}
	return out
}

// StoredArtifacts returns this cycle's persisted records of the given kind
// and phase. Store outages yield an empty map, matching the coordinator's
// fault-tolerant read policy.
func (c *Coordinator) StoredArtifacts(ctx context.Context, kind string, phase Phase) map[string]any {
	return c.safeRetrieve(ctx, kind, phase, map[string]any{"cycle_id": c.ID()})
}

func (c *Coordinator) safeFlush(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.FlushUpdates(ctx); err != nil {
		c.recordStoreFailure(ctx, "flush", "", err)
	}
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
