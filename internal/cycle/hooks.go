package cycle

import (
	"sync"

	"go.uber.org/zap"
)

// MicroCycleHook observes micro-cycle lifecycle events. The return value is
// collected by InvokeMicroCycleHooks in registration order.
type MicroCycleHook func(event string, data map[string]any) any

// SyncHook observes items flushed to the store. Hooks run isolated: a panic
// in one hook never blocks the others.
type SyncHook func(item any)

// RecoveryHook is consulted when a phase executor fails. A hook may return a
// candidate recovery action; an action carrying a "result" map substitutes
// for the failed phase's result.
type RecoveryHook func(err error, phase Phase) map[string]any

// HookRegistry holds the typed hook registrations for one coordinator tree.
type HookRegistry struct {
	mu        sync.Mutex
	logger    *zap.Logger
	micro     map[string][]MicroCycleHook
	syncHooks []SyncHook
	recovery  map[Phase][]RecoveryHook
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry(logger *zap.Logger) *HookRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookRegistry{
		logger:   logger,
		micro:    make(map[string][]MicroCycleHook),
		recovery: make(map[Phase][]RecoveryHook),
	}
}

// RegisterMicroCycleHook subscribes fn to the named micro-cycle event.
func (r *HookRegistry) RegisterMicroCycleHook(event string, fn MicroCycleHook) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.micro[event] = append(r.micro[event], fn)
}

// InvokeMicroCycleHooks runs the hooks for event in registration order and
// returns their results.
func (r *HookRegistry) InvokeMicroCycleHooks(event string, data map[string]any) []any {
	r.mu.Lock()
	hooks := make([]MicroCycleHook, len(r.micro[event]))
	copy(hooks, r.micro[event])
	r.mu.Unlock()

	results := make([]any, 0, len(hooks))
	for _, fn := range hooks {
		results = append(results, fn(event, data))
	}
	return results
}

// RegisterSyncHook subscribes fn to flushed store items.
func (r *HookRegistry) RegisterSyncHook(fn SyncHook) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncHooks = append(r.syncHooks, fn)
}

// InvokeSyncHooks delivers item to every sync hook, recovering panics per
// hook so one failure never blocks the rest.
func (r *HookRegistry) InvokeSyncHooks(item any) {
	r.mu.Lock()
	hooks := make([]SyncHook, len(r.syncHooks))
	copy(hooks, r.syncHooks)
	r.mu.Unlock()

	for _, fn := range hooks {
		r.runSyncHook(fn, item)
	}
}

func (r *HookRegistry) runSyncHook(fn SyncHook, item any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("sync hook panicked", zap.Any("panic", rec))
		}
	}()
	fn(item)
}

// RegisterRecoveryHook subscribes fn to executor failures in phase.
func (r *HookRegistry) RegisterRecoveryHook(phase Phase, fn RecoveryHook) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovery[phase] = append(r.recovery[phase], fn)
}

// InvokeRecoveryHooks collects candidate recovery actions for a failed phase.
// A panicking hook is logged and skipped.
func (r *HookRegistry) InvokeRecoveryHooks(err error, phase Phase) []map[string]any {
	r.mu.Lock()
	hooks := make([]RecoveryHook, len(r.recovery[phase]))
	copy(hooks, r.recovery[phase])
	r.mu.Unlock()

	actions := make([]map[string]any, 0, len(hooks))
	for _, fn := range hooks {
		if action := r.runRecoveryHook(fn, err, phase); action != nil {
			actions = append(actions, action)
		}
	}
	return actions
}

func (r *HookRegistry) runRecoveryHook(fn RecoveryHook, err error, phase Phase) (action map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("recovery hook panicked",
				zap.String("phase", string(phase)),
				zap.Any("panic", rec))
			action = nil
		}
	}()
	return fn(err, phase)
}
