package cycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// TeamProxy wraps a Team and isolates consensus failures: they are logged,
// recorded via the supplied callback, and neutralized so the cycle continues.
// All other errors propagate unchanged.
type TeamProxy struct {
	inner  Team
	logger *zap.Logger

	// record receives one structured entry per neutralized failure.
	record func(entry map[string]any)

	// cycleID resolves the owning cycle's id at call time.
	cycleID func() string
}

// NewTeamProxy wraps inner. record and cycleID may be nil.
func NewTeamProxy(inner Team, logger *zap.Logger, record func(map[string]any), cycleID func() string) *TeamProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if record == nil {
		record = func(map[string]any) {}
	}
	if cycleID == nil {
		cycleID = func() string { return "" }
	}
	return &TeamProxy{inner: inner, logger: logger, record: record, cycleID: cycleID}
}

func (p *TeamProxy) RotatePrimus() error {
	return p.guard("rotate_primus", p.inner.RotatePrimus)
}

func (p *TeamProxy) AssignRoles(phase Phase, task TaskRecord) error {
	return p.guard("assign_roles", func() error {
		return p.inner.AssignRoles(phase, task)
	})
}

func (p *TeamProxy) RoleMap() map[string]string {
	return p.inner.RoleMap()
}

// SupportsRoleProgression reports whether the wrapped team implements the
// richer RoleProgressor interface.
func (p *TeamProxy) SupportsRoleProgression() bool {
	_, ok := p.inner.(RoleProgressor)
	return ok
}

// ProgressRoles delegates to the inner team's phase-aware progression. It is
// a no-op when the team does not implement RoleProgressor; callers check
// SupportsRoleProgression first.
func (p *TeamProxy) ProgressRoles(ctx context.Context, phase Phase, store Store) error {
	rp, ok := p.inner.(RoleProgressor)
	if !ok {
		return nil
	}
	return p.guard("progress_roles", func() error {
		return rp.ProgressRoles(ctx, phase, store)
	})
}

func (p *TeamProxy) guard(method string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrConsensusFailure) {
		return err
	}
	p.logger.Warn("consensus failure neutralized",
		zap.String("method", method),
		zap.String("cycle_id", p.cycleID()),
		zap.Error(err))
	p.record(map[string]any{
		"type":      "consensus_failure",
		"method":    method,
		"cycle_id":  p.cycleID(),
		"error":     err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}
