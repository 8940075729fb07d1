package cycle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments holds the OpenTelemetry instruments for the orchestrator. A
// nil *Instruments is valid and records nothing, so telemetry stays optional.
type Instruments struct {
	cyclesStarted     metric.Int64Counter
	cyclesCompleted   metric.Int64Counter
	microSpawned      metric.Int64Counter
	microRefused      metric.Int64Counter
	consensusFailures metric.Int64Counter
	storeFailures     metric.Int64Counter
	phaseDuration     metric.Float64Histogram
}

// NewInstruments creates the orchestrator's instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		i   Instruments
		err error
	)

	if i.cyclesStarted, err = meter.Int64Counter("cycled.cycles.started",
		metric.WithDescription("Cycles started, including micro-cycles")); err != nil {
		return nil, fmt.Errorf("create cycles.started: %w", err)
	}
	if i.cyclesCompleted, err = meter.Int64Counter("cycled.cycles.completed",
		metric.WithDescription("Cycles run to completion")); err != nil {
		return nil, fmt.Errorf("create cycles.completed: %w", err)
	}
	if i.microSpawned, err = meter.Int64Counter("cycled.micro_cycles.spawned",
		metric.WithDescription("Micro-cycles created")); err != nil {
		return nil, fmt.Errorf("create micro_cycles.spawned: %w", err)
	}
	if i.microRefused, err = meter.Int64Counter("cycled.micro_cycles.refused",
		metric.WithDescription("Micro-cycle creations refused by depth limit or heuristics")); err != nil {
		return nil, fmt.Errorf("create micro_cycles.refused: %w", err)
	}
	if i.consensusFailures, err = meter.Int64Counter("cycled.team.consensus_failures",
		metric.WithDescription("Team consensus failures neutralized by the proxy")); err != nil {
		return nil, fmt.Errorf("create team.consensus_failures: %w", err)
	}
	if i.storeFailures, err = meter.Int64Counter("cycled.store.failures",
		metric.WithDescription("Store operations that failed and were tolerated")); err != nil {
		return nil, fmt.Errorf("create store.failures: %w", err)
	}
	if i.phaseDuration, err = meter.Float64Histogram("cycled.phase.duration",
		metric.WithDescription("Phase execution duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create phase.duration: %w", err)
	}

	return &i, nil
}

func (i *Instruments) addCycleStarted(ctx context.Context) {
	if i == nil || i.cyclesStarted == nil {
		return
	}
	i.cyclesStarted.Add(ctx, 1)
}

func (i *Instruments) addCycleCompleted(ctx context.Context) {
	if i == nil || i.cyclesCompleted == nil {
		return
	}
	i.cyclesCompleted.Add(ctx, 1)
}

func (i *Instruments) addMicroCycleSpawned(ctx context.Context) {
	if i == nil || i.microSpawned == nil {
		return
	}
	i.microSpawned.Add(ctx, 1)
}

func (i *Instruments) addMicroCycleRefused(ctx context.Context) {
	if i == nil || i.microRefused == nil {
		return
	}
	i.microRefused.Add(ctx, 1)
}

func (i *Instruments) addConsensusFailure(ctx context.Context) {
	if i == nil || i.consensusFailures == nil {
		return
	}
	i.consensusFailures.Add(ctx, 1)
}

func (i *Instruments) addStoreFailure(ctx context.Context) {
	if i == nil || i.storeFailures == nil {
		return
	}
	i.storeFailures.Add(ctx, 1)
}

func (i *Instruments) recordPhaseDuration(ctx context.Context, phase Phase, seconds float64) {
	if i == nil || i.phaseDuration == nil {
		return
	}
	i.phaseDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("phase", string(phase))))
}
