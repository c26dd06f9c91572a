package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/combos"
	"github.com/jakechorley/clinic-planner/pkg/core/demand"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/modelbuilder"
	"github.com/jakechorley/clinic-planner/pkg/core/reconcile"
	"github.com/jakechorley/clinic-planner/pkg/core/scoring"
	"github.com/jakechorley/clinic-planner/pkg/core/solver"
	"github.com/jakechorley/clinic-planner/pkg/db"
	"github.com/jakechorley/clinic-planner/pkg/utils/telemetry"
)

// pipeline wires the stages shared by Optimize and Preview
type pipeline struct {
	cfg        *config.Config
	loader     *candidates.Loader
	generator  *combos.Generator
	scorer     *scoring.Scorer
	builder    *modelbuilder.Builder
	solver     solver.Solver
	reconciler *reconcile.Reconciler
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

func newPipeline(store db.PlannerReader, cfg *config.Config, preview bool, logger *zap.Logger) (*pipeline, error) {
	if cfg.Mode != config.ModeDaily && cfg.Mode != config.ModeWeekly {
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	schedule, err := modelbuilder.NewClosingSchedule(cfg.Closing.Sites)
	if err != nil {
		return nil, fmt.Errorf("failed to build closing schedule: %w", err)
	}

	metrics, err := telemetry.Instruments()
	if err != nil {
		return nil, fmt.Errorf("failed to create metric instruments: %w", err)
	}

	calculator := demand.NewCalculator(cfg.Demand.DefaultCoefficient, cfg.Demand.SurgicalBlockNames, logger)
	builder := modelbuilder.NewBuilder(cfg, schedule, logger)
	if preview {
		builder = builder.ForPreview()
	}

	return &pipeline{
		cfg:        cfg,
		loader:     candidates.NewLoader(store, calculator, logger),
		generator:  combos.NewGenerator(combos.NewExclusionRules(cfg.Exclusions), logger),
		scorer:     scoring.NewScorer(cfg.Scoring, cfg.Mode, preview),
		builder:    builder,
		solver:     solver.NewBranchAndBound(solverOptions(cfg.Solver), logger),
		reconciler: reconcile.NewReconciler(logger),
		metrics:    metrics,
		logger:     logger,
	}, nil
}

func solverOptions(cfg config.SolverConfig) solver.Options {
	return solver.Options{
		MaxNodes:               cfg.MaxNodes,
		UseRelaxation:          cfg.UseRelaxation,
		MaxRelaxationVariables: cfg.MaxRelaxationVariables,
	}
}

// initialState seeds fairness with the week's non-target days and the escalation
// factors derived from the previous week
func (p *pipeline) initialState(snap *candidates.Snapshot) scoring.FairnessState {
	return scoring.NewFairnessState().
		WithSlots(snap.WeekSlots).
		WithEscalation(snap.PreviousWeekSlots, snap.LocationPreferences, p.cfg.Scoring.Overload)
}

// build emits the model of the given target dates: one date in daily mode, the whole
// week in weekly mode
func (p *pipeline) build(snap *candidates.Snapshot, dates []string, all []combos.Combo, state scoring.FairnessState) (*modelbuilder.Build, error) {
	if p.cfg.Mode == config.ModeWeekly {
		scored := p.scorer.ScoreAll(snap, all, state)
		return p.builder.BuildWeek(snap, scored, state)
	}

	date := dates[0]
	scored := p.scorer.ScoreAll(snap, combosOn(all, date), state)
	return p.builder.BuildDay(snap, date, scored, state)
}

// solve runs the solver and records its duration and outcome
func (p *pipeline) solve(ctx context.Context, build *modelbuilder.Build, scope string) (*solver.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "planner.solve",
		attribute.String("scope", scope),
		attribute.Int("variables", len(build.Model.Vars)),
		attribute.Int("constraints", len(build.Model.Constraints)))
	defer span.End()

	start := time.Now()
	result, err := p.solver.Solve(ctx, build.Model)
	p.metrics.SolveDuration.Record(ctx, float64(time.Since(start).Milliseconds()), p.modeAttribute())

	if err != nil {
		telemetry.RecordError(span, err)
		p.metrics.SolverErrors.Add(ctx, 1, p.modeAttribute())
		return nil, err
	}

	span.SetAttributes(attribute.String("status", result.Status.String()))
	if result.Status == solver.StatusInfeasible {
		p.metrics.InfeasibleOutcomes.Add(ctx, 1, p.modeAttribute())
	}

	p.logger.Info("Solved model",
		zap.String("scope", scope),
		zap.String("status", result.Status.String()),
		zap.Float64("objective", result.Objective),
		zap.Int("nodes", result.Nodes),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *pipeline) modeAttribute() metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("mode", p.cfg.Mode))
}

func combosOn(all []combos.Combo, date string) []combos.Combo {
	var selected []combos.Combo
	for _, c := range all {
		if c.Key.Date == date {
			selected = append(selected, c)
		}
	}
	return selected
}

// slotsAfter returns the stored slots of a date with the updates applied
func slotsAfter(snap *candidates.Snapshot, date string, updates []db.SlotUpdate) []model.Slot {
	byID := make(map[string]db.SlotUpdate, len(updates))
	for _, u := range updates {
		byID[u.SlotID] = u
	}

	var slots []model.Slot
	for _, slot := range snap.TargetSlots() {
		if slot.Date != date {
			continue
		}
		if u, ok := byID[slot.ID]; ok {
			slot = u.Apply(slot)
		}
		slots = append(slots, slot)
	}
	return slots
}

// updatesByDate splits updates by the date of the slot they target
func updatesByDate(snap *candidates.Snapshot, updates []db.SlotUpdate) map[string][]db.SlotUpdate {
	dates := make(map[string]string)
	for _, slot := range snap.TargetSlots() {
		dates[slot.ID] = slot.Date
	}

	byDate := make(map[string][]db.SlotUpdate)
	for _, u := range updates {
		byDate[dates[u.SlotID]] = append(byDate[dates[u.SlotID]], u)
	}
	return byDate
}
