package services

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/combos"
	"github.com/jakechorley/clinic-planner/pkg/core/modelbuilder"
	"github.com/jakechorley/clinic-planner/pkg/core/scoring"
	"github.com/jakechorley/clinic-planner/pkg/core/solver"
	"github.com/jakechorley/clinic-planner/pkg/db"
	"github.com/jakechorley/clinic-planner/pkg/utils/telemetry"
)

// Outcome of a target date
type Outcome string

const (
	OutcomeOptimal     Outcome = "optimal"
	OutcomeFeasible    Outcome = "feasible" // node limit reached, best assignment written
	OutcomeInfeasible  Outcome = "infeasible"
	OutcomeSolverError Outcome = "solver_error"
	OutcomeFailed      Outcome = "failed" // lock, load or write failure
)

const maxConcurrentWeeks = 4

// DateReport is the result of optimizing one date
type DateReport struct {
	Date               string
	Outcome            Outcome
	Feasible           bool
	Objective          float64
	AssignmentsWritten int
	Error              string
}

// OptimizeResult holds one report per target date in calendar order
type OptimizeResult struct {
	Mode    string
	Reports []DateReport
}

// WeekLocker prevents two runs from optimizing the same week at once
type WeekLocker interface {
	Acquire(ctx context.Context, week string) (release func(context.Context) error, err error)
}

// ChangeNotifier announces slot updates written by a run
type ChangeNotifier interface {
	SlotsUpdated(ctx context.Context, week string, dates []string, updates int) error
}

// Optimize assigns staff for the given dates and writes the assignments back.
// Dates are grouped by week and weeks are optimized in parallel. A date whose model
// is infeasible or whose solve fails is reported without aborting the other dates.
// locker and notifier may be nil.
func Optimize(
	ctx context.Context,
	store db.Database,
	locker WeekLocker,
	notifier ChangeNotifier,
	cfg *config.Config,
	logger *zap.Logger,
	dates []string,
) (*OptimizeResult, error) {
	logger.Debug("Starting optimize", zap.Strings("dates", dates), zap.String("mode", cfg.Mode))

	if len(dates) == 0 {
		return nil, fmt.Errorf("no dates to optimize")
	}

	// Step 1: Group target dates by week
	weeks, err := candidates.GroupByWeek(dates)
	if err != nil {
		return nil, fmt.Errorf("failed to group dates by week: %w", err)
	}

	p, err := newPipeline(store, cfg, false, logger)
	if err != nil {
		return nil, err
	}

	// Step 2: Optimize each week independently
	weekReports := make([][]DateReport, len(weeks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWeeks)
	for i, week := range weeks {
		g.Go(func() error {
			weekReports[i] = p.optimizeWeek(gctx, store, locker, notifier, week)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("optimization interrupted: %w", err)
	}

	// Step 3: Flatten reports in calendar order
	result := &OptimizeResult{Mode: cfg.Mode}
	for _, reports := range weekReports {
		result.Reports = append(result.Reports, reports...)
	}
	sort.SliceStable(result.Reports, func(i, j int) bool {
		return result.Reports[i].Date < result.Reports[j].Date
	})

	logger.Info("Optimize finished",
		zap.Int("weeks", len(weeks)),
		zap.Int("dates", len(result.Reports)))

	return result, nil
}

func (p *pipeline) optimizeWeek(ctx context.Context, writer db.SlotWriter, locker WeekLocker, notifier ChangeNotifier, week candidates.Week) []DateReport {
	ctx, span := telemetry.StartSpan(ctx, "planner.optimize_week", attribute.String("week", week.Key()))
	defer span.End()

	logger := p.logger.With(zap.String("week", week.Key()))

	// Step 1: Take the week lock
	if locker != nil {
		release, err := locker.Acquire(ctx, week.Key())
		if err != nil {
			telemetry.RecordError(span, err)
			return failedReports(week, fmt.Errorf("failed to lock week %s: %w", week.Key(), err))
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Failed to release week lock", zap.Error(err))
			}
		}()
	}

	// Step 2: Load the week
	snap, err := p.loader.Load(ctx, week)
	if err != nil {
		telemetry.RecordError(span, err)
		return failedReports(week, fmt.Errorf("failed to load week %s: %w", week.Key(), err))
	}

	// Step 3: Enumerate combos of every target date
	all := p.generator.Generate(snap)
	state := p.initialState(snap)

	// Step 4: Build, solve and write back
	var reports []DateReport
	if p.cfg.Mode == config.ModeWeekly {
		reports = p.optimizeWholeWeek(ctx, writer, snap, all, state)
	} else {
		reports = p.optimizeDays(ctx, writer, snap, all, state)
	}

	// Step 5: Announce written assignments
	written := 0
	for _, r := range reports {
		written += r.AssignmentsWritten
	}
	if written > 0 {
		p.metrics.AssignmentsWritten.Add(ctx, int64(written), p.modeAttribute())
		if notifier != nil {
			if err := notifier.SlotsUpdated(ctx, week.Key(), week.Targets, written); err != nil {
				logger.Warn("Failed to publish slot update notification", zap.Error(err))
			}
		}
	}

	return reports
}

// optimizeDays solves one model per target date in calendar order. The fairness
// state advances with each date's assignments before the next date is scored.
func (p *pipeline) optimizeDays(ctx context.Context, writer db.SlotWriter, snap *candidates.Snapshot, all []combos.Combo, state scoring.FairnessState) []DateReport {
	var reports []DateReport
	for _, date := range snap.Week.Targets {
		build, err := p.build(snap, []string{date}, all, state)
		if err != nil {
			reports = append(reports, DateReport{Date: date, Outcome: OutcomeFailed, Error: err.Error()})
			continue
		}

		dateReports, updates := p.solveAndWrite(ctx, writer, snap, build, []string{date})
		reports = append(reports, dateReports...)

		state = state.WithSlots(slotsAfter(snap, date, updates))
	}
	return reports
}

// optimizeWholeWeek solves a single model covering every target date of the week
func (p *pipeline) optimizeWholeWeek(ctx context.Context, writer db.SlotWriter, snap *candidates.Snapshot, all []combos.Combo, state scoring.FairnessState) []DateReport {
	build, err := p.build(snap, snap.Week.Targets, all, state)
	if err != nil {
		return failedReports(snap.Week, err)
	}

	reports, _ := p.solveAndWrite(ctx, writer, snap, build, snap.Week.Targets)
	return reports
}

// solveAndWrite solves the model and writes the assignments of each date. The
// updates written are returned so the caller can advance fairness.
func (p *pipeline) solveAndWrite(ctx context.Context, writer db.SlotWriter, snap *candidates.Snapshot, build *modelbuilder.Build, dates []string) ([]DateReport, []db.SlotUpdate) {
	scope := snap.Week.Key()
	if len(dates) == 1 {
		scope = dates[0]
	}

	result, err := p.solve(ctx, build, scope)
	if err != nil {
		p.logger.Error("Solver failed", zap.String("scope", scope), zap.Error(err))
		return reportsFor(dates, DateReport{Outcome: OutcomeSolverError, Error: err.Error()}), nil
	}

	if result.Status == solver.StatusInfeasible {
		p.logger.Warn("Model infeasible, schedule left unchanged",
			zap.String("scope", scope),
			zap.String("reason", result.Reason))
		return reportsFor(dates, DateReport{Outcome: OutcomeInfeasible, Error: result.Reason}), nil
	}

	outcome := OutcomeOptimal
	if result.Status == solver.StatusFeasible {
		outcome = OutcomeFeasible
	}

	solution := p.reconciler.Decode(build, result)
	updates := p.reconciler.SlotUpdates(snap, solution)
	byDate := updatesByDate(snap, updates)

	reports := make([]DateReport, 0, len(dates))
	var written []db.SlotUpdate
	for _, date := range dates {
		report := DateReport{Date: date, Outcome: outcome, Feasible: true, Objective: result.Objective}

		count, err := writer.ApplySlotUpdates(ctx, byDate[date])
		if err != nil {
			report.Outcome = OutcomeFailed
			report.Error = fmt.Sprintf("failed to apply slot updates: %v", err)
			p.logger.Error("Failed to apply slot updates", zap.String("date", date), zap.Error(err))
		} else {
			report.AssignmentsWritten = count
			written = append(written, byDate[date]...)
		}

		p.logger.Info("Date optimized",
			zap.String("date", date),
			zap.String("outcome", string(report.Outcome)),
			zap.Int("assignments_written", report.AssignmentsWritten))
		reports = append(reports, report)
	}

	return reports, written
}

func reportsFor(dates []string, template DateReport) []DateReport {
	reports := make([]DateReport, len(dates))
	for i, date := range dates {
		reports[i] = template
		reports[i].Date = date
	}
	return reports
}

func failedReports(week candidates.Week, err error) []DateReport {
	return reportsFor(week.Targets, DateReport{Outcome: OutcomeFailed, Error: err.Error()})
}
