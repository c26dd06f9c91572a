package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/reconcile"
	"github.com/jakechorley/clinic-planner/pkg/core/solver"
	"github.com/jakechorley/clinic-planner/pkg/db"
	"github.com/jakechorley/clinic-planner/pkg/utils/telemetry"
)

// PreviewResult is the dry-run proposal of a date
type PreviewResult struct {
	Date       string
	Outcome    Outcome
	Feasible   bool
	Objective  float64
	Comparison reconcile.Comparison
	Error      string

	// Drafts are the proposed slot changes staged by this run; empty when the
	// proposal matches the current schedule or the drafts already staged
	Drafts []db.DraftSlot
	// AlreadyStaged counts the drafts left in place because they match the proposal
	AlreadyStaged int
}

// Preview re-optimizes a single date without touching the schedule. Halves that keep
// their current assignment earn a retention bonus. When the proposal differs from the
// current schedule the date's drafts are replaced by the proposed changes; drafts
// identical to the proposal are left in place and stale drafts are cleared.
func Preview(ctx context.Context, store db.Database, cfg *config.Config, logger *zap.Logger, date string) (*PreviewResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "planner.preview", attribute.String("date", date))
	defer span.End()

	logger.Debug("Starting preview", zap.String("date", date), zap.String("mode", cfg.Mode))

	weeks, err := candidates.GroupByWeek([]string{date})
	if err != nil {
		return nil, fmt.Errorf("failed to parse date: %w", err)
	}
	week := weeks[0]

	p, err := newPipeline(store, cfg, true, logger)
	if err != nil {
		return nil, err
	}

	// Step 1: Load the week with the date as the only target
	snap, err := p.loader.Load(ctx, week)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load week %s: %w", week.Key(), err)
	}

	// Step 2: Generate, score and build
	state := p.initialState(snap)
	build, err := p.build(snap, week.Targets, p.generator.Generate(snap), state)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}

	// Step 3: Solve
	result, err := p.solve(ctx, build, date)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Error("Solver failed", zap.String("date", date), zap.Error(err))
		return &PreviewResult{
			Date:       date,
			Outcome:    OutcomeSolverError,
			Error:      err.Error(),
			Comparison: reconcile.Compare(snap, date, reconcile.Current(snap, date)),
		}, nil
	}

	if result.Status == solver.StatusInfeasible {
		logger.Warn("Preview model infeasible", zap.String("date", date), zap.String("reason", result.Reason))
		return &PreviewResult{
			Date:       date,
			Outcome:    OutcomeInfeasible,
			Comparison: reconcile.Compare(snap, date, reconcile.Current(snap, date)),
		}, nil
	}

	// Step 4: Compare the proposal with the current schedule
	solution := p.reconciler.Decode(build, result)
	changes := reconcile.Changes(snap, p.reconciler.SlotUpdates(snap, solution))

	preview := &PreviewResult{
		Date:       date,
		Outcome:    OutcomeOptimal,
		Feasible:   true,
		Objective:  result.Objective,
		Comparison: reconcile.Compare(snap, date, solution),
	}
	if result.Status == solver.StatusFeasible {
		preview.Outcome = OutcomeFeasible
	}

	// Step 5: Stage the changes as drafts unless the same drafts are already staged
	existing, err := store.GetDrafts(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get drafts: %w", err)
	}

	if len(changes) == 0 {
		if len(existing) > 0 {
			if err := store.ReplaceDrafts(ctx, []string{date}, nil); err != nil {
				return nil, fmt.Errorf("failed to clear drafts: %w", err)
			}
			logger.Info("Cleared stale drafts", zap.String("date", date), zap.Int("drafts", len(existing)))
		}
		logger.Info("Preview matches the current schedule", zap.String("date", date))
		return preview, nil
	}

	drafts := reconcile.Drafts(snap, changes, time.Now().UTC())
	if sameDrafts(existing, drafts) {
		preview.AlreadyStaged = len(existing)
		logger.Info("Preview drafts already staged", zap.String("date", date), zap.Int("drafts", len(existing)))
		return preview, nil
	}

	if err := store.ReplaceDrafts(ctx, []string{date}, drafts); err != nil {
		return nil, fmt.Errorf("failed to replace drafts: %w", err)
	}
	preview.Drafts = drafts

	logger.Info("Preview drafts staged",
		zap.String("date", date),
		zap.Int("drafts", len(preview.Drafts)),
		zap.Int("improvement", preview.Comparison.Improvement))

	return preview, nil
}

// sameDrafts reports whether two draft sets propose the same slot changes,
// ignoring draft ids and creation times
func sameDrafts(a, b []db.DraftSlot) bool {
	if len(a) != len(b) {
		return false
	}

	key := func(d db.DraftSlot) db.DraftSlot {
		d.ID = ""
		d.CreatedAt = time.Time{}
		return d
	}
	sorted := func(drafts []db.DraftSlot) []db.DraftSlot {
		out := make([]db.DraftSlot, len(drafts))
		for i, d := range drafts {
			out[i] = key(d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
		return out
	}

	left, right := sorted(a), sorted(b)
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}
