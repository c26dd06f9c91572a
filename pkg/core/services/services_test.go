package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/db"
	"github.com/jakechorley/clinic-planner/pkg/db/dbtest"
)

const (
	tuesday   = "2025-01-07"
	wednesday = "2025-01-08"
	nextWeek  = "2025-01-14"
)

func coefficient(v float64) *float64 {
	return &v
}

// seedStore: three staff available on both halves of each date, all preferring
// site-a, which needs two people in the morning and one in the afternoon
func seedStore(dates ...string) *dbtest.MemStore {
	store := &dbtest.MemStore{
		Staff: []model.Staff{
			{ID: "s1", FirstName: "Ada", LastName: "Martin", Active: true},
			{ID: "s2", FirstName: "Bea", LastName: "Roux", Active: true},
			{ID: "s3", FirstName: "Cal", LastName: "Diaz", Active: true},
		},
		Doctors: []model.Doctor{
			{ID: "d1", Active: true},
			{ID: "d2", Active: true},
		},
		Locations: []model.Location{
			{ID: "site-a", Name: "Site A", Active: true},
		},
	}

	for _, staff := range store.Staff {
		store.LocationPreferences = append(store.LocationPreferences,
			model.LocationPreference{StaffID: staff.ID, LocationID: "site-a", Rank: 1})
	}

	for _, date := range dates {
		store.LocationDemand = append(store.LocationDemand,
			model.LocationDemand{LocationID: "site-a", DoctorID: "d1", Date: date, Period: model.PeriodMorning, Coefficient: coefficient(1)},
			model.LocationDemand{LocationID: "site-a", DoctorID: "d2", Date: date, Period: model.PeriodMorning, Coefficient: coefficient(1)},
			model.LocationDemand{LocationID: "site-a", DoctorID: "d1", Date: date, Period: model.PeriodAfternoon, Coefficient: coefficient(1)},
		)
		for _, staff := range store.Staff {
			for _, period := range model.Periods {
				store.Slots = append(store.Slots, model.Slot{
					ID:      staff.ID + "-" + date + "-" + string(period),
					StaffID: staff.ID,
					Date:    date,
					Period:  period,
				})
			}
		}
	}
	return store
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Solver.MaxNodes = 200_000
	return cfg
}

func assignedAt(slots []model.Slot, locationID string, period model.Period) int {
	count := 0
	for _, s := range slots {
		if s.LocationID == locationID && s.Period == period {
			count++
		}
	}
	return count
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   map[string]bool
	acquired []string
	released []string
}

func (l *fakeLocker) Acquire(ctx context.Context, week string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[week] {
		return nil, errors.New("week is locked")
	}
	l.acquired = append(l.acquired, week)
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, week)
		return nil
	}, nil
}

type notification struct {
	week    string
	dates   []string
	updates int
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []notification
	fails bool
}

func (n *fakeNotifier) SlotsUpdated(ctx context.Context, week string, dates []string, updates int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails {
		return errors.New("publish failed")
	}
	n.sent = append(n.sent, notification{week: week, dates: dates, updates: updates})
	return nil
}

func TestOptimize_WritesAssignments(t *testing.T) {
	store := seedStore(tuesday)
	locker := &fakeLocker{}
	notifier := &fakeNotifier{}

	result, err := Optimize(context.Background(), store, locker, notifier, testConfig(), zap.NewNop(), []string{tuesday})
	require.NoError(t, err)

	require.Len(t, result.Reports, 1)
	report := result.Reports[0]
	assert.Equal(t, tuesday, report.Date)
	assert.Equal(t, OutcomeOptimal, report.Outcome)
	assert.True(t, report.Feasible)
	assert.Greater(t, report.Objective, 0.0)
	assert.Equal(t, 6, report.AssignmentsWritten)
	assert.Empty(t, report.Error)

	slots := store.SlotsOn(tuesday)
	assert.Equal(t, 2, assignedAt(slots, "site-a", model.PeriodMorning))
	assert.Equal(t, 1, assignedAt(slots, "site-a", model.PeriodAfternoon))

	assert.Equal(t, []string{"2025-01-06"}, locker.acquired)
	assert.Equal(t, []string{"2025-01-06"}, locker.released)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notification{week: "2025-01-06", dates: []string{tuesday}, updates: 6}, notifier.sent[0])
}

func TestOptimize_WeeksInParallel(t *testing.T) {
	store := seedStore(tuesday, wednesday, nextWeek)

	result, err := Optimize(context.Background(), store, nil, nil, testConfig(), zap.NewNop(), []string{nextWeek, wednesday, tuesday})
	require.NoError(t, err)

	require.Len(t, result.Reports, 3)
	assert.Equal(t, tuesday, result.Reports[0].Date)
	assert.Equal(t, wednesday, result.Reports[1].Date)
	assert.Equal(t, nextWeek, result.Reports[2].Date)
	for _, r := range result.Reports {
		assert.Equal(t, OutcomeOptimal, r.Outcome, r.Date)
		assert.Equal(t, 2, assignedAt(store.SlotsOn(r.Date), "site-a", model.PeriodMorning), r.Date)
	}
}

func TestOptimize_WeeklyMode(t *testing.T) {
	store := seedStore(tuesday, wednesday)
	cfg := testConfig()
	cfg.Mode = config.ModeWeekly

	result, err := Optimize(context.Background(), store, nil, nil, cfg, zap.NewNop(), []string{tuesday, wednesday})
	require.NoError(t, err)

	assert.Equal(t, config.ModeWeekly, result.Mode)
	require.Len(t, result.Reports, 2)
	assert.Equal(t, result.Reports[0].Objective, result.Reports[1].Objective)
	for _, r := range result.Reports {
		assert.Equal(t, OutcomeOptimal, r.Outcome)
		assert.Equal(t, 6, r.AssignmentsWritten)
		assert.Equal(t, 1, assignedAt(store.SlotsOn(r.Date), "site-a", model.PeriodAfternoon))
	}
}

func TestOptimize_InfeasibleLeavesScheduleUnchanged(t *testing.T) {
	store := seedStore(tuesday)
	// Only s1 may work at site-a, yet closing coverage needs two people all day
	store.LocationPreferences = store.LocationPreferences[:1]
	store.LocationDemand = append(store.LocationDemand,
		model.LocationDemand{LocationID: "site-a", DoctorID: "d2", Date: tuesday, Period: model.PeriodAfternoon, Coefficient: coefficient(1)})

	cfg := testConfig()
	cfg.Closing.Sites = []config.ClosingSite{{LocationID: "site-a", RRule: "FREQ=DAILY"}}
	notifier := &fakeNotifier{}

	result, err := Optimize(context.Background(), store, nil, notifier, cfg, zap.NewNop(), []string{tuesday})
	require.NoError(t, err)

	report := result.Reports[0]
	assert.Equal(t, OutcomeInfeasible, report.Outcome)
	assert.False(t, report.Feasible)
	assert.Zero(t, report.AssignmentsWritten)
	assert.Empty(t, store.AppliedBatches)
	assert.Empty(t, notifier.sent)
	assert.Zero(t, assignedAt(store.SlotsOn(tuesday), "site-a", model.PeriodMorning))
}

func TestOptimize_SolverErrorIsReportedPerDate(t *testing.T) {
	store := seedStore(tuesday)
	cfg := testConfig()
	cfg.Solver.MaxNodes = 1
	cfg.Solver.UseRelaxation = false

	result, err := Optimize(context.Background(), store, nil, nil, cfg, zap.NewNop(), []string{tuesday})
	require.NoError(t, err)

	report := result.Reports[0]
	assert.Equal(t, OutcomeSolverError, report.Outcome)
	assert.False(t, report.Feasible)
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, store.AppliedBatches)
}

func TestOptimize_Failures(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		store := seedStore(tuesday)
		store.GetSlotsErr = errors.New("connection refused")

		result, err := Optimize(context.Background(), store, nil, nil, testConfig(), zap.NewNop(), []string{tuesday})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, result.Reports[0].Outcome)
		assert.Contains(t, result.Reports[0].Error, "connection refused")
	})

	t.Run("locked week does not block other weeks", func(t *testing.T) {
		store := seedStore(tuesday, nextWeek)
		locker := &fakeLocker{locked: map[string]bool{"2025-01-06": true}}

		result, err := Optimize(context.Background(), store, locker, nil, testConfig(), zap.NewNop(), []string{tuesday, nextWeek})
		require.NoError(t, err)
		require.Len(t, result.Reports, 2)
		assert.Equal(t, OutcomeFailed, result.Reports[0].Outcome)
		assert.Equal(t, OutcomeOptimal, result.Reports[1].Outcome)
		assert.Equal(t, []string{"2025-01-13"}, locker.released)
	})

	t.Run("write error", func(t *testing.T) {
		store := seedStore(tuesday)
		store.ApplyUpdatesErr = errors.New("disk full")
		notifier := &fakeNotifier{}

		result, err := Optimize(context.Background(), store, nil, notifier, testConfig(), zap.NewNop(), []string{tuesday})
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, result.Reports[0].Outcome)
		assert.Empty(t, notifier.sent)
	})

	t.Run("notifier error is not fatal", func(t *testing.T) {
		store := seedStore(tuesday)

		result, err := Optimize(context.Background(), store, nil, &fakeNotifier{fails: true}, testConfig(), zap.NewNop(), []string{tuesday})
		require.NoError(t, err)
		assert.Equal(t, OutcomeOptimal, result.Reports[0].Outcome)
	})
}

func TestOptimize_InvalidInput(t *testing.T) {
	store := seedStore(tuesday)

	_, err := Optimize(context.Background(), store, nil, nil, testConfig(), zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = Optimize(context.Background(), store, nil, nil, testConfig(), zap.NewNop(), []string{"07/01/2025"})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Mode = "hourly"
	_, err = Optimize(context.Background(), store, nil, nil, cfg, zap.NewNop(), []string{tuesday})
	assert.Error(t, err)
}

func TestPreview_StagesDraftsWithoutWriting(t *testing.T) {
	store := seedStore(tuesday)

	result, err := Preview(context.Background(), store, testConfig(), zap.NewNop(), tuesday)
	require.NoError(t, err)

	assert.True(t, result.Feasible)
	assert.Equal(t, OutcomeOptimal, result.Outcome)
	assert.Len(t, result.Drafts, 3)
	assert.True(t, result.Comparison.HasChanges())
	assert.Equal(t, 2, result.Comparison.UnmetBefore)
	assert.Equal(t, 0, result.Comparison.UnmetAfter)
	assert.Equal(t, 2, result.Comparison.Improvement)

	// The schedule itself is untouched
	assert.Empty(t, store.AppliedBatches)
	assert.Zero(t, assignedAt(store.SlotsOn(tuesday), "site-a", model.PeriodMorning))

	drafts, err := store.GetDrafts(context.Background(), tuesday)
	require.NoError(t, err)
	assert.Len(t, drafts, 3)
	assert.Equal(t, [][]string{{tuesday}}, store.ReplacedDates)
}

func TestPreview_SecondRunKeepsStagedDrafts(t *testing.T) {
	store := seedStore(tuesday)

	first, err := Preview(context.Background(), store, testConfig(), zap.NewNop(), tuesday)
	require.NoError(t, err)
	require.Len(t, first.Drafts, 3)

	second, err := Preview(context.Background(), store, testConfig(), zap.NewNop(), tuesday)
	require.NoError(t, err)

	assert.True(t, second.Feasible)
	assert.Empty(t, second.Drafts)
	assert.Equal(t, 3, second.AlreadyStaged)
	assert.Len(t, store.ReplacedDates, 1)

	drafts, err := store.GetDrafts(context.Background(), tuesday)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	for _, d := range drafts {
		assert.Contains(t, []string{first.Drafts[0].ID, first.Drafts[1].ID, first.Drafts[2].ID}, d.ID)
	}
}

func TestPreview_ReplacesDifferingDrafts(t *testing.T) {
	store := seedStore(tuesday)
	store.Drafts = []db.DraftSlot{
		{ID: "old", Date: tuesday, SlotID: "s1-" + tuesday + "-morning", StaffID: "s1", Period: model.PeriodMorning, LocationID: "site-x"},
	}

	result, err := Preview(context.Background(), store, testConfig(), zap.NewNop(), tuesday)
	require.NoError(t, err)

	assert.Len(t, result.Drafts, 3)
	assert.Zero(t, result.AlreadyStaged)

	drafts, err := store.GetDrafts(context.Background(), tuesday)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	for _, d := range drafts {
		assert.NotEqual(t, "old", d.ID)
		assert.NotEqual(t, "site-x", d.LocationID)
	}
}

func TestPreview_ClearsStaleDraftsWhenScheduleMatches(t *testing.T) {
	store := seedStore(tuesday)
	cfg := testConfig()
	cfg.Closing.Sites = []config.ClosingSite{{LocationID: "site-a", RRule: "FREQ=DAILY"}}
	store.LocationDemand = append(store.LocationDemand,
		model.LocationDemand{LocationID: "site-a", DoctorID: "d2", Date: tuesday, Period: model.PeriodAfternoon, Coefficient: coefficient(1)})

	optimized, err := Optimize(context.Background(), store, nil, nil, cfg, zap.NewNop(), []string{tuesday})
	require.NoError(t, err)
	require.Equal(t, OutcomeOptimal, optimized.Reports[0].Outcome)

	store.Drafts = []db.DraftSlot{
		{ID: "old", Date: tuesday, SlotID: "s1-" + tuesday + "-morning", StaffID: "s1", Period: model.PeriodMorning, LocationID: "site-x"},
		{ID: "other-day", Date: wednesday, SlotID: "s1-" + wednesday + "-morning", StaffID: "s1", Period: model.PeriodMorning, LocationID: "site-a"},
	}

	result, err := Preview(context.Background(), store, cfg, zap.NewNop(), tuesday)
	require.NoError(t, err)

	assert.Empty(t, result.Drafts)
	assert.False(t, result.Comparison.HasChanges())
	assert.Equal(t, [][]string{{tuesday}}, store.ReplacedDates)

	drafts, err := store.GetDrafts(context.Background(), tuesday)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	others, err := store.GetDrafts(context.Background(), wednesday)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestPreview_SolverErrorIsReported(t *testing.T) {
	store := seedStore(tuesday)
	cfg := testConfig()
	cfg.Solver.MaxNodes = 1
	cfg.Solver.UseRelaxation = false

	result, err := Preview(context.Background(), store, cfg, zap.NewNop(), tuesday)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSolverError, result.Outcome)
	assert.False(t, result.Feasible)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.Drafts)
	assert.False(t, result.Comparison.HasChanges())
	assert.Empty(t, store.ReplacedDates)
}

func TestPreview_IdempotentAfterOptimize(t *testing.T) {
	store := seedStore(tuesday)
	cfg := testConfig()
	cfg.Closing.Sites = []config.ClosingSite{{LocationID: "site-a", RRule: "FREQ=DAILY"}}
	// Closing coverage needs demand of at least two on both halves
	store.LocationDemand = append(store.LocationDemand,
		model.LocationDemand{LocationID: "site-a", DoctorID: "d2", Date: tuesday, Period: model.PeriodAfternoon, Coefficient: coefficient(1)})

	optimized, err := Optimize(context.Background(), store, nil, nil, cfg, zap.NewNop(), []string{tuesday})
	require.NoError(t, err)
	require.Equal(t, OutcomeOptimal, optimized.Reports[0].Outcome)

	first, err := Preview(context.Background(), store, cfg, zap.NewNop(), tuesday)
	require.NoError(t, err)
	assert.Empty(t, first.Drafts)
	assert.False(t, first.Comparison.HasChanges())

	second, err := Preview(context.Background(), store, cfg, zap.NewNop(), tuesday)
	require.NoError(t, err)
	assert.Empty(t, second.Drafts)
	assert.Empty(t, store.ReplacedDates)
}

func TestPreview_Infeasible(t *testing.T) {
	store := seedStore(tuesday)
	store.LocationPreferences = store.LocationPreferences[:1]
	store.LocationDemand = append(store.LocationDemand,
		model.LocationDemand{LocationID: "site-a", DoctorID: "d2", Date: tuesday, Period: model.PeriodAfternoon, Coefficient: coefficient(1)})
	cfg := testConfig()
	cfg.Closing.Sites = []config.ClosingSite{{LocationID: "site-a", RRule: "FREQ=DAILY"}}

	result, err := Preview(context.Background(), store, cfg, zap.NewNop(), tuesday)
	require.NoError(t, err)

	assert.False(t, result.Feasible)
	assert.Equal(t, OutcomeInfeasible, result.Outcome)
	assert.Empty(t, result.Drafts)
	assert.False(t, result.Comparison.HasChanges())
	assert.Empty(t, store.ReplacedDates)
}
