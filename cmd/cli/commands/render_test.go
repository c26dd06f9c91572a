package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/reconcile"
	"github.com/jakechorley/clinic-planner/pkg/core/services"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

func TestOutcomeColor(t *testing.T) {
	tests := []struct {
		outcome  services.Outcome
		expected string
	}{
		{services.OutcomeOptimal, colorGreen},
		{services.OutcomeFeasible, colorYellow},
		{services.OutcomeInfeasible, colorRed},
		{services.OutcomeSolverError, colorRed},
		{services.OutcomeFailed, colorRed},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.expected, outcomeColor(tt.outcome))
		})
	}
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, colorGreen, statusColor(reconcile.StatusMet))
	assert.Equal(t, colorYellow, statusColor(reconcile.StatusOver))
	assert.Equal(t, colorRed, statusColor(reconcile.StatusUnmet))
}

func TestFormatReports(t *testing.T) {
	out := formatReports([]services.DateReport{
		{Date: "2025-01-07", Outcome: services.OutcomeOptimal, Feasible: true, Objective: 412.5, AssignmentsWritten: 6},
		{Date: "2025-01-08", Outcome: services.OutcomeInfeasible, Error: "infeasible at root"},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[2], "412.5")
	assert.Contains(t, lines[2], colorGreen+"optimal")
	assert.Contains(t, lines[3], colorRed+"infeasible")
	assert.Contains(t, lines[4], "infeasible at root")
}

func TestFormatComparison(t *testing.T) {
	out := formatComparison(reconcile.Comparison{
		Date: "2025-01-07",
		Rows: []reconcile.NeedComparison{{
			NeedLabel:      "Site A afternoon",
			Required:       1,
			AssignedBefore: 0,
			AssignedAfter:  1,
			StatusBefore:   reconcile.StatusUnmet,
			StatusAfter:    reconcile.StatusMet,
			Added:          []string{"Ada Martin"},
		}},
		UnmetBefore: 1,
		Improvement: 1,
	})

	assert.Contains(t, out, "Site A afternoon")
	assert.Contains(t, out, "+ Ada Martin")
	assert.NotContains(t, out, "- ")
	assert.Contains(t, out, "improvement +1")
}

func TestFormatDrafts(t *testing.T) {
	out := formatDrafts([]db.DraftSlot{
		{StaffID: "s1", Period: model.PeriodMorning, LocationID: "site-a", ClosingRole: model.ClosingPrimary},
		{StaffID: "s3", Period: model.PeriodAfternoon},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[2], "primary")
	assert.Contains(t, lines[3], "admin")
}

func TestCountFailed(t *testing.T) {
	assert.Equal(t, 2, countFailed([]services.DateReport{
		{Outcome: services.OutcomeOptimal, Feasible: true},
		{Outcome: services.OutcomeInfeasible},
		{Outcome: services.OutcomeFailed},
	}))
}
