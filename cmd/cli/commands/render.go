package commands

import (
	"fmt"
	"strings"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/reconcile"
	"github.com/jakechorley/clinic-planner/pkg/core/services"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

func outcomeColor(outcome services.Outcome) string {
	switch outcome {
	case services.OutcomeOptimal:
		return colorGreen
	case services.OutcomeFeasible:
		return colorYellow
	default:
		return colorRed
	}
}

func statusColor(status string) string {
	switch status {
	case reconcile.StatusMet:
		return colorGreen
	case reconcile.StatusOver:
		return colorYellow
	default:
		return colorRed
	}
}

// colored pads before coloring so escape codes do not break column widths
func colored(color string, width int, text string) string {
	return fmt.Sprintf("%s%-*s%s", color, width, text, colorReset)
}

func formatReports(reports []services.DateReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-12s%-14s%-14s%-10s\n", "Date", "Outcome", "Objective", "Written")
	b.WriteString(strings.Repeat("-", 50) + "\n")

	for _, r := range reports {
		objective := "-"
		if r.Feasible {
			objective = fmt.Sprintf("%.1f", r.Objective)
		}
		fmt.Fprintf(&b, "%-12s%s%-14s%-10d\n", r.Date, colored(outcomeColor(r.Outcome), 14, string(r.Outcome)), objective, r.AssignmentsWritten)
		if r.Error != "" {
			fmt.Fprintf(&b, "%s  %s%s\n", colorDim, r.Error, colorReset)
		}
	}

	return b.String()
}

func formatComparison(c reconcile.Comparison) string {
	var b strings.Builder

	labelWidth := 24
	for _, row := range c.Rows {
		if len(row.NeedLabel) > labelWidth {
			labelWidth = len(row.NeedLabel)
		}
	}
	labelWidth += 2

	fmt.Fprintf(&b, "%-*s%-10s%-10s%-10s%-10s%-10s\n", labelWidth, "Need", "Required", "Before", "After", "Was", "Now")
	b.WriteString(strings.Repeat("-", labelWidth+50) + "\n")

	for _, row := range c.Rows {
		fmt.Fprintf(&b, "%-*s%-10d%-10d%-10d%s%s\n", labelWidth, row.NeedLabel,
			row.Required, row.AssignedBefore, row.AssignedAfter,
			colored(statusColor(row.StatusBefore), 10, row.StatusBefore),
			colored(statusColor(row.StatusAfter), 10, row.StatusAfter))
		if len(row.Added) > 0 {
			fmt.Fprintf(&b, "  %s+ %s%s\n", colorGreen, strings.Join(row.Added, ", "), colorReset)
		}
		if len(row.Removed) > 0 {
			fmt.Fprintf(&b, "  %s- %s%s\n", colorRed, strings.Join(row.Removed, ", "), colorReset)
		}
	}

	fmt.Fprintf(&b, "\nUnmet needs: %d before, %d after (improvement %+d)\n", c.UnmetBefore, c.UnmetAfter, c.Improvement)
	return b.String()
}

func formatDrafts(drafts []db.DraftSlot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-12s%-12s%-14s%-14s%-12s\n", "Staff", "Period", "Location", "Session/Role", "Closing")
	b.WriteString(strings.Repeat("-", 64) + "\n")

	for _, d := range drafts {
		location := d.LocationID
		if location == "" {
			location = "admin"
		}
		surgical := "-"
		if d.SessionID != "" {
			surgical = d.SessionID + "/" + d.RoleID
		}
		closing := "-"
		if d.ClosingRole != model.ClosingNone {
			closing = string(d.ClosingRole)
		}
		fmt.Fprintf(&b, "%-12s%-12s%-14s%-14s%-12s\n", d.StaffID, d.Period, location, surgical, closing)
	}

	return b.String()
}
