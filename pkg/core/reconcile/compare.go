package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/combos"
	"github.com/jakechorley/clinic-planner/pkg/core/demand"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/scoring"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// Need statuses
const (
	StatusMet   = "met"
	StatusUnmet = "unmet"
	StatusOver  = "over"
)

// NeedComparison is the before/after staffing of one need
type NeedComparison struct {
	NeedLabel      string
	Required       int
	AssignedBefore int
	AssignedAfter  int
	StatusBefore   string
	StatusAfter    string
	Added          []string
	Removed        []string
	Unchanged      []string
}

// Comparison is the preview report of a date
type Comparison struct {
	Date        string
	Rows        []NeedComparison
	UnmetBefore int
	UnmetAfter  int

	// Improvement is the number of unmet needs the proposal resolves (negative when it
	// leaves more needs unmet)
	Improvement int
}

// Compare builds the before/after table of every need of the date. Before is read
// from the stored slots, after from the solution.
func Compare(snap *candidates.Snapshot, date string, solution Solution) Comparison {
	comparison := Comparison{Date: date}

	for _, need := range demand.ForDate(snap.Needs, date) {
		ref := combos.RefFor(&need)

		before := staffBefore(snap, date, need.Period, ref)
		after := staffAfter(solution, date, need.Period, ref)

		row := NeedComparison{
			NeedLabel:      Label(snap, need),
			Required:       need.RequiredCount,
			AssignedBefore: len(before),
			AssignedAfter:  len(after),
			StatusBefore:   status(need.RequiredCount, len(before)),
			StatusAfter:    status(need.RequiredCount, len(after)),
		}

		for _, id := range sortedKeys(after) {
			if before[id] {
				row.Unchanged = append(row.Unchanged, displayName(snap, id))
			} else {
				row.Added = append(row.Added, displayName(snap, id))
			}
		}
		for _, id := range sortedKeys(before) {
			if !after[id] {
				row.Removed = append(row.Removed, displayName(snap, id))
			}
		}

		if row.StatusBefore == StatusUnmet {
			comparison.UnmetBefore++
		}
		if row.StatusAfter == StatusUnmet {
			comparison.UnmetAfter++
		}
		comparison.Rows = append(comparison.Rows, row)
	}

	comparison.Improvement = comparison.UnmetBefore - comparison.UnmetAfter
	return comparison
}

// Current describes the stored assignments of a date as a solution, so a comparison
// against it reports the schedule unchanged
func Current(snap *candidates.Snapshot, date string) Solution {
	var solution Solution
	for _, staffID := range snap.StaffIDs {
		day := snap.Day(staffID, date)
		if day == nil {
			continue
		}
		key := combos.ComboKey{StaffID: staffID, Date: date, Morning: combos.AdminRef(), Afternoon: combos.AdminRef()}
		if half := day.Half(model.PeriodMorning); half != nil && !half.Synthetic {
			key.Morning = scoring.CurrentRef(half.Slot)
		}
		if half := day.Half(model.PeriodAfternoon); half != nil && !half.Synthetic {
			key.Afternoon = scoring.CurrentRef(half.Slot)
		}
		solution.Combos = append(solution.Combos, combos.Combo{Key: key})
	}
	return solution
}

// HasChanges reports whether any need gains or loses staff
func (c Comparison) HasChanges() bool {
	for _, row := range c.Rows {
		if len(row.Added) > 0 || len(row.Removed) > 0 {
			return true
		}
	}
	return false
}

// Drafts stages slot changes as draft rows for manual review
func Drafts(snap *candidates.Snapshot, changes []db.SlotUpdate, now time.Time) []db.DraftSlot {
	stored := storedSlots(snap)

	drafts := make([]db.DraftSlot, 0, len(changes))
	for _, u := range changes {
		slot, ok := stored[u.SlotID]
		if !ok {
			continue
		}
		proposed := u.Apply(slot)
		drafts = append(drafts, db.DraftSlot{
			ID:          uuid.NewString(),
			Date:        slot.Date,
			SlotID:      slot.ID,
			StaffID:     slot.StaffID,
			Period:      slot.Period,
			LocationID:  proposed.LocationID,
			SessionID:   proposed.SessionID,
			RoleID:      proposed.RoleID,
			ClosingRole: proposed.ClosingRole,
			CreatedAt:   now,
		})
	}
	return drafts
}

// Label returns a readable name for a need
func Label(snap *candidates.Snapshot, need demand.Need) string {
	location := need.LocationID
	if loc, ok := snap.Locations[need.LocationID]; ok && loc.Name != "" {
		location = loc.Name
	}

	if need.Kind == demand.KindSurgicalRole {
		role := need.RoleID
		if r, ok := snap.Roles[need.RoleID]; ok && r.Name != "" {
			role = r.Name
		}
		return fmt.Sprintf("%s %s (%s, session %s)", location, need.Period, role, need.SessionID)
	}
	return fmt.Sprintf("%s %s", location, need.Period)
}

func staffBefore(snap *candidates.Snapshot, date string, period model.Period, ref combos.NeedRef) map[string]bool {
	staff := make(map[string]bool)
	for _, staffID := range snap.StaffIDs {
		day := snap.Day(staffID, date)
		if day == nil {
			continue
		}
		half := day.Half(period)
		if half == nil || half.Synthetic {
			continue
		}
		if scoring.CurrentRef(half.Slot).Matches(ref) {
			staff[staffID] = true
		}
	}
	return staff
}

func staffAfter(solution Solution, date string, period model.Period, ref combos.NeedRef) map[string]bool {
	staff := make(map[string]bool)
	for _, c := range solution.Combos {
		if c.Key.Date == date && c.Ref(period).Matches(ref) {
			staff[c.Key.StaffID] = true
		}
	}
	return staff
}

func status(required, assigned int) string {
	switch {
	case assigned < required:
		return StatusUnmet
	case assigned > required:
		return StatusOver
	default:
		return StatusMet
	}
}

func displayName(snap *candidates.Snapshot, staffID string) string {
	if name := snap.Staff[staffID].DisplayName(); name != "" {
		return name
	}
	return staffID
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
