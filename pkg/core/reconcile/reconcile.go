// Package reconcile turns a solved model back into slot records
package reconcile

import (
	"sort"

	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/combos"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/modelbuilder"
	"github.com/jakechorley/clinic-planner/pkg/core/solver"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// Solution is the decoded assignment of a solved model
type Solution struct {
	Combos []combos.Combo
	Roles  []modelbuilder.RoleVar
}

// Reconciler decodes solver results and maps them onto stored slots
type Reconciler struct {
	logger *zap.Logger
}

// NewReconciler creates a result reconciler
func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Decode selects every combo and role variable set in the result. When more than
// one combo is selected for a staff-day only the highest scoring one is kept.
func (r *Reconciler) Decode(build *modelbuilder.Build, result *solver.Result) Solution {
	best := make(map[[2]string]combos.Combo)
	var order [][2]string

	for _, cv := range build.Combos {
		if !result.Selected(cv.Var) {
			continue
		}
		key := [2]string{cv.Combo.Key.StaffID, cv.Combo.Key.Date}
		current, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = cv.Combo
			continue
		}
		r.logger.Warn("Multiple combos selected for one staff-day",
			zap.String("staff_id", key[0]),
			zap.String("date", key[1]))
		if cv.Combo.Score > current.Score {
			best[key] = cv.Combo
		}
	}

	solution := Solution{Combos: make([]combos.Combo, 0, len(order))}
	for _, key := range order {
		solution.Combos = append(solution.Combos, best[key])
	}

	for _, rv := range build.Roles {
		if result.Selected(rv.Var) {
			solution.Roles = append(solution.Roles, rv)
		}
	}

	return solution
}

// SlotUpdates translates a solution into one update per stored half-day slot.
// Synthetic placeholders are never written; missing placeholders are logged and skipped.
func (r *Reconciler) SlotUpdates(snap *candidates.Snapshot, solution Solution) []db.SlotUpdate {
	roles := roleIndex(solution.Roles)

	var updates []db.SlotUpdate
	for _, c := range solution.Combos {
		day := snap.Day(c.Key.StaffID, c.Key.Date)

		for _, period := range model.Periods {
			var half *candidates.HalfDay
			if day != nil {
				half = day.Half(period)
			}
			if half == nil {
				r.logger.Warn("Missing slot placeholder, skipping",
					zap.String("staff_id", c.Key.StaffID),
					zap.String("date", c.Key.Date),
					zap.String("period", string(period)))
				continue
			}
			if half.Synthetic {
				continue
			}

			update := db.SlotUpdate{SlotID: half.Slot.ID}
			if need := c.Need(period); need != nil {
				update.LocationID = db.StringPtr(need.LocationID)
				update.SessionID = db.StringPtr(need.SessionID)
				update.RoleID = db.StringPtr(need.RoleID)

				if role, ok := roles[roleKey{c.Key.StaffID, c.Key.Date, need.LocationID, period}]; ok {
					update.ClosingRole = &role
				}
			}
			updates = append(updates, update)
		}
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].SlotID < updates[j].SlotID
	})
	return updates
}

// Changes returns the updates that modify the stored slot they target
func Changes(snap *candidates.Snapshot, updates []db.SlotUpdate) []db.SlotUpdate {
	stored := storedSlots(snap)

	var changes []db.SlotUpdate
	for _, u := range updates {
		slot, ok := stored[u.SlotID]
		if !ok || u.Apply(slot) != slot {
			changes = append(changes, u)
		}
	}
	return changes
}

type roleKey struct {
	staffID    string
	date       string
	locationID string
	period     model.Period
}

// roleIndex maps each half-day to its closing role. Full-day roles flag both halves.
func roleIndex(roles []modelbuilder.RoleVar) map[roleKey]model.ClosingRole {
	index := make(map[roleKey]model.ClosingRole)
	for _, rv := range roles {
		periods := model.Periods
		if rv.Period != "" {
			periods = []model.Period{rv.Period}
		}
		for _, period := range periods {
			index[roleKey{rv.StaffID, rv.Date, rv.LocationID, period}] = rv.Role
		}
	}
	return index
}

func storedSlots(snap *candidates.Snapshot) map[string]model.Slot {
	slots := make(map[string]model.Slot)
	for _, slot := range snap.TargetSlots() {
		slots[slot.ID] = slot
	}
	return slots
}
