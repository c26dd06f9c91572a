package combos

import (
	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/demand"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// Combo is one admissible day plan of a staff member. A nil need is administrative.
type Combo struct {
	Key           ComboKey
	MorningNeed   *demand.Need
	AfternoonNeed *demand.Need
	Score         float64
}

// Need returns the need of the given half, nil for administrative
func (c Combo) Need(period model.Period) *demand.Need {
	if period == model.PeriodAfternoon {
		return c.AfternoonNeed
	}
	return c.MorningNeed
}

// Ref returns the need reference of the given half
func (c Combo) Ref(period model.Period) NeedRef {
	if period == model.PeriodAfternoon {
		return c.Key.Afternoon
	}
	return c.Key.Morning
}

// AtLocation reports whether the given half is assigned to a location need at loc
func (c Combo) AtLocation(locationID string, period model.Period) bool {
	ref := c.Ref(period)
	return ref.Kind == RefLocation && ref.LocationID == locationID
}

// FullDayAt reports whether both halves are location needs at loc
func (c Combo) FullDayAt(locationID string) bool {
	return c.AtLocation(locationID, model.PeriodMorning) && c.AtLocation(locationID, model.PeriodAfternoon)
}

// Touches reports whether either half works at one of the locations
func (c Combo) Touches(locationIDs map[string]bool) bool {
	for _, period := range model.Periods {
		ref := c.Ref(period)
		if !ref.IsAdmin() && locationIDs[ref.LocationID] {
			return true
		}
	}
	return false
}

// Generator enumerates the combos of every available staff-day
type Generator struct {
	rules  *ExclusionRules
	logger *zap.Logger
}

// NewGenerator creates a combo generator applying the given exclusion rules
func NewGenerator(rules *ExclusionRules, logger *zap.Logger) *Generator {
	return &Generator{rules: rules, logger: logger}
}

// Generate returns the combos of all target dates of the snapshot, ordered by date
// then staff id
func (g *Generator) Generate(snap *candidates.Snapshot) []Combo {
	var combos []Combo

	for _, date := range snap.Week.Targets {
		needs := demand.ForDate(snap.Needs, date)
		byPeriod := make(map[model.Period][]*demand.Need, 2)
		for i := range needs {
			n := &needs[i]
			byPeriod[n.Period] = append(byPeriod[n.Period], n)
		}

		count := 0
		for _, staffID := range snap.StaffIDs {
			day := snap.Day(staffID, date)
			if day == nil {
				continue
			}
			dayCombos := g.ForDay(snap, staffID, date, day, byPeriod)
			count += len(dayCombos)
			combos = append(combos, dayCombos...)
		}

		g.logger.Debug("Generated combos",
			zap.String("date", date),
			zap.Int("needs", len(needs)),
			zap.Int("combos", count))
	}

	return combos
}

// ForDay enumerates the combos of one staff-day. A half with capacity may be
// administrative or any eligible need; a half without capacity is forced to
// administrative when the other half has capacity. No combos are produced when
// neither half has capacity.
func (g *Generator) ForDay(snap *candidates.Snapshot, staffID, date string, day *candidates.Day, byPeriod map[model.Period][]*demand.Need) []Combo {
	hasMorning := day.HasCapacity(model.PeriodMorning)
	hasAfternoon := day.HasCapacity(model.PeriodAfternoon)
	if !hasMorning && !hasAfternoon {
		return nil
	}

	morningOptions := []*demand.Need{nil}
	if hasMorning {
		morningOptions = append(morningOptions, Eligible(snap, staffID, byPeriod[model.PeriodMorning])...)
	}
	afternoonOptions := []*demand.Need{nil}
	if hasAfternoon {
		afternoonOptions = append(afternoonOptions, Eligible(snap, staffID, byPeriod[model.PeriodAfternoon])...)
	}

	combos := make([]Combo, 0, len(morningOptions)*len(afternoonOptions))
	for _, morning := range morningOptions {
		for _, afternoon := range afternoonOptions {
			if !g.rules.Allowed(morning, afternoon) {
				continue
			}
			combos = append(combos, Combo{
				Key: ComboKey{
					StaffID:   staffID,
					Date:      date,
					Morning:   RefFor(morning),
					Afternoon: RefFor(afternoon),
				},
				MorningNeed:   morning,
				AfternoonNeed: afternoon,
			})
		}
	}

	return combos
}

// Eligible filters needs to those the staff member may fill: location needs at a
// site they hold a preference for, surgical needs for a role they are competent in
func Eligible(snap *candidates.Snapshot, staffID string, needs []*demand.Need) []*demand.Need {
	var eligible []*demand.Need
	for _, n := range needs {
		switch n.Kind {
		case demand.KindSurgicalRole:
			if _, ok := snap.RolePreferences[staffID][n.RoleID]; ok {
				eligible = append(eligible, n)
			}
		default:
			if _, ok := snap.LocationPreferences[staffID][n.LocationID]; ok {
				eligible = append(eligible, n)
			}
		}
	}
	return eligible
}

// GroupByStaffDay groups combos by (staff id, date) preserving order
func GroupByStaffDay(combos []Combo) (map[[2]string][]int, [][2]string) {
	groups := make(map[[2]string][]int)
	var order [][2]string
	for i, c := range combos {
		key := [2]string{c.Key.StaffID, c.Key.Date}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return groups, order
}
