// Package modelbuilder translates scored combos into an lp model
package modelbuilder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/combos"
	"github.com/jakechorley/clinic-planner/pkg/core/demand"
	"github.com/jakechorley/clinic-planner/pkg/core/lp"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/core/scoring"
)

// ComboVar binds a model variable to the combo it selects
type ComboVar struct {
	Var   int
	Combo combos.Combo
}

// RoleVar binds a model variable to a closing role of a staff member
type RoleVar struct {
	Var        int
	StaffID    string
	Date       string
	LocationID string
	Role       model.ClosingRole

	// Period is empty for full-day closing roles
	Period model.Period
}

// Build is a model together with the meaning of its decision variables
type Build struct {
	Model  *lp.Model
	Combos []ComboVar
	Roles  []RoleVar

	// ClosingSites lists "<location>|<date>" for every closing requirement emitted
	ClosingSites []string
}

// Builder emits lp models for one day (daily mode) or one week (weekly mode)
type Builder struct {
	cfg      *config.Config
	schedule *ClosingSchedule
	preview  bool
	logger   *zap.Logger
}

// NewBuilder creates a model builder
func NewBuilder(cfg *config.Config, schedule *ClosingSchedule, logger *zap.Logger) *Builder {
	return &Builder{cfg: cfg, schedule: schedule, logger: logger}
}

// ForPreview returns a builder granting the retention bonus to closing roles the
// staff member already holds, so re-running a preview keeps them in place
func (b *Builder) ForPreview() *Builder {
	preview := *b
	preview.preview = true
	return &preview
}

// dayContext carries the per-date variables later constraints refer to
type dayContext struct {
	snap   *candidates.Snapshot
	date   string
	needs  []demand.Need
	combos []ComboVar
	roles  []RoleVar
}

// BuildDay builds the model of a single date. Closing roles carry a penalty growing
// with the roles each staff member already held this week.
func (b *Builder) BuildDay(snap *candidates.Snapshot, date string, scored []combos.Combo, state scoring.FairnessState) (*Build, error) {
	build := &Build{Model: lp.NewModel()}

	if _, err := b.addDay(build, snap, date, scored, state, true); err != nil {
		return nil, err
	}

	b.logBuild("Built daily model", build, date)
	return build, nil
}

// BuildWeek builds one model covering every target date of the snapshot, with
// in-model fairness counters and escalation tiers
func (b *Builder) BuildWeek(snap *candidates.Snapshot, scored []combos.Combo, state scoring.FairnessState) (*Build, error) {
	build := &Build{Model: lp.NewModel()}

	days := make([]*dayContext, 0, len(snap.Week.Targets))
	for _, date := range snap.Week.Targets {
		var dayCombos []combos.Combo
		for _, c := range scored {
			if c.Key.Date == date {
				dayCombos = append(dayCombos, c)
			}
		}
		day, err := b.addDay(build, snap, date, dayCombos, state, false)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}

	b.addFairness(build, snap, days, state)

	b.logBuild("Built weekly model", build, snap.Week.Key())
	return build, nil
}

func (b *Builder) logBuild(msg string, build *Build, scope string) {
	b.logger.Debug(msg,
		zap.String("scope", scope),
		zap.Int("variables", len(build.Model.Vars)),
		zap.Int("constraints", len(build.Model.Constraints)),
		zap.Int("combos", len(build.Combos)),
		zap.Int("closing_roles", len(build.Roles)))
}

func (b *Builder) addDay(build *Build, snap *candidates.Snapshot, date string, dayCombos []combos.Combo, state scoring.FairnessState, daily bool) (*dayContext, error) {
	m := build.Model
	day := &dayContext{snap: snap, date: date, needs: demand.ForDate(snap.Needs, date)}

	// Step 1: One binary per combo
	for _, c := range dayCombos {
		if c.Key.Date != date {
			return nil, fmt.Errorf("combo %s does not belong to %s", c.Key, date)
		}
		v := m.AddBinary(c.Key.String(), c.Score)
		day.combos = append(day.combos, ComboVar{Var: v, Combo: c})
	}
	build.Combos = append(build.Combos, day.combos...)

	// Step 2: Exactly one combo per staff-day
	b.addCoupling(m, day)

	// Step 3: Capacity per location half-day and per surgical session role
	b.addCapacity(m, day)

	// Step 4: Closing coverage
	sites, err := b.schedule.SitesOn(date)
	if err != nil {
		return nil, err
	}
	for _, locationID := range sites {
		b.addClosing(build, day, locationID, state, daily)
	}

	return day, nil
}

func (b *Builder) addCoupling(m *lp.Model, day *dayContext) {
	terms := make(map[string][]lp.Term)
	var order []string
	for _, cv := range day.combos {
		staffID := cv.Combo.Key.StaffID
		if _, ok := terms[staffID]; !ok {
			order = append(order, staffID)
		}
		terms[staffID] = append(terms[staffID], lp.Term{Var: cv.Var, Coef: 1})
	}
	for _, staffID := range order {
		m.AddConstraint(fmt.Sprintf("one|%s|%s", staffID, day.date), terms[staffID], lp.Equal, 1)
	}
}

func (b *Builder) addCapacity(m *lp.Model, day *dayContext) {
	terms := make(map[string][]lp.Term)
	for _, cv := range day.combos {
		for _, period := range model.Periods {
			need := cv.Combo.Need(period)
			if need == nil {
				continue
			}
			key := need.Key()
			terms[key] = append(terms[key], lp.Term{Var: cv.Var, Coef: 1})
		}
	}

	// Location needs are already aggregated per (location, date, period) by the
	// demand calculator; surgical needs stay one per (session, role)
	for _, need := range day.needs {
		key := need.Key()
		if len(terms[key]) == 0 {
			continue
		}
		m.AddConstraint("cap|"+key, terms[key], lp.LessEqual, float64(need.RequiredCount))
	}
}

// requiredAt returns the location demand of a site half-day
func requiredAt(needs []demand.Need, locationID string, period model.Period) int {
	for _, n := range needs {
		if n.Kind == demand.KindLocation && n.LocationID == locationID && n.Period == period {
			return n.RequiredCount
		}
	}
	return 0
}

func (b *Builder) addClosing(build *Build, day *dayContext, locationID string, state scoring.FairnessState, daily bool) {
	minimum := b.cfg.Closing.MinimumCandidates
	morning := requiredAt(day.needs, locationID, model.PeriodMorning)
	afternoon := requiredAt(day.needs, locationID, model.PeriodAfternoon)

	switch {
	case morning >= minimum && afternoon >= minimum:
		b.addFullDayClosing(build, day, locationID, state, daily)
	case morning >= minimum:
		b.addHalfDayClosing(build, day, locationID, model.PeriodMorning, state, daily)
	case afternoon >= minimum:
		b.addHalfDayClosing(build, day, locationID, model.PeriodAfternoon, state, daily)
	default:
		b.logger.Warn("Skipping closing coverage without enough demand",
			zap.String("location_id", locationID),
			zap.String("date", day.date),
			zap.Int("morning_required", morning),
			zap.Int("afternoon_required", afternoon))
		return
	}

	build.ClosingSites = append(build.ClosingSites, locationID+"|"+day.date)
}

// rolePenalty is the objective coefficient of a closing role variable
func (b *Builder) rolePenalty(staffID string, role model.ClosingRole, state scoring.FairnessState, daily bool) float64 {
	if !daily {
		return 0
	}
	penalty := b.cfg.Closing.DailySecondaryPenalty
	if role == model.ClosingPrimary {
		penalty = b.cfg.Closing.DailyPrimaryPenalty
	}
	return -penalty * float64(1+state.ClosingDays(staffID, role))
}

// groupByStaff collects the combo variables matching keep, per staff member in order
func groupByStaff(day *dayContext, keep func(combos.Combo) bool) ([]string, map[string][]lp.Term) {
	terms := make(map[string][]lp.Term)
	var order []string
	for _, cv := range day.combos {
		if !keep(cv.Combo) {
			continue
		}
		staffID := cv.Combo.Key.StaffID
		if _, ok := terms[staffID]; !ok {
			order = append(order, staffID)
		}
		terms[staffID] = append(terms[staffID], lp.Term{Var: cv.Var, Coef: 1})
	}
	return order, terms
}

// addFullDayClosing requires a minimum of full-day staff at the site, one primary
// closer and one secondary closer among them, and no one holding both roles
func (b *Builder) addFullDayClosing(build *Build, day *dayContext, locationID string, state scoring.FairnessState, daily bool) {
	m := build.Model
	prefix := fmt.Sprintf("%s|%s", locationID, day.date)

	staffIDs, fullDay := groupByStaff(day, func(c combos.Combo) bool {
		return c.FullDayAt(locationID)
	})

	var fullTerms, primaryTerms, secondaryTerms []lp.Term
	for _, staffID := range staffIDs {
		// f equals the sum of the staff member's full-day combos at the site
		f := m.AddBinary(fmt.Sprintf("f|%s|%s", prefix, staffID), 0)
		link := append([]lp.Term{{Var: f, Coef: 1}}, negate(fullDay[staffID])...)
		m.AddConstraint(fmt.Sprintf("full|%s|%s", prefix, staffID), link, lp.Equal, 0)
		fullTerms = append(fullTerms, lp.Term{Var: f, Coef: 1})

		primary := b.addRole(build, day, staffID, locationID, model.ClosingPrimary, "", state, daily)
		secondary := b.addRole(build, day, staffID, locationID, model.ClosingSecondary, "", state, daily)

		m.AddConstraint(fmt.Sprintf("primary-needs-full|%s|%s", prefix, staffID),
			[]lp.Term{{Var: primary, Coef: 1}, {Var: f, Coef: -1}}, lp.LessEqual, 0)
		m.AddConstraint(fmt.Sprintf("secondary-needs-full|%s|%s", prefix, staffID),
			[]lp.Term{{Var: secondary, Coef: 1}, {Var: f, Coef: -1}}, lp.LessEqual, 0)
		m.AddConstraint(fmt.Sprintf("one-role|%s|%s", prefix, staffID),
			[]lp.Term{{Var: primary, Coef: 1}, {Var: secondary, Coef: 1}}, lp.LessEqual, 1)

		primaryTerms = append(primaryTerms, lp.Term{Var: primary, Coef: 1})
		secondaryTerms = append(secondaryTerms, lp.Term{Var: secondary, Coef: 1})
	}

	m.AddConstraint("closing-min|"+prefix, fullTerms, lp.GreaterEqual, float64(b.cfg.Closing.MinimumCandidates))
	m.AddConstraint("closing-primary|"+prefix, primaryTerms, lp.Equal, 1)
	m.AddConstraint("closing-secondary|"+prefix, secondaryTerms, lp.Equal, 1)
}

// addHalfDayClosing mirrors addFullDayClosing for a site with demand on one half only
func (b *Builder) addHalfDayClosing(build *Build, day *dayContext, locationID string, period model.Period, state scoring.FairnessState, daily bool) {
	m := build.Model
	prefix := fmt.Sprintf("%s|%s|%s", locationID, day.date, period)

	staffIDs, present := groupByStaff(day, func(c combos.Combo) bool {
		return c.AtLocation(locationID, period)
	})

	var presentTerms, primaryTerms, secondaryTerms []lp.Term
	for _, staffID := range staffIDs {
		presentTerms = append(presentTerms, present[staffID]...)

		primary := b.addRole(build, day, staffID, locationID, model.ClosingPrimary, period, state, daily)
		secondary := b.addRole(build, day, staffID, locationID, model.ClosingSecondary, period, state, daily)

		m.AddConstraint(fmt.Sprintf("primary-needs-presence|%s|%s", prefix, staffID),
			append([]lp.Term{{Var: primary, Coef: 1}}, negate(present[staffID])...), lp.LessEqual, 0)
		m.AddConstraint(fmt.Sprintf("secondary-needs-presence|%s|%s", prefix, staffID),
			append([]lp.Term{{Var: secondary, Coef: 1}}, negate(present[staffID])...), lp.LessEqual, 0)
		m.AddConstraint(fmt.Sprintf("one-role|%s|%s", prefix, staffID),
			[]lp.Term{{Var: primary, Coef: 1}, {Var: secondary, Coef: 1}}, lp.LessEqual, 1)

		primaryTerms = append(primaryTerms, lp.Term{Var: primary, Coef: 1})
		secondaryTerms = append(secondaryTerms, lp.Term{Var: secondary, Coef: 1})
	}

	m.AddConstraint("closing-min|"+prefix, presentTerms, lp.GreaterEqual, float64(b.cfg.Closing.MinimumCandidates))
	m.AddConstraint("closing-primary|"+prefix, primaryTerms, lp.Equal, 1)
	m.AddConstraint("closing-secondary|"+prefix, secondaryTerms, lp.Equal, 1)
}

func (b *Builder) addRole(build *Build, day *dayContext, staffID, locationID string, role model.ClosingRole, period model.Period, state scoring.FairnessState, daily bool) int {
	name := fmt.Sprintf("r|%s|%s|%s|%s|%s", locationID, day.date, period, role, staffID)
	objective := b.rolePenalty(staffID, role, state, daily)
	if b.preview && holdsRole(day.snap, staffID, day.date, locationID, role, period) {
		objective += b.cfg.Scoring.RetentionBonus
	}
	v := build.Model.AddBinary(name, objective)

	rv := RoleVar{
		Var:        v,
		StaffID:    staffID,
		Date:       day.date,
		LocationID: locationID,
		Role:       role,
		Period:     period,
	}
	day.roles = append(day.roles, rv)
	build.Roles = append(build.Roles, rv)
	return v
}

// holdsRole reports whether the stored slots already give the staff member the role
// at the location. Full-day roles are read from the morning slot.
func holdsRole(snap *candidates.Snapshot, staffID, date, locationID string, role model.ClosingRole, period model.Period) bool {
	day := snap.Day(staffID, date)
	if day == nil {
		return false
	}
	if period == "" {
		period = model.PeriodMorning
	}
	half := day.Half(period)
	if half == nil || half.Synthetic {
		return false
	}
	return half.Slot.ClosingRole == role && half.Slot.LocationID == locationID
}

func negate(terms []lp.Term) []lp.Term {
	negated := make([]lp.Term, len(terms))
	for i, t := range terms {
		negated[i] = lp.Term{Var: t.Var, Coef: -t.Coef}
	}
	return negated
}
