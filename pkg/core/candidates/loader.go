package candidates

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/demand"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// HalfDay is the placeholder slot of one staff member for one half-day
type HalfDay struct {
	Slot model.Slot

	// Synthetic marks an administrative placeholder injected by the loader for a
	// half-day without a stored slot. It has no capacity and is never written back.
	Synthetic bool
}

// Day holds both halves of a staff member's target date
type Day struct {
	Morning   *HalfDay
	Afternoon *HalfDay
}

// Half returns the placeholder for the given period
func (d *Day) Half(period model.Period) *HalfDay {
	if period == model.PeriodAfternoon {
		return d.Afternoon
	}
	return d.Morning
}

// HasCapacity reports whether the staff member declared availability for the period
func (d *Day) HasCapacity(period model.Period) bool {
	half := d.Half(period)
	return half != nil && !half.Synthetic
}

// Snapshot is everything the pipeline needs to optimize one week. It is built once
// and never mutated afterwards.
type Snapshot struct {
	Week Week

	Staff     map[string]model.Staff
	StaffIDs  []string
	Doctors   map[string]model.Doctor
	Locations map[string]model.Location
	Roles     map[string]model.SurgicalRole

	// Preference ranks keyed by staff id then target id
	RolePreferences     map[string]map[string]int
	DoctorPreferences   map[string]map[string]int
	LocationPreferences map[string]map[string]int

	// Needs of the target dates
	Needs []demand.Need

	// Availability of the target dates keyed by staff id then date
	Availability map[string]map[string]*Day

	// WeekSlots are the slots of the week's non-target dates; they seed fairness
	WeekSlots []model.Slot

	// PreviousWeekSlots drive the historical escalation factor
	PreviousWeekSlots []model.Slot
}

// Day returns the availability of a staff member on a target date, or nil
func (s *Snapshot) Day(staffID, date string) *Day {
	return s.Availability[staffID][date]
}

// LocationRank returns the staff member's preference rank for a location
func (s *Snapshot) LocationRank(staffID, locationID string) (int, bool) {
	rank, ok := s.LocationPreferences[staffID][locationID]
	return rank, ok
}

// TargetSlots returns the stored (non-synthetic) slots of the target dates
func (s *Snapshot) TargetSlots() []model.Slot {
	var slots []model.Slot
	for _, staffID := range s.StaffIDs {
		for _, date := range s.Week.Targets {
			day := s.Day(staffID, date)
			if day == nil {
				continue
			}
			for _, period := range model.Periods {
				if half := day.Half(period); half != nil && !half.Synthetic {
					slots = append(slots, half.Slot)
				}
			}
		}
	}
	return slots
}

// Loader assembles a Snapshot from the planner store
type Loader struct {
	store      db.PlannerReader
	calculator *demand.Calculator
	logger     *zap.Logger
}

// NewLoader creates a candidate loader
func NewLoader(store db.PlannerReader, calculator *demand.Calculator, logger *zap.Logger) *Loader {
	return &Loader{store: store, calculator: calculator, logger: logger}
}

// Load reads the reference data, demand and slots needed to optimize the week's
// target dates
func (l *Loader) Load(ctx context.Context, week Week) (*Snapshot, error) {
	if len(week.Targets) == 0 {
		return nil, fmt.Errorf("week %s has no target dates", week.Key())
	}

	snap := &Snapshot{
		Week:                week,
		Staff:               make(map[string]model.Staff),
		Doctors:             make(map[string]model.Doctor),
		Locations:           make(map[string]model.Location),
		Roles:               make(map[string]model.SurgicalRole),
		RolePreferences:     make(map[string]map[string]int),
		DoctorPreferences:   make(map[string]map[string]int),
		LocationPreferences: make(map[string]map[string]int),
		Availability:        make(map[string]map[string]*Day),
	}

	// Step 1: Load active reference data
	if err := l.loadReferenceData(ctx, snap); err != nil {
		return nil, err
	}

	// Step 2: Load preference relations for active staff
	if err := l.loadPreferences(ctx, snap); err != nil {
		return nil, err
	}

	// Step 3: Compute the needs of the target dates
	needs, err := l.loadNeeds(ctx, snap)
	if err != nil {
		return nil, err
	}
	snap.Needs = needs

	// Step 4: Load slots from the previous week up to the end of this week
	previousStart := week.Start.AddDate(0, 0, -7).Format(model.DateLayout)
	slots, err := l.store.GetSlots(ctx, previousStart, week.End().Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}

	// Step 5: Split slots into availability, fairness seed and history
	l.distributeSlots(snap, slots)

	// Step 6: Complete half-available days with administrative placeholders
	injected := fillSyntheticAdmin(snap)

	l.logger.Debug("Loaded candidate snapshot",
		zap.String("week", week.Key()),
		zap.Strings("targets", week.Targets),
		zap.Int("staff", len(snap.StaffIDs)),
		zap.Int("needs", len(snap.Needs)),
		zap.Int("synthetic_admin", injected),
		zap.Int("seed_slots", len(snap.WeekSlots)),
		zap.Int("previous_week_slots", len(snap.PreviousWeekSlots)))

	return snap, nil
}

func (l *Loader) loadReferenceData(ctx context.Context, snap *Snapshot) error {
	staff, err := l.store.GetActiveStaff(ctx)
	if err != nil {
		return fmt.Errorf("failed to get staff: %w", err)
	}
	for _, s := range staff {
		if !s.Active {
			continue
		}
		snap.Staff[s.ID] = s
		snap.StaffIDs = append(snap.StaffIDs, s.ID)
	}
	sort.Strings(snap.StaffIDs)

	doctors, err := l.store.GetActiveDoctors(ctx)
	if err != nil {
		return fmt.Errorf("failed to get doctors: %w", err)
	}
	for _, d := range doctors {
		if d.Active {
			snap.Doctors[d.ID] = d
		}
	}

	locations, err := l.store.GetActiveLocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get locations: %w", err)
	}
	for _, loc := range locations {
		if loc.Active {
			snap.Locations[loc.ID] = loc
		}
	}

	roles, err := l.store.GetActiveSurgicalRoles(ctx)
	if err != nil {
		return fmt.Errorf("failed to get surgical roles: %w", err)
	}
	for _, r := range roles {
		if r.Active {
			snap.Roles[r.ID] = r
		}
	}

	return nil
}

func (l *Loader) loadPreferences(ctx context.Context, snap *Snapshot) error {
	rolePrefs, err := l.store.GetRolePreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to get role preferences: %w", err)
	}
	for _, p := range rolePrefs {
		if _, ok := snap.Roles[p.RoleID]; ok {
			setRank(snap, snap.RolePreferences, p.StaffID, p.RoleID, p.Rank)
		}
	}

	doctorPrefs, err := l.store.GetDoctorPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to get doctor preferences: %w", err)
	}
	for _, p := range doctorPrefs {
		if _, ok := snap.Doctors[p.DoctorID]; ok {
			setRank(snap, snap.DoctorPreferences, p.StaffID, p.DoctorID, p.Rank)
		}
	}

	locationPrefs, err := l.store.GetLocationPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to get location preferences: %w", err)
	}
	for _, p := range locationPrefs {
		if _, ok := snap.Locations[p.LocationID]; ok {
			setRank(snap, snap.LocationPreferences, p.StaffID, p.LocationID, p.Rank)
		}
	}

	return nil
}

// setRank records a preference, keeping the best rank when a pair is duplicated
func setRank(snap *Snapshot, ranks map[string]map[string]int, staffID, targetID string, rank int) {
	if _, ok := snap.Staff[staffID]; !ok {
		return
	}
	if ranks[staffID] == nil {
		ranks[staffID] = make(map[string]int)
	}
	if existing, ok := ranks[staffID][targetID]; ok && existing <= rank {
		return
	}
	ranks[staffID][targetID] = rank
}

func (l *Loader) loadNeeds(ctx context.Context, snap *Snapshot) ([]demand.Need, error) {
	targets := snap.Week.Targets
	from, to := targets[0], targets[len(targets)-1]

	locationDemand, err := l.store.GetLocationDemand(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get location demand: %w", err)
	}
	sessions, err := l.store.GetSurgicalSessions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get surgical sessions: %w", err)
	}
	sessionTypeRoles, err := l.store.GetSessionTypeRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get session type roles: %w", err)
	}

	in := demand.Input{
		SessionTypeRoles: sessionTypeRoles,
		Locations:        snap.Locations,
		Doctors:          snap.Doctors,
		Roles:            snap.Roles,
	}
	for _, row := range locationDemand {
		if snap.Week.IsTarget(row.Date) {
			in.LocationDemand = append(in.LocationDemand, row)
		}
	}
	for _, session := range sessions {
		if snap.Week.IsTarget(session.Date) {
			in.Sessions = append(in.Sessions, session)
		}
	}

	needs, err := l.calculator.Calculate(in)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate demand: %w", err)
	}
	return needs, nil
}

func (l *Loader) distributeSlots(snap *Snapshot, slots []model.Slot) {
	weekStart := snap.Week.Key()

	for _, slot := range slots {
		if _, ok := snap.Staff[slot.StaffID]; !ok {
			continue
		}
		if !slot.Period.IsHalfDay() {
			l.logger.Warn("Ignoring slot with invalid period",
				zap.String("slot_id", slot.ID), zap.String("period", string(slot.Period)))
			continue
		}

		switch {
		case slot.Date < weekStart:
			snap.PreviousWeekSlots = append(snap.PreviousWeekSlots, slot)
		case !snap.Week.IsTarget(slot.Date):
			snap.WeekSlots = append(snap.WeekSlots, slot)
		default:
			days := snap.Availability[slot.StaffID]
			if days == nil {
				days = make(map[string]*Day)
				snap.Availability[slot.StaffID] = days
			}
			day := days[slot.Date]
			if day == nil {
				day = &Day{}
				days[slot.Date] = day
			}

			half := &HalfDay{Slot: slot}
			if slot.Period == model.PeriodMorning {
				if day.Morning != nil {
					l.logger.Warn("Duplicate morning slot, keeping the first",
						zap.String("staff_id", slot.StaffID), zap.String("date", slot.Date), zap.String("slot_id", slot.ID))
					continue
				}
				day.Morning = half
			} else {
				if day.Afternoon != nil {
					l.logger.Warn("Duplicate afternoon slot, keeping the first",
						zap.String("staff_id", slot.StaffID), zap.String("date", slot.Date), zap.String("slot_id", slot.ID))
					continue
				}
				day.Afternoon = half
			}
		}
	}
}

// fillSyntheticAdmin gives every half-available staff-day a uniform two-slot view:
// the missing half becomes an administrative placeholder without capacity
func fillSyntheticAdmin(snap *Snapshot) int {
	injected := 0
	for staffID, days := range snap.Availability {
		for date, day := range days {
			if day.Morning == nil {
				day.Morning = &HalfDay{
					Slot:      model.Slot{StaffID: staffID, Date: date, Period: model.PeriodMorning},
					Synthetic: true,
				}
				injected++
			}
			if day.Afternoon == nil {
				day.Afternoon = &HalfDay{
					Slot:      model.Slot{StaffID: staffID, Date: date, Period: model.PeriodAfternoon},
					Synthetic: true,
				}
				injected++
			}
		}
	}
	return injected
}
