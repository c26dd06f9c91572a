package scoring

import (
	"math"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// dateSet is a set of dates
type dateSet map[string]bool

// FairnessState is an immutable snapshot of what each staff member already did this
// week. Every With* method returns a new snapshot and leaves the receiver untouched.
type FairnessState struct {
	adminHalfDays map[string]int
	locationDates map[string]map[string]dateSet
	closingDates  map[string]map[model.ClosingRole]dateSet
	escalation    map[string]float64
}

// NewFairnessState returns an empty snapshot
func NewFairnessState() FairnessState {
	return FairnessState{
		adminHalfDays: make(map[string]int),
		locationDates: make(map[string]map[string]dateSet),
		closingDates:  make(map[string]map[model.ClosingRole]dateSet),
		escalation:    make(map[string]float64),
	}
}

// WithSlots returns a snapshot that also counts the given slots
func (s FairnessState) WithSlots(slots []model.Slot) FairnessState {
	next := s.clone()
	for _, slot := range slots {
		if slot.IsAdministrative() {
			next.adminHalfDays[slot.StaffID]++
		} else if slot.LocationID != "" {
			byLocation := next.locationDates[slot.StaffID]
			if byLocation == nil {
				byLocation = make(map[string]dateSet)
				next.locationDates[slot.StaffID] = byLocation
			}
			if byLocation[slot.LocationID] == nil {
				byLocation[slot.LocationID] = make(dateSet)
			}
			byLocation[slot.LocationID][slot.Date] = true
		}

		if slot.ClosingRole != model.ClosingNone {
			byRole := next.closingDates[slot.StaffID]
			if byRole == nil {
				byRole = make(map[model.ClosingRole]dateSet)
				next.closingDates[slot.StaffID] = byRole
			}
			if byRole[slot.ClosingRole] == nil {
				byRole[slot.ClosingRole] = make(dateSet)
			}
			byRole[slot.ClosingRole][slot.Date] = true
		}
	}
	return next
}

// WithEscalation returns a snapshot carrying a per-staff escalation factor derived
// from how many distinct days of the previous week each staff member spent at a
// low-preference site
func (s FairnessState) WithEscalation(previousWeek []model.Slot, locationRanks map[string]map[string]int, cfg config.OverloadConfig) FairnessState {
	lowPreferenceDays := make(map[string]dateSet)
	for _, slot := range previousWeek {
		if slot.LocationID == "" {
			continue
		}
		rank, ok := locationRanks[slot.StaffID][slot.LocationID]
		if !ok || rank < cfg.LowPreferenceRank {
			continue
		}
		if lowPreferenceDays[slot.StaffID] == nil {
			lowPreferenceDays[slot.StaffID] = make(dateSet)
		}
		lowPreferenceDays[slot.StaffID][slot.Date] = true
	}

	next := s.clone()
	for staffID, days := range lowPreferenceDays {
		next.escalation[staffID] = EscalationFactor(len(days), cfg)
	}
	return next
}

// EscalationFactor is 1 plus one step per previous-week day at or beyond the
// threshold, capped at the configured maximum
func EscalationFactor(days int, cfg config.OverloadConfig) float64 {
	over := days - cfg.DistinctDayThreshold + 1
	if over <= 0 {
		return 1
	}
	return math.Min(1+cfg.EscalationStep*float64(over), cfg.MaxEscalation)
}

// AdminHalfDays returns the administrative half-days already used this week
func (s FairnessState) AdminHalfDays(staffID string) int {
	return s.adminHalfDays[staffID]
}

// LocationDays returns the number of distinct days the staff member worked at the location
func (s FairnessState) LocationDays(staffID, locationID string) int {
	return len(s.locationDates[staffID][locationID])
}

// ClusterDays returns the number of distinct days the staff member worked at any of the locations
func (s FairnessState) ClusterDays(staffID string, locationIDs []string) int {
	days := make(dateSet)
	for _, id := range locationIDs {
		for date := range s.locationDates[staffID][id] {
			days[date] = true
		}
	}
	return len(days)
}

// ClosingDays returns the number of days the staff member held the closing role
func (s FairnessState) ClosingDays(staffID string, role model.ClosingRole) int {
	return len(s.closingDates[staffID][role])
}

// Escalation returns the historical escalation factor (1 when none applies)
func (s FairnessState) Escalation(staffID string) float64 {
	if f, ok := s.escalation[staffID]; ok {
		return f
	}
	return 1
}

func (s FairnessState) clone() FairnessState {
	next := NewFairnessState()
	for k, v := range s.adminHalfDays {
		next.adminHalfDays[k] = v
	}
	for staffID, byLocation := range s.locationDates {
		copied := make(map[string]dateSet, len(byLocation))
		for loc, dates := range byLocation {
			copied[loc] = dates.clone()
		}
		next.locationDates[staffID] = copied
	}
	for staffID, byRole := range s.closingDates {
		copied := make(map[model.ClosingRole]dateSet, len(byRole))
		for role, dates := range byRole {
			copied[role] = dates.clone()
		}
		next.closingDates[staffID] = copied
	}
	for k, v := range s.escalation {
		next.escalation[k] = v
	}
	return next
}

func (d dateSet) clone() dateSet {
	copied := make(dateSet, len(d))
	for k := range d {
		copied[k] = true
	}
	return copied
}
