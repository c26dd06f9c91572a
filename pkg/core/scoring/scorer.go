package scoring

import (
	"math"

	"github.com/jakechorley/clinic-planner/internal/config"
	"github.com/jakechorley/clinic-planner/pkg/core/candidates"
	"github.com/jakechorley/clinic-planner/pkg/core/combos"
	"github.com/jakechorley/clinic-planner/pkg/core/demand"
	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// Scorer computes the additive score of a combo
type Scorer struct {
	cfg          config.ScoringConfig
	targetBonus  float64
	preview      bool
	highFriction map[string]bool
}

// NewScorer creates a scorer for the given mode. Preview scorers add the retention
// bonus for halves that keep their current assignment.
func NewScorer(cfg config.ScoringConfig, mode string, preview bool) *Scorer {
	targetBonus := cfg.Admin.DailyTargetBonus
	if mode == config.ModeWeekly {
		targetBonus = cfg.Admin.WeeklyTargetBonus
	}

	highFriction := make(map[string]bool, len(cfg.SiteChange.HighFrictionLocations))
	for _, id := range cfg.SiteChange.HighFrictionLocations {
		highFriction[id] = true
	}

	return &Scorer{
		cfg:          cfg,
		targetBonus:  targetBonus,
		preview:      preview,
		highFriction: highFriction,
	}
}

// ScoreAll returns copies of the combos with their score set
func (s *Scorer) ScoreAll(snap *candidates.Snapshot, cs []combos.Combo, state FairnessState) []combos.Combo {
	scored := make([]combos.Combo, len(cs))
	for i, c := range cs {
		c.Score = s.Score(snap, c, state)
		scored[i] = c
	}
	return scored
}

// Score returns morning + afternoon components, minus the site change penalty,
// plus the retention bonus in preview mode
func (s *Scorer) Score(snap *candidates.Snapshot, c combos.Combo, state FairnessState) float64 {
	staff := snap.Staff[c.Key.StaffID]
	adminUsed := state.AdminHalfDays(staff.ID)

	total := 0.0
	for _, period := range model.Periods {
		need := c.Need(period)
		if need == nil {
			// The morning admin half counts before the afternoon one
			total += s.AdminBonus(staff, adminUsed)
			adminUsed++
			continue
		}
		total += s.PreferenceScore(snap, staff.ID, need)
		total -= s.OverloadPenalty(snap, staff.ID, need, state)
	}

	total -= s.SiteChangePenalty(c.MorningNeed, c.AfternoonNeed)

	if s.preview {
		total += s.RetentionBonus(snap, c)
	}

	return total
}

// PreferenceScore is the best of the role, doctor and location preference scores
// matching the need. Preferences are not summed.
func (s *Scorer) PreferenceScore(snap *candidates.Snapshot, staffID string, need *demand.Need) float64 {
	best := 0.0

	if need.Kind == demand.KindSurgicalRole {
		if rank, ok := snap.RolePreferences[staffID][need.RoleID]; ok {
			best = math.Max(best, s.cfg.RolePreferenceScores[rank])
		}
	}

	for _, doctorID := range need.DoctorIDs {
		if rank, ok := snap.DoctorPreferences[staffID][doctorID]; ok {
			best = math.Max(best, s.cfg.DoctorPreferenceScores[rank])
		}
	}

	if rank, ok := snap.LocationPreferences[staffID][need.LocationID]; ok {
		best = math.Max(best, s.cfg.LocationPreferenceScores[rank])
	}

	return best
}

// AdminBonus is the bonus of one more administrative half-day given how many were
// already used this week. With a target, the full bonus applies while below it and
// a token bonus once it is met; without one the bonus decays by one point per
// half-day used.
func (s *Scorer) AdminBonus(staff model.Staff, used int) float64 {
	if staff.AdminHalfDayTarget > 0 {
		if used < staff.AdminHalfDayTarget {
			return s.targetBonus
		}
		return s.cfg.Admin.AtTargetBonus
	}
	return math.Max(0, s.cfg.Admin.DecayBase-float64(used))
}

// OverloadPenalty penalises a low-preference site already used on at least the
// threshold number of distinct days this week
func (s *Scorer) OverloadPenalty(snap *candidates.Snapshot, staffID string, need *demand.Need, state FairnessState) float64 {
	overload := s.cfg.Overload
	rank, ok := snap.LocationRank(staffID, need.LocationID)
	if !ok || rank < overload.LowPreferenceRank {
		return 0
	}

	days := state.LocationDays(staffID, need.LocationID)
	if days < overload.DistinctDayThreshold {
		return 0
	}

	over := days - overload.DistinctDayThreshold + 1
	return overload.PenaltyUnit * float64(over) * state.Escalation(staffID)
}

// SiteChangePenalty applies when both halves work at different sites
func (s *Scorer) SiteChangePenalty(morning, afternoon *demand.Need) float64 {
	if morning == nil || afternoon == nil || morning.LocationID == afternoon.LocationID {
		return 0
	}
	if s.highFriction[morning.LocationID] || s.highFriction[afternoon.LocationID] {
		return s.cfg.SiteChange.HighFrictionPenalty
	}
	return s.cfg.SiteChange.Penalty
}

// RetentionBonus grants the bonus for each half whose need matches the stored slot
func (s *Scorer) RetentionBonus(snap *candidates.Snapshot, c combos.Combo) float64 {
	day := snap.Day(c.Key.StaffID, c.Key.Date)
	if day == nil {
		return 0
	}

	bonus := 0.0
	for _, period := range model.Periods {
		half := day.Half(period)
		if half == nil || half.Synthetic {
			continue
		}
		if CurrentRef(half.Slot).Matches(c.Ref(period)) {
			bonus += s.cfg.RetentionBonus
		}
	}
	return bonus
}

// CurrentRef returns the need reference a stored slot is currently assigned to
func CurrentRef(slot model.Slot) combos.NeedRef {
	switch {
	case slot.SessionID != "":
		return combos.NeedRef{Kind: combos.RefSurgical, LocationID: slot.LocationID, SessionID: slot.SessionID, RoleID: slot.RoleID}
	case slot.LocationID != "":
		return combos.NeedRef{Kind: combos.RefLocation, LocationID: slot.LocationID}
	default:
		return combos.AdminRef()
	}
}
