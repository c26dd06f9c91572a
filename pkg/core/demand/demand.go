package demand

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// ErrMissingCoefficient is returned when a location demand row has no coefficient
// and the calculator has no default
var ErrMissingCoefficient = errors.New("demand row has no coefficient and no default is configured")

// ceilTolerance absorbs float noise from summing coefficients (5 x 1.2 must give 6, not 7)
const ceilTolerance = 1e-9

// Kind distinguishes location needs from surgical-role needs
type Kind int

const (
	KindLocation Kind = iota
	KindSurgicalRole
)

func (k Kind) String() string {
	if k == KindSurgicalRole {
		return "surgical_role"
	}
	return "location"
}

// Need is a staffing requirement for one half-day
type Need struct {
	LocationID    string
	Date          string
	Period        model.Period
	RequiredCount int
	DoctorIDs     []string
	Kind          Kind

	// Set for surgical-role needs only
	SessionID string
	RoleID    string
	RoomID    string
}

// Key returns the identity of the need within an optimization run
func (n Need) Key() string {
	if n.Kind == KindSurgicalRole {
		return fmt.Sprintf("S|%s|%s", n.SessionID, n.RoleID)
	}
	return fmt.Sprintf("L|%s|%s|%s", n.LocationID, n.Date, n.Period)
}

// Input holds the raw demand rows and the active reference data used to filter them
type Input struct {
	LocationDemand   []model.LocationDemand
	Sessions         []model.SurgicalSession
	SessionTypeRoles []model.SessionTypeRole

	// Active reference data keyed by ID; rows referencing anything absent are stale
	Locations map[string]model.Location
	Doctors   map[string]model.Doctor
	Roles     map[string]model.SurgicalRole
}

// Calculator turns raw demand rows into Need records
type Calculator struct {
	defaultCoefficient *float64
	surgicalBlockNames []string
	logger             *zap.Logger
}

// NewCalculator creates a calculator. A nil defaultCoefficient makes rows without
// a coefficient an error.
func NewCalculator(defaultCoefficient *float64, surgicalBlockNames []string, logger *zap.Logger) *Calculator {
	return &Calculator{
		defaultCoefficient: defaultCoefficient,
		surgicalBlockNames: surgicalBlockNames,
		logger:             logger,
	}
}

// Calculate returns the location needs followed by the surgical-role needs, sorted
// by date and period
func (c *Calculator) Calculate(in Input) ([]Need, error) {
	locationNeeds, err := c.LocationNeeds(in)
	if err != nil {
		return nil, err
	}

	needs := append(locationNeeds, c.SurgicalNeeds(in)...)
	sortNeeds(needs)
	return needs, nil
}

type groupKey struct {
	locationID string
	date       string
	period     model.Period
}

type group struct {
	total     float64
	doctorIDs []string
}

// LocationNeeds groups demand rows by (location, date, period), sums the
// coefficients and rounds the total up
func (c *Calculator) LocationNeeds(in Input) ([]Need, error) {
	groups := make(map[groupKey]*group)
	var order []groupKey

	for _, row := range in.LocationDemand {
		location, ok := in.Locations[row.LocationID]
		if !ok {
			c.logger.Debug("Skipping demand row for inactive location",
				zap.String("location_id", row.LocationID), zap.String("date", row.Date))
			continue
		}
		if c.isSurgicalBlock(location) {
			continue
		}
		if _, ok := in.Doctors[row.DoctorID]; !ok {
			c.logger.Debug("Skipping demand row for inactive doctor",
				zap.String("doctor_id", row.DoctorID), zap.String("date", row.Date))
			continue
		}

		coefficient, err := c.coefficient(row)
		if err != nil {
			return nil, err
		}

		periods := []model.Period{row.Period}
		if row.Period == model.PeriodFullDay {
			periods = model.Periods
		} else if !row.Period.IsHalfDay() {
			return nil, fmt.Errorf("demand row for location %s on %s has invalid period %q", row.LocationID, row.Date, row.Period)
		}

		for _, period := range periods {
			key := groupKey{locationID: row.LocationID, date: row.Date, period: period}
			g, exists := groups[key]
			if !exists {
				g = &group{}
				groups[key] = g
				order = append(order, key)
			}
			g.total += coefficient
			if !containsString(g.doctorIDs, row.DoctorID) {
				g.doctorIDs = append(g.doctorIDs, row.DoctorID)
			}
		}
	}

	needs := make([]Need, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		required := RequiredCount(g.total)
		if required == 0 {
			continue
		}
		needs = append(needs, Need{
			LocationID:    key.locationID,
			Date:          key.date,
			Period:        key.period,
			RequiredCount: required,
			DoctorIDs:     g.doctorIDs,
			Kind:          KindLocation,
		})
	}

	return needs, nil
}

// SurgicalNeeds creates one need per (session, required role)
func (c *Calculator) SurgicalNeeds(in Input) []Need {
	rolesByType := make(map[string][]model.SessionTypeRole)
	for _, r := range in.SessionTypeRoles {
		rolesByType[r.SessionTypeID] = append(rolesByType[r.SessionTypeID], r)
	}

	var needs []Need
	for _, session := range in.Sessions {
		if _, ok := in.Locations[session.LocationID]; !ok {
			c.logger.Debug("Skipping session at inactive location",
				zap.String("session_id", session.ID), zap.String("location_id", session.LocationID))
			continue
		}
		var doctorIDs []string
		if session.DoctorID != "" {
			if _, ok := in.Doctors[session.DoctorID]; !ok {
				c.logger.Debug("Skipping session for inactive doctor",
					zap.String("session_id", session.ID), zap.String("doctor_id", session.DoctorID))
				continue
			}
			doctorIDs = []string{session.DoctorID}
		}
		if !session.Period.IsHalfDay() {
			c.logger.Debug("Skipping session with invalid period",
				zap.String("session_id", session.ID), zap.String("period", string(session.Period)))
			continue
		}

		for _, required := range rolesByType[session.SessionTypeID] {
			if _, ok := in.Roles[required.RoleID]; !ok {
				c.logger.Debug("Skipping inactive surgical role",
					zap.String("session_id", session.ID), zap.String("role_id", required.RoleID))
				continue
			}
			if required.Count <= 0 {
				continue
			}
			needs = append(needs, Need{
				LocationID:    session.LocationID,
				Date:          session.Date,
				Period:        session.Period,
				RequiredCount: required.Count,
				DoctorIDs:     doctorIDs,
				Kind:          KindSurgicalRole,
				SessionID:     session.ID,
				RoleID:        required.RoleID,
				RoomID:        session.RoomID,
			})
		}
	}

	return needs
}

// RequiredCount rounds a summed coefficient up to a headcount
func RequiredCount(total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(total - ceilTolerance))
}

func (c *Calculator) coefficient(row model.LocationDemand) (float64, error) {
	if row.Coefficient != nil {
		return *row.Coefficient, nil
	}
	if c.defaultCoefficient == nil {
		return 0, fmt.Errorf("location %s, doctor %s, %s %s: %w", row.LocationID, row.DoctorID, row.Date, row.Period, ErrMissingCoefficient)
	}
	return *c.defaultCoefficient, nil
}

func (c *Calculator) isSurgicalBlock(location model.Location) bool {
	for _, name := range c.surgicalBlockNames {
		if strings.EqualFold(strings.TrimSpace(location.Name), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// ForDate returns the needs of a single date
func ForDate(needs []Need, date string) []Need {
	var result []Need
	for _, n := range needs {
		if n.Date == date {
			result = append(result, n)
		}
	}
	return result
}

func sortNeeds(needs []Need) {
	sort.SliceStable(needs, func(i, j int) bool {
		a, b := needs[i], needs[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Period != b.Period {
			return a.Period == model.PeriodMorning
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.LocationID != b.LocationID {
			return a.LocationID < b.LocationID
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		return a.RoleID < b.RoleID
	})
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
