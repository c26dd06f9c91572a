package model

import "strings"

// DateLayout is the layout used for every date string handled by the planner
const DateLayout = "2006-01-02"

// Period identifies a half-day
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"

	// PeriodFullDay is only valid on raw demand rows; it contributes to both halves
	PeriodFullDay Period = "day"
)

// Periods lists the two half-days in calendar order
var Periods = []Period{PeriodMorning, PeriodAfternoon}

func (p Period) IsHalfDay() bool {
	return p == PeriodMorning || p == PeriodAfternoon
}

// ClosingRole marks a staff member responsible for end-of-day coverage at a closing site
type ClosingRole string

const (
	ClosingNone ClosingRole = ""

	// ClosingPrimary is the primary closer
	ClosingPrimary ClosingRole = "primary"

	// ClosingSecondary covers the secondary/tertiary closing duty
	ClosingSecondary ClosingRole = "secondary"
)

// Staff represents a staff member that can be assigned to half-day slots
type Staff struct {
	ID        string
	FirstName string
	LastName  string
	Active    bool

	// AdminHalfDayTarget is the number of administrative half-days this staff member
	// should receive per week. Zero means no explicit target.
	AdminHalfDayTarget int
}

// DisplayName returns the name shown in previews and logs
func (s Staff) DisplayName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Doctor represents a doctor whose consultations or sessions generate staffing demand
type Doctor struct {
	ID        string
	FirstName string
	LastName  string
	Active    bool
}

// Location represents a physical site (consultation site, the surgical block, ...)
type Location struct {
	ID     string
	Name   string
	Active bool
}

// SurgicalRole represents an operation role (e.g. instrumentist, circulating nurse)
type SurgicalRole struct {
	ID     string
	Name   string
	Active bool
}

// RolePreference links a staff member to a surgical role they are competent for.
// Rank 1 is the most preferred (1-3).
type RolePreference struct {
	StaffID string
	RoleID  string
	Rank    int
}

// DoctorPreference links a staff member to a doctor they prefer working with (rank 1-2)
type DoctorPreference struct {
	StaffID  string
	DoctorID string
	Rank     int
}

// LocationPreference links a staff member to a site they can work at (rank 1-4)
type LocationPreference struct {
	StaffID    string
	LocationID string
	Rank       int
}

// LocationDemand is a raw per-doctor staffing requirement at a location
type LocationDemand struct {
	LocationID string
	DoctorID   string
	Date       string
	Period     Period

	// Coefficient is the number of staff this doctor's activity requires.
	// Nil means the configured default applies.
	Coefficient *float64
}

// SurgicalSession is a scheduled operating session in the surgical block
type SurgicalSession struct {
	ID            string
	Date          string
	Period        Period
	SessionTypeID string
	LocationID    string
	RoomID        string
	DoctorID      string
}

// SessionTypeRole is the required headcount of a role for a session type
type SessionTypeRole struct {
	SessionTypeID string
	RoleID        string
	Count         int
}

// Slot is a half-day placeholder for a staff member. Its existence means the staff
// member is available for that half-day; its assignment fields hold the current
// schedule (no location means administrative).
type Slot struct {
	ID          string
	StaffID     string
	Date        string
	Period      Period
	LocationID  string
	SessionID   string
	RoleID      string
	ClosingRole ClosingRole
}

// IsAdministrative returns true if the slot currently holds no site assignment
func (s Slot) IsAdministrative() bool {
	return s.LocationID == "" && s.SessionID == ""
}
