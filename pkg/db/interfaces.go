package db

import (
	"context"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// PlannerReader defines the read operations the optimization pipeline needs.
// Date ranges are inclusive and use model.DateLayout.
type PlannerReader interface {
	GetActiveStaff(ctx context.Context) ([]model.Staff, error)
	GetActiveDoctors(ctx context.Context) ([]model.Doctor, error)
	GetActiveLocations(ctx context.Context) ([]model.Location, error)
	GetActiveSurgicalRoles(ctx context.Context) ([]model.SurgicalRole, error)
	GetRolePreferences(ctx context.Context) ([]model.RolePreference, error)
	GetDoctorPreferences(ctx context.Context) ([]model.DoctorPreference, error)
	GetLocationPreferences(ctx context.Context) ([]model.LocationPreference, error)
	GetLocationDemand(ctx context.Context, from, to string) ([]model.LocationDemand, error)
	GetSurgicalSessions(ctx context.Context, from, to string) ([]model.SurgicalSession, error)
	GetSessionTypeRoles(ctx context.Context) ([]model.SessionTypeRole, error)
	GetSlots(ctx context.Context, from, to string) ([]model.Slot, error)
}

// SlotWriter applies optimization results to slot records
type SlotWriter interface {
	// ApplySlotUpdates writes each update independently and returns the number of
	// slots actually updated. Updates for unknown slot ids are not an error.
	ApplySlotUpdates(ctx context.Context, updates []SlotUpdate) (int, error)
}

// DraftStore stages proposed slot changes for manual review
type DraftStore interface {
	// ReplaceDrafts deletes every draft of the given dates, then inserts drafts
	ReplaceDrafts(ctx context.Context, dates []string, drafts []DraftSlot) error
	GetDrafts(ctx context.Context, date string) ([]DraftSlot, error)
}

// Database defines the interface for all database operations.
// postgres.DB implements this interface.
type Database interface {
	PlannerReader
	SlotWriter
	DraftStore
}
