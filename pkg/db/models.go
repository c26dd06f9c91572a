package db

import (
	"time"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

// SlotUpdate is the new assignment of one slot. Nil pointers clear the field, so
// an update with every pointer nil turns the slot into administrative time.
type SlotUpdate struct {
	SlotID      string
	LocationID  *string
	SessionID   *string
	RoleID      *string
	ClosingRole *model.ClosingRole
}

// DraftSlot represents a database slot_draft record: a proposed assignment staged
// by a preview run
type DraftSlot struct {
	ID          string
	Date        string
	SlotID      string
	StaffID     string
	Period      model.Period
	LocationID  string
	SessionID   string
	RoleID      string
	ClosingRole model.ClosingRole
	CreatedAt   time.Time
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Apply returns the slot as it would look after the update
func (u SlotUpdate) Apply(slot model.Slot) model.Slot {
	slot.LocationID = deref(u.LocationID)
	slot.SessionID = deref(u.SessionID)
	slot.RoleID = deref(u.RoleID)
	slot.ClosingRole = model.ClosingNone
	if u.ClosingRole != nil {
		slot.ClosingRole = *u.ClosingRole
	}
	return slot
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
