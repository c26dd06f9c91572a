// Package dbtest provides an in-memory db.Database for tests
package dbtest

import (
	"context"
	"sort"
	"sync"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// MemStore implements db.Database in memory. Set the exported fields directly to
// seed data; the Err fields make the corresponding calls fail.
type MemStore struct {
	mu sync.Mutex

	Staff               []model.Staff
	Doctors             []model.Doctor
	Locations           []model.Location
	Roles               []model.SurgicalRole
	RolePreferences     []model.RolePreference
	DoctorPreferences   []model.DoctorPreference
	LocationPreferences []model.LocationPreference
	LocationDemand      []model.LocationDemand
	Sessions            []model.SurgicalSession
	SessionTypeRoles    []model.SessionTypeRole
	Slots               []model.Slot
	Drafts              []db.DraftSlot

	GetStaffErr     error
	GetSlotsErr     error
	ApplyUpdatesErr error
	ReplaceErr      error

	// AppliedBatches records every batch passed to ApplySlotUpdates
	AppliedBatches [][]db.SlotUpdate
	// ReplacedDates records the dates of every ReplaceDrafts call
	ReplacedDates [][]string
}

var _ db.Database = (*MemStore)(nil)

func (m *MemStore) GetActiveStaff(ctx context.Context) ([]model.Staff, error) {
	if m.GetStaffErr != nil {
		return nil, m.GetStaffErr
	}
	var result []model.Staff
	for _, s := range m.Staff {
		if s.Active {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MemStore) GetActiveDoctors(ctx context.Context) ([]model.Doctor, error) {
	var result []model.Doctor
	for _, d := range m.Doctors {
		if d.Active {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *MemStore) GetActiveLocations(ctx context.Context) ([]model.Location, error) {
	var result []model.Location
	for _, loc := range m.Locations {
		if loc.Active {
			result = append(result, loc)
		}
	}
	return result, nil
}

func (m *MemStore) GetActiveSurgicalRoles(ctx context.Context) ([]model.SurgicalRole, error) {
	var result []model.SurgicalRole
	for _, r := range m.Roles {
		if r.Active {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MemStore) GetRolePreferences(ctx context.Context) ([]model.RolePreference, error) {
	return m.RolePreferences, nil
}

func (m *MemStore) GetDoctorPreferences(ctx context.Context) ([]model.DoctorPreference, error) {
	return m.DoctorPreferences, nil
}

func (m *MemStore) GetLocationPreferences(ctx context.Context) ([]model.LocationPreference, error) {
	return m.LocationPreferences, nil
}

func (m *MemStore) GetLocationDemand(ctx context.Context, from, to string) ([]model.LocationDemand, error) {
	var result []model.LocationDemand
	for _, row := range m.LocationDemand {
		if row.Date >= from && row.Date <= to {
			result = append(result, row)
		}
	}
	return result, nil
}

func (m *MemStore) GetSurgicalSessions(ctx context.Context, from, to string) ([]model.SurgicalSession, error) {
	var result []model.SurgicalSession
	for _, s := range m.Sessions {
		if s.Date >= from && s.Date <= to {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MemStore) GetSessionTypeRoles(ctx context.Context) ([]model.SessionTypeRole, error) {
	return m.SessionTypeRoles, nil
}

func (m *MemStore) GetSlots(ctx context.Context, from, to string) ([]model.Slot, error) {
	if m.GetSlotsErr != nil {
		return nil, m.GetSlotsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.Slot
	for _, s := range m.Slots {
		if s.Date >= from && s.Date <= to {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MemStore) ApplySlotUpdates(ctx context.Context, updates []db.SlotUpdate) (int, error) {
	if m.ApplyUpdatesErr != nil {
		return 0, m.ApplyUpdatesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppliedBatches = append(m.AppliedBatches, updates)

	index := make(map[string]int, len(m.Slots))
	for i, s := range m.Slots {
		index[s.ID] = i
	}

	updated := 0
	for _, u := range updates {
		i, ok := index[u.SlotID]
		if !ok {
			continue
		}
		m.Slots[i] = u.Apply(m.Slots[i])
		updated++
	}
	return updated, nil
}

func (m *MemStore) ReplaceDrafts(ctx context.Context, dates []string, drafts []db.DraftSlot) error {
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReplacedDates = append(m.ReplacedDates, dates)

	remove := make(map[string]bool, len(dates))
	for _, d := range dates {
		remove[d] = true
	}
	kept := m.Drafts[:0]
	for _, d := range m.Drafts {
		if !remove[d.Date] {
			kept = append(kept, d)
		}
	}
	m.Drafts = append(kept, drafts...)
	return nil
}

func (m *MemStore) GetDrafts(ctx context.Context, date string) ([]db.DraftSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []db.DraftSlot
	for _, d := range m.Drafts {
		if d.Date == date {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotID < result[j].SlotID })
	return result, nil
}

// SlotsOn returns a copy of the slots of one date
func (m *MemStore) SlotsOn(date string) []model.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []model.Slot
	for _, s := range m.Slots {
		if s.Date == date {
			result = append(result, s)
		}
	}
	return result
}
