package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
)

func activeStaffQuery() *goqu.SelectDataset {
	return dialect.From("staff").
		Select("id", "first_name", "last_name", "active", "admin_half_day_target").
		Where(goqu.C("active").IsTrue()).
		Order(goqu.C("id").Asc()).
		Prepared(true)
}

func activeDoctorsQuery() *goqu.SelectDataset {
	return dialect.From("doctor").
		Select("id", "first_name", "last_name", "active").
		Where(goqu.C("active").IsTrue()).
		Order(goqu.C("id").Asc()).
		Prepared(true)
}

// activeNamedQuery selects id, name and active from a table of named entities
func activeNamedQuery(table string) *goqu.SelectDataset {
	return dialect.From(table).
		Select("id", "name", "active").
		Where(goqu.C("active").IsTrue()).
		Order(goqu.C("id").Asc()).
		Prepared(true)
}

// preferenceQuery selects (staff_id, target, rank) of a preference table
func preferenceQuery(table, targetColumn string) *goqu.SelectDataset {
	return dialect.From(table).
		Select("staff_id", targetColumn, "rank").
		Order(goqu.C("staff_id").Asc(), goqu.C("rank").Asc()).
		Prepared(true)
}

// GetActiveStaff retrieves all active staff members
func (d *DB) GetActiveStaff(ctx context.Context) ([]model.Staff, error) {
	rows, err := query(ctx, d.pool, activeStaffQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var staff []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Active, &s.AdminHalfDayTarget); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		staff = append(staff, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staff: %w", err)
	}

	return staff, nil
}

// GetActiveDoctors retrieves all active doctors
func (d *DB) GetActiveDoctors(ctx context.Context) ([]model.Doctor, error) {
	rows, err := query(ctx, d.pool, activeDoctorsQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query doctors: %w", err)
	}
	defer rows.Close()

	var doctors []model.Doctor
	for rows.Next() {
		var doc model.Doctor
		if err := rows.Scan(&doc.ID, &doc.FirstName, &doc.LastName, &doc.Active); err != nil {
			return nil, fmt.Errorf("failed to scan doctor: %w", err)
		}
		doctors = append(doctors, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating doctors: %w", err)
	}

	return doctors, nil
}

// GetActiveLocations retrieves all active locations
func (d *DB) GetActiveLocations(ctx context.Context) ([]model.Location, error) {
	rows, err := query(ctx, d.pool, activeNamedQuery("location"))
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var loc model.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Active); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}

	return locations, nil
}

// GetActiveSurgicalRoles retrieves all active surgical roles
func (d *DB) GetActiveSurgicalRoles(ctx context.Context) ([]model.SurgicalRole, error) {
	rows, err := query(ctx, d.pool, activeNamedQuery("surgical_role"))
	if err != nil {
		return nil, fmt.Errorf("failed to query surgical roles: %w", err)
	}
	defer rows.Close()

	var roles []model.SurgicalRole
	for rows.Next() {
		var r model.SurgicalRole
		if err := rows.Scan(&r.ID, &r.Name, &r.Active); err != nil {
			return nil, fmt.Errorf("failed to scan surgical role: %w", err)
		}
		roles = append(roles, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating surgical roles: %w", err)
	}

	return roles, nil
}

// GetRolePreferences retrieves every staff surgical role competence
func (d *DB) GetRolePreferences(ctx context.Context) ([]model.RolePreference, error) {
	var prefs []model.RolePreference
	err := d.scanPreferences(ctx, "role_preference", "role_id", func(staffID, targetID string, rank int) {
		prefs = append(prefs, model.RolePreference{StaffID: staffID, RoleID: targetID, Rank: rank})
	})
	return prefs, err
}

// GetDoctorPreferences retrieves every staff doctor preference
func (d *DB) GetDoctorPreferences(ctx context.Context) ([]model.DoctorPreference, error) {
	var prefs []model.DoctorPreference
	err := d.scanPreferences(ctx, "doctor_preference", "doctor_id", func(staffID, targetID string, rank int) {
		prefs = append(prefs, model.DoctorPreference{StaffID: staffID, DoctorID: targetID, Rank: rank})
	})
	return prefs, err
}

// GetLocationPreferences retrieves every staff location preference
func (d *DB) GetLocationPreferences(ctx context.Context) ([]model.LocationPreference, error) {
	var prefs []model.LocationPreference
	err := d.scanPreferences(ctx, "location_preference", "location_id", func(staffID, targetID string, rank int) {
		prefs = append(prefs, model.LocationPreference{StaffID: staffID, LocationID: targetID, Rank: rank})
	})
	return prefs, err
}

func (d *DB) scanPreferences(ctx context.Context, table, targetColumn string, add func(staffID, targetID string, rank int)) error {
	rows, err := query(ctx, d.pool, preferenceQuery(table, targetColumn))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var staffID, targetID string
		var rank int
		if err := rows.Scan(&staffID, &targetID, &rank); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		add(staffID, targetID, rank)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	return nil
}
