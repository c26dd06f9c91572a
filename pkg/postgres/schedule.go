package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

// dateText renders a DATE column in model.DateLayout
func dateText(column string) exp.AliasedExpression {
	return goqu.Cast(goqu.C(column), "TEXT").As(column)
}

func inRange(column, from, to string) exp.RangeExpression {
	return goqu.C(column).Between(goqu.Range(from, to))
}

func locationDemandQuery(from, to string) *goqu.SelectDataset {
	return dialect.From("location_demand").
		Select("location_id", "doctor_id", dateText("date"), "period", "coefficient").
		Where(inRange("date", from, to)).
		Order(goqu.C("date").Asc(), goqu.C("location_id").Asc(), goqu.C("id").Asc()).
		Prepared(true)
}

func surgicalSessionsQuery(from, to string) *goqu.SelectDataset {
	return dialect.From("surgical_session").
		Select("id", dateText("date"), "period", "session_type_id", "location_id",
			goqu.COALESCE(goqu.C("room_id"), "").As("room_id"),
			goqu.COALESCE(goqu.C("doctor_id"), "").As("doctor_id")).
		Where(inRange("date", from, to)).
		Order(goqu.C("date").Asc(), goqu.C("id").Asc()).
		Prepared(true)
}

func sessionTypeRolesQuery() *goqu.SelectDataset {
	return dialect.From("session_type_role").
		Select("session_type_id", "role_id", "count").
		Order(goqu.C("session_type_id").Asc(), goqu.C("role_id").Asc()).
		Prepared(true)
}

func slotsQuery(from, to string) *goqu.SelectDataset {
	return dialect.From("slot").
		Select("id", "staff_id", dateText("date"), "period",
			goqu.COALESCE(goqu.C("location_id"), "").As("location_id"),
			goqu.COALESCE(goqu.C("session_id"), "").As("session_id"),
			goqu.COALESCE(goqu.C("role_id"), "").As("role_id"),
			goqu.COALESCE(goqu.C("closing_role"), "").As("closing_role")).
		Where(inRange("date", from, to)).
		Order(goqu.C("date").Asc(), goqu.C("staff_id").Asc(), goqu.C("period").Desc()).
		Prepared(true)
}

// slotUpdateStatement overwrites the assignment columns of one slot. Nil fields
// become NULL.
func slotUpdateStatement(u db.SlotUpdate) *goqu.UpdateDataset {
	var closingRole interface{}
	if u.ClosingRole != nil && *u.ClosingRole != model.ClosingNone {
		closingRole = string(*u.ClosingRole)
	}
	return dialect.Update("slot").
		Set(goqu.Record{
			"location_id":  nullable(u.LocationID),
			"session_id":   nullable(u.SessionID),
			"role_id":      nullable(u.RoleID),
			"closing_role": closingRole,
		}).
		Where(goqu.C("id").Eq(u.SlotID)).
		Prepared(true)
}

func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// GetLocationDemand retrieves doctor presence rows between two dates inclusive
func (d *DB) GetLocationDemand(ctx context.Context, from, to string) ([]model.LocationDemand, error) {
	rows, err := query(ctx, d.pool, locationDemandQuery(from, to))
	if err != nil {
		return nil, fmt.Errorf("failed to query location demand: %w", err)
	}
	defer rows.Close()

	var demand []model.LocationDemand
	for rows.Next() {
		var row model.LocationDemand
		var period string
		if err := rows.Scan(&row.LocationID, &row.DoctorID, &row.Date, &period, &row.Coefficient); err != nil {
			return nil, fmt.Errorf("failed to scan location demand: %w", err)
		}
		row.Period = model.Period(period)
		demand = append(demand, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location demand: %w", err)
	}

	return demand, nil
}

// GetSurgicalSessions retrieves surgical sessions between two dates inclusive
func (d *DB) GetSurgicalSessions(ctx context.Context, from, to string) ([]model.SurgicalSession, error) {
	rows, err := query(ctx, d.pool, surgicalSessionsQuery(from, to))
	if err != nil {
		return nil, fmt.Errorf("failed to query surgical sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.SurgicalSession
	for rows.Next() {
		var s model.SurgicalSession
		var period string
		if err := rows.Scan(&s.ID, &s.Date, &period, &s.SessionTypeID, &s.LocationID, &s.RoomID, &s.DoctorID); err != nil {
			return nil, fmt.Errorf("failed to scan surgical session: %w", err)
		}
		s.Period = model.Period(period)
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating surgical sessions: %w", err)
	}

	return sessions, nil
}

// GetSessionTypeRoles retrieves the role headcount of every session type
func (d *DB) GetSessionTypeRoles(ctx context.Context) ([]model.SessionTypeRole, error) {
	rows, err := query(ctx, d.pool, sessionTypeRolesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query session type roles: %w", err)
	}
	defer rows.Close()

	var roles []model.SessionTypeRole
	for rows.Next() {
		var r model.SessionTypeRole
		if err := rows.Scan(&r.SessionTypeID, &r.RoleID, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan session type role: %w", err)
		}
		roles = append(roles, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session type roles: %w", err)
	}

	return roles, nil
}

// GetSlots retrieves slots between two dates inclusive
func (d *DB) GetSlots(ctx context.Context, from, to string) ([]model.Slot, error) {
	rows, err := query(ctx, d.pool, slotsQuery(from, to))
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var s model.Slot
		var period, closingRole string
		if err := rows.Scan(&s.ID, &s.StaffID, &s.Date, &period, &s.LocationID, &s.SessionID, &s.RoleID, &closingRole); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		s.Period = model.Period(period)
		s.ClosingRole = model.ClosingRole(closingRole)
		slots = append(slots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}

	return slots, nil
}

// ApplySlotUpdates writes every update in one transaction and returns the number
// of slots that exist and were updated
func (d *DB) ApplySlotUpdates(ctx context.Context, updates []db.SlotUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	updated := 0
	for _, u := range updates {
		sql, args, err := slotUpdateStatement(u).ToSQL()
		if err != nil {
			return 0, fmt.Errorf("failed to build update for slot %s: %w", u.SlotID, err)
		}
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to update slot %s: %w", u.SlotID, err)
		}
		updated += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, nil
}
