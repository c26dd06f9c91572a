package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/jakechorley/clinic-planner/pkg/core/model"
	"github.com/jakechorley/clinic-planner/pkg/db"
)

func deleteDraftsStatement(dates []string) *goqu.DeleteDataset {
	return dialect.Delete("slot_draft").
		Where(goqu.C("date").In(dates)).
		Prepared(true)
}

func insertDraftsStatement(drafts []db.DraftSlot) *goqu.InsertDataset {
	rows := make([]interface{}, len(drafts))
	for i, d := range drafts {
		var closingRole interface{}
		if d.ClosingRole != model.ClosingNone {
			closingRole = string(d.ClosingRole)
		}
		rows[i] = goqu.Record{
			"id":           d.ID,
			"date":         d.Date,
			"slot_id":      d.SlotID,
			"staff_id":     d.StaffID,
			"period":       string(d.Period),
			"location_id":  nullable(db.StringPtr(d.LocationID)),
			"session_id":   nullable(db.StringPtr(d.SessionID)),
			"role_id":      nullable(db.StringPtr(d.RoleID)),
			"closing_role": closingRole,
			"created_at":   d.CreatedAt,
		}
	}
	return dialect.Insert("slot_draft").Rows(rows...).Prepared(true)
}

func draftsQuery(date string) *goqu.SelectDataset {
	return dialect.From("slot_draft").
		Select(goqu.Cast(goqu.C("id"), "TEXT").As("id"), dateText("date"), "slot_id", "staff_id", "period",
			goqu.COALESCE(goqu.C("location_id"), "").As("location_id"),
			goqu.COALESCE(goqu.C("session_id"), "").As("session_id"),
			goqu.COALESCE(goqu.C("role_id"), "").As("role_id"),
			goqu.COALESCE(goqu.C("closing_role"), "").As("closing_role"),
			"created_at").
		Where(goqu.C("date").Eq(date)).
		Order(goqu.C("slot_id").Asc()).
		Prepared(true)
}

// ReplaceDrafts deletes the drafts of the given dates and inserts the new ones in
// a single transaction
func (d *DB) ReplaceDrafts(ctx context.Context, dates []string, drafts []db.DraftSlot) error {
	if len(dates) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := deleteDraftsStatement(dates).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build draft delete: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete drafts: %w", err)
	}

	if len(drafts) > 0 {
		sql, args, err := insertDraftsStatement(drafts).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build draft insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert drafts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetDrafts retrieves the drafts staged for a date ordered by slot id
func (d *DB) GetDrafts(ctx context.Context, date string) ([]db.DraftSlot, error) {
	rows, err := query(ctx, d.pool, draftsQuery(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []db.DraftSlot
	for rows.Next() {
		var draft db.DraftSlot
		var period, closingRole string
		if err := rows.Scan(&draft.ID, &draft.Date, &draft.SlotID, &draft.StaffID, &period,
			&draft.LocationID, &draft.SessionID, &draft.RoleID, &closingRole, &draft.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		draft.Period = model.Period(period)
		draft.ClosingRole = model.ClosingRole(closingRole)
		drafts = append(drafts, draft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}

	return drafts, nil
}
