package repo

import (
	"context"
	"database/sql"
	"strings"

	"baseline/internal/domain"
)

type AuditFilters struct {
	ProjectID  string
	EntityKind string
	EntityID   string
	Action     string
	Limit      int
	Cursor     int64
}

// LatestAuditEvents returns audit rows newest-first with optional filters
// and an id-based cursor.
func (r Repo) LatestAuditEvents(ctx context.Context, f AuditFilters) ([]domain.AuditEvent, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	query := `SELECT id,ts,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,action,
COALESCE(from_status,''),COALESCE(to_status,''),from_current,to_current,COALESCE(meta_json,'')
FROM audit_events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var fromCur, toCur sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TS, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Action,
			&e.FromStatus, &e.ToStatus, &fromCur, &toCur, &e.Meta); err != nil {
			return nil, err
		}
		if fromCur.Valid {
			b := fromCur.Int64 == 1
			e.FromCurrent = &b
		}
		if toCur.Valid {
			b := toCur.Int64 == 1
			e.ToCurrent = &b
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountAuditEvents counts rows for an entity, used by idempotence checks.
func (r Repo) CountAuditEvents(ctx context.Context, entityKind, entityID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE entity_kind=? AND entity_id=?`, entityKind, entityID).Scan(&n)
	return n, err
}
