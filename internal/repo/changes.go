package repo

import (
	"context"
	"database/sql"
	"strings"

	"baseline/internal/domain"
)

const changeCols = `id,project_id,artifact_id,title,COALESCE(summary,''),priority,impact_days,impact_cost,
COALESCE(impact_risk,''),delivery_lane,decision_status,requester_name,created_at,updated_at,deleted_at`

func scanChange(scan func(dest ...any) error) (domain.ChangeRequest, error) {
	var c domain.ChangeRequest
	var artifactID, deletedAt sql.NullString
	err := scan(&c.ID, &c.ProjectID, &artifactID, &c.Title, &c.Summary, &c.Priority,
		&c.Impact.Days, &c.Impact.Cost, &c.Impact.Risk,
		&c.DeliveryLane, &c.DecisionStatus, &c.RequesterName, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if artifactID.Valid {
		c.ArtifactID = &artifactID.String
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.String
	}
	return c, nil
}

func (r Repo) InsertChange(ctx context.Context, tx *sql.Tx, c domain.ChangeRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO change_requests(id,project_id,artifact_id,title,summary,priority,
impact_days,impact_cost,impact_risk,delivery_lane,decision_status,requester_name,created_at,updated_at,deleted_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, nullableStringPtr(c.ArtifactID), c.Title, nullable(c.Summary), string(c.Priority),
		c.Impact.Days, c.Impact.Cost, nullable(c.Impact.Risk),
		string(c.DeliveryLane), string(c.DecisionStatus), c.RequesterName, c.CreatedAt, c.UpdatedAt,
		nullableStringPtr(c.DeletedAt))
	return err
}

func (r Repo) UpdateChange(ctx context.Context, tx *sql.Tx, c domain.ChangeRequest) error {
	res, err := tx.ExecContext(ctx, `UPDATE change_requests SET title=?, summary=?, priority=?, impact_days=?, impact_cost=?,
impact_risk=?, delivery_lane=?, decision_status=?, updated_at=?, deleted_at=? WHERE id=?`,
		c.Title, nullable(c.Summary), string(c.Priority), c.Impact.Days, c.Impact.Cost, nullable(c.Impact.Risk),
		string(c.DeliveryLane), string(c.DecisionStatus), c.UpdatedAt, nullableStringPtr(c.DeletedAt), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetChange(ctx context.Context, id string) (domain.ChangeRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+changeCols+` FROM change_requests WHERE id=?`, id)
	return scanChange(row.Scan)
}

type ChangeFilters struct {
	ProjectID       string
	Lane            string
	Decision        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListChanges(ctx context.Context, f ChangeFilters) ([]domain.ChangeRequest, error) {
	clauses := []string{"project_id=?", "deleted_at IS NULL"}
	args := []any{f.ProjectID}
	if f.Lane != "" {
		clauses = append(clauses, "delivery_lane=?")
		args = append(args, f.Lane)
	}
	if f.Decision != "" {
		clauses = append(clauses, "decision_status=?")
		args = append(args, f.Decision)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + changeCols + ` FROM change_requests WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChangeRequest
	for rows.Next() {
		c, err := scanChange(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CountLaneTx counts live cards in a lane inside the caller's transaction.
func (r Repo) CountLaneTx(ctx context.Context, tx *sql.Tx, projectID string, lane domain.DeliveryLane) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_requests WHERE project_id=? AND delivery_lane=? AND deleted_at IS NULL`,
		projectID, string(lane)).Scan(&n)
	return n, err
}
