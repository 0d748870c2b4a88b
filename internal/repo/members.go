package repo

import (
	"context"
	"database/sql"

	"baseline/internal/domain"
)

func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return r.DB.ExecContext(ctx, query, args...)
	}
	_, err := exec(`INSERT INTO members(project_id,actor_id,role,is_approver,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(project_id,actor_id) DO UPDATE SET role=excluded.role, is_approver=excluded.is_approver`,
		m.ProjectID, m.ActorID, string(m.Role), boolToInt(m.IsApprover), m.CreatedAt)
	return err
}

func (r Repo) RemoveMemberTx(ctx context.Context, tx *sql.Tx, projectID, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM members WHERE project_id=? AND actor_id=?`, projectID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMember(ctx context.Context, projectID, actorID string) (domain.Member, error) {
	var m domain.Member
	var isApprover int
	err := r.DB.QueryRowContext(ctx,
		`SELECT project_id,actor_id,role,is_approver,created_at FROM members WHERE project_id=? AND actor_id=?`,
		projectID, actorID).
		Scan(&m.ProjectID, &m.ActorID, &m.Role, &isApprover, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	m.IsApprover = isApprover == 1
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT project_id,actor_id,role,is_approver,created_at FROM members WHERE project_id=? ORDER BY actor_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		var isApprover int
		if err := rows.Scan(&m.ProjectID, &m.ActorID, &m.Role, &isApprover, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.IsApprover = isApprover == 1
		res = append(res, m)
	}
	return res, rows.Err()
}
