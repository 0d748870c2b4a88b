package repo

import (
	"context"
	"database/sql"
	"strings"

	"baseline/internal/domain"
)

const artifactCols = `id,project_id,type,title,COALESCE(content,''),content_structured,version,parent_id,root_id,
is_current,is_baseline,approval_status,approved_by,approved_at,rejected_by,rejected_at,rejection_reason,
COALESCE(revision_type,''),author_id,created_at,updated_at,deleted_at`

func scanArtifact(scan func(dest ...any) error) (domain.Artifact, error) {
	var a domain.Artifact
	var contentStructured, parentID, approvedBy, approvedAt, rejectedBy, rejectedAt, rejectionReason, deletedAt sql.NullString
	var isCurrent, isBaseline int
	err := scan(&a.ID, &a.ProjectID, &a.Type, &a.Title, &a.Content, &contentStructured, &a.Version, &parentID, &a.RootID,
		&isCurrent, &isBaseline, &a.ApprovalStatus, &approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &rejectionReason,
		&a.RevisionType, &a.AuthorID, &a.CreatedAt, &a.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.IsCurrent = isCurrent == 1
	a.IsBaseline = isBaseline == 1
	if contentStructured.Valid {
		a.ContentStructured = &contentStructured.String
	}
	if parentID.Valid {
		a.ParentID = &parentID.String
	}
	if approvedBy.Valid {
		a.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		a.ApprovedAt = &approvedAt.String
	}
	if rejectedBy.Valid {
		a.RejectedBy = &rejectedBy.String
	}
	if rejectedAt.Valid {
		a.RejectedAt = &rejectedAt.String
	}
	if rejectionReason.Valid {
		a.RejectionReason = &rejectionReason.String
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.String
	}
	return a, nil
}

func (r Repo) InsertArtifact(ctx context.Context, tx *sql.Tx, a domain.Artifact) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO artifacts(id,project_id,type,title,content,content_structured,version,parent_id,root_id,
is_current,is_baseline,approval_status,approved_by,approved_at,rejected_by,rejected_at,rejection_reason,revision_type,
author_id,created_at,updated_at,deleted_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, string(a.Type), a.Title, nullable(a.Content), nullableStringPtr(a.ContentStructured),
		a.Version, nullableStringPtr(a.ParentID), a.RootID,
		boolToInt(a.IsCurrent), boolToInt(a.IsBaseline), string(a.ApprovalStatus),
		nullableStringPtr(a.ApprovedBy), nullableStringPtr(a.ApprovedAt),
		nullableStringPtr(a.RejectedBy), nullableStringPtr(a.RejectedAt), nullableStringPtr(a.RejectionReason),
		nullable(a.RevisionType), a.AuthorID, a.CreatedAt, a.UpdatedAt, nullableStringPtr(a.DeletedAt))
	return err
}

func (r Repo) UpdateArtifact(ctx context.Context, tx *sql.Tx, a domain.Artifact) error {
	res, err := tx.ExecContext(ctx, `UPDATE artifacts SET title=?, content=?, content_structured=?, is_current=?, is_baseline=?,
approval_status=?, approved_by=?, approved_at=?, rejected_by=?, rejected_at=?, rejection_reason=?, updated_at=?, deleted_at=?
WHERE id=?`,
		a.Title, nullable(a.Content), nullableStringPtr(a.ContentStructured),
		boolToInt(a.IsCurrent), boolToInt(a.IsBaseline), string(a.ApprovalStatus),
		nullableStringPtr(a.ApprovedBy), nullableStringPtr(a.ApprovedAt),
		nullableStringPtr(a.RejectedBy), nullableStringPtr(a.RejectedAt), nullableStringPtr(a.RejectionReason),
		a.UpdatedAt, nullableStringPtr(a.DeletedAt), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE id=?`, id)
	return scanArtifact(row.Scan)
}

// CurrentArtifactTx returns the current version for a (project, type) pair
// inside the caller's transaction, or ErrNotFound when none exists.
func (r Repo) CurrentArtifactTx(ctx context.Context, tx *sql.Tx, projectID string, typ domain.ArtifactType) (domain.Artifact, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+artifactCols+` FROM artifacts
WHERE project_id=? AND type=? AND is_current=1 AND deleted_at IS NULL`, projectID, string(typ))
	return scanArtifact(row.Scan)
}

// DemoteCurrentTx clears the current flag on whichever version holds it for
// the (project, type) pair. Zero rows affected is fine: first version.
func (r Repo) DemoteCurrentTx(ctx context.Context, tx *sql.Tx, projectID string, typ domain.ArtifactType, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE artifacts SET is_current=0, updated_at=?
WHERE project_id=? AND type=? AND is_current=1 AND deleted_at IS NULL`, now, projectID, string(typ))
	return err
}

// PromoteTx marks one version current.
func (r Repo) PromoteTx(ctx context.Context, tx *sql.Tx, artifactID, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE artifacts SET is_current=1, updated_at=? WHERE id=? AND deleted_at IS NULL`, now, artifactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxChainVersionTx returns the highest version number in a root chain.
func (r Repo) MaxChainVersionTx(ctx context.Context, tx *sql.Tx, rootID string) (int, error) {
	var v int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0) FROM artifacts WHERE root_id=?`, rootID).Scan(&v)
	return v, err
}

type ArtifactFilters struct {
	ProjectID       string
	Type            string
	Status          string
	CurrentOnly     bool
	IncludeDeleted  bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListArtifacts(ctx context.Context, f ArtifactFilters) ([]domain.Artifact, error) {
	clauses := []string{"project_id=?"}
	args := []any{f.ProjectID}
	if !f.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "approval_status=?")
		args = append(args, f.Status)
	}
	if f.CurrentOnly {
		clauses = append(clauses, "is_current=1")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + artifactCols + ` FROM artifacts WHERE ` + strings.Join(clauses, " AND ") +
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
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ChainVersions returns every version sharing a root, oldest first.
func (r Repo) ChainVersions(ctx context.Context, rootID string) ([]domain.Artifact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+artifactCols+` FROM artifacts WHERE root_id=? ORDER BY version ASC`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountCurrent counts non-deleted current rows for a (project, type) pair.
func (r Repo) CountCurrent(ctx context.Context, projectID string, typ domain.ArtifactType) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM artifacts WHERE project_id=? AND type=? AND is_current=1 AND deleted_at IS NULL`,
		projectID, string(typ)).Scan(&n)
	return n, err
}
