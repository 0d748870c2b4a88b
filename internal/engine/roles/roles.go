package roles

import (
	"context"
	"database/sql"
	"errors"

	"baseline/internal/domain"
)

// Gate resolves an actor's standing within a project. The engine only ever
// asks these two questions; richer membership management lives in the repo.
type Gate interface {
	ResolveRole(ctx context.Context, projectID, actorID string) (domain.Role, error)
	IsApprover(ctx context.Context, projectID, actorID string) (bool, error)
}

// ErrNotMember is returned when the actor has no membership in the project.
var ErrNotMember = errors.New("actor is not a project member")

// Service is the SQL-backed Gate over the members table.
type Service struct {
	DB *sql.DB
}

func (s Service) ResolveRole(ctx context.Context, projectID, actorID string) (domain.Role, error) {
	var role string
	err := s.DB.QueryRowContext(ctx,
		`SELECT role FROM members WHERE project_id=? AND actor_id=?`, projectID, actorID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotMember
	}
	if err != nil {
		return "", err
	}
	return domain.Role(role), nil
}

func (s Service) IsApprover(ctx context.Context, projectID, actorID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT is_approver FROM members WHERE project_id=? AND actor_id=?`, projectID, actorID).Scan(&n)
	if err == sql.ErrNoRows {
		return false, ErrNotMember
	}
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CanEdit reports whether a role may modify project content.
func CanEdit(r domain.Role) bool {
	return r == domain.RoleOwner || r == domain.RoleEditor
}
