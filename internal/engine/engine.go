package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"baseline/internal/audit"
	"baseline/internal/config"
	"baseline/internal/domain"
	"baseline/internal/engine/roles"
	"baseline/internal/repo"
)

// Engine owns the artifact version ledger, the approval state machine and
// the change-request lane engine. Every public operation is one synchronous
// transaction: commit or full rollback, with a best-effort audit row.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Recorder
	Roles  roles.Gate
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Recorder{},
		Roles:  roles.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// requireEditor resolves the actor's role and rejects viewers.
func (e Engine) requireEditor(ctx context.Context, projectID, actorID string) error {
	if actorID == "" {
		return ValidationError{Field: "actor_id", Reason: "required"}
	}
	role, err := e.Roles.ResolveRole(ctx, projectID, actorID)
	if err != nil {
		if errors.Is(err, roles.ErrNotMember) {
			return PermissionError{Reason: "not a project member"}
		}
		return err
	}
	if !roles.CanEdit(role) {
		return PermissionError{Reason: fmt.Sprintf("role %s may not modify project content", role)}
	}
	return nil
}

// requireApprover rejects actors without approver standing, and always
// rejects self-approval.
func (e Engine) requireApprover(ctx context.Context, projectID, actorID, authorID string) error {
	if actorID == "" {
		return ValidationError{Field: "actor_id", Reason: "required"}
	}
	ok, err := e.Roles.IsApprover(ctx, projectID, actorID)
	if err != nil {
		if errors.Is(err, roles.ErrNotMember) {
			return PermissionError{Reason: "not a project member"}
		}
		return err
	}
	if !ok {
		return PermissionError{Reason: "approver standing required"}
	}
	if authorID != "" && actorID == authorID {
		return PermissionError{Reason: "authors may not approve their own submission"}
	}
	return nil
}

// InitProject creates a project with its seed config and makes the creating
// actor its owner and first approver.
func (e Engine) InitProject(ctx context.Context, projectID, name, description, actorID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, ValidationError{Field: "id", Reason: "required"}
	}
	if actorID == "" {
		return domain.Project{}, ValidationError{Field: "actor_id", Reason: "required"}
	}
	if name == "" {
		name = projectID
	}
	now := e.nowStr()
	p := domain.Project{
		ID:          projectID,
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID)); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	owner := domain.Member{
		ProjectID:  p.ID,
		ActorID:    actorID,
		Role:       domain.RoleOwner,
		IsApprover: true,
		CreatedAt:  now,
	}
	if err := e.Repo.UpsertMember(ctx, tx, owner); err != nil {
		return domain.Project{}, fmt.Errorf("seed owner: %w", err)
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  p.ID,
		EntityKind: "project",
		EntityID:   p.ID,
		ActorID:    actorID,
		Action:     "project.init",
		ToStatus:   p.Status,
	})
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// GrantMember assigns or updates a member's role and approver standing.
// Only project owners may manage membership.
func (e Engine) GrantMember(ctx context.Context, projectID, actorID, targetID string, role domain.Role, approver bool) (domain.Member, error) {
	if targetID == "" {
		return domain.Member{}, ValidationError{Field: "actor_id", Reason: "required"}
	}
	if _, ok := domain.ValidRole(string(role)); !ok {
		return domain.Member{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	callerRole, err := e.Roles.ResolveRole(ctx, projectID, actorID)
	if err != nil {
		if errors.Is(err, roles.ErrNotMember) {
			return domain.Member{}, PermissionError{Reason: "not a project member"}
		}
		return domain.Member{}, err
	}
	if callerRole != domain.RoleOwner {
		return domain.Member{}, PermissionError{Reason: "only owners manage membership"}
	}
	m := domain.Member{
		ProjectID:  projectID,
		ActorID:    targetID,
		Role:       role,
		IsApprover: approver,
		CreatedAt:  e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Member{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
		return domain.Member{}, err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  projectID,
		EntityKind: "member",
		EntityID:   targetID,
		ActorID:    actorID,
		Action:     "member.granted",
		ToStatus:   string(role),
		Meta:       map[string]any{"is_approver": approver},
	})
	if err := tx.Commit(); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

// RemoveMember drops a member from the project. Only owners may do this,
// and an owner may not remove themselves.
func (e Engine) RemoveMember(ctx context.Context, projectID, actorID, targetID string) error {
	if targetID == "" {
		return ValidationError{Field: "actor_id", Reason: "required"}
	}
	callerRole, err := e.Roles.ResolveRole(ctx, projectID, actorID)
	if err != nil {
		if errors.Is(err, roles.ErrNotMember) {
			return PermissionError{Reason: "not a project member"}
		}
		return err
	}
	if callerRole != domain.RoleOwner {
		return PermissionError{Reason: "only owners manage membership"}
	}
	if actorID == targetID {
		return StateError{Op: "remove member", Reason: "owners may not remove themselves"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RemoveMemberTx(ctx, tx, projectID, targetID); err != nil {
		return err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  projectID,
		EntityKind: "member",
		EntityID:   targetID,
		ActorID:    actorID,
		Action:     "member.removed",
	})
	return tx.Commit()
}

// loadProjectConfig fetches the stored config for a project, falling back
// to the engine default when the row is missing.
func (e Engine) loadProjectConfig(ctx context.Context, projectID string) *config.Config {
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return e.Config
		}
		return config.Default(projectID)
	}
	return cfg
}
