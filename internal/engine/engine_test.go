package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"baseline/internal/config"
	"baseline/internal/db"
	"baseline/internal/domain"
	"baseline/internal/engine"
	"baseline/internal/migrate"
	"baseline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// newTestEnv brings up a migrated workspace with project proj-1 owned by
// "tester" (an approver) and "lead" granted editor+approver standing, so
// tests can exercise both sides of the self-approval rule.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitProject(ctx, "proj-1", "test", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	if _, err := eng.GrantMember(ctx, "proj-1", "tester", "lead", domain.RoleEditor, true); err != nil {
		t.Fatalf("grant lead: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createCharter(t *testing.T) domain.Artifact {
	t.Helper()
	a, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1",
		Type:      "charter",
		Title:     "Project charter",
		Content:   "scope and goals",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create charter: %v", err)
	}
	return a
}

func TestInitProjectSeedsOwnerAndConfig(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.Repo.GetMember(env.Ctx, "proj-1", "tester")
	if err != nil {
		t.Fatalf("owner member: %v", err)
	}
	if m.Role != domain.RoleOwner || !m.IsApprover {
		t.Fatalf("owner = %+v, want owner/approver", m)
	}
	cfg, err := env.Engine.Repo.GetProjectConfig(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Workflow.RejectionConfirmation != config.DefaultRejectionConfirmation {
		t.Fatalf("confirmation = %q", cfg.Workflow.RejectionConfirmation)
	}
}

func TestGrantMemberRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GrantMember(env.Ctx, "proj-1", "lead", "someone", domain.RoleViewer, false)
	var perm engine.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("grant by editor: %v, want PermissionError", err)
	}
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.RemoveMember(env.Ctx, "proj-1", "lead", "tester"); err == nil {
		t.Fatal("remove by editor succeeded")
	}
	var state engine.StateError
	if err := env.Engine.RemoveMember(env.Ctx, "proj-1", "tester", "tester"); !errors.As(err, &state) {
		t.Fatalf("self remove: %v, want StateError", err)
	}
	if err := env.Engine.RemoveMember(env.Ctx, "proj-1", "tester", "lead"); err != nil {
		t.Fatalf("remove lead: %v", err)
	}
	if _, err := env.Engine.Repo.GetMember(env.Ctx, "proj-1", "lead"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("lead after remove: %v, want ErrNotFound", err)
	}
}

func TestViewerCannotWrite(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GrantMember(env.Ctx, "proj-1", "tester", "watcher", domain.RoleViewer, false); err != nil {
		t.Fatalf("grant viewer: %v", err)
	}
	_, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "charter", Title: "nope", ActorID: "watcher",
	})
	var perm engine.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("viewer create: %v, want PermissionError", err)
	}
}

func TestUnknownArtifactTypeRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "memo", Title: "x", ActorID: "tester",
	})
	var v engine.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("unknown type: %v, want ValidationError", err)
	}
	// legacy alias maps onto the closed enum
	a, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "Risk Register", Title: "risks", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("alias type: %v", err)
	}
	if a.Type != domain.TypeRiskRegister {
		t.Fatalf("type = %s, want %s", a.Type, domain.TypeRiskRegister)
	}
}

func TestAuditTrailRecordsTransitions(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	events, err := env.Engine.Repo.LatestAuditEvents(env.Ctx, repo.AuditFilters{
		ProjectID: "proj-1", EntityKind: "artifact", EntityID: a.ID,
	})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	// newest first
	if events[0].Action != "artifact.submitted" || events[1].Action != "artifact.created" {
		t.Fatalf("actions = %s, %s", events[0].Action, events[1].Action)
	}
	if events[0].FromStatus != "draft" || events[0].ToStatus != "submitted" {
		t.Fatalf("submit event = %+v", events[0])
	}
}
