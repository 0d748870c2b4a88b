package engine_test

import (
	"errors"
	"testing"

	"baseline/internal/config"
	"baseline/internal/domain"
	"baseline/internal/engine"
)

func TestApprovalHappyPath(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)

	a, err := env.Engine.Submit(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if a.ApprovalStatus != domain.StatusSubmitted || !a.IsLocked() {
		t.Fatalf("after submit = %s locked=%v", a.ApprovalStatus, a.IsLocked())
	}

	a, err = env.Engine.Approve(env.Ctx, a.ID, "lead")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if a.ApprovalStatus != domain.StatusApproved || !a.IsBaseline {
		t.Fatalf("after approve = %s baseline=%v", a.ApprovalStatus, a.IsBaseline)
	}
	if a.ApprovedBy == nil || *a.ApprovedBy != "lead" || a.ApprovedAt == nil {
		t.Fatalf("approver stamp = %v / %v", a.ApprovedBy, a.ApprovedAt)
	}
}

func TestSelfApprovalForbidden(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Approve(env.Ctx, a.ID, "tester")
	var perm engine.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("self-approve: %v, want PermissionError", err)
	}
	cur, _ := env.Engine.Repo.GetArtifact(env.Ctx, a.ID)
	if cur.ApprovalStatus != domain.StatusSubmitted {
		t.Fatalf("status changed to %s", cur.ApprovalStatus)
	}
}

func TestApproveRequiresApproverStanding(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GrantMember(env.Ctx, "proj-1", "tester", "editor2", domain.RoleEditor, false); err != nil {
		t.Fatal(err)
	}
	a := env.createCharter(t)
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Approve(env.Ctx, a.ID, "editor2")
	var perm engine.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("non-approver approve: %v, want PermissionError", err)
	}
}

func TestRequestChangesUnlocksForEditing(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	_, err := env.Engine.RequestChanges(env.Ctx, a.ID, "lead", "")
	var v engine.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("empty reason: %v, want ValidationError", err)
	}

	a, err = env.Engine.RequestChanges(env.Ctx, a.ID, "lead", "needs a budget section")
	if err != nil {
		t.Fatalf("request changes: %v", err)
	}
	if a.ApprovalStatus != domain.StatusChangesRequested || a.IsLocked() {
		t.Fatalf("after request-changes = %s locked=%v", a.ApprovalStatus, a.IsLocked())
	}

	body := "now with a budget section"
	if _, err := env.Engine.UpdateContent(env.Ctx, a.ID, "tester", engine.ContentPatch{Content: &body}); err != nil {
		t.Fatalf("edit after unlock: %v", err)
	}
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestRejectFinalDemandsConfirmationPhrase(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	_, err := env.Engine.RejectFinal(env.Ctx, a.ID, "lead", "wrong direction", "reject")
	var v engine.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("weak confirmation: %v, want ValidationError", err)
	}

	a, err = env.Engine.RejectFinal(env.Ctx, a.ID, "lead", "wrong direction", config.DefaultRejectionConfirmation)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.ApprovalStatus != domain.StatusRejected {
		t.Fatalf("status = %s", a.ApprovalStatus)
	}
	if a.RejectedBy == nil || *a.RejectedBy != "lead" || a.RejectionReason == nil {
		t.Fatalf("rejection stamp = %v / %v", a.RejectedBy, a.RejectionReason)
	}

	// terminal for the version, not the document
	_, err = env.Engine.Submit(env.Ctx, a.ID, "tester")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("resubmit rejected: %v, want StateError", err)
	}
	v2, err := env.Engine.CreateRevision(env.Ctx, a.ID, "tester", "second attempt")
	if err != nil {
		t.Fatalf("revise rejected: %v", err)
	}
	if v2.Version != 2 || v2.ApprovalStatus != domain.StatusDraft {
		t.Fatalf("v2 = %+v", v2)
	}
}

func TestApprovalOnlyTouchesCurrentVersion(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	if _, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "charter", Title: "Charter v2", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Submit(env.Ctx, v1.ID, "tester")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("submit demoted version: %v, want StateError", err)
	}
}

func TestApproveDraftIsIllegal(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	_, err := env.Engine.Approve(env.Ctx, a.ID, "lead")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("approve draft: %v, want StateError", err)
	}
}
