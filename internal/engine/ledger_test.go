package engine_test

import (
	"errors"
	"sync"
	"testing"

	"baseline/internal/domain"
	"baseline/internal/engine"
	"baseline/internal/repo"
)

func TestCreateStartsChainAtVersionOne(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	if a.Version != 1 || !a.IsCurrent || a.ApprovalStatus != domain.StatusDraft {
		t.Fatalf("v1 = %+v", a)
	}
	if a.RootID != a.ID || a.ParentID != nil {
		t.Fatalf("chain = root %s parent %v", a.RootID, a.ParentID)
	}
}

func TestCreateDemotesPriorCurrent(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	v2, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "charter", Title: "Charter v2", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create v2: %v", err)
	}
	if v2.Version != 2 || v2.RootID != v1.RootID || v2.ParentID == nil || *v2.ParentID != v1.ID {
		t.Fatalf("v2 = %+v", v2)
	}
	old, err := env.Engine.Repo.GetArtifact(env.Ctx, v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.IsCurrent {
		t.Fatalf("v1 still current")
	}
	n, err := env.Engine.Repo.CountCurrent(env.Ctx, "proj-1", domain.TypeCharter)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("current rows = %d, want 1", n)
	}
}

func TestConcurrentCreateKeepsSingleCurrent(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
				ProjectID: "proj-1", Type: "budget", Title: "Budget", ActorID: "tester",
			})
		}(i)
	}
	wg.Wait()
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var conflict engine.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded == 0 {
		t.Fatalf("both creates failed: %v / %v", errs[0], errs[1])
	}
	n, err := env.Engine.Repo.CountCurrent(env.Ctx, "proj-1", domain.TypeBudget)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("current rows = %d, want exactly 1", n)
	}
}

func approveCurrent(t *testing.T, env testEnv, id string) domain.Artifact {
	t.Helper()
	if _, err := env.Engine.Submit(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	a, err := env.Engine.Approve(env.Ctx, id, "lead")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return a
}

func TestRevisionContinuesChain(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)

	// drafts cannot be revised, only edited
	_, err := env.Engine.CreateRevision(env.Ctx, v1.ID, "tester", "")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("revise draft: %v, want StateError", err)
	}

	approveCurrent(t, env, v1.ID)
	v2, err := env.Engine.CreateRevision(env.Ctx, v1.ID, "tester", "annual refresh")
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if v2.Version != 2 || !v2.IsCurrent || v2.ApprovalStatus != domain.StatusDraft {
		t.Fatalf("v2 = %+v", v2)
	}
	if v2.Content != v1.Content || v2.Title != v1.Title {
		t.Fatalf("revision did not carry content forward")
	}
	old, _ := env.Engine.Repo.GetArtifact(env.Ctx, v1.ID)
	if old.IsCurrent || !old.IsBaseline {
		t.Fatalf("demoted v1 = current %v baseline %v", old.IsCurrent, old.IsBaseline)
	}
}

func TestVersionNumbersNeverReused(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	approveCurrent(t, env, v1.ID)
	v2, err := env.Engine.CreateRevision(env.Ctx, v1.ID, "tester", "")
	if err != nil {
		t.Fatal(err)
	}
	approveCurrent(t, env, v2.ID)
	v3, err := env.Engine.CreateRevision(env.Ctx, v2.ID, "tester", "")
	if err != nil {
		t.Fatal(err)
	}
	if v3.Version != 3 {
		t.Fatalf("version = %d, want 3", v3.Version)
	}
	history, err := env.Engine.VersionHistory(env.Ctx, v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d versions", len(history))
	}
	for i, a := range history {
		if a.Version != i+1 {
			t.Fatalf("history[%d].Version = %d", i, a.Version)
		}
	}
}

func TestRestoreRoundTripsContent(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	approveCurrent(t, env, v1.ID)
	v2, err := env.Engine.CreateRevision(env.Ctx, v1.ID, "tester", "")
	if err != nil {
		t.Fatal(err)
	}
	newBody := "rewritten from scratch"
	if _, err := env.Engine.UpdateContent(env.Ctx, v2.ID, "tester", engine.ContentPatch{Content: &newBody}); err != nil {
		t.Fatalf("update: %v", err)
	}
	approveCurrent(t, env, v2.ID)
	v3, err := env.Engine.RestoreVersion(env.Ctx, v1.ID, "tester", "roll back")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if v3.Content != v1.Content || v3.Title != v1.Title {
		t.Fatalf("restored content = %q, want %q", v3.Content, v1.Content)
	}
	if v3.Version != 3 || v3.RevisionType != engine.RevisionTypeRestore {
		t.Fatalf("v3 = %+v", v3)
	}
}

func TestSetCurrentMovesPointer(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	v2, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "charter", Title: "Charter v2", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetCurrent(env.Ctx, v1.ID, "tester"); err != nil {
		t.Fatalf("set-current: %v", err)
	}
	a, _ := env.Engine.Repo.GetArtifact(env.Ctx, v1.ID)
	b, _ := env.Engine.Repo.GetArtifact(env.Ctx, v2.ID)
	if !a.IsCurrent || b.IsCurrent {
		t.Fatalf("pointer at v1=%v v2=%v", a.IsCurrent, b.IsCurrent)
	}
}

func TestSetCurrentOnCurrentIsSilentNoop(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	before, err := env.Engine.Repo.CountAuditEvents(env.Ctx, "artifact", v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetCurrent(env.Ctx, v1.ID, "tester"); err != nil {
		t.Fatalf("noop set-current: %v", err)
	}
	after, err := env.Engine.Repo.CountAuditEvents(env.Ctx, "artifact", v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("audit rows grew %d -> %d on a no-op", before, after)
	}
}

func TestSetCurrentRefusesDecidedVersions(t *testing.T) {
	env := newTestEnv(t)
	v1 := env.createCharter(t)
	approveCurrent(t, env, v1.ID)
	v2, err := env.Engine.CreateRevision(env.Ctx, v1.ID, "tester", "")
	if err != nil {
		t.Fatal(err)
	}
	err = env.Engine.SetCurrent(env.Ctx, v1.ID, "tester")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("set-current on approved: %v, want StateError", err)
	}
	cur, _ := env.Engine.Repo.GetArtifact(env.Ctx, v2.ID)
	if !cur.IsCurrent {
		t.Fatalf("pointer moved off v2")
	}
}

func TestUpdateContentBlockedWhileLocked(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	if _, err := env.Engine.Submit(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	title := "sneaky edit"
	_, err := env.Engine.UpdateContent(env.Ctx, a.ID, "tester", engine.ContentPatch{Title: &title})
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("edit while submitted: %v, want StateError", err)
	}
}

func TestSoftDeleteOnlyDrafts(t *testing.T) {
	env := newTestEnv(t)
	a := env.createCharter(t)
	approveCurrent(t, env, a.ID)
	err := env.Engine.SoftDeleteArtifact(env.Ctx, a.ID, "tester")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("delete approved: %v, want StateError", err)
	}

	b, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactOptions{
		ProjectID: "proj-1", Type: "wbs", Title: "WBS", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SoftDeleteArtifact(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := env.Engine.Submit(env.Ctx, b.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("submit deleted: %v, want not found", err)
	}
}
