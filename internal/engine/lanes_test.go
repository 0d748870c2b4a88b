package engine_test

import (
	"errors"
	"strings"
	"testing"

	"baseline/internal/domain"
	"baseline/internal/engine"
)

func (env testEnv) createChange(t *testing.T, title string) domain.ChangeRequest {
	t.Helper()
	c, err := env.Engine.CreateChange(env.Ctx, engine.CreateChangeOptions{
		ProjectID:     "proj-1",
		Title:         title,
		Priority:      "high",
		Impact:        domain.ImpactAnalysis{Days: 3, Cost: 1200, Risk: "low"},
		RequesterName: "Dana",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("create change: %v", err)
	}
	return c
}

func (env testEnv) moveTo(t *testing.T, id string, lane domain.DeliveryLane) domain.ChangeRequest {
	t.Helper()
	c, _, err := env.Engine.PatchDeliveryStatus(env.Ctx, id, "tester", string(lane))
	if err != nil {
		t.Fatalf("move to %s: %v", lane, err)
	}
	return c
}

func TestChangeStartsInIntakeDraft(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChange(t, "Add phase gate")
	if c.DeliveryLane != domain.LaneIntake || c.DecisionStatus != domain.DecisionDraft {
		t.Fatalf("new card = %s/%s", c.DeliveryLane, c.DecisionStatus)
	}
}

func TestLaneAllowTable(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		from, to domain.DeliveryLane
		ok       bool
	}{
		{domain.LaneIntake, domain.LaneAnalysis, true},
		{domain.LaneIntake, domain.LaneInProgress, false},
		{domain.LaneIntake, domain.LaneImplemented, false},
		{domain.LaneIntake, domain.LaneClosed, false},
		{domain.LaneAnalysis, domain.LaneIntake, true},
		{domain.LaneAnalysis, domain.LaneReview, false},
		{domain.LaneAnalysis, domain.LaneImplemented, false},
		{domain.LaneInProgress, domain.LaneImplemented, true},
		{domain.LaneInProgress, domain.LaneIntake, false},
		{domain.LaneImplemented, domain.LaneClosed, true},
		{domain.LaneImplemented, domain.LaneAnalysis, false},
		{domain.LaneClosed, domain.LaneIntake, false},
	}
	for _, tc := range cases {
		c := env.createChange(t, "matrix "+string(tc.from)+" "+string(tc.to))
		env.placeInLane(t, c.ID, tc.from)
		_, _, err := env.Engine.PatchDeliveryStatus(env.Ctx, c.ID, "tester", string(tc.to))
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: %v, want ok", tc.from, tc.to, err)
		}
		if !tc.ok {
			var state engine.StateError
			if !errors.As(err, &state) {
				t.Errorf("%s -> %s: %v, want StateError", tc.from, tc.to, err)
			}
		}
	}
}

// placeInLane walks a fresh card to the target lane through legal moves.
func (env testEnv) placeInLane(t *testing.T, id string, lane domain.DeliveryLane) {
	t.Helper()
	switch lane {
	case domain.LaneIntake:
		return
	case domain.LaneAnalysis:
		env.moveTo(t, id, domain.LaneAnalysis)
		return
	}
	env.moveTo(t, id, domain.LaneAnalysis)
	if _, err := env.Engine.SubmitForApproval(env.Ctx, id, "tester"); err != nil {
		t.Fatalf("submit for approval: %v", err)
	}
	if lane == domain.LaneReview {
		return
	}
	if _, err := env.Engine.DecideChange(env.Ctx, id, "lead", "approve", ""); err != nil {
		t.Fatalf("decide: %v", err)
	}
	env.moveTo(t, id, domain.LaneInProgress)
	if lane == domain.LaneInProgress {
		return
	}
	env.moveTo(t, id, domain.LaneImplemented)
	if lane == domain.LaneImplemented {
		return
	}
	env.moveTo(t, id, domain.LaneClosed)
}

func TestSelfMoveIsNoop(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChange(t, "stay put")
	moved, warnings, err := env.Engine.PatchDeliveryStatus(env.Ctx, c.ID, "tester", "intake")
	if err != nil || len(warnings) != 0 {
		t.Fatalf("self move: %v %v", err, warnings)
	}
	if moved.UpdatedAt != c.UpdatedAt {
		t.Fatalf("self move touched the card")
	}
}

func TestLockedCardCannotMove(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChange(t, "locked card")
	env.placeInLane(t, c.ID, domain.LaneReview)

	_, _, err := env.Engine.PatchDeliveryStatus(env.Ctx, c.ID, "tester", "in_progress")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("drag locked card: %v, want StateError", err)
	}
	cur, _ := env.Engine.Repo.GetChange(env.Ctx, c.ID)
	if cur.DeliveryLane != domain.LaneReview || cur.DecisionStatus != domain.DecisionSubmitted {
		t.Fatalf("card moved: %s/%s", cur.DeliveryLane, cur.DecisionStatus)
	}
}

func TestReviewUnreachableByDirectMove(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChange(t, "no shortcuts")
	env.moveTo(t, c.ID, domain.LaneAnalysis)
	_, _, err := env.Engine.PatchDeliveryStatus(env.Ctx, c.ID, "tester", "review")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("direct move to review: %v, want StateError", err)
	}
}

func TestSubmitForApprovalOnlyFromAnalysis(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChange(t, "too eager")
	_, err := env.Engine.SubmitForApproval(env.Ctx, c.ID, "tester")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("submit from intake: %v, want StateError", err)
	}
}

func TestDecisionPaths(t *testing.T) {
	env := newTestEnv(t)

	approved := env.createChange(t, "approved path")
	env.placeInLane(t, approved.ID, domain.LaneReview)
	c, err := env.Engine.DecideChange(env.Ctx, approved.ID, "lead", "approve", "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if c.DecisionStatus != domain.DecisionApproved || c.DeliveryLane != domain.LaneReview {
		t.Fatalf("approved card = %s/%s", c.DeliveryLane, c.DecisionStatus)
	}
	if _, _, err := env.Engine.PatchDeliveryStatus(env.Ctx, approved.ID, "tester", "in_progress"); err != nil {
		t.Fatalf("move approved to in_progress: %v", err)
	}

	rejected := env.createChange(t, "rejected path")
	env.placeInLane(t, rejected.ID, domain.LaneReview)
	c, err = env.Engine.DecideChange(env.Ctx, rejected.ID, "lead", "reject", "out of scope")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if c.DecisionStatus != domain.DecisionRejected || c.DeliveryLane != domain.LaneClosed {
		t.Fatalf("rejected card = %s/%s", c.DeliveryLane, c.DecisionStatus)
	}

	rework := env.createChange(t, "rework path")
	env.placeInLane(t, rework.ID, domain.LaneReview)
	c, err = env.Engine.DecideChange(env.Ctx, rework.ID, "lead", "rework", "estimate missing")
	if err != nil {
		t.Fatalf("rework: %v", err)
	}
	if c.DecisionStatus != domain.DecisionRework || c.DeliveryLane != domain.LaneAnalysis {
		t.Fatalf("rework card = %s/%s", c.DeliveryLane, c.DecisionStatus)
	}
	// rework cards resubmit
	if _, err := env.Engine.SubmitForApproval(env.Ctx, rework.ID, "tester"); err != nil {
		t.Fatalf("resubmit after rework: %v", err)
	}
}

func TestDecideRequiresApprover(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GrantMember(env.Ctx, "proj-1", "tester", "editor2", domain.RoleEditor, false); err != nil {
		t.Fatal(err)
	}
	c := env.createChange(t, "gatekeeping")
	env.placeInLane(t, c.ID, domain.LaneReview)
	_, err := env.Engine.DecideChange(env.Ctx, c.ID, "editor2", "approve", "")
	var perm engine.PermissionError
	if !errors.As(err, &perm) {
		t.Fatalf("decide by non-approver: %v, want PermissionError", err)
	}
}

func TestDeleteDraftRules(t *testing.T) {
	env := newTestEnv(t)

	c := env.createChange(t, "deletable")
	if err := env.Engine.DeleteDraft(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("delete in intake: %v", err)
	}

	busy := env.createChange(t, "in flight")
	env.placeInLane(t, busy.ID, domain.LaneInProgress)
	err := env.Engine.DeleteDraft(env.Ctx, busy.ID, "tester")
	var state engine.StateError
	if !errors.As(err, &state) {
		t.Fatalf("delete in in_progress: %v, want StateError", err)
	}
	cur, getErr := env.Engine.Repo.GetChange(env.Ctx, busy.ID)
	if getErr != nil || cur.DeletedAt != nil || cur.DeliveryLane != domain.LaneInProgress {
		t.Fatalf("card touched: %+v (%v)", cur, getErr)
	}
}

func TestWIPLimitWarnsWithoutBlocking(t *testing.T) {
	env := newTestEnv(t)
	// default review limit is 3; fill analysis beyond its limit of 5
	var last domain.ChangeRequest
	for i := 0; i < 6; i++ {
		c := env.createChange(t, "load "+strings.Repeat("x", i+1))
		if i < 5 {
			env.moveTo(t, c.ID, domain.LaneAnalysis)
			continue
		}
		last = c
	}
	moved, warnings, err := env.Engine.PatchDeliveryStatus(env.Ctx, last.ID, "tester", "analysis")
	if err != nil {
		t.Fatalf("move over limit: %v", err)
	}
	if moved.DeliveryLane != domain.LaneAnalysis {
		t.Fatalf("move blocked: %s", moved.DeliveryLane)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "WIP") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestBoardGroupsByLane(t *testing.T) {
	env := newTestEnv(t)
	a := env.createChange(t, "one")
	b := env.createChange(t, "two")
	env.moveTo(t, b.ID, domain.LaneAnalysis)

	board, err := env.Engine.Board(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board[domain.LaneIntake]) != 1 || board[domain.LaneIntake][0].ID != a.ID {
		t.Fatalf("intake = %+v", board[domain.LaneIntake])
	}
	if len(board[domain.LaneAnalysis]) != 1 || board[domain.LaneAnalysis][0].ID != b.ID {
		t.Fatalf("analysis = %+v", board[domain.LaneAnalysis])
	}
	if len(board[domain.LaneClosed]) != 0 {
		t.Fatalf("closed = %+v", board[domain.LaneClosed])
	}
}
