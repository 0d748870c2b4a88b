package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"baseline/internal/audit"
	"baseline/internal/config"
	"baseline/internal/domain"
	"baseline/internal/engine/roles"
	"baseline/internal/repo"
)

// ensureApprovalTransition validates a move on the approval state machine.
// Every transition not listed here is refused.
func ensureApprovalTransition(old, new domain.ApprovalStatus) error {
	ok := false
	switch old {
	case domain.StatusDraft:
		ok = new == domain.StatusSubmitted
	case domain.StatusChangesRequested:
		ok = new == domain.StatusSubmitted
	case domain.StatusSubmitted:
		ok = new == domain.StatusApproved || new == domain.StatusRejected || new == domain.StatusChangesRequested
	case domain.StatusApproved, domain.StatusRejected:
		// terminal; new versions continue the chain instead
	}
	if !ok {
		return StateError{Op: "approval", Reason: fmt.Sprintf("cannot move from %s to %s", old, new)}
	}
	return nil
}

// Submit puts the current version up for approval, locking it against
// edits. The version's author may submit regardless of role; anyone else
// needs edit standing.
func (e Engine) Submit(ctx context.Context, artifactID, actorID string) (domain.Artifact, error) {
	a, err := e.currentForApproval(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if actorID == "" {
		return domain.Artifact{}, ValidationError{Field: "actor_id", Reason: "required"}
	}
	if actorID != a.AuthorID {
		role, err := e.Roles.ResolveRole(ctx, a.ProjectID, actorID)
		if err != nil {
			if errors.Is(err, roles.ErrNotMember) {
				return domain.Artifact{}, PermissionError{Reason: "not a project member"}
			}
			return domain.Artifact{}, err
		}
		if !roles.CanEdit(role) {
			return domain.Artifact{}, PermissionError{Reason: "edit standing required to submit"}
		}
	}
	if err := ensureApprovalTransition(a.ApprovalStatus, domain.StatusSubmitted); err != nil {
		return domain.Artifact{}, err
	}
	return e.applyApproval(ctx, a, actorID, domain.StatusSubmitted, "artifact.submitted", nil)
}

// Approve marks the submitted version as the project's baseline for its
// type. Authors cannot approve their own submission.
func (e Engine) Approve(ctx context.Context, artifactID, actorID string) (domain.Artifact, error) {
	a, err := e.currentForApproval(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if err := e.requireApprover(ctx, a.ProjectID, actorID, a.AuthorID); err != nil {
		return domain.Artifact{}, err
	}
	if err := ensureApprovalTransition(a.ApprovalStatus, domain.StatusApproved); err != nil {
		return domain.Artifact{}, err
	}
	now := e.nowStr()
	return e.applyApproval(ctx, a, actorID, domain.StatusApproved, "artifact.approved", func(a *domain.Artifact) {
		a.IsBaseline = true
		a.ApprovedBy = &actorID
		a.ApprovedAt = &now
	})
}

// RequestChanges sends a submitted version back to its author, unlocking
// it for further edits. A reason is mandatory.
func (e Engine) RequestChanges(ctx context.Context, artifactID, actorID, reason string) (domain.Artifact, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Artifact{}, ValidationError{Field: "reason", Reason: "required"}
	}
	a, err := e.currentForApproval(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if err := e.requireApprover(ctx, a.ProjectID, actorID, a.AuthorID); err != nil {
		return domain.Artifact{}, err
	}
	if err := ensureApprovalTransition(a.ApprovalStatus, domain.StatusChangesRequested); err != nil {
		return domain.Artifact{}, err
	}
	r := reason
	return e.applyApproval(ctx, a, actorID, domain.StatusChangesRequested, "artifact.changes_requested", func(a *domain.Artifact) {
		a.RejectionReason = &r
	})
}

// RejectFinal permanently rejects the submitted version. It is a
// deliberate, irreversible act, so the caller must retype the project's
// confirmation phrase along with a reason. Rejected versions stay in the
// ledger; a new revision continues the chain.
func (e Engine) RejectFinal(ctx context.Context, artifactID, actorID, reason, confirmation string) (domain.Artifact, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Artifact{}, ValidationError{Field: "reason", Reason: "required"}
	}
	a, err := e.currentForApproval(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	want := config.DefaultRejectionConfirmation
	if cfg := e.loadProjectConfig(ctx, a.ProjectID); cfg != nil && cfg.Workflow.RejectionConfirmation != "" {
		want = cfg.Workflow.RejectionConfirmation
	}
	if confirmation != want {
		return domain.Artifact{}, ValidationError{Field: "confirmation", Reason: fmt.Sprintf("type %q to confirm permanent rejection", want)}
	}
	if err := e.requireApprover(ctx, a.ProjectID, actorID, a.AuthorID); err != nil {
		return domain.Artifact{}, err
	}
	if err := ensureApprovalTransition(a.ApprovalStatus, domain.StatusRejected); err != nil {
		return domain.Artifact{}, err
	}
	now := e.nowStr()
	r := reason
	return e.applyApproval(ctx, a, actorID, domain.StatusRejected, "artifact.rejected", func(a *domain.Artifact) {
		a.RejectedBy = &actorID
		a.RejectedAt = &now
		a.RejectionReason = &r
	})
}

// currentForApproval loads an artifact and checks it is the live, current
// version of its chain. Approval actions never touch historical versions.
func (e Engine) currentForApproval(ctx context.Context, artifactID string) (domain.Artifact, error) {
	a, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if a.DeletedAt != nil {
		return domain.Artifact{}, repo.ErrNotFound
	}
	if !a.IsCurrent {
		return domain.Artifact{}, StateError{Op: "approval", Reason: "only the current version moves through approval"}
	}
	return a, nil
}

// applyApproval writes the status change and its audit row in one tx.
// mutate, when set, applies the transition's side effects before the save.
func (e Engine) applyApproval(ctx context.Context, a domain.Artifact, actorID string, to domain.ApprovalStatus, action string, mutate func(*domain.Artifact)) (domain.Artifact, error) {
	from := a.ApprovalStatus
	a.ApprovalStatus = to
	if mutate != nil {
		mutate(&a)
	}
	a.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	entry := audit.Entry{
		ProjectID:  a.ProjectID,
		EntityKind: "artifact",
		EntityID:   a.ID,
		ActorID:    actorID,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(to),
	}
	if a.RejectionReason != nil && (to == domain.StatusRejected || to == domain.StatusChangesRequested) {
		entry.Meta = map[string]any{"reason": *a.RejectionReason}
	}
	e.Audit.Record(ctx, tx, entry)
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}
