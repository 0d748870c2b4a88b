package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"baseline/internal/audit"
	"baseline/internal/domain"
	"baseline/internal/repo"
)

// currentAttempts bounds the demote-then-insert retry loop. One retry from
// a fresh read is enough: losing twice means a writer storm the caller
// should see as a conflict.
const currentAttempts = 2

const (
	RevisionTypeRevision = "revision"
	RevisionTypeRestore  = "restore"
)

// retryableWrite matches the two failure modes a losing concurrent writer
// sees: the sole-current index rejecting its promotion, or lock contention.
func retryableWrite(err error) bool {
	return repo.IsUniqueViolation(err) || repo.IsBusy(err)
}

// CreateArtifactOptions are parameters for creating an artifact version.
type CreateArtifactOptions struct {
	ProjectID         string
	Type              string
	Title             string
	Content           string
	ContentStructured *string
	ActorID           string
}

// CreateArtifact inserts a new document version. When a current version of
// the same type already exists it is demoted and the new row continues its
// chain; otherwise the row starts a chain at version 1. The sole-current
// index turns a concurrent second promotion into a retryable conflict.
func (e Engine) CreateArtifact(ctx context.Context, opts CreateArtifactOptions) (domain.Artifact, error) {
	if opts.Title == "" {
		return domain.Artifact{}, ValidationError{Field: "title", Reason: "required"}
	}
	if opts.ProjectID == "" {
		return domain.Artifact{}, ValidationError{Field: "project_id", Reason: "required"}
	}
	typ, err := domain.CanonicalType(opts.Type)
	if err != nil {
		return domain.Artifact{}, ValidationError{Field: "type", Reason: err.Error()}
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Artifact{}, err
	}
	if err := e.requireEditor(ctx, opts.ProjectID, opts.ActorID); err != nil {
		return domain.Artifact{}, err
	}

	var lastErr error
	for attempt := 0; attempt < currentAttempts; attempt++ {
		a, err := e.createArtifactOnce(ctx, opts, typ)
		if err == nil {
			return a, nil
		}
		if !retryableWrite(err) {
			return domain.Artifact{}, err
		}
		lastErr = err
	}
	return domain.Artifact{}, ConflictError{Reason: fmt.Sprintf("concurrent writer changed the current %s version: %v", typ, lastErr)}
}

func (e Engine) createArtifactOnce(ctx context.Context, opts CreateArtifactOptions, typ domain.ArtifactType) (domain.Artifact, error) {
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	a := domain.Artifact{
		ID:                uuid.New().String(),
		ProjectID:         opts.ProjectID,
		Type:              typ,
		Title:             opts.Title,
		Content:           opts.Content,
		ContentStructured: opts.ContentStructured,
		Version:           1,
		IsCurrent:         true,
		ApprovalStatus:    domain.StatusDraft,
		AuthorID:          opts.ActorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	a.RootID = a.ID

	prev, err := e.Repo.CurrentArtifactTx(ctx, tx, opts.ProjectID, typ)
	switch {
	case err == nil:
		a.Version = prev.Version + 1
		a.ParentID = &prev.ID
		a.RootID = prev.RootID
		if err := e.Repo.DemoteCurrentTx(ctx, tx, opts.ProjectID, typ, now); err != nil {
			return domain.Artifact{}, err
		}
	case errors.Is(err, repo.ErrNotFound):
		// first version of this type
	default:
		return domain.Artifact{}, err
	}

	if err := e.Repo.InsertArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  a.ProjectID,
		EntityKind: "artifact",
		EntityID:   a.ID,
		ActorID:    opts.ActorID,
		Action:     "artifact.created",
		ToStatus:   string(a.ApprovalStatus),
		ToCurrent:  boolPtr(true),
		Meta:       map[string]any{"type": string(typ), "version": a.Version, "replaced_current": a.ParentID != nil},
	})
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// CreateRevision spins a new draft version off the current tip of a chain.
// The tip must be current and finally decided (approved or rejected); the
// demoted predecessor keeps its baseline flag as the document of record.
func (e Engine) CreateRevision(ctx context.Context, artifactID, actorID, reason string) (domain.Artifact, error) {
	return e.reviseChain(ctx, artifactID, actorID, reason, RevisionTypeRevision, nil)
}

// RestoreVersion creates a revision whose content is copied verbatim from
// an earlier version of the same chain.
func (e Engine) RestoreVersion(ctx context.Context, targetID, actorID, reason string) (domain.Artifact, error) {
	target, err := e.Repo.GetArtifact(ctx, targetID)
	if err != nil {
		return domain.Artifact{}, err
	}
	return e.reviseChain(ctx, target.ID, actorID, reason, RevisionTypeRestore, &target)
}

// reviseChain performs the shared demote-then-insert for revisions and
// restores. source, when set, supplies the content to copy; otherwise the
// chain tip's content carries forward.
func (e Engine) reviseChain(ctx context.Context, artifactID, actorID, reason, revisionType string, source *domain.Artifact) (domain.Artifact, error) {
	seed, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if err := e.requireEditor(ctx, seed.ProjectID, actorID); err != nil {
		return domain.Artifact{}, err
	}

	var lastErr error
	for attempt := 0; attempt < currentAttempts; attempt++ {
		a, err := e.reviseChainOnce(ctx, seed, actorID, reason, revisionType, source)
		if err == nil {
			return a, nil
		}
		if !retryableWrite(err) {
			return domain.Artifact{}, err
		}
		lastErr = err
	}
	return domain.Artifact{}, ConflictError{Reason: fmt.Sprintf("concurrent writer changed the current %s version: %v", seed.Type, lastErr)}
}

func (e Engine) reviseChainOnce(ctx context.Context, seed domain.Artifact, actorID, reason, revisionType string, source *domain.Artifact) (domain.Artifact, error) {
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	tip, err := e.Repo.CurrentArtifactTx(ctx, tx, seed.ProjectID, seed.Type)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Artifact{}, StateError{Op: "revise", Reason: "no current version to revise"}
		}
		return domain.Artifact{}, err
	}
	if tip.RootID != seed.RootID {
		return domain.Artifact{}, StateError{Op: "revise", Reason: "artifact is not part of the current chain"}
	}
	if tip.ApprovalStatus != domain.StatusApproved && tip.ApprovalStatus != domain.StatusRejected {
		return domain.Artifact{}, StateError{
			Op:     "revise",
			Reason: fmt.Sprintf("current version must be approved or rejected, is %s", tip.ApprovalStatus),
		}
	}

	next, err := e.Repo.MaxChainVersionTx(ctx, tx, tip.RootID)
	if err != nil {
		return domain.Artifact{}, err
	}
	from := tip
	if source != nil {
		from = *source
	}
	a := domain.Artifact{
		ID:                uuid.New().String(),
		ProjectID:         tip.ProjectID,
		Type:              tip.Type,
		Title:             from.Title,
		Content:           from.Content,
		ContentStructured: from.ContentStructured,
		Version:           next + 1,
		ParentID:          &tip.ID,
		RootID:            tip.RootID,
		IsCurrent:         true,
		ApprovalStatus:    domain.StatusDraft,
		RevisionType:      revisionType,
		AuthorID:          actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.Repo.DemoteCurrentTx(ctx, tx, tip.ProjectID, tip.Type, now); err != nil {
		return domain.Artifact{}, err
	}
	if err := e.Repo.InsertArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	meta := map[string]any{"version": a.Version, "revision_type": revisionType}
	if reason != "" {
		meta["reason"] = reason
	}
	if source != nil {
		meta["restored_from"] = source.ID
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:   a.ProjectID,
		EntityKind:  "artifact",
		EntityID:    a.ID,
		ActorID:     actorID,
		Action:      "artifact." + revisionType,
		FromStatus:  string(tip.ApprovalStatus),
		ToStatus:    string(a.ApprovalStatus),
		FromCurrent: boolPtr(false),
		ToCurrent:   boolPtr(true),
		Meta:        meta,
	})
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// SetCurrent moves the current pointer to an older draft or
// changes-requested version. Calling it on the version that is already
// current is an explicit no-op: no row change, no audit event.
func (e Engine) SetCurrent(ctx context.Context, artifactID, actorID string) error {
	target, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return err
	}
	if target.DeletedAt != nil {
		return repo.ErrNotFound
	}
	switch target.ApprovalStatus {
	case domain.StatusSubmitted, domain.StatusApproved, domain.StatusRejected:
		return StateError{
			Op:     "set-current",
			Reason: fmt.Sprintf("current pointer moves only to draft or changes_requested versions, not %s", target.ApprovalStatus),
		}
	}
	if err := e.requireEditor(ctx, target.ProjectID, actorID); err != nil {
		return err
	}
	if target.IsCurrent {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < currentAttempts; attempt++ {
		err := e.setCurrentOnce(ctx, target, actorID)
		if err == nil {
			return nil
		}
		if !retryableWrite(err) {
			return err
		}
		lastErr = err
	}
	return ConflictError{Reason: fmt.Sprintf("concurrent writer changed the current %s version: %v", target.Type, lastErr)}
}

func (e Engine) setCurrentOnce(ctx context.Context, target domain.Artifact, actorID string) error {
	now := e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prevStatus := ""
	if prev, err := e.Repo.CurrentArtifactTx(ctx, tx, target.ProjectID, target.Type); err == nil {
		prevStatus = string(prev.ApprovalStatus)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err := e.Repo.DemoteCurrentTx(ctx, tx, target.ProjectID, target.Type, now); err != nil {
		return err
	}
	if err := e.Repo.PromoteTx(ctx, tx, target.ID, now); err != nil {
		return err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:   target.ProjectID,
		EntityKind:  "artifact",
		EntityID:    target.ID,
		ActorID:     actorID,
		Action:      "artifact.set_current",
		FromStatus:  prevStatus,
		ToStatus:    string(target.ApprovalStatus),
		FromCurrent: boolPtr(false),
		ToCurrent:   boolPtr(true),
	})
	return tx.Commit()
}

// ContentPatch updates any subset of an artifact's editable fields.
type ContentPatch struct {
	Title             *string
	Content           *string
	ContentStructured *string
}

// UpdateContent edits the current draft. Editing is blocked exactly while
// the version is submitted (locked) and once it is finally decided.
func (e Engine) UpdateContent(ctx context.Context, artifactID, actorID string, patch ContentPatch) (domain.Artifact, error) {
	a, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if a.DeletedAt != nil {
		return domain.Artifact{}, repo.ErrNotFound
	}
	if !a.IsCurrent {
		return domain.Artifact{}, StateError{Op: "update", Reason: "only the current version is editable"}
	}
	if a.IsLocked() {
		if a.ApprovalStatus == domain.StatusSubmitted {
			return domain.Artifact{}, StateError{Op: "update", Reason: "version is locked pending approval"}
		}
		return domain.Artifact{}, StateError{
			Op:     "update",
			Reason: fmt.Sprintf("version in state %s is not editable", a.ApprovalStatus),
		}
	}
	if err := e.requireEditor(ctx, a.ProjectID, actorID); err != nil {
		return domain.Artifact{}, err
	}
	if patch.Title == nil && patch.Content == nil && patch.ContentStructured == nil {
		return a, nil
	}

	if patch.Title != nil {
		if *patch.Title == "" {
			return domain.Artifact{}, ValidationError{Field: "title", Reason: "must not be empty"}
		}
		a.Title = *patch.Title
	}
	if patch.Content != nil {
		a.Content = *patch.Content
	}
	if patch.ContentStructured != nil {
		a.ContentStructured = patch.ContentStructured
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
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  a.ProjectID,
		EntityKind: "artifact",
		EntityID:   a.ID,
		ActorID:    actorID,
		Action:     "artifact.updated",
		FromStatus: string(a.ApprovalStatus),
		ToStatus:   string(a.ApprovalStatus),
	})
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// SoftDeleteArtifact tombstones a draft version. Anything past draft is
// part of the document's history and is never deleted.
func (e Engine) SoftDeleteArtifact(ctx context.Context, artifactID, actorID string) error {
	a, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return err
	}
	if a.DeletedAt != nil {
		return repo.ErrNotFound
	}
	if a.ApprovalStatus != domain.StatusDraft {
		return StateError{Op: "delete", Reason: fmt.Sprintf("only drafts may be deleted, version is %s", a.ApprovalStatus)}
	}
	if err := e.requireEditor(ctx, a.ProjectID, actorID); err != nil {
		return err
	}
	now := e.nowStr()
	a.DeletedAt = &now
	a.IsCurrent = false
	a.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateArtifact(ctx, tx, a); err != nil {
		return err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:   a.ProjectID,
		EntityKind:  "artifact",
		EntityID:    a.ID,
		ActorID:     actorID,
		Action:      "artifact.deleted",
		FromStatus:  string(a.ApprovalStatus),
		FromCurrent: boolPtr(true),
		ToCurrent:   boolPtr(false),
	})
	return tx.Commit()
}

// VersionHistory returns every version of an artifact's chain, oldest first.
func (e Engine) VersionHistory(ctx context.Context, artifactID string) ([]domain.Artifact, error) {
	a, err := e.Repo.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ChainVersions(ctx, a.RootID)
}

func boolPtr(b bool) *bool { return &b }
