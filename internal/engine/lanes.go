package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"baseline/internal/audit"
	"baseline/internal/config"
	"baseline/internal/domain"
	"baseline/internal/repo"
)

// laneExits maps each delivery lane to the lanes a card may move to by a
// direct board action. Review is absent as a destination on purpose: it is
// entered only through SubmitForApproval. Leaving review additionally
// requires an approved decision.
var laneExits = map[domain.DeliveryLane][]domain.DeliveryLane{
	domain.LaneIntake:      {domain.LaneAnalysis},
	domain.LaneAnalysis:    {domain.LaneIntake},
	domain.LaneReview:      {domain.LaneInProgress},
	domain.LaneInProgress:  {domain.LaneImplemented},
	domain.LaneImplemented: {domain.LaneClosed},
	domain.LaneClosed:      {},
}

func laneExitAllowed(from, to domain.DeliveryLane) bool {
	for _, l := range laneExits[from] {
		if l == to {
			return true
		}
	}
	return false
}

// CreateChangeOptions are parameters for opening a change request.
type CreateChangeOptions struct {
	ProjectID     string
	ArtifactID    *string
	Title         string
	Summary       string
	Priority      string
	Impact        domain.ImpactAnalysis
	RequesterName string
	ActorID       string
}

// CreateChange opens a change request card in the intake lane.
func (e Engine) CreateChange(ctx context.Context, opts CreateChangeOptions) (domain.ChangeRequest, error) {
	if opts.Title == "" {
		return domain.ChangeRequest{}, ValidationError{Field: "title", Reason: "required"}
	}
	prio := domain.PriorityMedium
	if opts.Priority != "" {
		p, ok := domain.ValidPriority(opts.Priority)
		if !ok {
			return domain.ChangeRequest{}, ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
		}
		prio = p
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ChangeRequest{}, err
	}
	if opts.ArtifactID != nil {
		a, err := e.Repo.GetArtifact(ctx, *opts.ArtifactID)
		if err != nil {
			return domain.ChangeRequest{}, err
		}
		if a.ProjectID != opts.ProjectID {
			return domain.ChangeRequest{}, ValidationError{Field: "artifact_id", Reason: "artifact belongs to another project"}
		}
	}
	if err := e.requireEditor(ctx, opts.ProjectID, opts.ActorID); err != nil {
		return domain.ChangeRequest{}, err
	}

	now := e.nowStr()
	c := domain.ChangeRequest{
		ID:             uuid.New().String(),
		ProjectID:      opts.ProjectID,
		ArtifactID:     opts.ArtifactID,
		Title:          opts.Title,
		Summary:        opts.Summary,
		Priority:       prio,
		Impact:         opts.Impact,
		DeliveryLane:   domain.LaneIntake,
		DecisionStatus: domain.DecisionDraft,
		RequesterName:  opts.RequesterName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertChange(ctx, tx, c); err != nil {
		return domain.ChangeRequest{}, err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  c.ProjectID,
		EntityKind: "change_request",
		EntityID:   c.ID,
		ActorID:    opts.ActorID,
		Action:     "change.created",
		ToStatus:   string(c.DeliveryLane),
		Meta:       map[string]any{"priority": string(prio)},
	})
	if err := tx.Commit(); err != nil {
		return domain.ChangeRequest{}, err
	}
	return c, nil
}

// PatchDeliveryStatus moves a card between lanes on the board. Moving to
// the lane the card already occupies is an allowed no-op. WIP limits never
// block a move; crossing one comes back as a warning string.
func (e Engine) PatchDeliveryStatus(ctx context.Context, changeID, actorID, lane string) (domain.ChangeRequest, []string, error) {
	to, ok := domain.ValidLane(lane)
	if !ok {
		return domain.ChangeRequest{}, nil, ValidationError{Field: "delivery_lane", Reason: fmt.Sprintf("unknown lane %q", lane)}
	}
	c, err := e.liveChange(ctx, changeID)
	if err != nil {
		return domain.ChangeRequest{}, nil, err
	}
	if err := e.requireEditor(ctx, c.ProjectID, actorID); err != nil {
		return domain.ChangeRequest{}, nil, err
	}
	if to == c.DeliveryLane {
		return c, nil, nil
	}
	if c.Locked() {
		return domain.ChangeRequest{}, nil, StateError{Op: "move", Reason: "card is locked awaiting a decision"}
	}
	if to == domain.LaneReview {
		return domain.ChangeRequest{}, nil, StateError{Op: "move", Reason: "review is entered by submitting for approval"}
	}
	if !laneExitAllowed(c.DeliveryLane, to) {
		return domain.ChangeRequest{}, nil, StateError{Op: "move", Reason: fmt.Sprintf("cannot move from %s to %s", c.DeliveryLane, to)}
	}
	if c.DeliveryLane == domain.LaneReview && c.DecisionStatus != domain.DecisionApproved {
		return domain.ChangeRequest{}, nil, StateError{Op: "move", Reason: "card leaves review only after an approved decision"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChangeRequest{}, nil, err
	}
	defer tx.Rollback()
	warnings, err := e.wipWarnings(ctx, tx, c.ProjectID, to)
	if err != nil {
		return domain.ChangeRequest{}, nil, err
	}
	from := c.DeliveryLane
	c.DeliveryLane = to
	c.UpdatedAt = e.nowStr()
	if err := e.Repo.UpdateChange(ctx, tx, c); err != nil {
		return domain.ChangeRequest{}, nil, err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  c.ProjectID,
		EntityKind: "change_request",
		EntityID:   c.ID,
		ActorID:    actorID,
		Action:     "change.moved",
		FromStatus: string(from),
		ToStatus:   string(to),
	})
	if err := tx.Commit(); err != nil {
		return domain.ChangeRequest{}, nil, err
	}
	return c, warnings, nil
}

// SubmitForApproval moves a card from analysis into review and locks it.
// Only draft and rework cards may be submitted.
func (e Engine) SubmitForApproval(ctx context.Context, changeID, actorID string) (domain.ChangeRequest, error) {
	c, err := e.liveChange(ctx, changeID)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	if err := e.requireEditor(ctx, c.ProjectID, actorID); err != nil {
		return domain.ChangeRequest{}, err
	}
	if c.DeliveryLane != domain.LaneAnalysis {
		return domain.ChangeRequest{}, StateError{Op: "submit", Reason: fmt.Sprintf("cards submit from analysis, not %s", c.DeliveryLane)}
	}
	if c.DecisionStatus != domain.DecisionDraft && c.DecisionStatus != domain.DecisionRework {
		return domain.ChangeRequest{}, StateError{Op: "submit", Reason: fmt.Sprintf("decision is already %s", c.DecisionStatus)}
	}

	from := c.DeliveryLane
	c.DeliveryLane = domain.LaneReview
	c.DecisionStatus = domain.DecisionSubmitted
	c.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChange(ctx, tx, c); err != nil {
		return domain.ChangeRequest{}, err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  c.ProjectID,
		EntityKind: "change_request",
		EntityID:   c.ID,
		ActorID:    actorID,
		Action:     "change.submitted",
		FromStatus: string(from),
		ToStatus:   string(domain.LaneReview),
	})
	if err := tx.Commit(); err != nil {
		return domain.ChangeRequest{}, err
	}
	return c, nil
}

// DecideChange records an approver's verdict on a card in review.
// Approval clears the card for in_progress, rejection closes it, and
// rework sends it back to analysis unlocked.
func (e Engine) DecideChange(ctx context.Context, changeID, actorID, verdict, reason string) (domain.ChangeRequest, error) {
	c, err := e.liveChange(ctx, changeID)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	if err := e.requireApprover(ctx, c.ProjectID, actorID, ""); err != nil {
		return domain.ChangeRequest{}, err
	}
	if c.DecisionStatus != domain.DecisionSubmitted {
		return domain.ChangeRequest{}, StateError{Op: "decide", Reason: fmt.Sprintf("card is %s, not awaiting a decision", c.DecisionStatus)}
	}

	from := c.DeliveryLane
	var action string
	switch verdict {
	case "approve":
		c.DecisionStatus = domain.DecisionApproved
		action = "change.approved"
	case "reject":
		c.DecisionStatus = domain.DecisionRejected
		c.DeliveryLane = domain.LaneClosed
		action = "change.rejected"
	case "rework":
		c.DecisionStatus = domain.DecisionRework
		c.DeliveryLane = domain.LaneAnalysis
		action = "change.rework"
	default:
		return domain.ChangeRequest{}, ValidationError{Field: "verdict", Reason: fmt.Sprintf("unknown verdict %q", verdict)}
	}
	c.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChange(ctx, tx, c); err != nil {
		return domain.ChangeRequest{}, err
	}
	entry := audit.Entry{
		ProjectID:  c.ProjectID,
		EntityKind: "change_request",
		EntityID:   c.ID,
		ActorID:    actorID,
		Action:     action,
		FromStatus: string(from),
		ToStatus:   string(c.DeliveryLane),
		Meta:       map[string]any{"decision": string(c.DecisionStatus)},
	}
	if reason != "" {
		entry.Meta["reason"] = reason
	}
	e.Audit.Record(ctx, tx, entry)
	if err := tx.Commit(); err != nil {
		return domain.ChangeRequest{}, err
	}
	return c, nil
}

// DeleteDraft soft-deletes a card that never reached review. Cards past
// analysis are part of the decision record and close instead.
func (e Engine) DeleteDraft(ctx context.Context, changeID, actorID string) error {
	c, err := e.liveChange(ctx, changeID)
	if err != nil {
		return err
	}
	if err := e.requireEditor(ctx, c.ProjectID, actorID); err != nil {
		return err
	}
	if c.DeliveryLane != domain.LaneIntake && c.DeliveryLane != domain.LaneAnalysis {
		return StateError{Op: "delete", Reason: fmt.Sprintf("cards in %s are part of the record and cannot be deleted", c.DeliveryLane)}
	}
	if c.DecisionStatus != domain.DecisionDraft {
		return StateError{Op: "delete", Reason: fmt.Sprintf("only draft cards may be deleted, decision is %s", c.DecisionStatus)}
	}

	now := e.nowStr()
	c.DeletedAt = &now
	c.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChange(ctx, tx, c); err != nil {
		return err
	}
	e.Audit.Record(ctx, tx, audit.Entry{
		ProjectID:  c.ProjectID,
		EntityKind: "change_request",
		EntityID:   c.ID,
		ActorID:    actorID,
		Action:     "change.deleted",
		FromStatus: string(c.DeliveryLane),
	})
	return tx.Commit()
}

// Board groups a project's live cards by lane, in pipeline order.
func (e Engine) Board(ctx context.Context, projectID string) (map[domain.DeliveryLane][]domain.ChangeRequest, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	cards, err := e.Repo.ListChanges(ctx, repo.ChangeFilters{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	board := make(map[domain.DeliveryLane][]domain.ChangeRequest, len(domain.Lanes))
	for _, l := range domain.Lanes {
		board[l] = []domain.ChangeRequest{}
	}
	for _, c := range cards {
		board[c.DeliveryLane] = append(board[c.DeliveryLane], c)
	}
	return board, nil
}

func (e Engine) liveChange(ctx context.Context, changeID string) (domain.ChangeRequest, error) {
	c, err := e.Repo.GetChange(ctx, changeID)
	if err != nil {
		return domain.ChangeRequest{}, err
	}
	if c.DeletedAt != nil {
		return domain.ChangeRequest{}, repo.ErrNotFound
	}
	return c, nil
}

// wipWarnings checks the destination lane's card count against the
// project's configured limit. Counting happens inside the move's tx so the
// warning reflects the board the move lands on.
func (e Engine) wipWarnings(ctx context.Context, tx *sql.Tx, projectID string, lane domain.DeliveryLane) ([]string, error) {
	cfg := e.loadProjectConfig(ctx, projectID)
	if cfg == nil {
		cfg = config.Default(projectID)
	}
	limit := cfg.WIPLimit(lane)
	if limit <= 0 {
		return nil, nil
	}
	n, err := e.Repo.CountLaneTx(ctx, tx, projectID, lane)
	if err != nil {
		return nil, err
	}
	if n+1 > limit {
		return []string{fmt.Sprintf("lane %s exceeds its WIP limit (%d/%d)", lane, n+1, limit)}, nil
	}
	return nil, nil
}
