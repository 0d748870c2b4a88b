package server

import (
	"encoding/json"

	"baseline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type GrantMemberRequest struct {
	ActorID    string `json:"actor_id"`
	Role       string `json:"role" enum:"owner,editor,viewer"`
	IsApprover bool   `json:"is_approver,omitempty"`
}

type CreateArtifactRequest struct {
	Type              string  `json:"type"`
	Title             string  `json:"title"`
	Content           string  `json:"content,omitempty"`
	ContentStructured *string `json:"content_structured,omitempty"`
}

type UpdateArtifactRequest struct {
	Title             *string `json:"title,omitempty"`
	Content           *string `json:"content,omitempty"`
	ContentStructured *string `json:"content_structured,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type RejectArtifactRequest struct {
	Reason       string `json:"reason"`
	Confirmation string `json:"confirmation"`
}

type ReviseArtifactRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ImpactRequest struct {
	Days int     `json:"days,omitempty"`
	Cost float64 `json:"cost,omitempty"`
	Risk string  `json:"risk,omitempty"`
}

type CreateChangeRequest struct {
	ArtifactID    *string        `json:"artifact_id,omitempty"`
	Title         string         `json:"title"`
	Summary       string         `json:"summary,omitempty"`
	Priority      string         `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Impact        *ImpactRequest `json:"impact,omitempty"`
	RequesterName string         `json:"requester_name,omitempty"`
}

type MoveChangeRequest struct {
	DeliveryLane string `json:"delivery_lane" enum:"intake,analysis,review,in_progress,implemented,closed"`
}

type DecideChangeRequest struct {
	Verdict string `json:"verdict" enum:"approve,reject,rework"`
	Reason  string `json:"reason,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	ProjectID  string `json:"project_id"`
	ActorID    string `json:"actor_id"`
	Role       string `json:"role" enum:"owner,editor,viewer"`
	IsApprover bool   `json:"is_approver"`
}

type ArtifactResponse struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	Type              string  `json:"type" enum:"charter,wbs,schedule,budget,risk_register,status_report,closure_report"`
	Title             string  `json:"title"`
	Content           string  `json:"content,omitempty"`
	ContentStructured *string `json:"content_structured,omitempty"`
	Version           int     `json:"version"`
	ParentID          *string `json:"parent_id,omitempty"`
	RootID            string  `json:"root_id"`
	IsCurrent         bool    `json:"is_current"`
	IsBaseline        bool    `json:"is_baseline"`
	IsLocked          bool    `json:"is_locked"`
	ApprovalStatus    string  `json:"approval_status" enum:"draft,changes_requested,submitted,approved,rejected"`
	ApprovedBy        *string `json:"approved_by,omitempty"`
	ApprovedAt        *string `json:"approved_at,omitempty" format:"date-time"`
	RejectedBy        *string `json:"rejected_by,omitempty"`
	RejectedAt        *string `json:"rejected_at,omitempty" format:"date-time"`
	RejectionReason   *string `json:"rejection_reason,omitempty"`
	RevisionType      string  `json:"revision_type,omitempty"`
	AuthorID          string  `json:"author_id"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type ImpactResponse struct {
	Days int     `json:"days,omitempty"`
	Cost float64 `json:"cost,omitempty"`
	Risk string  `json:"risk,omitempty"`
}

type ChangeResponse struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	ArtifactID     *string        `json:"artifact_id,omitempty"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary,omitempty"`
	Priority       string         `json:"priority" enum:"low,medium,high,critical"`
	Impact         ImpactResponse `json:"impact"`
	DeliveryLane   string         `json:"delivery_lane" enum:"intake,analysis,review,in_progress,implemented,closed"`
	DecisionStatus string         `json:"decision_status" enum:"draft,submitted,approved,rejected,rework"`
	IsLocked       bool           `json:"is_locked"`
	RequesterName  string         `json:"requester_name,omitempty"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

type MoveChangeResponse struct {
	Change   ChangeResponse `json:"change"`
	Warnings []string       `json:"warnings,omitempty"`
}

type AuditEventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	ProjectID   string         `json:"project_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	FromStatus  string         `json:"from_status,omitempty"`
	ToStatus    string         `json:"to_status,omitempty"`
	FromCurrent *bool          `json:"from_current,omitempty"`
	ToCurrent   *bool          `json:"to_current,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Status:      p.Status,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse{
		ProjectID:  m.ProjectID,
		ActorID:    m.ActorID,
		Role:       string(m.Role),
		IsApprover: m.IsApprover,
	}
}

func mapMembers(items []domain.Member) []MemberResponse {
	out := make([]MemberResponse, 0, len(items))
	for _, m := range items {
		out = append(out, memberResponse(m))
	}
	return out
}

func artifactResponse(a domain.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:                a.ID,
		ProjectID:         a.ProjectID,
		Type:              string(a.Type),
		Title:             a.Title,
		Content:           a.Content,
		ContentStructured: a.ContentStructured,
		Version:           a.Version,
		ParentID:          a.ParentID,
		RootID:            a.RootID,
		IsCurrent:         a.IsCurrent,
		IsBaseline:        a.IsBaseline,
		IsLocked:          a.IsLocked(),
		ApprovalStatus:    string(a.ApprovalStatus),
		ApprovedBy:        a.ApprovedBy,
		ApprovedAt:        a.ApprovedAt,
		RejectedBy:        a.RejectedBy,
		RejectedAt:        a.RejectedAt,
		RejectionReason:   a.RejectionReason,
		RevisionType:      a.RevisionType,
		AuthorID:          a.AuthorID,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func mapArtifacts(items []domain.Artifact) []ArtifactResponse {
	out := make([]ArtifactResponse, 0, len(items))
	for _, a := range items {
		out = append(out, artifactResponse(a))
	}
	return out
}

func changeResponse(c domain.ChangeRequest) ChangeResponse {
	return ChangeResponse{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		ArtifactID: c.ArtifactID,
		Title:      c.Title,
		Summary:    c.Summary,
		Priority:   string(c.Priority),
		Impact: ImpactResponse{
			Days: c.Impact.Days,
			Cost: c.Impact.Cost,
			Risk: c.Impact.Risk,
		},
		DeliveryLane:   string(c.DeliveryLane),
		DecisionStatus: string(c.DecisionStatus),
		IsLocked:       c.Locked(),
		RequesterName:  c.RequesterName,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func mapChanges(items []domain.ChangeRequest) []ChangeResponse {
	out := make([]ChangeResponse, 0, len(items))
	for _, c := range items {
		out = append(out, changeResponse(c))
	}
	return out
}

func auditEventResponse(e domain.AuditEvent) AuditEventResponse {
	var meta map[string]any
	if e.Meta != "" {
		_ = json.Unmarshal([]byte(e.Meta), &meta)
	}
	return AuditEventResponse{
		ID:          e.ID,
		TS:          e.TS,
		ProjectID:   e.ProjectID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Action:      e.Action,
		FromStatus:  e.FromStatus,
		ToStatus:    e.ToStatus,
		FromCurrent: e.FromCurrent,
		ToCurrent:   e.ToCurrent,
		Meta:        meta,
	}
}

func mapAuditEvents(items []domain.AuditEvent) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, auditEventResponse(e))
	}
	return out
}
