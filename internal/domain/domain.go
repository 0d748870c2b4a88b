package domain

import (
	"fmt"
	"strings"
)

// ArtifactType is the closed set of document types a project can hold.
type ArtifactType string

const (
	TypeCharter       ArtifactType = "charter"
	TypeWBS           ArtifactType = "wbs"
	TypeSchedule      ArtifactType = "schedule"
	TypeBudget        ArtifactType = "budget"
	TypeRiskRegister  ArtifactType = "risk_register"
	TypeStatusReport  ArtifactType = "status_report"
	TypeClosureReport ArtifactType = "closure_report"
)

// typeAliases maps historical spellings to canonical types. Unknown values
// are rejected at the boundary, never coerced.
var typeAliases = map[string]ArtifactType{
	"charter":         TypeCharter,
	"project_charter": TypeCharter,
	"wbs":             TypeWBS,
	"work_breakdown":  TypeWBS,
	"schedule":        TypeSchedule,
	"plan":            TypeSchedule,
	"budget":          TypeBudget,
	"risk_register":   TypeRiskRegister,
	"risks":           TypeRiskRegister,
	"status_report":   TypeStatusReport,
	"status":          TypeStatusReport,
	"closure_report":  TypeClosureReport,
	"closure":         TypeClosureReport,
	"closeout_report": TypeClosureReport,
}

// CanonicalType resolves a raw type string to its canonical ArtifactType.
func CanonicalType(raw string) (ArtifactType, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown artifact type %q", raw)
}

// ApprovalStatus is the lifecycle state of a single artifact version.
type ApprovalStatus string

const (
	StatusDraft            ApprovalStatus = "draft"
	StatusChangesRequested ApprovalStatus = "changes_requested"
	StatusSubmitted        ApprovalStatus = "submitted"
	StatusApproved         ApprovalStatus = "approved"
	StatusRejected         ApprovalStatus = "rejected"
)

// DeliveryLane is a stage in the change-request pipeline, in order.
type DeliveryLane string

const (
	LaneIntake      DeliveryLane = "intake"
	LaneAnalysis    DeliveryLane = "analysis"
	LaneReview      DeliveryLane = "review"
	LaneInProgress  DeliveryLane = "in_progress"
	LaneImplemented DeliveryLane = "implemented"
	LaneClosed      DeliveryLane = "closed"
)

// Lanes lists every delivery lane in pipeline order.
var Lanes = []DeliveryLane{LaneIntake, LaneAnalysis, LaneReview, LaneInProgress, LaneImplemented, LaneClosed}

// ValidLane reports whether raw names a known lane.
func ValidLane(raw string) (DeliveryLane, bool) {
	for _, l := range Lanes {
		if string(l) == raw {
			return l, true
		}
	}
	return "", false
}

// DecisionStatus is the approval sub-state of a change request.
type DecisionStatus string

const (
	DecisionDraft     DecisionStatus = "draft"
	DecisionSubmitted DecisionStatus = "submitted"
	DecisionApproved  DecisionStatus = "approved"
	DecisionRejected  DecisionStatus = "rejected"
	DecisionRework    DecisionStatus = "rework"
)

// Priority of a change request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidPriority reports whether raw names a known priority.
func ValidPriority(raw string) (Priority, bool) {
	switch Priority(raw) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(raw), true
	}
	return "", false
}

// Role is an actor's effective role within a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether raw names a known role.
func ValidRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleOwner, RoleEditor, RoleViewer:
		return Role(raw), true
	}
	return "", false
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Artifact is one version of a project document. Versions of the same
// document share a root id; at most one non-deleted version per
// (project, type) pair carries is_current.
type Artifact struct {
	ID                string         `json:"id"`
	ProjectID         string         `json:"project_id"`
	Type              ArtifactType   `json:"type" enum:"charter,wbs,schedule,budget,risk_register,status_report,closure_report"`
	Title             string         `json:"title"`
	Content           string         `json:"content,omitempty"`
	ContentStructured *string        `json:"content_structured,omitempty"`
	Version           int            `json:"version"`
	ParentID          *string        `json:"parent_id,omitempty"`
	RootID            string         `json:"root_id"`
	IsCurrent         bool           `json:"is_current"`
	IsBaseline        bool           `json:"is_baseline"`
	ApprovalStatus    ApprovalStatus `json:"approval_status" enum:"draft,changes_requested,submitted,approved,rejected"`
	ApprovedBy        *string        `json:"approved_by,omitempty"`
	ApprovedAt        *string        `json:"approved_at,omitempty" format:"date-time"`
	RejectedBy        *string        `json:"rejected_by,omitempty"`
	RejectedAt        *string        `json:"rejected_at,omitempty" format:"date-time"`
	RejectionReason   *string        `json:"rejection_reason,omitempty"`
	RevisionType      string         `json:"revision_type,omitempty"`
	AuthorID          string         `json:"author_id"`
	CreatedAt         string         `json:"created_at" format:"date-time"`
	UpdatedAt         string         `json:"updated_at" format:"date-time"`
	DeletedAt         *string        `json:"deleted_at,omitempty" format:"date-time"`
}

// IsLocked reports whether the version is edit-locked. Locking is derived
// from the approval status; it is never stored independently. A version is
// locked from submission onward: only draft and changes_requested material
// is editable.
func (a Artifact) IsLocked() bool {
	switch a.ApprovalStatus {
	case StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ImpactAnalysis captures the estimated impact of a change request.
type ImpactAnalysis struct {
	Days int     `json:"days,omitempty"`
	Cost float64 `json:"cost,omitempty"`
	Risk string  `json:"risk,omitempty"`
}

// ChangeRequest is a unit of work moving through the delivery pipeline.
type ChangeRequest struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	ArtifactID     *string        `json:"artifact_id,omitempty"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary,omitempty"`
	Priority       Priority       `json:"priority" enum:"low,medium,high,critical"`
	Impact         ImpactAnalysis `json:"impact"`
	DeliveryLane   DeliveryLane   `json:"delivery_lane" enum:"intake,analysis,review,in_progress,implemented,closed"`
	DecisionStatus DecisionStatus `json:"decision_status" enum:"draft,submitted,approved,rejected,rework"`
	RequesterName  string         `json:"requester_name"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
	DeletedAt      *string        `json:"deleted_at,omitempty" format:"date-time"`
}

// Locked reports whether the card is awaiting a decision and may not move.
func (c ChangeRequest) Locked() bool {
	return c.DecisionStatus == DecisionSubmitted
}

type Member struct {
	ProjectID  string `json:"project_id"`
	ActorID    string `json:"actor_id"`
	Role       Role   `json:"role" enum:"owner,editor,viewer"`
	IsApprover bool   `json:"is_approver"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// AuditEvent is one append-only row in the audit log.
type AuditEvent struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	ProjectID   string `json:"project_id"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	ActorID     string `json:"actor_id"`
	Action      string `json:"action"`
	FromStatus  string `json:"from_status,omitempty"`
	ToStatus    string `json:"to_status,omitempty"`
	FromCurrent *bool  `json:"from_current,omitempty"`
	ToCurrent   *bool  `json:"to_current,omitempty"`
	Meta        string `json:"meta_json,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
