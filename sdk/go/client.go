package baselinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Baseline HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Artifact represents one version in a document chain.
type Artifact struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	Type            string  `json:"type"`
	Title           string  `json:"title"`
	Content         string  `json:"content,omitempty"`
	Version         int     `json:"version"`
	RootID          string  `json:"root_id"`
	IsCurrent       bool    `json:"is_current"`
	IsBaseline      bool    `json:"is_baseline"`
	IsLocked        bool    `json:"is_locked"`
	ApprovalStatus  string  `json:"approval_status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	AuthorID        string  `json:"author_id"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// Change represents a change request card.
type Change struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	Title          string `json:"title"`
	Priority       string `json:"priority"`
	DeliveryLane   string `json:"delivery_lane"`
	DecisionStatus string `json:"decision_status"`
	IsLocked       bool   `json:"is_locked"`
	UpdatedAt      string `json:"updated_at"`
}

// MoveResult is a lane move plus any advisory warnings.
type MoveResult struct {
	Change   Change   `json:"change"`
	Warnings []string `json:"warnings,omitempty"`
}

// AuditEvent is one audit log row.
type AuditEvent struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateArtifact creates a new artifact version.
func (c *Client) CreateArtifact(ctx context.Context, artifactType, title, content string) (Artifact, error) {
	body := map[string]any{
		"type":    artifactType,
		"title":   title,
		"content": content,
	}
	var resp Artifact
	err := c.do(ctx, http.MethodPost, c.projectPath("artifacts"), body, &resp)
	return resp, err
}

// GetArtifact fetches one artifact version.
func (c *Client) GetArtifact(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodGet, "v0/artifacts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SubmitArtifact puts the current version up for approval.
func (c *Client) SubmitArtifact(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodPost, "v0/artifacts/"+url.PathEscape(id)+"/submit", nil, &resp)
	return resp, err
}

// ApproveArtifact approves a submitted version.
func (c *Client) ApproveArtifact(ctx context.Context, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodPost, "v0/artifacts/"+url.PathEscape(id)+"/approve", nil, &resp)
	return resp, err
}

// History returns the full version chain, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]Artifact, error) {
	var resp []Artifact
	err := c.do(ctx, http.MethodGet, "v0/artifacts/"+url.PathEscape(id)+"/history", nil, &resp)
	return resp, err
}

// CreateChange opens a change request card.
func (c *Client) CreateChange(ctx context.Context, title, priority string) (Change, error) {
	body := map[string]any{
		"title":    title,
		"priority": priority,
	}
	var resp Change
	err := c.do(ctx, http.MethodPost, c.projectPath("changes"), body, &resp)
	return resp, err
}

// GetChange fetches a change request.
func (c *Client) GetChange(ctx context.Context, id string) (Change, error) {
	var resp Change
	err := c.do(ctx, http.MethodGet, "v0/changes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// MoveChange moves a card to a lane and returns any WIP warnings.
func (c *Client) MoveChange(ctx context.Context, id, lane string) (MoveResult, error) {
	body := map[string]any{"delivery_lane": lane}
	var resp MoveResult
	err := c.do(ctx, http.MethodPatch, "v0/changes/"+url.PathEscape(id)+"/lane", body, &resp)
	return resp, err
}

// Board returns the project's cards grouped by lane.
func (c *Client) Board(ctx context.Context) (map[string][]Change, error) {
	var resp map[string][]Change
	err := c.do(ctx, http.MethodGet, c.projectPath("board"), nil, &resp)
	return resp, err
}

// Audit returns recent audit events, newest first.
func (c *Client) Audit(ctx context.Context, limit int) ([]AuditEvent, error) {
	endpoint := c.projectPath("audit")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []AuditEvent
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
