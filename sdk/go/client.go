package crewlinesdk

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

// Client is a minimal Crewline HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "api/v1",
		Timeout:  10 * time.Second,
	}
}

// Organization represents the API organization model.
type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// TeamMember is an agent's membership in a team.
type TeamMember struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

// Team represents the API team model.
type Team struct {
	ID      string       `json:"id"`
	OrgID   string       `json:"org_id"`
	Name    string       `json:"name"`
	Members []TeamMember `json:"members"`
}

// Sprint represents the API sprint model.
type Sprint struct {
	ID            string  `json:"id"`
	TeamID        string  `json:"team_id"`
	Name          string  `json:"name"`
	State         string  `json:"state"`
	BudgetScopeID *string `json:"budget_scope_id,omitempty"`
}

// WorkItem represents the API work item model (partial).
type WorkItem struct {
	ID              string   `json:"id"`
	SprintID        string   `json:"sprint_id"`
	Title           string   `json:"title"`
	State           string   `json:"state"`
	AssigneeAgentID *string  `json:"assignee_agent_id,omitempty"`
	ExternalRefs    []string `json:"external_refs,omitempty"`
}

// Delegation represents a work item handoff.
type Delegation struct {
	ID          int64   `json:"id"`
	WorkItemID  string  `json:"work_item_id"`
	FromAgentID string  `json:"from_agent_id"`
	ToAgentID   string  `json:"to_agent_id"`
	SessionKey  string  `json:"session_key"`
	Status      string  `json:"status"`
	Outcome     *string `json:"outcome,omitempty"`
}

// ReviewConcern is one reviewer finding.
type ReviewConcern struct {
	File        string `json:"file"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Review represents a review request and its verdict.
type Review struct {
	ID              int64           `json:"id"`
	WorkItemID      string          `json:"work_item_id"`
	ReviewerAgentID string          `json:"reviewer_agent_id"`
	Status          string          `json:"status"`
	Verdict         *string         `json:"verdict,omitempty"`
	Feedback        *string         `json:"feedback,omitempty"`
	Concerns        []ReviewConcern `json:"concerns,omitempty"`
}

// Escalation represents a flagged problem needing a human or lead decision.
type Escalation struct {
	ID         string  `json:"id"`
	TeamID     *string `json:"team_id,omitempty"`
	SprintID   *string `json:"sprint_id,omitempty"`
	WorkItemID *string `json:"work_item_id,omitempty"`
	Reason     string  `json:"reason"`
	Resolved   bool    `json:"resolved"`
	CreatedAt  string  `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TeamID     string         `json:"team_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// ValidationError is one a2a message validation finding.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Rule    string `json:"rule"`
}

// ValidationResult is the outcome of validating an a2a message.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Message any               `json:"message,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateOrganization creates an organization.
func (c *Client) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	var resp Organization
	err := c.do(ctx, http.MethodPost, c.apiPath("orgs"), map[string]any{"name": name}, &resp)
	return resp, err
}

// CreateTeam creates a team under an organization.
func (c *Client) CreateTeam(ctx context.Context, orgID, name string, members []TeamMember) (Team, error) {
	body := map[string]any{
		"org_id":  orgID,
		"name":    name,
		"members": members,
	}
	var resp Team
	err := c.do(ctx, http.MethodPost, c.apiPath("teams"), body, &resp)
	return resp, err
}

// CreateSprint creates a sprint for a team.
func (c *Client) CreateSprint(ctx context.Context, teamID, name string) (Sprint, error) {
	body := map[string]any{
		"team_id": teamID,
		"name":    name,
	}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, c.apiPath("sprints"), body, &resp)
	return resp, err
}

// TransitionSprint moves a sprint to a new state.
func (c *Client) TransitionSprint(ctx context.Context, sprintID, state string) (Sprint, error) {
	var resp Sprint
	endpoint := c.apiPath(fmt.Sprintf("sprints/%s/transition", url.PathEscape(sprintID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"state": state}, &resp)
	return resp, err
}

// CreateWorkItem creates a work item in a sprint.
func (c *Client) CreateWorkItem(ctx context.Context, sprintID, title string) (WorkItem, error) {
	body := map[string]any{
		"sprint_id": sprintID,
		"title":     title,
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, c.apiPath("items"), body, &resp)
	return resp, err
}

// GetWorkItem fetches a work item with its delegation and review history.
func (c *Client) GetWorkItem(ctx context.Context, id string) (WorkItem, error) {
	var resp WorkItem
	endpoint := c.apiPath(fmt.Sprintf("items/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Delegate hands a work item to an agent under a session key.
func (c *Client) Delegate(ctx context.Context, itemID, toAgentID, sessionKey string, isolated bool) (Delegation, error) {
	body := map[string]any{
		"to_agent_id": toAgentID,
		"session_key": sessionKey,
		"isolated":    isolated,
	}
	var resp Delegation
	endpoint := c.apiPath(fmt.Sprintf("items/%s/delegate", url.PathEscape(itemID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RequestReview opens a pending review for a work item.
func (c *Client) RequestReview(ctx context.Context, itemID, reviewerAgentID string) (Review, error) {
	body := map[string]any{"reviewer_agent_id": reviewerAgentID}
	var resp Review
	endpoint := c.apiPath(fmt.Sprintf("items/%s/review", url.PathEscape(itemID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RecordVerdict resolves the pending review for a work item.
func (c *Client) RecordVerdict(ctx context.Context, itemID, reviewerAgentID, verdict, feedback string, concerns []ReviewConcern) (Review, error) {
	body := map[string]any{
		"reviewer_agent_id": reviewerAgentID,
		"verdict":           verdict,
		"feedback":          feedback,
		"concerns":          concerns,
	}
	var resp Review
	endpoint := c.apiPath(fmt.Sprintf("items/%s/verdict", url.PathEscape(itemID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// OpenEscalations lists unresolved escalations.
func (c *Client) OpenEscalations(ctx context.Context, teamID string) ([]Escalation, error) {
	endpoint := c.apiPath("escalations")
	if teamID != "" {
		endpoint = fmt.Sprintf("%s?team_id=%s", endpoint, url.QueryEscape(teamID))
	}
	var resp []Escalation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ResolveEscalation closes an escalation with a resolution note.
func (c *Client) ResolveEscalation(ctx context.Context, id, resolution string) (Escalation, error) {
	var resp Escalation
	endpoint := c.apiPath(fmt.Sprintf("escalations/%s/resolve", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"resolution": resolution}, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.apiPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ValidateMessage runs server-side a2a message validation.
func (c *Client) ValidateMessage(ctx context.Context, message any) (ValidationResult, error) {
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, c.apiPath("a2a/validate"), message, &resp)
	return resp, err
}

// SubagentEnded reports a subagent session exit to close its delegation.
func (c *Client) SubagentEnded(ctx context.Context, sessionKey, outcome, reason string) error {
	body := map[string]any{
		"target_session_key": sessionKey,
		"outcome":            outcome,
	}
	if reason != "" {
		body["reason"] = reason
	}
	return c.do(ctx, http.MethodPost, c.apiPath("hooks/subagent-ended"), body, nil)
}

// PRMerged reports a merged pull request to close the matching work item.
func (c *Client) PRMerged(ctx context.Context, prURL string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, c.apiPath("hooks/pr-merged"), map[string]any{"url": prURL}, &resp)
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
	if c.ActorID != "" {
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

func (c *Client) apiPath(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
