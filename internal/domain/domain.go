package domain

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TeamMember struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

type Team struct {
	ID        string       `json:"id"`
	OrgID     string       `json:"org_id"`
	Name      string       `json:"name"`
	Members   []TeamMember `json:"members,omitempty"`
	CreatedAt string       `json:"created_at" format:"date-time"`
}

type Sprint struct {
	ID            string  `json:"id"`
	TeamID        string  `json:"team_id"`
	Name          string  `json:"name"`
	BudgetScopeID *string `json:"budget_scope_id,omitempty"`
	State         string  `json:"state" enum:"planned,active,review,closed,cancelled"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type WorkItem struct {
	ID                 string       `json:"id"`
	SprintID           string       `json:"sprint_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	State              string       `json:"state" enum:"backlog,in_progress,in_review,blocked,done"`
	AssigneeAgentID    *string      `json:"assignee_agent_id,omitempty"`
	AcceptanceCriteria []string     `json:"acceptance_criteria,omitempty"`
	ExternalRefs       []string     `json:"external_refs,omitempty"`
	Delegations        []Delegation `json:"delegations,omitempty"`
	Reviews            []Review     `json:"reviews,omitempty"`
	CreatedAt          string       `json:"created_at" format:"date-time"`
	UpdatedAt          string       `json:"updated_at" format:"date-time"`
	// StateChangedAt tracks when State last changed; the escalation
	// monitor uses it to find long-blocked items.
	StateChangedAt string `json:"state_changed_at" format:"date-time"`
}

type Delegation struct {
	ID          int64   `json:"id"`
	WorkItemID  string  `json:"work_item_id"`
	FromAgentID string  `json:"from_agent_id"`
	ToAgentID   string  `json:"to_agent_id"`
	SessionKey  string  `json:"session_key"`
	Isolated    bool    `json:"isolated"`
	Status      string  `json:"status" enum:"active,completed,failed"`
	Outcome     *string `json:"outcome,omitempty"`
	DelegatedAt string  `json:"delegated_at" format:"date-time"`
	ClosedAt    *string `json:"closed_at,omitempty" format:"date-time"`
}

type ReviewConcern struct {
	File        string `json:"file"`
	Severity    string `json:"severity" enum:"must_fix,should_fix,suggestion"`
	Description string `json:"description"`
}

type Review struct {
	ID              int64           `json:"id"`
	WorkItemID      string          `json:"work_item_id"`
	ReviewerAgentID string          `json:"reviewer_agent_id"`
	Status          string          `json:"status" enum:"pending,resolved"`
	Verdict         *string         `json:"verdict,omitempty" enum:"approved,changes_requested"`
	Feedback        *string         `json:"feedback,omitempty"`
	Concerns        []ReviewConcern `json:"concerns,omitempty"`
	RequestedAt     string          `json:"requested_at" format:"date-time"`
	ResolvedAt      *string         `json:"resolved_at,omitempty" format:"date-time"`
}

type Escalation struct {
	ID         string  `json:"id"`
	TeamID     *string `json:"team_id,omitempty"`
	SprintID   *string `json:"sprint_id,omitempty"`
	WorkItemID *string `json:"work_item_id,omitempty"`
	Reason     string  `json:"reason"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	Resolved   bool    `json:"resolved"`
	Resolution *string `json:"resolution,omitempty"`
	ResolvedAt *string `json:"resolved_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TeamID     string `json:"team_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
