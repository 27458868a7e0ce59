package server

import (
	"crewline/internal/domain"
)

// Request payloads

type CreateOrgRequest struct {
	Name string `json:"name"`
}

type MemberRequest struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
}

type CreateTeamRequest struct {
	OrgID   string          `json:"org_id"`
	Name    string          `json:"name"`
	Members []MemberRequest `json:"members,omitempty"`
}

type SetMembersRequest struct {
	Members []MemberRequest `json:"members"`
}

type CreateSprintRequest struct {
	TeamID        string  `json:"team_id"`
	Name          string  `json:"name"`
	BudgetScopeID *string `json:"budget_scope_id,omitempty"`
}

type TransitionSprintRequest struct {
	State string `json:"state" enum:"planned,active,review,closed,cancelled"`
}

type CreateWorkItemRequest struct {
	SprintID           string   `json:"sprint_id"`
	Title              string   `json:"title"`
	Description        *string  `json:"description,omitempty"`
	AssigneeAgentID    *string  `json:"assignee_agent_id,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	ExternalRefs       []string `json:"external_refs,omitempty"`
}

type UpdateWorkItemRequest struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	State              *string  `json:"state,omitempty" enum:"backlog,in_progress,in_review,blocked,done"`
	AssigneeAgentID    *string  `json:"assignee_agent_id,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	ExternalRefs       []string `json:"external_refs,omitempty"`
}

type DelegateRequest struct {
	ToAgentID  string `json:"to_agent_id"`
	SessionKey string `json:"session_key"`
	Isolated   bool   `json:"isolated,omitempty"`
}

type RequestReviewRequest struct {
	ReviewerAgentID string `json:"reviewer_agent_id"`
}

type VerdictRequest struct {
	ReviewerAgentID string                 `json:"reviewer_agent_id"`
	Verdict         string                 `json:"verdict" enum:"approved,changes_requested"`
	Feedback        *string                `json:"feedback,omitempty"`
	Concerns        []domain.ReviewConcern `json:"concerns,omitempty"`
}

type ResolveEscalationRequest struct {
	Resolution string `json:"resolution"`
}

type SubagentEndedRequest struct {
	TargetSessionKey string  `json:"target_session_key"`
	Outcome          string  `json:"outcome"`
	Reason           *string `json:"reason,omitempty"`
}

type PRMergedRequest struct {
	URL string `json:"url"`
}

func requestMembers(in []MemberRequest) []domain.TeamMember {
	members := make([]domain.TeamMember, 0, len(in))
	for _, m := range in {
		members = append(members, domain.TeamMember{AgentID: m.AgentID, Role: m.Role})
	}
	return members
}
