package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"crewline/internal/config"
	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

func (e Engine) CreateOrganization(ctx context.Context, name, actorID string) (domain.Organization, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Organization{}, invalidf("organization name is required")
	}
	o := domain.Organization{
		ID:        newID(),
		Name:      name,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO organizations(id,name,created_at) VALUES (?,?,?)`,
		o.ID, o.Name, o.CreatedAt); err != nil {
		return domain.Organization{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.created", "", "org", o.ID, actorID, events.EventPayload{"name": o.Name}); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

// TeamCreateOptions are parameters for creating a team.
type TeamCreateOptions struct {
	OrgID   string
	Name    string
	Members []domain.TeamMember
	ActorID string
}

func (e Engine) CreateTeam(ctx context.Context, opts TeamCreateOptions) (domain.Team, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Team{}, invalidf("team name is required")
	}
	if opts.OrgID == "" {
		return domain.Team{}, invalidf("org is required")
	}
	if err := validateMembers(opts.Members); err != nil {
		return domain.Team{}, err
	}
	if _, err := e.Repo.GetOrganization(ctx, opts.OrgID); err != nil {
		return domain.Team{}, err
	}
	t := domain.Team{
		ID:        newID(),
		OrgID:     opts.OrgID,
		Name:      opts.Name,
		Members:   opts.Members,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTeam(ctx, tx, t); err != nil {
		return domain.Team{}, err
	}
	if err := e.Events.Append(ctx, tx, "team.created", t.ID, "team", t.ID, opts.ActorID, events.EventPayload{
		"name": t.Name, "org_id": t.OrgID, "members": len(t.Members),
	}); err != nil {
		return domain.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

// SetTeamMembers replaces the team roster.
func (e Engine) SetTeamMembers(ctx context.Context, teamID string, members []domain.TeamMember, actorID string) (domain.Team, error) {
	if err := validateMembers(members); err != nil {
		return domain.Team{}, err
	}
	t, err := e.Repo.GetTeam(ctx, teamID)
	if err != nil {
		return domain.Team{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceTeamMembers(ctx, tx, teamID, members); err != nil {
		return domain.Team{}, err
	}
	if err := e.Events.Append(ctx, tx, "team.members_updated", teamID, "team", teamID, actorID, events.EventPayload{
		"members": len(members),
	}); err != nil {
		return domain.Team{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}
	t.Members = members
	return t, nil
}

func validateMembers(members []domain.TeamMember) error {
	seen := map[string]bool{}
	for _, m := range members {
		if m.AgentID == "" {
			return invalidf("member agent id is required")
		}
		if m.Role == "" {
			return invalidf("member %s role is required", m.AgentID)
		}
		if seen[m.AgentID] {
			return invalidf("duplicate member %s", m.AgentID)
		}
		seen[m.AgentID] = true
	}
	return nil
}

// SprintCreateOptions are parameters for creating a sprint.
type SprintCreateOptions struct {
	TeamID        string
	Name          string
	BudgetScopeID string
	ActorID       string
}

func (e Engine) CreateSprint(ctx context.Context, opts SprintCreateOptions) (domain.Sprint, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Sprint{}, invalidf("sprint name is required")
	}
	if opts.TeamID == "" {
		return domain.Sprint{}, invalidf("team is required")
	}
	if _, err := e.Repo.GetTeam(ctx, opts.TeamID); err != nil {
		return domain.Sprint{}, err
	}
	now := e.nowRFC3339()
	s := domain.Sprint{
		ID:        newID(),
		TeamID:    opts.TeamID,
		Name:      opts.Name,
		State:     "planned",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.BudgetScopeID != "" {
		s.BudgetScopeID = &opts.BudgetScopeID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSprint(ctx, tx, s); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.Events.Append(ctx, tx, "sprint.created", s.TeamID, "sprint", s.ID, opts.ActorID, events.EventPayload{
		"name": s.Name,
	}); err != nil {
		return domain.Sprint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

// TransitionSprint is the sole sprint state mutator. It reads the current
// state, checks the edge is allowed, then persists the new state.
func (e Engine) TransitionSprint(ctx context.Context, sprintID, newState, actorID string) (domain.Sprint, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSprintTx(ctx, tx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := ensureSprintTransition(s.State, newState); err != nil {
		return domain.Sprint{}, err
	}
	from := s.State
	s.State = newState
	s.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateSprintState(ctx, tx, s.ID, s.State, s.UpdatedAt); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.Events.Append(ctx, tx, "sprint.state_changed", s.TeamID, "sprint", s.ID, actorID, events.EventPayload{
		"from": from, "to": s.State,
	}); err != nil {
		return domain.Sprint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

func ensureSprintTransition(oldState, newState string) error {
	switch oldState {
	case "planned":
		if newState == "active" {
			return nil
		}
	case "active":
		if newState == "review" || newState == "cancelled" {
			return nil
		}
	case "review":
		if newState == "closed" || newState == "active" {
			return nil
		}
	}
	return IllegalTransitionError{Entity: "sprint", From: oldState, To: newState}
}

// SprintReport aggregates sprint progress for dashboards and CLI output.
type SprintReport struct {
	Sprint      domain.Sprint        `json:"sprint"`
	Items       map[string]int       `json:"items"`
	Delegations repo.DelegationStats `json:"delegations"`
	Reviews     repo.ReviewStats     `json:"reviews"`
	Escalations repo.EscalationStats `json:"escalations"`
}

func (e Engine) SprintReport(ctx context.Context, sprintID string) (SprintReport, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return SprintReport{}, err
	}
	items, err := e.Repo.CountItemsByState(ctx, sprintID)
	if err != nil {
		return SprintReport{}, err
	}
	delegations, err := e.Repo.DelegationStatsForSprint(ctx, sprintID)
	if err != nil {
		return SprintReport{}, err
	}
	reviews, err := e.Repo.ReviewStatsForSprint(ctx, sprintID)
	if err != nil {
		return SprintReport{}, err
	}
	escalations, err := e.Repo.EscalationStatsForSprint(ctx, sprintID)
	if err != nil {
		return SprintReport{}, err
	}
	return SprintReport{
		Sprint:      s,
		Items:       items,
		Delegations: delegations,
		Reviews:     reviews,
		Escalations: escalations,
	}, nil
}

// SprintRetrospective splits a sprint's items into delivered and carryover
// and surfaces what went wrong along the way.
type SprintRetrospective struct {
	Sprint          domain.Sprint       `json:"sprint"`
	Delivered       []domain.WorkItem   `json:"delivered"`
	Carryover       []domain.WorkItem   `json:"carryover"`
	OpenEscalations []domain.Escalation `json:"open_escalations"`
}

func (e Engine) SprintRetrospective(ctx context.Context, sprintID string) (SprintRetrospective, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return SprintRetrospective{}, err
	}
	items, err := e.Repo.ListWorkItems(ctx, repo.WorkItemFilters{SprintID: sprintID})
	if err != nil {
		return SprintRetrospective{}, err
	}
	retro := SprintRetrospective{Sprint: s}
	for _, it := range items {
		if it.State == "done" {
			retro.Delivered = append(retro.Delivered, it)
		} else {
			retro.Carryover = append(retro.Carryover, it)
		}
	}
	open, err := e.Repo.ListOpenEscalations(ctx, repo.EscalationFilters{SprintID: sprintID})
	if err != nil {
		return SprintRetrospective{}, err
	}
	retro.OpenEscalations = open
	return retro, nil
}

// teamForSprint resolves the owning team, used for event attribution.
func (e Engine) teamForSprint(ctx context.Context, sprintID string) (string, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return "", err
	}
	return s.TeamID, nil
}
