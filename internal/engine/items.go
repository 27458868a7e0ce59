package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/repo"
)

// WorkItemCreateOptions are parameters for creating a work item.
type WorkItemCreateOptions struct {
	SprintID           string
	Title              string
	Description        string
	AssigneeAgentID    string
	AcceptanceCriteria []string
	ExternalRefs       []string
	ActorID            string
}

func (e Engine) CreateWorkItem(ctx context.Context, opts WorkItemCreateOptions) (domain.WorkItem, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.WorkItem{}, invalidf("title is required")
	}
	if opts.SprintID == "" {
		return domain.WorkItem{}, invalidf("sprint is required")
	}
	s, err := e.Repo.GetSprint(ctx, opts.SprintID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	now := e.nowRFC3339()
	w := domain.WorkItem{
		ID:                 newID(),
		SprintID:           opts.SprintID,
		Title:              opts.Title,
		Description:        opts.Description,
		State:              "backlog",
		AcceptanceCriteria: opts.AcceptanceCriteria,
		ExternalRefs:       opts.ExternalRefs,
		CreatedAt:          now,
		UpdatedAt:          now,
		StateChangedAt:     now,
	}
	if opts.AssigneeAgentID != "" {
		w.AssigneeAgentID = &opts.AssigneeAgentID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkItem(ctx, tx, w); err != nil {
		return domain.WorkItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "item.created", s.TeamID, "item", w.ID, opts.ActorID, events.EventPayload{
		"title": w.Title, "sprint_id": w.SprintID,
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return w, nil
}

// WorkItemUpdateOptions carry partial updates; zero values leave the field
// untouched, pointer fields distinguish "clear" from "leave alone".
type WorkItemUpdateOptions struct {
	ID                 string
	Title              string
	Description        *string
	State              string
	AssigneeAgentID    *string
	AcceptanceCriteria []string
	ExternalRefs       []string
	ActorID            string
}

func (e Engine) UpdateWorkItem(ctx context.Context, opts WorkItemUpdateOptions) (domain.WorkItem, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkItemTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	teamID, err := e.teamForSprint(ctx, w.SprintID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	now := e.nowRFC3339()
	if opts.Title != "" {
		w.Title = opts.Title
	}
	if opts.Description != nil {
		w.Description = *opts.Description
	}
	if opts.AssigneeAgentID != nil {
		if *opts.AssigneeAgentID == "" {
			w.AssigneeAgentID = nil
		} else {
			w.AssigneeAgentID = opts.AssigneeAgentID
		}
	}
	if opts.AcceptanceCriteria != nil {
		w.AcceptanceCriteria = opts.AcceptanceCriteria
	}
	if opts.ExternalRefs != nil {
		w.ExternalRefs = opts.ExternalRefs
	}
	var stateChanged bool
	var from string
	if opts.State != "" && opts.State != w.State {
		if err := ensureItemTransition(w.State, opts.State); err != nil {
			return domain.WorkItem{}, err
		}
		from = w.State
		w.State = opts.State
		w.StateChangedAt = now
		stateChanged = true
	}
	w.UpdatedAt = now
	if err := e.Repo.UpdateWorkItem(ctx, tx, w); err != nil {
		return domain.WorkItem{}, err
	}
	if stateChanged {
		if err := e.Events.Append(ctx, tx, "item.state_changed", teamID, "item", w.ID, opts.ActorID, events.EventPayload{
			"work_item_id": w.ID, "from": from, "to": w.State,
		}); err != nil {
			return domain.WorkItem{}, err
		}
	} else {
		if err := e.Events.Append(ctx, tx, "item.updated", teamID, "item", w.ID, opts.ActorID, nil); err != nil {
			return domain.WorkItem{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return w, nil
}

// UpdateItemState transitions a work item through the state machine.
func (e Engine) UpdateItemState(ctx context.Context, itemID, newState, actorID string) (domain.WorkItem, error) {
	return e.UpdateWorkItem(ctx, WorkItemUpdateOptions{ID: itemID, State: newState, ActorID: actorID})
}

// ReportBlocked is sugar for transitioning an item to blocked.
func (e Engine) ReportBlocked(ctx context.Context, itemID, actorID string) (domain.WorkItem, error) {
	return e.UpdateItemState(ctx, itemID, "blocked", actorID)
}

func ensureItemTransition(oldState, newState string) error {
	switch oldState {
	case "backlog":
		if newState == "in_progress" {
			return nil
		}
	case "in_progress":
		if newState == "in_review" || newState == "blocked" {
			return nil
		}
	case "in_review":
		if newState == "done" || newState == "in_progress" {
			return nil
		}
	case "blocked":
		if newState == "in_progress" {
			return nil
		}
	}
	return IllegalTransitionError{Entity: "work item", From: oldState, To: newState}
}

// GetWorkItem loads an item with its delegation and review history.
func (e Engine) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	w, err := e.Repo.GetWorkItem(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	w.Delegations, err = e.Repo.ListDelegations(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	w.Reviews, err = e.Repo.ListReviews(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	return w, nil
}

// DelegateOptions are parameters for handing a work item to another agent.
type DelegateOptions struct {
	WorkItemID  string
	FromAgentID string
	ToAgentID   string
	SessionKey  string
	Isolated    bool
}

func (e Engine) Delegate(ctx context.Context, opts DelegateOptions) (domain.Delegation, error) {
	if opts.SessionKey == "" {
		return domain.Delegation{}, invalidf("session key is required")
	}
	if opts.ToAgentID == "" {
		return domain.Delegation{}, invalidf("target agent is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Delegation{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkItemTx(ctx, tx, opts.WorkItemID)
	if err != nil {
		return domain.Delegation{}, err
	}
	teamID, err := e.teamForSprint(ctx, w.SprintID)
	if err != nil {
		return domain.Delegation{}, err
	}
	if _, err := e.Repo.ActiveDelegation(ctx, tx, opts.WorkItemID, opts.SessionKey); err == nil {
		return domain.Delegation{}, conflictf("delegation already active for item %s session %s", opts.WorkItemID, opts.SessionKey)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Delegation{}, err
	}
	d := domain.Delegation{
		WorkItemID:  opts.WorkItemID,
		FromAgentID: opts.FromAgentID,
		ToAgentID:   opts.ToAgentID,
		SessionKey:  opts.SessionKey,
		Isolated:    opts.Isolated,
		Status:      "active",
		DelegatedAt: e.nowRFC3339(),
	}
	d.ID, err = e.Repo.InsertDelegation(ctx, tx, d)
	if err != nil {
		return domain.Delegation{}, err
	}
	if err := e.Events.Append(ctx, tx, "delegation.started", teamID, "item", w.ID, opts.FromAgentID, events.EventPayload{
		"session_key": d.SessionKey, "to_agent_id": d.ToAgentID, "isolated": d.Isolated,
	}); err != nil {
		return domain.Delegation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Delegation{}, err
	}
	return d, nil
}

// CompleteDelegation closes the active delegation for (workItemId,
// sessionKey). When no active delegation matches it is a no-op: the
// triggering signal may arrive after the delegation was already closed.
// It never reopens a terminal delegation.
func (e Engine) CompleteDelegation(ctx context.Context, workItemID, sessionKey, status, outcome string) error {
	if status != "completed" && status != "failed" {
		return invalidf("invalid delegation close status %s", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d, err := e.Repo.ActiveDelegation(ctx, tx, workItemID, sessionKey)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.closeDelegation(ctx, tx, d, status, outcome)
}

// CompleteDelegationBySession resolves a delegation by session key alone;
// used by the subagent-ended hook, which only knows the session.
func (e Engine) CompleteDelegationBySession(ctx context.Context, sessionKey, status, outcome string) error {
	if status != "completed" && status != "failed" {
		return invalidf("invalid delegation close status %s", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d, err := e.Repo.ActiveDelegationBySession(ctx, tx, sessionKey)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.closeDelegation(ctx, tx, d, status, outcome)
}

func (e Engine) closeDelegation(ctx context.Context, tx *sql.Tx, d domain.Delegation, status, outcome string) error {
	w, err := e.Repo.GetWorkItemTx(ctx, tx, d.WorkItemID)
	if err != nil {
		return err
	}
	teamID, err := e.teamForSprint(ctx, w.SprintID)
	if err != nil {
		return err
	}
	closed, err := e.Repo.CloseDelegation(ctx, tx, d.ID, status, outcome, e.nowRFC3339())
	if err != nil {
		return err
	}
	if !closed {
		return nil
	}
	if err := e.Events.Append(ctx, tx, "delegation.closed", teamID, "item", d.WorkItemID, d.ToAgentID, events.EventPayload{
		"session_key": d.SessionKey, "status": status, "outcome": outcome,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RequestReview appends a pending review, or returns the existing pending
// one unchanged when the item is already awaiting review.
func (e Engine) RequestReview(ctx context.Context, workItemID, reviewerAgentID, actorID string) (domain.Review, error) {
	if reviewerAgentID == "" {
		return domain.Review{}, invalidf("reviewer agent is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, err
	}
	defer tx.Rollback()

	w, err := e.Repo.GetWorkItemTx(ctx, tx, workItemID)
	if err != nil {
		return domain.Review{}, err
	}
	teamID, err := e.teamForSprint(ctx, w.SprintID)
	if err != nil {
		return domain.Review{}, err
	}
	if existing, err := e.Repo.PendingReview(ctx, tx, workItemID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Review{}, err
	}
	rv := domain.Review{
		WorkItemID:      workItemID,
		ReviewerAgentID: reviewerAgentID,
		Status:          "pending",
		RequestedAt:     e.nowRFC3339(),
	}
	rv.ID, err = e.Repo.InsertReview(ctx, tx, rv)
	if err != nil {
		return domain.Review{}, err
	}
	if err := e.Events.Append(ctx, tx, "review.requested", teamID, "item", workItemID, actorID, events.EventPayload{
		"reviewer_agent_id": reviewerAgentID,
	}); err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// VerdictOptions are parameters for resolving a pending review.
type VerdictOptions struct {
	WorkItemID      string
	ReviewerAgentID string
	Verdict         string
	Feedback        string
	Concerns        []domain.ReviewConcern
}

func (e Engine) RecordVerdict(ctx context.Context, opts VerdictOptions) (domain.Review, error) {
	if opts.Verdict != "approved" && opts.Verdict != "changes_requested" {
		return domain.Review{}, invalidf("invalid verdict %s", opts.Verdict)
	}
	if opts.Verdict == "changes_requested" && len(opts.Concerns) == 0 {
		return domain.Review{}, invalidf("changes_requested requires at least one concern")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, err
	}
	defer tx.Rollback()

	rv, err := e.Repo.PendingReviewByReviewer(ctx, tx, opts.WorkItemID, opts.ReviewerAgentID)
	if err != nil {
		return domain.Review{}, err
	}
	w, err := e.Repo.GetWorkItemTx(ctx, tx, opts.WorkItemID)
	if err != nil {
		return domain.Review{}, err
	}
	teamID, err := e.teamForSprint(ctx, w.SprintID)
	if err != nil {
		return domain.Review{}, err
	}
	resolvedAt := e.nowRFC3339()
	ok, err := e.Repo.ResolveReview(ctx, tx, rv.ID, opts.Verdict, opts.Feedback, opts.Concerns, resolvedAt)
	if err != nil {
		return domain.Review{}, err
	}
	if !ok {
		return domain.Review{}, repo.ErrNotFound
	}
	rv.Status = "resolved"
	rv.Verdict = &opts.Verdict
	if opts.Feedback != "" {
		rv.Feedback = &opts.Feedback
	}
	rv.Concerns = opts.Concerns
	rv.ResolvedAt = &resolvedAt
	if err := e.Events.Append(ctx, tx, "review.resolved", teamID, "item", opts.WorkItemID, opts.ReviewerAgentID, events.EventPayload{
		"verdict": opts.Verdict, "concerns": len(opts.Concerns),
	}); err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// MarkItemDoneByExternalRef handles the merged pull request fact: find the
// item carrying the ref and force it to done. Items already done are left
// alone.
func (e Engine) MarkItemDoneByExternalRef(ctx context.Context, ref, actorID string) (domain.WorkItem, error) {
	w, err := e.Repo.FindWorkItemByExternalRef(ctx, ref)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if w.State == "done" {
		return w, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer tx.Rollback()

	w, err = e.Repo.GetWorkItemTx(ctx, tx, w.ID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	teamID, err := e.teamForSprint(ctx, w.SprintID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	from := w.State
	now := e.nowRFC3339()
	w.State = "done"
	w.StateChangedAt = now
	w.UpdatedAt = now
	if err := e.Repo.UpdateWorkItem(ctx, tx, w); err != nil {
		return domain.WorkItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "item.state_changed", teamID, "item", w.ID, actorID, events.EventPayload{
		"work_item_id": w.ID, "from": from, "to": "done", "external_ref": ref,
	}); err != nil {
		return domain.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return w, nil
}
