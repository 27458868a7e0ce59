package engine

import (
	"context"
	"errors"
	"strings"

	"crewline/internal/domain"
	"crewline/internal/events"
	"crewline/internal/repo"
)

// EscalationOptions are parameters for raising an escalation.
type EscalationOptions struct {
	TeamID     string
	SprintID   string
	WorkItemID string
	Reason     string
	ActorID    string
}

// RaiseEscalation records a new escalation. When the escalation references
// a work item and an unresolved one with the same reason already exists,
// the existing one is returned instead of a duplicate.
func (e Engine) RaiseEscalation(ctx context.Context, opts EscalationOptions) (domain.Escalation, error) {
	if strings.TrimSpace(opts.Reason) == "" {
		return domain.Escalation{}, invalidf("reason is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Escalation{}, err
	}
	defer tx.Rollback()

	if opts.WorkItemID != "" {
		existing, err := e.Repo.OpenEscalationForItem(ctx, tx, opts.WorkItemID, opts.Reason)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Escalation{}, err
		}
	}
	esc := domain.Escalation{
		ID:        newID(),
		Reason:    opts.Reason,
		CreatedAt: e.nowRFC3339(),
	}
	if opts.TeamID != "" {
		esc.TeamID = &opts.TeamID
	}
	if opts.SprintID != "" {
		esc.SprintID = &opts.SprintID
	}
	if opts.WorkItemID != "" {
		esc.WorkItemID = &opts.WorkItemID
	}
	if err := e.Repo.InsertEscalation(ctx, tx, esc); err != nil {
		return domain.Escalation{}, err
	}
	if err := e.Events.Append(ctx, tx, "escalation.raised", opts.TeamID, "escalation", esc.ID, opts.ActorID, events.EventPayload{
		"reason": esc.Reason, "work_item_id": opts.WorkItemID,
	}); err != nil {
		return domain.Escalation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Escalation{}, err
	}
	return esc, nil
}

func (e Engine) ListOpenEscalations(ctx context.Context, teamID, sprintID string) ([]domain.Escalation, error) {
	return e.Repo.ListOpenEscalations(ctx, repo.EscalationFilters{TeamID: teamID, SprintID: sprintID})
}

// ResolveEscalation marks an escalation resolved. Resolution is
// irreversible; resolving a missing or already-resolved escalation fails
// with not found.
func (e Engine) ResolveEscalation(ctx context.Context, id, resolution, actorID string) (domain.Escalation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Escalation{}, err
	}
	defer tx.Rollback()

	esc, err := e.Repo.GetEscalation(ctx, id)
	if err != nil {
		return domain.Escalation{}, err
	}
	resolvedAt := e.nowRFC3339()
	ok, err := e.Repo.MarkEscalationResolved(ctx, tx, id, resolution, resolvedAt)
	if err != nil {
		return domain.Escalation{}, err
	}
	if !ok {
		return domain.Escalation{}, repo.ErrNotFound
	}
	teamID := ""
	if esc.TeamID != nil {
		teamID = *esc.TeamID
	}
	if err := e.Events.Append(ctx, tx, "escalation.resolved", teamID, "escalation", id, actorID, events.EventPayload{
		"resolution": resolution,
	}); err != nil {
		return domain.Escalation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Escalation{}, err
	}
	esc.Resolved = true
	esc.Resolution = &resolution
	esc.ResolvedAt = &resolvedAt
	return esc, nil
}
