package repo

import (
	"context"
	"database/sql"
	"strings"

	"crewline/internal/domain"
)

const escalationColumns = `id,team_id,sprint_id,work_item_id,reason,created_at,resolved,resolution,resolved_at`

func scanEscalation(scan func(dest ...any) error) (domain.Escalation, error) {
	var e domain.Escalation
	var teamID, sprintID, workItemID, resolution, resolvedAt sql.NullString
	var resolved int
	err := scan(&e.ID, &teamID, &sprintID, &workItemID, &e.Reason, &e.CreatedAt, &resolved, &resolution, &resolvedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if teamID.Valid {
		e.TeamID = &teamID.String
	}
	if sprintID.Valid {
		e.SprintID = &sprintID.String
	}
	if workItemID.Valid {
		e.WorkItemID = &workItemID.String
	}
	e.Resolved = resolved != 0
	if resolution.Valid {
		e.Resolution = &resolution.String
	}
	if resolvedAt.Valid {
		e.ResolvedAt = &resolvedAt.String
	}
	return e, nil
}

func (r Repo) InsertEscalation(ctx context.Context, tx *sql.Tx, e domain.Escalation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO escalations(id,team_id,sprint_id,work_item_id,reason,created_at,resolved) VALUES (?,?,?,?,?,?,0)`,
		e.ID, nullableStringPtr(e.TeamID), nullableStringPtr(e.SprintID), nullableStringPtr(e.WorkItemID), e.Reason, e.CreatedAt)
	return err
}

func (r Repo) GetEscalation(ctx context.Context, id string) (domain.Escalation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id=?`, id)
	return scanEscalation(row.Scan)
}

type EscalationFilters struct {
	TeamID   string
	SprintID string
}

func (r Repo) ListOpenEscalations(ctx context.Context, f EscalationFilters) ([]domain.Escalation, error) {
	clauses := []string{"resolved=0"}
	var args []any
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.SprintID != "" {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// OpenEscalationForItem finds the unresolved escalation for a work item
// and reason, used to dedup repeated raises.
func (r Repo) OpenEscalationForItem(ctx context.Context, tx *sql.Tx, workItemID, reason string) (domain.Escalation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE resolved=0 AND work_item_id=? AND reason=? LIMIT 1`, workItemID, reason)
	return scanEscalation(row.Scan)
}

// MarkEscalationResolved resolves an open escalation; the resolved=0 guard
// makes double-resolution fail.
func (r Repo) MarkEscalationResolved(ctx context.Context, tx *sql.Tx, id, resolution, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE escalations SET resolved=1, resolution=?, resolved_at=? WHERE id=? AND resolved=0`,
		resolution, resolvedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type EscalationStats struct {
	Raised   int `json:"raised"`
	Resolved int `json:"resolved"`
}

func (r Repo) EscalationStatsForSprint(ctx context.Context, sprintID string) (EscalationStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT resolved, count(*) FROM escalations WHERE sprint_id=? GROUP BY resolved`, sprintID)
	if err != nil {
		return EscalationStats{}, err
	}
	defer rows.Close()
	var stats EscalationStats
	for rows.Next() {
		var resolved, count int
		if err := rows.Scan(&resolved, &count); err != nil {
			return stats, err
		}
		stats.Raised += count
		if resolved != 0 {
			stats.Resolved += count
		}
	}
	return stats, nil
}
