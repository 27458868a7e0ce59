package repo

import (
	"context"
	"database/sql"

	"crewline/internal/domain"
)

const delegationColumns = `id,work_item_id,from_agent_id,to_agent_id,session_key,isolated,status,outcome,delegated_at,closed_at`

func scanDelegation(scan func(dest ...any) error) (domain.Delegation, error) {
	var d domain.Delegation
	var outcome, closedAt sql.NullString
	var isolated int
	err := scan(&d.ID, &d.WorkItemID, &d.FromAgentID, &d.ToAgentID, &d.SessionKey, &isolated, &d.Status, &outcome, &d.DelegatedAt, &closedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Isolated = isolated != 0
	if outcome.Valid {
		d.Outcome = &outcome.String
	}
	if closedAt.Valid {
		d.ClosedAt = &closedAt.String
	}
	return d, nil
}

func (r Repo) InsertDelegation(ctx context.Context, tx *sql.Tx, d domain.Delegation) (int64, error) {
	isolated := 0
	if d.Isolated {
		isolated = 1
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO delegations(work_item_id,from_agent_id,to_agent_id,session_key,isolated,status,delegated_at) VALUES (?,?,?,?,?,?,?)`,
		d.WorkItemID, d.FromAgentID, d.ToAgentID, d.SessionKey, isolated, d.Status, d.DelegatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListDelegations(ctx context.Context, workItemID string) ([]domain.Delegation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE work_item_id=? ORDER BY id ASC`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// ActiveDelegation finds the single active delegation for (workItemID, sessionKey).
func (r Repo) ActiveDelegation(ctx context.Context, tx *sql.Tx, workItemID, sessionKey string) (domain.Delegation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE work_item_id=? AND session_key=? AND status='active' LIMIT 1`,
		workItemID, sessionKey)
	return scanDelegation(row.Scan)
}

// ActiveDelegationBySession finds an active delegation by session key alone,
// for completion signals that carry no work item id.
func (r Repo) ActiveDelegationBySession(ctx context.Context, tx *sql.Tx, sessionKey string) (domain.Delegation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE session_key=? AND status='active' ORDER BY id DESC LIMIT 1`,
		sessionKey)
	return scanDelegation(row.Scan)
}

// CloseDelegation flips an active delegation to a terminal status. The
// status='active' guard makes it a no-op against already-closed rows.
func (r Repo) CloseDelegation(ctx context.Context, tx *sql.Tx, id int64, status, outcome, closedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE delegations SET status=?, outcome=?, closed_at=? WHERE id=? AND status='active'`,
		status, nullable(outcome), closedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListStaleActiveDelegations returns active delegations older than the cutoff.
func (r Repo) ListStaleActiveDelegations(ctx context.Context, cutoff string) ([]domain.Delegation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+delegationColumns+` FROM delegations WHERE status='active' AND delegated_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

type DelegationStats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (r Repo) DelegationStatsForSprint(ctx context.Context, sprintID string) (DelegationStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT d.status, count(*) FROM delegations d JOIN work_items w ON w.id=d.work_item_id WHERE w.sprint_id=? GROUP BY d.status`, sprintID)
	if err != nil {
		return DelegationStats{}, err
	}
	defer rows.Close()
	var stats DelegationStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch status {
		case "active":
			stats.Active = count
		case "completed":
			stats.Completed = count
		case "failed":
			stats.Failed = count
		}
	}
	return stats, nil
}
