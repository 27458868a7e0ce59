package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"crewline/internal/domain"
)

func marshalStringSlice(in []string) any {
	if len(in) == 0 {
		return nil
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func unmarshalStringSlice(in sql.NullString) []string {
	if !in.Valid || in.String == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(in.String), &out)
	return out
}

func (r Repo) InsertWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_items(id,sprint_id,title,description,state,assignee_agent_id,acceptance_criteria_json,external_refs_json,created_at,updated_at,state_changed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.SprintID, w.Title, nullable(w.Description), w.State, nullableStringPtr(w.AssigneeAgentID),
		marshalStringSlice(w.AcceptanceCriteria), marshalStringSlice(w.ExternalRefs),
		w.CreatedAt, w.UpdatedAt, w.StateChangedAt)
	return err
}

func (r Repo) UpdateWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_items SET title=?, description=?, state=?, assignee_agent_id=?, acceptance_criteria_json=?, external_refs_json=?, updated_at=?, state_changed_at=? WHERE id=?`,
		w.Title, nullable(w.Description), w.State, nullableStringPtr(w.AssigneeAgentID),
		marshalStringSlice(w.AcceptanceCriteria), marshalStringSlice(w.ExternalRefs),
		w.UpdatedAt, w.StateChangedAt, w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWorkItem(scan func(dest ...any) error) (domain.WorkItem, error) {
	var w domain.WorkItem
	var description, assignee, criteria, refs sql.NullString
	err := scan(&w.ID, &w.SprintID, &w.Title, &description, &w.State, &assignee, &criteria, &refs,
		&w.CreatedAt, &w.UpdatedAt, &w.StateChangedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if description.Valid {
		w.Description = description.String
	}
	if assignee.Valid {
		w.AssigneeAgentID = &assignee.String
	}
	w.AcceptanceCriteria = unmarshalStringSlice(criteria)
	w.ExternalRefs = unmarshalStringSlice(refs)
	return w, nil
}

const workItemColumns = `id,sprint_id,title,description,state,assignee_agent_id,acceptance_criteria_json,external_refs_json,created_at,updated_at,state_changed_at`

// GetWorkItem returns the item without its delegation/review history.
func (r Repo) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=?`, id)
	return scanWorkItem(row.Scan)
}

func (r Repo) GetWorkItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=?`, id)
	return scanWorkItem(row.Scan)
}

type WorkItemFilters struct {
	SprintID string
	State    string
	Assignee string
}

func (r Repo) ListWorkItems(ctx context.Context, f WorkItemFilters) ([]domain.WorkItem, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.SprintID != "" {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	if f.Assignee != "" {
		clauses = append(clauses, "assignee_agent_id=?")
		args = append(args, f.Assignee)
	}
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}

// FindWorkItemByExternalRef finds the item whose externalRefs contains ref.
// The LIKE filter narrows candidates; the decoded list is the authority.
func (r Repo) FindWorkItemByExternalRef(ctx context.Context, ref string) (domain.WorkItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE external_refs_json LIKE ?`, "%"+ref+"%")
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer rows.Close()
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return domain.WorkItem{}, err
		}
		for _, r := range w.ExternalRefs {
			if r == ref {
				return w, nil
			}
		}
	}
	return domain.WorkItem{}, ErrNotFound
}

// ListBlockedItemsSince returns items in state blocked whose last state
// change predates the cutoff.
func (r Repo) ListBlockedItemsSince(ctx context.Context, cutoff string) ([]domain.WorkItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE state='blocked' AND state_changed_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}
