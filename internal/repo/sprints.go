package repo

import (
	"context"
	"database/sql"
	"strings"

	"crewline/internal/domain"
)

func scanSprint(scan func(dest ...any) error) (domain.Sprint, error) {
	var s domain.Sprint
	var budgetScope sql.NullString
	err := scan(&s.ID, &s.TeamID, &s.Name, &budgetScope, &s.State, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if budgetScope.Valid {
		s.BudgetScopeID = &budgetScope.String
	}
	return s, nil
}

func (r Repo) InsertSprint(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sprints(id,team_id,name,budget_scope_id,state,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.TeamID, s.Name, nullableStringPtr(s.BudgetScopeID), s.State, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,team_id,name,budget_scope_id,state,created_at,updated_at FROM sprints WHERE id=?`, id)
	return scanSprint(row.Scan)
}

func (r Repo) GetSprintTx(ctx context.Context, tx *sql.Tx, id string) (domain.Sprint, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,team_id,name,budget_scope_id,state,created_at,updated_at FROM sprints WHERE id=?`, id)
	return scanSprint(row.Scan)
}

type SprintFilters struct {
	TeamID string
	State  string
}

func (r Repo) ListSprints(ctx context.Context, f SprintFilters) ([]domain.Sprint, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.TeamID != "" {
		clauses = append(clauses, "team_id=?")
		args = append(args, f.TeamID)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	query := `SELECT id,team_id,name,budget_scope_id,state,created_at,updated_at FROM sprints WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		var s domain.Sprint
		var budgetScope sql.NullString
		if err := rows.Scan(&s.ID, &s.TeamID, &s.Name, &budgetScope, &s.State, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if budgetScope.Valid {
			s.BudgetScopeID = &budgetScope.String
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) UpdateSprintState(ctx context.Context, tx *sql.Tx, id, state, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sprints SET state=?, updated_at=? WHERE id=?`, state, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountItemsByState(ctx context.Context, sprintID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT state, count(*) FROM work_items WHERE sprint_id=? GROUP BY state`, sprintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		res[state] = count
	}
	return res, nil
}
