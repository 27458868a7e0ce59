package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"crewline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertOrganization(ctx context.Context, o domain.Organization) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO organizations(id,name,created_at) VALUES (?,?,?)`,
		o.ID, o.Name, o.CreatedAt)
	return err
}

func (r Repo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM organizations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO teams(id,org_id,name,created_at) VALUES (?,?,?,?)`,
		t.ID, t.OrgID, t.Name, t.CreatedAt); err != nil {
		return err
	}
	for _, m := range t.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO team_members(team_id,agent_id,role) VALUES (?,?,?)`,
			t.ID, m.AgentID, m.Role); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	var t domain.Team
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.OrgID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Members, err = r.ListTeamMembers(ctx, t.ID)
	return t, err
}

func (r Repo) ListTeams(ctx context.Context, orgID string) ([]domain.Team, error) {
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	query := `SELECT id,org_id,name,created_at FROM teams WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	rows.Close()
	for i := range res {
		members, err := r.ListTeamMembers(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}

func (r Repo) ListTeamMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT agent_id,role FROM team_members WHERE team_id=? ORDER BY agent_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.AgentID, &m.Role); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// ReplaceTeamMembers swaps the member roster inside the given tx.
func (r Repo) ReplaceTeamMembers(ctx context.Context, tx *sql.Tx, teamID string, members []domain.TeamMember) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=?`, teamID); err != nil {
		return err
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO team_members(team_id,agent_id,role) VALUES (?,?,?)`,
			teamID, m.AgentID, m.Role); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
