package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"crewline/internal/domain"
)

const reviewColumns = `id,work_item_id,reviewer_agent_id,status,verdict,feedback,concerns_json,requested_at,resolved_at`

func scanReview(scan func(dest ...any) error) (domain.Review, error) {
	var rv domain.Review
	var verdict, feedback, concerns, resolvedAt sql.NullString
	err := scan(&rv.ID, &rv.WorkItemID, &rv.ReviewerAgentID, &rv.Status, &verdict, &feedback, &concerns, &rv.RequestedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return rv, ErrNotFound
	}
	if err != nil {
		return rv, err
	}
	if verdict.Valid {
		rv.Verdict = &verdict.String
	}
	if feedback.Valid {
		rv.Feedback = &feedback.String
	}
	if concerns.Valid && concerns.String != "" {
		_ = json.Unmarshal([]byte(concerns.String), &rv.Concerns)
	}
	if resolvedAt.Valid {
		rv.ResolvedAt = &resolvedAt.String
	}
	return rv, nil
}

func (r Repo) InsertReview(ctx context.Context, tx *sql.Tx, rv domain.Review) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO reviews(work_item_id,reviewer_agent_id,status,requested_at) VALUES (?,?,?,?)`,
		rv.WorkItemID, rv.ReviewerAgentID, rv.Status, rv.RequestedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListReviews(ctx context.Context, workItemID string) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE work_item_id=? ORDER BY id ASC`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, nil
}

// PendingReview finds the single pending review for a work item.
func (r Repo) PendingReview(ctx context.Context, tx *sql.Tx, workItemID string) (domain.Review, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE work_item_id=? AND status='pending' LIMIT 1`, workItemID)
	return scanReview(row.Scan)
}

// PendingReviewByReviewer finds the pending review held by a given reviewer.
func (r Repo) PendingReviewByReviewer(ctx context.Context, tx *sql.Tx, workItemID, reviewerAgentID string) (domain.Review, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE work_item_id=? AND reviewer_agent_id=? AND status='pending' LIMIT 1`,
		workItemID, reviewerAgentID)
	return scanReview(row.Scan)
}

// ResolveReview writes verdict, feedback, and concerns to a pending
// review. The status='pending' guard keeps resolved reviews immutable.
func (r Repo) ResolveReview(ctx context.Context, tx *sql.Tx, id int64, verdict, feedback string, concerns []domain.ReviewConcern, resolvedAt string) (bool, error) {
	var concernsJSON any
	if len(concerns) > 0 {
		b, err := json.Marshal(concerns)
		if err != nil {
			return false, err
		}
		concernsJSON = string(b)
	}
	res, err := tx.ExecContext(ctx, `UPDATE reviews SET status='resolved', verdict=?, feedback=?, concerns_json=?, resolved_at=? WHERE id=? AND status='pending'`,
		verdict, nullable(feedback), concernsJSON, resolvedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type ReviewStats struct {
	Pending          int `json:"pending"`
	Approved         int `json:"approved"`
	ChangesRequested int `json:"changes_requested"`
}

func (r Repo) ReviewStatsForSprint(ctx context.Context, sprintID string) (ReviewStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT rv.status, COALESCE(rv.verdict,''), count(*) FROM reviews rv JOIN work_items w ON w.id=rv.work_item_id WHERE w.sprint_id=? GROUP BY rv.status, rv.verdict`, sprintID)
	if err != nil {
		return ReviewStats{}, err
	}
	defer rows.Close()
	var stats ReviewStats
	for rows.Next() {
		var status, verdict string
		var count int
		if err := rows.Scan(&status, &verdict, &count); err != nil {
			return stats, err
		}
		switch {
		case status == "pending":
			stats.Pending += count
		case verdict == "approved":
			stats.Approved += count
		case verdict == "changes_requested":
			stats.ChangesRequested += count
		}
	}
	return stats, nil
}
