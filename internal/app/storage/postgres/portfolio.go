package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/portfolio"
)

const portfolioSelect = `
	SELECT v.id, v.name, v.gm_id, u.name AS gm_name, c.lifecycle_lane, c.success_description,
		CASE c.currently_testing_type
			WHEN 'thesis' THEN (SELECT t.text FROM theses t WHERE t.id = c.currently_testing_id)
			WHEN 'proof_point' THEN (SELECT p.description FROM proof_points p WHERE p.id = c.currently_testing_id)
		END AS currently_testing,
		(SELECT MAX(r.review_date) FROM monthly_reviews r WHERE r.canvas_id = c.id) + INTERVAL '1 month' AS next_review_date,
		c.primary_constraint,
		COALESCE(c.health_indicator_cache, 'Not Started') AS health_indicator,
		c.portfolio_notes
	FROM vbus v
	JOIN users u ON v.gm_id = u.id
	JOIN canvases c ON c.vbu_id = v.id`

type summaryRow struct {
	ID                 string     `db:"id"`
	Name               string     `db:"name"`
	GMID               string     `db:"gm_id"`
	GMName             string     `db:"gm_name"`
	LifecycleLane      string     `db:"lifecycle_lane"`
	SuccessDescription *string    `db:"success_description"`
	CurrentlyTesting   *string    `db:"currently_testing"`
	NextReviewDate     *time.Time `db:"next_review_date"`
	PrimaryConstraint  *string    `db:"primary_constraint"`
	HealthIndicator    string     `db:"health_indicator"`
	PortfolioNotes     *string    `db:"portfolio_notes"`
}

// --- PortfolioStore ---------------------------------------------------------

func (s *Store) PortfolioSummary(ctx context.Context, q portfolio.Query) ([]portfolio.Summary, error) {
	where, args := vbuScopeClause(q.ScopeGMID, q.ScopeGroupLeaderID, q.ScopeVBUID, nil)
	var extra []string
	if len(q.Lanes) > 0 {
		lanes := make([]string, len(q.Lanes))
		for i, l := range q.Lanes {
			lanes[i] = string(l)
		}
		args = append(args, pq.Array(lanes))
		extra = append(extra, fmt.Sprintf("c.lifecycle_lane = ANY($%d)", len(args)))
	}
	if len(q.GMIDs) > 0 {
		args = append(args, pq.Array(q.GMIDs))
		extra = append(extra, fmt.Sprintf("v.gm_id = ANY($%d::uuid[])", len(args)))
	}
	if len(q.HealthStatuses) > 0 {
		statuses := make([]string, len(q.HealthStatuses))
		for i, h := range q.HealthStatuses {
			statuses[i] = string(h)
		}
		args = append(args, pq.Array(statuses))
		extra = append(extra, fmt.Sprintf("COALESCE(c.health_indicator_cache, 'Not Started') = ANY($%d)", len(args)))
	}
	for _, cond := range extra {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows, portfolioSelect+where+` ORDER BY v.name, v.id`, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]portfolio.Summary, 0, len(rows))
	for _, r := range rows {
		result = append(result, portfolio.Summary{
			ID:                 r.ID,
			Name:               r.Name,
			GMID:               r.GMID,
			GMName:             r.GMName,
			LifecycleLane:      canvas.LifecycleLane(r.LifecycleLane),
			SuccessDescription: r.SuccessDescription,
			CurrentlyTesting:   r.CurrentlyTesting,
			NextReviewDate:     r.NextReviewDate,
			PrimaryConstraint:  r.PrimaryConstraint,
			HealthIndicator:    canvas.Health(r.HealthIndicator),
			PortfolioNotes:     r.PortfolioNotes,
		})
	}
	return result, nil
}

type notesRow struct {
	Notes     *string    `db:"notes"`
	UpdatedBy *string    `db:"updated_by"`
	UpdatedAt *time.Time `db:"updated_at"`
}

func (s *Store) GetPortfolioNotes(ctx context.Context) (portfolio.Notes, error) {
	var row notesRow
	err := s.db.GetContext(ctx, &row, `SELECT notes, updated_by, updated_at FROM portfolio_notes WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return portfolio.Notes{}, nil
	}
	if err != nil {
		return portfolio.Notes{}, mapError(err)
	}
	return portfolio.Notes{Notes: row.Notes, UpdatedBy: row.UpdatedBy, UpdatedAt: row.UpdatedAt}, nil
}

func (s *Store) UpdatePortfolioNotes(ctx context.Context, notes portfolio.Notes) (portfolio.Notes, error) {
	var row notesRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO portfolio_notes (id, notes, updated_by, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET notes = EXCLUDED.notes, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
		RETURNING notes, updated_by, updated_at
	`, notes.Notes, notes.UpdatedBy, now())
	if err != nil {
		return portfolio.Notes{}, mapError(err)
	}
	return portfolio.Notes{Notes: row.Notes, UpdatedBy: row.UpdatedBy, UpdatedAt: row.UpdatedAt}, nil
}
