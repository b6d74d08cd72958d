package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

const vbuSelect = `
	SELECT v.id, v.name, v.gm_id, u.name AS gm_name, v.group_leader_id, v.updated_by, v.created_at, v.updated_at
	FROM vbus v
	JOIN users u ON u.id = v.gm_id`

type vbuRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	GMID          string    `db:"gm_id"`
	GMName        string    `db:"gm_name"`
	GroupLeaderID *string   `db:"group_leader_id"`
	UpdatedBy     *string   `db:"updated_by"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r vbuRow) toDomain() vbu.VBU {
	return vbu.VBU{
		ID:            r.ID,
		Name:          r.Name,
		GMID:          r.GMID,
		GMName:        r.GMName,
		GroupLeaderID: r.GroupLeaderID,
		UpdatedBy:     r.UpdatedBy,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// --- VBUStore ---------------------------------------------------------------

func (s *Store) CreateVBU(ctx context.Context, v vbu.VBU, c canvas.Canvas) (vbu.VBU, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.LifecycleLane == "" {
		c.LifecycleLane = canvas.LaneBuild
	}
	ts := now()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vbus (id, name, gm_id, group_leader_id, updated_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, v.ID, v.Name, v.GMID, v.GroupLeaderID, v.UpdatedBy, ts); err != nil {
			return mapInsertError(err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO canvases (id, vbu_id, product_name, lifecycle_lane, updated_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, c.ID, v.ID, c.ProductName, string(c.LifecycleLane), c.UpdatedBy, ts); err != nil {
			return mapInsertError(err)
		}
		return nil
	})
	if err != nil {
		return vbu.VBU{}, err
	}
	return s.GetVBU(ctx, v.ID)
}

func (s *Store) UpdateVBU(ctx context.Context, v vbu.VBU) (vbu.VBU, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vbus
		SET name = $2, gm_id = $3, group_leader_id = $4, updated_by = $5, updated_at = $6
		WHERE id = $1
	`, v.ID, v.Name, v.GMID, v.GroupLeaderID, v.UpdatedBy, now())
	if err != nil {
		return vbu.VBU{}, mapInsertError(err)
	}
	if err := requireAffected(res, nil); err != nil {
		return vbu.VBU{}, err
	}
	return s.GetVBU(ctx, v.ID)
}

func (s *Store) GetVBU(ctx context.Context, id string) (vbu.VBU, error) {
	var row vbuRow
	if err := s.db.GetContext(ctx, &row, vbuSelect+` WHERE v.id = $1`, id); err != nil {
		return vbu.VBU{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListVBUs(ctx context.Context, filter storage.VBUFilter) ([]vbu.VBU, int, error) {
	where, args := vbuScopeClause(filter.GMID, filter.GroupLeaderID, filter.VBUID, nil)

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM vbus v`+where, args...); err != nil {
		return nil, 0, mapError(err)
	}

	query := vbuSelect + where + ` ORDER BY v.name, v.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	var rows []vbuRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, mapError(err)
	}
	result := make([]vbu.VBU, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, total, nil
}

func (s *Store) DeleteVBU(ctx context.Context, id string) error {
	return requireAffected(s.db.ExecContext(ctx, `DELETE FROM vbus WHERE id = $1`, id))
}

// vbuScopeClause builds a WHERE clause over alias v, continuing args.
func vbuScopeClause(gmID, groupLeaderID, vbuID string, args []interface{}) (string, []interface{}) {
	var conds []string
	if gmID != "" {
		args = append(args, gmID)
		conds = append(conds, fmt.Sprintf("v.gm_id = $%d", len(args)))
	}
	if groupLeaderID != "" {
		args = append(args, groupLeaderID)
		conds = append(conds, fmt.Sprintf("v.group_leader_id = $%d", len(args)))
	}
	if vbuID != "" {
		args = append(args, vbuID)
		conds = append(conds, fmt.Sprintf("v.id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
