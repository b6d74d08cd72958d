package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

const canvasColumns = `id, vbu_id, product_name, lifecycle_lane, success_description, future_state_intent,
	primary_focus, resist_doing, good_discipline, primary_constraint, currently_testing_type,
	currently_testing_id, portfolio_notes, health_indicator_cache, health_computed_at, updated_by,
	created_at, updated_at`

type canvasRow struct {
	ID                   string     `db:"id"`
	VBUID                string     `db:"vbu_id"`
	ProductName          *string    `db:"product_name"`
	LifecycleLane        string     `db:"lifecycle_lane"`
	SuccessDescription   *string    `db:"success_description"`
	FutureStateIntent    *string    `db:"future_state_intent"`
	PrimaryFocus         *string    `db:"primary_focus"`
	ResistDoing          *string    `db:"resist_doing"`
	GoodDiscipline       *string    `db:"good_discipline"`
	PrimaryConstraint    *string    `db:"primary_constraint"`
	CurrentlyTestingType *string    `db:"currently_testing_type"`
	CurrentlyTestingID   *string    `db:"currently_testing_id"`
	PortfolioNotes       *string    `db:"portfolio_notes"`
	HealthIndicator      *string    `db:"health_indicator_cache"`
	HealthComputedAt     *time.Time `db:"health_computed_at"`
	UpdatedBy            *string    `db:"updated_by"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func (r canvasRow) toDomain() canvas.Canvas {
	c := canvas.Canvas{
		ID:                 r.ID,
		VBUID:              r.VBUID,
		ProductName:        r.ProductName,
		LifecycleLane:      canvas.LifecycleLane(r.LifecycleLane),
		SuccessDescription: r.SuccessDescription,
		FutureStateIntent:  r.FutureStateIntent,
		PrimaryFocus:       r.PrimaryFocus,
		ResistDoing:        r.ResistDoing,
		GoodDiscipline:     r.GoodDiscipline,
		PrimaryConstraint:  r.PrimaryConstraint,
		CurrentlyTestingID: r.CurrentlyTestingID,
		PortfolioNotes:     r.PortfolioNotes,
		HealthComputedAt:   r.HealthComputedAt,
		UpdatedBy:          r.UpdatedBy,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.CurrentlyTestingType != nil {
		t := canvas.TestingType(*r.CurrentlyTestingType)
		c.CurrentlyTestingType = &t
	}
	if r.HealthIndicator != nil {
		h := canvas.Health(*r.HealthIndicator)
		c.HealthIndicator = &h
	}
	return c
}

const categorySelect = `
	SELECT id, name, COALESCE(description, '') AS description, color, text_color
	FROM thesis_categories`

type categoryRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Color       string `db:"color"`
	TextColor   string `db:"text_color"`
}

func (r categoryRow) toDomain() canvas.Category {
	return canvas.Category{ID: r.ID, Name: r.Name, Description: r.Description, Color: r.Color, TextColor: r.TextColor}
}

type thesisRow struct {
	ID            string    `db:"id"`
	CanvasID      string    `db:"canvas_id"`
	Order         int       `db:"order"`
	Text          string    `db:"text"`
	Description   *string   `db:"description"`
	CategoryID    *string   `db:"category_id"`
	CategoryName  *string   `db:"category_name"`
	CategoryColor *string   `db:"category_color"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r thesisRow) toDomain() canvas.Thesis {
	return canvas.Thesis{
		ID:            r.ID,
		CanvasID:      r.CanvasID,
		Order:         r.Order,
		Text:          r.Text,
		Description:   r.Description,
		CategoryID:    r.CategoryID,
		CategoryName:  r.CategoryName,
		CategoryColor: r.CategoryColor,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const thesisSelect = `
	SELECT t.id, t.canvas_id, t."order", t.text, t.description, t.category_id,
		c.name AS category_name, c.color AS category_color, t.created_at, t.updated_at
	FROM theses t
	LEFT JOIN thesis_categories c ON c.id = t.category_id`

type proofPointRow struct {
	ID                string     `db:"id"`
	ThesisID          string     `db:"thesis_id"`
	Description       string     `db:"description"`
	Notes             *string    `db:"notes"`
	Status            string     `db:"status"`
	EvidenceNote      *string    `db:"evidence_note"`
	TargetReviewMonth *time.Time `db:"target_review_month"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func (r proofPointRow) toDomain() canvas.ProofPoint {
	return canvas.ProofPoint{
		ID:                r.ID,
		ThesisID:          r.ThesisID,
		Description:       r.Description,
		Notes:             r.Notes,
		Status:            canvas.ProofPointStatus(r.Status),
		EvidenceNote:      r.EvidenceNote,
		TargetReviewMonth: r.TargetReviewMonth,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const proofPointColumns = `p.id, p.thesis_id, p.description, p.notes, p.status, p.evidence_note,
	p.target_review_month, p.created_at, p.updated_at`

// --- CanvasStore ------------------------------------------------------------

func (s *Store) GetCanvas(ctx context.Context, id string) (canvas.Canvas, error) {
	var row canvasRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+canvasColumns+` FROM canvases WHERE id = $1`, id); err != nil {
		return canvas.Canvas{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetCanvasByVBU(ctx context.Context, vbuID string) (canvas.Canvas, error) {
	var row canvasRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+canvasColumns+` FROM canvases WHERE vbu_id = $1`, vbuID); err != nil {
		return canvas.Canvas{}, mapError(err)
	}
	return row.toDomain(), nil
}

// canvasTextColumns fixes the SET order so statements are stable.
var canvasTextColumns = []storage.CanvasColumn{
	storage.ColProductName, storage.ColLifecycleLane, storage.ColSuccessDescription,
	storage.ColFutureStateIntent, storage.ColPrimaryFocus, storage.ColResistDoing,
	storage.ColGoodDiscipline, storage.ColPrimaryConstraint, storage.ColPortfolioNotes,
}

// UpdateCanvas writes only the columns named by u. A new testing target is
// share-locked inside the transaction so a concurrent delete cannot leave the
// pointer dangling.
func (s *Store) UpdateCanvas(ctx context.Context, u storage.CanvasUpdate) (canvas.Canvas, error) {
	sets := []string{"updated_at = $2"}
	args := []interface{}{u.CanvasID, now()}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	for _, col := range canvasTextColumns {
		if v, ok := u.Text[col]; ok {
			add(string(col), v)
		}
	}
	if u.Testing != nil {
		add("currently_testing_type", testingTypeArg(u.Testing.Type))
		add("currently_testing_id", u.Testing.ID)
	}
	if u.UpdatedBy != nil {
		add("updated_by", u.UpdatedBy)
	}

	var row canvasRow
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if u.Testing != nil && u.Testing.ID != nil {
			if err := lockTestingTarget(ctx, tx, u.CanvasID, u.Testing); err != nil {
				return err
			}
		}
		query := `UPDATE canvases SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + canvasColumns
		return mapError(tx.GetContext(ctx, &row, query, args...))
	})
	if err != nil {
		return canvas.Canvas{}, err
	}
	return row.toDomain(), nil
}

func lockTestingTarget(ctx context.Context, tx *sqlx.Tx, canvasID string, p *storage.TestingPointer) error {
	var query string
	switch {
	case p.Type != nil && *p.Type == canvas.TestingThesis:
		query = `SELECT t.id FROM theses t WHERE t.id = $1 AND t.canvas_id = $2 FOR SHARE`
	case p.Type != nil && *p.Type == canvas.TestingProofPoint:
		query = `SELECT p.id FROM proof_points p JOIN theses t ON t.id = p.thesis_id
			WHERE p.id = $1 AND t.canvas_id = $2 FOR SHARE OF p`
	default:
		return storage.ErrConflict
	}
	var id string
	err := mapError(tx.GetContext(ctx, &id, query, *p.ID, canvasID))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ErrConflict
	}
	return err
}

func (s *Store) ListCanvasIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM canvases ORDER BY id`); err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func (s *Store) SetCanvasHealth(ctx context.Context, canvasID string, health canvas.Health, computedAt time.Time) error {
	return requireAffected(s.db.ExecContext(ctx, `
		UPDATE canvases SET health_indicator_cache = $2, health_computed_at = $3 WHERE id = $1
	`, canvasID, string(health), computedAt.UTC()))
}

func (s *Store) ListCategories(ctx context.Context) ([]canvas.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows, categorySelect+` ORDER BY name`); err != nil {
		return nil, mapError(err)
	}
	result := make([]canvas.Category, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (canvas.Category, error) {
	var row categoryRow
	if err := s.db.GetContext(ctx, &row, categorySelect+` WHERE id = $1`, id); err != nil {
		return canvas.Category{}, mapError(err)
	}
	return row.toDomain(), nil
}

// --- Theses -----------------------------------------------------------------

func (s *Store) CreateThesis(ctx context.Context, t canvas.Thesis) (canvas.Thesis, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO theses (id, canvas_id, "order", text, description, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, t.ID, t.CanvasID, t.Order, t.Text, t.Description, t.CategoryID, ts)
	if err != nil {
		return canvas.Thesis{}, mapInsertError(err)
	}
	return s.GetThesis(ctx, t.ID)
}

func (s *Store) UpdateThesis(ctx context.Context, t canvas.Thesis) (canvas.Thesis, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE theses
		SET "order" = $2, text = $3, description = $4, category_id = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.Order, t.Text, t.Description, t.CategoryID, now())
	if err := requireAffected(res, err); err != nil {
		return canvas.Thesis{}, err
	}
	return s.GetThesis(ctx, t.ID)
}

func (s *Store) GetThesis(ctx context.Context, id string) (canvas.Thesis, error) {
	var row thesisRow
	if err := s.db.GetContext(ctx, &row, thesisSelect+` WHERE t.id = $1`, id); err != nil {
		return canvas.Thesis{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTheses(ctx context.Context, canvasID string) ([]canvas.Thesis, error) {
	var rows []thesisRow
	if err := s.db.SelectContext(ctx, &rows, thesisSelect+` WHERE t.canvas_id = $1 ORDER BY t."order"`, canvasID); err != nil {
		return nil, mapError(err)
	}
	result := make([]canvas.Thesis, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteThesis(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE canvases
			SET currently_testing_type = NULL, currently_testing_id = NULL
			WHERE currently_testing_id = $1
				OR currently_testing_id IN (SELECT id FROM proof_points WHERE thesis_id = $1)
		`, id); err != nil {
			return mapError(err)
		}
		return requireAffected(tx.ExecContext(ctx, `DELETE FROM theses WHERE id = $1`, id))
	})
}

// ReorderTheses applies all order changes with the uniqueness constraint
// deferred to commit, so swaps do not collide mid-transaction.
func (s *Store) ReorderTheses(ctx context.Context, canvasID string, orders map[string]int) error {
	ts := now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET CONSTRAINTS uq_theses_canvas_order DEFERRED`); err != nil {
			return mapError(err)
		}
		for id, order := range orders {
			res, err := tx.ExecContext(ctx, `
				UPDATE theses SET "order" = $1, updated_at = $2 WHERE id = $3 AND canvas_id = $4
			`, order, ts, id, canvasID)
			if err := requireAffected(res, err); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Proof points -----------------------------------------------------------

func (s *Store) CreateProofPoint(ctx context.Context, pp canvas.ProofPoint) (canvas.ProofPoint, error) {
	if pp.ID == "" {
		pp.ID = uuid.NewString()
	}
	if pp.Status == "" {
		pp.Status = canvas.StatusNotStarted
	}
	ts := now()
	pp.CreatedAt = ts
	pp.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proof_points (id, thesis_id, description, notes, status, evidence_note, target_review_month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, pp.ID, pp.ThesisID, pp.Description, pp.Notes, string(pp.Status), pp.EvidenceNote, pp.TargetReviewMonth, ts)
	if err != nil {
		return canvas.ProofPoint{}, mapInsertError(err)
	}
	return pp, nil
}

func (s *Store) UpdateProofPoint(ctx context.Context, pp canvas.ProofPoint) (canvas.ProofPoint, error) {
	var row proofPointRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE proof_points p
		SET description = $2, notes = $3, status = $4, evidence_note = $5, target_review_month = $6, updated_at = $7
		WHERE p.id = $1
		RETURNING `+proofPointColumns,
		pp.ID, pp.Description, pp.Notes, string(pp.Status), pp.EvidenceNote, pp.TargetReviewMonth, now())
	if err != nil {
		return canvas.ProofPoint{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetProofPoint(ctx context.Context, id string) (canvas.ProofPoint, error) {
	var row proofPointRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+proofPointColumns+` FROM proof_points p WHERE p.id = $1`, id); err != nil {
		return canvas.ProofPoint{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListProofPoints(ctx context.Context, thesisID string) ([]canvas.ProofPoint, error) {
	return s.selectProofPoints(ctx, `
		SELECT `+proofPointColumns+`
		FROM proof_points p
		WHERE p.thesis_id = $1
		ORDER BY p.created_at, p.id
	`, thesisID)
}

func (s *Store) ListProofPointsByCanvas(ctx context.Context, canvasID string) ([]canvas.ProofPoint, error) {
	return s.selectProofPoints(ctx, `
		SELECT `+proofPointColumns+`
		FROM proof_points p
		JOIN theses t ON t.id = p.thesis_id
		WHERE t.canvas_id = $1
		ORDER BY p.created_at, p.id
	`, canvasID)
}

func (s *Store) DeleteProofPoint(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE canvases
			SET currently_testing_type = NULL, currently_testing_id = NULL
			WHERE currently_testing_id = $1
		`, id); err != nil {
			return mapError(err)
		}
		return requireAffected(tx.ExecContext(ctx, `DELETE FROM proof_points WHERE id = $1`, id))
	})
}

func (s *Store) selectProofPoints(ctx context.Context, query string, args ...interface{}) ([]canvas.ProofPoint, error) {
	var rows []proofPointRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]canvas.ProofPoint, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func testingTypeArg(t *canvas.TestingType) *string {
	if t == nil {
		return nil
	}
	v := string(*t)
	return &v
}
