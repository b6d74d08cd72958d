package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

const attachmentColumns = `id, canvas_id, proof_point_id, monthly_review_id, filename, storage_key,
	content_type, size_bytes, label, uploaded_by, created_at`

type attachmentRow struct {
	ID              string    `db:"id"`
	CanvasID        string    `db:"canvas_id"`
	ProofPointID    *string   `db:"proof_point_id"`
	MonthlyReviewID *string   `db:"monthly_review_id"`
	Filename        string    `db:"filename"`
	StorageKey      string    `db:"storage_key"`
	ContentType     string    `db:"content_type"`
	SizeBytes       int64     `db:"size_bytes"`
	Label           *string   `db:"label"`
	UploadedBy      *string   `db:"uploaded_by"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r attachmentRow) toDomain() attachment.Attachment {
	return attachment.Attachment{
		ID:              r.ID,
		CanvasID:        r.CanvasID,
		ProofPointID:    r.ProofPointID,
		MonthlyReviewID: r.MonthlyReviewID,
		Filename:        r.Filename,
		StorageKey:      r.StorageKey,
		ContentType:     r.ContentType,
		SizeBytes:       r.SizeBytes,
		Label:           r.Label,
		UploadedBy:      r.UploadedBy,
		CreatedAt:       r.CreatedAt,
	}
}

const reviewColumns = `id, canvas_id, review_date, what_moved, what_learned, what_threatens,
	currently_testing_type, currently_testing_id, created_by, created_at`

type reviewRow struct {
	ID                   string    `db:"id"`
	CanvasID             string    `db:"canvas_id"`
	ReviewDate           time.Time `db:"review_date"`
	WhatMoved            *string   `db:"what_moved"`
	WhatLearned          *string   `db:"what_learned"`
	WhatThreatens        *string   `db:"what_threatens"`
	CurrentlyTestingType string    `db:"currently_testing_type"`
	CurrentlyTestingID   string    `db:"currently_testing_id"`
	CreatedBy            *string   `db:"created_by"`
	CreatedAt            time.Time `db:"created_at"`
}

func (r reviewRow) toDomain() review.MonthlyReview {
	return review.MonthlyReview{
		ID:                   r.ID,
		CanvasID:             r.CanvasID,
		ReviewDate:           r.ReviewDate.UTC(),
		WhatMoved:            r.WhatMoved,
		WhatLearned:          r.WhatLearned,
		WhatThreatens:        r.WhatThreatens,
		CurrentlyTestingType: canvas.TestingType(r.CurrentlyTestingType),
		CurrentlyTestingID:   r.CurrentlyTestingID,
		CreatedBy:            r.CreatedBy,
		CreatedAt:            r.CreatedAt,
	}
}

type commitmentRow struct {
	ID              string    `db:"id"`
	MonthlyReviewID string    `db:"monthly_review_id"`
	Text            string    `db:"text"`
	Order           int       `db:"order"`
	CreatedAt       time.Time `db:"created_at"`
}

// --- AttachmentStore --------------------------------------------------------

func (s *Store) CreateAttachment(ctx context.Context, a attachment.Attachment) (attachment.Attachment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (`+attachmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.CanvasID, a.ProofPointID, a.MonthlyReviewID, a.Filename, a.StorageKey,
		a.ContentType, a.SizeBytes, a.Label, a.UploadedBy, a.CreatedAt)
	if err != nil {
		return attachment.Attachment{}, mapInsertError(err)
	}
	return a, nil
}

func (s *Store) GetAttachment(ctx context.Context, id string) (attachment.Attachment, error) {
	var row attachmentRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id); err != nil {
		return attachment.Attachment{}, mapError(err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAttachmentsByCanvas(ctx context.Context, canvasID string) ([]attachment.Attachment, error) {
	return s.selectAttachments(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE canvas_id = $1 ORDER BY created_at, id`, canvasID)
}

func (s *Store) ListAttachmentsByReview(ctx context.Context, reviewID string) ([]attachment.Attachment, error) {
	return s.selectAttachments(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE monthly_review_id = $1 ORDER BY created_at, id`, reviewID)
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	return requireAffected(s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id))
}

func (s *Store) selectAttachments(ctx context.Context, query string, args ...interface{}) ([]attachment.Attachment, error) {
	var rows []attachmentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	result := make([]attachment.Attachment, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// --- ReviewStore ------------------------------------------------------------

func (s *Store) CreateReview(ctx context.Context, r review.MonthlyReview, attachmentIDs []string) (review.MonthlyReview, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	ts := now()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_reviews (`+reviewColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, r.ID, r.CanvasID, r.ReviewDate, r.WhatMoved, r.WhatLearned, r.WhatThreatens,
			string(r.CurrentlyTestingType), r.CurrentlyTestingID, r.CreatedBy, ts); err != nil {
			return mapInsertError(err)
		}

		for _, cm := range r.Commitments {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO commitments (id, monthly_review_id, text, "order", created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.NewString(), r.ID, cm.Text, cm.Order, ts); err != nil {
				return mapError(err)
			}
		}

		if len(attachmentIDs) > 0 {
			res, err := tx.ExecContext(ctx, `
				UPDATE attachments
				SET monthly_review_id = $1
				WHERE id = ANY($2) AND canvas_id = $3 AND proof_point_id IS NULL AND monthly_review_id IS NULL
			`, r.ID, pq.Array(attachmentIDs), r.CanvasID)
			if err != nil {
				return mapError(err)
			}
			if n, _ := res.RowsAffected(); int(n) != len(attachmentIDs) {
				return storage.ErrConflict
			}
		}

		return requireAffected(tx.ExecContext(ctx, `
			UPDATE canvases
			SET currently_testing_type = $2, currently_testing_id = $3, updated_by = $4, updated_at = $5
			WHERE id = $1
		`, r.CanvasID, string(r.CurrentlyTestingType), r.CurrentlyTestingID, r.CreatedBy, ts))
	})
	if err != nil {
		return review.MonthlyReview{}, err
	}
	return s.GetReview(ctx, r.ID)
}

func (s *Store) GetReview(ctx context.Context, id string) (review.MonthlyReview, error) {
	var row reviewRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+reviewColumns+` FROM monthly_reviews WHERE id = $1`, id); err != nil {
		return review.MonthlyReview{}, mapError(err)
	}
	reviews := []review.MonthlyReview{row.toDomain()}
	if err := s.attachReviewChildren(ctx, reviews); err != nil {
		return review.MonthlyReview{}, err
	}
	return reviews[0], nil
}

func (s *Store) ListReviews(ctx context.Context, canvasID string) ([]review.MonthlyReview, error) {
	var rows []reviewRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+reviewColumns+`
		FROM monthly_reviews
		WHERE canvas_id = $1
		ORDER BY review_date DESC, created_at DESC
	`, canvasID); err != nil {
		return nil, mapError(err)
	}
	result := make([]review.MonthlyReview, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	if err := s.attachReviewChildren(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachReviewChildren loads commitments and attachments for all reviews in
// two queries.
func (s *Store) attachReviewChildren(ctx context.Context, reviews []review.MonthlyReview) error {
	if len(reviews) == 0 {
		return nil
	}
	ids := make([]string, len(reviews))
	index := make(map[string]int, len(reviews))
	for i, r := range reviews {
		ids[i] = r.ID
		index[r.ID] = i
	}

	var commitments []commitmentRow
	if err := s.db.SelectContext(ctx, &commitments, `
		SELECT id, monthly_review_id, text, "order", created_at
		FROM commitments
		WHERE monthly_review_id = ANY($1)
		ORDER BY "order"
	`, pq.Array(ids)); err != nil {
		return mapError(err)
	}
	for _, c := range commitments {
		i := index[c.MonthlyReviewID]
		reviews[i].Commitments = append(reviews[i].Commitments, review.Commitment{
			ID:              c.ID,
			MonthlyReviewID: c.MonthlyReviewID,
			Text:            c.Text,
			Order:           c.Order,
			CreatedAt:       c.CreatedAt,
		})
	}

	attachments, err := s.selectAttachments(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments
		WHERE monthly_review_id = ANY($1)
		ORDER BY created_at, id
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	for _, a := range attachments {
		i := index[*a.MonthlyReviewID]
		reviews[i].Attachments = append(reviews[i].Attachments, a)
	}
	return nil
}
