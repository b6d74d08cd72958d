package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/metrics"
	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/storage"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

// DateLayout is the wire format of review dates.
const DateLayout = "2006-01-02"

// Service records and lists monthly reviews.
type Service struct {
	reviews  storage.ReviewStore
	canvases *canvases.Service
	log      *logging.Logger
	now      func() time.Time
}

// New creates a review service.
func New(reviews storage.ReviewStore, canvasSvc *canvases.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("reviews")
	}
	return &Service{reviews: reviews, canvases: canvasSvc, log: log, now: time.Now}
}

// CommitmentInput is one numbered commitment.
type CommitmentInput struct {
	Text  string
	Order int
}

// CreateInput is a review submission.
type CreateInput struct {
	ReviewDate           string
	WhatMoved            *string
	WhatLearned          *string
	WhatThreatens        *string
	CurrentlyTestingType string
	CurrentlyTestingID   string
	Commitments          []CommitmentInput
	AttachmentIDs        []string
}

// Create validates and stores a review, claims staged attachments and moves
// the canvas's currently-testing pointer, all in one transaction.
func (s *Service) Create(ctx context.Context, actor user.User, canvasID string, in CreateInput) (review.MonthlyReview, error) {
	if _, err := s.canvases.WritableCanvas(ctx, actor, canvasID); err != nil {
		return review.MonthlyReview{}, err
	}

	date, err := s.parseReviewDate(in.ReviewDate)
	if err != nil {
		return review.MonthlyReview{}, err
	}
	for field, v := range map[string]*string{"what_moved": in.WhatMoved, "what_learned": in.WhatLearned, "what_threatens": in.WhatThreatens} {
		if v != nil && len([]rune(*v)) > review.MaxNarrativeLen {
			return review.MonthlyReview{}, apperrors.InvalidFormat(field, "must be at most 5000 characters")
		}
	}
	kind, err := s.canvases.ValidateTestingTarget(ctx, canvasID, in.CurrentlyTestingType, in.CurrentlyTestingID)
	if err != nil {
		return review.MonthlyReview{}, err
	}
	commitments, err := validateCommitments(in.Commitments)
	if err != nil {
		return review.MonthlyReview{}, err
	}
	attachmentIDs, err := validateAttachmentIDs(in.AttachmentIDs)
	if err != nil {
		return review.MonthlyReview{}, err
	}

	actorID := actor.ID
	created, err := s.reviews.CreateReview(ctx, review.MonthlyReview{
		CanvasID:             canvasID,
		ReviewDate:           date,
		WhatMoved:            nonBlank(in.WhatMoved),
		WhatLearned:          nonBlank(in.WhatLearned),
		WhatThreatens:        nonBlank(in.WhatThreatens),
		CurrentlyTestingType: kind,
		CurrentlyTestingID:   in.CurrentlyTestingID,
		CreatedBy:            &actorID,
		Commitments:          commitments,
	}, attachmentIDs)
	switch {
	case errors.Is(err, storage.ErrConflict) && len(attachmentIDs) > 0 && !s.dateTaken(ctx, canvasID, date):
		return review.MonthlyReview{}, apperrors.InvalidFormat("attachment_ids", "attachments must be staged on this canvas")
	case errors.Is(err, storage.ErrConflict):
		return review.MonthlyReview{}, apperrors.Conflict("A review already exists for this date")
	case errors.Is(err, storage.ErrNotFound):
		return review.MonthlyReview{}, apperrors.InvalidFormat("attachment_ids", "attachment not found")
	case err != nil:
		return review.MonthlyReview{}, apperrors.Internal("", err)
	}

	metrics.RecordReviewCreated()
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"review_id":   created.ID,
		"canvas_id":   canvasID,
		"attachments": len(attachmentIDs),
	}).Info("monthly review created")
	return normalize(created), nil
}

// List returns the reviews of a canvas, newest first.
func (s *Service) List(ctx context.Context, actor user.User, canvasID string) ([]review.MonthlyReview, error) {
	if _, err := s.canvases.ReadableCanvas(ctx, actor, canvasID); err != nil {
		return nil, err
	}
	list, err := s.reviews.ListReviews(ctx, canvasID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	out := make([]review.MonthlyReview, 0, len(list))
	for _, r := range list {
		out = append(out, normalize(r))
	}
	return out, nil
}

// Get returns one review the actor can read.
func (s *Service) Get(ctx context.Context, actor user.User, id string) (review.MonthlyReview, error) {
	r, err := s.reviews.GetReview(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return review.MonthlyReview{}, apperrors.NotFound("Monthly review")
	}
	if err != nil {
		return review.MonthlyReview{}, apperrors.Internal("", err)
	}
	if _, err := s.canvases.ReadableCanvas(ctx, actor, r.CanvasID); err != nil {
		return review.MonthlyReview{}, err
	}
	return normalize(r), nil
}

// Latest returns the most recent review of a canvas, if any.
func (s *Service) Latest(ctx context.Context, canvasID string) (*review.MonthlyReview, error) {
	list, err := s.reviews.ListReviews(ctx, canvasID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	latest := normalize(list[0])
	return &latest, nil
}

// Options lists the theses and proof points a review may mark as currently
// being tested.
func (s *Service) Options(ctx context.Context, actor user.User, canvasID string) ([]canvas.Thesis, error) {
	t, err := s.canvases.ReadableCanvas(ctx, actor, canvasID)
	if err != nil {
		return nil, err
	}
	tree, err := s.canvases.Tree(ctx, t.Canvas)
	if err != nil {
		return nil, err
	}
	return tree.Theses, nil
}

func (s *Service) parseReviewDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperrors.InvalidFormat("review_date", "required")
	}
	date, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, apperrors.InvalidFormat("review_date", "expected YYYY-MM-DD")
	}
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.After(today) {
		return time.Time{}, apperrors.Validation("Review date cannot be in the future").WithDetails("field", "review_date")
	}
	return date, nil
}

func (s *Service) dateTaken(ctx context.Context, canvasID string, date time.Time) bool {
	list, err := s.reviews.ListReviews(ctx, canvasID)
	if err != nil {
		return false
	}
	for _, r := range list {
		if r.ReviewDate.Equal(date) {
			return true
		}
	}
	return false
}

func validateCommitments(in []CommitmentInput) ([]review.Commitment, error) {
	if len(in) < 1 || len(in) > review.MaxCommitments {
		return nil, apperrors.InvalidFormat("commitments", "between 1 and 3 commitments are required")
	}
	seen := make(map[int]bool, len(in))
	out := make([]review.Commitment, 0, len(in))
	for _, c := range in {
		if c.Order < 1 || c.Order > review.MaxCommitments {
			return nil, apperrors.InvalidFormat("commitments", "order must be between 1 and 3")
		}
		if seen[c.Order] {
			return nil, apperrors.Validation("Commitment orders must be unique").WithDetails("field", "commitments")
		}
		seen[c.Order] = true
		text := strings.TrimSpace(c.Text)
		if text == "" || len([]rune(text)) > review.MaxCommitmentLen {
			return nil, apperrors.InvalidFormat("commitments", "text must be between 1 and 1000 characters")
		}
		out = append(out, review.Commitment{Text: text, Order: c.Order})
	}
	return out, nil
}

func validateAttachmentIDs(ids []string) ([]string, error) {
	if len(ids) > review.MaxAttachments {
		return nil, apperrors.InvalidFormat("attachment_ids", "at most 10 attachments")
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func normalize(r review.MonthlyReview) review.MonthlyReview {
	if r.Commitments == nil {
		r.Commitments = []review.Commitment{}
	}
	if r.Attachments == nil {
		r.Attachments = []attachment.Attachment{}
	}
	return r
}

func nonBlank(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}
