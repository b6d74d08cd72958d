package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/portfolio"
	"github.com/R3E-Network/canvas/internal/app/domain/review"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

// AttachmentStore implementation -------------------------------------------

func (s *Store) CreateAttachment(_ context.Context, a attachment.Attachment) (attachment.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.canvases[a.CanvasID]; !ok {
		return attachment.Attachment{}, storage.ErrNotFound
	}
	if a.ProofPointID != nil && a.MonthlyReviewID != nil {
		return attachment.Attachment{}, storage.ErrConflict
	}
	if a.ProofPointID != nil {
		if _, ok := s.proofPoints[*a.ProofPointID]; !ok {
			return attachment.Attachment{}, storage.ErrNotFound
		}
	}
	if a.MonthlyReviewID != nil {
		if _, ok := s.reviews[*a.MonthlyReviewID]; !ok {
			return attachment.Attachment{}, storage.ErrNotFound
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = s.nowLocked()
	s.attachments[a.ID] = a
	return a, nil
}

func (s *Store) GetAttachment(_ context.Context, id string) (attachment.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attachments[id]
	if !ok {
		return attachment.Attachment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAttachmentsByCanvas(_ context.Context, canvasID string) ([]attachment.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterAttachmentsLocked(func(a attachment.Attachment) bool { return a.CanvasID == canvasID }), nil
}

func (s *Store) ListAttachmentsByReview(_ context.Context, reviewID string) ([]attachment.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.reviewAttachmentsLocked(reviewID), nil
}

func (s *Store) DeleteAttachment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attachments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.attachments, id)
	return nil
}

func (s *Store) reviewAttachmentsLocked(reviewID string) []attachment.Attachment {
	return s.filterAttachmentsLocked(func(a attachment.Attachment) bool {
		return a.MonthlyReviewID != nil && *a.MonthlyReviewID == reviewID
	})
}

func (s *Store) filterAttachmentsLocked(keep func(attachment.Attachment) bool) []attachment.Attachment {
	var result []attachment.Attachment
	for _, a := range s.attachments {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// ReviewStore implementation -----------------------------------------------

func (s *Store) CreateReview(_ context.Context, r review.MonthlyReview, attachmentIDs []string) (review.MonthlyReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.canvases[r.CanvasID]
	if !ok {
		return review.MonthlyReview{}, storage.ErrNotFound
	}
	for _, existing := range s.reviews {
		if existing.CanvasID == r.CanvasID && existing.ReviewDate.Equal(r.ReviewDate) {
			return review.MonthlyReview{}, storage.ErrConflict
		}
	}
	for _, id := range attachmentIDs {
		a, ok := s.attachments[id]
		if !ok {
			return review.MonthlyReview{}, storage.ErrNotFound
		}
		if a.CanvasID != r.CanvasID || a.Entity() != attachment.EntityStaged {
			return review.MonthlyReview{}, storage.ErrConflict
		}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.nowLocked()
	r.CreatedAt = now
	commitments := make([]review.Commitment, len(r.Commitments))
	for i, cm := range r.Commitments {
		cm.ID = uuid.NewString()
		cm.MonthlyReviewID = r.ID
		cm.CreatedAt = now
		commitments[i] = cm
	}
	sort.Slice(commitments, func(i, j int) bool { return commitments[i].Order < commitments[j].Order })
	r.Commitments = commitments
	r.Attachments = nil
	s.reviews[r.ID] = r

	for _, id := range attachmentIDs {
		a := s.attachments[id]
		reviewID := r.ID
		a.MonthlyReviewID = &reviewID
		s.attachments[id] = a
	}

	testingType := r.CurrentlyTestingType
	testingID := r.CurrentlyTestingID
	c.CurrentlyTestingType = &testingType
	c.CurrentlyTestingID = &testingID
	c.UpdatedBy = r.CreatedBy
	c.UpdatedAt = now
	s.canvases[c.ID] = c

	r.Attachments = s.reviewAttachmentsLocked(r.ID)
	return r, nil
}

func (s *Store) GetReview(_ context.Context, id string) (review.MonthlyReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[id]
	if !ok {
		return review.MonthlyReview{}, storage.ErrNotFound
	}
	r.Commitments = append([]review.Commitment(nil), r.Commitments...)
	r.Attachments = s.reviewAttachmentsLocked(id)
	return r, nil
}

func (s *Store) ListReviews(_ context.Context, canvasID string) ([]review.MonthlyReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []review.MonthlyReview
	for _, r := range s.reviews {
		if r.CanvasID != canvasID {
			continue
		}
		r.Commitments = append([]review.Commitment(nil), r.Commitments...)
		r.Attachments = s.reviewAttachmentsLocked(r.ID)
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReviewDate.Equal(result[j].ReviewDate) {
			return result[i].ReviewDate.After(result[j].ReviewDate)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// PortfolioStore implementation --------------------------------------------

func (s *Store) PortfolioSummary(_ context.Context, q portfolio.Query) ([]portfolio.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []portfolio.Summary
	for _, v := range s.vbus {
		if !vbuInScope(v, q.ScopeGMID, q.ScopeGroupLeaderID, q.ScopeVBUID) {
			continue
		}
		if len(q.GMIDs) > 0 && !containsString(q.GMIDs, v.GMID) {
			continue
		}
		c, ok := s.canvasByVBULocked(v.ID)
		if !ok {
			continue
		}
		if len(q.Lanes) > 0 && !containsLane(q.Lanes, c.LifecycleLane) {
			continue
		}
		health := c.EffectiveHealth()
		if len(q.HealthStatuses) > 0 && !containsHealth(q.HealthStatuses, health) {
			continue
		}
		gm, ok := s.users[v.GMID]
		if !ok {
			continue
		}

		result = append(result, portfolio.Summary{
			ID:                 v.ID,
			Name:               v.Name,
			GMID:               v.GMID,
			GMName:             gm.Name,
			LifecycleLane:      c.LifecycleLane,
			SuccessDescription: c.SuccessDescription,
			CurrentlyTesting:   s.currentlyTestingTextLocked(c),
			NextReviewDate:     s.nextReviewDateLocked(c.ID),
			PrimaryConstraint:  c.PrimaryConstraint,
			HealthIndicator:    health,
			PortfolioNotes:     c.PortfolioNotes,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) GetPortfolioNotes(_ context.Context) (portfolio.Notes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes, nil
}

func (s *Store) UpdatePortfolioNotes(_ context.Context, notes portfolio.Notes) (portfolio.Notes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowLocked()
	notes.UpdatedAt = &now
	s.notes = notes
	return notes, nil
}

func (s *Store) currentlyTestingTextLocked(c canvas.Canvas) *string {
	if c.CurrentlyTestingType == nil || c.CurrentlyTestingID == nil {
		return nil
	}
	switch *c.CurrentlyTestingType {
	case canvas.TestingThesis:
		if t, ok := s.theses[*c.CurrentlyTestingID]; ok {
			text := t.Text
			return &text
		}
	case canvas.TestingProofPoint:
		if pp, ok := s.proofPoints[*c.CurrentlyTestingID]; ok {
			text := pp.Description
			return &text
		}
	}
	return nil
}

func (s *Store) nextReviewDateLocked(canvasID string) *time.Time {
	var latest time.Time
	for _, r := range s.reviews {
		if r.CanvasID == canvasID && r.ReviewDate.After(latest) {
			latest = r.ReviewDate
		}
	}
	if latest.IsZero() {
		return nil
	}
	next := addMonthClamped(latest)
	return &next
}

// addMonthClamped adds one calendar month, clamping to the last day of the
// target month as PostgreSQL interval arithmetic does.
func addMonthClamped(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

func containsLane(values []canvas.LifecycleLane, v canvas.LifecycleLane) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsHealth(values []canvas.Health, v canvas.Health) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
