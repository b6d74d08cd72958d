package canvases

import (
	"context"
	"strings"
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
)

// ProofPointInput describes a new proof point. TargetReviewMonth is
// "YYYY-MM".
type ProofPointInput struct {
	Description       string
	Notes             *string
	Status            string
	EvidenceNote      *string
	TargetReviewMonth *string
}

// ProofPointPatch carries optional proof point changes. An empty
// TargetReviewMonth clears it.
type ProofPointPatch struct {
	Description       *string
	Notes             *string
	Status            *string
	EvidenceNote      *string
	TargetReviewMonth *string
}

// ListProofPoints returns the proof points of thesisID by creation time.
func (s *Service) ListProofPoints(ctx context.Context, actor user.User, thesisID string) ([]canvas.ProofPoint, error) {
	if _, err := s.readableThesis(ctx, actor, thesisID); err != nil {
		return nil, err
	}
	pps, err := s.canvases.ListProofPoints(ctx, thesisID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	return nonNilProofPoints(pps), nil
}

// CreateProofPoint adds a proof point to thesisID and refreshes the canvas
// health.
func (s *Service) CreateProofPoint(ctx context.Context, actor user.User, thesisID string, in ProofPointInput) (canvas.ProofPoint, error) {
	t, err := s.writableThesis(ctx, actor, thesisID)
	if err != nil {
		return canvas.ProofPoint{}, err
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return canvas.ProofPoint{}, apperrors.InvalidFormat("description", "must not be empty")
	}
	status := canvas.StatusNotStarted
	if in.Status != "" {
		if status, err = parseStatus(in.Status); err != nil {
			return canvas.ProofPoint{}, err
		}
	}
	var target *time.Time
	if in.TargetReviewMonth != nil && *in.TargetReviewMonth != "" {
		month, err := ParseMonth(*in.TargetReviewMonth)
		if err != nil {
			return canvas.ProofPoint{}, err
		}
		target = &month
	}

	created, err := s.canvases.CreateProofPoint(ctx, canvas.ProofPoint{
		ThesisID:          thesisID,
		Description:       desc,
		Notes:             trimmed(in.Notes),
		Status:            status,
		EvidenceNote:      trimmed(in.EvidenceNote),
		TargetReviewMonth: target,
	})
	if err != nil {
		return canvas.ProofPoint{}, notFoundOr(err, "Thesis")
	}
	s.refreshHealth(ctx, t.CanvasID)
	created.Attachments = []canvas.AttachmentRef{}
	return created, nil
}

// UpdateProofPoint applies patch and refreshes the canvas health.
func (s *Service) UpdateProofPoint(ctx context.Context, actor user.User, id string, patch ProofPointPatch) (canvas.ProofPoint, error) {
	pp, canvasID, err := s.writableProofPoint(ctx, actor, id)
	if err != nil {
		return canvas.ProofPoint{}, err
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if desc == "" {
			return canvas.ProofPoint{}, apperrors.InvalidFormat("description", "must not be empty")
		}
		pp.Description = desc
	}
	if patch.Notes != nil {
		pp.Notes = trimmed(patch.Notes)
	}
	if patch.Status != nil {
		status, err := parseStatus(*patch.Status)
		if err != nil {
			return canvas.ProofPoint{}, err
		}
		pp.Status = status
	}
	if patch.EvidenceNote != nil {
		pp.EvidenceNote = trimmed(patch.EvidenceNote)
	}
	if patch.TargetReviewMonth != nil {
		if *patch.TargetReviewMonth == "" {
			pp.TargetReviewMonth = nil
		} else {
			month, err := ParseMonth(*patch.TargetReviewMonth)
			if err != nil {
				return canvas.ProofPoint{}, err
			}
			pp.TargetReviewMonth = &month
		}
	}

	updated, err := s.canvases.UpdateProofPoint(ctx, pp)
	if err != nil {
		return canvas.ProofPoint{}, notFoundOr(err, "Proof point")
	}
	s.refreshHealth(ctx, canvasID)

	atts, err := s.attachmentsWhere(ctx, canvasID, func(a attachment.Attachment) bool {
		return a.ProofPointID != nil && *a.ProofPointID == updated.ID
	})
	if err != nil {
		return canvas.ProofPoint{}, err
	}
	updated.Attachments = []canvas.AttachmentRef{}
	for _, a := range atts {
		updated.Attachments = append(updated.Attachments, canvas.AttachmentRef{
			ID: a.ID, Filename: a.Filename, ContentType: a.ContentType,
			SizeBytes: a.SizeBytes, Label: a.Label, CreatedAt: a.CreatedAt,
		})
	}
	return updated, nil
}

// DeleteProofPoint removes a proof point with its attachments and refreshes
// the canvas health.
func (s *Service) DeleteProofPoint(ctx context.Context, actor user.User, id string) error {
	_, canvasID, err := s.writableProofPoint(ctx, actor, id)
	if err != nil {
		return err
	}
	orphans, err := s.attachmentsWhere(ctx, canvasID, func(a attachment.Attachment) bool {
		return a.ProofPointID != nil && *a.ProofPointID == id
	})
	if err != nil {
		return err
	}
	if err := s.canvases.DeleteProofPoint(ctx, id); err != nil {
		return notFoundOr(err, "Proof point")
	}
	s.removeBlobs(ctx, orphans)
	s.refreshHealth(ctx, canvasID)
	return nil
}

// ResolveProofPoint loads a proof point with its owning canvas.
func (s *Service) ResolveProofPoint(ctx context.Context, id string) (canvas.ProofPoint, Target, error) {
	pp, err := s.canvases.GetProofPoint(ctx, id)
	if err != nil {
		return canvas.ProofPoint{}, Target{}, notFoundOr(err, "Proof point")
	}
	t, err := s.canvases.GetThesis(ctx, pp.ThesisID)
	if err != nil {
		return canvas.ProofPoint{}, Target{}, notFoundOr(err, "Thesis")
	}
	target, err := s.ResolveCanvas(ctx, t.CanvasID)
	if err != nil {
		return canvas.ProofPoint{}, Target{}, err
	}
	return pp, target, nil
}

func (s *Service) writableProofPoint(ctx context.Context, actor user.User, id string) (canvas.ProofPoint, string, error) {
	pp, target, err := s.ResolveProofPoint(ctx, id)
	if err != nil {
		return canvas.ProofPoint{}, "", err
	}
	if _, err := s.WritableCanvas(ctx, actor, target.Canvas.ID); err != nil {
		return canvas.ProofPoint{}, "", err
	}
	return pp, target.Canvas.ID, nil
}

// ParseMonth parses "YYYY-MM" into the first day of that month in UTC.
func ParseMonth(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse("2006-01", raw)
	if err != nil || len(raw) != len("2006-01") {
		return time.Time{}, apperrors.InvalidFormat("target_review_month", "expected YYYY-MM")
	}
	return t.UTC(), nil
}

func parseStatus(raw string) (canvas.ProofPointStatus, error) {
	status := canvas.ProofPointStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", apperrors.InvalidFormat("status", "must be one of not_started, in_progress, observed, not_observed, stalled")
	}
	return status, nil
}
