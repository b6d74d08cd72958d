package canvases

import (
	"context"
	"errors"
	"strings"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/storage"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
)

// ThesisInput describes a new thesis. A nil or taken Order is replaced by the
// next free slot.
type ThesisInput struct {
	Text        string
	Order       *int
	Description *string
	CategoryID  *string
}

// ThesisPatch carries optional thesis changes. An empty CategoryID clears
// the category.
type ThesisPatch struct {
	Text        *string
	Description *string
	CategoryID  *string
}

// ThesisOrder is one entry of a reorder request.
type ThesisOrder struct {
	ID    string
	Order int
}

// ListTheses returns the theses of canvasID ordered by rank.
func (s *Service) ListTheses(ctx context.Context, actor user.User, canvasID string) ([]canvas.Thesis, error) {
	if _, err := s.ReadableCanvas(ctx, actor, canvasID); err != nil {
		return nil, err
	}
	return s.theses(ctx, canvasID)
}

// CreateThesis adds a thesis to canvasID.
func (s *Service) CreateThesis(ctx context.Context, actor user.User, canvasID string, in ThesisInput) (canvas.Thesis, error) {
	if _, err := s.WritableCanvas(ctx, actor, canvasID); err != nil {
		return canvas.Thesis{}, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return canvas.Thesis{}, apperrors.InvalidFormat("text", "must not be empty")
	}
	if in.Order != nil && (*in.Order < 1 || *in.Order > canvas.MaxTheses) {
		return canvas.Thesis{}, apperrors.Validation("Order values must be between 1 and 5")
	}
	categoryID, err := s.resolveCategory(ctx, in.CategoryID)
	if err != nil {
		return canvas.Thesis{}, err
	}

	existing, err := s.theses(ctx, canvasID)
	if err != nil {
		return canvas.Thesis{}, err
	}
	if len(existing) >= canvas.MaxTheses {
		return canvas.Thesis{}, apperrors.Validation("Maximum 5 theses per canvas")
	}

	created, err := s.canvases.CreateThesis(ctx, canvas.Thesis{
		CanvasID:    canvasID,
		Order:       pickOrder(existing, in.Order),
		Text:        text,
		Description: trimmed(in.Description),
		CategoryID:  categoryID,
	})
	if errors.Is(err, storage.ErrConflict) {
		return canvas.Thesis{}, apperrors.Conflict("Thesis order already taken")
	}
	if err != nil {
		return canvas.Thesis{}, notFoundOr(err, "Canvas")
	}
	created.ProofPoints = []canvas.ProofPoint{}
	return created, nil
}

// UpdateThesis applies patch to thesisID.
func (s *Service) UpdateThesis(ctx context.Context, actor user.User, thesisID string, patch ThesisPatch) (canvas.Thesis, error) {
	t, err := s.writableThesis(ctx, actor, thesisID)
	if err != nil {
		return canvas.Thesis{}, err
	}
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return canvas.Thesis{}, apperrors.InvalidFormat("text", "must not be empty")
		}
		t.Text = text
	}
	if patch.Description != nil {
		t.Description = trimmed(patch.Description)
	}
	if patch.CategoryID != nil {
		categoryID, err := s.resolveCategory(ctx, patch.CategoryID)
		if err != nil {
			return canvas.Thesis{}, err
		}
		t.CategoryID = categoryID
	}
	updated, err := s.canvases.UpdateThesis(ctx, t)
	if err != nil {
		return canvas.Thesis{}, notFoundOr(err, "Thesis")
	}
	pps, err := s.canvases.ListProofPoints(ctx, updated.ID)
	if err != nil {
		return canvas.Thesis{}, apperrors.Internal("", err)
	}
	updated.ProofPoints = nonNilProofPoints(pps)
	return updated, nil
}

// DeleteThesis removes a thesis with its proof points and their attachments.
func (s *Service) DeleteThesis(ctx context.Context, actor user.User, thesisID string) error {
	t, err := s.writableThesis(ctx, actor, thesisID)
	if err != nil {
		return err
	}
	pps, err := s.canvases.ListProofPoints(ctx, thesisID)
	if err != nil {
		return apperrors.Internal("", err)
	}
	ppIDs := make(map[string]bool, len(pps))
	for _, pp := range pps {
		ppIDs[pp.ID] = true
	}
	orphans, err := s.attachmentsWhere(ctx, t.CanvasID, func(a attachment.Attachment) bool {
		return a.ProofPointID != nil && ppIDs[*a.ProofPointID]
	})
	if err != nil {
		return err
	}

	if err := s.canvases.DeleteThesis(ctx, thesisID); err != nil {
		return notFoundOr(err, "Thesis")
	}
	s.removeBlobs(ctx, orphans)
	s.refreshHealth(ctx, t.CanvasID)
	return nil
}

// ReorderTheses assigns new ranks atomically. Every id must belong to
// canvasID and the resulting orders must be unique within 1..5. An empty
// request returns the current order.
func (s *Service) ReorderTheses(ctx context.Context, actor user.User, canvasID string, orders []ThesisOrder) ([]canvas.Thesis, error) {
	if _, err := s.WritableCanvas(ctx, actor, canvasID); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return s.theses(ctx, canvasID)
	}

	existing, err := s.theses(ctx, canvasID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(existing))
	for _, t := range existing {
		owned[t.ID] = true
	}

	assign := make(map[string]int, len(orders))
	seen := make(map[int]bool, len(orders))
	for _, o := range orders {
		if o.Order < 1 || o.Order > canvas.MaxTheses {
			return nil, apperrors.Validation("Order values must be between 1 and 5")
		}
		if !owned[o.ID] {
			return nil, apperrors.InvalidFormat("id", "thesis does not belong to this canvas").WithDetails("thesis_id", o.ID)
		}
		if seen[o.Order] {
			return nil, apperrors.Validation("Duplicate order values are not allowed")
		}
		if _, dup := assign[o.ID]; dup {
			return nil, apperrors.Validation("Duplicate thesis ids are not allowed")
		}
		seen[o.Order] = true
		assign[o.ID] = o.Order
	}

	err = s.canvases.ReorderTheses(ctx, canvasID, assign)
	switch {
	case errors.Is(err, storage.ErrConflict):
		return nil, apperrors.Validation("Duplicate order values are not allowed")
	case errors.Is(err, storage.ErrNotFound):
		return nil, apperrors.InvalidFormat("id", "thesis does not belong to this canvas")
	case err != nil:
		return nil, apperrors.Internal("", err)
	}
	return s.theses(ctx, canvasID)
}

func (s *Service) theses(ctx context.Context, canvasID string) ([]canvas.Thesis, error) {
	list, err := s.canvases.ListTheses(ctx, canvasID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	if list == nil {
		list = []canvas.Thesis{}
	}
	return list, nil
}

func (s *Service) writableThesis(ctx context.Context, actor user.User, thesisID string) (canvas.Thesis, error) {
	t, err := s.canvases.GetThesis(ctx, thesisID)
	if err != nil {
		return canvas.Thesis{}, notFoundOr(err, "Thesis")
	}
	if _, err := s.WritableCanvas(ctx, actor, t.CanvasID); err != nil {
		return canvas.Thesis{}, err
	}
	return t, nil
}

func (s *Service) readableThesis(ctx context.Context, actor user.User, thesisID string) (canvas.Thesis, error) {
	t, err := s.canvases.GetThesis(ctx, thesisID)
	if err != nil {
		return canvas.Thesis{}, notFoundOr(err, "Thesis")
	}
	if _, err := s.ReadableCanvas(ctx, actor, t.CanvasID); err != nil {
		return canvas.Thesis{}, err
	}
	return t, nil
}

func (s *Service) resolveCategory(ctx context.Context, id *string) (*string, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, nil
	}
	cat, err := s.canvases.GetCategory(ctx, *id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.InvalidFormat("category_id", "category not found")
	}
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	return &cat.ID, nil
}

func (s *Service) attachmentsWhere(ctx context.Context, canvasID string, keep func(attachment.Attachment) bool) ([]attachment.Attachment, error) {
	all, err := s.attachments.ListAttachmentsByCanvas(ctx, canvasID)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	var out []attachment.Attachment
	for _, a := range all {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// pickOrder keeps a free requested order, otherwise takes max+1, falling
// back to the lowest free slot when max+1 would exceed the cap.
func pickOrder(existing []canvas.Thesis, requested *int) int {
	taken := make(map[int]bool, len(existing))
	highest := 0
	for _, t := range existing {
		taken[t.Order] = true
		if t.Order > highest {
			highest = t.Order
		}
	}
	if requested != nil && !taken[*requested] {
		return *requested
	}
	if highest+1 <= canvas.MaxTheses {
		return highest + 1
	}
	for i := 1; i <= canvas.MaxTheses; i++ {
		if !taken[i] {
			return i
		}
	}
	return highest + 1
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func nonNilProofPoints(pps []canvas.ProofPoint) []canvas.ProofPoint {
	if pps == nil {
		return []canvas.ProofPoint{}
	}
	for i := range pps {
		if pps[i].Attachments == nil {
			pps[i].Attachments = []canvas.AttachmentRef{}
		}
	}
	return pps
}
