// Package canvases manages a VBU's canvas and the theses and proof points
// beneath it.
package canvases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/R3E-Network/canvas/internal/app/access"
	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/domain/vbu"
	"github.com/R3E-Network/canvas/internal/app/storage"
	"github.com/R3E-Network/canvas/internal/blobstore"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

const (
	MaxProductNameLen  = 255
	MaxPrimaryFocusLen = 255
)

// Service implements canvas, thesis and proof point operations.
type Service struct {
	vbus        storage.VBUStore
	canvases    storage.CanvasStore
	attachments storage.AttachmentStore
	blobs       blobstore.Store
	log         *logging.Logger
	now         func() time.Time
}

// New creates a canvas service.
func New(vbus storage.VBUStore, canvases storage.CanvasStore, attachments storage.AttachmentStore, blobs blobstore.Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("canvases")
	}
	return &Service{vbus: vbus, canvases: canvases, attachments: attachments, blobs: blobs, log: log, now: time.Now}
}

// Target is a canvas together with the VBU that owns it.
type Target struct {
	VBU    vbu.VBU
	Canvas canvas.Canvas
}

// ResolveVBU loads the canvas of vbuID.
func (s *Service) ResolveVBU(ctx context.Context, vbuID string) (Target, error) {
	v, err := s.vbus.GetVBU(ctx, vbuID)
	if err != nil {
		return Target{}, notFoundOr(err, "VBU")
	}
	c, err := s.canvases.GetCanvasByVBU(ctx, vbuID)
	if err != nil {
		return Target{}, notFoundOr(err, "Canvas")
	}
	return Target{VBU: v, Canvas: c}, nil
}

// ResolveCanvas loads canvasID and its owning VBU.
func (s *Service) ResolveCanvas(ctx context.Context, canvasID string) (Target, error) {
	c, err := s.canvases.GetCanvas(ctx, canvasID)
	if err != nil {
		return Target{}, notFoundOr(err, "Canvas")
	}
	v, err := s.vbus.GetVBU(ctx, c.VBUID)
	if err != nil {
		return Target{}, notFoundOr(err, "VBU")
	}
	return Target{VBU: v, Canvas: c}, nil
}

// ReadableCanvas resolves canvasID and checks read access.
func (s *Service) ReadableCanvas(ctx context.Context, actor user.User, canvasID string) (Target, error) {
	t, err := s.ResolveCanvas(ctx, canvasID)
	if err != nil {
		return Target{}, err
	}
	return t, access.RequireRead(actor, t.VBU)
}

// WritableCanvas resolves canvasID and checks write access.
func (s *Service) WritableCanvas(ctx context.Context, actor user.User, canvasID string) (Target, error) {
	t, err := s.ResolveCanvas(ctx, canvasID)
	if err != nil {
		return Target{}, err
	}
	return t, access.RequireWrite(actor, t.VBU)
}

// GetByVBU returns the full canvas tree of a VBU.
func (s *Service) GetByVBU(ctx context.Context, actor user.User, vbuID string) (canvas.Canvas, error) {
	t, err := s.ResolveVBU(ctx, vbuID)
	if err != nil {
		return canvas.Canvas{}, err
	}
	if err := access.RequireRead(actor, t.VBU); err != nil {
		return canvas.Canvas{}, err
	}
	tree, err := s.Tree(ctx, t.Canvas)
	if err != nil {
		return canvas.Canvas{}, err
	}
	return redact(actor, tree), nil
}

// Tree attaches theses (by order), their proof points (by creation) and each
// proof point's attachments to c.
func (s *Service) Tree(ctx context.Context, c canvas.Canvas) (canvas.Canvas, error) {
	theses, err := s.canvases.ListTheses(ctx, c.ID)
	if err != nil {
		return canvas.Canvas{}, apperrors.Internal("", err)
	}
	pps, err := s.canvases.ListProofPointsByCanvas(ctx, c.ID)
	if err != nil {
		return canvas.Canvas{}, apperrors.Internal("", err)
	}
	atts, err := s.attachments.ListAttachmentsByCanvas(ctx, c.ID)
	if err != nil {
		return canvas.Canvas{}, apperrors.Internal("", err)
	}

	refs := make(map[string][]canvas.AttachmentRef)
	for _, a := range atts {
		if a.ProofPointID == nil {
			continue
		}
		refs[*a.ProofPointID] = append(refs[*a.ProofPointID], canvas.AttachmentRef{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			Label:       a.Label,
			CreatedAt:   a.CreatedAt,
		})
	}
	byThesis := make(map[string][]canvas.ProofPoint)
	for _, pp := range pps {
		pp.Attachments = nonNilRefs(refs[pp.ID])
		byThesis[pp.ThesisID] = append(byThesis[pp.ThesisID], pp)
	}

	c.Theses = make([]canvas.Thesis, 0, len(theses))
	for _, t := range theses {
		t.ProofPoints = byThesis[t.ID]
		if t.ProofPoints == nil {
			t.ProofPoints = []canvas.ProofPoint{}
		}
		c.Theses = append(c.Theses, t)
	}
	return c, nil
}

// Patch carries optional canvas field changes. A pointer to an empty string
// clears a field.
type Patch struct {
	ProductName          *string
	LifecycleLane        *string
	SuccessDescription   *string
	FutureStateIntent    *string
	PrimaryFocus         *string
	ResistDoing          *string
	GoodDiscipline       *string
	PrimaryConstraint    *string
	CurrentlyTestingType *string
	CurrentlyTestingID   *string
	PortfolioNotes       *string
}

// Update applies patch to the canvas of vbuID.
func (s *Service) Update(ctx context.Context, actor user.User, vbuID string, patch Patch) (canvas.Canvas, error) {
	t, err := s.ResolveVBU(ctx, vbuID)
	if err != nil {
		return canvas.Canvas{}, err
	}
	if err := access.RequireWrite(actor, t.VBU); err != nil {
		return canvas.Canvas{}, err
	}
	c := t.Canvas
	actorID := actor.ID
	upd := storage.CanvasUpdate{CanvasID: c.ID, Text: map[storage.CanvasColumn]*string{}, UpdatedBy: &actorID}

	if patch.ProductName != nil {
		name := strings.TrimSpace(*patch.ProductName)
		if name == "" {
			return canvas.Canvas{}, apperrors.Validation("product_name cannot be empty")
		}
		if len(name) > MaxProductNameLen {
			return canvas.Canvas{}, apperrors.InvalidFormat("product_name", "must be at most 255 characters")
		}
		upd.Text[storage.ColProductName] = &name
	}
	if patch.LifecycleLane != nil {
		lane := canvas.LifecycleLane(strings.ToLower(strings.TrimSpace(*patch.LifecycleLane)))
		if !lane.Valid() {
			return canvas.Canvas{}, apperrors.InvalidFormat("lifecycle_lane", "must be one of build, sell, milk, reframe")
		}
		raw := string(lane)
		upd.Text[storage.ColLifecycleLane] = &raw
	}
	if patch.PrimaryFocus != nil && len(*patch.PrimaryFocus) > MaxPrimaryFocusLen {
		return canvas.Canvas{}, apperrors.InvalidFormat("primary_focus", "must be at most 255 characters")
	}
	setText(upd.Text, storage.ColSuccessDescription, patch.SuccessDescription)
	setText(upd.Text, storage.ColFutureStateIntent, patch.FutureStateIntent)
	setText(upd.Text, storage.ColPrimaryFocus, patch.PrimaryFocus)
	setText(upd.Text, storage.ColResistDoing, patch.ResistDoing)
	setText(upd.Text, storage.ColGoodDiscipline, patch.GoodDiscipline)
	setText(upd.Text, storage.ColPrimaryConstraint, patch.PrimaryConstraint)
	if access.CanSeePortfolioNotes(actor) {
		setText(upd.Text, storage.ColPortfolioNotes, patch.PortfolioNotes)
	}

	if patch.CurrentlyTestingType != nil || patch.CurrentlyTestingID != nil {
		if patch.CurrentlyTestingType == nil || patch.CurrentlyTestingID == nil {
			return canvas.Canvas{}, apperrors.Validation("currently_testing_type and currently_testing_id must be provided together")
		}
		if *patch.CurrentlyTestingType == "" && *patch.CurrentlyTestingID == "" {
			upd.Testing = &storage.TestingPointer{}
		} else {
			kind, err := s.ValidateTestingTarget(ctx, c.ID, *patch.CurrentlyTestingType, *patch.CurrentlyTestingID)
			if err != nil {
				return canvas.Canvas{}, err
			}
			id := *patch.CurrentlyTestingID
			upd.Testing = &storage.TestingPointer{Type: &kind, ID: &id}
		}
	}

	updated, err := s.canvases.UpdateCanvas(ctx, upd)
	if errors.Is(err, storage.ErrConflict) && upd.Testing != nil && upd.Testing.Type != nil {
		return canvas.Canvas{}, apperrors.InvalidFormat("currently_testing_id", "must reference a "+string(*upd.Testing.Type)+" of this canvas")
	}
	if err != nil {
		return canvas.Canvas{}, notFoundOr(err, "Canvas")
	}
	tree, err := s.Tree(ctx, updated)
	if err != nil {
		return canvas.Canvas{}, err
	}
	return redact(actor, tree), nil
}

// ValidateTestingTarget checks that id names a thesis or proof point of
// canvasID, according to kind.
func (s *Service) ValidateTestingTarget(ctx context.Context, canvasID, kind, id string) (canvas.TestingType, error) {
	tt := canvas.TestingType(strings.TrimSpace(kind))
	if !tt.Valid() {
		return "", apperrors.InvalidFormat("currently_testing_type", "must be thesis or proof_point")
	}
	invalid := apperrors.InvalidFormat("currently_testing_id", "must reference a "+string(tt)+" of this canvas")
	switch tt {
	case canvas.TestingThesis:
		t, err := s.canvases.GetThesis(ctx, id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && t.CanvasID != canvasID) {
			return "", invalid
		}
		if err != nil {
			return "", apperrors.Internal("", err)
		}
	case canvas.TestingProofPoint:
		pp, err := s.canvases.GetProofPoint(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return "", invalid
		}
		if err != nil {
			return "", apperrors.Internal("", err)
		}
		t, err := s.canvases.GetThesis(ctx, pp.ThesisID)
		if err != nil || t.CanvasID != canvasID {
			return "", invalid
		}
	}
	return tt, nil
}

// ListCategories returns the thesis categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]canvas.Category, error) {
	list, err := s.canvases.ListCategories(ctx)
	if err != nil {
		return nil, apperrors.Internal("", err)
	}
	return list, nil
}

// RecomputeHealth derives the canvas health indicator from its proof point
// statuses and stores it.
func (s *Service) RecomputeHealth(ctx context.Context, canvasID string) (canvas.Health, error) {
	pps, err := s.canvases.ListProofPointsByCanvas(ctx, canvasID)
	if err != nil {
		return "", err
	}
	statuses := make([]canvas.ProofPointStatus, 0, len(pps))
	for _, pp := range pps {
		statuses = append(statuses, pp.Status)
	}
	health := canvas.ComputeHealth(statuses)
	if err := s.canvases.SetCanvasHealth(ctx, canvasID, health, s.now()); err != nil {
		return "", err
	}
	return health, nil
}

// SweepHealth recomputes every canvas. It returns the number refreshed and
// the first error seen.
func (s *Service) SweepHealth(ctx context.Context) (int, error) {
	ids, err := s.canvases.ListCanvasIDs(ctx)
	if err != nil {
		return 0, err
	}
	var firstErr error
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.RecomputeHealth(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}
	return done, firstErr
}

// refreshHealth is called after proof point mutations. A failure leaves the
// previous cache in place for the sweep to repair.
func (s *Service) refreshHealth(ctx context.Context, canvasID string) {
	if _, err := s.RecomputeHealth(ctx, canvasID); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("canvas_id", canvasID).Warn("recompute health")
	}
}

func (s *Service) removeBlobs(ctx context.Context, atts []attachment.Attachment) {
	if s.blobs == nil {
		return
	}
	for _, a := range atts {
		if err := s.blobs.Delete(ctx, a.StorageKey); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("key", a.StorageKey).Warn("remove attachment blob")
		}
	}
}

func redact(actor user.User, c canvas.Canvas) canvas.Canvas {
	if !access.CanSeePortfolioNotes(actor) {
		c.PortfolioNotes = nil
	}
	return c
}

// setText records v for col; blank text clears the column.
func setText(cols map[storage.CanvasColumn]*string, col storage.CanvasColumn, v *string) {
	if v == nil {
		return
	}
	if strings.TrimSpace(*v) == "" {
		cols[col] = nil
		return
	}
	val := *v
	cols[col] = &val
}

func nonNilRefs(refs []canvas.AttachmentRef) []canvas.AttachmentRef {
	if refs == nil {
		return []canvas.AttachmentRef{}
	}
	return refs
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound(resource)
	}
	return apperrors.Internal("", err)
}
