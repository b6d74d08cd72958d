package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/canvas/internal/app/domain/canvas"
	"github.com/R3E-Network/canvas/internal/app/storage"
)

// CanvasStore implementation -----------------------------------------------

func (s *Store) GetCanvas(_ context.Context, id string) (canvas.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.canvases[id]
	if !ok {
		return canvas.Canvas{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetCanvasByVBU(_ context.Context, vbuID string) (canvas.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.canvasByVBULocked(vbuID)
	if !ok {
		return canvas.Canvas{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateCanvas(_ context.Context, u storage.CanvasUpdate) (canvas.Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.canvases[u.CanvasID]
	if !ok {
		return canvas.Canvas{}, storage.ErrNotFound
	}
	if u.Testing != nil && u.Testing.ID != nil && !s.testingTargetLocked(c.ID, u.Testing) {
		return canvas.Canvas{}, storage.ErrConflict
	}
	for col, v := range u.Text {
		var val *string
		if v != nil {
			copied := *v
			val = &copied
		}
		switch col {
		case storage.ColProductName:
			c.ProductName = val
		case storage.ColLifecycleLane:
			if val != nil {
				c.LifecycleLane = canvas.LifecycleLane(*val)
			}
		case storage.ColSuccessDescription:
			c.SuccessDescription = val
		case storage.ColFutureStateIntent:
			c.FutureStateIntent = val
		case storage.ColPrimaryFocus:
			c.PrimaryFocus = val
		case storage.ColResistDoing:
			c.ResistDoing = val
		case storage.ColGoodDiscipline:
			c.GoodDiscipline = val
		case storage.ColPrimaryConstraint:
			c.PrimaryConstraint = val
		case storage.ColPortfolioNotes:
			c.PortfolioNotes = val
		}
	}
	if u.Testing != nil {
		c.CurrentlyTestingType = u.Testing.Type
		c.CurrentlyTestingID = u.Testing.ID
	}
	if u.UpdatedBy != nil {
		c.UpdatedBy = u.UpdatedBy
	}
	c.UpdatedAt = s.nowLocked()
	s.canvases[c.ID] = c
	return c, nil
}

func (s *Store) testingTargetLocked(canvasID string, p *storage.TestingPointer) bool {
	if p.Type == nil {
		return false
	}
	switch *p.Type {
	case canvas.TestingThesis:
		t, ok := s.theses[*p.ID]
		return ok && t.CanvasID == canvasID
	case canvas.TestingProofPoint:
		pp, ok := s.proofPoints[*p.ID]
		if !ok {
			return false
		}
		t, ok := s.theses[pp.ThesisID]
		return ok && t.CanvasID == canvasID
	}
	return false
}

func (s *Store) ListCanvasIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.canvases))
	for id := range s.canvases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SetCanvasHealth(_ context.Context, canvasID string, health canvas.Health, computedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.canvases[canvasID]
	if !ok {
		return storage.ErrNotFound
	}
	c.HealthIndicator = &health
	at := computedAt.UTC()
	c.HealthComputedAt = &at
	s.canvases[canvasID] = c
	return nil
}

func (s *Store) canvasByVBULocked(vbuID string) (canvas.Canvas, bool) {
	for _, c := range s.canvases {
		if c.VBUID == vbuID {
			return c, true
		}
	}
	return canvas.Canvas{}, false
}

func (s *Store) ListCategories(_ context.Context) ([]canvas.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]canvas.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (canvas.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return canvas.Category{}, storage.ErrNotFound
	}
	return c, nil
}

// Theses -------------------------------------------------------------------

func (s *Store) CreateThesis(_ context.Context, t canvas.Thesis) (canvas.Thesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.canvases[t.CanvasID]; !ok {
		return canvas.Thesis{}, storage.ErrNotFound
	}
	if s.orderTakenLocked(t.CanvasID, t.Order, "") {
		return canvas.Thesis{}, storage.ErrConflict
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.nowLocked()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.ProofPoints = nil
	s.theses[t.ID] = t
	return s.decorateThesisLocked(t), nil
}

func (s *Store) UpdateThesis(_ context.Context, t canvas.Thesis) (canvas.Thesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.theses[t.ID]
	if !ok {
		return canvas.Thesis{}, storage.ErrNotFound
	}
	if s.orderTakenLocked(original.CanvasID, t.Order, t.ID) {
		return canvas.Thesis{}, storage.ErrConflict
	}
	t.CanvasID = original.CanvasID
	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = s.nowLocked()
	t.ProofPoints = nil
	s.theses[t.ID] = t
	return s.decorateThesisLocked(t), nil
}

func (s *Store) GetThesis(_ context.Context, id string) (canvas.Thesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.theses[id]
	if !ok {
		return canvas.Thesis{}, storage.ErrNotFound
	}
	return s.decorateThesisLocked(t), nil
}

func (s *Store) ListTheses(_ context.Context, canvasID string) ([]canvas.Thesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []canvas.Thesis
	for _, t := range s.theses {
		if t.CanvasID == canvasID {
			result = append(result, s.decorateThesisLocked(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result, nil
}

func (s *Store) DeleteThesis(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.theses[id]; !ok {
		return storage.ErrNotFound
	}
	s.deleteThesisLocked(id)
	return nil
}

func (s *Store) ReorderTheses(_ context.Context, canvasID string, orders map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := make(map[string]int)
	for id, t := range s.theses {
		if t.CanvasID == canvasID {
			final[id] = t.Order
		}
	}
	for id, order := range orders {
		if _, ok := final[id]; !ok {
			return storage.ErrNotFound
		}
		final[id] = order
	}
	seen := make(map[int]bool, len(final))
	for _, order := range final {
		if seen[order] {
			return storage.ErrConflict
		}
		seen[order] = true
	}

	now := s.nowLocked()
	for id, order := range orders {
		t := s.theses[id]
		t.Order = order
		t.UpdatedAt = now
		s.theses[id] = t
	}
	return nil
}

func (s *Store) orderTakenLocked(canvasID string, order int, exceptID string) bool {
	for id, t := range s.theses {
		if id != exceptID && t.CanvasID == canvasID && t.Order == order {
			return true
		}
	}
	return false
}

func (s *Store) deleteThesisLocked(id string) {
	t := s.theses[id]
	for pid, pp := range s.proofPoints {
		if pp.ThesisID == id {
			s.deleteProofPointLocked(pid)
		}
	}
	s.clearTestingPointerLocked(t.CanvasID, id)
	delete(s.theses, id)
}

func (s *Store) decorateThesisLocked(t canvas.Thesis) canvas.Thesis {
	t.CategoryName = nil
	t.CategoryColor = nil
	if t.CategoryID != nil {
		if cat, ok := s.categories[*t.CategoryID]; ok {
			name, color := cat.Name, cat.Color
			t.CategoryName = &name
			t.CategoryColor = &color
		}
	}
	return t
}

// clearTestingPointerLocked drops a canvas's currently-testing pointer when
// it references the removed record.
func (s *Store) clearTestingPointerLocked(canvasID, targetID string) {
	c, ok := s.canvases[canvasID]
	if !ok || c.CurrentlyTestingID == nil || *c.CurrentlyTestingID != targetID {
		return
	}
	c.CurrentlyTestingID = nil
	c.CurrentlyTestingType = nil
	s.canvases[canvasID] = c
}

// Proof points -------------------------------------------------------------

func (s *Store) CreateProofPoint(_ context.Context, pp canvas.ProofPoint) (canvas.ProofPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.theses[pp.ThesisID]; !ok {
		return canvas.ProofPoint{}, storage.ErrNotFound
	}
	if pp.ID == "" {
		pp.ID = uuid.NewString()
	}
	if pp.Status == "" {
		pp.Status = canvas.StatusNotStarted
	}
	now := s.nowLocked()
	pp.CreatedAt = now
	pp.UpdatedAt = now
	pp.Attachments = nil
	s.proofPoints[pp.ID] = pp
	return pp, nil
}

func (s *Store) UpdateProofPoint(_ context.Context, pp canvas.ProofPoint) (canvas.ProofPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.proofPoints[pp.ID]
	if !ok {
		return canvas.ProofPoint{}, storage.ErrNotFound
	}
	pp.ThesisID = original.ThesisID
	pp.CreatedAt = original.CreatedAt
	pp.UpdatedAt = s.nowLocked()
	pp.Attachments = nil
	s.proofPoints[pp.ID] = pp
	return pp, nil
}

func (s *Store) GetProofPoint(_ context.Context, id string) (canvas.ProofPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pp, ok := s.proofPoints[id]
	if !ok {
		return canvas.ProofPoint{}, storage.ErrNotFound
	}
	return pp, nil
}

func (s *Store) ListProofPoints(_ context.Context, thesisID string) ([]canvas.ProofPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []canvas.ProofPoint
	for _, pp := range s.proofPoints {
		if pp.ThesisID == thesisID {
			result = append(result, pp)
		}
	}
	sortProofPoints(result)
	return result, nil
}

func (s *Store) ListProofPointsByCanvas(_ context.Context, canvasID string) ([]canvas.ProofPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []canvas.ProofPoint
	for _, pp := range s.proofPoints {
		if t, ok := s.theses[pp.ThesisID]; ok && t.CanvasID == canvasID {
			result = append(result, pp)
		}
	}
	sortProofPoints(result)
	return result, nil
}

func (s *Store) DeleteProofPoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proofPoints[id]; !ok {
		return storage.ErrNotFound
	}
	s.deleteProofPointLocked(id)
	return nil
}

func (s *Store) deleteProofPointLocked(id string) {
	pp := s.proofPoints[id]
	for aid, a := range s.attachments {
		if a.ProofPointID != nil && *a.ProofPointID == id {
			delete(s.attachments, aid)
		}
	}
	if t, ok := s.theses[pp.ThesisID]; ok {
		s.clearTestingPointerLocked(t.CanvasID, id)
	}
	delete(s.proofPoints, id)
}

func sortProofPoints(pps []canvas.ProofPoint) {
	sort.Slice(pps, func(i, j int) bool { return pps[i].CreatedAt.Before(pps[j].CreatedAt) })
}
