package httpapi

import (
	"net/http"

	"github.com/R3E-Network/canvas/internal/app/services/canvases"
)

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.app.Canvases.ListCategories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, cats)
}

func (h *handler) listTheses(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Canvases.ListTheses(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, list)
}

type createThesisRequest struct {
	Text        string  `json:"text" validate:"required,max=10000"`
	Order       *int    `json:"order" validate:"omitempty,min=1,max=5"`
	Description *string `json:"description"`
	CategoryID  *string `json:"category_id"`
}

func (h *handler) createThesis(w http.ResponseWriter, r *http.Request) {
	var req createThesisRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.app.Canvases.CreateThesis(r.Context(), h.actor(r), pathID(r), canvases.ThesisInput{
		Text:        req.Text,
		Order:       req.Order,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, t)
}

type updateThesisRequest struct {
	Text        *string        `json:"text" validate:"omitempty,max=10000"`
	Description optionalString `json:"description"`
	CategoryID  optionalString `json:"category_id"`
}

func (h *handler) updateThesis(w http.ResponseWriter, r *http.Request) {
	var req updateThesisRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.app.Canvases.UpdateThesis(r.Context(), h.actor(r), pathID(r), canvases.ThesisPatch{
		Text:        req.Text,
		Description: req.Description.patch(),
		CategoryID:  req.CategoryID.patch(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, t)
}

func (h *handler) deleteThesis(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Canvases.DeleteThesis(r.Context(), h.actor(r), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	noContent(w)
}

type thesisOrderItem struct {
	ID    string `json:"id" validate:"required"`
	Order int    `json:"order"`
}

type reorderRequest struct {
	Theses []thesisOrderItem `json:"thesis_orders" validate:"dive"`
}

func (h *handler) reorderTheses(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	orders := make([]canvases.ThesisOrder, 0, len(req.Theses))
	for _, item := range req.Theses {
		orders = append(orders, canvases.ThesisOrder{ID: item.ID, Order: item.Order})
	}
	list, err := h.app.Canvases.ReorderTheses(r.Context(), h.actor(r), pathID(r), orders)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, list)
}

func (h *handler) listProofPoints(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Canvases.ListProofPoints(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, list)
}

type createProofPointRequest struct {
	Description       string  `json:"description" validate:"required,max=10000"`
	Notes             *string `json:"notes"`
	Status            string  `json:"status" validate:"omitempty,oneof=not_started in_progress observed not_observed stalled"`
	EvidenceNote      *string `json:"evidence_note"`
	TargetReviewMonth *string `json:"target_review_month"`
}

func (h *handler) createProofPoint(w http.ResponseWriter, r *http.Request) {
	var req createProofPointRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	pp, err := h.app.Canvases.CreateProofPoint(r.Context(), h.actor(r), pathID(r), canvases.ProofPointInput{
		Description:       req.Description,
		Notes:             req.Notes,
		Status:            req.Status,
		EvidenceNote:      req.EvidenceNote,
		TargetReviewMonth: req.TargetReviewMonth,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, pp)
}

type updateProofPointRequest struct {
	Description       *string        `json:"description" validate:"omitempty,max=10000"`
	Notes             optionalString `json:"notes"`
	Status            *string        `json:"status" validate:"omitempty,oneof=not_started in_progress observed not_observed stalled"`
	EvidenceNote      optionalString `json:"evidence_note"`
	TargetReviewMonth optionalString `json:"target_review_month"`
}

func (h *handler) updateProofPoint(w http.ResponseWriter, r *http.Request) {
	var req updateProofPointRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	pp, err := h.app.Canvases.UpdateProofPoint(r.Context(), h.actor(r), pathID(r), canvases.ProofPointPatch{
		Description:       req.Description,
		Notes:             req.Notes.patch(),
		Status:            req.Status,
		EvidenceNote:      req.EvidenceNote.patch(),
		TargetReviewMonth: req.TargetReviewMonth.patch(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, pp)
}

func (h *handler) deleteProofPoint(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Canvases.DeleteProofPoint(r.Context(), h.actor(r), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	noContent(w)
}
