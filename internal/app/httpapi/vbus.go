package httpapi

import (
	"net/http"
	"strconv"

	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/services/vbus"
	"github.com/R3E-Network/canvas/internal/httputil"
)

func (h *handler) listVBUs(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = vbus.DefaultPerPage
	}
	list, total, err := h.app.VBUs.List(r.Context(), h.actor(r), page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteList(w, list, total, page, perPage)
}

type createVBURequest struct {
	Name          string  `json:"name" validate:"required,max=255"`
	GMID          string  `json:"gm_id" validate:"required"`
	GroupLeaderID *string `json:"group_leader_id"`
}

func (h *handler) createVBU(w http.ResponseWriter, r *http.Request) {
	var req createVBURequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.app.VBUs.Create(r.Context(), h.actor(r), vbus.CreateInput{
		Name:          req.Name,
		GMID:          req.GMID,
		GroupLeaderID: req.GroupLeaderID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, v)
}

func (h *handler) getVBU(w http.ResponseWriter, r *http.Request) {
	v, err := h.app.VBUs.Get(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, v)
}

type updateVBURequest struct {
	Name          *string        `json:"name" validate:"omitempty,max=255"`
	GMID          *string        `json:"gm_id"`
	GroupLeaderID optionalString `json:"group_leader_id"`
}

func (h *handler) updateVBU(w http.ResponseWriter, r *http.Request) {
	var req updateVBURequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.app.VBUs.Update(r.Context(), h.actor(r), pathID(r), vbus.Patch{
		Name:          req.Name,
		GMID:          req.GMID,
		GroupLeaderID: req.GroupLeaderID.patch(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, v)
}

func (h *handler) deleteVBU(w http.ResponseWriter, r *http.Request) {
	if err := h.app.VBUs.Delete(r.Context(), h.actor(r), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	noContent(w)
}

func (h *handler) getCanvas(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Canvases.GetByVBU(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, c)
}

type updateCanvasRequest struct {
	ProductName          optionalString `json:"product_name" validate:"omitempty,max=255"`
	LifecycleLane        *string        `json:"lifecycle_lane" validate:"omitempty,oneof=build sell milk reframe"`
	SuccessDescription   optionalString `json:"success_description"`
	FutureStateIntent    optionalString `json:"future_state_intent"`
	PrimaryFocus         optionalString `json:"primary_focus" validate:"omitempty,max=255"`
	ResistDoing          optionalString `json:"resist_doing"`
	GoodDiscipline       optionalString `json:"good_discipline"`
	PrimaryConstraint    optionalString `json:"primary_constraint"`
	CurrentlyTestingType optionalString `json:"currently_testing_type" validate:"omitempty,oneof=thesis proof_point"`
	CurrentlyTestingID   optionalString `json:"currently_testing_id"`
	PortfolioNotes       optionalString `json:"portfolio_notes"`
}

func (h *handler) updateCanvas(w http.ResponseWriter, r *http.Request) {
	var req updateCanvasRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.app.Canvases.Update(r.Context(), h.actor(r), pathID(r), canvases.Patch{
		ProductName:          req.ProductName.patch(),
		LifecycleLane:        req.LifecycleLane,
		SuccessDescription:   req.SuccessDescription.patch(),
		FutureStateIntent:    req.FutureStateIntent.patch(),
		PrimaryFocus:         req.PrimaryFocus.patch(),
		ResistDoing:          req.ResistDoing.patch(),
		GoodDiscipline:       req.GoodDiscipline.patch(),
		PrimaryConstraint:    req.PrimaryConstraint.patch(),
		CurrentlyTestingType: req.CurrentlyTestingType.patch(),
		CurrentlyTestingID:   req.CurrentlyTestingID.patch(),
		PortfolioNotes:       req.PortfolioNotes.patch(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, c)
}

func (h *handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	doc, err := h.app.PDF.Export(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
