package httpapi

import (
	"net/http"

	"github.com/R3E-Network/canvas/internal/app/services/portfolio"
)

func (h *handler) portfolioSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Portfolio.Summary(r.Context(), h.actor(r), portfolio.FilterInput{
		Lanes:          queryList(r, "lane"),
		GMIDs:          queryList(r, "gm_id"),
		HealthStatuses: queryList(r, "health_status"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, summary)
}

func (h *handler) portfolioNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.app.Portfolio.Notes(r.Context(), h.actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, notes)
}

type updateNotesRequest struct {
	Notes *string `json:"notes"`
}

func (h *handler) updatePortfolioNotes(w http.ResponseWriter, r *http.Request) {
	var req updateNotesRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	notes, err := h.app.Portfolio.UpdateNotes(r.Context(), h.actor(r), req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, notes)
}
