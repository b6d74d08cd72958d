package httpapi

import (
	"net/http"

	"github.com/R3E-Network/canvas/internal/app/services/reviews"
)

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Reviews.List(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, list)
}

type commitmentRequest struct {
	Text  string `json:"text" validate:"required,max=1000"`
	Order int    `json:"order" validate:"min=1,max=3"`
}

type createReviewRequest struct {
	ReviewDate           string              `json:"review_date" validate:"required"`
	WhatMoved            *string             `json:"what_moved" validate:"omitempty,max=5000"`
	WhatLearned          *string             `json:"what_learned" validate:"omitempty,max=5000"`
	WhatThreatens        *string             `json:"what_threatens" validate:"omitempty,max=5000"`
	CurrentlyTestingType string              `json:"currently_testing_type" validate:"required,oneof=thesis proof_point"`
	CurrentlyTestingID   string              `json:"currently_testing_id" validate:"required"`
	Commitments          []commitmentRequest `json:"commitments" validate:"required,min=1,max=3,dive"`
	AttachmentIDs        []string            `json:"attachment_ids" validate:"max=10"`
}

func (h *handler) createReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	commitments := make([]reviews.CommitmentInput, 0, len(req.Commitments))
	for _, c := range req.Commitments {
		commitments = append(commitments, reviews.CommitmentInput{Text: c.Text, Order: c.Order})
	}
	review, err := h.app.Reviews.Create(r.Context(), h.actor(r), pathID(r), reviews.CreateInput{
		ReviewDate:           req.ReviewDate,
		WhatMoved:            req.WhatMoved,
		WhatLearned:          req.WhatLearned,
		WhatThreatens:        req.WhatThreatens,
		CurrentlyTestingType: req.CurrentlyTestingType,
		CurrentlyTestingID:   req.CurrentlyTestingID,
		Commitments:          commitments,
		AttachmentIDs:        req.AttachmentIDs,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, review)
}

func (h *handler) getReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.app.Reviews.Get(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, review)
}

func (h *handler) reviewOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.app.Reviews.Options(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, options)
}
