package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/R3E-Network/canvas/internal/app/services/attachments"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
)

// multipartOverhead covers form fields and part headers on top of the file.
const multipartOverhead = 1 << 20

func (h *handler) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.app.Attachments.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, apperrors.FileTooLarge(maxBytes))
			return
		}
		h.fail(w, r, apperrors.BadRequest("Expected multipart/form-data body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, apperrors.InvalidFormat("file", "is required"))
		return
	}
	defer file.Close()

	var label *string
	if values, ok := r.MultipartForm.Value["label"]; ok && len(values) > 0 {
		l := values[0]
		label = &l
	}

	a, err := h.app.Attachments.Upload(r.Context(), h.actor(r), attachments.UploadInput{
		ProofPointID:    r.FormValue("proof_point_id"),
		MonthlyReviewID: r.FormValue("monthly_review_id"),
		CanvasID:        r.FormValue("canvas_id"),
		Filename:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Label:           label,
		Content:         file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.created(w, a)
}

func (h *handler) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	a, body, err := h.app.Attachments.Open(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Filename+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(a.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("attachment stream interrupted")
	}
}

func (h *handler) attachmentMeta(w http.ResponseWriter, r *http.Request) {
	a, err := h.app.Attachments.Get(r.Context(), h.actor(r), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, a)
}

func (h *handler) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Attachments.Delete(r.Context(), h.actor(r), pathID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	noContent(w)
}
