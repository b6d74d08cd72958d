// Package httputil holds the JSON envelope helpers shared by the HTTP
// handlers and middleware.
package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/logging"
)

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Meta is the envelope metadata. Pagination fields are set on list responses.
type Meta struct {
	Timestamp string `json:"timestamp"`
	Total     *int   `json:"total,omitempty"`
	Page      *int   `json:"page,omitempty"`
	PerPage   *int   `json:"per_page,omitempty"`
}

// Envelope wraps every successful response body.
type Envelope struct {
	Data interface{} `json:"data"`
	Meta Meta        `json:"meta"`
}

// ErrorBody is the payload under the "error" key.
type ErrorBody struct {
	Code      int                    `json:"code"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ErrorEnvelope wraps error responses.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

var now = time.Now

// WriteJSON writes v as the JSON response body with status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes data inside the success envelope.
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{Data: data, Meta: Meta{Timestamp: timestamp()}})
}

// WriteList writes a page of results with pagination metadata.
func WriteList(w http.ResponseWriter, data interface{}, total, page, perPage int) {
	WriteJSON(w, http.StatusOK, Envelope{
		Data: data,
		Meta: Meta{Timestamp: timestamp(), Total: &total, Page: &page, PerPage: &perPage},
	})
}

// WriteError renders err in the error envelope. Errors that are not a
// *ServiceError become a 500 and are logged with their cause.
func WriteError(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	se := apperrors.GetServiceError(err)
	if se == nil {
		se = apperrors.Internal("", err)
	}
	if se.HTTPStatus >= http.StatusInternalServerError && log != nil {
		log.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	WriteJSON(w, se.HTTPStatus, ErrorEnvelope{Error: ErrorBody{
		Code:      se.HTTPStatus,
		Type:      string(se.Code),
		Message:   se.Message,
		RequestID: logging.GetTraceID(r.Context()),
		Details:   se.Details,
	}})
}

func timestamp() string {
	return now().UTC().Format(time.RFC3339)
}
