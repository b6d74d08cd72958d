package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/R3E-Network/canvas/internal/errors"
)

// MaxJSONBody bounds request bodies decoded by DecodeJSON.
const MaxJSONBody = 1 << 20

// DecodeJSON decodes the request body into dst, rejecting unknown fields,
// trailing data and oversized bodies with a 400.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, MaxJSONBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperrors.BadRequest("Request body must contain a single JSON object")
	}
	return nil
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return apperrors.BadRequest("Request body is empty")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.BadRequest("Malformed JSON body")
	case errors.As(err, &typeErr):
		return apperrors.BadRequest(fmt.Sprintf("Invalid type for field %q", typeErr.Field)).
			WithDetails("field", typeErr.Field)
	case errors.As(err, &maxErr):
		return apperrors.BadRequest("Request body too large")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperrors.BadRequest(fmt.Sprintf("Unknown field %q", field)).WithDetails("field", field)
	default:
		return apperrors.BadRequest("Invalid JSON body")
	}
}

// DecodeResponse unwraps a success envelope into target, or returns the
// error envelope as a *errors.ServiceError for non-2xx responses.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env ErrorEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Error.Type == "" {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		se := apperrors.New(apperrors.ErrorCode(env.Error.Type), env.Error.Code, env.Error.Message)
		for k, v := range env.Error.Details {
			se = se.WithDetails(k, v)
		}
		return se
	}
	if target == nil {
		return nil
	}
	env := Envelope{Data: target}
	return json.Unmarshal(raw, &env)
}
