package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsChain(t *testing.T) {
	base := Conflict("Email already registered")
	wrapped := fmt.Errorf("register: %w", base)

	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatalf("expected service error in chain")
	}
	if se.HTTPStatus != http.StatusConflict || se.Code != CodeConflict {
		t.Fatalf("unexpected error %+v", se)
	}
	if GetServiceError(fmt.Errorf("plain")) != nil {
		t.Fatalf("plain errors must not resolve to service errors")
	}
}

func TestConstructorsMapStatuses(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		status int
	}{
		{Validation("bad"), http.StatusUnprocessableEntity},
		{BadRequest("bad"), http.StatusBadRequest},
		{Unauthorized(""), http.StatusUnauthorized},
		{InvalidToken(nil), http.StatusUnauthorized},
		{Forbidden(""), http.StatusForbidden},
		{NotFound("VBU"), http.StatusNotFound},
		{FileTooLarge(10 << 20), http.StatusRequestEntityTooLarge},
		{UnsupportedType("text/html"), http.StatusUnsupportedMediaType},
		{RateLimitExceeded(5, "15m"), http.StatusTooManyRequests},
		{Internal("", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.HTTPStatus != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.err.Code, tc.status, tc.err.HTTPStatus)
		}
	}
}

func TestWithDetailsAndMessages(t *testing.T) {
	err := InvalidFormat("gm_id", "user not found")
	if err.Message != "Invalid gm_id: user not found" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if err.Details["field"] != "gm_id" {
		t.Fatalf("expected field detail, got %v", err.Details)
	}
	if NotFound("VBU").Message != "VBU not found" {
		t.Fatalf("unexpected not found message")
	}
	if FileTooLarge(10<<20).Message != "File exceeds maximum size of 10MB" {
		t.Fatalf("unexpected size message")
	}
	if !HasCode(fmt.Errorf("x: %w", Forbidden("")), CodeForbidden) {
		t.Fatalf("expected forbidden code")
	}
}
