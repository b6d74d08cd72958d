package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/":                       "/",
		"/metrics":                "/metrics",
		"/api":                    "/api",
		"/api/vbus/123/canvas":    "/api/vbus",
		"/api/attachments/abc-de": "/api/attachments",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/api/vbus/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Handle("/metrics", Handler())

	req := httptest.NewRequest(http.MethodGet, "/api/vbus/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	RecordLogin("success")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `canvas_http_requests_total{method="GET",path="/api/vbus/{id}",status="418"}`) {
		t.Fatalf("expected templated request metric, got:\n%s", body)
	}
	if !strings.Contains(body, `canvas_auth_logins_total{outcome="success"}`) {
		t.Fatalf("expected login counter")
	}
}
