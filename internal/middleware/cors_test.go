package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func corsHandler(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS(origins)(next)

	r := httptest.NewRequest(method, "/v1/generations", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec
}

func TestCORSAllowsOnlyServedSurface(t *testing.T) {
	rec := corsHandler(t, []string{"https://app.example.com"}, http.MethodOptions, "https://app.example.com")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Fatalf("Allow-Headers = %q, want Content-Type only", got)
	}
	methods := rec.Header().Get("Access-Control-Allow-Methods")
	if methods != "GET,POST,OPTIONS" {
		t.Fatalf("Allow-Methods = %q, want GET,POST,OPTIONS", methods)
	}
	for _, absent := range []string{"PUT", "DELETE"} {
		if strings.Contains(methods, absent) {
			t.Fatalf("Allow-Methods %q must not include %s", methods, absent)
		}
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	rec := corsHandler(t, []string{"https://app.example.com"}, http.MethodGet, "https://evil.example.com")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected Allow-Origin %q for unlisted origin", got)
	}
}

func TestCORSPassesThroughWithoutOrigin(t *testing.T) {
	rec := corsHandler(t, []string{"https://app.example.com"}, http.MethodGet, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected Allow-Origin %q", got)
	}
}
