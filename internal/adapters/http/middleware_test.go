package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAcceptableRequestID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"req-42", true},
		{"", false},
		{"has space", false},
		{"line\nbreak", false},
		{strings.Repeat("a", maxRequestIDLength), true},
		{strings.Repeat("a", maxRequestIDLength+1), false},
	}
	for _, tc := range cases {
		if got := acceptableRequestID(tc.id); got != tc.want {
			t.Fatalf("acceptableRequestID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestRequestIDMiddlewareReplacesUnsafeID(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "bad id\twith tabs")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	got := res.Header().Get(requestIDHeader)
	if got == "" || got == "bad id\twith tabs" || got != seen {
		t.Fatalf("expected a generated id shared with the handler, header=%q context=%q", got, seen)
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	h := recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "boom") {
		t.Fatalf("panic value leaked to client: %s", res.Body.String())
	}
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if rec.status() != http.StatusOK {
		t.Fatalf("implicit status = %d, want 200", rec.status())
	}
	rec.WriteHeader(http.StatusAccepted)
	rec.WriteHeader(http.StatusInternalServerError)
	_, _ = rec.Write([]byte("ok"))
	if rec.status() != http.StatusAccepted || rec.bytesWritten != 2 {
		t.Fatalf("status=%d bytes=%d", rec.status(), rec.bytesWritten)
	}
}
