package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestAndTraceGeneratesIDs(t *testing.T) {
	var gotReq, gotTrace string
	h := WithRequestAndTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = RequestIDFromContext(r.Context())
		gotTrace = TraceIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if gotReq == "" || gotTrace == "" {
		t.Fatalf("expected generated ids, got %q %q", gotReq, gotTrace)
	}
	if rec.Header().Get(HeaderRequestID) != gotReq {
		t.Fatalf("response request id %q does not match context %q", rec.Header().Get(HeaderRequestID), gotReq)
	}
}

func TestWithRequestAndTraceKeepsIncomingIDs(t *testing.T) {
	var gotReq string
	h := WithRequestAndTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotReq != "req-123" {
		t.Fatalf("expected incoming request id, got %q", gotReq)
	}
}

func TestWithMetricsRecordsStatus(t *testing.T) {
	h := WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/push/send", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status to pass through, got %d", rec.Code)
	}
}
