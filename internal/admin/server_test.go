package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealthReportsOK(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("got status %q, want ok", body.Status)
	}
}

func TestHandleFlowsEmptyRuntimeReturnsEmptyArray(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats/flows", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" && got != "[]" {
		t.Fatalf("got body %q, want an empty JSON array", got)
	}
}

func TestHandleCertStatsNilStoreReportsZero(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats/certs", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var body certStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.CacheSize != 0 {
		t.Fatalf("got CacheSize=%d, want 0", body.CacheSize)
	}
}
