package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/ingest"
	sessionstore "github.com/zhouzirui/paper-tribunal/backend/internal/service/session"
	"github.com/zhouzirui/paper-tribunal/backend/internal/service/tribunal"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := sessionstore.NewStore(time.Hour, time.Hour)
	t.Cleanup(store.Close)

	svc := tribunal.NewService(
		ingest.NewService(0), store, nil, nil, nil, nil, nil, nil, nil,
		tribunal.Capabilities{AIOnline: false, Speech: false},
	)
	return NewRouter(svc, review.NewMemoryStore(review.Roster()), nil, "eleven_turbo_v2_5", "mp3_44100_128")
}

func TestHealthReportsCapabilities(t *testing.T) {
	router := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status       string                `json:"status"`
		Capabilities tribunal.Capabilities `json:"capabilities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("unexpected status %q", body.Status)
	}
	if body.Capabilities.AIOnline || body.Capabilities.Speech {
		t.Fatalf("degraded capabilities misreported: %+v", body.Capabilities)
	}
}

func TestReviewersListsFullBench(t *testing.T) {
	router := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviewers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var roster []review.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &roster); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(roster) != 4 {
		t.Fatalf("expected 4 reviewers, got %d", len(roster))
	}
	if roster[0].Key != review.Skeptic {
		t.Fatalf("roster out of canonical order: %s first", roster[0].Key)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/tribunal/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("missing CORS header, got %q", got)
	}
}
