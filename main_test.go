package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deposit-bot/config"
	"deposit-bot/ledger"
	"deposit-bot/models"
	"deposit-bot/services"
)

type stubIndex struct {
	dir     string
	entries map[string]models.ArchiveEntry
}

func (s *stubIndex) Entry(name string) (models.ArchiveEntry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

func (s *stubIndex) Entries() []models.ArchiveEntry {
	var out []models.ArchiveEntry
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

func (s *stubIndex) ReportPath(name string) string {
	return filepath.Join(s.dir, name)
}

func newReportRouter(t *testing.T) (*gin.Engine, *stubIndex) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "validation_issue_1.html"), []byte("<html>hot</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx := &stubIndex{dir: dir, entries: map[string]models.ArchiveEntry{
		"validation_issue_1.html": {Name: "validation_issue_1.html", Location: models.LocationHot, LiveURL: "https://bot.example/validation_reports/validation_issue_1.html"},
		"validation_issue_2.html": {Name: "validation_issue_2.html", Location: models.LocationCold, Cold: &models.ColdReference{
			CollectionID: "42",
			URL:          "https://zenodo.example/records/42/files/validation_issue_2.html",
			PersistentID: "https://doi.org/10.5281/zenodo.42",
		}},
		"validation_issue_3.html": {Name: "validation_issue_3.html", Location: models.LocationHot},
	}}
	router := gin.New()
	setupReportRoutes(router, idx, zap.NewNop())
	return router, idx
}

func TestReportRoutes(t *testing.T) {
	router, _ := newReportRouter(t)

	tests := []struct {
		name     string
		path     string
		status   int
		location string
	}{
		{"hot report served", "/validation_reports/validation_issue_1.html", http.StatusOK, ""},
		{"cold report redirects", "/validation_reports/validation_issue_2.html", http.StatusFound, "https://zenodo.example/records/42/files/validation_issue_2.html"},
		{"index query redirects cold", "/validation_reports/index.html?report=validation_issue_2.html", http.StatusFound, "https://zenodo.example/records/42/files/validation_issue_2.html"},
		{"index without report", "/validation_reports/index.html", http.StatusBadRequest, ""},
		{"unknown report", "/validation_reports/validation_issue_9.html", http.StatusNotFound, ""},
		{"hot report missing on disk", "/validation_reports/validation_issue_3.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.location != "" && w.Header().Get("Location") != tt.location {
				t.Fatalf("Location = %q, want %q", w.Header().Get("Location"), tt.location)
			}
		})
	}
}

func TestReportLocationRoute(t *testing.T) {
	router, _ := newReportRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/validation_issue_2.html/location", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entry models.ArchiveEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Location != models.LocationCold || entry.Cold == nil || entry.Cold.PersistentID != "https://doi.org/10.5281/zenodo.42" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRunRoutesRequireAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{APISecretKey: "secret"}

	done := make(chan string, 1)
	jobs := map[string]job{
		"archive": func(ctx context.Context) ([]zap.Field, error) {
			done <- "archive"
			return nil, nil
		},
	}
	router := gin.New()
	setupRunRoutes(router.Group("/", apiKeyAuthMiddleware(cfg)), jobs, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/runs/archive", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs/unknown", nil)
	req.Header.Set("X-API-KEY", "secret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status for unknown job = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/runs/archive", nil)
	req.Header.Set("X-API-KEY", "secret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status with key = %d", w.Code)
	}
	select {
	case name := <-done:
		if name != "archive" {
			t.Fatalf("ran %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not started")
	}
}

func TestRunJobHandlesBusyGuard(t *testing.T) {
	calls := 0
	runJob(context.Background(), "pipeline", func(ctx context.Context) ([]zap.Field, error) {
		calls++
		return nil, services.ErrRunInProgress
	}, zap.NewNop())
	runJob(context.Background(), "pipeline", func(ctx context.Context) ([]zap.Field, error) {
		calls++
		return []zap.Field{zap.Int("processed", 1)}, errors.New("boom")
	}, zap.NewNop())
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestStatsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}

	router := gin.New()
	setupStatsRoutes(router.Group("/", apiKeyAuthMiddleware(cfg)), nil, zap.NewNop())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/verdicts", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without ledger = %d", w.Code)
	}

	ldg, err := ledger.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	ctx := context.Background()
	for i, reason := range []models.RejectReason{models.ReasonNone, models.ReasonEmptyBody, models.ReasonEmptyBody} {
		rec := &models.VerdictRecord{RunID: "run", IssueNumber: i + 1, Valid: reason == models.ReasonNone, Reason: string(reason)}
		if err := ldg.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	router = gin.New()
	setupStatsRoutes(router.Group("/", apiKeyAuthMiddleware(cfg)), ldg, zap.NewNop())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/verdicts?since=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status for bad since = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/verdicts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var rows []ledger.ReasonCount
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0].Reason != string(models.ReasonEmptyBody) || rows[0].Count != 2 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/issues/2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("issue status = %d", w.Code)
	}
}
