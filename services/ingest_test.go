package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"deposit-bot/models"
)

type fakeRunner struct {
	jobs []MetaJob
	fail map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, job MetaJob) error {
	f.jobs = append(f.jobs, job)
	if f.fail[job.Source] {
		return errors.New("meta crashed")
	}
	return nil
}

func TestIngestRun(t *testing.T) {
	tracker := newFakeTracker()
	tracker.users = map[string]int64{"alice": 1}
	bad := submission(3, "alice")
	bad.Body = "no data"
	tracker.issues["closed/to be processed"] = []models.Submission{submission(1, "alice"), submission(2, "alice"), bad}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("query") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"boolean":true}`))
	}))
	defer ts.Close()

	base := t.TempDir()
	runner := &fakeRunner{fail: map[string]bool{"https://github.com/owner/repo/issues/2": true}}
	s := &IngestService{
		Tracker:        tracker,
		Runner:         runner,
		BaseDir:        base,
		BatchSize:      1000,
		Repository:     "owner/repo",
		TriplestoreURL: ts.URL,
		Logger:         zap.NewNop(),
		Now:            func() time.Time { return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC) },
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Done != 1 || summary.Failed != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if runner.jobs[0].ResponsibleAgent != "https://api.github.com/user/1" {
		t.Fatalf("job = %+v", runner.jobs[0])
	}
	if _, err := os.Stat(filepath.Join(base, "2026_10", "issue_1", "citations", "0.csv")); err != nil {
		t.Fatalf("batch file missing: %v", err)
	}

	calls := tracker.callsFor(1)
	if len(calls) != 2 || calls[0].Op != "unlabel" || calls[0].Arg != "to be processed" || calls[1].Arg != "done" {
		t.Fatalf("issue 1 calls = %+v", calls)
	}
	if calls := tracker.callsFor(2); calls[1].Arg != "oc meta error" {
		t.Fatalf("issue 2 calls = %+v", calls)
	}
	if len(tracker.callsFor(3)) != 0 {
		t.Fatal("skipped issue must keep its labels")
	}
}

func TestIngestAbortsWhenTriplestoreDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	tracker := newFakeTracker()
	s := &IngestService{Tracker: tracker, Runner: &fakeRunner{}, TriplestoreURL: ts.URL, Logger: zap.NewNop(), Now: time.Now}
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("expected triplestore error")
	}
	if len(tracker.calls) != 0 {
		t.Fatal("no tracker calls expected")
	}
}
