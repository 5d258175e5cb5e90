package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"deposit-bot/models"
	"deposit-bot/storage"
)

// MetaJob beschreibt einen Ingest-Lauf für ein Issue.
type MetaJob struct {
	InputDir         string
	Source           string
	ResponsibleAgent string
}

// MetaRunner spielt die gebatchten Daten eines Issues in den Datenbestand ein.
type MetaRunner interface {
	Run(ctx context.Context, job MetaJob) error
}

// ExecMetaRunner ruft das externe Ingest-Programm auf.
type ExecMetaRunner struct {
	Command string
	Config  string
	Logger  *zap.Logger
}

var _ MetaRunner = (*ExecMetaRunner)(nil)

func (r *ExecMetaRunner) Run(ctx context.Context, job MetaJob) error {
	fields := strings.Fields(r.Command)
	if len(fields) == 0 {
		return fmt.Errorf("META_COMMAND is not set")
	}
	args := append(fields[1:],
		"--input", job.InputDir,
		"--config", r.Config,
		"--source", job.Source,
		"--resp-agent", job.ResponsibleAgent,
	)
	cmd := exec.CommandContext(ctx, fields[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("meta process: %w: %s", err, strings.TrimSpace(out.String()))
	}
	r.Logger.Debug("Meta process finished", zap.String("source", job.Source))
	return nil
}

// IngestSummary fasst einen Ingest-Lauf zusammen.
type IngestSummary struct {
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// IngestService übernimmt geschlossene, angenommene Issues in den Datenbestand.
type IngestService struct {
	Tracker        IssueTracker
	Runner         MetaRunner
	BaseDir        string
	BatchSize      int
	Repository     string
	TriplestoreURL string
	HTTP           *http.Client
	Logger         *zap.Logger
	Now            func() time.Time
}

// Run verarbeitet alle Issues mit dem Label "to be processed".
func (s *IngestService) Run(ctx context.Context) (IngestSummary, error) {
	var summary IngestSummary
	if s.TriplestoreURL != "" {
		if err := s.checkTriplestore(ctx); err != nil {
			s.Logger.Error("Triplestore is not responding", zap.String("url", s.TriplestoreURL), zap.Error(err))
			return summary, err
		}
	}

	subs, err := s.Tracker.ListIssues(ctx, "closed", models.LabelToBeProcessed)
	if err != nil {
		return summary, err
	}
	s.Logger.Info("Ingesting accepted issues", zap.Int("count", len(subs)))

	monthDir := storage.IngestionDir(s.BaseDir, s.Now())
	for _, sub := range subs {
		log := s.Logger.With(zap.Int("issue", sub.Number))
		meta, cits, err := ParseBody(sub.Body)
		if err != nil {
			log.Warn("Skipping issue without usable data", zap.Error(err))
			summary.Skipped++
			continue
		}

		dir := filepath.Join(monthDir, fmt.Sprintf("issue_%d", sub.Number))
		chunker := NewChunker(s.BatchSize, &storage.DirSink{Dir: dir}, log)
		if err := chunker.AddSections(meta, cits); err != nil {
			return summary, err
		}
		if err := chunker.Flush(); err != nil {
			return summary, err
		}

		userID, found, err := s.Tracker.GetUserID(ctx, sub.Author.Login)
		if err != nil {
			return summary, err
		}
		if !found {
			userID = sub.Author.ID
		}

		job := MetaJob{
			InputDir:         dir,
			Source:           fmt.Sprintf("https://github.com/%s/issues/%d", s.Repository, sub.Number),
			ResponsibleAgent: fmt.Sprintf("https://api.github.com/user/%d", userID),
		}
		label := models.LabelDone
		if err := s.Runner.Run(ctx, job); err != nil {
			log.Error("Meta process failed", zap.Error(err))
			label = models.LabelMetaError
			summary.Failed++
		} else {
			summary.Done++
		}

		if err := s.Tracker.RemoveLabel(ctx, sub.Number, models.LabelToBeProcessed); err != nil {
			return summary, err
		}
		if err := s.Tracker.AddLabels(ctx, sub.Number, label); err != nil {
			return summary, err
		}
		log.Info("Issue ingested", zap.String("label", label))
	}
	return summary, nil
}

// checkTriplestore stellt eine triviale SPARQL-Anfrage.
func (s *IngestService) checkTriplestore(ctx context.Context) error {
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	form := url.Values{"query": {"ASK { ?s ?p ?o }"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TriplestoreURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("triplestore answered with status %d", resp.StatusCode)
	}
	return nil
}
