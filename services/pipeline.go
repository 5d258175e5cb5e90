package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"deposit-bot/models"
)

// IssueTracker ist der Teil der Tracker-API, den die Dienste brauchen.
type IssueTracker interface {
	ListIssues(ctx context.Context, state, label string) ([]models.Submission, error)
	GetUserID(ctx context.Context, login string) (int64, bool, error)
	AddLabels(ctx context.Context, number int, labels ...string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	AddComment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
}

// Authorizer entscheidet, ob ein Nutzer einreichen darf.
type Authorizer interface {
	IsAllowed(userID int64) bool
}

// VerdictLedger speichert gefällte Urteile.
type VerdictLedger interface {
	Record(ctx context.Context, rec *models.VerdictRecord) error
}

// RunSummary fasst einen Pipeline-Lauf zusammen.
type RunSummary struct {
	RunID        string `json:"run_id"`
	Processed    int    `json:"processed"`
	Accepted     int    `json:"accepted"`
	Rejected     int    `json:"rejected"`
	Unauthorized int    `json:"unauthorized"`
	DepositID    string `json:"deposit_id,omitempty"`
}

// PipelineService verarbeitet alle offenen Deposit-Issues nacheinander.
type PipelineService struct {
	Tracker   IssueTracker
	Validator ContributionValidator
	SafeList  Authorizer
	Chunker   *Chunker
	Depositor Depositor
	Ledger    VerdictLedger
	Label     string
	Logger    *zap.Logger
}

// Run holt die offenen Issues, beantwortet jedes und legt die angenommenen Daten am Ende gesammelt ab.
// Der erste nicht behebbare Fehler bricht den Lauf ab; bereits gepostete Urteile bleiben bestehen.
func (p *PipelineService) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	log := p.Logger.With(zap.String("run_id", summary.RunID))

	subs, err := p.Tracker.ListIssues(ctx, "open", p.Label)
	if err != nil {
		log.Error("Could not list deposit issues", zap.Error(err))
		return summary, err
	}
	log.Info("Processing deposit issues", zap.Int("count", len(subs)))

	var items []models.DepositItem
	for _, sub := range subs {
		item, err := p.handle(ctx, log, summary.RunID, sub, &summary)
		if err != nil {
			return summary, err
		}
		if item != nil {
			items = append(items, *item)
		}
	}

	if p.Chunker != nil {
		if err := p.Chunker.Flush(); err != nil {
			log.Error("Could not flush record batches", zap.Error(err))
			return summary, err
		}
	}

	if len(items) > 0 {
		id, err := p.Depositor.Deposit(ctx, items)
		if err != nil {
			return summary, err
		}
		summary.DepositID = id
	}

	log.Info("Run completed",
		zap.Int("processed", summary.Processed),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("unauthorized", summary.Unauthorized),
		zap.String("deposit_id", summary.DepositID))
	return summary, nil
}

func (p *PipelineService) handle(ctx context.Context, runLog *zap.Logger, runID string, sub models.Submission, summary *RunSummary) (*models.DepositItem, error) {
	log := runLog.With(zap.Int("issue", sub.Number), zap.String("user", sub.Author.Login))

	userID, found, err := p.Tracker.GetUserID(ctx, sub.Author.Login)
	if err != nil {
		log.Error("Could not resolve user", zap.Error(err))
		return nil, err
	}

	var verdict models.Verdict
	var archiveErr error
	if !found || !p.SafeList.IsAllowed(userID) {
		verdictsCounter.WithLabelValues(string(models.ReasonUnauthorized)).Inc()
		verdict = models.Verdict{Reason: models.ReasonUnauthorized, Message: MsgUnauthorized}
	} else {
		verdict, archiveErr = p.Validator.Validate(ctx, sub)
	}

	if err := p.answer(ctx, sub.Number, verdict); err != nil {
		log.Error("Could not post verdict", zap.Error(err))
		return nil, err
	}
	summary.Processed++
	log.Info("Verdict posted", zap.Bool("valid", verdict.Valid), zap.String("reason", string(verdict.Reason)))
	p.record(ctx, log, runID, sub, userID, verdict)

	if archiveErr != nil {
		return nil, archiveErr
	}

	switch {
	case verdict.Valid:
		summary.Accepted++
	case verdict.Reason == models.ReasonUnauthorized:
		summary.Unauthorized++
		return nil, nil
	default:
		summary.Rejected++
		return nil, nil
	}

	if p.Chunker != nil {
		if err := p.Chunker.AddSections(verdict.Contribution.Metadata, verdict.Contribution.Citations); err != nil {
			log.Error("Could not batch records", zap.Error(err))
			return nil, err
		}
	}
	item := NewDepositItem(sub, userID, verdict.Contribution)
	return &item, nil
}

// answer setzt Label, Kommentar und schließt das Issue.
func (p *PipelineService) answer(ctx context.Context, number int, v models.Verdict) error {
	if err := p.Tracker.AddLabels(ctx, number, v.Label()); err != nil {
		return err
	}
	if err := p.Tracker.AddComment(ctx, number, v.Message); err != nil {
		return err
	}
	return p.Tracker.CloseIssue(ctx, number)
}

func (p *PipelineService) record(ctx context.Context, log *zap.Logger, runID string, sub models.Submission, userID int64, v models.Verdict) {
	if p.Ledger == nil {
		return
	}
	rec := &models.VerdictRecord{
		RunID:       runID,
		IssueNumber: sub.Number,
		UserLogin:   sub.Author.Login,
		UserID:      userID,
		Valid:       v.Valid,
		Reason:      string(v.Reason),
		Label:       v.Label(),
	}
	details := map[string]any{"title": sub.Title, "message": v.Message}
	if v.Report != nil {
		rec.ReportName = v.Report.Name
		details["report_url"] = v.Report.LiveURL
	}
	if v.Contribution != nil {
		details["metadata_records"] = len(v.Contribution.Metadata.Records)
		details["citation_records"] = len(v.Contribution.Citations.Records)
	}
	if data, err := json.Marshal(details); err == nil {
		rec.Details = datatypes.JSON(data)
	}
	if err := p.Ledger.Record(ctx, rec); err != nil {
		log.Warn("Could not record verdict", zap.Error(err))
	}
}
