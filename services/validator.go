package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"deposit-bot/models"
	"deposit-bot/providers/identifiers"
	"deposit-bot/providers/semantic"
	"deposit-bot/storage"
)

const guideURL = "https://github.com/opencitations/crowdsourcing/blob/main/README.md"

// Nachrichten an die Einreichenden
const (
	MsgMalformedTitle = `The title of the issue was not structured correctly. Please, follow this format: deposit {domain name of journal} {doi or other supported identifier}. For example "deposit localhost:330 doi:10.1007/978-3-030-00668-6_8". The following identifiers are currently supported: doi, isbn, pmid, pmcid, url, wikidata, wikipedia, and openalex`
	MsgEmptyBody      = "The issue body cannot be empty. Please provide metadata and citations in CSV format separated by '" + models.Separator + "', as shown in the guide: " + guideURL
	MsgSeparator      = `Please use the separator "` + models.Separator + `" to divide metadata from citations, as shown in the following guide: ` + guideURL
	MsgRepeated       = `The separator "` + models.Separator + `" must appear exactly once, between the metadata CSV and the citations CSV, as shown in the following guide: ` + guideURL
	MsgInvalidCsv     = "The data you provided could not be processed as a CSV. Please, check that the metadata CSV and the citation CSV are valid CSVs"
	MsgSuccess        = "Thank you for your contribution! OpenCitations just processed the data you provided. The citations will soon be available on the [OpenCitations Index](https://opencitations.net/index) and metadata on [OpenCitations Meta](https://opencitations.net/meta)"
	MsgUnauthorized   = "To make a deposit, please contact OpenCitations at <contact@opencitations.net> to register as a trusted user"
)

// ReportRegistry nimmt erzeugte Berichte in den Archiv-Index auf.
type ReportRegistry interface {
	Register(ctx context.Context, name, liveURL string) error
}

// ContributionValidator prüft eine Einreichung.
type ContributionValidator interface {
	Validate(ctx context.Context, sub models.Submission) (models.Verdict, error)
}

// ValidationService führt die Prüfschritte in fester Reihenfolge aus; der erste Fehler gewinnt.
type ValidationService struct {
	Checker    identifiers.Checker
	Semantic   semantic.Validator
	Archive    ReportRegistry
	ReportsDir string
	ReportsURL string
	WorkDir    string
	Logger     *zap.Logger
	Now        func() time.Time
}

var _ ContributionValidator = (*ValidationService)(nil)

// NewValidationService erstellt den Validator.
func NewValidationService(checker identifiers.Checker, sem semantic.Validator, archive ReportRegistry, reportsDir, reportsURL, workDir string, logger *zap.Logger) *ValidationService {
	return &ValidationService{
		Checker:    checker,
		Semantic:   sem,
		Archive:    archive,
		ReportsDir: reportsDir,
		ReportsURL: strings.TrimRight(reportsURL, "/"),
		WorkDir:    workDir,
		Logger:     logger,
		Now:        time.Now,
	}
}

func reject(reason models.RejectReason, msg string) models.Verdict {
	verdictsCounter.WithLabelValues(string(reason)).Inc()
	return models.Verdict{Reason: reason, Message: msg}
}

// Validate liefert immer ein Urteil. Ein Fehler wird nur zurückgegeben, wenn der
// Bericht nicht im Archiv-Index registriert werden konnte; das Urteil bleibt gültig.
func (s *ValidationService) Validate(ctx context.Context, sub models.Submission) (models.Verdict, error) {
	log := s.Logger.With(zap.Int("issue", sub.Number))

	title, ok := ParseTitle(sub.Title)
	if !ok {
		return reject(models.ReasonMalformedTitle, MsgMalformedTitle), nil
	}

	scheme, _ := identifiers.ParseScheme(title.Scheme)
	if !scheme.Supported() {
		return reject(models.ReasonUnsupportedScheme, fmt.Sprintf("The identifier schema '%s' is not supported", title.Scheme)), nil
	}

	valid, err := s.Checker.IsValid(ctx, scheme, title.Value)
	if err != nil {
		log.Warn("Identifier check failed", zap.String("scheme", title.Scheme), zap.Error(err))
		valid = false
	}
	if !valid {
		return reject(models.ReasonInvalidIdentifier, fmt.Sprintf(
			"The identifier with literal value %s specified in the issue title is not a valid %s",
			title.Value, strings.ToUpper(title.Scheme))), nil
	}

	if sub.Body == "" {
		return reject(models.ReasonEmptyBody, MsgEmptyBody), nil
	}

	meta, cits, err := ParseBody(sub.Body)
	switch {
	case errors.Is(err, ErrMissingSeparator):
		return reject(models.ReasonMissingSeparator, MsgSeparator), nil
	case errors.Is(err, ErrRepeatedSeparator):
		return reject(models.ReasonRepeatedSeparator, MsgRepeated), nil
	case err != nil:
		log.Info("Body is not valid CSV", zap.Error(err))
		return reject(models.ReasonInvalidCsv, MsgInvalidCsv), nil
	}

	name := ReportName(sub.Number, s.Now())
	res, err := s.runSemantic(ctx, sub.Number, name, meta, cits)
	if err != nil {
		log.Warn("Semantic validation could not run", zap.Error(err))
		return reject(models.ReasonValidatorFailure, fmt.Sprintf(
			"Error validating data: %s. Please ensure both metadata and citations are valid CSVs following the required format.", err)), nil
	}
	if res.HasErrors() {
		return s.rejectWithReport(ctx, log, name, res)
	}

	verdictsCounter.WithLabelValues("valid").Inc()
	return models.Verdict{
		Valid:   true,
		Message: MsgSuccess,
		Contribution: &models.Contribution{
			Title:     title,
			Metadata:  meta,
			Citations: cits,
		},
	}, nil
}

// runSemantic schreibt beide Abschnitte in ein Arbeitsverzeichnis und ruft den externen Validator.
func (s *ValidationService) runSemantic(ctx context.Context, number int, name string, meta, cits models.CsvSection) (semantic.Result, error) {
	if s.WorkDir != "" {
		if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
			return semantic.Result{}, fmt.Errorf("create work dir: %w", err)
		}
	}
	work, err := os.MkdirTemp(s.WorkDir, fmt.Sprintf("issue_%d_", number))
	if err != nil {
		return semantic.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	in := semantic.Input{
		MetadataPath:  filepath.Join(work, "metadata.csv"),
		CitationsPath: filepath.Join(work, "citations.csv"),
		OutputDir:     filepath.Join(work, "output"),
	}
	if err := os.WriteFile(in.MetadataPath, []byte(meta.Raw), 0o644); err != nil {
		return semantic.Result{}, err
	}
	if err := os.WriteFile(in.CitationsPath, []byte(cits.Raw), 0o644); err != nil {
		return semantic.Result{}, err
	}

	res, err := s.Semantic.Validate(ctx, in)
	if err != nil {
		return semantic.Result{}, err
	}
	if !res.HasErrors() {
		return res, nil
	}

	// Berichte liegen im Arbeitsverzeichnis und müssen vor dem Aufräumen übernommen werden.
	var reports []string
	if res.MetadataErrors && res.MetadataReport != "" {
		reports = append(reports, res.MetadataReport)
	}
	if res.CitationErrors && res.CitationsReport != "" {
		reports = append(reports, res.CitationsReport)
	}
	if len(reports) == 0 {
		return semantic.Result{}, fmt.Errorf("validator reported errors without a report")
	}
	merged, err := MergeReports(reports...)
	if err != nil {
		return semantic.Result{}, fmt.Errorf("merge reports: %w", err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(s.ReportsDir, name), merged); err != nil {
		return semantic.Result{}, fmt.Errorf("write report: %w", err)
	}
	return res, nil
}

func (s *ValidationService) rejectWithReport(ctx context.Context, log *zap.Logger, name string, res semantic.Result) (models.Verdict, error) {
	liveURL := fmt.Sprintf("%s/validation_reports/%s", s.ReportsURL, name)

	var failed []string
	if res.MetadataErrors {
		failed = append(failed, "metadata")
	}
	if res.CitationErrors {
		failed = append(failed, "citations")
	}

	v := reject(models.ReasonSemanticErrors, fmt.Sprintf(
		"Validation errors found in %s. Please check the detailed validation report: %s/validation_reports/index.html?report=%s",
		strings.Join(failed, " and "), s.ReportsURL, name))
	v.Report = &models.ReportRef{Name: name, LiveURL: liveURL}

	if err := s.Archive.Register(ctx, name, liveURL); err != nil {
		log.Error("Report registration failed", zap.String("report", name), zap.Error(err))
		return v, fmt.Errorf("register report %s: %w", name, err)
	}
	return v, nil
}

// ReportName ist der Dateiname eines Berichts. Der Zeitstempel trennt wiederholte Prüfungen desselben Issues.
func ReportName(number int, at time.Time) string {
	return fmt.Sprintf("validation_issue_%d_%d.html", number, at.Unix())
}
