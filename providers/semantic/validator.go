package semantic

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Dateinamen, die der externe Validator im Ausgabeverzeichnis ablegt.
const (
	MetadataSummary  = "meta_validation_summary.txt"
	CitationsSummary = "cits_validation_summary.txt"
	MetadataReport   = "meta_report.html"
	CitationsReport  = "cits_report.html"
)

// Input beschreibt die Dateien, die geprüft werden.
type Input struct {
	MetadataPath  string
	CitationsPath string
	OutputDir     string
}

// Result enthält pro Abschnitt, ob Fehler gefunden wurden, und den Pfad zum HTML-Bericht.
type Result struct {
	MetadataErrors  bool
	CitationErrors  bool
	MetadataReport  string
	CitationsReport string
}

// HasErrors meldet, ob mindestens ein Abschnitt fehlerhaft ist.
func (r Result) HasErrors() bool {
	return r.MetadataErrors || r.CitationErrors
}

// Validator prüft Metadaten und Zitationen inhaltlich.
type Validator interface {
	Validate(ctx context.Context, in Input) (Result, error)
}

// ExecValidator ruft ein externes Validierungsprogramm auf.
type ExecValidator struct {
	Command string
	Logger  *zap.Logger
}

var _ Validator = (*ExecValidator)(nil)

// NewExecValidator erstellt einen Validator für die gegebene Kommandozeile.
func NewExecValidator(command string, logger *zap.Logger) *ExecValidator {
	return &ExecValidator{Command: command, Logger: logger}
}

// Validate startet das Programm und wertet die Zusammenfassungen aus.
func (v *ExecValidator) Validate(ctx context.Context, in Input) (Result, error) {
	fields := strings.Fields(v.Command)
	if len(fields) == 0 {
		return Result{}, fmt.Errorf("validator command is empty")
	}
	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create validator output dir: %w", err)
	}

	args := append(fields[1:],
		"--meta", in.MetadataPath,
		"--cits", in.CitationsPath,
		"--output", in.OutputDir,
	)
	cmd := exec.CommandContext(ctx, fields[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		v.Logger.Warn("Validator process failed", zap.Error(err), zap.String("stderr", stderr.String()))
		return Result{}, fmt.Errorf("run validator: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return InspectOutput(in.OutputDir)
}

// InspectOutput liest die Zusammenfassungen eines Validator-Laufs.
// Eine nicht leere Zusammenfassung bedeutet Fehler. Fehlt der HTML-Bericht,
// wird aus der Zusammenfassung ein einfacher Bericht erzeugt.
func InspectOutput(dir string) (Result, error) {
	var res Result
	var err error
	res.MetadataErrors, res.MetadataReport, err = inspectSection(dir, "metadata", MetadataSummary, MetadataReport)
	if err != nil {
		return Result{}, err
	}
	res.CitationErrors, res.CitationsReport, err = inspectSection(dir, "citations", CitationsSummary, CitationsReport)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func inspectSection(dir, title, summaryName, reportName string) (bool, string, error) {
	summary, err := os.ReadFile(filepath.Join(dir, summaryName))
	if os.IsNotExist(err) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	text := strings.TrimSpace(string(summary))
	if text == "" {
		return false, "", nil
	}

	report := filepath.Join(dir, reportName)
	if _, err := os.Stat(report); err == nil {
		return true, report, nil
	}
	if err := writeFallbackReport(report, title, text); err != nil {
		return true, "", err
	}
	return true, report, nil
}

var fallbackTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Validation report: {{.Title}}</title></head>
<body>
<div class="report-section" id="{{.Title}}">
<h2>Validation errors in {{.Title}}</h2>
<ul>
{{range .Lines}}<li class="error">{{.}}</li>
{{end}}</ul>
</div>
</body>
</html>
`))

func writeFallbackReport(path, title, summary string) error {
	var lines []string
	for _, l := range strings.Split(summary, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	var buf bytes.Buffer
	if err := fallbackTmpl.Execute(&buf, struct {
		Title string
		Lines []string
	}{title, lines}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
