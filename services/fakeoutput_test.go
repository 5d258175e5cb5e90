package services

import (
	"os"
	"path/filepath"

	"deposit-bot/providers/semantic"
)

func writeFakeOutput(dir string, metaErrors, citsErrors bool) (semantic.Result, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return semantic.Result{}, err
	}
	write := func(summary, report, body string, failed bool) error {
		text := ""
		if failed {
			text = body + " is invalid"
			html := "<html><head><style>.error{color:red}</style></head><body><div id=\"" + body + "\">" + body + " errors</div></body></html>"
			if err := os.WriteFile(filepath.Join(dir, report), []byte(html), 0o644); err != nil {
				return err
			}
		}
		return os.WriteFile(filepath.Join(dir, summary), []byte(text), 0o644)
	}
	if err := write(semantic.MetadataSummary, semantic.MetadataReport, "meta", metaErrors); err != nil {
		return semantic.Result{}, err
	}
	if err := write(semantic.CitationsSummary, semantic.CitationsReport, "cits", citsErrors); err != nil {
		return semantic.Result{}, err
	}
	return semantic.InspectOutput(dir)
}
