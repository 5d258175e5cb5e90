package zenodo

import (
	"fmt"
	"time"
)

// DepositMetadata baut die Metadaten für den monatlichen Daten-Deposit.
func DepositMetadata(now time.Time, repository string) map[string]any {
	month := now.Format("2006-01")
	return map[string]any{
		"upload_type":      "dataset",
		"publication_date": now.Format("2006-01-02"),
		"title":            fmt.Sprintf("OpenCitations crowdsourcing: deposits of %s", month),
		"creators": []map[string]string{{
			"name":        "crocibot",
			"affiliation": "Research Centre for Open Scholarly Metadata, Department of Classical Philology and Italian Studies, University of Bologna, Bologna, Italy",
		}},
		"description":    fmt.Sprintf("OpenCitations collects citation data and related metadata from the community through issues on the GitHub repository %s. This dataset contains the deposits received in %s.", repository, month),
		"access_right":   "open",
		"license":        "CC0-1.0",
		"prereserve_doi": true,
		"keywords":       []string{"OpenCitations", "crowdsourcing", "provenance", "GitHub issues"},
		"related_identifiers": []map[string]string{{
			"identifier":    fmt.Sprintf("https://github.com/%s", repository),
			"relation":      "isDerivedFrom",
			"resource_type": "dataset",
		}},
		"version": "1.0.0",
	}
}

// ArchiveMetadata ergänzt die Vorlage aus der Archiv-Konfiguration um Datum und Anzahl.
func ArchiveMetadata(template map[string]any, now time.Time, files []string) map[string]any {
	out := make(map[string]any, len(template)+2)
	for k, v := range template {
		out[k] = v
	}
	if _, ok := out["publication_date"]; !ok {
		out["publication_date"] = now.Format("2006-01-02")
	}
	title, _ := out["title"].(string)
	if title == "" {
		title = "Validation reports"
	}
	out["title"] = fmt.Sprintf("%s (%s, %d files)", title, now.Format("2006-01-02"), len(files))
	return out
}
