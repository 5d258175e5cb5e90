package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"deposit-bot/models"
)

var titleRe = regexp.MustCompile(`(?i)deposit\s+(.+?)\s+([a-zA-Z]+):(.+)`)

// Fehler beim Zerlegen des Bodys
var (
	ErrMissingSeparator  = errors.New("separator missing")
	ErrRepeatedSeparator = errors.New("separator repeated")
	ErrEmptySection      = errors.New("section has no records")
	ErrDuplicateColumn   = errors.New("duplicate column name")
)

// ParseTitle zerlegt "deposit <domain> <scheme>:<value>". Das Schema wird kleingeschrieben.
func ParseTitle(title string) (models.ParsedTitle, bool) {
	m := titleRe.FindStringSubmatch(title)
	if m == nil {
		return models.ParsedTitle{}, false
	}
	value := strings.TrimSpace(m[3])
	if value == "" {
		return models.ParsedTitle{}, false
	}
	return models.ParsedTitle{
		Domain: strings.TrimSpace(m[1]),
		Scheme: strings.ToLower(m[2]),
		Value:  value,
	}, true
}

// SplitBody teilt den Body am Trenner. Der Trenner muss genau einmal vorkommen.
func SplitBody(body string) (metadata, citations string, err error) {
	switch strings.Count(body, models.Separator) {
	case 0:
		return "", "", ErrMissingSeparator
	case 1:
		metadata, citations, _ = strings.Cut(body, models.Separator)
		return metadata, citations, nil
	default:
		return "", "", ErrRepeatedSeparator
	}
}

// ParseSection liest einen CSV-Abschnitt mit Kopfzeile.
// Der Text wird getrimmt und NFC-normalisiert; alle Zeilen müssen gleich viele Felder haben.
func ParseSection(kind models.RecordKind, raw string) (models.CsvSection, error) {
	text := strings.TrimSpace(strings.TrimPrefix(norm.NFC.String(raw), "\ufeff"))
	section := models.CsvSection{Kind: kind, Raw: text}
	if text == "" {
		return section, fmt.Errorf("%s: %w", kind, ErrEmptySection)
	}

	r := csv.NewReader(strings.NewReader(text))
	rows, err := r.ReadAll()
	if err != nil {
		return section, fmt.Errorf("%s: %w", kind, err)
	}
	if len(rows) < 2 {
		return section, fmt.Errorf("%s: %w", kind, ErrEmptySection)
	}

	header := make([]string, len(rows[0]))
	seen := make(map[string]bool, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			return section, fmt.Errorf("%s: empty column name at position %d", kind, i+1)
		}
		if seen[h] {
			return section, fmt.Errorf("%s: %w %q at position %d", kind, ErrDuplicateColumn, h, i+1)
		}
		seen[h] = true
		header[i] = h
	}
	section.Header = header

	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		rec := models.Record{Columns: header, Values: make(map[string]string, len(header))}
		for i, col := range header {
			rec.Values[col] = strings.TrimSpace(row[i])
		}
		section.Records = append(section.Records, rec)
	}
	if len(section.Records) == 0 {
		return section, fmt.Errorf("%s: %w", kind, ErrEmptySection)
	}
	return section, nil
}

// ParseBody zerlegt den Body und liest beide Abschnitte.
func ParseBody(body string) (models.CsvSection, models.CsvSection, error) {
	rawMeta, rawCits, err := SplitBody(body)
	if err != nil {
		return models.CsvSection{}, models.CsvSection{}, err
	}
	meta, err := ParseSection(models.KindMetadata, rawMeta)
	if err != nil {
		return models.CsvSection{}, models.CsvSection{}, err
	}
	cits, err := ParseSection(models.KindCitations, rawCits)
	if err != nil {
		return models.CsvSection{}, models.CsvSection{}, err
	}
	return meta, cits, nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
