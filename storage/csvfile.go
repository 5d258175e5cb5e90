package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"deposit-bot/models"
)

// BatchSink nimmt fertige Batches entgegen.
type BatchSink interface {
	WriteBatch(b models.Batch) error
}

// DirSink schreibt jeden Batch als <dir>/<kind>/<index>.csv.
// Offsets verschieben die Nummerierung hinter bereits vorhandene Dateien.
type DirSink struct {
	Dir     string
	Offsets map[models.RecordKind]int
}

// NewDirSink setzt die Nummerierung hinter die höchste vorhandene Datei je Art.
func NewDirSink(dir string) (*DirSink, error) {
	s := &DirSink{Dir: dir, Offsets: map[models.RecordKind]int{}}
	for _, kind := range []models.RecordKind{models.KindMetadata, models.KindCitations} {
		entries, err := os.ReadDir(filepath.Join(dir, string(kind)))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".csv"))
			if err != nil || !strings.HasSuffix(e.Name(), ".csv") {
				continue
			}
			if n+1 > s.Offsets[kind] {
				s.Offsets[kind] = n + 1
			}
		}
	}
	return s, nil
}

var _ BatchSink = (*DirSink)(nil)

// IngestionDir gibt das Monatsverzeichnis unter base zurück, z.B. base/2026_10.
func IngestionDir(base string, now time.Time) string {
	return filepath.Join(base, now.Format("2006_01"))
}

// WriteBatch schreibt den Batch; die Kopfzeile ist die Vereinigung der Spalten in Reihenfolge des Auftretens.
func (s *DirSink) WriteBatch(b models.Batch) error {
	dir := filepath.Join(s.Dir, string(b.Kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := EncodeRecords(b.Records)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.csv", b.Index+s.Offsets[b.Kind]))
	return WriteFileAtomic(path, data)
}

// EncodeRecords serialisiert Datensätze als CSV mit Kopfzeile.
func EncodeRecords(records []models.Record) ([]byte, error) {
	var header []string
	seen := map[string]bool{}
	for _, r := range records {
		for _, c := range r.Columns {
			if !seen[c] {
				seen[c] = true
				header = append(header, c)
			}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	row := make([]string, len(header))
	for _, r := range records {
		for i, c := range header {
			row[i] = r.Values[c]
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
