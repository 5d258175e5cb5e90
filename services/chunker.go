package services

import (
	"fmt"

	"go.uber.org/zap"

	"deposit-bot/models"
	"deposit-bot/storage"
)

// Chunker teilt Datensatzströme in Batches von höchstens Size Einträgen.
// Jede Art hat einen eigenen Zähler ab 0; die Reihenfolge bleibt erhalten.
type Chunker struct {
	Size   int
	Sink   storage.BatchSink
	Logger *zap.Logger

	buffers  map[models.RecordKind][]models.Record
	counters map[models.RecordKind]int
}

// NewChunker erstellt einen Chunker mit der gegebenen Batchgröße.
func NewChunker(size int, sink storage.BatchSink, logger *zap.Logger) *Chunker {
	if size < 1 {
		size = 1000
	}
	return &Chunker{
		Size:     size,
		Sink:     sink,
		Logger:   logger,
		buffers:  map[models.RecordKind][]models.Record{},
		counters: map[models.RecordKind]int{},
	}
}

// AppendAll hängt Datensätze an und schreibt jeden vollen Batch sofort.
func (c *Chunker) AppendAll(kind models.RecordKind, records []models.Record) error {
	for _, r := range records {
		c.buffers[kind] = append(c.buffers[kind], r)
		if len(c.buffers[kind]) == c.Size {
			if err := c.emit(kind); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddSubmission liest beide Abschnitte eines Bodys und übernimmt sie nur, wenn beide gültig sind.
// added ist false, wenn die Einreichung übersprungen wurde.
func (c *Chunker) AddSubmission(body string) (added bool, err error) {
	meta, cits, perr := ParseBody(body)
	if perr != nil {
		c.Logger.Info("Skipping malformed submission", zap.Error(perr))
		return false, nil
	}
	return true, c.AddSections(meta, cits)
}

// AddSections übernimmt bereits geprüfte Abschnitte.
func (c *Chunker) AddSections(meta, cits models.CsvSection) error {
	if err := c.AppendAll(models.KindMetadata, meta.Records); err != nil {
		return err
	}
	return c.AppendAll(models.KindCitations, cits.Records)
}

// Flush schreibt angefangene Batches (Metadaten vor Zitationen).
func (c *Chunker) Flush() error {
	for _, kind := range []models.RecordKind{models.KindMetadata, models.KindCitations} {
		if len(c.buffers[kind]) > 0 {
			if err := c.emit(kind); err != nil {
				return err
			}
		}
	}
	return nil
}

// Written gibt die Anzahl geschriebener Batches je Art zurück.
func (c *Chunker) Written(kind models.RecordKind) int {
	return c.counters[kind]
}

func (c *Chunker) emit(kind models.RecordKind) error {
	b := models.Batch{Kind: kind, Index: c.counters[kind], Records: c.buffers[kind]}
	if err := c.Sink.WriteBatch(b); err != nil {
		return fmt.Errorf("write %s batch %d: %w", kind, b.Index, err)
	}
	c.counters[kind]++
	c.buffers[kind] = nil
	batchesCounter.WithLabelValues(string(kind)).Inc()
	c.Logger.Debug("Batch written", zap.String("kind", string(kind)), zap.Int("index", b.Index), zap.Int("records", len(b.Records)))
	return nil
}
