package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"deposit-bot/config"
	"deposit-bot/models"
	"deposit-bot/providers"
	"deposit-bot/providers/zenodo"
	"deposit-bot/storage"
)

// ErrReportArchived meldet einen Berichtsnamen, der bereits im Langzeitarchiv liegt.
var ErrReportArchived = errors.New("report already archived")

// ArchiveIndex verwaltet Berichte im lokalen Verzeichnis (hot) und im Langzeitarchiv (cold).
// Jede Operation liest die Indexdatei neu ein, da Daemon und Einmal-Läufe dieselbe Datei schreiben.
// Es darf nur ein Prozess gleichzeitig auf der Indexdatei arbeiten.
type ArchiveIndex struct {
	Config   config.ReportsConfig
	Template map[string]any
	Tier     providers.ColdTier
	Logger   *zap.Logger
	Now      func() time.Time

	mu    sync.Mutex
	index *models.IndexFile
}

var _ ReportRegistry = (*ArchiveIndex)(nil)

// NewArchiveIndex lädt den Index oder legt ihn neu an.
func NewArchiveIndex(cfg *config.ArchiveConfig, tier providers.ColdTier, logger *zap.Logger) (*ArchiveIndex, error) {
	idx, err := storage.LoadIndex(cfg.Reports.IndexFile)
	if err != nil {
		return nil, err
	}
	return &ArchiveIndex{
		Config:   cfg.Reports,
		Template: cfg.Zenodo.MetadataTemplate,
		Tier:     tier,
		Logger:   logger,
		Now:      time.Now,
		index:    idx,
	}, nil
}

// Register trägt einen Bericht als hot ein. Erreicht die Anzahl den Schwellwert, wird migriert.
// Ein Name, der bereits cold ist, wird abgelehnt; der Index bleibt dann unverändert.
func (a *ArchiveIndex) Register(ctx context.Context, name, liveURL string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.reload(); err != nil {
		return err
	}
	if _, ok := a.index.Cold[name]; ok {
		return fmt.Errorf("register %s: %w", name, ErrReportArchived)
	}

	next := a.index.Clone()
	next.Hot[name] = liveURL
	if err := storage.SaveIndex(a.Config.IndexFile, next); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	a.index = next
	a.Logger.Info("Report registered", zap.String("report", name), zap.Int("hot", len(next.Hot)))

	if len(a.index.Hot) >= a.Config.MaxReportsBeforeArchive {
		if _, err := a.migrateLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NeedsArchival meldet, ob der Schwellwert erreicht ist.
func (a *ArchiveIndex) NeedsArchival() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloadOrKeep()
	return len(a.index.Hot) >= a.Config.MaxReportsBeforeArchive
}

// Migrate verschiebt die ältesten Berichte ins Langzeitarchiv und gibt den persistenten Identifier zurück.
// Ohne hochladbare Kandidaten wird "" ohne Nebenwirkungen zurückgegeben.
func (a *ArchiveIndex) Migrate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reload(); err != nil {
		return "", err
	}
	return a.migrateLocked(ctx)
}

// Locate gibt die aktuelle Adresse eines Berichts zurück.
func (a *ArchiveIndex) Locate(name string) (string, bool) {
	e, ok := a.Entry(name)
	if !ok {
		return "", false
	}
	if e.Location == models.LocationCold {
		return e.Cold.URL, true
	}
	return e.LiveURL, true
}

// Entry liefert den Indexeintrag eines Berichts.
func (a *ArchiveIndex) Entry(name string) (models.ArchiveEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloadOrKeep()
	return a.entryLocked(name)
}

// Entries gibt alle Einträge nach Namen sortiert zurück.
func (a *ArchiveIndex) Entries() []models.ArchiveEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reloadOrKeep()

	names := make([]string, 0, len(a.index.Hot)+len(a.index.Cold))
	for n := range a.index.Hot {
		names = append(names, n)
	}
	for n := range a.index.Cold {
		if _, dup := a.index.Hot[n]; !dup {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	out := make([]models.ArchiveEntry, 0, len(names))
	for _, n := range names {
		if e, ok := a.entryLocked(n); ok {
			out = append(out, e)
		}
	}
	return out
}

func (a *ArchiveIndex) entryLocked(name string) (models.ArchiveEntry, bool) {
	if u, ok := a.index.Hot[name]; ok {
		return models.ArchiveEntry{Name: name, Location: models.LocationHot, LiveURL: u}, true
	}
	if ref, ok := a.index.Cold[name]; ok {
		r := ref
		return models.ArchiveEntry{Name: name, Location: models.LocationCold, Cold: &r}, true
	}
	return models.ArchiveEntry{}, false
}

// reload liest die Indexdatei neu; eine fehlende Datei wird leer angelegt.
func (a *ArchiveIndex) reload() error {
	idx, err := storage.LoadIndex(a.Config.IndexFile)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	a.index = idx
	return nil
}

// reloadOrKeep wird von lesenden Zugriffen genutzt; bei einem Lesefehler gilt der zuletzt bekannte Stand.
func (a *ArchiveIndex) reloadOrKeep() {
	if err := a.reload(); err != nil {
		a.Logger.Warn("Using cached archive index", zap.Error(err))
	}
}

// ReportPath ist der lokale Pfad eines hot-Berichts.
func (a *ArchiveIndex) ReportPath(name string) string {
	return filepath.Join(a.Config.ReportsDir, filepath.Base(name))
}

type candidate struct {
	name    string
	modTime time.Time
	exists  bool
}

// candidates sortiert hot-Einträge nach Änderungszeit; fehlende Dateien zuerst.
func (a *ArchiveIndex) candidates() []candidate {
	out := make([]candidate, 0, len(a.index.Hot))
	for name := range a.index.Hot {
		c := candidate{name: name}
		if info, err := os.Stat(a.ReportPath(name)); err == nil {
			c.modTime = info.ModTime()
			c.exists = true
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].exists != out[j].exists {
			return !out[i].exists
		}
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.Before(out[j].modTime)
		}
		return out[i].name < out[j].name
	})
	if len(out) > a.Config.ArchiveBatchSize {
		out = out[:a.Config.ArchiveBatchSize]
	}
	return out
}

func (a *ArchiveIndex) migrateLocked(ctx context.Context) (string, error) {
	log := a.Logger.With(zap.String("tier", a.Tier.Name()))

	type upload struct {
		name string
		data []byte
	}
	var uploads []upload
	for _, c := range a.candidates() {
		if !c.exists {
			log.Warn("Report file missing, keeping entry hot", zap.String("report", c.name))
			continue
		}
		data, err := os.ReadFile(a.ReportPath(c.name))
		if err != nil {
			log.Warn("Report file unreadable, keeping entry hot", zap.String("report", c.name), zap.Error(err))
			continue
		}
		uploads = append(uploads, upload{c.name, data})
	}
	if len(uploads) == 0 {
		log.Info("No reports to migrate")
		return "", nil
	}

	now := a.Now()
	names := make([]string, len(uploads))
	for i, u := range uploads {
		names[i] = u.name
	}

	col, err := a.Tier.CreateCollection(ctx, zenodo.ArchiveMetadata(a.Template, now, names))
	if err != nil {
		return "", a.migrationFailed(log, "create collection", err)
	}
	for _, u := range uploads {
		if err := a.Tier.Upload(ctx, col, u.name, u.data); err != nil {
			return "", a.migrationFailed(log, "upload "+u.name, err)
		}
	}
	pub, err := a.Tier.Publish(ctx, col)
	if err != nil {
		return "", a.migrationFailed(log, "publish", err)
	}

	persistentID := persistentURL(pub.PersistentID)
	next := a.index.Clone()
	for _, n := range names {
		delete(next.Hot, n)
		next.Cold[n] = models.ColdReference{
			CollectionID: col.ID,
			URL:          a.Tier.FileURL(col, pub, n),
			PersistentID: persistentID,
		}
	}
	next.LastArchive = &now
	if err := storage.SaveIndex(a.Config.IndexFile, next); err != nil {
		return "", a.migrationFailed(log, "save index", err)
	}
	a.index = next

	for _, n := range names {
		if err := os.Remove(a.ReportPath(n)); err != nil && !os.IsNotExist(err) {
			log.Warn("Could not delete migrated report", zap.String("report", n), zap.Error(err))
		}
	}

	migrationsCounter.WithLabelValues("success").Inc()
	migratedReportsCounter.Add(float64(len(names)))
	log.Info("Reports migrated", zap.Int("count", len(names)), zap.String("persistent_id", persistentID))
	return persistentID, nil
}

func (a *ArchiveIndex) migrationFailed(log *zap.Logger, step string, err error) error {
	migrationsCounter.WithLabelValues("failure").Inc()
	log.Error("Report migration failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("migrate reports: %s: %w", step, err)
}

// persistentURL macht aus einer DOI eine auflösbare URL; URLs bleiben unverändert.
func persistentURL(id string) string {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return id
	}
	return "https://doi.org/" + id
}
