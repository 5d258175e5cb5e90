package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ArchiveConfig ist das YAML-Dokument für die Archivierung der Validierungsberichte.
type ArchiveConfig struct {
	Reports ReportsConfig `yaml:"validation_reports"`
	Zenodo  ZenodoConfig  `yaml:"zenodo"`
}

// ReportsConfig steuert Schwellwert, Batchgröße und Ablageorte.
type ReportsConfig struct {
	MaxReportsBeforeArchive int    `yaml:"max_reports_before_archive"`
	ArchiveBatchSize        int    `yaml:"archive_batch_size"`
	ReportsDir              string `yaml:"reports_dir"`
	IndexFile               string `yaml:"index_file"`
}

// ZenodoConfig enthält die Vorlage für die Metadaten archivierter Sammlungen.
type ZenodoConfig struct {
	MetadataTemplate map[string]any `yaml:"metadata_template"`
}

// DefaultArchiveConfig liefert die Standardwerte, die von der Datei überschrieben werden.
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Reports: ReportsConfig{
			MaxReportsBeforeArchive: 100,
			ArchiveBatchSize:        50,
			ReportsDir:              "docs/validation_reports",
			IndexFile:               "docs/validation_reports/index.json",
		},
		Zenodo: ZenodoConfig{
			MetadataTemplate: map[string]any{
				"upload_type":  "dataset",
				"title":        "OpenCitations crowdsourcing: validation reports",
				"description":  "Archived validation reports of crowdsourced deposits.",
				"access_right": "open",
				"license":      "CC0-1.0",
			},
		},
	}
}

// LoadArchive liest die Archiv-Konfiguration aus einer YAML-Datei.
func LoadArchive(path string) (*ArchiveConfig, error) {
	cfg := DefaultArchiveConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse archive config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate prüft die Invarianten 1 ≤ Batchgröße ≤ Schwellwert.
func (c *ArchiveConfig) Validate() error {
	r := c.Reports
	if r.MaxReportsBeforeArchive < 1 {
		return fmt.Errorf("max_reports_before_archive must be at least 1, got %d", r.MaxReportsBeforeArchive)
	}
	if r.ArchiveBatchSize < 1 || r.ArchiveBatchSize > r.MaxReportsBeforeArchive {
		return fmt.Errorf("archive_batch_size must be between 1 and %d, got %d", r.MaxReportsBeforeArchive, r.ArchiveBatchSize)
	}
	if r.ReportsDir == "" || r.IndexFile == "" {
		return fmt.Errorf("reports_dir and index_file must be set")
	}
	return nil
}
