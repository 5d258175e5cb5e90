package models

import "time"

// Location gibt an, wo ein Bericht gerade liegt.
type Location string

const (
	LocationHot  Location = "hot"
	LocationCold Location = "cold"
)

// ColdReference beschreibt einen ins Langzeitarchiv verschobenen Bericht.
type ColdReference struct {
	CollectionID string `json:"collection_id"`
	URL          string `json:"url"`
	PersistentID string `json:"persistent_id"`
}

// ArchiveEntry ist ein Eintrag im Archiv-Index.
type ArchiveEntry struct {
	Name     string         `json:"name"`
	Location Location       `json:"location"`
	LiveURL  string         `json:"live_url,omitempty"`
	Cold     *ColdReference `json:"cold,omitempty"`
}

// IndexFile ist das persistierte Format des Archiv-Index.
type IndexFile struct {
	Hot         map[string]string        `json:"hot_reports"`
	Cold        map[string]ColdReference `json:"cold_reports"`
	LastArchive *time.Time               `json:"last_archive"`
}

// NewIndexFile gibt einen leeren Index zurück.
func NewIndexFile() *IndexFile {
	return &IndexFile{
		Hot:  map[string]string{},
		Cold: map[string]ColdReference{},
	}
}

// Clone erstellt eine tiefe Kopie, damit Änderungen erst nach Erfolg übernommen werden.
func (f *IndexFile) Clone() *IndexFile {
	c := NewIndexFile()
	for k, v := range f.Hot {
		c.Hot[k] = v
	}
	for k, v := range f.Cold {
		c.Cold[k] = v
	}
	if f.LastArchive != nil {
		t := *f.LastArchive
		c.LastArchive = &t
	}
	return c
}

// Collection ist eine noch unveröffentlichte Sammlung im Langzeitarchiv.
type Collection struct {
	ID        string
	UploadURL string
}

// Publication ist das Ergebnis einer Veröffentlichung.
type Publication struct {
	PersistentID string
	RecordURL    string
}
