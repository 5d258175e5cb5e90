package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"deposit-bot/models"
)

// LoadIndex liest den Archiv-Index. Fehlt die Datei, wird ein leerer Index angelegt.
func LoadIndex(path string) (*models.IndexFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		idx := models.NewIndexFile()
		if err := SaveIndex(path, idx); err != nil {
			return nil, err
		}
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}

	idx := models.NewIndexFile()
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	if idx.Hot == nil {
		idx.Hot = map[string]string{}
	}
	if idx.Cold == nil {
		idx.Cold = map[string]models.ColdReference{}
	}
	return idx, nil
}

// SaveIndex schreibt den Index atomar über eine temporäre Datei im selben Verzeichnis.
func SaveIndex(path string, idx *models.IndexFile) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic ersetzt path erst, wenn der neue Inhalt vollständig geschrieben ist.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
