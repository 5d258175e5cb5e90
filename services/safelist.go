package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// SafeListUser ist ein vertrauenswürdiger Einreicher.
type SafeListUser struct {
	ID    int64  `yaml:"id"`
	Login string `yaml:"login,omitempty"`
}

type safeListFile struct {
	Users []SafeListUser `yaml:"users"`
}

// SafeList ist die Liste der Nutzer, die Deposits einreichen dürfen.
type SafeList struct {
	Path string

	mu  sync.RWMutex
	ids map[int64]bool
}

// LoadSafeList liest die Liste. Fehlt die Datei, wird eine leere angelegt.
func LoadSafeList(path string) (*SafeList, error) {
	s := &SafeList{Path: path}
	return s, s.Reload()
}

// Reload liest die Datei erneut ein.
func (s *SafeList) Reload() error {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(s.Path, []byte("users: []\n"), 0o644); err != nil {
			return fmt.Errorf("create safe list %s: %w", s.Path, err)
		}
		data = nil
	} else if err != nil {
		return fmt.Errorf("read safe list %s: %w", s.Path, err)
	}

	var f safeListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse safe list %s: %w", s.Path, err)
	}
	ids := make(map[int64]bool, len(f.Users))
	for _, u := range f.Users {
		ids[u.ID] = true
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	return nil
}

// IsAllowed meldet, ob die Nutzer-ID auf der Liste steht.
func (s *SafeList) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[userID]
}

// Len gibt die Anzahl der Einträge zurück.
func (s *SafeList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
