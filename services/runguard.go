package services

import (
	"errors"
	"sync"
)

// ErrRunInProgress wird gemeldet, wenn bereits ein Lauf aktiv ist.
var ErrRunInProgress = errors.New("another run is in progress")

// RunGuard sorgt dafür, dass Pipeline, Archivierung und Ingest nie gleichzeitig laufen.
type RunGuard struct {
	mu sync.Mutex
}

// Do führt fn aus, wenn kein anderer Lauf aktiv ist.
func (g *RunGuard) Do(fn func() error) error {
	if !g.mu.TryLock() {
		return ErrRunInProgress
	}
	defer g.mu.Unlock()
	return fn()
}
