package providers

import (
	"context"

	"deposit-bot/models"
)

// ColdTier ist das Interface, das jedes Langzeitarchiv (z.B. Zenodo, S3) implementieren muss.
type ColdTier interface {
	// Name gibt den eindeutigen Namen des Archivs zurück (z.B. "zenodo").
	Name() string

	// CreateCollection legt eine neue, noch unveröffentlichte Sammlung an.
	CreateCollection(ctx context.Context, metadata map[string]any) (*models.Collection, error)

	// Upload lädt eine Datei in die Sammlung.
	Upload(ctx context.Context, col *models.Collection, name string, data []byte) error

	// Publish veröffentlicht die Sammlung und liefert den persistenten Identifier.
	Publish(ctx context.Context, col *models.Collection) (*models.Publication, error)

	// FileURL gibt die öffentliche Adresse einer Datei nach der Veröffentlichung zurück.
	FileURL(col *models.Collection, pub *models.Publication, name string) string
}
