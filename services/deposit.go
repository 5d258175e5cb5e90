package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deposit-bot/models"
	"deposit-bot/providers"
	"deposit-bot/providers/zenodo"
)

// Depositor legt die gesammelten Einreichungen eines Laufs im Langzeitarchiv ab.
type Depositor interface {
	Deposit(ctx context.Context, items []models.DepositItem) (string, error)
}

// DepositService veröffentlicht alle Einreichungen eines Laufs als eine JSON-Datei.
type DepositService struct {
	Tier       providers.ColdTier
	Repository string
	Logger     *zap.Logger
	Now        func() time.Time
}

var _ Depositor = (*DepositService)(nil)

// NewDepositService erstellt den Deposit-Service.
func NewDepositService(tier providers.ColdTier, repository string, logger *zap.Logger) *DepositService {
	return &DepositService{Tier: tier, Repository: repository, Logger: logger, Now: time.Now}
}

// DepositFileName ist der Name der Datei eines Laufs.
func DepositFileName(now time.Time) string {
	return fmt.Sprintf("%s_weekly_deposit.json", now.Format("2006-01-02"))
}

// Deposit lädt die Einträge hoch und gibt den persistenten Identifier zurück.
func (d *DepositService) Deposit(ctx context.Context, items []models.DepositItem) (string, error) {
	now := d.Now()
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	name := DepositFileName(now)
	log := d.Logger.With(zap.String("tier", d.Tier.Name()), zap.String("file", name), zap.Int("items", len(items)))

	col, err := d.Tier.CreateCollection(ctx, zenodo.DepositMetadata(now, d.Repository))
	if err != nil {
		return "", d.failed(log, "create collection", err)
	}
	if err := d.Tier.Upload(ctx, col, name, data); err != nil {
		return "", d.failed(log, "upload", err)
	}
	pub, err := d.Tier.Publish(ctx, col)
	if err != nil {
		return "", d.failed(log, "publish", err)
	}

	depositsCounter.WithLabelValues("success").Inc()
	log.Info("Deposit published", zap.String("persistent_id", pub.PersistentID))
	return pub.PersistentID, nil
}

func (d *DepositService) failed(log *zap.Logger, step string, err error) error {
	depositsCounter.WithLabelValues("failure").Inc()
	log.Error("Deposit failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("deposit: %s: %w", step, err)
}

// NewDepositItem baut den Eintrag einer angenommenen Einreichung samt Herkunft.
func NewDepositItem(sub models.Submission, userID int64, c *models.Contribution) models.DepositItem {
	item := models.DepositItem{
		Data: models.DepositData{
			Title:     sub.Title,
			Metadata:  make([]map[string]string, 0, len(c.Metadata.Records)),
			Citations: make([]map[string]string, 0, len(c.Citations.Records)),
		},
		Provenance: models.DepositProvenance{
			GeneratedAtTime:  sub.CreatedAt.UTC().Format(time.RFC3339),
			WasAttributedTo:  fmt.Sprintf("https://api.github.com/user/%d", userID),
			HadPrimarySource: sub.URL,
		},
	}
	for _, r := range c.Metadata.Records {
		item.Data.Metadata = append(item.Data.Metadata, r.Map())
	}
	for _, r := range c.Citations.Records {
		item.Data.Citations = append(item.Data.Citations, r.Map())
	}
	return item
}
