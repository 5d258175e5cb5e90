package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"deposit-bot/models"
)

// Ledger speichert alle gefällten Urteile.
type Ledger struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Open verbindet sich mit Postgres (DSN mit "host=" oder postgres://) oder sonst mit einer SQLite-Datei.
func Open(dsn string, log *zap.Logger) (*Ledger, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, log)
}

// New nutzt eine bestehende Verbindung und migriert das Schema.
func New(db *gorm.DB, log *zap.Logger) (*Ledger, error) {
	if err := db.AutoMigrate(&models.VerdictRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{DB: db, Logger: log}, nil
}

// Record speichert ein Urteil.
func (l *Ledger) Record(ctx context.Context, rec *models.VerdictRecord) error {
	return l.DB.WithContext(ctx).Create(rec).Error
}

// ForIssue gibt alle Urteile zu einem Issue zurück, neueste zuerst.
func (l *Ledger) ForIssue(ctx context.Context, number int) ([]models.VerdictRecord, error) {
	var out []models.VerdictRecord
	err := l.DB.WithContext(ctx).Where("issue_number = ?", number).Order("created_at desc, id desc").Find(&out).Error
	return out, err
}

// ReasonCount ist eine Zeile der Statistik.
type ReasonCount struct {
	Reason string `json:"reason"`
	Valid  bool   `json:"valid"`
	Count  int64  `json:"count"`
}

// Summary zählt Urteile nach Grund, optional ab einem Zeitpunkt.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]ReasonCount, error) {
	q := sq.Select("reason", "valid", "COUNT(*) AS count").
		From("verdict_records").
		GroupBy("reason", "valid").
		OrderBy("count DESC", "reason")
	if !since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": since})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var out []ReasonCount
	if err := l.DB.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		l.Logger.Error("Ledger summary query failed", zap.Error(err))
		return nil, err
	}
	return out, nil
}
