package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"deposit-bot/config"
	"deposit-bot/ledger"
	"deposit-bot/providers"
	"deposit-bot/providers/github"
	"deposit-bot/providers/identifiers"
	"deposit-bot/providers/semantic"
	"deposit-bot/providers/zenodo"
	"deposit-bot/services"
	"deposit-bot/storage"
)

// App verbindet Konfiguration, Provider und Services.
type App struct {
	Config   *config.Config
	Archive  *config.ArchiveConfig
	Logger   *zap.Logger
	Tracker  *github.Client
	Tier     providers.ColdTier
	Index    *services.ArchiveIndex
	SafeList *services.SafeList
	Ledger   *ledger.Ledger

	Validator *services.ValidationService
	Pipeline  *services.PipelineService
	Ingest    *services.IngestService
	Guard     *services.RunGuard

	now func() time.Time
}

// NewLogger baut den zap-Logger für LOG_MODE.
func NewLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// New baut alle Komponenten aus der Konfiguration.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	archiveCfg, err := config.LoadArchive(cfg.ArchiveConfig)
	if err != nil {
		return nil, err
	}

	tier, err := newColdTier(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	index, err := services.NewArchiveIndex(archiveCfg, tier, log.With(zap.String("component", "archive")))
	if err != nil {
		return nil, fmt.Errorf("load archive index: %w", err)
	}

	safeList, err := services.LoadSafeList(cfg.SafeListPath)
	if err != nil {
		return nil, err
	}

	var ldg *ledger.Ledger
	if cfg.LedgerDSN != "" {
		ldg, err = ledger.Open(cfg.LedgerDSN, log.With(zap.String("component", "ledger")))
		if err != nil {
			return nil, err
		}
	}

	tracker := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubRepository, cfg.GitHubToken, log.With(zap.String("component", "github")))

	validator := services.NewValidationService(
		identifiers.Syntactic(),
		semantic.NewExecValidator(cfg.ValidatorCommand, log.With(zap.String("component", "semantic"))),
		index,
		archiveCfg.Reports.ReportsDir,
		cfg.ReportsURL(),
		cfg.WorkDir,
		log.With(zap.String("component", "validator")),
	)

	a := &App{
		Config:    cfg,
		Archive:   archiveCfg,
		Logger:    log,
		Tracker:   tracker,
		Tier:      tier,
		Index:     index,
		SafeList:  safeList,
		Ledger:    ldg,
		Validator: validator,
		Guard:     &services.RunGuard{},
		now:       time.Now,
	}

	a.Pipeline = &services.PipelineService{
		Tracker:   tracker,
		Validator: validator,
		SafeList:  safeList,
		Depositor: services.NewDepositService(tier, cfg.GitHubRepository, log.With(zap.String("component", "deposit"))),
		Label:     cfg.DepositLabel,
		Logger:    log.With(zap.String("component", "pipeline")),
	}
	if ldg != nil {
		a.Pipeline.Ledger = ldg
	}

	a.Ingest = &services.IngestService{
		Tracker: tracker,
		Runner: &services.ExecMetaRunner{
			Command: cfg.MetaCommand,
			Config:  cfg.MetaConfig,
			Logger:  log.With(zap.String("component", "meta")),
		},
		BaseDir:        cfg.IngestionDir,
		BatchSize:      cfg.BatchSize,
		Repository:     cfg.GitHubRepository,
		TriplestoreURL: cfg.TriplestoreURL,
		Logger:         log.With(zap.String("component", "ingest")),
		Now:            time.Now,
	}
	return a, nil
}

func newColdTier(ctx context.Context, cfg *config.Config, log *zap.Logger) (providers.ColdTier, error) {
	switch cfg.ColdTier {
	case "s3":
		client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return storage.NewS3ColdTier(client, cfg, log.With(zap.String("component", "s3"))), nil
	default:
		token, err := cfg.ZenodoToken()
		if err != nil {
			return nil, err
		}
		return zenodo.NewFetcher(cfg.ZenodoBaseURL(), token, log.With(zap.String("component", "zenodo"))), nil
	}
}

// RunPipeline führt einen Pipeline-Lauf aus, sofern kein anderer Lauf aktiv ist.
func (a *App) RunPipeline(ctx context.Context) (services.RunSummary, error) {
	var summary services.RunSummary
	err := a.Guard.Do(func() error {
		if err := a.SafeList.Reload(); err != nil {
			return err
		}
		sink, err := storage.NewDirSink(storage.IngestionDir(a.Config.IngestionDir, a.now()))
		if err != nil {
			return err
		}
		a.Pipeline.Chunker = services.NewChunker(a.Config.BatchSize, sink, a.Logger.With(zap.String("component", "chunker")))
		summary, err = a.Pipeline.Run(ctx)
		return err
	})
	return summary, err
}

// RunArchive migriert Berichte, wenn der Schwellwert erreicht ist. Gibt "" zurück, wenn nichts zu tun war.
func (a *App) RunArchive(ctx context.Context) (string, error) {
	var id string
	err := a.Guard.Do(func() error {
		if !a.Index.NeedsArchival() {
			a.Logger.Info("Archive threshold not reached")
			return nil
		}
		var err error
		id, err = a.Index.Migrate(ctx)
		return err
	})
	return id, err
}

// RunIngest übernimmt angenommene Issues in den Datenbestand.
func (a *App) RunIngest(ctx context.Context) (services.IngestSummary, error) {
	var summary services.IngestSummary
	err := a.Guard.Do(func() error {
		var err error
		summary, err = a.Ingest.Run(ctx)
		return err
	})
	return summary, err
}
