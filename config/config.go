package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	GitHubToken      string `envconfig:"GH_TOKEN" required:"true"`
	GitHubRepository string `envconfig:"GITHUB_REPOSITORY" required:"true"`
	GitHubAPIURL     string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	DepositLabel     string `envconfig:"DEPOSIT_LABEL" default:"deposit"`

	Environment      string `envconfig:"ENVIRONMENT" default:"development"`
	ZenodoSandbox    string `envconfig:"ZENODO_SANDBOX"`
	ZenodoProduction string `envconfig:"ZENODO_PRODUCTION"`
	ZenodoSandboxURL string `envconfig:"ZENODO_SANDBOX_URL" default:"https://sandbox.zenodo.org/api"`
	ZenodoProdURL    string `envconfig:"ZENODO_PRODUCTION_URL" default:"https://zenodo.org/api"`

	ArchiveConfig  string `envconfig:"ARCHIVE_CONFIG" default:"archive_config.yaml"`
	SafeListPath   string `envconfig:"SAFE_LIST_PATH" default:"safe_list.yaml"`
	ReportsBaseURL string `envconfig:"REPORTS_BASE_URL"`

	// Externe Werkzeuge
	ValidatorCommand string `envconfig:"VALIDATOR_COMMAND" default:"oc_validator"`
	MetaCommand      string `envconfig:"META_COMMAND"`
	MetaConfig       string `envconfig:"META_CONFIG" default:"meta_config.yaml"`
	TriplestoreURL   string `envconfig:"TRIPLESTORE_URL"`

	IngestionDir string `envconfig:"INGESTION_DIR" default:"crowdsourcing_ingestion_data"`
	WorkDir      string `envconfig:"WORK_DIR" default:"validation_output"`
	BatchSize    int    `envconfig:"BATCH_SIZE" default:"1000"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	CronSchedule        string `envconfig:"CRON_SCHEDULE" default:"0 * * * *"`
	ArchiveCronSchedule string `envconfig:"ARCHIVE_CRON_SCHEDULE" default:"30 3 * * *"`
	IngestCronSchedule  string `envconfig:"INGEST_CRON_SCHEDULE" default:"0 4 * * 1"`

	// Langzeitarchiv: "zenodo" oder "s3"
	ColdTier string `envconfig:"COLD_TIER" default:"zenodo"`

	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	LedgerDSN string `envconfig:"LEDGER_DSN"`
	LogMode   string `envconfig:"LOG_MODE" default:"production"`
}

// IsProduction meldet, ob gegen die produktiven Dienste gearbeitet wird.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ZenodoBaseURL gibt die API-Basis je nach Umgebung zurück.
func (c *Config) ZenodoBaseURL() string {
	if c.IsProduction() {
		return c.ZenodoProdURL
	}
	return c.ZenodoSandboxURL
}

// ZenodoToken gibt den Token für die aktuelle Umgebung zurück.
func (c *Config) ZenodoToken() (string, error) {
	if c.IsProduction() {
		if c.ZenodoProduction == "" {
			return "", fmt.Errorf("ZENODO_PRODUCTION is not set")
		}
		return c.ZenodoProduction, nil
	}
	if c.ZenodoSandbox == "" {
		return "", fmt.Errorf("ZENODO_SANDBOX is not set")
	}
	return c.ZenodoSandbox, nil
}

// RepositoryOwner gibt den Besitzer aus "owner/repo" zurück.
func (c *Config) RepositoryOwner() string {
	owner, _, _ := strings.Cut(c.GitHubRepository, "/")
	return owner
}

// RepositoryName gibt den Repository-Namen aus "owner/repo" zurück.
func (c *Config) RepositoryName() string {
	_, name, _ := strings.Cut(c.GitHubRepository, "/")
	return name
}

// ReportsURL ist die öffentliche Basis-URL, unter der Berichte ausgeliefert werden.
func (c *Config) ReportsURL() string {
	if c.ReportsBaseURL != "" {
		return strings.TrimRight(c.ReportsBaseURL, "/")
	}
	return fmt.Sprintf("https://%s.github.io/%s", c.RepositoryOwner(), c.RepositoryName())
}

// IssueURL baut den Link auf ein Issue des konfigurierten Repositorys.
func (c *Config) IssueURL(number int) string {
	return fmt.Sprintf("https://github.com/%s/issues/%d", c.GitHubRepository, number)
}

// Validate prüft Werte, die envconfig nicht selbst prüfen kann.
func (c *Config) Validate() error {
	if !strings.Contains(c.GitHubRepository, "/") {
		return fmt.Errorf("GITHUB_REPOSITORY must have the form owner/repo, got %q", c.GitHubRepository)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	switch c.ColdTier {
	case "zenodo", "s3":
	default:
		return fmt.Errorf("unknown COLD_TIER %q", c.ColdTier)
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return &c, err
	}
	return &c, c.Validate()
}
