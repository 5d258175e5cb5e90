package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"deposit-bot/app"
	"deposit-bot/config"
	"deposit-bot/ledger"
	"deposit-bot/models"
	"deposit-bot/services"
)

var jobRunsCounter *prometheus.CounterVec

func init() {
	jobRunsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Runs of pipeline, archive and ingest jobs by result.",
		},
		[]string{"job", "result"},
	)
	prometheus.MustRegister(jobRunsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logging, err := app.NewLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	a, err := app.New(context.Background(), cfg, logging)
	if err != nil {
		logging.Fatal("Setup failed", zap.Error(err))
	}
	logging.Info("Deposit bot configured",
		zap.String("repository", cfg.GitHubRepository),
		zap.String("cold_tier", a.Tier.Name()),
		zap.Int("trusted_users", a.SafeList.Len()))

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupReportRoutes(router, a.Index, logging)
	protected := router.Group("/", apiKeyAuthMiddleware(cfg))
	setupRunRoutes(protected, jobsFor(a), logging)
	setupStatsRoutes(protected, a.Ledger, logging)

	// Setup Cron
	cronScheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	for name, fn := range jobsFor(a) {
		schedule := scheduleFor(cfg, name)
		run := fn
		jobName := name
		if _, err := cronScheduler.AddFunc(schedule, func() {
			logging.Info("Running scheduled job", zap.String("job", jobName))
			runJob(context.Background(), jobName, run, logging)
		}); err != nil {
			logging.Fatal("Invalid cron schedule", zap.String("job", name), zap.String("schedule", schedule), zap.Error(err))
		}
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// job ist ein einzelner Lauf, der einen Satz Log-Felder als Ergebnis liefert.
type job func(ctx context.Context) ([]zap.Field, error)

func jobsFor(a *app.App) map[string]job {
	return map[string]job{
		"pipeline": func(ctx context.Context) ([]zap.Field, error) {
			s, err := a.RunPipeline(ctx)
			return []zap.Field{zap.Int("processed", s.Processed), zap.Int("accepted", s.Accepted), zap.String("deposit_id", s.DepositID)}, err
		},
		"archive": func(ctx context.Context) ([]zap.Field, error) {
			id, err := a.RunArchive(ctx)
			return []zap.Field{zap.String("persistent_id", id)}, err
		},
		"ingest": func(ctx context.Context) ([]zap.Field, error) {
			s, err := a.RunIngest(ctx)
			return []zap.Field{zap.Int("done", s.Done), zap.Int("failed", s.Failed), zap.Int("skipped", s.Skipped)}, err
		},
	}
}

func scheduleFor(cfg *config.Config, name string) string {
	switch name {
	case "archive":
		return cfg.ArchiveCronSchedule
	case "ingest":
		return cfg.IngestCronSchedule
	default:
		return cfg.CronSchedule
	}
}

func runJob(ctx context.Context, name string, run job, log *zap.Logger) {
	fields, err := run(ctx)
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		jobRunsCounter.WithLabelValues(name, "skipped").Inc()
		log.Warn("Job skipped, another run is in progress", zap.String("job", name))
	case err != nil:
		jobRunsCounter.WithLabelValues(name, "failure").Inc()
		log.Error("Job failed", append(fields, zap.String("job", name), zap.Error(err))...)
	default:
		jobRunsCounter.WithLabelValues(name, "success").Inc()
		log.Info("Job completed", append(fields, zap.String("job", name))...)
	}
}

// reportIndex ist der Teil des Archiv-Index, den die Report-Routen brauchen.
type reportIndex interface {
	Entry(name string) (models.ArchiveEntry, bool)
	Entries() []models.ArchiveEntry
	ReportPath(name string) string
}

func setupReportRoutes(router *gin.Engine, index reportIndex, log *zap.Logger) {
	rg := router.Group("/validation_reports")

	// index.html?report=<name> leitet auf den aktuellen Ort des Berichts weiter
	rg.GET("/:name", func(c *gin.Context) {
		name := c.Param("name")
		if name == "index.html" {
			name = c.Query("report")
			if name == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing report parameter"})
				return
			}
		}

		entry, ok := index.Entry(name)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		if entry.Location == models.LocationCold {
			c.Redirect(http.StatusFound, entry.Cold.URL)
			return
		}

		path := index.ReportPath(name)
		if _, err := os.Stat(path); err != nil {
			log.Warn("Hot report missing on disk", zap.String("report", name), zap.Error(err))
			c.JSON(http.StatusNotFound, gin.H{"error": "report file missing"})
			return
		}
		c.File(path)
	})

	router.GET("/reports", func(c *gin.Context) {
		c.JSON(http.StatusOK, index.Entries())
	})

	router.GET("/reports/:name/location", func(c *gin.Context) {
		entry, ok := index.Entry(c.Param("name"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
	})
}

func setupRunRoutes(rg *gin.RouterGroup, jobs map[string]job, log *zap.Logger) {
	rg.POST("/runs/:job", func(c *gin.Context) {
		name := c.Param("job")
		run, ok := jobs[name]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
			return
		}
		go runJob(context.Background(), name, run, log)
		c.JSON(http.StatusAccepted, gin.H{"message": "Job " + name + " triggered."})
	})
}

func setupStatsRoutes(rg *gin.RouterGroup, ldg *ledger.Ledger, log *zap.Logger) {
	rg.GET("/stats/verdicts", func(c *gin.Context) {
		if ldg == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger not configured"})
			return
		}
		var since time.Time
		if s := c.Query("since"); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
				return
			}
			since = t
		}
		rows, err := ldg.Summary(c.Request.Context(), since)
		if err != nil {
			log.Error("Verdict statistics failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	rg.GET("/stats/issues/:number", func(c *gin.Context) {
		if ldg == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger not configured"})
			return
		}
		var number int
		if _, err := fmt.Sscan(c.Param("number"), &number); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue number"})
			return
		}
		rows, err := ldg.ForIssue(c.Request.Context(), number)
		if err != nil {
			log.Error("Issue history failed", zap.Int("issue", number), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})
}
