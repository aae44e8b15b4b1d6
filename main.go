package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"habitat_scrooper/config"
	"habitat_scrooper/httputil"
	"habitat_scrooper/logging"
	"habitat_scrooper/models"
	"habitat_scrooper/ratelimit"
	"habitat_scrooper/scheduler"
	"habitat_scrooper/scraper"
	"habitat_scrooper/services"
	"habitat_scrooper/storage"
	"habitat_scrooper/workers"
)

var (
	searchFile = flag.String("search", "", "Run the saved search in this YAML file once, print the result as JSON and exit")
	pageFlag   = flag.Int("page", 0, "Result page for -search (overrides the file)")
	limitFlag  = flag.Int("limit", 0, "Page size for -search (overrides the file)")
	sortFlag   = flag.String("sort", "", "Sort key for -search: score, price_asc, rooms_desc, area_desc")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logFile.Close()

	logger.Info("starting habitat_scrooper", "sources", len(cfg.Sources), "saved_searches", len(cfg.Searches))
	for id, schema := range cfg.Sources {
		logger.Info("source loaded", "id", id, "name", schema.DisplayName(),
			"method", schema.Extraction.Method, "active", schema.IsActive())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var archive scraper.PageArchive
	if cfg.S3.Enabled() {
		s3Archive, err := storage.NewS3Archive(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("s3 archive: %w", err)
		}
		archive = s3Archive
		logger.Info("archiving raw pages", "bucket", cfg.S3.Bucket)
	}

	adapters, err := scraper.BuildAdapters(cfg.Sources, scraper.Deps{
		Limiter:   ratelimit.NewRegistry(logger),
		Clients:   httputil.NewClients(&cfg.Proxy),
		Archive:   archive,
		Logger:    logger,
		UserAgent: cfg.Scraper.UserAgent,
		Headless:  cfg.Scraper.BrowserHeadless,
	})
	if err != nil {
		return fmt.Errorf("build adapters: %w", err)
	}
	orchestrator := scraper.NewOrchestrator(adapters, logger)

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer sqliteStore.Close()
	logger.Info("sqlite database", "path", cfg.DBPath)

	var propStore services.PropertyStore
	var pgStore *storage.PostgresStore
	if cfg.DatabaseURL != "" {
		pgStore, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		if err := pgStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		propStore = pgStore
		logger.Info("connected to postgres", "url", redact(cfg.DatabaseURL))
	}

	recorder := services.NewRecorder(sqliteStore, propStore, logger)

	if *searchFile != "" {
		return runOnce(ctx, cfg, orchestrator, recorder, logger)
	}

	sched := scheduler.New(cfg.Scheduler, cfg.Searches, cfg.Scraper.DefaultLimit, orchestrator, recorder, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if pgStore != nil && cfg.Scheduler.HealthcheckInterval > 0 {
		healthcheck := services.NewHealthcheckService(pgStore, sqliteStore, cfg.Scheduler.StaleAfter, logger)
		worker := workers.NewHealthcheckWorker(healthcheck, orchestrator.SourceIDs(), logger)
		go worker.Run(ctx, cfg.Scheduler.HealthcheckInterval)
		logger.Info("healthcheck worker started", "interval", cfg.Scheduler.HealthcheckInterval, "stale_after", cfg.Scheduler.StaleAfter)
	}

	logger.Info("daemon running, press Ctrl+C to stop")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func runOnce(ctx context.Context, cfg *config.Config, orchestrator *scraper.Orchestrator, recorder *services.Recorder, logger *slog.Logger) error {
	search, err := config.LoadSearch(*searchFile)
	if err != nil {
		return fmt.Errorf("load search: %w", err)
	}

	page, limit, sortName := search.Page, search.Limit, search.Sort
	if *pageFlag > 0 {
		page = *pageFlag
	}
	if *limitFlag > 0 {
		limit = *limitFlag
	}
	if limit < 1 {
		limit = cfg.Scraper.DefaultLimit
	}
	if *sortFlag != "" {
		sortName = *sortFlag
	}
	sortKey, err := models.ParseSortKey(sortName)
	if err != nil {
		return err
	}

	result, err := orchestrator.Search(ctx, search.Criteria, page, limit, scraper.WithSort(sortKey))
	if err != nil {
		return err
	}

	if err := recorder.Record(ctx, search.Name, search.Criteria, result); err != nil {
		logger.Warn("failed to record search", "search", search.Name, "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// redact masks the password in a connection string for logging.
func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	return u.Redacted()
}
