package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aelbannan/quranstore/pkg/db"
	"github.com/aelbannan/quranstore/pkg/enrich"
	"github.com/aelbannan/quranstore/pkg/fetch"
	"github.com/aelbannan/quranstore/pkg/ingest"
	"github.com/aelbannan/quranstore/pkg/seed"
)

func main() {
	configFlag := flag.String("config", "", "Path to YAML config file")
	dbFlag := flag.String("db", "", "Path to SQLite database (overrides config)")
	workersFlag := flag.Int("workers", 0, "Concurrent fetchers (overrides config)")
	forceFlag := flag.Bool("force-refresh", false, "Re-fetch verses already present in the store")
	enrichOnly := flag.Bool("enrich-only", false, "Skip ingestion; only recompute derived columns")
	juzMetaFlag := flag.String("seed-juz", "", "Path to auxiliary juz-metadata SQLite store to import")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	cfg, err := ingest.LoadConfig(*configFlag)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *dbFlag != "" {
		cfg.DBPath = *dbFlag
	}
	if *workersFlag > 0 {
		cfg.Workers = *workersFlag
	}
	if *forceFlag {
		cfg.ForceRefresh = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open store", "path", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.InitDB(conn); err != nil {
		logger.Error("migrate store", "err", err)
		os.Exit(1)
	}
	logger.Info("store ready", "path", cfg.DBPath)

	if *juzMetaFlag != "" {
		updated, skipped, err := seed.ImportJuzMeta(ctx, conn, *juzMetaFlag, logger)
		if err != nil {
			logger.Error("import juz metadata", "err", err)
			os.Exit(1)
		}
		logger.Info("juz metadata imported", "updated", updated, "skipped", skipped)
		return
	}

	if *enrichOnly {
		runEnrich(ctx, conn, logger)
		return
	}

	client := fetch.NewClient(cfg.RetryPolicy())
	client.Logger = logger
	fetcher := &fetch.VerseFetcher{Client: client, APIBase: cfg.APIBase, AudioBase: cfg.AudioBase}

	if err := seed.Static(conn, cfg.HezbsPerJuz); err != nil {
		logger.Error("seed static tables", "err", err)
		os.Exit(1)
	}
	chapters, err := seed.Chapters(ctx, fetcher, conn)
	if err != nil {
		logger.Error("seed chapters", "err", err)
		os.Exit(1)
	}
	if err := seed.Verify(conn); err != nil {
		logger.Error("seed verification", "err", err)
		os.Exit(1)
	}

	keys := fetch.KeySpace(chapters)
	logger.Info("starting ingestion", "verses", len(keys), "workers", cfg.Workers)

	ig := ingest.NewIngester(conn, fetcher)
	ig.Workers = cfg.Workers
	ig.BatchSize = cfg.BatchSize
	ig.ForceRefresh = cfg.ForceRefresh
	ig.Logger = logger
	ig.OnProgress = func(done, total int) {
		fmt.Printf("Fetched %d/%d verses\n", done, total)
	}

	report, err := ig.Run(ctx, keys)
	if err != nil {
		logger.Error("ingestion aborted", "run_id", report.RunID, "err", err)
		os.Exit(1)
	}

	logger.Info("ingestion complete",
		"run_id", report.RunID,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"elapsed", report.Elapsed)
	for _, f := range report.Failed {
		fmt.Printf("FAILED %s kind=%s attempts=%d: %s\n", f.Key, f.Kind, f.Attempts, f.Reason)
	}

	runEnrich(ctx, conn, logger)

	if len(report.Failed) > 0 {
		os.Exit(2)
	}
}

func runEnrich(ctx context.Context, conn *sql.DB, logger *slog.Logger) {
	engine := enrich.New(conn)
	engine.Logger = logger
	problems, err := engine.Run(ctx)
	if err != nil {
		logger.Error("enrichment aborted", "err", err)
		os.Exit(1)
	}
	logger.Info("enrichment complete", "problems", len(problems))
}
