package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"tender-scraper/config"
	"tender-scraper/parser"
	"tender-scraper/scraper/static"
	"tender-scraper/scraper/ted"
	"tender-scraper/services"
	"tender-scraper/storage"
	"tender-scraper/utils"
)

func main() {
	os.Exit(run())
}

// run drives one batch and returns the process exit code.
func run() int {
	cfg := config.Load()
	logger := utils.NewLogger(utils.ParseLevel(cfg.LogLevel))
	runID := uuid.NewString()

	logger.Info("=== TED Notice Scraper starting (run %s) ===", runID)
	logger.Info("Config: fetch: %s | concurrency: %d | rate: %dms | currency: %s | translate: %v",
		cfg.FetchMode, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.TargetCurrency, cfg.TranslateEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := newPageSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start page source: %v", err)
		return 1
	}
	defer closeSource()

	var translator services.Translator
	if cfg.TranslateEnabled {
		translator = services.NewGoogleTranslator(cfg.TranslateURL, cfg.HTTPTimeout())
	}
	localizer := services.NewLocalizer(translator, cfg.HTTPTimeout(), logger)
	converter := services.NewConverter(
		services.NewExchangeRateClient(cfg.ExchangeRateURL, cfg.HTTPTimeout()),
		cfg.TargetCurrency, cfg.HTTPTimeout(), logger)

	pipeline := services.NewPipeline(source,
		parser.NewListingParser(localizer, logger),
		parser.NewDetailParser(localizer, converter, logger),
		cfg.MaxConcurrency, cfg.RateLimit(), logger)

	records, runErr := pipeline.Run(ctx)
	if runErr != nil {
		logger.Error("Scrape stopped: %v", runErr)
	}
	if len(records) == 0 {
		if errors.Is(runErr, services.ErrNoNotices) || errors.Is(runErr, parser.ErrNoResultsTable) {
			logger.Error("No notices found on the search page. Exiting.")
		} else {
			logger.Error("No notices were scraped. Exiting.")
		}
		return 1
	}

	writers, pgWriter := openWriters(cfg, runID, logger)
	for _, w := range writers {
		defer w.writer.Close()
		if err := w.writer.Write(records); err != nil {
			logger.Error("%s write failed: %v", w.name, err)
			continue
		}
		logger.Info("%d notices stored in %s", len(records), w.name)
	}

	reportRecords := records
	if pgWriter != nil {
		if stored, err := pgWriter.FetchRun(); err != nil {
			logger.Warn("Failed to read run back from PostgreSQL, reporting from memory: %v", err)
		} else if len(stored) > 0 {
			reportRecords = stored
		}
	}

	reportSvc := services.NewReportService(logger)
	reportSvc.Print(reportSvc.Generate(reportRecords))

	fmt.Printf("  Done. CSV → %s | run %s\n\n", cfg.CSVOutputPath, runID)

	if runErr != nil {
		return 1
	}
	return 0
}

func newPageSource(ctx context.Context, cfg *config.Config, logger *utils.Logger) (services.PageSource, func(), error) {
	switch cfg.FetchMode {
	case config.FetchModeStatic:
		return static.New(cfg, logger), func() {}, nil
	case config.FetchModeBrowser:
		b := ted.New(cfg, logger)
		if err := b.Start(ctx); err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown FETCH_MODE %q", cfg.FetchMode)
	}
}

type namedWriter struct {
	name   string
	writer storage.RecordWriter
}

// openWriters opens every configured sink. A sink that fails to open is
// logged and skipped.
func openWriters(cfg *config.Config, runID string, logger *utils.Logger) ([]namedWriter, *storage.PostgresWriter) {
	var writers []namedWriter

	if csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath); err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
	} else {
		writers = append(writers, namedWriter{"CSV " + cfg.CSVOutputPath, csvWriter})
	}

	var pgWriter *storage.PostgresWriter
	if cfg.PostgresEnabled {
		w, err := storage.NewPostgresWriter(cfg.DSN(), runID)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			logger.Error("Make sure Docker is running: docker compose up -d")
		} else {
			pgWriter = w
			writers = append(writers, namedWriter{"PostgreSQL (table: tenders)", w})
		}
	}

	if cfg.MongoURI != "" {
		w, err := storage.NewMongoWriter(cfg.MongoURI, cfg.MongoDB, cfg.MongoCollection, runID)
		if err != nil {
			logger.Error("Failed to connect to MongoDB: %v", err)
		} else {
			writers = append(writers, namedWriter{"MongoDB " + cfg.MongoDB + "." + cfg.MongoCollection, w})
		}
	}

	return writers, pgWriter
}
