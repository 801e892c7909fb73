package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/core"
	coreasync "github.com/kjartanjoensen/report-extractor/internal/core/async"
	"github.com/kjartanjoensen/report-extractor/internal/export"
	"github.com/kjartanjoensen/report-extractor/internal/extract"
	"github.com/kjartanjoensen/report-extractor/internal/extract/openai"
	"github.com/kjartanjoensen/report-extractor/internal/jobs"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
	"github.com/kjartanjoensen/report-extractor/internal/server"
	"github.com/kjartanjoensen/report-extractor/internal/split"
	"github.com/kjartanjoensen/report-extractor/internal/taxonomy"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.JobsDir(), 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.JobsDir(), "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Database.DSN
	if dsn == "" {
		dsn = cfg.DefaultSQLiteDSN()
	}
	db, err := repository.Open(ctx, repository.Config{
		DSN:             dsn,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)
	if err := repository.InitSchema(ctx, db, logger); err != nil {
		logger.Error("schema init failed", "error", err)
		os.Exit(1)
	}

	tpl, err := taxonomy.LoadTemplate(cfg.Taxonomy.TemplatePath)
	if err != nil {
		logger.Error("taxonomy template unavailable", "path", cfg.Taxonomy.TemplatePath, "error", err)
		os.Exit(1)
	}
	logger.Info("taxonomy template loaded", "path", tpl.Path, "headers", len(tpl.Headers), "hash", tpl.Hash[:12])

	jobsRepo := repository.NewJobRepository(db, logger)
	pagesRepo := repository.NewPageRepository(db, logger)
	cacheRepo := repository.NewMatchCacheRepository(db, logger)

	var (
		extractor extract.Extractor
		chooser   taxonomy.HeaderChooser
	)
	if cfg.LLM.APIKey != "" {
		client := openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		extractor = client
		chooser = client
		logger.Info("llm extraction enabled", "model", cfg.LLM.Model)
	} else {
		extractor = extract.NewMock()
		logger.Info("no llm credential, using mock extraction and unmatched taxonomy fallback")
	}

	matcher := taxonomy.NewMatcher(tpl, cacheRepo, chooser, cfg.Taxonomy.ShortlistSize, logger)
	splitter := split.NewSplitter(split.Config{
		Pdftotext:     cfg.PDF.Pdftotext,
		Pdftoppm:      cfg.PDF.Pdftoppm,
		Tesseract:     cfg.PDF.Tesseract,
		TesseractLang: cfg.PDF.TesseractLang,
		DPI:           cfg.PDF.DPI,
	}, nil, logger)
	processor := core.NewProcessor(logger, jobsRepo, pagesRepo, splitter, extractor)
	queue := coreasync.NewProcessorQueue(processor, logger,
		coreasync.WithWorkers(cfg.Queue.Workers),
		coreasync.WithQueueSize(cfg.Queue.Size))

	jobsSvc := jobs.NewService(jobsRepo, pagesRepo, queue, cfg.JobsDir(), logger)
	exportSvc := export.NewService(jobsRepo, pagesRepo, matcher, tpl, logger)

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, jobsSvc, exportSvc, db, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	queue.Shutdown(shutdownCtx)

	logger.Info("bye")
}
