// report-batch processes a single PDF synchronously and writes the export
// next to it. It shares the whole pipeline with the server but skips the
// queue: useful for backfills and for debugging one troublesome report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kjartanjoensen/report-extractor/internal/async"
	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/core"
	"github.com/kjartanjoensen/report-extractor/internal/export"
	"github.com/kjartanjoensen/report-extractor/internal/extract"
	"github.com/kjartanjoensen/report-extractor/internal/extract/openai"
	"github.com/kjartanjoensen/report-extractor/internal/jobs"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
	"github.com/kjartanjoensen/report-extractor/internal/split"
	"github.com/kjartanjoensen/report-extractor/internal/taxonomy"
)

func main() {
	var (
		pdfPath      = flag.String("pdf", "", "path to the annual report PDF (required)")
		outPath      = flag.String("out", "", "output CSV path (default: <pdf>.csv)")
		xlsxPath     = flag.String("xlsx", "", "also write an XLSX workbook to this path")
		dbDSN        = flag.String("db", "", "database DSN (default: sqlite next to DATA_DIR)")
		taxonomyPath = flag.String("taxonomy", "", "taxonomy template path (default: TAXONOMY_PATH)")
	)
	flag.Parse()

	if *pdfPath == "" {
		fmt.Fprintln(os.Stderr, "error: --pdf is required")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger, *pdfPath, *outPath, *xlsxPath, *dbDSN, *taxonomyPath); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, pdfPath, outPath, xlsxPath, dbDSN, taxonomyPath string) error {
	cfg := common.LoadConfig()
	if taxonomyPath != "" {
		cfg.Taxonomy.TemplatePath = taxonomyPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dsn := dbDSN
	if dsn == "" {
		dsn = cfg.Database.DSN
	}
	if dsn == "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		dsn = cfg.DefaultSQLiteDSN()
	}
	db, err := repository.Open(ctx, repository.Config{DSN: dsn, DialTimeout: cfg.Database.DialTimeout}, logger)
	if err != nil {
		return err
	}
	defer repository.Close(db, logger)
	if err := repository.InitSchema(ctx, db, logger); err != nil {
		return err
	}

	tpl, err := taxonomy.LoadTemplate(cfg.Taxonomy.TemplatePath)
	if err != nil {
		return err
	}

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
	} else {
		extractor = extract.NewMock()
		logger.Info("no llm credential, using mock extraction")
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
	jobsSvc := jobs.NewService(jobsRepo, pagesRepo, noQueue{}, cfg.JobsDir(), logger)
	exportSvc := export.NewService(jobsRepo, pagesRepo, matcher, tpl, logger)

	job, err := jobsSvc.CreateFromPath(ctx, pdfPath)
	if err != nil {
		return err
	}
	if err := processor.ProcessJob(ctx, job.ID); err != nil {
		return err
	}

	csvData, err := exportSvc.ExportCSV(ctx, job.ID)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(pdfPath, ".pdf") + ".csv"
	}
	if err := os.WriteFile(outPath, csvData, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Printf("job %s done, csv written to %s\n", job.ID, outPath)

	if xlsxPath != "" {
		xlsxData, err := exportSvc.ExportXLSX(ctx, job.ID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(xlsxPath, xlsxData, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", xlsxPath, err)
		}
		fmt.Printf("xlsx written to %s\n", xlsxPath)
	}
	return nil
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

// noQueue satisfies async.Queue for the synchronous path; the batch tool
// never enqueues because it drives the processor itself.
type noQueue struct{}

func (noQueue) Enqueue(context.Context, async.Task) error { return nil }
func (noQueue) Shutdown(context.Context)                  {}
