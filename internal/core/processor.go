package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/constants"
	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/extract"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
	"github.com/kjartanjoensen/report-extractor/internal/split"
)

// Processor runs the whole pipeline for one job: split the PDF at the
// statement boundary, render the range to images, extract document metadata
// from the first rendered page, then extract every page in order. Page
// extraction is fail-fast; metadata extraction is not.
type Processor struct {
	logger    *slog.Logger
	jobs      repository.JobRepository
	pages     repository.PageRepository
	splitter  *split.Splitter
	extractor extract.Extractor
}

func NewProcessor(logger *slog.Logger, jobs repository.JobRepository, pages repository.PageRepository,
	splitter *split.Splitter, extractor extract.Extractor) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:    logger,
		jobs:      jobs,
		pages:     pages,
		splitter:  splitter,
		extractor: extractor,
	}
}

// ProcessJob drives jobID from QUEUED to DONE or FAILED. Any error after the
// move to PROCESSING lands the job in FAILED with the error message
// persisted; the returned error mirrors what was recorded.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	start := time.Now()
	log := p.logger.With("job_id", jobID)
	log.Info("job processing started")

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	pagesDir := filepath.Join(filepath.Dir(job.SourcePDFPath), "pages")
	if _, err := p.jobs.Transition(ctx, jobID, constants.JobStatusProcessing,
		repository.TransitionFields{TempDirPath: &pagesDir}); err != nil {
		return err
	}

	rendered, err := p.splitter.Split(ctx, job.SourcePDFPath, pagesDir)
	if err != nil {
		return p.fail(ctx, log, jobID, fmt.Errorf("split: %w", err))
	}
	if err := p.jobs.SetSplitRange(ctx, jobID,
		rendered[0].SourcePage, rendered[len(rendered)-1].SourcePage); err != nil {
		return p.fail(ctx, log, jobID, err)
	}
	for _, rp := range rendered {
		if _, err := p.pages.Insert(ctx, jobID, rp.PageIndex, rp.ImagePath); err != nil {
			return p.fail(ctx, log, jobID, err)
		}
	}

	// Metadata comes from the report's first page, not the boundary page.
	// Failure here degrades the record, it does not fail the job.
	p.extractMetadata(ctx, log, jobID, job.SourcePDFPath, pagesDir)

	for _, rp := range rendered {
		ext, raw, err := p.extractor.ExtractPage(ctx, extract.PageRequest{
			ImagePath: rp.ImagePath,
			PageIndex: rp.PageIndex,
		})
		if err != nil {
			return p.fail(ctx, log, jobID, common.NewAppError("EXTRACTION_FAILED",
				fmt.Sprintf("page %d", rp.PageIndex), fmt.Errorf("%w: %w", common.ErrExtraction, err)))
		}
		stored := raw
		if stored == nil {
			if stored, err = json.Marshal(ext); err != nil {
				return p.fail(ctx, log, jobID, fmt.Errorf("encode extraction for page %d: %w", rp.PageIndex, err))
			}
		}
		conf := ext.ConfidenceScore
		if err := p.pages.AttachExtraction(ctx, jobID, rp.PageIndex, stored, &conf); err != nil {
			return p.fail(ctx, log, jobID, err)
		}
		log.Info("page extracted", "page_index", rp.PageIndex, "rows", len(ext.Rows), "confidence", conf)
	}

	if _, err := p.jobs.Transition(ctx, jobID, constants.JobStatusDone, repository.TransitionFields{}); err != nil {
		return p.fail(ctx, log, jobID, err)
	}
	log.Info("job processing finished", "pages", len(rendered), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) extractMetadata(ctx context.Context, log *slog.Logger, jobID uuid.UUID, pdfPath, pagesDir string) {
	imagePath, err := p.splitter.RenderFirstPage(ctx, pdfPath, pagesDir)
	if err != nil {
		log.Warn("first page render failed, metadata skipped", "error", err)
		return
	}
	md, _, err := p.extractor.ExtractMetadata(ctx, imagePath)
	if err != nil {
		log.Warn("metadata extraction failed, continuing without it", "error", err)
		return
	}

	var company, year *string
	if md.CompanyName != "" {
		company = &md.CompanyName
	}
	if md.PublicationYear != "" {
		year = &md.PublicationYear
	}
	if company == nil && year == nil {
		log.Info("metadata extraction returned nothing usable")
		return
	}
	if err := p.jobs.SetMetadata(ctx, jobID, company, year); err != nil {
		log.Warn("metadata save failed, continuing without it", "error", err)
	}
}

// FailJob marks jobID FAILED with reason as the recorded error message. The
// task queue calls it when a job panics instead of returning, so the row
// never sits in PROCESSING forever.
func (p *Processor) FailJob(ctx context.Context, jobID uuid.UUID, reason string) {
	log := p.logger.With("job_id", jobID)
	_ = p.fail(ctx, log, jobID, errors.New(reason))
}

// fail moves the job to FAILED, recording err as the job's error message.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, jobID uuid.UUID, cause error) error {
	msg := cause.Error()
	if _, terr := p.jobs.Transition(ctx, jobID, constants.JobStatusFailed,
		repository.TransitionFields{ErrorMessage: &msg}); terr != nil {
		log.Error("failed to mark job failed", "cause", cause, "transition_error", terr)
	} else {
		log.Error("job failed", "error", cause)
	}
	return cause
}
