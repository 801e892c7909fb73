package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/constants"
	"github.com/kjartanjoensen/report-extractor/internal/async"
	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/entity"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
)

var pdfMagic = []byte("%PDF-")

// Service owns job intake and read access. Uploads are validated and
// persisted synchronously; processing is handed to the queue and observed
// through the job's status.
type Service struct {
	jobsRepo  repository.JobRepository
	pagesRepo repository.PageRepository
	queue     async.Queue
	jobsDir   string
	logger    *slog.Logger
}

func NewService(jobsRepo repository.JobRepository, pagesRepo repository.PageRepository,
	queue async.Queue, jobsDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobsRepo:  jobsRepo,
		pagesRepo: pagesRepo,
		queue:     queue,
		jobsDir:   jobsDir,
		logger:    logger,
	}
}

type CreateRequest struct {
	Filename string
	Content  io.Reader
}

// JobResult is a job with its pages, for the detail and result views.
type JobResult struct {
	Job   *entity.Job    `json:"job"`
	Pages []*entity.Page `json:"pages"`
}

// CreateFromUpload stores the uploaded PDF under the job's own directory,
// records the job as QUEUED and enqueues it. The returned job reflects the
// state before any background work has run.
func (s *Service) CreateFromUpload(ctx context.Context, req CreateRequest) (*entity.Job, error) {
	if err := validateFilename(req.Filename); err != nil {
		return nil, err
	}

	id := uuid.New()
	dir := filepath.Join(s.jobsDir, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	pdfPath := filepath.Join(dir, "source.pdf")
	if err := writePDF(pdfPath, req.Content); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	job, err := s.jobsRepo.Create(ctx, id, pdfPath, filepath.Base(req.Filename))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, async.Task{JobID: id}); err != nil {
		// the row stays QUEUED; a failed job submission is an operator
		// problem, not a lost upload
		s.logger.Error("enqueue failed, job stays queued", "job_id", id, "err", err)
	}
	return job, nil
}

// CreateFromPath registers an on-disk PDF without copying it into the data
// dir and without enqueueing. The batch tool processes it synchronously.
func (s *Service) CreateFromPath(ctx context.Context, pdfPath string) (*entity.Job, error) {
	if err := validateFilename(pdfPath); err != nil {
		return nil, err
	}
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, common.NewAppError("INVALID_UPLOAD",
			fmt.Sprintf("open %s", pdfPath), fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return nil, common.NewAppError("INVALID_UPLOAD",
			fmt.Sprintf("%s is not a PDF", filepath.Base(pdfPath)), common.ErrValidation)
	}

	abs, err := filepath.Abs(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", pdfPath, err)
	}
	return s.jobsRepo.Create(ctx, uuid.New(), abs, filepath.Base(pdfPath))
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.jobsRepo.GetByID(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*entity.Job, error) {
	return s.jobsRepo.List(ctx, limit)
}

// GetResult returns the job together with its pages, extraction included.
func (s *Service) GetResult(ctx context.Context, id uuid.UUID) (*JobResult, error) {
	job, err := s.jobsRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := s.pagesRepo.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobResult{Job: job, Pages: pages}, nil
}

// GetPageImage returns the on-disk path of one rendered page image.
func (s *Service) GetPageImage(ctx context.Context, id uuid.UUID, pageIndex int) (string, error) {
	page, err := s.pagesRepo.GetByJobAndIndex(ctx, id, pageIndex)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(page.ImagePath); err != nil {
		return "", common.NewAppError("PAGE_IMAGE_MISSING",
			fmt.Sprintf("job %s page %d", id, pageIndex), errors.Join(common.ErrNotFound, err))
	}
	return page.ImagePath, nil
}

func validateFilename(name string) error {
	ext := constants.NormalizeExt(filepath.Ext(name))
	if !constants.AllowedExt(ext) {
		return common.NewAppError("INVALID_UPLOAD",
			fmt.Sprintf("unsupported file type %q, expected .pdf", ext), common.ErrValidation)
	}
	return nil
}

// writePDF streams content to path and verifies it is a non-empty PDF.
func writePDF(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	n, copyErr := io.Copy(f, content)
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", path, copyErr)
	}
	if n == 0 {
		return common.NewAppError("INVALID_UPLOAD", "uploaded file is empty", common.ErrValidation)
	}

	head := make([]byte, len(pdfMagic))
	rf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", path, err)
	}
	defer rf.Close()
	if _, err := io.ReadFull(rf, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return common.NewAppError("INVALID_UPLOAD", "uploaded file is not a PDF", common.ErrValidation)
	}
	return nil
}
