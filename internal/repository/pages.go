package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/entity"
)

type PageRepository interface {
	// Insert records a rendered page. PageIndex must be 1-based and
	// contiguous; the primary key rejects duplicates.
	Insert(ctx context.Context, jobID uuid.UUID, pageIndex int, imagePath string) (*entity.Page, error)
	// AttachExtraction writes the page's extraction result once.
	AttachExtraction(ctx context.Context, jobID uuid.UUID, pageIndex int, extracted json.RawMessage, confidence *float32) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.Page, error)
	GetByJobAndIndex(ctx context.Context, jobID uuid.UUID, pageIndex int) (*entity.Page, error)
	DeleteByJob(ctx context.Context, jobID uuid.UUID) error
}

type pageRepo struct {
	db  *DB
	log *slog.Logger
}

func NewPageRepository(db *DB, log *slog.Logger) PageRepository {
	if log == nil {
		log = slog.Default()
	}
	return &pageRepo{db: db, log: log}
}

func (r *pageRepo) Insert(ctx context.Context, jobID uuid.UUID, pageIndex int, imagePath string) (*entity.Page, error) {
	if pageIndex < 1 {
		return nil, common.NewAppError("INVALID_PAGE_INDEX",
			fmt.Sprintf("page_index %d (must be >= 1)", pageIndex), common.ErrValidation)
	}
	now := time.Now().UTC()
	q := r.db.Rebind(`INSERT INTO pages (job_id, page_index, image_path, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, jobID.String(), pageIndex, imagePath, now); err != nil {
		r.log.Error("page insert failed", "job_id", jobID, "page_index", pageIndex, "err", err)
		return nil, common.NewAppError("STORAGE_ERROR", "insert page", errors.Join(common.ErrDatabase, err))
	}
	return &entity.Page{JobID: jobID, PageIndex: pageIndex, ImagePath: imagePath, CreatedAt: now}, nil
}

func (r *pageRepo) AttachExtraction(ctx context.Context, jobID uuid.UUID, pageIndex int, extracted json.RawMessage, confidence *float32) error {
	q := r.db.Rebind(`UPDATE pages SET extracted_json = ?, confidence_score = ? WHERE job_id = ? AND page_index = ?`)
	res, err := r.db.ExecContext(ctx, q, string(extracted), confidence, jobID.String(), pageIndex)
	if err != nil {
		r.log.Error("attach extraction failed", "job_id", jobID, "page_index", pageIndex, "err", err)
		return common.NewAppError("STORAGE_ERROR", "attach extraction", errors.Join(common.ErrDatabase, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("PAGE_NOT_FOUND",
			fmt.Sprintf("job %s page %d", jobID, pageIndex), common.ErrNotFound)
	}
	return nil
}

const pageColumns = `job_id, page_index, image_path, extracted_json, confidence_score, created_at`

func (r *pageRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.Page, error) {
	q := r.db.Rebind(`SELECT ` + pageColumns + ` FROM pages WHERE job_id = ? ORDER BY page_index ASC`)
	rows, err := r.db.QueryContext(ctx, q, jobID.String())
	if err != nil {
		r.log.Error("page list failed", "job_id", jobID, "err", err)
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var out []*entity.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pageRepo) GetByJobAndIndex(ctx context.Context, jobID uuid.UUID, pageIndex int) (*entity.Page, error) {
	q := r.db.Rebind(`SELECT ` + pageColumns + ` FROM pages WHERE job_id = ? AND page_index = ?`)
	p, err := scanPage(r.db.QueryRowContext(ctx, q, jobID.String(), pageIndex))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("PAGE_NOT_FOUND",
			fmt.Sprintf("job %s page %d", jobID, pageIndex), common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return p, nil
}

func (r *pageRepo) DeleteByJob(ctx context.Context, jobID uuid.UUID) error {
	q := r.db.Rebind(`DELETE FROM pages WHERE job_id = ?`)
	if _, err := r.db.ExecContext(ctx, q, jobID.String()); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}

func scanPage(row rowScanner) (*entity.Page, error) {
	var (
		p         entity.Page
		jobIDStr  string
		extracted sql.NullString
		conf      sql.NullFloat64
	)
	if err := row.Scan(&jobIDStr, &p.PageIndex, &p.ImagePath, &extracted, &conf, &p.CreatedAt); err != nil {
		return nil, err
	}
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", jobIDStr, err)
	}
	p.JobID = jobID
	if extracted.Valid && extracted.String != "" {
		p.ExtractedJSON = json.RawMessage(extracted.String)
	}
	if conf.Valid {
		c := float32(conf.Float64)
		p.ConfidenceScore = &c
	}
	return &p, nil
}
