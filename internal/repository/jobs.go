package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/constants"
	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/entity"
)

// TransitionFields carries the optional columns a status transition may set
// alongside the new status.
type TransitionFields struct {
	TempDirPath  *string
	ErrorMessage *string
}

type JobRepository interface {
	Create(ctx context.Context, id uuid.UUID, sourcePDFPath, sourceFilename string) (*entity.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, limit int) ([]*entity.Job, error)
	// Transition moves the job to next if that is a legal edge from its
	// current status; otherwise it fails with common.ErrInvalidTransition.
	Transition(ctx context.Context, id uuid.UUID, next constants.JobStatus, fields TransitionFields) (*entity.Job, error)
	SetSplitRange(ctx context.Context, id uuid.UUID, startPage, endPage int) error
	SetMetadata(ctx context.Context, id uuid.UUID, companyName, publicationYear *string) error
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) Create(ctx context.Context, id uuid.UUID, sourcePDFPath, sourceFilename string) (*entity.Job, error) {
	now := time.Now().UTC()
	q := r.db.Rebind(`INSERT INTO jobs
		(id, status, source_pdf_path, source_filename, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		id.String(), string(constants.JobStatusQueued), sourcePDFPath, sourceFilename, now, now)
	if err != nil {
		r.log.Error("job create failed", "job_id", id, "err", err)
		return nil, common.NewAppError("STORAGE_ERROR", "create job", errors.Join(common.ErrDatabase, err))
	}
	r.log.Info("job created", "job_id", id, "source", sourceFilename)
	return r.GetByID(ctx, id)
}

const jobColumns = `id, status, source_pdf_path, source_filename, temp_dir_path,
	start_page, end_page, company_name, publication_year, error_message,
	created_at, updated_at`

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := r.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)
	row := r.db.QueryRowContext(ctx, q, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("JOB_NOT_FOUND", fmt.Sprintf("job %s", id), common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("job get failed", "job_id", id, "err", err)
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *jobRepo) List(ctx context.Context, limit int) ([]*entity.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		r.log.Error("job list failed", "err", err)
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *jobRepo) Transition(ctx context.Context, id uuid.UUID, next constants.JobStatus, fields TransitionFields) (*entity.Job, error) {
	if !constants.IsValidStatus(next) {
		return nil, common.NewAppError("INVALID_TRANSITION", fmt.Sprintf("unknown status %q", next), common.ErrInvalidTransition)
	}
	from := constants.PredecessorsOf(next)
	if len(from) == 0 {
		return nil, common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("no status may move to %s", next), common.ErrInvalidTransition)
	}

	// Single compare-and-set: the WHERE clause matches only the legal
	// predecessor statuses, so a concurrent writer can never move a job
	// backwards or out of a terminal state.
	args := []any{string(next), fields.TempDirPath, fields.ErrorMessage, time.Now().UTC(), id.String()}
	marks := make([]string, len(from))
	for i, s := range from {
		marks[i] = "?"
		args = append(args, string(s))
	}
	q := r.db.Rebind(`UPDATE jobs SET
		status = ?,
		temp_dir_path = COALESCE(?, temp_dir_path),
		error_message = COALESCE(?, error_message),
		updated_at = ?
		WHERE id = ? AND status IN (` + strings.Join(marks, ", ") + `)`)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		r.log.Error("job transition failed", "job_id", id, "next", next, "err", err)
		return nil, common.NewAppError("STORAGE_ERROR", "transition job", errors.Join(common.ErrDatabase, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// missing row or illegal edge; one read to tell them apart
		cur, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("job %s: %s -> %s", id, cur.Status, next), common.ErrInvalidTransition)
	}

	r.log.Info("job status changed", "job_id", id, "to", next)
	return r.GetByID(ctx, id)
}

func (r *jobRepo) SetSplitRange(ctx context.Context, id uuid.UUID, startPage, endPage int) error {
	q := r.db.Rebind(`UPDATE jobs SET start_page = ?, end_page = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, startPage, endPage, time.Now().UTC(), id.String())
	if err != nil {
		r.log.Error("set split range failed", "job_id", id, "err", err)
		return fmt.Errorf("set split range: %w", err)
	}
	return nil
}

func (r *jobRepo) SetMetadata(ctx context.Context, id uuid.UUID, companyName, publicationYear *string) error {
	q := r.db.Rebind(`UPDATE jobs SET company_name = ?, publication_year = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, companyName, publicationYear, time.Now().UTC(), id.String())
	if err != nil {
		r.log.Error("set metadata failed", "job_id", id, "err", err)
		return fmt.Errorf("set metadata: %w", err)
	}
	r.log.Info("job metadata saved", "job_id", id,
		"company_name", strOrEmpty(companyName), "publication_year", strOrEmpty(publicationYear))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		j          entity.Job
		idStr      string
		status     string
		tempDir    sql.NullString
		startPage  sql.NullInt64
		endPage    sql.NullInt64
		company    sql.NullString
		pubYear    sql.NullString
		errMessage sql.NullString
	)
	err := row.Scan(&idStr, &status, &j.SourcePDFPath, &j.SourceFilename, &tempDir,
		&startPage, &endPage, &company, &pubYear, &errMessage, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", idStr, err)
	}
	j.ID = id
	j.Status = constants.JobStatus(status)
	j.TempDirPath = nullStr(tempDir)
	j.StartPage = nullInt(startPage)
	j.EndPage = nullInt(endPage)
	j.CompanyName = nullStr(company)
	j.PublicationYear = nullStr(pubYear)
	j.ErrorMessage = nullStr(errMessage)
	return &j, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
