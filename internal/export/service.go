package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/kjartanjoensen/report-extractor/constants"
	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/extract"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
	"github.com/kjartanjoensen/report-extractor/internal/taxonomy"
)

// Service flattens a finished job's per-page extraction into one table
// aligned to the taxonomy template. Labels the matcher cannot resolve keep
// their printed text in the item column; they are never dropped.
type Service struct {
	jobsRepo  repository.JobRepository
	pagesRepo repository.PageRepository
	matcher   *taxonomy.Matcher
	tpl       *taxonomy.Template
	logger    *slog.Logger
}

func NewService(jobsRepo repository.JobRepository, pagesRepo repository.PageRepository,
	matcher *taxonomy.Matcher, tpl *taxonomy.Template, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobsRepo:  jobsRepo,
		pagesRepo: pagesRepo,
		matcher:   matcher,
		tpl:       tpl,
		logger:    logger,
	}
}

// ExportCSV renders the job's extraction as semicolon-delimited CSV. The
// job must be DONE.
func (s *Service) ExportCSV(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	grid, err := s.buildGrid(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(s.tpl.Headers); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, row := range grid {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportXLSX renders the same table as a single-sheet workbook.
func (s *Service) ExportXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	grid, err := s.buildGrid(ctx, jobID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close workbook failed", "err", cerr)
		}
	}()
	const sheet = "Report"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	writeRow := func(rowNum int, values []string) error {
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		return nil
	}
	if err := writeRow(1, s.tpl.Headers); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range grid {
		if err := writeRow(i+2, row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// buildGrid loads the job's pages and produces one row per extracted label,
// in first-seen page order. Cells are positioned by the template's column
// names; the first column carries the matched header, or the raw label when
// the matcher comes back empty.
func (s *Service) buildGrid(ctx context.Context, jobID uuid.UUID) ([][]string, error) {
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != constants.JobStatusDone {
		return nil, common.NewAppError("JOB_NOT_READY",
			fmt.Sprintf("job %s is %s, export needs %s", jobID, job.Status, constants.JobStatusDone),
			common.ErrValidation)
	}

	pages, err := s.pagesRepo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var labels []string
	values := map[string]map[string]string{}
	for _, page := range pages {
		if len(page.ExtractedJSON) == 0 {
			continue
		}
		var ext extract.PageExtraction
		dec := json.NewDecoder(bytes.NewReader(page.ExtractedJSON))
		dec.UseNumber()
		if err := dec.Decode(&ext); err != nil {
			return nil, fmt.Errorf("decode extraction for page %d: %w", page.PageIndex, err)
		}
		for _, label := range sortedRowLabels(ext.Rows) {
			cells, ok := values[label]
			if !ok {
				labels = append(labels, label)
				cells = map[string]string{}
				values[label] = cells
			}
			for col, v := range ext.Rows[label] {
				// first page that reports a value for a column wins
				if _, taken := cells[col]; !taken {
					cells[col] = formatCell(v)
				}
			}
		}
	}

	grid := make([][]string, 0, len(labels))
	unmatched := 0
	for _, label := range labels {
		match, err := s.matcher.Match(ctx, label)
		if err != nil {
			return nil, err
		}
		item := label
		if match.Matched {
			item = match.Header
		} else {
			unmatched++
		}
		row := make([]string, len(s.tpl.Headers))
		row[0] = item
		for i, col := range s.tpl.ValueColumns() {
			row[i+1] = values[label][col]
		}
		grid = append(grid, row)
	}
	s.logger.Info("export table built", "job_id", jobID,
		"rows", len(grid), "unmatched", unmatched)
	return grid, nil
}

// sortedRowLabels gives a stable in-page label order; JSON object iteration
// is randomized and would otherwise reorder the export between runs.
func sortedRowLabels(rows extract.PageRows) []string {
	labels := make([]string, 0, len(rows))
	for label := range rows {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
