package split

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kjartanjoensen/report-extractor/internal/common"
)

// HeaderMarker starts the section of the report we split out. The first page
// whose header contains it (after Fold normalization) is the boundary page.
const HeaderMarker = "Rakstrarroknskapur"

// headerLineWindow is how many leading non-empty lines of a page count as
// its header when looking for the marker.
const headerLineWindow = 12

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // used only for pages without a text layer
	DPI           int    // rasterization DPI, default 144 (the original 2x matrix)
}

// RenderedPage is one rasterized page of the split range. PageIndex is
// 1-based starting at the boundary page; SourcePage is the 1-based page
// number in the source PDF.
type RenderedPage struct {
	PageIndex  int
	SourcePage int
	ImagePath  string
}

type Splitter struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewSplitter builds a Splitter. A nil runner means real external commands.
func NewSplitter(cfg Config, runner Runner, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = newExecRunner(logger)
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "fao+dan+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 144
	}
	return &Splitter{cfg: cfg, runner: runner, logger: logger}
}

// Split finds the boundary page of pdfPath and rasterizes the boundary..last
// range into outDir as page_001.png, page_002.png, ... (1-based at the
// boundary). An existing outDir is removed first, so re-running a job always
// overwrites deterministically.
func (s *Splitter) Split(ctx context.Context, pdfPath, outDir string) ([]RenderedPage, error) {
	texts, err := s.pageTexts(ctx, pdfPath)
	if err != nil {
		return nil, common.NewAppError("PDF_UNREADABLE",
			fmt.Sprintf("pdftotext on %s", filepath.Base(pdfPath)), fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	total := len(texts)

	boundary := s.findBoundary(ctx, pdfPath, texts)
	if boundary == 0 {
		return nil, common.NewAppError("NO_HEADER_MATCH",
			fmt.Sprintf("marker %q not found in %d pages of %s", HeaderMarker, total, filepath.Base(pdfPath)),
			common.ErrNoHeaderMatch)
	}
	s.logger.Info("boundary page found", "pdf", filepath.Base(pdfPath), "boundary", boundary, "pages", total)

	if err := os.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("reset output dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return s.rasterize(ctx, pdfPath, outDir, boundary, total)
}

// pageTexts returns the text layer of every page, in page order.
func (s *Splitter) pageTexts(ctx context.Context, pdfPath string) ([]string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := s.runner.Run(ctx, s.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", pdfPath, "-")
	if err != nil {
		return nil, err
	}
	// A form-feed \f is the page separator; poppler appends one after the
	// last page as well.
	texts := strings.Split(string(out), "\f")
	if n := len(texts); n > 1 && strings.TrimSpace(texts[n-1]) == "" {
		texts = texts[:n-1]
	}
	return texts, nil
}

// findBoundary returns the 1-based page number of the first page whose
// header contains the marker, or 0 when no page matches.
func (s *Splitter) findBoundary(ctx context.Context, pdfPath string, texts []string) int {
	for i, text := range texts {
		pageNum := i + 1
		if strings.TrimSpace(text) == "" {
			// no text layer; OCR the top of the rendered page instead
			ocrText, err := s.headerByOCR(ctx, pdfPath, pageNum)
			if err != nil {
				s.logger.Warn("header OCR failed, page skipped", "page", pageNum, "error", err)
				continue
			}
			text = ocrText
		}
		if headerMatches(text) {
			return pageNum
		}
	}
	return 0
}

// headerMatches tests the first headerLineWindow non-empty lines for the
// marker substring.
func headerMatches(pageText string) bool {
	seen := 0
	for _, line := range strings.Split(pageText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if containsFolded(line, HeaderMarker) {
			return true
		}
		seen++
		if seen >= headerLineWindow {
			break
		}
	}
	return false
}

// headerByOCR renders a single page and OCRs it, returning the recognized
// text. Only the header window of the result is ever inspected.
func (s *Splitter) headerByOCR(ctx context.Context, pdfPath string, pageNum int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "re-hdr-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			s.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "hdr")
	page := fmt.Sprintf("%d", pageNum)
	if _, _, err := s.runner.Run(ctx, s.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", s.cfg.DPI), "-png", "-f", page, "-l", page, pdfPath, prefix); err != nil {
		return "", fmt.Errorf("render page %d: %w", pageNum, err)
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no image for page %d", pageNum)
	}

	out, _, err := s.runner.Run(ctx, s.cfg.Tesseract, matches[0], "stdout", "-l", s.cfg.TesseractLang)
	if err != nil {
		return "", fmt.Errorf("ocr page %d: %w", pageNum, err)
	}
	return string(out), nil
}

// RenderFirstPage rasterizes page 1 of the document into outDir as
// first_page.png. The cover page carries the company name and publication
// year, so it is rendered even though it sits before the split boundary.
func (s *Splitter) RenderFirstPage(ctx context.Context, pdfPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	prefix := filepath.Join(outDir, "first")
	_, _, err := s.runner.Run(ctx, s.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", s.cfg.DPI), "-png", "-f", "1", "-l", "1", pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("render page 1: %w", err)
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no image for page 1")
	}
	dst := filepath.Join(outDir, "first_page.png")
	if err := os.Rename(matches[0], dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", filepath.Base(matches[0]), err)
	}
	return dst, nil
}

// rasterize renders pages boundary..total and renames poppler's
// source-numbered output to the job's 1-based sequence.
func (s *Splitter) rasterize(ctx context.Context, pdfPath, outDir string, boundary, total int) ([]RenderedPage, error) {
	prefix := filepath.Join(outDir, "raw")
	_, _, err := s.runner.Run(ctx, s.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", s.cfg.DPI), "-png",
		"-f", fmt.Sprintf("%d", boundary), "-l", fmt.Sprintf("%d", total),
		pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("render pages %d..%d: %w", boundary, total, err)
	}

	// poppler zero-pads page numbers to a fixed width, so a string sort is
	// a page-order sort
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images for pages %d..%d", boundary, total)
	}
	if want := total - boundary + 1; len(matches) != want {
		s.logger.Warn("unexpected raster count", "want", want, "got", len(matches))
	}

	rendered := make([]RenderedPage, 0, len(matches))
	for i, src := range matches {
		dst := filepath.Join(outDir, fmt.Sprintf("page_%03d.png", i+1))
		if err := os.Rename(src, dst); err != nil {
			return nil, fmt.Errorf("rename %s: %w", filepath.Base(src), err)
		}
		rendered = append(rendered, RenderedPage{
			PageIndex:  i + 1,
			SourcePage: boundary + i,
			ImagePath:  dst,
		})
	}
	s.logger.Info("pages rendered", "pdf", filepath.Base(pdfPath),
		"boundary", boundary, "count", len(rendered), "dpi", s.cfg.DPI)
	return rendered, nil
}
