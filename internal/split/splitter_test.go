package split

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjartanjoensen/report-extractor/internal/common"
)

// fakeRunner scripts the external tools: pdftotext returns the configured
// page texts, pdftoppm writes placeholder png files for the requested range,
// tesseract returns the configured OCR text.
type fakeRunner struct {
	pageTexts []string
	ocrText   string
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name)
	switch {
	case strings.Contains(name, "pdftotext"):
		return []byte(strings.Join(f.pageTexts, "\f") + "\f"), nil, nil
	case strings.Contains(name, "pdftoppm"):
		first, last, prefix := rangeArgs(args)
		for p := first; p <= last; p++ {
			path := fmt.Sprintf("%s-%02d.png", prefix, p)
			if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract"):
		return []byte(f.ocrText), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func rangeArgs(args []string) (first, last int, prefix string) {
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-f":
			first, _ = strconv.Atoi(args[i+1])
		case "-l":
			last, _ = strconv.Atoi(args[i+1])
		}
	}
	return first, last, args[len(args)-1]
}

func pages(texts ...string) []string { return texts }

func TestSplitFindsBoundaryAndRenders(t *testing.T) {
	runner := &fakeRunner{pageTexts: pages(
		"Ársfrásøgn 2024\nP/F Testfelag",
		"Innihaldsyvirlit",
		"Rakstrarróknskapur 2024\nSøla 1.000",
		"Fíggjarstøða",
		"Notur",
	)}
	s := NewSplitter(Config{}, runner, nil)
	outDir := filepath.Join(t.TempDir(), "pages")

	rendered, err := s.Split(context.Background(), "/tmp/report.pdf", outDir)
	require.NoError(t, err)
	require.Len(t, rendered, 3)

	for i, rp := range rendered {
		assert.Equal(t, i+1, rp.PageIndex)
		assert.Equal(t, 3+i, rp.SourcePage)
		assert.Equal(t, filepath.Join(outDir, fmt.Sprintf("page_%03d.png", i+1)), rp.ImagePath)
		assert.FileExists(t, rp.ImagePath)
	}

	// no stray raw-prefixed files left behind
	leftovers, err := filepath.Glob(filepath.Join(outDir, "raw-*.png"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSplitBoundaryOnLastPage(t *testing.T) {
	runner := &fakeRunner{pageTexts: pages(
		"Forsíða",
		"Innihaldsyvirlit",
		"RAKSTRARRÓKNSKAPUR",
	)}
	s := NewSplitter(Config{}, runner, nil)
	outDir := filepath.Join(t.TempDir(), "pages")

	rendered, err := s.Split(context.Background(), "/tmp/report.pdf", outDir)
	require.NoError(t, err)
	require.Len(t, rendered, 1)
	assert.Equal(t, 1, rendered[0].PageIndex)
	assert.Equal(t, 3, rendered[0].SourcePage)
}

func TestSplitNoHeaderMatch(t *testing.T) {
	runner := &fakeRunner{pageTexts: pages("Forsíða", "Notur", "Fíggjarstøða")}
	s := NewSplitter(Config{}, runner, nil)
	outDir := filepath.Join(t.TempDir(), "pages")

	_, err := s.Split(context.Background(), "/tmp/report.pdf", outDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNoHeaderMatch)

	// the failed split must not leave a half-built output dir behind images
	imgs, globErr := filepath.Glob(filepath.Join(outDir, "*.png"))
	require.NoError(t, globErr)
	assert.Empty(t, imgs)
}

func TestSplitMarkerBelowHeaderWindowIgnored(t *testing.T) {
	var body strings.Builder
	for i := 0; i < headerLineWindow; i++ {
		body.WriteString(fmt.Sprintf("filler line %d\n", i))
	}
	body.WriteString("Rakstrarroknskapur deep in the body\n")

	runner := &fakeRunner{pageTexts: pages(body.String(), "Rakstrarroknskapur")}
	s := NewSplitter(Config{}, runner, nil)

	rendered, err := s.Split(context.Background(), "/tmp/report.pdf", filepath.Join(t.TempDir(), "pages"))
	require.NoError(t, err)
	require.Len(t, rendered, 1)
	assert.Equal(t, 2, rendered[0].SourcePage)
}

func TestSplitTextlessPageFallsBackToOCR(t *testing.T) {
	runner := &fakeRunner{
		pageTexts: pages("Forsíða", "   \n  ", "Notur"),
		ocrText:   "RAKSTRARRÓKNSKAPUR 2024",
	}
	s := NewSplitter(Config{}, runner, nil)
	outDir := filepath.Join(t.TempDir(), "pages")

	rendered, err := s.Split(context.Background(), "/tmp/report.pdf", outDir)
	require.NoError(t, err)
	require.Len(t, rendered, 2)
	assert.Equal(t, 2, rendered[0].SourcePage)
	assert.Contains(t, runner.calls, "tesseract")
}

func TestSplitOverwritesPreviousOutput(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "pages")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	stale := filepath.Join(outDir, "page_099.png")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	runner := &fakeRunner{pageTexts: pages("Forsíða", "Rakstrarroknskapur")}
	s := NewSplitter(Config{}, runner, nil)

	rendered, err := s.Split(context.Background(), "/tmp/report.pdf", outDir)
	require.NoError(t, err)
	require.Len(t, rendered, 1)
	assert.NoFileExists(t, stale)
}

func TestRenderFirstPage(t *testing.T) {
	runner := &fakeRunner{}
	s := NewSplitter(Config{}, runner, nil)
	outDir := filepath.Join(t.TempDir(), "pages")

	path, err := s.RenderFirstPage(context.Background(), "/tmp/report.pdf", outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "first_page.png"), path)
	assert.FileExists(t, path)
}
