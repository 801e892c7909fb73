package jobs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjartanjoensen/report-extractor/constants"
	"github.com/kjartanjoensen/report-extractor/internal/async"
	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/repository"
)

// recordingQueue captures enqueued tasks instead of running them.
type recordingQueue struct {
	tasks []async.Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, t async.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

func newService(t *testing.T, queue async.Queue) *Service {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.InitSchema(ctx, db, nil))

	return NewService(
		repository.NewJobRepository(db, nil),
		repository.NewPageRepository(db, nil),
		queue,
		filepath.Join(t.TempDir(), "jobs"),
		nil,
	)
}

const pdfContent = "%PDF-1.7\nfake body\n%%EOF\n"

func TestCreateFromUpload(t *testing.T) {
	queue := &recordingQueue{}
	svc := newService(t, queue)
	ctx := context.Background()

	job, err := svc.CreateFromUpload(ctx, CreateRequest{
		Filename: "arsfrasogn-2024.PDF",
		Content:  strings.NewReader(pdfContent),
	})
	require.NoError(t, err)

	assert.Equal(t, constants.JobStatusQueued, job.Status, "upload returns before any processing")
	assert.Equal(t, "arsfrasogn-2024.PDF", job.SourceFilename)

	data, err := os.ReadFile(job.SourcePDFPath)
	require.NoError(t, err)
	assert.Equal(t, pdfContent, string(data))

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, job.ID, queue.tasks[0].JobID)
}

func TestCreateFromUploadRejectsNonPDFExtension(t *testing.T) {
	svc := newService(t, &recordingQueue{})
	_, err := svc.CreateFromUpload(context.Background(), CreateRequest{
		Filename: "report.docx",
		Content:  strings.NewReader(pdfContent),
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreateFromUploadRejectsEmptyFile(t *testing.T) {
	queue := &recordingQueue{}
	svc := newService(t, queue)
	_, err := svc.CreateFromUpload(context.Background(), CreateRequest{
		Filename: "report.pdf",
		Content:  bytes.NewReader(nil),
	})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, queue.tasks)
}

func TestCreateFromUploadRejectsNonPDFContent(t *testing.T) {
	svc := newService(t, &recordingQueue{})
	_, err := svc.CreateFromUpload(context.Background(), CreateRequest{
		Filename: "report.pdf",
		Content:  strings.NewReader("<html>not a pdf</html>"),
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreateFromUploadSurvivesEnqueueFailure(t *testing.T) {
	queue := &recordingQueue{err: context.Canceled}
	svc := newService(t, queue)

	job, err := svc.CreateFromUpload(context.Background(), CreateRequest{
		Filename: "report.pdf",
		Content:  strings.NewReader(pdfContent),
	})
	require.NoError(t, err, "a full queue must not lose the upload")
	assert.Equal(t, constants.JobStatusQueued, job.Status)
}

func TestCreateFromPath(t *testing.T) {
	svc := newService(t, &recordingQueue{})
	pdfPath := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte(pdfContent), 0o644))

	job, err := svc.CreateFromPath(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, job.Status)
	assert.Equal(t, "report.pdf", job.SourceFilename)
	assert.True(t, filepath.IsAbs(job.SourcePDFPath))
}

func TestGetResultAndPageImage(t *testing.T) {
	queue := &recordingQueue{}
	svc := newService(t, queue)
	ctx := context.Background()

	job, err := svc.CreateFromUpload(ctx, CreateRequest{
		Filename: "report.pdf",
		Content:  strings.NewReader(pdfContent),
	})
	require.NoError(t, err)

	imgPath := filepath.Join(filepath.Dir(job.SourcePDFPath), "page_001.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("png"), 0o644))
	_, err = svc.pagesRepo.Insert(ctx, job.ID, 1, imgPath)
	require.NoError(t, err)

	result, err := svc.GetResult(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, result.Job.ID)
	require.Len(t, result.Pages, 1)

	got, err := svc.GetPageImage(ctx, job.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, imgPath, got)

	_, err = svc.GetPageImage(ctx, job.ID, 2)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
