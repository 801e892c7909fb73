package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjartanjoensen/report-extractor/internal/common"
)

func TestPageInsertAndList(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobRepository(db, nil)
	pages := NewPageRepository(db, nil)
	ctx := context.Background()
	id := createJob(t, jobs)

	for i := 3; i >= 1; i-- { // insert out of order, list must sort
		_, err := pages.Insert(ctx, id, i, "/tmp/page.png")
		require.NoError(t, err)
	}

	list, err := pages.ListByJob(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, p := range list {
		assert.Equal(t, i+1, p.PageIndex)
		assert.Nil(t, p.ExtractedJSON)
		assert.Nil(t, p.ConfidenceScore)
	}
}

func TestPageInsertRejectsZeroIndex(t *testing.T) {
	db := newTestDB(t)
	pages := NewPageRepository(db, nil)
	_, err := pages.Insert(context.Background(), uuid.New(), 0, "/tmp/page.png")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPageAttachExtraction(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobRepository(db, nil)
	pages := NewPageRepository(db, nil)
	ctx := context.Background()
	id := createJob(t, jobs)

	_, err := pages.Insert(ctx, id, 1, "/tmp/page.png")
	require.NoError(t, err)

	payload := json.RawMessage(`{"rows":{"Søla":{"2024":1000}},"confidence_score":0.9}`)
	conf := float32(0.9)
	require.NoError(t, pages.AttachExtraction(ctx, id, 1, payload, &conf))

	p, err := pages.GetByJobAndIndex(ctx, id, 1)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(p.ExtractedJSON))
	require.NotNil(t, p.ConfidenceScore)
	assert.InDelta(t, 0.9, float64(*p.ConfidenceScore), 1e-6)
}

func TestPageAttachExtractionMissingPage(t *testing.T) {
	db := newTestDB(t)
	pages := NewPageRepository(db, nil)
	err := pages.AttachExtraction(context.Background(), uuid.New(), 1, json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPageDeleteByJob(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobRepository(db, nil)
	pages := NewPageRepository(db, nil)
	ctx := context.Background()
	id := createJob(t, jobs)

	_, err := pages.Insert(ctx, id, 1, "/tmp/page.png")
	require.NoError(t, err)
	require.NoError(t, pages.DeleteByJob(ctx, id))

	list, err := pages.ListByJob(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, list)
}
