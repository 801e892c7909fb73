package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockExtractPageIsDeterministic(t *testing.T) {
	m := NewMock()
	req := PageRequest{ImagePath: "/data/jobs/a/pages/page_001.png", PageIndex: 1}

	first, rawFirst, err := m.ExtractPage(context.Background(), req)
	require.NoError(t, err)
	second, rawSecond, err := m.ExtractPage(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, rawFirst, rawSecond)
	assert.Len(t, first.Rows, 2)
	assert.EqualValues(t, 1.0, first.ConfidenceScore)
}

func TestMockIgnoresDirectoryOfImage(t *testing.T) {
	m := NewMock()
	a, _, err := m.ExtractPage(context.Background(), PageRequest{ImagePath: "/run1/page_001.png", PageIndex: 1})
	require.NoError(t, err)
	b, _, err := m.ExtractPage(context.Background(), PageRequest{ImagePath: "/run2/page_001.png", PageIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMockOutputMatchesPageSchema(t *testing.T) {
	m := NewMock()
	_, raw, err := m.ExtractPage(context.Background(), PageRequest{ImagePath: "page_002.png", PageIndex: 2})
	require.NoError(t, err)
	assert.NoError(t, ValidateJSONAgainstSchema(BuildPageJSONSchema(), raw))
}

func TestMockMetadataMatchesSchema(t *testing.T) {
	m := NewMock()
	md, raw, err := m.ExtractMetadata(context.Background(), "page_001.png")
	require.NoError(t, err)
	assert.NotEmpty(t, md.CompanyName)
	assert.Equal(t, "2024", md.PublicationYear)
	assert.NoError(t, ValidateJSONAgainstSchema(BuildMetadataJSONSchema(), raw))
}
