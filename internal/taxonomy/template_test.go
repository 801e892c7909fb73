package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjartanjoensen/report-extractor/internal/common"
)

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTemplate(t *testing.T) {
	path := writeTemplate(t, "Item;2024;2023\nSøla;;\n")
	tpl, err := LoadTemplate(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Item", "2024", "2023"}, tpl.Headers)
	assert.Equal(t, "Item", tpl.ItemColumn())
	assert.Equal(t, []string{"2024", "2023"}, tpl.ValueColumns())
	assert.Len(t, tpl.Hash, 64)
}

func TestLoadTemplateHashTracksContent(t *testing.T) {
	a, err := LoadTemplate(writeTemplate(t, "Item;2024;2023\n"))
	require.NoError(t, err)
	b, err := LoadTemplate(writeTemplate(t, "Item;2025;2024\n"))
	require.NoError(t, err)
	same, err := LoadTemplate(writeTemplate(t, "Item;2024;2023\n"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
	assert.Equal(t, a.Hash, same.Hash)
}

func TestLoadTemplateTrimsCRLFAndBlanks(t *testing.T) {
	tpl, err := LoadTemplate(writeTemplate(t, "Item; 2024 ;2023;\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Item", "2024", "2023"}, tpl.Headers)
}

func TestLoadTemplateErrors(t *testing.T) {
	_, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, err = LoadTemplate(writeTemplate(t, " ; ;\n"))
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
