package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/kjartanjoensen/report-extractor/internal/common"
)

// Template is the canonical header sequence exports align to. It is loaded
// once at startup and held for the process lifetime; the content hash keys
// the match cache so entries from an older template version are never
// served after the file changes.
type Template struct {
	Path    string
	Headers []string
	Hash    string // sha256 hex of the raw file content
}

// LoadTemplate reads a semicolon-delimited header row from path.
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError("TAXONOMY_TEMPLATE",
			fmt.Sprintf("read template %s", path), fmt.Errorf("%w: %w", common.ErrConfiguration, err))
	}

	line, _, _ := strings.Cut(string(raw), "\n")
	var headers []string
	for _, h := range strings.Split(strings.TrimRight(line, "\r"), ";") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	if len(headers) == 0 {
		return nil, common.NewAppError("TAXONOMY_TEMPLATE",
			fmt.Sprintf("template %s has no headers", path), common.ErrConfiguration)
	}

	sum := sha256.Sum256(raw)
	return &Template{
		Path:    path,
		Headers: headers,
		Hash:    hex.EncodeToString(sum[:]),
	}, nil
}

// ItemColumn is the first template column; it carries item labels in
// exports. The remaining columns are year/field value columns.
func (t *Template) ItemColumn() string {
	return t.Headers[0]
}

// ValueColumns returns the template columns after the item column.
func (t *Template) ValueColumns() []string {
	return t.Headers[1:]
}
