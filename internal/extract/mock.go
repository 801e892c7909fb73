package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"path/filepath"
)

// Mock is the no-credential Extractor: deterministic synthetic output
// derived only from the page image path, so repeated runs over the same job
// directory produce byte-identical results.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (Mock) ExtractPage(_ context.Context, req PageRequest) (PageExtraction, []byte, error) {
	seed := pathSeed(req.ImagePath)
	base := 1000 + int(seed%9000)

	ext := PageExtraction{
		PageTitle: fmt.Sprintf("Mock statement page %d", req.PageIndex),
		Rows: PageRows{
			fmt.Sprintf("Mock item %d.1", req.PageIndex): {
				"2024": fmt.Sprintf("%d", base),
				"2023": fmt.Sprintf("%d", base-100),
			},
			fmt.Sprintf("Mock item %d.2", req.PageIndex): {
				"2024": fmt.Sprintf("%d", base*2),
				"2023": fmt.Sprintf("%d", base*2-100),
			},
		},
		ConfidenceScore: 1.0,
	}
	raw, err := json.Marshal(ext)
	if err != nil {
		return PageExtraction{}, nil, err
	}
	return ext, raw, nil
}

func (Mock) ExtractMetadata(_ context.Context, imagePath string) (DocumentMetadata, []byte, error) {
	md := DocumentMetadata{
		CompanyName:     fmt.Sprintf("Mock Company %03d P/F", pathSeed(imagePath)%1000),
		PublicationYear: "2024",
		PublicationDate: "20240630",
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return DocumentMetadata{}, nil, err
	}
	return md, raw, nil
}

func pathSeed(p string) uint32 {
	h := fnv.New32a()
	// hash only the base name so moving the data dir keeps output stable
	_, _ = h.Write([]byte(filepath.Base(p)))
	return h.Sum32()
}
