package extract

import "context"

// PageRows maps an item label (as printed on the statement) to its values,
// keyed by year ("2023") or field name ("nota").
type PageRows map[string]map[string]any

// PageExtraction is the structured result for one page image. This is also
// the persisted shape of pages.extracted_json.
type PageExtraction struct {
	PageTitle       string   `json:"page_title,omitempty"`
	Rows            PageRows `json:"rows"`
	ConfidenceScore float32  `json:"confidence_score,omitempty"`
}

// DocumentMetadata is extracted once from the first page of the split range.
type DocumentMetadata struct {
	CompanyName     string `json:"company_name,omitempty"`
	PublicationYear string `json:"publication_year,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"` // YYYYMMDD when printed on the page
}

// PageRequest identifies the page image to extract.
type PageRequest struct {
	ImagePath string
	PageIndex int
}

// Extractor converts a page image into structured data. The second return
// value is the raw model output (or a canonical marshalling for the mock),
// kept for persistence and debugging.
//
// Implementations: Mock (deterministic, no external dependency) and the
// OpenAI vision client in the openai subpackage.
type Extractor interface {
	ExtractPage(ctx context.Context, req PageRequest) (PageExtraction, []byte, error)
	ExtractMetadata(ctx context.Context, imagePath string) (DocumentMetadata, []byte, error)
}
