package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Page is one rendered page of a job's split range. PageIndex is 1-based and
// contiguous starting at the boundary page. ExtractedJSON is written once by
// the job's task and never updated afterwards.
type Page struct {
	JobID           uuid.UUID       `json:"job_id"`
	PageIndex       int             `json:"page_index"`
	ImagePath       string          `json:"image_path"`
	ExtractedJSON   json.RawMessage `json:"extracted_json,omitempty"`
	ConfidenceScore *float32        `json:"confidence_score,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
