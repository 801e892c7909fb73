package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/constants"
)

// Job represents one end-to-end processing run for a single uploaded PDF.
type Job struct {
	ID              uuid.UUID           `json:"id"`
	Status          constants.JobStatus `json:"status"`
	SourcePDFPath   string              `json:"source_pdf_path"`
	SourceFilename  string              `json:"source_filename"`
	TempDirPath     *string             `json:"temp_dir_path,omitempty"`
	StartPage       *int                `json:"start_page,omitempty"`
	EndPage         *int                `json:"end_page,omitempty"`
	CompanyName     *string             `json:"company_name,omitempty"`
	PublicationYear *string             `json:"publication_year,omitempty"`
	ErrorMessage    *string             `json:"error_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}
