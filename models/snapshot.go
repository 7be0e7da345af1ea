package models

import (
	"time"

	"github.com/google/uuid"
)

// Artifact names within a snapshot's blob prefix.
const (
	ArtifactHTML       = "html"
	ArtifactData       = "data.json"
	ArtifactScreenshot = "screenshot.png"
	ArtifactPDF        = "render.pdf"
	ArtifactMarkdown   = "extract.md"
)

// Snapshot is an immutable point-in-time capture of one job for one run.
// Key columns are nil when the artifact was not captured; a blob key is only
// recorded after the blob write succeeded.
type Snapshot struct {
	ID            uuid.UUID `json:"id" db:"id"`
	JobID         uuid.UUID `json:"job_id" db:"job_id"`
	RunID         int64     `json:"run_id" db:"run_id"`
	Fingerprint   string    `json:"fingerprint" db:"fingerprint"`
	HTMLKey       *string   `json:"html_key" db:"html_key"`
	DataKey       *string   `json:"data_key" db:"data_key"`
	ScreenshotKey *string   `json:"screenshot_key" db:"screenshot_key"`
	PDFKey        *string   `json:"pdf_key" db:"pdf_key"`
	MarkdownKey   *string   `json:"markdown_key" db:"markdown_key"`
	HTTPStatus    int       `json:"http_status" db:"http_status"`
	ETag          string    `json:"etag" db:"etag"`
	FetchedAt     time.Time `json:"fetched_at" db:"fetched_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Artifacts holds the raw bytes captured during one fetch. Nil slices mean
// the artifact was not produced.
type Artifacts struct {
	HTML       []byte
	Data       []byte
	Screenshot []byte
	PDF        []byte
	Markdown   []byte
}

// Empty reports whether no artifact was captured at all.
func (a *Artifacts) Empty() bool {
	return a == nil ||
		(len(a.HTML) == 0 && len(a.Data) == 0 && len(a.Screenshot) == 0 &&
			len(a.PDF) == 0 && len(a.Markdown) == 0)
}
