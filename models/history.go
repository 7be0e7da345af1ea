package models

import (
	"time"

	"github.com/google/uuid"
)

// Tracking pass status
const (
	TrackingStatusOpen   = "open"
	TrackingStatusClosed = "closed"
	TrackingStatusError  = "error"
	TrackingStatusQueued = "queued"
)

// TrackingHistoryEntry is one row per monitoring pass per job. Append-only;
// the consecutive-failure counter is derived from these rows, never stored
// separately.
type TrackingHistoryEntry struct {
	ID                 int64      `json:"id" db:"id"`
	JobID              uuid.UUID  `json:"job_id" db:"job_id"`
	SnapshotID         *uuid.UUID `json:"snapshot_id" db:"snapshot_id"`
	CheckedAt          time.Time  `json:"checked_at" db:"checked_at"`
	DetectedStatus     string     `json:"detected_status" db:"detected_status"`
	Fingerprint        string     `json:"fingerprint" db:"fingerprint"`
	TitleChanged       bool       `json:"title_changed" db:"title_changed"`
	RequirementsChanged bool      `json:"requirements_changed" db:"requirements_changed"`
	SalaryChanged      bool       `json:"salary_changed" db:"salary_changed"`
	DescriptionChanged bool       `json:"description_changed" db:"description_changed"`
	Significance       float64    `json:"significance" db:"significance"`
	Summary            string     `json:"summary" db:"summary"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
}
