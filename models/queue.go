package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Queue entry status
const (
	QueueStatusPending   = "pending"
	QueueStatusClaimed   = "claimed"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
)

// Queue entry source: which tier enqueued it
const (
	QueueSourcePrimary          = "primary"
	QueueSourceFallbackSearch   = "fallback_search"
	QueueSourceFallbackExternal = "fallback_external"
)

// ScrapeQueueEntry is one unit of scrape work. An entry with status claimed
// always carries claimed_at and a lease deadline; entries past the deadline
// are eligible for re-claim. Entries are retained after completion for audit.
type ScrapeQueueEntry struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	URLs           []string        `json:"urls" db:"urls"`
	Status         string          `json:"status" db:"status"`
	Priority       int             `json:"priority" db:"priority"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	Source         string          `json:"source" db:"source"`
	Attempts       int             `json:"attempts" db:"attempts"`
	AvailableAt    time.Time       `json:"available_at" db:"available_at"`
	ClaimedAt      *time.Time      `json:"claimed_at" db:"claimed_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at" db:"lease_expires_at"`
	CompletedAt    *time.Time      `json:"completed_at" db:"completed_at"`
	ErrorMessage   string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// QueuePayload carries either search parameters or an explicit target URL.
type QueuePayload struct {
	SiteID     string `json:"site_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	SearchTerm string `json:"search_term,omitempty"`
	Location   string `json:"location,omitempty"`
}
