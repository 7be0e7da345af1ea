package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status
const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
	JobStatusPaused = "paused"
)

// JobRecord is the canonical posting. URL is unique per site; closure is a
// status transition, never a deletion.
type JobRecord struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	SiteID           string     `json:"site_id" db:"site_id"`
	URL              string     `json:"url" db:"url"`
	CanonicalURL     string     `json:"canonical_url" db:"canonical_url"`
	Title            string     `json:"title" db:"title"`
	Company          string     `json:"company" db:"company"`
	Location         string     `json:"location" db:"location"`
	SalaryMin        *float64   `json:"salary_min" db:"salary_min"`
	SalaryMax        *float64   `json:"salary_max" db:"salary_max"`
	SalaryCurrency   string     `json:"salary_currency" db:"salary_currency"`
	EmploymentType   string     `json:"employment_type" db:"employment_type"`
	Description      string     `json:"description" db:"description"`
	Requirements     string     `json:"requirements" db:"requirements"`
	Status           string     `json:"status" db:"status"`
	PostedAt         *time.Time `json:"posted_at" db:"posted_at"`
	FirstSeenAt      time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenOpenAt   *time.Time `json:"last_seen_open_at" db:"last_seen_open_at"`
	LastCrawledAt    *time.Time `json:"last_crawled_at" db:"last_crawled_at"`
	MonitorEveryHrs  int        `json:"monitor_every_hours" db:"monitor_every_hours"`
	ClosureDetected  *time.Time `json:"closure_detected_at" db:"closure_detected_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// JobFields is the output of one extraction pass. Absent fields stay at their
// zero value; partial extraction is expected and tolerated.
type JobFields struct {
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location"`
	SalaryMin      *float64   `json:"salary_min"`
	SalaryMax      *float64   `json:"salary_max"`
	SalaryCurrency string     `json:"salary_currency"`
	EmploymentType string     `json:"employment_type"`
	Description    string     `json:"description"`
	Requirements   string     `json:"requirements"`
	PostedAt       *time.Time `json:"posted_at"`
	CanonicalURL   string     `json:"canonical_url"`
	ApplyURL       string     `json:"apply_url"`
}

// HasRequired reports whether the fields a tier must produce are present.
func (f *JobFields) HasRequired() bool {
	return f.Title != "" && f.Company != ""
}

// Merge copies non-empty fields from other into f without overwriting
// anything f already has. Used to fold a partial earlier-tier result into a
// later tier's resolution.
func (f *JobFields) Merge(other *JobFields) {
	if other == nil {
		return
	}
	if f.Title == "" {
		f.Title = other.Title
	}
	if f.Company == "" {
		f.Company = other.Company
	}
	if f.Location == "" {
		f.Location = other.Location
	}
	if f.SalaryMin == nil {
		f.SalaryMin = other.SalaryMin
	}
	if f.SalaryMax == nil {
		f.SalaryMax = other.SalaryMax
	}
	if f.SalaryCurrency == "" {
		f.SalaryCurrency = other.SalaryCurrency
	}
	if f.EmploymentType == "" {
		f.EmploymentType = other.EmploymentType
	}
	if f.Description == "" {
		f.Description = other.Description
	}
	if f.Requirements == "" {
		f.Requirements = other.Requirements
	}
	if f.PostedAt == nil {
		f.PostedAt = other.PostedAt
	}
	if f.CanonicalURL == "" {
		f.CanonicalURL = other.CanonicalURL
	}
	if f.ApplyURL == "" {
		f.ApplyURL = other.ApplyURL
	}
}

// JobDraft is one entry in a batch submission from the external worker.
// Upserts are idempotent by (site_id, url).
type JobDraft struct {
	SiteID         string     `json:"site_id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location"`
	SalaryMin      *float64   `json:"salary_min"`
	SalaryMax      *float64   `json:"salary_max"`
	SalaryCurrency string     `json:"salary_currency"`
	EmploymentType string     `json:"employment_type"`
	Description    string     `json:"description"`
	Requirements   string     `json:"requirements"`
	PostedAt       *time.Time `json:"posted_at"`
}

// Fields converts a draft to extraction fields.
func (d *JobDraft) Fields() *JobFields {
	return &JobFields{
		Title:          d.Title,
		Company:        d.Company,
		Location:       d.Location,
		SalaryMin:      d.SalaryMin,
		SalaryMax:      d.SalaryMax,
		SalaryCurrency: d.SalaryCurrency,
		EmploymentType: d.EmploymentType,
		Description:    d.Description,
		Requirements:   d.Requirements,
		PostedAt:       d.PostedAt,
	}
}
