package services

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"jobscout/identity"
	"jobscout/models"
)

// Significance weights per changed field. The sum is clamped to 1.0.
const (
	weightSalary       = 0.35
	weightRequirements = 0.30
	weightTitle        = 0.20
	weightDescription  = 0.15
)

// Observation is everything one monitoring pass learned about a job.
type Observation struct {
	Job          *models.JobRecord
	LastSnapshot *models.Snapshot
	// RecentHistory is newest first. Used to derive the consecutive-failure
	// count; it is never stored as a counter.
	RecentHistory []models.TrackingHistoryEntry
	Fields        *models.JobFields
	Fingerprint   string
	HTTPStatus    int
	ClosedMarker  bool
	FetchErr      error
}

// ChangeReport is the verdict for one pass.
type ChangeReport struct {
	Entry     models.TrackingHistoryEntry
	NewStatus string
	Changed   bool
	Closed    bool
}

// ChangeService turns observations into tracking history entries and job
// status transitions.
type ChangeService struct {
	failureThreshold int
	now              func() time.Time
}

func NewChangeService(failureThreshold int) *ChangeService {
	return &ChangeService{failureThreshold: failureThreshold, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (c *ChangeService) SetClock(now func() time.Time) {
	c.now = now
}

// Evaluate classifies one observation. It never mutates the job; callers
// apply NewStatus and persist the entry.
func (c *ChangeService) Evaluate(obs *Observation) *ChangeReport {
	entry := models.TrackingHistoryEntry{
		JobID:       obs.Job.ID,
		CheckedAt:   c.now(),
		Fingerprint: obs.Fingerprint,
	}

	if obs.FetchErr != nil {
		entry.DetectedStatus = models.TrackingStatusError
		entry.ErrorMessage = obs.FetchErr.Error()

		failures := consecutiveFailures(obs.RecentHistory) + 1
		if failures >= c.failureThreshold {
			entry.Summary = fmt.Sprintf("closed after %d consecutive failed checks", failures)
			return &ChangeReport{Entry: entry, NewStatus: models.JobStatusClosed, Closed: true}
		}
		entry.Summary = fmt.Sprintf("check failed (%d consecutive)", failures)
		return &ChangeReport{Entry: entry, NewStatus: obs.Job.Status}
	}

	if obs.ClosedMarker || obs.HTTPStatus == http.StatusNotFound || obs.HTTPStatus == http.StatusGone {
		entry.DetectedStatus = models.TrackingStatusClosed
		if obs.ClosedMarker {
			entry.Summary = "closed marker on page"
		} else {
			entry.Summary = fmt.Sprintf("page gone (HTTP %d)", obs.HTTPStatus)
		}
		return &ChangeReport{Entry: entry, NewStatus: models.JobStatusClosed, Closed: true}
	}

	entry.DetectedStatus = models.TrackingStatusOpen

	if obs.LastSnapshot == nil {
		entry.Summary = "first observation"
		return &ChangeReport{Entry: entry, NewStatus: models.JobStatusOpen}
	}

	if obs.Fingerprint == obs.LastSnapshot.Fingerprint {
		entry.Summary = "no change"
		return &ChangeReport{Entry: entry, NewStatus: models.JobStatusOpen}
	}

	c.diffFields(obs, &entry)
	return &ChangeReport{
		Entry:     entry,
		NewStatus: models.JobStatusOpen,
		Changed:   true,
	}
}

func (c *ChangeService) diffFields(obs *Observation, entry *models.TrackingHistoryEntry) {
	job, fields := obs.Job, obs.Fields
	var changed []string
	var significance float64

	if fields.Title != "" && identity.NormalizeText(fields.Title) != identity.NormalizeText(job.Title) {
		entry.TitleChanged = true
		significance += weightTitle
		changed = append(changed, "title")
	}
	if fields.Requirements != "" && identity.NormalizeText(fields.Requirements) != identity.NormalizeText(job.Requirements) {
		entry.RequirementsChanged = true
		significance += weightRequirements
		changed = append(changed, "requirements")
	}
	if salaryDiffers(job, fields) {
		entry.SalaryChanged = true
		significance += weightSalary
		changed = append(changed, "salary")
	}
	if fields.Description != "" && identity.NormalizeText(fields.Description) != identity.NormalizeText(job.Description) {
		entry.DescriptionChanged = true
		significance += weightDescription
		changed = append(changed, "description")
	}

	if significance > 1.0 {
		significance = 1.0
	}
	entry.Significance = significance

	if len(changed) == 0 {
		// Fingerprint moved but no monitored field did, e.g. location or
		// employment type churn.
		entry.Summary = "content changed"
		return
	}
	entry.Summary = "changed: " + strings.Join(changed, ", ")
}

func salaryDiffers(job *models.JobRecord, fields *models.JobFields) bool {
	if fields.SalaryMin == nil && fields.SalaryMax == nil {
		return false
	}
	return !floatPtrEqual(job.SalaryMin, fields.SalaryMin) ||
		!floatPtrEqual(job.SalaryMax, fields.SalaryMax)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// consecutiveFailures counts error entries from the newest backwards,
// stopping at the first real observation. Queued passes are neutral: they
// observed nothing, so they neither extend nor break the streak.
func consecutiveFailures(history []models.TrackingHistoryEntry) int {
	n := 0
	for _, e := range history {
		switch e.DetectedStatus {
		case models.TrackingStatusError:
			n++
		case models.TrackingStatusQueued:
			continue
		default:
			return n
		}
	}
	return n
}
