package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// MonitorRun summarizes one batch monitoring pass.
type MonitorRun struct {
	ID          int64      `json:"id" db:"id"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at" db:"finished_at"`
	Status      RunStatus  `json:"status" db:"status"`
	JobsChecked int        `json:"jobs_checked" db:"jobs_checked"`
	JobsChanged int        `json:"jobs_changed" db:"jobs_changed"`
	JobsClosed  int        `json:"jobs_closed" db:"jobs_closed"`
	JobsQueued  int        `json:"jobs_queued" db:"jobs_queued"`
	Errors      int        `json:"errors" db:"errors"`
}

// SuccessRate returns the fraction of checked jobs that did not error.
func (r *MonitorRun) SuccessRate() float64 {
	if r.JobsChecked == 0 {
		return 1
	}
	return float64(r.JobsChecked-r.Errors) / float64(r.JobsChecked)
}
