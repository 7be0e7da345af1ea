package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"jobscout/models"
)

const snapshotColumns = `id, job_id, run_id, fingerprint, html_key, data_key,
	screenshot_key, pdf_key, markdown_key, http_status, etag, fetched_at, created_at`

func (s *PostgresStore) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	query := `
		INSERT INTO snapshots (
			id, job_id, run_id, fingerprint, html_key, data_key,
			screenshot_key, pdf_key, markdown_key, http_status, etag, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.JobID, snap.RunID, snap.Fingerprint, snap.HTMLKey, snap.DataKey,
		snap.ScreenshotKey, snap.PDFKey, snap.MarkdownKey, snap.HTTPStatus, snap.ETag, snap.FetchedAt,
	)
	return err
}

// GetLatestSnapshot returns the current snapshot for a job, nil when the job
// has never been captured.
func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, jobID uuid.UUID) (*models.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE job_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var snap models.Snapshot
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&snap.ID, &snap.JobID, &snap.RunID, &snap.Fingerprint, &snap.HTMLKey, &snap.DataKey,
		&snap.ScreenshotKey, &snap.PDFKey, &snap.MarkdownKey, &snap.HTTPStatus, &snap.ETag,
		&snap.FetchedAt, &snap.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// =============================================================================
// Tracking history
// =============================================================================

func (s *PostgresStore) InsertTrackingEntry(ctx context.Context, e *models.TrackingHistoryEntry) error {
	query := `
		INSERT INTO job_tracking_history (
			job_id, snapshot_id, checked_at, detected_status, fingerprint,
			title_changed, requirements_changed, salary_changed, description_changed,
			significance, summary, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		e.JobID, e.SnapshotID, e.CheckedAt, e.DetectedStatus, e.Fingerprint,
		e.TitleChanged, e.RequirementsChanged, e.SalaryChanged, e.DescriptionChanged,
		e.Significance, e.Summary, e.ErrorMessage,
	).Scan(&e.ID)
}

// GetRecentHistory returns the newest entries for a job, newest first.
func (s *PostgresStore) GetRecentHistory(ctx context.Context, jobID uuid.UUID, limit int) ([]models.TrackingHistoryEntry, error) {
	query := `
		SELECT id, job_id, snapshot_id, checked_at, detected_status, fingerprint,
			title_changed, requirements_changed, salary_changed, description_changed,
			significance, summary, error_message
		FROM job_tracking_history
		WHERE job_id = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TrackingHistoryEntry
	for rows.Next() {
		var e models.TrackingHistoryEntry
		err := rows.Scan(
			&e.ID, &e.JobID, &e.SnapshotID, &e.CheckedAt, &e.DetectedStatus, &e.Fingerprint,
			&e.TitleChanged, &e.RequirementsChanged, &e.SalaryChanged, &e.DescriptionChanged,
			&e.Significance, &e.Summary, &e.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// Monitor runs
// =============================================================================

func (s *PostgresStore) CreateMonitorRun(ctx context.Context, run *models.MonitorRun) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO monitor_runs (started_at, status) VALUES ($1, 'running') RETURNING id`,
		run.StartedAt,
	).Scan(&run.ID)
}

func (s *PostgresStore) FinishMonitorRun(ctx context.Context, run *models.MonitorRun) error {
	now := time.Now()
	run.FinishedAt = &now
	_, err := s.pool.Exec(ctx, `
		UPDATE monitor_runs SET
			finished_at = $2,
			status = $3,
			jobs_checked = $4,
			jobs_changed = $5,
			jobs_closed = $6,
			jobs_queued = $7,
			errors = $8
		WHERE id = $1`,
		run.ID, run.FinishedAt, run.Status,
		run.JobsChecked, run.JobsChanged, run.JobsClosed, run.JobsQueued, run.Errors,
	)
	return err
}

func (s *PostgresStore) GetLastMonitorRun(ctx context.Context) (*models.MonitorRun, error) {
	var run models.MonitorRun
	err := s.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, status, jobs_checked, jobs_changed,
			jobs_closed, jobs_queued, errors
		FROM monitor_runs
		ORDER BY started_at DESC
		LIMIT 1`,
	).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.JobsChecked,
		&run.JobsChanged, &run.JobsClosed, &run.JobsQueued, &run.Errors,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
