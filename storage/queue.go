package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"jobscout/metrics"
	"jobscout/models"
)

const queueColumns = `id, urls, status, priority, payload, source, attempts,
	available_at, claimed_at, lease_expires_at, completed_at, error_message,
	created_at, updated_at`

func (s *PostgresStore) EnqueueScrape(ctx context.Context, e *models.ScrapeQueueEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	query := `
		INSERT INTO scrape_queue (id, urls, status, priority, payload, source, available_at)
		VALUES ($1, $2, 'pending', $3, $4, $5, COALESCE($6, NOW()))`

	var availableAt *time.Time
	if !e.AvailableAt.IsZero() {
		availableAt = &e.AvailableAt
	}

	_, err := s.pool.Exec(ctx, query, e.ID, e.URLs, e.Priority, e.Payload, e.Source, availableAt)
	return err
}

// ClaimScrapes atomically leases up to limit entries. Eligible entries are
// pending ones whose available_at has passed, plus claimed ones whose lease
// expired; maxAge > 0 additionally skips entries older than that. The
// subquery locks rows with SKIP LOCKED so concurrent claimers never hand out
// the same entry twice.
func (s *PostgresStore) ClaimScrapes(ctx context.Context, limit int, maxAge, lease time.Duration) ([]models.ScrapeQueueEntry, error) {
	query := `
		UPDATE scrape_queue SET
			status = 'claimed',
			claimed_at = NOW(),
			lease_expires_at = NOW() + $2,
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scrape_queue
			WHERE ((status = 'pending' AND available_at <= NOW())
			   OR (status = 'claimed' AND lease_expires_at <= NOW()))
			  AND ($3::interval IS NULL OR created_at >= NOW() - $3::interval)
			ORDER BY priority DESC, available_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	var maxAgeArg *time.Duration
	if maxAge > 0 {
		maxAgeArg = &maxAge
	}

	rows, err := s.pool.Query(ctx, query, limit, lease, maxAgeArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ScrapeQueueEntry
	for rows.Next() {
		e, err := scanQueueRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		metrics.QueueClaims.WithLabelValues(entries[i].Source).Inc()
	}
	return entries, nil
}

// CompleteScrape marks a claimed entry done. It refuses entries that are not
// in the claimed state, so a worker whose lease expired and got reassigned
// cannot overwrite the new holder's outcome.
func (s *PostgresStore) CompleteScrape(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_queue SET
			status = 'completed',
			completed_at = NOW(),
			error_message = '',
			updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete entry %s: %w", id, ErrQueueLeaseConflict)
	}
	return nil
}

// FailScrape records a failure. Entries under the attempt ceiling go back to
// pending with exponential backoff, the rest become terminally failed.
func (s *PostgresStore) FailScrape(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, baseBackoff time.Duration) error {
	entry, err := s.GetScrapeEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("fail entry %s: not found", id)
	}
	if entry.Status != models.QueueStatusClaimed {
		return fmt.Errorf("fail entry %s: %w", id, ErrQueueLeaseConflict)
	}

	attempts := entry.Attempts + 1
	if attempts >= maxAttempts {
		_, err = s.pool.Exec(ctx, `
			UPDATE scrape_queue SET
				status = 'failed',
				attempts = $2,
				error_message = $3,
				lease_expires_at = NULL,
				updated_at = NOW()
			WHERE id = $1 AND status = 'claimed'`, id, attempts, errMsg)
		return err
	}

	backoff := RetryBackoff(baseBackoff, attempts)
	_, err = s.pool.Exec(ctx, `
		UPDATE scrape_queue SET
			status = 'pending',
			attempts = $2,
			error_message = $3,
			available_at = NOW() + $4,
			claimed_at = NULL,
			lease_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'claimed'`, id, attempts, errMsg, backoff)
	return err
}

// RetryBackoff is base * 2^(attempts-1), so the first retry waits one base
// interval.
func RetryBackoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return base * time.Duration(math.Pow(2, float64(attempts-1)))
}

func (s *PostgresStore) GetScrapeEntry(ctx context.Context, id uuid.UUID) (*models.ScrapeQueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM scrape_queue WHERE id = $1`, id)
	e, err := scanQueueEntry(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *PostgresStore) CountQueueByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM scrape_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListUnrecordedScrapes returns completed fallback entries whose target URLs
// never produced a job row. These surface external scrapes that finished
// without reporting results back.
func (s *PostgresStore) ListUnrecordedScrapes(ctx context.Context, limit int) ([]models.ScrapeQueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM scrape_queue q
		WHERE q.status = 'completed'
		  AND q.source = 'fallback_external'
		  AND NOT EXISTS (
			SELECT 1 FROM jobs j WHERE j.url = ANY(q.urls)
		  )
		ORDER BY q.completed_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ScrapeQueueEntry
	for rows.Next() {
		e, err := scanQueueRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanQueueEntry(row pgx.Row) (*models.ScrapeQueueEntry, error) {
	var e models.ScrapeQueueEntry
	err := row.Scan(
		&e.ID, &e.URLs, &e.Status, &e.Priority, &e.Payload, &e.Source, &e.Attempts,
		&e.AvailableAt, &e.ClaimedAt, &e.LeaseExpiresAt, &e.CompletedAt, &e.ErrorMessage,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanQueueRow(rows pgx.Rows) (*models.ScrapeQueueEntry, error) {
	var e models.ScrapeQueueEntry
	err := rows.Scan(
		&e.ID, &e.URLs, &e.Status, &e.Priority, &e.Payload, &e.Source, &e.Attempts,
		&e.AvailableAt, &e.ClaimedAt, &e.LeaseExpiresAt, &e.CompletedAt, &e.ErrorMessage,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
