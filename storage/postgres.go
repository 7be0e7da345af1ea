package storage

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"jobscout/models"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate applies the embedded schema. All statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// =============================================================================
// Jobs
// =============================================================================

const jobColumns = `id, site_id, url, canonical_url, title, company, location,
	salary_min, salary_max, salary_currency, employment_type, description,
	requirements, status, posted_at, first_seen_at, last_seen_open_at,
	last_crawled_at, monitor_every_hours, closure_detected_at, created_at, updated_at`

// UpsertJob inserts or updates a posting, idempotent by (site_id, url).
// Incoming empty fields never clobber known values.
func (s *PostgresStore) UpsertJob(ctx context.Context, j *models.JobRecord) error {
	query := `
		INSERT INTO jobs (
			id, site_id, url, canonical_url, title, company, location,
			salary_min, salary_max, salary_currency, employment_type, description,
			requirements, status, posted_at, first_seen_at, last_seen_open_at,
			last_crawled_at, monitor_every_hours, closure_detected_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (site_id, url) DO UPDATE SET
			canonical_url = COALESCE(NULLIF(EXCLUDED.canonical_url, ''), jobs.canonical_url),
			title = COALESCE(NULLIF(EXCLUDED.title, ''), jobs.title),
			company = COALESCE(NULLIF(EXCLUDED.company, ''), jobs.company),
			location = COALESCE(NULLIF(EXCLUDED.location, ''), jobs.location),
			salary_min = COALESCE(EXCLUDED.salary_min, jobs.salary_min),
			salary_max = COALESCE(EXCLUDED.salary_max, jobs.salary_max),
			salary_currency = COALESCE(NULLIF(EXCLUDED.salary_currency, ''), jobs.salary_currency),
			employment_type = COALESCE(NULLIF(EXCLUDED.employment_type, ''), jobs.employment_type),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), jobs.description),
			requirements = COALESCE(NULLIF(EXCLUDED.requirements, ''), jobs.requirements),
			posted_at = COALESCE(EXCLUDED.posted_at, jobs.posted_at),
			last_seen_open_at = COALESCE(EXCLUDED.last_seen_open_at, jobs.last_seen_open_at),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		j.ID, j.SiteID, j.URL, j.CanonicalURL, j.Title, j.Company, j.Location,
		j.SalaryMin, j.SalaryMax, j.SalaryCurrency, j.EmploymentType, j.Description,
		j.Requirements, j.Status, j.PostedAt, j.FirstSeenAt, j.LastSeenOpenAt,
		j.LastCrawledAt, j.MonitorEveryHrs, j.ClosureDetected, j.CreatedAt, j.UpdatedAt,
	).Scan(&j.ID)
}

func (s *PostgresStore) GetJobByURL(ctx context.Context, siteID, url string) (*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE site_id = $1 AND url = $2`
	return s.scanJob(s.pool.QueryRow(ctx, query, siteID, url))
}

func (s *PostgresStore) GetJobByID(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return s.scanJob(s.pool.QueryRow(ctx, query, id))
}

// GetDueJobs returns open jobs whose last crawl is null or older than their
// monitoring cadence, oldest first. A non-empty siteID restricts the pass to
// one site.
func (s *PostgresStore) GetDueJobs(ctx context.Context, limit int, siteID string) ([]models.JobRecord, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'open'
		  AND ($2 = '' OR site_id = $2)
		  AND (last_crawled_at IS NULL
		       OR last_crawled_at < NOW() - make_interval(hours => monitor_every_hours))
		ORDER BY last_crawled_at ASC NULLS FIRST
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.JobRecord
	for rows.Next() {
		j, err := s.scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// UpdateJobFields folds newly extracted fields back into the canonical row,
// so the jobs table reflects what a monitoring pass observed. Empty extraction
// fields never clobber known values.
func (s *PostgresStore) UpdateJobFields(ctx context.Context, id uuid.UUID, f *models.JobFields) error {
	query := `
		UPDATE jobs SET
			canonical_url = COALESCE(NULLIF($2, ''), canonical_url),
			title = COALESCE(NULLIF($3, ''), title),
			company = COALESCE(NULLIF($4, ''), company),
			location = COALESCE(NULLIF($5, ''), location),
			salary_min = COALESCE($6, salary_min),
			salary_max = COALESCE($7, salary_max),
			salary_currency = COALESCE(NULLIF($8, ''), salary_currency),
			employment_type = COALESCE(NULLIF($9, ''), employment_type),
			description = COALESCE(NULLIF($10, ''), description),
			requirements = COALESCE(NULLIF($11, ''), requirements),
			posted_at = COALESCE($12, posted_at),
			updated_at = NOW()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id,
		f.CanonicalURL, f.Title, f.Company, f.Location,
		f.SalaryMin, f.SalaryMax, f.SalaryCurrency, f.EmploymentType,
		f.Description, f.Requirements, f.PostedAt)
	return err
}

// MarkJobChecked stamps the bookkeeping columns after one monitoring pass.
// closedAt is non-nil only on the pass that detected closure.
func (s *PostgresStore) MarkJobChecked(ctx context.Context, id uuid.UUID, status string, seenOpen bool, closedAt *time.Time) error {
	query := `
		UPDATE jobs SET
			status = $2,
			last_crawled_at = NOW(),
			last_seen_open_at = CASE WHEN $3 THEN NOW() ELSE last_seen_open_at END,
			closure_detected_at = COALESCE(closure_detected_at, $4),
			updated_at = NOW()
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query, id, status, seenOpen, closedAt)
	return err
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
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

func (s *PostgresStore) ListRecentJobs(ctx context.Context, limit int) ([]models.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY updated_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.JobRecord
	for rows.Next() {
		j, err := s.scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) scanJob(row pgx.Row) (*models.JobRecord, error) {
	var j models.JobRecord
	err := row.Scan(
		&j.ID, &j.SiteID, &j.URL, &j.CanonicalURL, &j.Title, &j.Company, &j.Location,
		&j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency, &j.EmploymentType, &j.Description,
		&j.Requirements, &j.Status, &j.PostedAt, &j.FirstSeenAt, &j.LastSeenOpenAt,
		&j.LastCrawledAt, &j.MonitorEveryHrs, &j.ClosureDetected, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) scanJobRow(rows pgx.Rows) (*models.JobRecord, error) {
	var j models.JobRecord
	err := rows.Scan(
		&j.ID, &j.SiteID, &j.URL, &j.CanonicalURL, &j.Title, &j.Company, &j.Location,
		&j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency, &j.EmploymentType, &j.Description,
		&j.Requirements, &j.Status, &j.PostedAt, &j.FirstSeenAt, &j.LastSeenOpenAt,
		&j.LastCrawledAt, &j.MonitorEveryHrs, &j.ClosureDetected, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
