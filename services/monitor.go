package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"jobscout/config"
	"jobscout/identity"
	"jobscout/metrics"
	"jobscout/models"
	"jobscout/scraper"
)

type monitorStore interface {
	GetDueJobs(ctx context.Context, limit int, siteID string) ([]models.JobRecord, error)
	MarkJobChecked(ctx context.Context, id uuid.UUID, status string, seenOpen bool, closedAt *time.Time) error
	UpdateJobFields(ctx context.Context, id uuid.UUID, f *models.JobFields) error
	InsertTrackingEntry(ctx context.Context, e *models.TrackingHistoryEntry) error
	GetRecentHistory(ctx context.Context, jobID uuid.UUID, limit int) ([]models.TrackingHistoryEntry, error)
	CreateMonitorRun(ctx context.Context, run *models.MonitorRun) error
	FinishMonitorRun(ctx context.Context, run *models.MonitorRun) error
	CountQueueByStatus(ctx context.Context) (map[string]int, error)
}

// Resolver walks the fallback ladder for one target.
type Resolver interface {
	Resolve(ctx context.Context, target *scraper.Target) (*scraper.TierResult, error)
}

// MonitorService runs batch monitoring passes: select due jobs, re-check each
// through the fallback ladder, detect changes, persist snapshots and history.
type MonitorService struct {
	store     monitorStore
	resolver  Resolver
	snapshots *SnapshotService
	changes   *ChangeService
	cfg       config.MonitorConfig
	profiles  map[string]*config.SiteProfile

	limiter siteLimiter
}

func NewMonitorService(
	store monitorStore,
	resolver Resolver,
	snapshots *SnapshotService,
	changes *ChangeService,
	cfg config.MonitorConfig,
	profiles map[string]*config.SiteProfile,
) *MonitorService {
	return &MonitorService{
		store:     store,
		resolver:  resolver,
		snapshots: snapshots,
		changes:   changes,
		cfg:       cfg,
		profiles:  profiles,
		limiter:   siteLimiter{last: make(map[string]time.Time)},
	}
}

// RunPass executes one batch monitoring pass and returns its summary. Per-job
// failures are counted, not fatal; the pass itself only fails on selection or
// bookkeeping errors.
func (m *MonitorService) RunPass(ctx context.Context) (*models.MonitorRun, error) {
	return m.RunPassForSite(ctx, "")
}

// RunPassForSite is RunPass restricted to one site's due jobs. An empty
// siteID covers every site.
func (m *MonitorService) RunPassForSite(ctx context.Context, siteID string) (*models.MonitorRun, error) {
	start := time.Now()
	run := &models.MonitorRun{StartedAt: start, Status: models.RunStatusRunning}
	if err := m.store.CreateMonitorRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	jobs, err := m.store.GetDueJobs(ctx, m.cfg.BatchSize, siteID)
	if err != nil {
		run.Status = models.RunStatusFailed
		m.store.FinishMonitorRun(ctx, run)
		return run, fmt.Errorf("select due jobs: %w", err)
	}

	slog.Info("monitor pass starting", "run_id", run.ID, "due", len(jobs))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			outcome := m.checkJob(gctx, &job, run.ID)

			mu.Lock()
			run.JobsChecked++
			if outcome.changed {
				run.JobsChanged++
			}
			if outcome.closed {
				run.JobsClosed++
			}
			if outcome.queued {
				run.JobsQueued++
			}
			if outcome.failed {
				run.Errors++
			}
			mu.Unlock()

			metrics.JobsChecked.Inc()
			if outcome.closed {
				metrics.JobsClosed.Inc()
			}
			return nil
		})
	}
	g.Wait()

	run.Status = models.RunStatusCompleted
	if err := m.store.FinishMonitorRun(ctx, run); err != nil {
		slog.Error("failed to finish run record", "run_id", run.ID, "error", err)
	}

	if counts, err := m.store.CountQueueByStatus(ctx); err == nil {
		metrics.QueueDepth.Set(float64(counts[models.QueueStatusPending]))
	}
	metrics.MonitorPassDuration.Observe(time.Since(start).Seconds())

	slog.Info("monitor pass finished",
		"run_id", run.ID,
		"checked", run.JobsChecked,
		"changed", run.JobsChanged,
		"closed", run.JobsClosed,
		"queued", run.JobsQueued,
		"errors", run.Errors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return run, nil
}

type checkOutcome struct {
	changed bool
	closed  bool
	queued  bool
	failed  bool
}

func (m *MonitorService) checkJob(ctx context.Context, job *models.JobRecord, runID int64) checkOutcome {
	profile := m.profiles[job.SiteID]
	m.limiter.wait(ctx, job.SiteID, profile)

	lastSnap, err := m.snapshots.Latest(ctx, job.ID)
	if err != nil {
		slog.Error("load last snapshot", "job_id", job.ID, "error", err)
		return checkOutcome{failed: true}
	}
	// Twice the threshold so neutral queued rows between failures don't push
	// error entries out of the window.
	history, err := m.store.GetRecentHistory(ctx, job.ID, m.cfg.FailureThreshold*2)
	if err != nil {
		slog.Error("load history", "job_id", job.ID, "error", err)
		return checkOutcome{failed: true}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	result, resolveErr := m.resolver.Resolve(fetchCtx, &scraper.Target{Job: job, Profile: profile})
	cancel()

	if result != nil && result.Outcome == scraper.OutcomeQueued {
		// Hand-off: the external worker reports back through the API. The
		// ledger still gets a row for this pass, but the worker's report is
		// the observation of record, so no status or fingerprint is claimed.
		entry := models.TrackingHistoryEntry{
			JobID:          job.ID,
			CheckedAt:      time.Now(),
			DetectedStatus: models.TrackingStatusQueued,
			Summary:        "queued for external scrape",
		}
		if err := m.store.InsertTrackingEntry(ctx, &entry); err != nil {
			slog.Error("insert queued tracking entry", "job_id", job.ID, "error", err)
		}
		if err := m.store.MarkJobChecked(ctx, job.ID, job.Status, false, nil); err != nil {
			slog.Error("mark queued job checked", "job_id", job.ID, "error", err)
		}
		return checkOutcome{queued: true}
	}

	obs := &Observation{
		Job:           job,
		LastSnapshot:  lastSnap,
		RecentHistory: history,
		FetchErr:      resolveErr,
	}
	if result != nil {
		obs.Fields = result.Fields
		obs.HTTPStatus = result.HTTPStatus
		obs.ClosedMarker = result.Closed
		if result.Fields != nil {
			obs.Fingerprint = identity.Fingerprint(result.Fields)
		}
	}

	report := m.changes.Evaluate(obs)

	// Snapshots are written on first observation, on change, and on closure.
	// A quiet pass leaves only a history row.
	shouldSnapshot := resolveErr == nil && result != nil &&
		(lastSnap == nil || report.Changed || report.Closed)
	if shouldSnapshot && !result.Artifacts.Empty() {
		snap, err := m.snapshots.Persist(ctx, &Capture{
			JobID:       job.ID,
			RunID:       runID,
			Fingerprint: obs.Fingerprint,
			Fields:      result.Fields,
			Artifacts:   result.Artifacts,
			HTTPStatus:  result.HTTPStatus,
			ETag:        result.ETag,
		})
		if err != nil {
			slog.Error("persist snapshot", "job_id", job.ID, "error", err)
			report.Entry.ErrorMessage = err.Error()
		} else {
			report.Entry.SnapshotID = &snap.ID
		}
	}

	// The canonical row follows what the pass observed: on the first
	// observation and on any detected change, extracted fields flow back so
	// later diffs compare against current values.
	if resolveErr == nil && result != nil && result.Fields != nil &&
		(lastSnap == nil || report.Changed) {
		if err := m.store.UpdateJobFields(ctx, job.ID, result.Fields); err != nil {
			slog.Error("update job fields", "job_id", job.ID, "error", err)
		}
	}

	if err := m.store.InsertTrackingEntry(ctx, &report.Entry); err != nil {
		slog.Error("insert tracking entry", "job_id", job.ID, "error", err)
		return checkOutcome{failed: true}
	}

	var closedAt *time.Time
	if report.Closed {
		now := time.Now()
		closedAt = &now
	}
	seenOpen := report.Entry.DetectedStatus == models.TrackingStatusOpen
	if err := m.store.MarkJobChecked(ctx, job.ID, report.NewStatus, seenOpen, closedAt); err != nil {
		slog.Error("mark job checked", "job_id", job.ID, "error", err)
		return checkOutcome{failed: true}
	}

	if report.Changed {
		slog.Info("posting changed",
			"job_id", job.ID,
			"summary", report.Entry.Summary,
			"significance", report.Entry.Significance,
		)
	}
	if report.Closed {
		slog.Info("posting closed", "job_id", job.ID, "summary", report.Entry.Summary)
	}

	return checkOutcome{
		changed: report.Changed,
		closed:  report.Closed,
		failed:  resolveErr != nil && !report.Closed,
	}
}

// siteLimiter spaces out fetches per site according to the profile's rate
// limit. State is in-memory only; restarts reset it.
type siteLimiter struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (l *siteLimiter) wait(ctx context.Context, siteID string, profile *config.SiteProfile) {
	if profile == nil || profile.RateLimitMS <= 0 {
		return
	}
	interval := time.Duration(profile.RateLimitMS) * time.Millisecond

	l.mu.Lock()
	now := time.Now()
	next := l.last[siteID].Add(interval)
	if next.Before(now) {
		next = now
	}
	l.last[siteID] = next
	l.mu.Unlock()

	if wait := time.Until(next); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
		}
	}
}
