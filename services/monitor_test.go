package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"jobscout/config"
	"jobscout/identity"
	"jobscout/models"
	"jobscout/scraper"
)

type fakeMonitorStore struct {
	mu        sync.Mutex
	dueJobs   []models.JobRecord
	snapshots map[uuid.UUID]*models.Snapshot

	entries   []models.TrackingHistoryEntry
	checked   []uuid.UUID
	statuses  map[uuid.UUID]string
	updated   map[uuid.UUID]*models.JobFields
	runs      []*models.MonitorRun
	finished  []*models.MonitorRun
	nextRunID int64
}

func newFakeMonitorStore(jobs ...models.JobRecord) *fakeMonitorStore {
	return &fakeMonitorStore{
		dueJobs:   jobs,
		snapshots: make(map[uuid.UUID]*models.Snapshot),
		statuses:  make(map[uuid.UUID]string),
		updated:   make(map[uuid.UUID]*models.JobFields),
	}
}

func (f *fakeMonitorStore) GetDueJobs(ctx context.Context, limit int, siteID string) ([]models.JobRecord, error) {
	if siteID == "" {
		return f.dueJobs, nil
	}
	var out []models.JobRecord
	for _, j := range f.dueJobs {
		if j.SiteID == siteID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeMonitorStore) UpdateJobFields(ctx context.Context, id uuid.UUID, fields *models.JobFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[id] = fields
	return nil
}

func (f *fakeMonitorStore) MarkJobChecked(ctx context.Context, id uuid.UUID, status string, seenOpen bool, closedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, id)
	f.statuses[id] = status
	return nil
}

func (f *fakeMonitorStore) InsertTrackingEntry(ctx context.Context, e *models.TrackingHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeMonitorStore) GetRecentHistory(ctx context.Context, jobID uuid.UUID, limit int) ([]models.TrackingHistoryEntry, error) {
	return nil, nil
}

func (f *fakeMonitorStore) CreateMonitorRun(ctx context.Context, run *models.MonitorRun) error {
	f.nextRunID++
	run.ID = f.nextRunID
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeMonitorStore) FinishMonitorRun(ctx context.Context, run *models.MonitorRun) error {
	f.finished = append(f.finished, run)
	return nil
}

func (f *fakeMonitorStore) CountQueueByStatus(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

func (f *fakeMonitorStore) CreateSnapshot(ctx context.Context, snap *models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.JobID] = snap
	return nil
}

func (f *fakeMonitorStore) GetLatestSnapshot(ctx context.Context, jobID uuid.UUID) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[jobID], nil
}

type fakeBlob struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (f *fakeBlob) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[key] = data
	return nil
}

type fakeResolver struct {
	results map[uuid.UUID]*scraper.TierResult
	errs    map[uuid.UUID]error
}

func (f *fakeResolver) Resolve(ctx context.Context, target *scraper.Target) (*scraper.TierResult, error) {
	if err, ok := f.errs[target.Job.ID]; ok {
		return nil, err
	}
	return f.results[target.Job.ID], nil
}

func monitorCfg() config.MonitorConfig {
	return config.MonitorConfig{
		BatchSize:        20,
		Concurrency:      2,
		FailureThreshold: 3,
		FetchTimeout:     5 * time.Second,
	}
}

func TestRunPass_Aggregation(t *testing.T) {
	resolved := models.JobRecord{ID: uuid.New(), SiteID: "hooli", URL: "https://x.example/1", Title: "Analyst", Company: "Hooli", Status: models.JobStatusOpen}
	queued := models.JobRecord{ID: uuid.New(), SiteID: "hooli", URL: "https://x.example/2", Title: "Engineer", Company: "Hooli", Status: models.JobStatusOpen}
	failing := models.JobRecord{ID: uuid.New(), SiteID: "hooli", URL: "https://x.example/3", Title: "PM", Company: "Hooli", Status: models.JobStatusOpen}

	store := newFakeMonitorStore(resolved, queued, failing)
	blob := &fakeBlob{}

	resolver := &fakeResolver{
		results: map[uuid.UUID]*scraper.TierResult{
			resolved.ID: {
				Outcome:    scraper.OutcomeResolved,
				Fields:     &models.JobFields{Title: "Analyst", Company: "Hooli"},
				Artifacts:  models.Artifacts{HTML: []byte("<html>ok</html>")},
				HTTPStatus: 200,
			},
			queued.ID: {Outcome: scraper.OutcomeQueued},
		},
		errs: map[uuid.UUID]error{
			failing.ID: errors.New("connect timeout"),
		},
	}

	svc := NewMonitorService(
		store, resolver,
		NewSnapshotService(store, blob),
		NewChangeService(3),
		monitorCfg(), nil,
	)

	run, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	if run.JobsChecked != 3 {
		t.Fatalf("checked = %d", run.JobsChecked)
	}
	if run.JobsQueued != 1 {
		t.Fatalf("queued = %d", run.JobsQueued)
	}
	if run.Errors != 1 {
		t.Fatalf("errors = %d", run.Errors)
	}
	if run.JobsClosed != 0 || run.JobsChanged != 0 {
		t.Fatalf("run = %+v", run)
	}
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("status = %s", run.Status)
	}

	// Every pass leaves a history row; the queued job's carries the neutral
	// queued status.
	if len(store.entries) != 3 {
		t.Fatalf("history entries = %d", len(store.entries))
	}
	var queuedEntries int
	for _, e := range store.entries {
		if e.DetectedStatus == models.TrackingStatusQueued {
			queuedEntries++
			if e.JobID != queued.ID {
				t.Fatalf("queued entry for wrong job: %+v", e)
			}
		}
	}
	if queuedEntries != 1 {
		t.Fatalf("queued entries = %d", queuedEntries)
	}

	// The resolved job was a first observation: snapshot persisted with blobs
	// and its extracted fields folded back into the canonical row.
	if store.snapshots[resolved.ID] == nil {
		t.Fatalf("no snapshot for resolved job")
	}
	if len(blob.uploads) == 0 {
		t.Fatalf("no blob uploads recorded")
	}
	if got := store.updated[resolved.ID]; got == nil || got.Title != "Analyst" {
		t.Fatalf("canonical fields not refreshed: %+v", got)
	}
	if store.updated[failing.ID] != nil {
		t.Fatalf("failing job should not refresh fields")
	}

	// All three were stamped as checked.
	if len(store.checked) != 3 {
		t.Fatalf("checked stamps = %d", len(store.checked))
	}
}

func TestRunPass_ChangeRefreshesCanonicalFields(t *testing.T) {
	job := models.JobRecord{ID: uuid.New(), SiteID: "hooli", URL: "https://x.example/5", Title: "Analyst", Company: "Hooli", Status: models.JobStatusOpen}

	store := newFakeMonitorStore(job)
	oldFields := &models.JobFields{Title: "Analyst", Company: "Hooli"}
	store.snapshots[job.ID] = &models.Snapshot{
		ID:          uuid.New(),
		JobID:       job.ID,
		Fingerprint: identity.Fingerprint(oldFields),
	}

	resolver := &fakeResolver{
		results: map[uuid.UUID]*scraper.TierResult{
			job.ID: {
				Outcome:    scraper.OutcomeResolved,
				Fields:     &models.JobFields{Title: "Senior Analyst", Company: "Hooli"},
				Artifacts:  models.Artifacts{HTML: []byte("<html>new</html>")},
				HTTPStatus: 200,
			},
		},
	}

	svc := NewMonitorService(
		store, resolver,
		NewSnapshotService(store, &fakeBlob{}),
		NewChangeService(3),
		monitorCfg(), nil,
	)

	run, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if run.JobsChanged != 1 {
		t.Fatalf("changed = %d", run.JobsChanged)
	}
	got := store.updated[job.ID]
	if got == nil || got.Title != "Senior Analyst" {
		t.Fatalf("canonical fields not refreshed after change: %+v", got)
	}
}

func TestRunPass_ClosureCounts(t *testing.T) {
	job := models.JobRecord{ID: uuid.New(), SiteID: "hooli", URL: "https://x.example/4", Title: "Gone", Company: "Hooli", Status: models.JobStatusOpen}

	store := newFakeMonitorStore(job)
	resolver := &fakeResolver{
		results: map[uuid.UUID]*scraper.TierResult{
			job.ID: {
				Outcome:    scraper.OutcomeResolved,
				HTTPStatus: 404,
				Closed:     true,
				Artifacts:  models.Artifacts{HTML: []byte("<html>gone</html>")},
			},
		},
	}

	svc := NewMonitorService(
		store, resolver,
		NewSnapshotService(store, &fakeBlob{}),
		NewChangeService(3),
		monitorCfg(), nil,
	)

	run, err := svc.RunPass(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if run.JobsClosed != 1 {
		t.Fatalf("closed = %d", run.JobsClosed)
	}
	if store.statuses[job.ID] != models.JobStatusClosed {
		t.Fatalf("job status = %s", store.statuses[job.ID])
	}
	if len(store.entries) != 1 || store.entries[0].DetectedStatus != models.TrackingStatusClosed {
		t.Fatalf("entries = %+v", store.entries)
	}
}
