package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"jobscout/config"
	"jobscout/models"
	"jobscout/services"
	"jobscout/storage"
)

type fakeQueue struct {
	claimed     []models.ScrapeQueueEntry
	claimLimit  int
	claimMaxAge time.Duration
	claimLease  time.Duration

	completed []uuid.UUID
	failed    []uuid.UUID
	patchErr  error
}

func (f *fakeQueue) ClaimScrapes(ctx context.Context, limit int, maxAge, lease time.Duration) ([]models.ScrapeQueueEntry, error) {
	f.claimLimit = limit
	f.claimMaxAge = maxAge
	f.claimLease = lease
	return f.claimed, nil
}

func (f *fakeQueue) CompleteScrape(ctx context.Context, id uuid.UUID) error {
	if f.patchErr != nil {
		return f.patchErr
	}
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeQueue) FailScrape(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, baseBackoff time.Duration) error {
	if f.patchErr != nil {
		return f.patchErr
	}
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeQueue) ListUnrecordedScrapes(ctx context.Context, limit int) ([]models.ScrapeQueueEntry, error) {
	return nil, nil
}

func (f *fakeQueue) CountQueueByStatus(ctx context.Context) (map[string]int, error) {
	return map[string]int{"pending": 3}, nil
}

type fakeStatus struct{}

func (f *fakeStatus) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	return map[string]int{"open": 12, "closed": 4}, nil
}

func (f *fakeStatus) GetLastMonitorRun(ctx context.Context) (*models.MonitorRun, error) {
	return &models.MonitorRun{ID: 7, StartedAt: time.Now(), JobsChecked: 10}, nil
}

type fakeJobs struct {
	byID  map[uuid.UUID]*models.JobRecord
	byURL map[string]*models.JobRecord
}

func (f *fakeJobs) GetJobByID(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	return f.byID[id], nil
}

func (f *fakeJobs) GetJobByURL(ctx context.Context, siteID, url string) (*models.JobRecord, error) {
	return f.byURL[siteID+"|"+url], nil
}

func (f *fakeJobs) ListRecentJobs(ctx context.Context, limit int) ([]models.JobRecord, error) {
	var out []models.JobRecord
	for _, j := range f.byID {
		out = append(out, *j)
	}
	return out, nil
}

type fakeIngester struct {
	got []models.JobDraft
}

func (f *fakeIngester) IngestBatch(ctx context.Context, drafts []models.JobDraft) *services.BatchResult {
	f.got = drafts
	return &services.BatchResult{TotalReceived: len(drafts), Successful: len(drafts)}
}

func newTestServer(queue *fakeQueue) (*Server, *fakeIngester) {
	return newTestServerWithJobs(queue, &fakeJobs{})
}

func newTestServerWithJobs(queue *fakeQueue, jobs *fakeJobs) (*Server, *fakeIngester) {
	ingest := &fakeIngester{}
	srv := NewServer(queue, &fakeStatus{}, jobs, ingest, "secret", config.QueueConfig{
		LeaseDuration: 30 * time.Minute,
		MaxAttempts:   3,
		RetryBackoff:  5 * time.Minute,
	})
	return srv, ingest
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{})
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuth_RejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/scrape-queue/pending", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/scrape-queue/pending", "wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
}

func TestClaimPending(t *testing.T) {
	queue := &fakeQueue{claimed: []models.ScrapeQueueEntry{
		{ID: uuid.New(), Status: models.QueueStatusClaimed, URLs: []string{"https://x.example/1"}},
	}}
	srv, _ := newTestServer(queue)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/scrape-queue/pending?limit=5&max_age_hours=48", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if queue.claimLimit != 5 {
		t.Fatalf("claim limit = %d", queue.claimLimit)
	}
	if queue.claimMaxAge != 48*time.Hour {
		t.Fatalf("claim max age = %v", queue.claimMaxAge)
	}
	if queue.claimLease != 30*time.Minute {
		t.Fatalf("claim lease = %v", queue.claimLease)
	}

	var resp struct {
		Count int                       `json:"count"`
		Jobs  []models.ScrapeQueueEntry `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestClaimPending_BadLimit(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{})
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/scrape-queue/pending?limit=zero", "secret", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPatchEntry_Completed(t *testing.T) {
	queue := &fakeQueue{}
	srv, _ := newTestServer(queue)
	id := uuid.New()

	rec := doRequest(t, srv.Handler(), http.MethodPatch,
		"/api/v1/scrape-queue/"+id.String(), "secret", `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(queue.completed) != 1 || queue.completed[0] != id {
		t.Fatalf("completed = %v", queue.completed)
	}
}

func TestPatchEntry_FailedAndConflict(t *testing.T) {
	queue := &fakeQueue{}
	srv, _ := newTestServer(queue)
	id := uuid.New()
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPatch,
		"/api/v1/scrape-queue/"+id.String(), "secret", `{"status":"failed","error_message":"timeout"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(queue.failed) != 1 {
		t.Fatalf("failed = %v", queue.failed)
	}

	queue.patchErr = storage.ErrQueueLeaseConflict
	rec = doRequest(t, h, http.MethodPatch,
		"/api/v1/scrape-queue/"+id.String(), "secret", `{"status":"completed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("lease conflict status = %d", rec.Code)
	}
}

func TestPatchEntry_BadStatus(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{})
	rec := doRequest(t, srv.Handler(), http.MethodPatch,
		"/api/v1/scrape-queue/"+uuid.NewString(), "secret", `{"status":"done"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobsBatch(t *testing.T) {
	srv, ingest := newTestServer(&fakeQueue{})

	body := `{"jobs":[{"site_id":"hooli","url":"https://careers.hooli.example/jobs/1","title":"Analyst","company":"Hooli"}]}`
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/jobs/batch", "secret", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(ingest.got) != 1 || ingest.got[0].SiteID != "hooli" {
		t.Fatalf("drafts = %+v", ingest.got)
	}

	var result services.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Successful != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestJobsBatch_Empty(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{})
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/jobs/batch", "secret", `{"jobs":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	id := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*models.JobRecord{
		id: {ID: id, SiteID: "hooli", URL: "https://careers.hooli.example/jobs/1", Title: "Analyst"},
	}}
	srv, _ := newTestServerWithJobs(&fakeQueue{}, jobs)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/jobs/"+id.String(), "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var job models.JobRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Title != "Analyst" {
		t.Fatalf("title = %q", job.Title)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), "secret", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d", rec.Code)
	}
}

func TestLookupJobByURL(t *testing.T) {
	url := "https://careers.hooli.example/jobs/1"
	jobs := &fakeJobs{byURL: map[string]*models.JobRecord{
		"hooli|" + url: {ID: uuid.New(), SiteID: "hooli", URL: url},
	}}
	srv, _ := newTestServerWithJobs(&fakeQueue{}, jobs)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet,
		"/api/v1/jobs?site_id=hooli&url="+neturl.QueryEscape(url), "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, h, http.MethodGet,
		"/api/v1/jobs?site_id=hooli&url="+neturl.QueryEscape("https://other.example/x"), "secret", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown url: status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/jobs?url="+neturl.QueryEscape(url), "secret", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing site_id: status = %d", rec.Code)
	}
}

func TestListRecentJobs(t *testing.T) {
	id := uuid.New()
	jobs := &fakeJobs{byID: map[uuid.UUID]*models.JobRecord{
		id: {ID: id, SiteID: "hooli", URL: "https://careers.hooli.example/jobs/1"},
	}}
	srv, _ := newTestServerWithJobs(&fakeQueue{}, jobs)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/jobs", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Count int                `json:"count"`
		Jobs  []models.JobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestMonitoringStatus(t *testing.T) {
	srv, _ := newTestServer(&fakeQueue{})
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/monitoring/status", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["jobs"]; !ok {
		t.Fatalf("missing jobs counts: %v", resp)
	}
	if _, ok := resp["queue"]; !ok {
		t.Fatalf("missing queue counts: %v", resp)
	}
	if _, ok := resp["last_run"]; !ok {
		t.Fatalf("missing last_run: %v", resp)
	}
}
