package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"jobscout/config"
	"jobscout/models"
	"jobscout/services"
	"jobscout/storage"
)

const (
	defaultClaimLimit = 10
	maxClaimLimit     = 100
	maxBatchBody      = 10 << 20
)

type queueStore interface {
	ClaimScrapes(ctx context.Context, limit int, maxAge, lease time.Duration) ([]models.ScrapeQueueEntry, error)
	CompleteScrape(ctx context.Context, id uuid.UUID) error
	FailScrape(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, baseBackoff time.Duration) error
	ListUnrecordedScrapes(ctx context.Context, limit int) ([]models.ScrapeQueueEntry, error)
	CountQueueByStatus(ctx context.Context) (map[string]int, error)
}

type statusStore interface {
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
	GetLastMonitorRun(ctx context.Context) (*models.MonitorRun, error)
}

type jobReader interface {
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.JobRecord, error)
	GetJobByURL(ctx context.Context, siteID, url string) (*models.JobRecord, error)
	ListRecentJobs(ctx context.Context, limit int) ([]models.JobRecord, error)
}

type ingester interface {
	IngestBatch(ctx context.Context, drafts []models.JobDraft) *services.BatchResult
}

// Server is the HTTP surface the external scrape worker talks to. Everything
// under /api/v1 requires the bearer token; health is open.
type Server struct {
	queue    queueStore
	status   statusStore
	jobs     jobReader
	ingest   ingester
	token    string
	queueCfg config.QueueConfig
}

func NewServer(queue queueStore, status statusStore, jobs jobReader, ingest ingester, token string, queueCfg config.QueueConfig) *Server {
	return &Server{
		queue:    queue,
		status:   status,
		jobs:     jobs,
		ingest:   ingest,
		token:    token,
		queueCfg: queueCfg,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/monitoring/status", s.auth(s.handleMonitoringStatus))
	mux.HandleFunc("GET /api/v1/scrape-queue/pending", s.auth(s.handleClaimPending))
	mux.HandleFunc("GET /api/v1/scrape-queue/unrecorded", s.auth(s.handleUnrecorded))
	mux.HandleFunc("PATCH /api/v1/scrape-queue/{id}", s.auth(s.handlePatchEntry))
	mux.HandleFunc("GET /api/v1/jobs", s.auth(s.handleListJobs))
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.auth(s.handleGetJob))
	mux.HandleFunc("POST /api/v1/jobs/batch", s.auth(s.handleJobsBatch))

	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			writeError(w, http.StatusServiceUnavailable, "api token not configured")
			return
		}
		header := r.Header.Get("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMonitoringStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobCounts, err := s.status.CountJobsByStatus(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count jobs: "+err.Error())
		return
	}
	queueCounts, err := s.queue.CountQueueByStatus(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count queue: "+err.Error())
		return
	}

	resp := map[string]any{
		"jobs":  jobCounts,
		"queue": queueCounts,
	}
	if lastRun, err := s.status.GetLastMonitorRun(ctx); err == nil && lastRun != nil {
		resp["last_run"] = map[string]any{
			"id":           lastRun.ID,
			"started_at":   lastRun.StartedAt,
			"finished_at":  lastRun.FinishedAt,
			"status":       lastRun.Status,
			"jobs_checked": lastRun.JobsChecked,
			"jobs_changed": lastRun.JobsChanged,
			"jobs_closed":  lastRun.JobsClosed,
			"success_rate": lastRun.SuccessRate(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleClaimPending atomically claims up to limit entries for the caller.
// A response that is sent is a lease; entries not reported back before the
// lease expires become claimable again.
func (s *Server) handleClaimPending(w http.ResponseWriter, r *http.Request) {
	limit := defaultClaimLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxClaimLimit {
		limit = maxClaimLimit
	}

	var maxAge time.Duration
	if raw := r.URL.Query().Get("max_age_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "max_age_hours must be a positive integer")
			return
		}
		maxAge = time.Duration(n) * time.Hour
	}

	entries, err := s.queue.ClaimScrapes(r.Context(), limit, maxAge, s.queueCfg.LeaseDuration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "claim: "+err.Error())
		return
	}
	if entries == nil {
		entries = []models.ScrapeQueueEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  entries,
		"count": len(entries),
	})
}

type patchEntryRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (s *Server) handlePatchEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req patchEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	switch req.Status {
	case models.QueueStatusCompleted:
		err = s.queue.CompleteScrape(r.Context(), id)
	case models.QueueStatusFailed:
		err = s.queue.FailScrape(r.Context(), id, req.ErrorMessage,
			s.queueCfg.MaxAttempts, s.queueCfg.RetryBackoff)
	default:
		writeError(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}

	if err != nil {
		if errors.Is(err, storage.ErrQueueLeaseConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": req.Status})
}

type jobsBatchRequest struct {
	Jobs []models.JobDraft `json:"jobs"`
}

func (s *Server) handleJobsBatch(w http.ResponseWriter, r *http.Request) {
	var req jobsBatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Jobs) == 0 {
		writeError(w, http.StatusBadRequest, "jobs array is empty")
		return
	}

	result := s.ingest.IngestBatch(r.Context(), req.Jobs)

	status := http.StatusOK
	if result.Successful == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// handleListJobs serves two shapes: with ?site_id=&url= it is a point lookup
// workers use to dedup before enqueueing, otherwise it lists recent jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if url := r.URL.Query().Get("url"); url != "" {
		siteID := r.URL.Query().Get("site_id")
		if siteID == "" {
			writeError(w, http.StatusBadRequest, "site_id is required with url")
			return
		}
		job, err := s.jobs.GetJobByURL(r.Context(), siteID, url)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	jobs, err := s.jobs.ListRecentJobs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []models.JobRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.jobs.GetJobByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUnrecorded(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := s.queue.ListUnrecordedScrapes(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.ScrapeQueueEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
