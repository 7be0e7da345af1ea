package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"jobscout/models"
)

type ingestStore interface {
	UpsertJob(ctx context.Context, j *models.JobRecord) error
}

// IngestService accepts batches of scraped postings from the external worker
// and upserts them. Each draft succeeds or fails independently.
type IngestService struct {
	store          ingestStore
	defaultCadence time.Duration
}

func NewIngestService(store ingestStore, defaultCadence time.Duration) *IngestService {
	return &IngestService{store: store, defaultCadence: defaultCadence}
}

// BatchResult reports the per-draft outcome of one submission.
type BatchResult struct {
	TotalReceived int      `json:"total_received"`
	Successful    int      `json:"successful"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
}

// IngestBatch upserts every draft. Drafts missing site_id or url are
// rejected; a bad draft never blocks the rest of the batch.
func (s *IngestService) IngestBatch(ctx context.Context, drafts []models.JobDraft) *BatchResult {
	result := &BatchResult{TotalReceived: len(drafts)}

	for i := range drafts {
		if err := s.ingestOne(ctx, &drafts[i]); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("draft %d (%s): %v", i, drafts[i].URL, err))
			slog.Warn("draft rejected", "index", i, "url", drafts[i].URL, "error", err)
			continue
		}
		result.Successful++
	}

	return result
}

func (s *IngestService) ingestOne(ctx context.Context, draft *models.JobDraft) error {
	if strings.TrimSpace(draft.SiteID) == "" {
		return fmt.Errorf("missing site_id")
	}
	if strings.TrimSpace(draft.URL) == "" {
		return fmt.Errorf("missing url")
	}

	now := time.Now()
	job := &models.JobRecord{
		ID:              uuid.New(),
		SiteID:          draft.SiteID,
		URL:             draft.URL,
		Title:           draft.Title,
		Company:         draft.Company,
		Location:        draft.Location,
		SalaryMin:       draft.SalaryMin,
		SalaryMax:       draft.SalaryMax,
		SalaryCurrency:  draft.SalaryCurrency,
		EmploymentType:  draft.EmploymentType,
		Description:     draft.Description,
		Requirements:    draft.Requirements,
		Status:          models.JobStatusOpen,
		PostedAt:        draft.PostedAt,
		FirstSeenAt:     now,
		LastSeenOpenAt:  &now,
		MonitorEveryHrs: int(s.defaultCadence.Hours()),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return s.store.UpsertJob(ctx, job)
}
