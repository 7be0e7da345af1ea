package scraper

import (
	"context"
	"encoding/json"
	"fmt"

	"jobscout/models"
)

// Enqueuer is the slice of the queue store the external tier needs.
type Enqueuer interface {
	EnqueueScrape(ctx context.Context, e *models.ScrapeQueueEntry) error
}

// ExternalTier is the last rung: it writes the target onto the scrape queue
// for an out-of-process worker and reports the attempt as handed off. It
// never resolves anything itself.
type ExternalTier struct {
	queue Enqueuer
}

func NewExternalTier(queue Enqueuer) *ExternalTier {
	return &ExternalTier{queue: queue}
}

func (t *ExternalTier) Name() string { return "external" }

func (t *ExternalTier) Attempt(ctx context.Context, target *Target) (*TierResult, error) {
	payload, err := json.Marshal(models.QueuePayload{
		SiteID:     target.Job.SiteID,
		JobID:      target.Job.ID.String(),
		SearchTerm: target.Job.Title,
		Location:   target.Job.Location,
	})
	if err != nil {
		return nil, err
	}

	entry := &models.ScrapeQueueEntry{
		URLs:    []string{target.Job.URL},
		Source:  models.QueueSourceFallbackExternal,
		Payload: payload,
	}
	if err := t.queue.EnqueueScrape(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue external scrape: %w", err)
	}

	return &TierResult{Outcome: OutcomeQueued}, nil
}
