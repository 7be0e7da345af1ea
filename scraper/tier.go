package scraper

import (
	"context"

	"jobscout/config"
	"jobscout/models"
)

// Outcome classifies how a tier attempt ended.
type Outcome string

const (
	// OutcomeResolved means the tier produced the required fields itself.
	OutcomeResolved Outcome = "resolved"
	// OutcomeQueued means the tier handed the target off for asynchronous
	// processing and no further tiers should run.
	OutcomeQueued Outcome = "queued"
)

// Target is one posting to re-check.
type Target struct {
	Job     *models.JobRecord
	Profile *config.SiteProfile
}

// TierResult carries what a tier learned about a target.
type TierResult struct {
	Outcome    Outcome
	Fields     *models.JobFields
	Artifacts  models.Artifacts
	HTTPStatus int
	ETag       string
	Closed     bool
}

// Tier is one rung of the fallback ladder. A nil result with a non-nil error
// means the tier failed outright; a partial-fields error like
// ErrExtractionIncomplete may still carry a result worth merging.
type Tier interface {
	Name() string
	Attempt(ctx context.Context, target *Target) (*TierResult, error)
}
