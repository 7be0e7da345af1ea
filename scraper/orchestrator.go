package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jobscout/metrics"
)

// Orchestrator walks the fallback ladder for one target: the posting's own
// page, then a structured search lookup, then a hand-off to the external
// worker queue. The first resolved or queued outcome wins. Partial fields
// recovered by an earlier tier are folded into the winning result.
type Orchestrator struct {
	tiers []Tier
}

func NewOrchestrator(tiers ...Tier) *Orchestrator {
	return &Orchestrator{tiers: tiers}
}

// Resolve runs tiers in order and returns the first conclusive result. The
// returned error is non-nil only when every tier failed; it wraps the last
// tier's error.
func (o *Orchestrator) Resolve(ctx context.Context, target *Target) (*TierResult, error) {
	var partial *TierResult
	var lastErr error

	for _, tier := range o.tiers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := tier.Attempt(ctx, target)
		if err != nil {
			metrics.TierAttempts.WithLabelValues(tier.Name(), "error").Inc()
			slog.Debug("tier attempt failed",
				"tier", tier.Name(), "job_id", target.Job.ID, "error", err)
			lastErr = err

			// Incomplete extractions may still have recovered some fields
			// worth keeping for a later tier's resolution.
			if errors.Is(err, ErrExtractionIncomplete) && result != nil && result.Fields != nil {
				partial = mergePartial(partial, result)
			}
			continue
		}

		metrics.TierAttempts.WithLabelValues(tier.Name(), string(result.Outcome)).Inc()

		if result.Outcome == OutcomeResolved {
			if partial != nil {
				if result.Fields == nil {
					result.Fields = partial.Fields
				} else {
					result.Fields.Merge(partial.Fields)
				}
				if result.Artifacts.Empty() {
					result.Artifacts = partial.Artifacts
				}
				if result.HTTPStatus == 0 {
					result.HTTPStatus = partial.HTTPStatus
				}
			}
			return result, nil
		}
		if result.Outcome == OutcomeQueued {
			return result, nil
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no tiers configured")
	}
	return nil, fmt.Errorf("all tiers exhausted: %w", lastErr)
}

func mergePartial(existing, incoming *TierResult) *TierResult {
	if existing == nil {
		return incoming
	}
	// Earlier tiers rank higher; only fill gaps.
	existing.Fields.Merge(incoming.Fields)
	if existing.Artifacts.Empty() {
		existing.Artifacts = incoming.Artifacts
	}
	if existing.HTTPStatus == 0 {
		existing.HTTPStatus = incoming.HTTPStatus
	}
	return existing
}
