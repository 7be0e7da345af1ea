package scraper

import "errors"

var (
	// ErrTransientFetch covers timeouts, 5xx responses and rate limiting.
	// Callers retry these with backoff.
	ErrTransientFetch = errors.New("transient fetch error")

	// ErrExtractionIncomplete means the page was fetched but required fields
	// could not be extracted. Retrying the same tier will not help.
	ErrExtractionIncomplete = errors.New("extraction incomplete")

	// ErrSiteAuth means the target demands login or blocked the client.
	ErrSiteAuth = errors.New("site requires authentication")

	// ErrPostingClosed means the fetch found a definitive closed or removed
	// page instead of a live posting. Tiers resolve it as a closure, not a
	// failure.
	ErrPostingClosed = errors.New("posting closed")
)
