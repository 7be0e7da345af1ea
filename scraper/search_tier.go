package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobscout/identity"
	"jobscout/models"
)

const (
	searchPageSize = 25
	searchMaxPages = 2

	// titleMatchFloor is the minimum title token overlap for a search hit to
	// count as the same posting.
	titleMatchFloor = 0.5
)

// SearchConfig configures the structured job-search API client.
type SearchConfig struct {
	BaseURL string
	AppID   string
	AppKey  string
	Country string
}

// SearchTier looks the posting up on an aggregator API by title and company
// when the posting's own page cannot be scraped. A hit only resolves the
// target when its title and company plausibly match the known posting.
type SearchTier struct {
	cfg    SearchConfig
	client *http.Client
}

func NewSearchTier(cfg SearchConfig, client *http.Client) *SearchTier {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SearchTier{cfg: cfg, client: client}
}

func (t *SearchTier) Name() string { return "search" }

type searchResponse struct {
	Results []searchHit `json:"results"`
	Count   int         `json:"count"`
}

type searchHit struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
	RedirectURL  string  `json:"redirect_url"`
	Created      string  `json:"created"`
	ContractTime string  `json:"contract_time"`
}

func (t *SearchTier) Attempt(ctx context.Context, target *Target) (*TierResult, error) {
	if t.cfg.AppID == "" || t.cfg.AppKey == "" {
		return nil, fmt.Errorf("search credentials not configured: %w", ErrTransientFetch)
	}
	job := target.Job
	if job.Title == "" || job.Company == "" {
		return nil, fmt.Errorf("%w: no title or company to search by", ErrExtractionIncomplete)
	}

	for page := 1; page <= searchMaxPages; page++ {
		hits, err := t.fetchPage(ctx, job.Title, job.Location, page)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			break
		}

		for i := range hits {
			hit := &hits[i]
			if !matchesPosting(job, hit) {
				continue
			}
			return &TierResult{
				Outcome: OutcomeResolved,
				Fields:  hitToFields(hit),
			}, nil
		}

		if len(hits) < searchPageSize {
			break
		}
	}

	return nil, fmt.Errorf("%w: no confident search match for %q at %q", ErrExtractionIncomplete, job.Title, job.Company)
}

// Search runs a plain query and returns every hit as extraction fields. Used
// by the external worker, which has no known posting to match against.
func (t *SearchTier) Search(ctx context.Context, what, where string) ([]*models.JobFields, error) {
	if t.cfg.AppID == "" || t.cfg.AppKey == "" {
		return nil, fmt.Errorf("search credentials not configured: %w", ErrTransientFetch)
	}

	var all []*models.JobFields
	for page := 1; page <= searchMaxPages; page++ {
		hits, err := t.fetchPage(ctx, what, where, page)
		if err != nil {
			return all, err
		}
		if len(hits) == 0 {
			break
		}
		for i := range hits {
			all = append(all, hitToFields(&hits[i]))
		}
		if len(hits) < searchPageSize {
			break
		}
	}
	return all, nil
}

func (t *SearchTier) fetchPage(ctx context.Context, what, where string, page int) ([]searchHit, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", t.cfg.BaseURL, t.cfg.Country, page)

	params := url.Values{}
	params.Set("app_id", t.cfg.AppID)
	params.Set("app_key", t.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(searchPageSize))
	params.Set("what", what)
	if where != "" {
		params.Set("where", where)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w: %v", ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("search api: status %d: %w", resp.StatusCode, ErrSiteAuth)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api: status %d: %w", resp.StatusCode, ErrTransientFetch)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("search read: %w: %v", ErrTransientFetch, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search decode: %w", err)
	}
	return parsed.Results, nil
}

// matchesPosting decides whether a search hit is the posting we are tracking.
// Title token overlap must reach the floor and at least one company token
// must agree.
func matchesPosting(job *models.JobRecord, hit *searchHit) bool {
	return TitleOverlap(job.Title, hit.Title) >= titleMatchFloor &&
		tokenIntersects(job.Company, hit.Company.DisplayName)
}

// TitleOverlap returns the fraction of the known title's tokens present in
// the candidate title, after normalization.
func TitleOverlap(known, candidate string) float64 {
	knownTokens := strings.Fields(identity.NormalizeText(known))
	if len(knownTokens) == 0 {
		return 0
	}
	candidateSet := make(map[string]bool)
	for _, tok := range strings.Fields(identity.NormalizeText(candidate)) {
		candidateSet[tok] = true
	}

	matched := 0
	for _, tok := range knownTokens {
		if candidateSet[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(knownTokens))
}

func tokenIntersects(a, b string) bool {
	setB := make(map[string]bool)
	for _, tok := range strings.Fields(identity.NormalizeText(b)) {
		setB[tok] = true
	}
	for _, tok := range strings.Fields(identity.NormalizeText(a)) {
		if setB[tok] {
			return true
		}
	}
	return false
}

func hitToFields(hit *searchHit) *models.JobFields {
	fields := &models.JobFields{
		Title:          strings.TrimSpace(hit.Title),
		Company:        strings.TrimSpace(hit.Company.DisplayName),
		Location:       strings.TrimSpace(hit.Location.DisplayName),
		Description:    strings.TrimSpace(hit.Description),
		EmploymentType: normalizeEmploymentType(hit.ContractTime),
		ApplyURL:       hit.RedirectURL,
	}

	if hit.SalaryMin > 0 {
		v := hit.SalaryMin
		fields.SalaryMin = &v
	}
	if hit.SalaryMax > 0 {
		v := hit.SalaryMax
		fields.SalaryMax = &v
	}
	if hit.Created != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, hit.Created); err == nil {
				fields.PostedAt = &ts
				break
			}
		}
	}
	if fields.Description != "" {
		fields.Requirements = ExtractRequirements(fields.Description)
	}

	return fields
}
