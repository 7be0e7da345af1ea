package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"jobscout/models"
)

func searchServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("app_id") == "" {
			t.Errorf("missing app_id in request")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

const searchHitBody = `{
	"count": 1,
	"results": [{
		"id": "abc123",
		"title": "Data Analyst",
		"description": "Insights team role.",
		"company": {"display_name": "Hooli Inc"},
		"location": {"display_name": "Remote"},
		"salary_min": 55000,
		"salary_max": 70000,
		"redirect_url": "https://agg.example/r/abc123",
		"created": "2026-08-20T00:00:00Z",
		"contract_time": "full_time"
	}]
}`

func TestSearchTier_ConfidentMatch(t *testing.T) {
	srv := searchServer(t, searchHitBody)
	defer srv.Close()

	tier := NewSearchTier(SearchConfig{
		BaseURL: srv.URL, AppID: "id", AppKey: "key", Country: "us",
	}, srv.Client())

	target := &Target{Job: &models.JobRecord{
		ID:      uuid.New(),
		Title:   "Data Analyst",
		Company: "Hooli",
	}}

	result, err := tier.Attempt(context.Background(), target)
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if result.Outcome != OutcomeResolved {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if result.Fields.Company != "Hooli Inc" {
		t.Fatalf("company = %q", result.Fields.Company)
	}
	if result.Fields.SalaryMin == nil || *result.Fields.SalaryMin != 55000 {
		t.Fatalf("salary min = %v", result.Fields.SalaryMin)
	}
	if result.Fields.ApplyURL != "https://agg.example/r/abc123" {
		t.Fatalf("apply url = %q", result.Fields.ApplyURL)
	}
}

func TestSearchTier_RejectsWeakMatch(t *testing.T) {
	srv := searchServer(t, searchHitBody)
	defer srv.Close()

	tier := NewSearchTier(SearchConfig{
		BaseURL: srv.URL, AppID: "id", AppKey: "key", Country: "us",
	}, srv.Client())

	// Same title overlap but wholly different company.
	target := &Target{Job: &models.JobRecord{
		ID:      uuid.New(),
		Title:   "Data Analyst",
		Company: "Initech",
	}}

	_, err := tier.Attempt(context.Background(), target)
	if !errors.Is(err, ErrExtractionIncomplete) {
		t.Fatalf("expected ErrExtractionIncomplete for weak match, got %v", err)
	}
}

func TestSearchTier_NoCredentials(t *testing.T) {
	tier := NewSearchTier(SearchConfig{BaseURL: "http://unused"}, nil)
	target := &Target{Job: &models.JobRecord{Title: "x", Company: "y"}}

	_, err := tier.Attempt(context.Background(), target)
	if !errors.Is(err, ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch without credentials, got %v", err)
	}
}
