package scraper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobscout/config"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

func TestExtract_JSONLD(t *testing.T) {
	e := NewExtractor(nil)
	fields, err := e.Extract(loadFixture(t, "jsonld_posting.html"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if fields.Title != "Backend Engineer" {
		t.Fatalf("title = %q", fields.Title)
	}
	if fields.Company != "Initech" {
		t.Fatalf("company = %q", fields.Company)
	}
	if fields.Location != "Austin, TX, US" {
		t.Fatalf("location = %q", fields.Location)
	}
	if fields.SalaryMin == nil || *fields.SalaryMin != 140000 {
		t.Fatalf("salary min = %v", fields.SalaryMin)
	}
	if fields.SalaryMax == nil || *fields.SalaryMax != 180000 {
		t.Fatalf("salary max = %v", fields.SalaryMax)
	}
	if fields.SalaryCurrency != "USD" {
		t.Fatalf("currency = %q", fields.SalaryCurrency)
	}
	if fields.EmploymentType != "full_time" {
		t.Fatalf("employment type = %q", fields.EmploymentType)
	}
	if fields.PostedAt == nil || fields.PostedAt.Format("2006-01-02") != "2026-08-01" {
		t.Fatalf("posted at = %v", fields.PostedAt)
	}
	if fields.CanonicalURL != "https://careers.initech.example/jobs/4021" {
		t.Fatalf("canonical = %q", fields.CanonicalURL)
	}
	if fields.Requirements == "" {
		t.Fatalf("expected requirements section from description")
	}
}

func TestExtract_Selectors(t *testing.T) {
	profile := &config.SiteProfile{
		ID: "hooli",
		Selectors: config.Selectors{
			Title:       "h1.job-title",
			Company:     "span.employer",
			Location:    "div.job-location",
			Salary:      "div.salary-range",
			Description: "div.job-body",
			PostedDate:  "div.posted",
		},
	}
	e := NewExtractor(profile)
	fixedNow := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return fixedNow })

	fields, err := e.Extract(loadFixture(t, "selector_posting.html"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if fields.Title != "Data Analyst" {
		t.Fatalf("title = %q", fields.Title)
	}
	if fields.Company != "Hooli" {
		t.Fatalf("company = %q", fields.Company)
	}
	if fields.SalaryMin == nil || *fields.SalaryMin != 55000 {
		t.Fatalf("salary min = %v", fields.SalaryMin)
	}
	if fields.SalaryMax == nil || *fields.SalaryMax != 70000 {
		t.Fatalf("salary max = %v", fields.SalaryMax)
	}
	if fields.SalaryCurrency != "EUR" {
		t.Fatalf("currency = %q", fields.SalaryCurrency)
	}
	if fields.EmploymentType != "full_time" {
		t.Fatalf("employment type = %q", fields.EmploymentType)
	}

	wantPosted := fixedNow.AddDate(0, 0, -3)
	if fields.PostedAt == nil || !fields.PostedAt.Equal(wantPosted) {
		t.Fatalf("posted at = %v, want %v", fields.PostedAt, wantPosted)
	}
	if fields.Requirements == "" {
		t.Fatalf("expected requirements from description heading")
	}
}

func TestExtract_Incomplete(t *testing.T) {
	e := NewExtractor(nil)
	fields, err := e.Extract("<html><head><title></title></head><body><p>nothing here</p></body></html>")
	if !errors.Is(err, ErrExtractionIncomplete) {
		t.Fatalf("expected ErrExtractionIncomplete, got %v", err)
	}
	if fields == nil {
		t.Fatalf("partial fields should still be returned")
	}
}

func TestLooksClosed(t *testing.T) {
	if !LooksClosed(loadFixture(t, "closed_posting.html")) {
		t.Fatalf("closed marker not detected")
	}
	if LooksClosed(loadFixture(t, "jsonld_posting.html")) {
		t.Fatalf("live posting flagged as closed")
	}
}

func TestParseSalary(t *testing.T) {
	cases := []struct {
		in       string
		min, max float64
		currency string
	}{
		{"$90,000 - $120,000 a year", 90000, 120000, "USD"},
		{"up to 85k", 85000, 85000, ""},
		{"£45,000", 45000, 45000, "GBP"},
	}
	for _, c := range cases {
		min, max, cur := ParseSalary(c.in)
		if min == nil || max == nil {
			t.Fatalf("ParseSalary(%q) returned nil bounds", c.in)
		}
		if *min != c.min || *max != c.max || cur != c.currency {
			t.Fatalf("ParseSalary(%q) = %v-%v %s, want %v-%v %s",
				c.in, *min, *max, cur, c.min, c.max, c.currency)
		}
	}

	if min, max, _ := ParseSalary("competitive"); min != nil || max != nil {
		t.Fatalf("expected nil bounds for text without amounts")
	}
}

func TestTitleOverlap(t *testing.T) {
	if got := TitleOverlap("Senior Go Engineer", "Senior Go Engineer (Remote)"); got != 1.0 {
		t.Fatalf("full overlap = %v", got)
	}
	if got := TitleOverlap("Senior Go Engineer", "Marketing Manager"); got != 0 {
		t.Fatalf("no overlap = %v", got)
	}
	got := TitleOverlap("Senior Go Engineer", "Go Engineer")
	if got < 0.6 || got > 0.7 {
		t.Fatalf("partial overlap = %v, want 2/3", got)
	}
}
