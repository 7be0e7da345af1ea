package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"jobscout/config"
	"jobscout/models"
)

// Extractor pulls posting fields out of raw HTML. Structured data
// (JSON-LD JobPosting) wins when present; the site profile's CSS selectors
// fill whatever it left blank, then generic meta tags are the last resort.
type Extractor struct {
	profile *config.SiteProfile
	now     func() time.Time
}

func NewExtractor(profile *config.SiteProfile) *Extractor {
	return &Extractor{profile: profile, now: time.Now}
}

// SetClock overrides the time source used for relative date parsing.
func (e *Extractor) SetClock(now func() time.Time) {
	e.now = now
}

// Extract parses html and returns whatever fields it could find. The error is
// ErrExtractionIncomplete when title or company is missing; the partial
// fields are still returned alongside it.
func (e *Extractor) Extract(html string) (*models.JobFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	fields := &models.JobFields{}

	if ld := extractJSONLD(doc); ld != nil {
		fields.Merge(ld)
	}

	if e.profile != nil {
		fields.Merge(e.extractSelectors(doc))
	}

	fields.Merge(extractMetaTags(doc))

	if !fields.HasRequired() {
		return fields, ErrExtractionIncomplete
	}
	return fields, nil
}

func (e *Extractor) extractSelectors(doc *goquery.Document) *models.JobFields {
	sel := e.profile.Selectors
	fields := &models.JobFields{}

	fields.Title = selectText(doc, sel.Title)
	fields.Company = selectText(doc, sel.Company)
	fields.Location = selectText(doc, sel.Location)
	fields.Description = selectText(doc, sel.Description)

	if raw := selectText(doc, sel.Salary); raw != "" {
		min, max, currency := ParseSalary(raw)
		fields.SalaryMin = min
		fields.SalaryMax = max
		fields.SalaryCurrency = currency
	}

	if raw := selectText(doc, sel.PostedDate); raw != "" {
		if t := e.parsePostedDate(raw); t != nil {
			fields.PostedAt = t
		}
	}

	if fields.Description != "" {
		fields.Requirements = ExtractRequirements(fields.Description)
		fields.EmploymentType = detectEmploymentType(fields.Description)
	}

	return fields
}

func selectText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// jsonLDPosting mirrors the schema.org JobPosting shape, loosely. Fields that
// sites serve as either string or object are json.RawMessage.
type jsonLDPosting struct {
	Type               json.RawMessage `json:"@type"`
	Graph              json.RawMessage `json:"@graph"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	DatePosted         string          `json:"datePosted"`
	EmploymentType     json.RawMessage `json:"employmentType"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation json.RawMessage `json:"jobLocation"`
	BaseSalary  struct {
		Currency string `json:"currency"`
		Value    struct {
			MinValue *float64 `json:"minValue"`
			MaxValue *float64 `json:"maxValue"`
			Value    *float64 `json:"value"`
		} `json:"value"`
	} `json:"baseSalary"`
	URL string `json:"url"`
}

type jsonLDPlace struct {
	Address struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
		Country  string `json:"addressCountry"`
	} `json:"address"`
}

func extractJSONLD(doc *goquery.Document) *models.JobFields {
	var found *models.JobFields

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		for _, candidate := range jsonLDCandidates(raw) {
			if f := parseJobPosting(candidate); f != nil {
				found = f
				return false
			}
		}
		return true
	})

	return found
}

// jsonLDCandidates flattens a script body into individual objects: a bare
// object, a top-level array, or an @graph wrapper.
func jsonLDCandidates(raw string) []json.RawMessage {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil
		}
		return arr
	}

	var wrapper struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil && len(wrapper.Graph) > 0 {
		return wrapper.Graph
	}

	return []json.RawMessage{json.RawMessage(trimmed)}
}

func parseJobPosting(raw json.RawMessage) *models.JobFields {
	var posting jsonLDPosting
	if err := json.Unmarshal(raw, &posting); err != nil {
		return nil
	}
	if !isJobPostingType(posting.Type) {
		return nil
	}

	fields := &models.JobFields{
		Title:        strings.TrimSpace(posting.Title),
		Company:      strings.TrimSpace(posting.HiringOrganization.Name),
		Description:  htmlToText(posting.Description),
		CanonicalURL: posting.URL,
	}

	fields.Location = jsonLDLocation(posting.JobLocation)
	fields.EmploymentType = normalizeEmploymentType(rawMessageString(posting.EmploymentType))

	if posting.BaseSalary.Value.MinValue != nil || posting.BaseSalary.Value.MaxValue != nil || posting.BaseSalary.Value.Value != nil {
		fields.SalaryCurrency = posting.BaseSalary.Currency
		if posting.BaseSalary.Value.MinValue != nil {
			fields.SalaryMin = posting.BaseSalary.Value.MinValue
		}
		if posting.BaseSalary.Value.MaxValue != nil {
			fields.SalaryMax = posting.BaseSalary.Value.MaxValue
		}
		if fields.SalaryMin == nil && posting.BaseSalary.Value.Value != nil {
			fields.SalaryMin = posting.BaseSalary.Value.Value
			fields.SalaryMax = posting.BaseSalary.Value.Value
		}
	}

	if posting.DatePosted != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, posting.DatePosted); err == nil {
				fields.PostedAt = &t
				break
			}
		}
	}

	if fields.Description != "" {
		fields.Requirements = ExtractRequirements(fields.Description)
	}

	return fields
}

func isJobPostingType(raw json.RawMessage) bool {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single == "JobPosting"
	}
	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		for _, t := range multi {
			if t == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func jsonLDLocation(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var places []jsonLDPlace
	if err := json.Unmarshal(raw, &places); err != nil {
		var place jsonLDPlace
		if err := json.Unmarshal(raw, &place); err != nil {
			return ""
		}
		places = []jsonLDPlace{place}
	}
	if len(places) == 0 {
		return ""
	}

	addr := places[0].Address
	parts := make([]string, 0, 3)
	for _, p := range []string{addr.Locality, addr.Region, addr.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func rawMessageString(raw json.RawMessage) string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil && len(multi) > 0 {
		return multi[0]
	}
	return ""
}

func extractMetaTags(doc *goquery.Document) *models.JobFields {
	fields := &models.JobFields{}

	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		fields.Title = strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok {
		fields.Company = strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		fields.Description = strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		fields.CanonicalURL = strings.TrimSpace(v)
	}
	if fields.Title == "" {
		fields.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return fields
}

// =============================================================================
// Field parsing helpers
// =============================================================================

var salaryNumberRe = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*[kK]?`)

var currencySymbols = map[string]string{
	"$": "USD", "€": "EUR", "£": "GBP", "usd": "USD", "eur": "EUR",
	"gbp": "GBP", "cad": "CAD", "aud": "AUD",
}

// ParseSalary scans free text for numeric amounts and returns the min and max
// of what it found, with a best-effort currency. "k" suffixes multiply by
// 1000; amounts under 1000 are treated as hourly rates and skipped.
func ParseSalary(raw string) (min, max *float64, currency string) {
	lower := strings.ToLower(raw)
	for symbol, code := range currencySymbols {
		if strings.Contains(lower, symbol) {
			currency = code
			break
		}
	}

	var amounts []float64
	for _, m := range salaryNumberRe.FindAllString(raw, -1) {
		hasK := strings.HasSuffix(strings.ToLower(strings.TrimSpace(m)), "k")
		numStr := strings.TrimRight(strings.TrimSpace(m), "kK")
		numStr = strings.ReplaceAll(numStr, ",", "")
		v, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			continue
		}
		if hasK {
			v *= 1000
		}
		if v < 1000 {
			continue
		}
		amounts = append(amounts, v)
	}

	if len(amounts) == 0 {
		return nil, nil, currency
	}

	lo, hi := amounts[0], amounts[0]
	for _, v := range amounts[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return &lo, &hi, currency
}

var relativeDateRe = regexp.MustCompile(`(?i)(\d+)\s*(hour|day|week|month)s?\s+ago`)

// parsePostedDate handles absolute dates in common layouts plus relative
// phrases like "3 days ago".
func (e *Extractor) parsePostedDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)

	for _, layout := range []string{time.RFC3339, "2006-01-02", "Jan 2, 2006", "January 2, 2006", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}

	if strings.EqualFold(raw, "today") || strings.EqualFold(raw, "just posted") {
		t := e.now()
		return &t
	}
	if strings.EqualFold(raw, "yesterday") {
		t := e.now().AddDate(0, 0, -1)
		return &t
	}

	m := relativeDateRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}

	var t time.Time
	switch strings.ToLower(m[2]) {
	case "hour":
		t = e.now().Add(-time.Duration(n) * time.Hour)
	case "day":
		t = e.now().AddDate(0, 0, -n)
	case "week":
		t = e.now().AddDate(0, 0, -7*n)
	case "month":
		t = e.now().AddDate(0, -n, 0)
	}
	return &t
}

var requirementsHeadingRe = regexp.MustCompile(`(?i)^\s*(requirements|qualifications|what you.ll need|what we.re looking for|skills)\b`)

// ExtractRequirements pulls the requirements section out of a description by
// heading. Returns empty when no heading is found.
func ExtractRequirements(description string) string {
	lines := strings.Split(description, "\n")
	var out []string
	capturing := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if requirementsHeadingRe.MatchString(trimmed) {
			capturing = true
			continue
		}
		if capturing {
			// A new heading ends the section.
			if trimmed != "" && !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "*") &&
				len(trimmed) < 60 && strings.HasSuffix(trimmed, ":") {
				break
			}
			out = append(out, line)
		}
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

var employmentTypes = []struct {
	keyword string
	value   string
}{
	{"full-time", "full_time"},
	{"full time", "full_time"},
	{"part-time", "part_time"},
	{"part time", "part_time"},
	{"contract", "contract"},
	{"internship", "internship"},
	{"intern ", "internship"},
	{"temporary", "temporary"},
	{"freelance", "contract"},
}

func detectEmploymentType(text string) string {
	lower := strings.ToLower(text)
	for _, et := range employmentTypes {
		if strings.Contains(lower, et.keyword) {
			return et.value
		}
	}
	return ""
}

func normalizeEmploymentType(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "FULL_TIME", "FULLTIME":
		return "full_time"
	case "PART_TIME", "PARTTIME":
		return "part_time"
	case "CONTRACTOR", "CONTRACT":
		return "contract"
	case "TEMPORARY":
		return "temporary"
	case "INTERN", "INTERNSHIP":
		return "internship"
	case "":
		return ""
	default:
		return strings.ToLower(raw)
	}
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	htmlBreakRe  = regexp.MustCompile(`(?i)<(br|/p|/li|/h[1-6]|/div)[^>]*>`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
)

// htmlToText strips markup from an HTML fragment, keeping line structure.
func htmlToText(fragment string) string {
	if fragment == "" {
		return ""
	}
	text := htmlBreakRe.ReplaceAllString(fragment, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = multiBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var closedPhrases = []string{
	"no longer accepting applications",
	"this position has been filled",
	"this job has expired",
	"job posting has closed",
	"posting is no longer available",
	"this vacancy is closed",
}

// LooksClosed reports whether page text contains a closed-posting marker.
func LooksClosed(html string) bool {
	lower := strings.ToLower(html)
	for _, phrase := range closedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// RenderMarkdown produces the extract.md artifact from extracted fields.
func RenderMarkdown(fields *models.JobFields) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", fields.Title)
	if fields.Company != "" {
		fmt.Fprintf(&b, "**Company:** %s\n\n", fields.Company)
	}
	if fields.Location != "" {
		fmt.Fprintf(&b, "**Location:** %s\n\n", fields.Location)
	}
	if fields.SalaryMin != nil {
		if fields.SalaryMax != nil && *fields.SalaryMax != *fields.SalaryMin {
			fmt.Fprintf(&b, "**Salary:** %.0f - %.0f %s\n\n", *fields.SalaryMin, *fields.SalaryMax, fields.SalaryCurrency)
		} else {
			fmt.Fprintf(&b, "**Salary:** %.0f %s\n\n", *fields.SalaryMin, fields.SalaryCurrency)
		}
	}
	if fields.EmploymentType != "" {
		fmt.Fprintf(&b, "**Type:** %s\n\n", fields.EmploymentType)
	}
	if fields.Description != "" {
		fmt.Fprintf(&b, "## Description\n\n%s\n", fields.Description)
	}
	if fields.Requirements != "" {
		fmt.Fprintf(&b, "\n## Requirements\n\n%s\n", fields.Requirements)
	}

	return b.String()
}
