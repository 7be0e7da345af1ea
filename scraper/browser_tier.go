package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"jobscout/httputil"
	"jobscout/models"
)

const maxFetchBody = 5 << 20

// BrowserTier re-fetches a posting at its own URL. It tries a plain HTTP GET
// first and falls back to a headless render when the response looks like a
// JavaScript shell. Rendered pages also yield screenshot and PDF artifacts.
type BrowserTier struct {
	clients *httputil.Clients
	timeout time.Duration

	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	initialized bool
}

func NewBrowserTier(clients *httputil.Clients, timeout time.Duration) *BrowserTier {
	return &BrowserTier{clients: clients, timeout: timeout}
}

func (t *BrowserTier) Name() string { return "browser" }

func (t *BrowserTier) Attempt(ctx context.Context, target *Target) (*TierResult, error) {
	url := target.Job.URL
	if target.Job.CanonicalURL != "" {
		url = target.Job.CanonicalURL
	}

	result, err := t.fetchPlain(ctx, url)
	// Gone pages are a definitive closed signal, not a failure.
	if errors.Is(err, ErrPostingClosed) {
		result.Closed = true
		result.Outcome = OutcomeResolved
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	html := string(result.Artifacts.HTML)
	if needsRender(html) {
		rendered, rerr := t.render(ctx, url)
		if rerr != nil {
			slog.Warn("headless render failed, keeping plain fetch", "url", url, "error", rerr)
		} else {
			result = rendered
			html = string(result.Artifacts.HTML)
		}
	}

	if LooksClosed(html) {
		result.Closed = true
	}

	extractor := NewExtractor(target.Profile)
	fields, xerr := extractor.Extract(html)
	if fields != nil {
		fields.Merge(result.Fields)
	}
	result.Fields = fields

	if xerr != nil && !result.Closed {
		return result, xerr
	}

	result.Outcome = OutcomeResolved
	if fields != nil {
		result.Artifacts.Markdown = []byte(RenderMarkdown(fields))
	}
	return result, nil
}

func (t *BrowserTier) fetchPlain(ctx context.Context, rawURL string) (*TierResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// The scraping client never follows redirects itself; chase them here so
	// the final hop's URL is observable as the canonical location.
	current := rawURL
	var resp *http.Response
	for hop := 0; hop < 5; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", httputil.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err = t.clients.Scraping.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w: %v", current, ErrTransientFetch, err)
		}

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			break
		}

		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return nil, fmt.Errorf("fetch %s: redirect without location: %w", current, ErrTransientFetch)
		}
		next, err := resp.Request.URL.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: bad redirect %q: %w", current, loc, ErrTransientFetch)
		}
		current = next.String()
		resp = nil
	}
	if resp == nil {
		return nil, fmt.Errorf("fetch %s: too many redirects: %w", rawURL, ErrTransientFetch)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("fetch %s: status %d: %w", current, resp.StatusCode, ErrSiteAuth)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("fetch %s: status %d: %w", current, resp.StatusCode, ErrTransientFetch)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", current, ErrTransientFetch, err)
	}

	result := &TierResult{
		HTTPStatus: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
	}
	if current != rawURL {
		result.Fields = &models.JobFields{CanonicalURL: current}
	}
	result.Artifacts.HTML = body

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return result, fmt.Errorf("fetch %s: status %d: %w", current, resp.StatusCode, ErrPostingClosed)
	}
	return result, nil
}

// needsRender guesses whether the document is an empty client-side shell.
func needsRender(html string) bool {
	if len(html) < 2048 {
		return true
	}
	lower := strings.ToLower(html)
	if !strings.Contains(lower, "<body") {
		return true
	}
	body := lower[strings.Index(lower, "<body"):]
	return strings.Count(body, "<script") > 0 && len(body) < 4096
}

func (t *BrowserTier) render(ctx context.Context, url string) (*TierResult, error) {
	if err := t.ensureBrowser(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	page, err := t.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	defer page.Close()

	deadline := t.timeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(deadline.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w: %v", url, ErrTransientFetch, err)
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("page content: %w", err)
	}

	result := &TierResult{}
	result.Artifacts.HTML = []byte(html)
	if resp != nil {
		result.HTTPStatus = resp.Status()
	}

	if png, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	}); err == nil {
		result.Artifacts.Screenshot = png
	} else {
		slog.Warn("screenshot failed", "url", url, "error", err)
	}

	if pdf, err := page.PDF(playwright.PagePdfOptions{}); err == nil {
		result.Artifacts.PDF = pdf
	} else {
		slog.Debug("pdf capture failed", "url", url, "error", err)
	}

	return result, nil
}

func (t *BrowserTier) ensureBrowser() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launch browser: %w", err)
	}

	t.pw = pw
	t.browser = browser
	t.initialized = true
	return nil
}

func (t *BrowserTier) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browser != nil {
		t.browser.Close()
		t.browser = nil
	}
	if t.pw != nil {
		t.pw.Stop()
		t.pw = nil
	}
	t.initialized = false
}
