// Command poller is the external scrape worker. It runs out of process,
// possibly on another machine: it claims queue entries over the HTTP API,
// resolves them through the structured search API, posts the results back as
// a job batch, then reports each entry's outcome.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"jobscout/httputil"
	"jobscout/models"
	"jobscout/scraper"
)

var (
	pollInterval = flag.Duration("interval", 60*time.Second, "Delay between poll cycles")
	claimLimit   = flag.Int("limit", 10, "Entries to claim per cycle")
	once         = flag.Bool("once", false, "Run one cycle and exit")
)

type worker struct {
	apiURL string
	token  string
	client *http.Client
	search *scraper.SearchTier
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	apiURL := os.Getenv("WORKER_API_URL")
	token := os.Getenv("API_TOKEN")
	if apiURL == "" || token == "" {
		slog.Error("WORKER_API_URL and API_TOKEN must be set")
		os.Exit(1)
	}

	clients := httputil.NewClients()
	w := &worker{
		apiURL: apiURL,
		token:  token,
		client: clients.API,
		search: scraper.NewSearchTier(scraper.SearchConfig{
			BaseURL: envOr("SEARCH_API_URL", "https://api.adzuna.com/v1/api/jobs"),
			AppID:   os.Getenv("SEARCH_APP_ID"),
			AppKey:  os.Getenv("SEARCH_APP_KEY"),
			Country: envOr("SEARCH_COUNTRY", "us"),
		}, clients.API),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("poller starting", "api", apiURL, "interval", *pollInterval)

	for {
		if err := w.cycle(ctx); err != nil {
			slog.Error("poll cycle failed", "error", err)
		}
		if *once {
			return
		}

		select {
		case <-time.After(*pollInterval):
		case <-ctx.Done():
			slog.Info("poller stopping")
			return
		}
	}
}

func (w *worker) cycle(ctx context.Context) error {
	entries, err := w.claimPending(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		slog.Debug("nothing to do")
		return nil
	}

	slog.Info("claimed entries", "count", len(entries))

	for i := range entries {
		entry := &entries[i]
		drafts, err := w.scrapeEntry(ctx, entry)
		if err != nil {
			slog.Warn("entry failed", "id", entry.ID, "error", err)
			w.reportEntry(ctx, entry.ID.String(), models.QueueStatusFailed, err.Error())
			continue
		}

		if len(drafts) > 0 {
			if err := w.postBatch(ctx, drafts); err != nil {
				slog.Warn("batch submit failed", "id", entry.ID, "error", err)
				w.reportEntry(ctx, entry.ID.String(), models.QueueStatusFailed, err.Error())
				continue
			}
		}
		w.reportEntry(ctx, entry.ID.String(), models.QueueStatusCompleted, "")
		slog.Info("entry completed", "id", entry.ID, "drafts", len(drafts))
	}

	return nil
}

func (w *worker) scrapeEntry(ctx context.Context, entry *models.ScrapeQueueEntry) ([]models.JobDraft, error) {
	var payload models.QueuePayload
	if len(entry.Payload) > 0 {
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return nil, fmt.Errorf("bad payload: %w", err)
		}
	}

	term := payload.SearchTerm
	if term == "" && len(entry.URLs) == 0 {
		return nil, fmt.Errorf("entry has no search term and no urls")
	}
	if term == "" {
		// URL-only entries can't be searched; leave them to a human.
		return nil, fmt.Errorf("no search term for url-only entry")
	}

	results, err := w.search.Search(ctx, term, payload.Location)
	if err != nil {
		return nil, err
	}

	siteID := payload.SiteID
	if siteID == "" {
		siteID = "external"
	}

	drafts := make([]models.JobDraft, 0, len(results))
	for _, f := range results {
		url := f.ApplyURL
		if url == "" {
			continue
		}
		drafts = append(drafts, models.JobDraft{
			SiteID:         siteID,
			URL:            url,
			Title:          f.Title,
			Company:        f.Company,
			Location:       f.Location,
			SalaryMin:      f.SalaryMin,
			SalaryMax:      f.SalaryMax,
			SalaryCurrency: f.SalaryCurrency,
			EmploymentType: f.EmploymentType,
			Description:    f.Description,
			Requirements:   f.Requirements,
			PostedAt:       f.PostedAt,
		})
	}
	return drafts, nil
}

func (w *worker) claimPending(ctx context.Context) ([]models.ScrapeQueueEntry, error) {
	var resp struct {
		Jobs []models.ScrapeQueueEntry `json:"jobs"`
	}
	url := fmt.Sprintf("%s/api/v1/scrape-queue/pending?limit=%d", w.apiURL, *claimLimit)
	if err := w.request(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	return resp.Jobs, nil
}

func (w *worker) postBatch(ctx context.Context, drafts []models.JobDraft) error {
	body := map[string]any{"jobs": drafts}

	var result struct {
		TotalReceived int      `json:"total_received"`
		Successful    int      `json:"successful"`
		Failed        int      `json:"failed"`
		Errors        []string `json:"errors"`
	}
	if err := w.request(ctx, http.MethodPost, w.apiURL+"/api/v1/jobs/batch", body, &result); err != nil {
		return err
	}
	if result.Failed > 0 {
		slog.Warn("batch partially rejected",
			"successful", result.Successful, "failed", result.Failed, "errors", result.Errors)
	}
	return nil
}

func (w *worker) reportEntry(ctx context.Context, id, status, errMsg string) {
	body := map[string]string{"status": status}
	if errMsg != "" {
		body["error_message"] = errMsg
	}
	url := fmt.Sprintf("%s/api/v1/scrape-queue/%s", w.apiURL, id)
	if err := w.request(ctx, http.MethodPatch, url, body, nil); err != nil {
		slog.Error("report entry status", "id", id, "status", status, "error", err)
	}
}

func (w *worker) request(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
