package httputil

import (
	"net/http"
	"time"
)

// UserAgent identifies scraping requests to target sites.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

type Clients struct {
	Scraping *http.Client // for target job sites; never follows redirects
	API      *http.Client // for the search API and worker surface
}

func NewClients() *Clients {
	scraping := &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Scraping: scraping,
		API:      &http.Client{Timeout: 30 * time.Second},
	}
}
