package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"hlpulse/internal/errs"
)

const snapshotFetchDeadline = 30 * time.Second

// HTTPFetcher implements Fetcher by calling the Scraper's GET /internal/snapshot
// endpoint (§4.3, §6).
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher builds a Fetcher targeting baseURL, e.g. "http://scraper:8090".
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{baseURL: baseURL, client: &http.Client{Timeout: snapshotFetchDeadline}}
}

func (f *HTTPFetcher) FetchSnapshot(ctx context.Context) (*RegistrySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotFetchDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/internal/snapshot", nil)
	if err != nil {
		return nil, &errs.ProtocolError{Component: "bootstrap.http", Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Component: "bootstrap.http", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.TransportError{Component: "bootstrap.http", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var snap RegistrySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, &errs.ProtocolError{Component: "bootstrap.http", Err: err}
	}
	return &snap, nil
}
