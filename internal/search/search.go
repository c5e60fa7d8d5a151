// Package search is the literature-search collaborator boundary: query in,
// ranked results out. The provider behind it is external and has its own
// cost and latency; failures and timeouts surface as collaborator errors so
// the caller can degrade rather than silently answer with nothing.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"lab-notebook/notebook_go/pkg/errs"
)

// Result is one ranked literature hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is the synchronous call/response contract the notebook consumes.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// HTTPSearcher calls a JSON search endpoint (GET ?q=...&limit=...).
type HTTPSearcher struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

func (s *HTTPSearcher) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint %q: %w", s.Endpoint, err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &errs.CollaboratorTimeoutError{Collaborator: "literature search", Timeout: timeout}
		}
		return nil, &errs.CollaboratorFailureError{Collaborator: "literature search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.CollaboratorFailureError{
			Collaborator: "literature search",
			Err:          fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	var payload struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &errs.CollaboratorFailureError{
			Collaborator: "literature search",
			Err:          fmt.Errorf("failed to decode provider response: %w", err),
		}
	}
	if len(payload.Results) > maxResults {
		payload.Results = payload.Results[:maxResults]
	}
	return payload.Results, nil
}
