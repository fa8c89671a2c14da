package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultSearchTopN    = 5
	DefaultSearchTimeout = 10 * time.Second
)

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
}

// SearchOutcome is StatusOK with Results, or StatusUnavailable with none.
type SearchOutcome struct {
	Status  Status
	Results []SearchResult
}

func (o SearchOutcome) Available() bool { return o.Status == StatusOK }

// WebSearcher queries a SearXNG-compatible /search endpoint.
type WebSearcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewWebSearcher(client *http.Client, timeout time.Duration, logger *slog.Logger) *WebSearcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	return &WebSearcher{client: client, timeout: timeout, logger: logger}
}

type searxResponse struct {
	Results []struct {
		Title   *string `json:"title"`
		URL     *string `json:"url"`
		Content *string `json:"content"`
		Engine  *string `json:"engine"`
	} `json:"results"`
}

// Search returns the first topN upstream results in upstream order. Every
// failure is reported as StatusUnavailable.
func (s *WebSearcher) Search(ctx context.Context, endpoint, query string, topN int) SearchOutcome {
	if topN <= 0 {
		topN = DefaultSearchTopN
	}
	results, err := s.search(ctx, endpoint, query)
	if err != nil {
		s.logger.Warn("web search unavailable", "endpoint", endpoint, "error", err)
		return SearchOutcome{Status: StatusUnavailable}
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return SearchOutcome{Status: StatusOK, Results: results}
}

func (s *WebSearcher) search(ctx context.Context, endpoint, query string) ([]SearchResult, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("no search endpoint configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var body searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, SearchResult{
			Title:   deref(r.Title),
			URL:     deref(r.URL),
			Snippet: deref(r.Content),
			Engine:  deref(r.Engine),
		})
	}
	return results, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
