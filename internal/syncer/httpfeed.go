package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// HTTPFeed fetches incremental batches from a JSON endpoint:
//
//	GET <endpoint>?modified_since=<cursor>&limit=<n>
//	→ {"records":[{"id":"...","data":{...}}, ...], "next_cursor":"..."}
//
// Errors are classified the same way the downstream adapter classifies them,
// so the retry executor handles feed hiccups with the shared policy.
type HTTPFeed struct {
	name       string
	resource   string
	endpoint   string
	httpClient *http.Client
}

func NewHTTPFeed(name, resource, endpoint string, timeout time.Duration) *HTTPFeed {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFeed{
		name:       name,
		resource:   resource,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFeed) Name() string     { return f.name }
func (f *HTTPFeed) Resource() string { return f.resource }

type feedRecord struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type feedResponse struct {
	Records    []feedRecord `json:"records"`
	NextCursor string       `json:"next_cursor"`
}

func (f *HTTPFeed) FetchSince(ctx context.Context, cursor string, limit int) ([]domain.SyncRecord, string, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, "", &domain.IntegrationError{Err: fmt.Errorf("parsing feed endpoint: %w", err)}
	}
	q := u.Query()
	if cursor != "" {
		q.Set("modified_since", cursor)
	}
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", &domain.IntegrationError{Err: fmt.Errorf("building feed request: %w", err)}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", &domain.IntegrationError{Retryable: true, Err: fmt.Errorf("feed request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, "", &domain.IntegrationError{
			Retryable:  true,
			RetryAfter: time.Duration(retryAfter) * time.Second,
			Err:        fmt.Errorf("feed rate limited (429)"),
		}
	case resp.StatusCode >= 500:
		return nil, "", &domain.IntegrationError{Retryable: true, Err: fmt.Errorf("feed returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, "", &domain.IntegrationError{Err: fmt.Errorf("feed returned %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, "", &domain.IntegrationError{Retryable: true, Err: fmt.Errorf("reading feed response: %w", err)}
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", &domain.IntegrationError{Err: fmt.Errorf("decoding feed response: %w", err)}
	}

	records := make([]domain.SyncRecord, 0, len(parsed.Records))
	for _, rec := range parsed.Records {
		records = append(records, domain.SyncRecord{ID: rec.ID, Data: rec.Data})
	}

	next := parsed.NextCursor
	if next == "" {
		next = cursor
	}
	return records, next, nil
}
