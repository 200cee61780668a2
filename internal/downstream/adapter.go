// Package downstream holds the outbound integration adapters. Adapters own
// error classification: the retry executor consumes the classification but
// never second-guesses it.
package downstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Johnobhoy88/integration-core/internal/domain"
)

// Adapter is one downstream integration. Resource names the rate-limit
// bucket and circuit the adapter's calls are governed by.
type Adapter interface {
	Resource() string
	Call(ctx context.Context, ev domain.InboundEvent) error
}

// HTTPAdapter forwards the event payload to a downstream HTTP endpoint and
// classifies the response:
//
//	2xx            → success
//	429            → retryable, honoring Retry-After
//	408, 5xx, net  → retryable
//	other 4xx      → terminal
type HTTPAdapter struct {
	resource   string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPAdapter(resource, endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdapter{
		resource:   resource,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (a *HTTPAdapter) Resource() string { return a.resource }

func (a *HTTPAdapter) Call(ctx context.Context, ev domain.InboundEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(ev.Payload))
	if err != nil {
		return &domain.IntegrationError{
			Err: fmt.Errorf("building downstream request: %w", err),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Event-Type", ev.EventType)
	req.Header.Set("X-Event-Source", string(ev.SourceType))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &domain.IntegrationError{
			Retryable: true,
			Err:       fmt.Errorf("downstream request failed: %w", err),
		}
	}
	defer resp.Body.Close()

	// Limit response read to 1KB; the body is only used for error context.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.IntegrationError{
			Retryable:  true,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("downstream rate limited (429)"),
		}

	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &domain.IntegrationError{
			Retryable: true,
			Err:       fmt.Errorf("downstream returned %d: %s", resp.StatusCode, truncate(body, 200)),
		}

	default:
		return &domain.IntegrationError{
			Err: fmt.Errorf("downstream rejected request with %d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
