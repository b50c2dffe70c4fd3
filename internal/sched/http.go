package sched

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/calder/savewatch/internal/logging"
)

// HTTPRequest downloads a URL and hands the body to a consumer. It is the
// stock Request used for remote assets (peer avatars, remote manifests).
// Timeouts report OutcomeTimedOut so the scheduler retries after cooldown;
// HTTP-level failures are abandoned.
type HTTPRequest struct {
	url     string
	client  *http.Client
	timeout time.Duration
	consume func(body []byte)
}

// NewHTTPRequest creates an HTTPRequest with its own per-attempt timeout.
// consume receives the response body on success and may be nil.
func NewHTTPRequest(url string, timeout time.Duration, consume func(body []byte)) *HTTPRequest {
	return &HTTPRequest{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		consume: consume,
	}
}

// URL returns the request's dedup identity.
func (r *HTTPRequest) URL() string {
	return r.url
}

// Run performs the download and reports exactly once.
func (r *HTTPRequest) Run(report func(Outcome)) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		report(OutcomeAbandoned)
		return
	}
	req.Header.Set("User-Agent", "savewatch/0.1 (https://github.com/calder/savewatch)")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			report(OutcomeTimedOut)
			return
		}
		logging.Debug("asset request failed", "url", r.url, "error", err)
		report(OutcomeTimedOut)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Retry server-side trouble, give up on anything the server
		// answered deliberately.
		if resp.StatusCode >= 500 {
			report(OutcomeTimedOut)
			return
		}
		logging.Debug("asset request rejected", "url", r.url, "status", resp.StatusCode)
		report(OutcomeAbandoned)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		report(OutcomeTimedOut)
		return
	}
	if r.consume != nil {
		r.consume(body)
	}
	report(OutcomeCompleted)
}
