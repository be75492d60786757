package source

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	logx "mailblast/pkg/logx"
)

// HTTPDoer is satisfied by *http.Client and retryClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// retryClient retries transient failures with capped exponential backoff
// and jitter. Client errors and context cancellation are returned at once.
type retryClient struct {
	client     HTTPDoer
	log        logx.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newRetryClient(client HTTPDoer, maxRetries int, log logx.Logger) *retryClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryClient{
		client:     client,
		log:        log,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

func (rc *retryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("reset request body: %w", err)
				}
				req.Body = body
			}
			delay := rc.delay(attempt)
			rc.log.Warn("retrying recipient fetch",
				logx.Int("attempt", attempt), logx.Int("max", rc.maxRetries),
				logx.Duration("wait", delay), logx.Err(lastErr))

			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-req.Context().Done():
				t.Stop()
				return nil, lastErr
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}
		if !retryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("server returned retryable status %d", resp.StatusCode)
	}
	return nil, lastErr
}

func (rc *retryClient) delay(attempt int) time.Duration {
	d := float64(rc.baseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(rc.maxDelay) {
		d = float64(rc.maxDelay)
	}
	// +/- 25% jitter
	jitter := d * 0.25 * (2*rand.Float64() - 1)
	return time.Duration(d + jitter)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
