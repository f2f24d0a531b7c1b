package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"token-vetting/internal/domain"
)

// Default transport configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
	DefaultBackoffMult = 2.0

	maxBodyBytes = 4 << 20
)

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// retryable reports whether the status is worth another attempt.
func (e *HTTPError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTPClient performs provider GETs with retries and exponential backoff.
type HTTPClient struct {
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	headers     map[string]string
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) ClientOption {
	return func(c *HTTPClient) {
		c.headers[key] = value
	}
}

// NewHTTPClient creates a provider HTTP client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		headers:     map[string]string{"Accept": "application/json"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON fetches url and decodes the body into out.
// 4xx responses other than 429 are not retried.
func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

// postJSON sends body as JSON to url and decodes the response into out.
func (c *HTTPClient) postJSON(ctx context.Context, url string, body []byte, out any) error {
	return c.doJSON(ctx, http.MethodPost, url, body, out)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, payload []byte, out any) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			httpErr := &HTTPError{Status: resp.StatusCode, Body: truncate(string(body), 256)}
			if !httpErr.retryable() {
				return httpErr
			}
			lastErr = httpErr
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			// Malformed payloads are not retried
			return fmt.Errorf("%w: unmarshal response: %v", domain.ErrProviderError, err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// classify maps a transport error onto the domain error kinds.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrDataUnavailable) || errors.Is(err, domain.ErrProviderError) || errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, domain.ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", provider, domain.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", provider, domain.ErrDataUnavailable)
	}
	return fmt.Errorf("%s: %w: %v", provider, domain.ErrProviderError, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
