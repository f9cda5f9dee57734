package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
)

// RetryPolicy bounds the retry loop for rate-limited and 5xx responses
type RetryPolicy struct {
	MaxRetries   uint64
	InitialDelay time.Duration
}

// DefaultRetryPolicy retries twice with delays of roughly 1s then 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialDelay: time.Second}
}

// HTTPClient defines an interface for HTTP client operations to enable mocking
type HTTPClient interface {
	// Get performs a GET request and unmarshals the response into result
	Get(ctx context.Context, url string, headers map[string]string, result interface{}) error

	// GetBytes performs a GET request and returns the raw response body
	GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error)

	// GetStream performs a GET request without retries and returns the
	// response; the caller is responsible for closing the body
	GetStream(ctx context.Context, url string) (*http.Response, error)
}

// RealHTTPClient implements HTTPClient using the standard http package
type RealHTTPClient struct {
	client *http.Client
	policy RetryPolicy
}

// NewHTTPClient creates a new real HTTP client with a per-call timeout
func NewHTTPClient(timeout time.Duration, policy RetryPolicy) HTTPClient {
	return &RealHTTPClient{
		client: &http.Client{Timeout: timeout},
		policy: policy,
	}
}

// GetBytes performs a GET request and returns the raw response body.
// 429 and 5xx responses are retried with exponential backoff up to the
// policy bound; all other non-2xx responses fail immediately.
func (c *RealHTTPClient) GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(domain.Timeout("request deadline exceeded", ctx.Err()))
			}
			// network errors are retryable
			return domain.UpstreamUnavailable("request failed", err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				logger.Warn("failed to close response body", zap.Error(closeErr), zap.String("url", req.URL.String()))
			}
		}()

		if resp.StatusCode == http.StatusTooManyRequests {
			logger.Warn("rate limited, retrying with backoff", zap.String("url", req.URL.String()))
			return domain.RateLimited("rate limited by upstream", nil)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return domain.UpstreamUnavailable(fmt.Sprintf("upstream returned %d", resp.StatusCode), nil)
		}
		if err := permanentStatusError(resp.StatusCode); err != nil {
			return backoff.Permanent(err)
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialDelay
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // bounded by MaxRetries, not wall time

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, c.policy.MaxRetries), ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}

// Get performs a GET request and unmarshals the response into result
func (c *RealHTTPClient) Get(ctx context.Context, url string, headers map[string]string, result interface{}) error {
	respBody, err := c.GetBytes(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetStream performs a single GET request without retries; used for
// streaming image bytes through the proxy
func (c *RealHTTPClient) GetStream(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.UpstreamUnavailable("request failed", err)
	}
	return resp, nil
}

// permanentStatusError maps non-retryable status codes to domain errors.
// Upstream response bodies are deliberately dropped so they never leak
// through error messages.
func permanentStatusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return domain.NotFound("resource not found upstream")
	case status == http.StatusBadRequest:
		return domain.InvalidInput("upstream rejected request parameters")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.Internal(fmt.Sprintf("upstream credential rejected (%d)", status), nil)
	default:
		return domain.UpstreamUnavailable(fmt.Sprintf("unexpected status code %d", status), nil)
	}
}
