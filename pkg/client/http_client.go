package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claimtech/dialler/pkg/circuitbreaker"
	"github.com/claimtech/dialler/pkg/metrics"
	"github.com/claimtech/dialler/pkg/retry"
)

// HTTPClient wraps http.Client with retry and circuit breaker
type HTTPClient struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	serviceName    string
}

// NewHTTPClient creates a new HTTP client with retry and circuit breaker
func NewHTTPClient(serviceName string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		serviceName:    serviceName,
	}
}

// PostJSON performs a JSON POST with retry and circuit breaker
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, body interface{}) (*http.Response, error) {
	return c.do(ctx, func() (*http.Request, error) {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, nil)
}

// PostForm performs a form-encoded POST with retry and circuit breaker.
// Telephony provider REST APIs are form-encoded.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, authorize func(*http.Request)) (*http.Response, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, authorize)
}

func (c *HTTPClient) do(ctx context.Context, build func() (*http.Request, error), authorize func(*http.Request)) (*http.Response, error) {
	start := time.Now()
	var resp *http.Response

	err := c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, retry.DefaultConfig(), func() error {
			req, err := build()
			if err != nil {
				return err
			}
			if authorize != nil {
				authorize(req)
			}

			resp, err = c.client.Do(req)
			if err != nil {
				return err
			}

			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return fmt.Errorf("server error: %d", resp.StatusCode)
			}
			return nil
		})
	})

	latency := time.Since(start)
	success := err == nil && resp != nil && resp.StatusCode < 400
	metrics.RecordServiceCall(c.serviceName, success, latency)
	metrics.UpdateCircuitBreaker(c.serviceName, c.circuitBreaker.GetState().String(), int64(c.circuitBreaker.Failures()))

	if err != nil {
		return nil, err
	}
	return resp, nil
}
