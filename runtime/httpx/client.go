// Package httpx provides the resilient bearer-auth JSON client shared by all
// capability services. Every request is stamped with the X-Tenant-Id header
// of the tenant that will own the touched resource: the ambient tenant when
// invoked from workflow or activity code, the agent's default tenant
// otherwise, or no header at all.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xians-ai/sdk-go/runtime/runctx"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

// TenantHeader is the mandatory tenant stamp on outbound requests.
const TenantHeader = "X-Tenant-Id"

const bodyExcerptLimit = 512

// ErrNotFound reports a 404 from the backend. Services map it onto nil/false
// results per their contracts.
var ErrNotFound = errors.New("resource not found")

type (
	// Config tunes the shared client.
	Config struct {
		// BaseURL is the backend root, e.g. "https://api.example.com".
		BaseURL string
		// APIKey is sent as a bearer token on every request.
		APIKey string
		// DefaultTenant stamps requests issued outside workflow and
		// activity code. Empty omits the header.
		DefaultTenant string
		// MaxAttempts caps tries per request, including the first.
		// Zero means 3.
		MaxAttempts int
		// RetryBaseDelay seeds the exponential backoff. Zero means 500ms.
		RetryBaseDelay time.Duration
		// Timeout bounds each attempt. Zero means 30s.
		Timeout time.Duration
		// MaxConnsPerHost caps pooled connections per host. Zero means 10.
		MaxConnsPerHost int
		// IdleConnTimeout evicts idle pooled connections. Zero means 90s.
		IdleConnTimeout time.Duration
		// HealthPath is probed by Healthy. Empty means "/health".
		HealthPath string
		// HealthCacheInterval caches probe outcomes. Zero means 30s.
		HealthCacheInterval time.Duration

		Logger  telemetry.Logger
		Metrics telemetry.Metrics
	}

	// Client is safe for concurrent use and shared across all services of a
	// platform.
	Client struct {
		rc        *resty.Client
		transport *http.Transport
		cfg       Config
		logger    telemetry.Logger
		metrics   telemetry.Metrics

		healthMu      sync.Mutex
		healthChecked time.Time
		healthErr     error
	}

	// StatusError reports a non-2xx response that is not a 404.
	StatusError struct {
		Status int
		// BodyExcerpt holds the leading bytes of the response body.
		BodyExcerpt string
	}
)

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.BodyExcerpt)
}

// New constructs the client. The configuration is validated lazily: a bad
// base URL surfaces on first request.
func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 10
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.HealthCacheInterval <= 0 {
		cfg.HealthCacheInterval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}

	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}

	rc := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxAttempts - 1).
		SetRetryWaitTime(cfg.RetryBaseDelay).
		SetRetryMaxWaitTime(cfg.RetryBaseDelay * 8).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return isTransient(resp, err)
		})
	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if tenant := c.tenantFor(req.Context()); tenant != "" {
			req.SetHeader(TenantHeader, tenant)
		}
		return nil
	})
	c.rc = rc
	return c
}

// tenantFor resolves the header value: ambient tenant first, agent default
// second, otherwise empty.
func (c *Client) tenantFor(ctx context.Context) string {
	if tenant, err := runctx.TenantID(ctx); err == nil && tenant != "" {
		return tenant
	}
	return c.cfg.DefaultTenant
}

// isTransient classifies retryable failures: transport errors and timeouts,
// plus HTTP 408, 429, and 5xx. Context cancellation is terminal.
func isTransient(resp *resty.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		var urlErr *url.Error
		return errors.As(err, &urlErr)
	}
	if resp == nil {
		return false
	}
	status := resp.StatusCode()
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

// Get issues a GET and decodes a 2xx body into out when out is non-nil.
// 404 maps to ErrNotFound.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	req := c.rc.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(path)
	return c.finish(ctx, resp, err)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	req := c.rc.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	return c.finish(ctx, resp, err)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	req := c.rc.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Put(path)
	return c.finish(ctx, resp, err)
}

// Delete issues a DELETE. 404 maps to ErrNotFound so callers can report
// "nothing deleted" without treating it as a failure.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) error {
	req := c.rc.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	resp, err := req.Delete(path)
	return c.finish(ctx, resp, err)
}

func (c *Client) finish(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		c.metrics.IncCounter("http_client_errors", 1)
		return fmt.Errorf("backend request: %w", err)
	}
	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		excerpt := string(resp.Body())
		if len(excerpt) > bodyExcerptLimit {
			excerpt = excerpt[:bodyExcerptLimit]
		}
		c.logger.Warn(ctx, "backend request failed",
			"status", status, "url", resp.Request.URL)
		return &StatusError{Status: status, BodyExcerpt: excerpt}
	}
}

// Healthy probes the backend health endpoint, caching the outcome for the
// configured interval.
func (c *Client) Healthy(ctx context.Context) error {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	if time.Since(c.healthChecked) < c.cfg.HealthCacheInterval {
		return c.healthErr
	}
	resp, err := c.rc.R().SetContext(ctx).Get(c.cfg.HealthPath)
	switch {
	case err != nil:
		c.healthErr = fmt.Errorf("health probe: %w", err)
	case resp.StatusCode() >= 300:
		c.healthErr = &StatusError{Status: resp.StatusCode()}
	default:
		c.healthErr = nil
	}
	c.healthChecked = time.Now()
	return c.healthErr
}

// ForceReconnect tears down pooled connections so the next request dials
// fresh. The cached health state is reset as well.
func (c *Client) ForceReconnect() {
	c.transport.CloseIdleConnections()
	c.healthMu.Lock()
	c.healthChecked = time.Time{}
	c.healthMu.Unlock()
}
