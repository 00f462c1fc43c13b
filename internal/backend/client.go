// Package backend is the client for the shop's REST API: catalog, carts,
// orders, exchange rate, users and stats.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mrz1836/paycart/internal/chain"
	"github.com/mrz1836/paycart/internal/metrics"
	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20

	// breaker trips after this many consecutive server-side failures
	breakerFailures = 5
	breakerCooldown = 30 * time.Second

	limiterKey = "backend"
)

// LogWriter is the logging surface the client needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Client.
type Options struct {
	BaseURL      string
	AdminToken   string
	FeedbackHook string
	HTTPClient   *http.Client
	Timeout      time.Duration
	// RetryAttempts applies to GET requests only; writes are sent once.
	RetryAttempts int
	RetryDelay    time.Duration
	RateLimiter   *chain.RateLimiter
	Logger        LogWriter
}

// Client talks to the shop backend.
type Client struct {
	baseURL      string
	adminToken   string
	feedbackHook string
	httpClient   *http.Client
	retry        chain.RetryConfig
	limiter      *chain.RateLimiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	logger       LogWriter
}

// NewClient returns a backend client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, paycarterr.WithDetails(paycarterr.ErrConfigInvalid, map[string]string{"backend.base_url": "not set"})
	}

	c := &Client{
		baseURL:      base,
		adminToken:   opts.AdminToken,
		feedbackHook: opts.FeedbackHook,
		httpClient:   opts.HTTPClient,
		limiter:      opts.RateLimiter,
		logger:       opts.Logger,
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}

	c.retry = chain.DefaultRetryConfig()
	if opts.RetryAttempts > 0 {
		c.retry.MaxAttempts = opts.RetryAttempts
	}
	if opts.RetryDelay > 0 {
		c.retry.BaseDelay = opts.RetryDelay
		c.retry.MaxDelay = 4 * opts.RetryDelay
	}
	c.retry.OnRetry = func(attempt int, err error) {
		c.logger.Debug("backend: attempt %d failed, retrying: %v", attempt, err)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isServerFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Error("backend: circuit %s %s -> %s", name, from, to)
		},
	})

	return c, nil
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one API call.
type request struct {
	method string
	path   string // appended to the base URL unless url is set
	url    string
	body   any
	admin  bool
}

// serverFault marks failures that count against the circuit breaker and
// may be retried for idempotent requests.
type serverFault struct {
	err error
}

func (e *serverFault) Error() string { return e.err.Error() }
func (e *serverFault) Unwrap() error { return e.err }

func isServerFault(err error) bool {
	var sf *serverFault
	return errors.As(err, &sf)
}

// do performs the request and decodes the JSON response into out (when
// non-nil). GETs are retried on server faults and rate limiting.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	retry := chain.NoRetry()
	if r.method == http.MethodGet {
		retry = c.retry
	}

	var last error
	body, err := chain.RetryWithConfig(ctx, retry, func() ([]byte, error) {
		b, callErr := c.attempt(ctx, r, payload)
		last = callErr
		if callErr != nil && isServerFault(callErr) {
			return nil, chain.WrapRetryable(callErr)
		}
		return b, callErr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if last != nil {
			return last
		}
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrBackend, err), map[string]string{
			"path":   r.path,
			"reason": "malformed response body",
		})
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, r request, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, r, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, paycarterr.WithSuggestion(
			paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrNetworkError, err), map[string]string{"circuit": "open"}),
			"The backend is failing repeatedly; try again in a minute",
		)
	}
	metrics.Global.RecordBackendRequest(err)
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, r request, payload []byte) ([]byte, error) {
	target := r.url
	if target == "" {
		target = c.baseURL + r.path
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.admin {
		if c.adminToken == "" {
			return nil, paycarterr.WithSuggestion(paycarterr.ErrAuthentication,
				"Set backend.admin_token or PAYCART_ADMIN_TOKEN")
		}
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // URL is built from config
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &serverFault{err: paycarterr.WithDetails(paycarterr.WithCause(paycarterr.ErrNetworkError, err), map[string]string{
			"method": r.method,
			"path":   r.path,
		})}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &serverFault{err: paycarterr.WithCause(paycarterr.ErrNetworkError, err)}
	}
	c.logger.Debug("backend: %s %s -> %d in %s", r.method, r.path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(r, resp, body)
}

func statusError(r request, resp *http.Response, body []byte) error {
	details := map[string]string{
		"method": r.method,
		"path":   r.path,
		"status": strconv.Itoa(resp.StatusCode),
	}
	if msg := errorMessage(body); msg != "" {
		details["detail"] = msg
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return paycarterr.WithDetails(paycarterr.ErrNotFound, details)
	case resp.StatusCode == http.StatusUnauthorized:
		return paycarterr.WithDetails(paycarterr.ErrAuthentication, details)
	case resp.StatusCode == http.StatusForbidden:
		return paycarterr.WithDetails(paycarterr.ErrPermission, details)
	case resp.StatusCode == http.StatusTooManyRequests:
		if after := chain.ParseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			details["retry_after"] = after.String()
		}
		return &serverFault{err: paycarterr.WithDetails(paycarterr.ErrRateLimited, details)}
	case resp.StatusCode >= 500:
		return &serverFault{err: paycarterr.WithDetails(paycarterr.ErrBackend, details)}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, details)
	default:
		return paycarterr.WithDetails(paycarterr.ErrBackend, details)
	}
}

// errorMessage extracts {"detail": "..."} or {"message": "..."} from an
// error body, falling back to the truncated raw body.
func errorMessage(body []byte) string {
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		var s string
		if len(parsed.Detail) > 0 && json.Unmarshal(parsed.Detail, &s) == nil && s != "" {
			return s
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Detail) > 0 {
			return truncate(string(parsed.Detail), 256)
		}
	}
	return truncate(strings.TrimSpace(string(body)), 256)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
