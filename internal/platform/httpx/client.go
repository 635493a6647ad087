// Package httpx is the shared transport for exchange REST clients: bounded
// timeouts, client-side rate limiting, a circuit breaker and an explicit
// retry policy around every idempotent GET.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Observer receives per-request telemetry. metrics.Metrics implements it.
type Observer interface {
	ObserveRequest(exchange, outcome string, elapsed time.Duration)
	ObserveRetry(exchange string)
}

// Config configures a Client.
type Config struct {
	Name     string // exchange name, used for the breaker and metrics labels
	BaseURL  string
	Timeout  time.Duration
	RPS      float64 // 0 disables client-side limiting
	Burst    int
	Retry    RetryPolicy
	Observer Observer
	Sleep    SleepFunc // nil means ContextSleep
}

// Client issues GET requests against one exchange.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retry      RetryPolicy
	observer   Observer
	sleep      SleepFunc
}

// New creates a Client. A zero Timeout defaults to 10 seconds and a zero
// Retry to DefaultRetryPolicy.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
	}

	return &Client{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    newBreaker(cfg.Name, policy),
		retry:      policy,
		observer:   cfg.Observer,
		sleep:      cfg.Sleep,
	}
}

// BaseURL returns the exchange API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET on path with the given query and returns the body of a
// 2xx response. Failures are retried per the client's RetryPolicy; the
// breaker sees the whole retry loop as a single call.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	onRetry := func(int, error) {
		if c.observer != nil {
			c.observer.ObserveRetry(c.name)
		}
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var body []byte
		err := c.retry.Do(ctx, c.sleep, onRetry, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
			start := time.Now()
			b, err := c.doGet(ctx, target)
			c.observe(err, time.Since(start))
			body = b
			return err
		})
		return body, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.observe(err, 0)
		}
		return nil, err
	}
	return out.([]byte), nil
}

// GetJSON performs Get and decodes the body into out. Decode failures are
// not retried.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) observe(err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	var se *StatusError
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
	case errors.As(err, &se):
		outcome = "http_error"
	default:
		outcome = "transport_error"
	}
	c.observer.ObserveRequest(c.name, outcome, elapsed)
}
