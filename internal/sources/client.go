// Package sources holds the HTTP plumbing shared by the external catalog
// fetchers: a rate-gated, circuit-broken client and page aggregation.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/metrics"
	"github.com/parsascontentcorner/shelfsync/internal/ratelimit"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20
	userAgent      = "shelfsync/1.0 +https://github.com/parsascontentcorner/shelfsync"
)

// ErrRateLimited is returned when a source answered 429. The gate has
// already been paused for the Retry-After duration.
var ErrRateLimited = errors.New("sources: rate limited")

// HTTPError is a non-2xx answer from a source
type HTTPError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Source, e.StatusCode, e.Body)
}

// Options configures a Client
type Options struct {
	// Name tags logs, metrics and the circuit breaker
	Name    string
	BaseURL string
	Gate    ratelimit.Gate
	// HTTPClient defaults to a plain client with a 30s timeout. Pass an
	// oauth2 client to get bearer tokens attached.
	HTTPClient *http.Client
	// Header is sent with every request
	Header http.Header
	Logger *zap.Logger
}

// Request is one outbound call. Path is appended to the base URL unless it
// is already absolute.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Response is a fully read source answer
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends rate-gated requests to one source
type Client struct {
	name    string
	http    *http.Client
	gate    ratelimit.Gate
	header  http.Header
	breaker *gobreaker.CircuitBreaker[*Response]
	logger  *zap.Logger

	mu      sync.RWMutex
	baseURL string
}

// NewClient creates a source client
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Gate == nil {
		opts.Gate = ratelimit.NewFixedInterval(opts.Name, time.Millisecond, opts.Logger)
	}
	logger := opts.Logger.With(zap.String("source", opts.Name))

	metrics.CircuitBreakerState.WithLabelValues(opts.Name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Opens when failure rate >= 60% with minimum 10 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		// Client errors other than 429 say nothing about the source's health
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return httpErr.StatusCode < 500
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state transition",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		name:    opts.Name,
		http:    opts.HTTPClient,
		gate:    opts.Gate,
		header:  opts.Header,
		breaker: breaker,
		logger:  logger,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
	}
}

// Name returns the source name
func (c *Client) Name() string {
	return c.name
}

// SetBaseURL points the client at another host (used in tests)
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL + path
}

// Do waits for the gate, then sends req through the circuit breaker. A 2xx
// response is returned as is; 429 pauses the gate and yields ErrRateLimited;
// any other status yields an *HTTPError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.send(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("Request rejected by circuit breaker", zap.Error(err))
			return nil, fmt.Errorf("%s circuit breaker: %w", c.name, err)
		}
		return resp, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.resolve(req.Path)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.Header {
		httpReq.Header[key] = values
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.RecordSourceRequest(c.name, "error", time.Since(start))
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	metrics.RecordSourceRequest(c.name, strconv.Itoa(httpResp.StatusCode), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.name, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		c.gate.Pause(ratelimit.RetryAfter(httpResp.Header))
		return resp, fmt.Errorf("%s: %w", c.name, ErrRateLimited)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, &HTTPError{Source: c.name, StatusCode: httpResp.StatusCode, Body: truncate(string(data), 256)}
	}

	c.logger.Debug("Source request completed",
		zap.String("method", method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Int("bytes", len(data)),
	)
	return resp, nil
}

// GetJSON sends a GET and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}

// PostJSON encodes payload, sends it as a POST and decodes the answer into out
func (c *Client) PostJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", c.name, err)
	}
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
