package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aliendabz/evalqueue/backoff"
	"github.com/aliendabz/evalqueue/job"
)

// ErrEmptyResult is returned when the remote evaluator answers with no
// body.
var ErrEmptyResult = errors.New("evaluator: empty result")

// StatusError is a non-2xx response from the remote evaluator.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evaluator: remote returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request is worth repeating.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPEvaluator POSTs the request as JSON to URL and decodes a
// job.Result from the response. Transport errors, 429 and 5xx answers
// are repeated up to MaxAttempts times with exponential backoff.
type HTTPEvaluator struct {
	url         string
	client      *http.Client
	backoff     backoff.Strategy
	maxAttempts int
	headers     http.Header
	logger      *slog.Logger
}

// HTTPOption configures an HTTPEvaluator.
type HTTPOption func(*HTTPEvaluator)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPEvaluator) { h.client = c }
}

// WithBackoff sets the delay between transport attempts.
func WithBackoff(s backoff.Strategy) HTTPOption {
	return func(h *HTTPEvaluator) { h.backoff = s }
}

// WithMaxAttempts sets how many times a request is sent before giving up.
func WithMaxAttempts(n int) HTTPOption {
	return func(h *HTTPEvaluator) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPEvaluator) { h.headers.Add(key, value) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPEvaluator) { h.logger = l }
}

// NewHTTP creates an evaluator backed by the service at url.
func NewHTTP(url string, opts ...HTTPOption) *HTTPEvaluator {
	h := &HTTPEvaluator{
		url:         url,
		client:      &http.Client{Timeout: 2 * time.Minute},
		backoff:     backoff.NewExponentialWithJitter(200*time.Millisecond, 5*time.Second),
		maxAttempts: 3,
		headers:     make(http.Header),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Evaluate implements Evaluator.
func (h *HTTPEvaluator) Evaluate(ctx context.Context, req Request) (*job.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("evaluator: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if attempt > 1 {
			h.logger.Debug("retrying remote evaluation",
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			if err := backoff.Wait(ctx, h.backoff, attempt-1); err != nil {
				return nil, err
			}
		}

		res, err := h.do(ctx, body)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("evaluator: gave up after %d attempts: %w", h.maxAttempts, lastErr)
}

func (h *HTTPEvaluator) do(ctx context.Context, body []byte) (*job.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("evaluator: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, vs := range h.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("evaluator: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("evaluator: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyResult
	}

	var res job.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("evaluator: decode result: %w", err)
	}
	return &res, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, ErrEmptyResult)
}
