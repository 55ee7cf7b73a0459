// Package client is a Go client for a remote evaluation queue served by
// the api package.
//
// Usage:
//
//	c := client.New("https://queue.example.com", client.WithUser("u_42"))
//
//	j, err := c.Submit(ctx, api.SubmitRequest{Code: src, Language: "go"})
//
//	// Follow the job until it finishes.
//	msgs, err := c.Watch(ctx, stream.JobTopic(j.ID.String()))
//	for msg := range msgs {
//	    fmt.Println(msg.Kind, msg.Job.State)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aliendabz/evalqueue/api"
	"github.com/aliendabz/evalqueue/backoff"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/job"
	"github.com/aliendabz/evalqueue/stats"
)

// Client talks to the queue's HTTP API.
type Client struct {
	baseURL    string
	userID     string
	format     string
	httpClient *http.Client
	logger     *slog.Logger

	// Watch reconnection.
	reconnect  bool
	maxRetries int
	backoff    backoff.Strategy
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		format:     "json",
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx reply.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("evalqueue api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("evalqueue api: status %d: %s", e.StatusCode, e.Message)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Submit queues a submission for the client's user.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Get fetches a job.
func (c *Client) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID.String(), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Cancel cancels a job. It reports false when the job was not
// cancellable by this user.
func (c *Client) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	return c.transition(ctx, jobID, "cancel")
}

// Retry re-queues a failed job. It reports false when the job was not
// retryable by this user.
func (c *Client) Retry(ctx context.Context, jobID id.JobID) (bool, error) {
	return c.transition(ctx, jobID, "retry")
}

func (c *Client) transition(ctx context.Context, jobID id.JobID, op string) (bool, error) {
	var resp api.OKResponse
	err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/"+op, nil, &resp)
	if statusOf(err) == http.StatusConflict {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// UserJobs lists a user's jobs, most recent first.
func (c *Client) UserJobs(ctx context.Context, userID string) ([]*job.Job, error) {
	var jobs []*job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Stats fetches the queue statistics.
func (c *Client) Stats(ctx context.Context) (*stats.QueueStats, error) {
	var s stats.QueueStats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health fetches the health report. A stopped queue answers 503, which
// is returned as the report rather than an error.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var h api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &h)
	if statusOf(err) == http.StatusServiceUnavailable {
		return &h, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// do sends a JSON request and decodes the JSON reply into out. The body
// of an error reply is still decoded into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set(api.HeaderUserID, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get(api.HeaderRequestID)}
		var e api.ErrorResponse
		if json.Unmarshal(data, &e) == nil {
			apiErr.Message = e.Error
		}
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
