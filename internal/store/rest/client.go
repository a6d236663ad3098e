// Package rest implements the store interfaces against the remote relay
// store's HTTP CRUD API. All methods honor the caller's context and retry
// transient failures with exponential backoff; call sites decide whether a
// final failure is fail-open or fail-closed.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/retry"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the remote store. It implements store.JobStore,
// store.MemoryStore, store.EventLog and store.SessionStore.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logger.Logger
	retry   retry.Config
}

// New creates a store client.
func New(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  log,
		retry:   retry.Config{MaxAttempts: 3},
	}
}

// do performs one HTTP request with retries, decoding the JSON response
// body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	return retry.Do(ctx, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// Response bodies on error are log-only detail.
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			c.logger.Debug("store request failed",
				logger.Field{Key: "method", Value: method},
				logger.Field{Key: "path", Value: path},
				logger.Field{Key: "status", Value: resp.StatusCode},
				logger.Field{Key: "body", Value: string(detail)})
			return fmt.Errorf("unexpected status %d for %s %s", resp.StatusCode, method, path)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}, c.retry)
}

// --- store.JobStore ---

func (c *Client) CreateJob(ctx context.Context, job store.Job) error {
	return c.do(ctx, http.MethodPost, "/jobs", job, nil)
}

func (c *Client) GetJob(ctx context.Context, id string) (store.Job, error) {
	var job store.Job
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

func (c *Client) ListJobs(ctx context.Context, filter store.JobFilter) ([]store.Job, error) {
	q := url.Values{}
	if filter.EnabledOnly {
		q.Set("enabled", "true")
	}
	if filter.Source != "" {
		q.Set("source", string(filter.Source))
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var jobs []store.Job
	err := c.do(ctx, http.MethodGet, path, nil, &jobs)
	return jobs, err
}

func (c *Client) UpdateJob(ctx context.Context, job store.Job) error {
	return c.do(ctx, http.MethodPut, "/jobs/"+url.PathEscape(job.ID), job, nil)
}

func (c *Client) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	body := map[string]bool{"enabled": enabled}
	return c.do(ctx, http.MethodPatch, "/jobs/"+url.PathEscape(id)+"/enabled", body, nil)
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil)
}

// --- store.MemoryStore ---

func (c *Client) InsertEntry(ctx context.Context, entry store.MemoryEntry) error {
	return c.do(ctx, http.MethodPost, "/memory", entry, nil)
}

func (c *Client) CountByType(ctx context.Context, entryType store.EntryType) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	path := "/memory/count?type=" + url.QueryEscape(string(entryType))
	err := c.do(ctx, http.MethodGet, path, nil, &result)
	return result.Count, err
}

func (c *Client) DeleteOldest(ctx context.Context, entryType store.EntryType, n int) error {
	body := map[string]any{"type": entryType, "count": n}
	return c.do(ctx, http.MethodPost, "/memory/evict", body, nil)
}

func (c *Client) Search(ctx context.Context, entryType store.EntryType, substring string) ([]store.MemoryEntry, error) {
	q := url.Values{}
	q.Set("type", string(entryType))
	q.Set("q", substring)

	var entries []store.MemoryEntry
	err := c.do(ctx, http.MethodGet, "/memory/search?"+q.Encode(), nil, &entries)
	return entries, err
}

func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/memory/"+url.PathEscape(id), nil, nil)
}

// --- store.EventLog ---

func (c *Client) Append(ctx context.Context, event store.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return c.do(ctx, http.MethodPost, "/events", event, nil)
}

func (c *Client) Query(ctx context.Context, eventType store.EventType, since time.Time) ([]store.Event, error) {
	q := url.Values{}
	q.Set("type", string(eventType))
	q.Set("since", since.UTC().Format(time.RFC3339))

	var events []store.Event
	err := c.do(ctx, http.MethodGet, "/events?"+q.Encode(), nil, &events)
	return events, err
}

// --- store.SessionStore ---

func (c *Client) SaveSession(ctx context.Context, scope, token string) error {
	body := map[string]string{"token": token}
	return c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(scope), body, nil)
}

func (c *Client) LoadSession(ctx context.Context, scope string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(scope), nil, &result)
	return result.Token, err
}
