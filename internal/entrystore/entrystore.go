// Package entrystore talks to the entry store's JSON-over-HTTP API: listing
// tasks for a project, patching status/notes, and the optional claim
// protocol for multi-runner deployments.
package entrystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	brainerrors "brain/internal/errors"
	"brain/internal/task"
)

// ListResponse is the body of GET /api/v1/tasks/{project}.
type ListResponse struct {
	Tasks []*task.Task `json:"tasks"`
	Stats struct {
		Total   int `json:"total"`
		Ready   int `json:"ready"`
		Waiting int `json:"waiting"`
		Blocked int `json:"blocked"`
	} `json:"stats"`
}

// UpdateRequest is the body of PATCH /api/v1/entries/{path}.
type UpdateRequest struct {
	Status *task.Status `json:"status,omitempty"`
	Title  *string      `json:"title,omitempty"`
	Append *string      `json:"append,omitempty"`
	Note   *string      `json:"note,omitempty"`
}

// ClaimResponse is returned by the claim endpoint on conflict.
type ClaimResponse struct {
	ClaimedBy string `json:"claimedBy"`
}

// Store is the subset of entry-store operations the runner loop uses,
// narrow enough to substitute an in-memory Fake in tests.
type Store interface {
	List(ctx context.Context, project string) (*ListResponse, error)
	Ready(ctx context.Context, project string) (*ListResponse, error)
	Waiting(ctx context.Context, project string) (*ListResponse, error)
	Blocked(ctx context.Context, project string) (*ListResponse, error)
	Next(ctx context.Context, project string) (*task.Task, error)
	Update(ctx context.Context, path string, req UpdateRequest) error
	Claim(ctx context.Context, project, taskID, runnerID string) error
	Release(ctx context.Context, project, taskID, runnerID string) error
}

// Client is the HTTP-backed Store implementation.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client with a 10s request timeout, per spec.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) List(ctx context.Context, project string) (*ListResponse, error) {
	return c.get(ctx, fmt.Sprintf("/api/v1/tasks/%s", project))
}

func (c *Client) Ready(ctx context.Context, project string) (*ListResponse, error) {
	return c.get(ctx, fmt.Sprintf("/api/v1/tasks/%s/ready", project))
}

func (c *Client) Waiting(ctx context.Context, project string) (*ListResponse, error) {
	return c.get(ctx, fmt.Sprintf("/api/v1/tasks/%s/waiting", project))
}

func (c *Client) Blocked(ctx context.Context, project string) (*ListResponse, error) {
	return c.get(ctx, fmt.Sprintf("/api/v1/tasks/%s/blocked", project))
}

func (c *Client) Next(ctx context.Context, project string) (*task.Task, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/api/v1/tasks/%s/next", project))
	if err != nil {
		return nil, err
	}
	if len(resp.Tasks) == 0 {
		return nil, nil
	}
	return resp.Tasks[0], nil
}

func (c *Client) get(ctx context.Context, path string) (*ListResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, storeErrorFor(resp)
	}

	var out ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, path string, update UpdateRequest) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/api/v1/entries/"+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return storeErrorFor(resp)
	}
	return nil
}

func (c *Client) Claim(ctx context.Context, project, taskID, runnerID string) error {
	return c.claimAction(ctx, "claim", project, taskID, runnerID)
}

func (c *Client) Release(ctx context.Context, project, taskID, runnerID string) error {
	return c.claimAction(ctx, "release", project, taskID, runnerID)
}

func (c *Client) claimAction(ctx context.Context, action, project, taskID, runnerID string) error {
	body, _ := json.Marshal(map[string]string{"runnerId": runnerID})
	url := fmt.Sprintf("%s/api/v1/tasks/%s/%s/%s", c.baseURL, project, taskID, action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var claim ClaimResponse
		_ = json.NewDecoder(resp.Body).Decode(&claim)
		return fmt.Errorf("already claimed by %s", claim.ClaimedBy)
	}
	if resp.StatusCode != http.StatusOK {
		return storeErrorFor(resp)
	}
	return nil
}

func storeErrorFor(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return brainerrors.NewStoreError(resp.StatusCode, string(body), 0)
}
