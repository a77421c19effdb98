// Package remote implements the collaborator contract over JSON HTTP with
// a WebSocket task feed.
//
// The remote service is a mirror: it stores task twins, user settings, and
// session history per user, and pushes change events to subscribers. The
// client maps transport failures to ErrUnavailable so callers can treat
// every network problem uniformly.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stillpointapp/stillpoint/internal/model"
	"github.com/stillpointapp/stillpoint/internal/orchestrator"
)

// Errors returned by the remote client. Check with errors.Is().
var (
	// ErrUnavailable is returned for any network or backend failure.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrNotFound is returned when the remote holds no such resource.
	ErrNotFound = errors.New("not found on remote")
)

// Client talks to the stillpoint backend. It implements
// orchestrator.Collaborator.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

var _ orchestrator.Collaborator = (*Client)(nil)

// NewClient creates a client for the backend at baseURL.
//
// If httpClient is nil, a client with a 10 second timeout is used. If
// logger is nil, a default logger writing to stderr is used.
func NewClient(baseURL string, httpClient *http.Client, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// GetTasks implements orchestrator.Collaborator.
func (c *Client) GetTasks(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%s/tasks", userID), nil, &tasks)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// CreateTask implements orchestrator.Collaborator. The returned task
// carries the identifier the backend assigned.
func (c *Client) CreateTask(ctx context.Context, userID string, task model.Task) (model.Task, error) {
	var created model.Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/users/%s/tasks", userID), task, &created)
	if err != nil {
		return model.Task{}, err
	}
	return created, nil
}

// UpdateTask implements orchestrator.Collaborator.
func (c *Client) UpdateTask(ctx context.Context, remoteID string, patch orchestrator.TaskPatch) (model.Task, error) {
	var updated model.Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%s", remoteID), patch, &updated)
	if err != nil {
		return model.Task{}, err
	}
	return updated, nil
}

// DeleteTask implements orchestrator.Collaborator. Deleting an absent task
// is not an error.
func (c *Client) DeleteTask(ctx context.Context, remoteID string) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%s", remoteID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// GetUserSettings implements orchestrator.Collaborator. A nil result with
// a nil error means the remote holds no settings for the user.
func (c *Client) GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%s/settings", userID), nil, &settings)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpsertUserSettings implements orchestrator.Collaborator.
func (c *Client) UpsertUserSettings(ctx context.Context, userID string, settings model.UserSettings) (model.UserSettings, error) {
	var stored model.UserSettings
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%s/settings", userID), settings, &stored)
	if err != nil {
		return model.UserSettings{}, err
	}
	return stored, nil
}

// CreateSession implements orchestrator.Collaborator.
func (c *Client) CreateSession(ctx context.Context, userID string, session model.MeditationSession) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/users/%s/sessions", userID), session, nil)
}

// TestConnection implements orchestrator.Collaborator with one round trip
// against the health endpoint.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

// do performs one JSON request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
		}
	}
	return nil
}
