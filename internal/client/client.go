// Package client wraps HTTP calls to the nudge API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fentz26/nudge/internal/chat"
	"github.com/fentz26/nudge/internal/models"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/fentz26/nudge/internal/scheduler"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 10 * time.Second

// Client wraps HTTP calls to the nudge API.
type Client struct {
	baseURL    string
	owner      string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithOwner sends the X-Owner header, used when the daemon runs without token auth.
func WithOwner(owner string) Option {
	return func(c *Client) { c.owner = owner }
}

// WithToken authenticates with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new API client with timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// HealthResponse matches the server's health response structure.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Health checks the daemon. The parsed payload is returned alongside the
// error on non-200 responses.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &health)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && health.DB != "" {
			return &health, err
		}
		return nil, err
	}
	return &health, nil
}

// CreateTaskRequest is the body of POST /api/todos.
type CreateTaskRequest struct {
	Title      string     `json:"title"`
	Note       string     `json:"note,omitempty"`
	RemindAt   *time.Time `json:"remind_at,omitempty"`
	Recurrence string     `json:"recurrence,omitempty"`
}

// EditTaskRequest is the body of PATCH /api/todos/{id}. Nil fields are left unchanged.
type EditTaskRequest struct {
	Title           *string    `json:"title,omitempty"`
	Note            *string    `json:"note,omitempty"`
	RemindAt        *time.Time `json:"remind_at,omitempty"`
	ClearRemind     bool       `json:"clear_remind,omitempty"`
	Recurrence      *string    `json:"recurrence,omitempty"`
	ClearRecurrence bool       `json:"clear_recurrence,omitempty"`
}

// ListTasks fetches tasks. Status is "", pending, all, done or failed.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]models.Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var tasks []models.Task
	err := c.do(ctx, http.MethodGet, withQuery("/api/todos", q), nil, &tasks)
	return tasks, err
}

// Today fetches pending tasks scheduled on date (YYYY-MM-DD, empty for today).
func (c *Client) Today(ctx context.Context, date string) ([]models.Task, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var tasks []models.Task
	err := c.do(ctx, http.MethodGet, withQuery("/api/todos/today", q), nil, &tasks)
	return tasks, err
}

// GetTask fetches a single task by id or id prefix.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a new task.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/api/todos", req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// EditTask updates a task.
func (c *Client) EditTask(ctx context.Context, id string, req EditTaskRequest) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPatch, taskPath(id, ""), req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask deletes a task and returns it.
func (c *Client) DeleteTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodDelete, taskPath(id, ""), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CompleteTask completes a task.
func (c *Client) CompleteTask(ctx context.Context, id string) (*models.Task, error) {
	return c.transition(ctx, id, "complete")
}

// ResetTask releases a quarantined task.
func (c *Client) ResetTask(ctx context.Context, id string) (*models.Task, error) {
	return c.transition(ctx, id, "reset")
}

// UndoTask reopens a done task.
func (c *Client) UndoTask(ctx context.Context, id string) (*models.Task, error) {
	return c.transition(ctx, id, "undo")
}

func (c *Client) transition(ctx context.Context, id, action string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, taskPath(id, action), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// TaskAudit fetches the decision records of a task.
func (c *Client) TaskAudit(ctx context.Context, id string, limit int) ([]models.AuditEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var entries []models.AuditEntry
	err := c.do(ctx, http.MethodGet, withQuery(taskPath(id, "audit"), q), nil, &entries)
	return entries, err
}

// Acknowledge resolves the latest reminder batch.
func (c *Client) Acknowledge(ctx context.Context) (*reminder.Resolution, error) {
	var res reminder.Resolution
	if err := c.do(ctx, http.MethodPost, "/api/ack", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chat sends a chat message.
func (c *Client) Chat(ctx context.Context, text, nickname string) (*chat.Reply, error) {
	var reply chat.Reply
	body := map[string]string{"text": text}
	if nickname != "" {
		body["nickname"] = nickname
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Me returns the owner the client authenticates as.
func (c *Client) Me(ctx context.Context) (*models.Owner, error) {
	var owner models.Owner
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

// SetNickname updates the caller's nickname.
func (c *Client) SetNickname(ctx context.Context, nickname string) (*models.Owner, error) {
	var owner models.Owner
	if err := c.do(ctx, http.MethodPut, "/api/me", map[string]string{"nickname": nickname}, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

// SchedulerStats fetches the scheduler state.
func (c *Client) SchedulerStats(ctx context.Context) (*scheduler.Stats, error) {
	var stats scheduler.Stats
	if err := c.do(ctx, http.MethodGet, "/api/scheduler", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.owner != "" {
		req.Header.Set("X-Owner", c.owner)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		// Health reports its payload even when unhealthy.
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func taskPath(id, action string) string {
	p := "/api/todos/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
