package taskscopesdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal taskscope read API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID             string         `json:"id"`
	TaskType       string         `json:"task_type"`
	Status         string         `json:"status"`
	Params         map[string]any `json:"params,omitempty"`
	OutputLocation string         `json:"output_location,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	WorkerID       string         `json:"worker_id,omitempty"`
	CreatedAt      string         `json:"created_at"`
	SegmentIndex   *int           `json:"segment_index,omitempty"`
}

type LogEntry struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	LogLevel   string `json:"log_level"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

type Generation struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Location           string `json:"location,omitempty"`
	ParentGenerationID string `json:"parent_generation_id,omitempty"`
}

// TaskView is the assembled task (partial).
type TaskView struct {
	TaskID           string      `json:"task_id"`
	State            *Task       `json:"state"`
	Logs             []LogEntry  `json:"logs"`
	Generation       *Generation `json:"generation"`
	OrchestratorTask *Task       `json:"orchestrator_task"`
	ChildTasks       []Task      `json:"child_tasks"`
	RunSiblings      []Task      `json:"run_siblings"`
	DependentTasks   []Task      `json:"dependent_tasks"`
	PredecessorTasks []Task      `json:"predecessor_tasks"`
}

// Found reports whether the task exists.
func (v TaskView) Found() bool { return v.State != nil }

type TasksSummary struct {
	Tasks              []Task         `json:"tasks"`
	TotalCount         int            `json:"total_count"`
	StatusDistribution map[string]int `json:"status_distribution"`
	ErrorSummary       []struct {
		TaskID       string `json:"task_id"`
		ErrorMessage string `json:"error_message"`
	} `json:"error_summary"`
}

type LogsResult struct {
	Logs      []LogEntry `json:"logs"`
	SessionID string     `json:"session_id,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type Session struct {
	SessionID     string `json:"session_id"`
	LogCount      int    `json:"log_count"`
	ErrorCount    int    `json:"error_count"`
	LastTimestamp string `json:"last_timestamp"`
}

// RecentQuery filters RecentTasks. Zero values are omitted.
type RecentQuery struct {
	Limit    int
	Status   string
	TaskType string
	Hours    int
}

// LogsQuery filters Logs. Zero values are omitted.
type LogsQuery struct {
	TaskID     string
	SourceType string
	SourceID   string
	SessionID  string
	Level      string
	Tag        string
	Hours      int
	Limit      *int
	Latest     bool
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the server without credentials.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", nil, nil)
}

// Task fetches the assembled view of a task. Unknown tasks are not an error;
// check Found.
func (c *Client) Task(ctx context.Context, id string) (TaskView, error) {
	var resp TaskView
	err := c.do(ctx, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// RecentTasks returns the summary of recent tasks.
func (c *Client) RecentTasks(ctx context.Context, q RecentQuery) (TasksSummary, error) {
	v := url.Values{}
	setInt(v, "limit", q.Limit)
	setString(v, "status", q.Status)
	setString(v, "task_type", q.TaskType)
	setInt(v, "hours", q.Hours)
	var resp TasksSummary
	err := c.do(ctx, "tasks", v, &resp)
	return resp, err
}

// Logs returns log rows oldest first.
func (c *Client) Logs(ctx context.Context, q LogsQuery) (LogsResult, error) {
	v := url.Values{}
	setString(v, "task_id", q.TaskID)
	setString(v, "source_type", q.SourceType)
	setString(v, "source_id", q.SourceID)
	setString(v, "session_id", q.SessionID)
	setString(v, "level", q.Level)
	setString(v, "tag", q.Tag)
	setInt(v, "hours", q.Hours)
	if q.Limit != nil {
		v.Set("limit", strconv.Itoa(*q.Limit))
	}
	if q.Latest {
		v.Set("latest", "true")
	}
	var resp LogsResult
	err := c.do(ctx, "logs", v, &resp)
	return resp, err
}

// Sessions lists browser sessions, most recent first.
func (c *Client) Sessions(ctx context.Context, limit int) ([]Session, error) {
	v := url.Values{}
	setInt(v, "limit", limit)
	var resp []Session
	err := c.do(ctx, "logs/sessions", v, &resp)
	return resp, err
}

func setString(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func setInt(v url.Values, key string, val int) {
	if val > 0 {
		v.Set(key, strconv.Itoa(val))
	}
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if enc := params.Encode(); enc != "" {
		target += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
