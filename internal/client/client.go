// Package client talks to the clickreplayd HTTP API.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"clickreplay/internal/api"
	"clickreplay/internal/launcher"
	"clickreplay/internal/playback"
	"clickreplay/internal/service"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("daemon returned status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	client *resty.Client
}

// New builds a client for baseURL such as http://127.0.0.1:7171.
func New(baseURL string, timeout time.Duration, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL+"/v1").
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetError(&errorBody{})
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{client: c}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, query map[string]string) error {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	if query != nil {
		req.SetQueryParams(query)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if eb, ok := resp.Error().(*errorBody); ok {
			apiErr.Code, apiErr.Message = eb.Error.Code, eb.Error.Message
		}
		return apiErr
	}
	return nil
}

func (c *Client) ListSequences(ctx context.Context) ([]api.SequenceResponse, error) {
	var out []api.SequenceResponse
	return out, c.do(ctx, http.MethodGet, "/sequences", nil, &out, nil)
}

func (c *Client) GetSequence(ctx context.Context, id string) (api.SequenceResponse, error) {
	var out api.SequenceResponse
	return out, c.do(ctx, http.MethodGet, "/sequences/"+id, nil, &out, nil)
}

func (c *Client) SaveSequence(ctx context.Context, in service.SequenceInput) (api.SequenceResponse, error) {
	var out api.SequenceResponse
	return out, c.do(ctx, http.MethodPost, "/sequences", in, &out, nil)
}

func (c *Client) RecordSequence(ctx context.Context, in service.RecordInput) (api.SequenceResponse, error) {
	var out api.SequenceResponse
	return out, c.do(ctx, http.MethodPost, "/sequences/record", in, &out, nil)
}

func (c *Client) DeleteSequence(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sequences/"+id, nil, nil, nil)
}

// Play starts a sequence and returns the session id.
func (c *Client) Play(ctx context.Context, id string, in service.PlayInput) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	err := c.do(ctx, http.MethodPost, "/sequences/"+id+"/play", in, &out, nil)
	return out.SessionID, err
}

func (c *Client) PlaybackStatus(ctx context.Context) (playback.Status, error) {
	var out playback.Status
	return out, c.do(ctx, http.MethodGet, "/playback", nil, &out, nil)
}

func (c *Client) StopPlayback(ctx context.Context) (bool, error) {
	var out struct {
		Stopped bool `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, "/playback/stop", nil, &out, nil)
	return out.Stopped, err
}

// Launch starts an application on the daemon's desktop.
func (c *Client) Launch(ctx context.Context, in service.LaunchInput) (launcher.Result, error) {
	var out launcher.Result
	return out, c.do(ctx, http.MethodPost, "/launch", in, &out, nil)
}

// SessionQuery filters ListSessions; zero values are ignored.
type SessionQuery struct {
	SequenceID string
	JobID      string
	Limit      int
}

func (c *Client) ListSessions(ctx context.Context, q SessionQuery) ([]api.SessionResponse, error) {
	params := map[string]string{}
	if q.SequenceID != "" {
		params["sequence_id"] = q.SequenceID
	}
	if q.JobID != "" {
		params["job_id"] = q.JobID
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	var out []api.SessionResponse
	return out, c.do(ctx, http.MethodGet, "/sessions", nil, &out, params)
}

func (c *Client) GetSession(ctx context.Context, id string) (api.SessionResponse, error) {
	var out api.SessionResponse
	return out, c.do(ctx, http.MethodGet, "/sessions/"+id, nil, &out, nil)
}

func (c *Client) ListJobs(ctx context.Context, status string) ([]api.JobResponse, error) {
	var params map[string]string
	if status != "" {
		params = map[string]string{"status": status}
	}
	var out []api.JobResponse
	return out, c.do(ctx, http.MethodGet, "/jobs", nil, &out, params)
}

func (c *Client) CreateJob(ctx context.Context, in service.JobInput) (api.JobResponse, error) {
	var out api.JobResponse
	return out, c.do(ctx, http.MethodPost, "/jobs", in, &out, nil)
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+id, nil, nil, nil)
}

func (c *Client) RunJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+id+"/run", nil, nil, nil)
}

func (c *Client) PauseJob(ctx context.Context, id string) (api.JobResponse, error) {
	var out api.JobResponse
	return out, c.do(ctx, http.MethodPost, "/jobs/"+id+"/pause", nil, &out, nil)
}

func (c *Client) ResumeJob(ctx context.Context, id string) (api.JobResponse, error) {
	var out api.JobResponse
	return out, c.do(ctx, http.MethodPost, "/jobs/"+id+"/resume", nil, &out, nil)
}

func (c *Client) SchedulerStatus(ctx context.Context) (service.SchedulerStatus, error) {
	var out service.SchedulerStatus
	return out, c.do(ctx, http.MethodGet, "/scheduler", nil, &out, nil)
}

// SetScheduler starts or stops the scheduler and returns its new state.
func (c *Client) SetScheduler(ctx context.Context, running bool) (service.SchedulerStatus, error) {
	path := "/scheduler/stop"
	if running {
		path = "/scheduler/start"
	}
	var out service.SchedulerStatus
	return out, c.do(ctx, http.MethodPost, path, nil, &out, nil)
}

func (c *Client) SchedulerLog(ctx context.Context, tail int) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/plain").
		SetQueryParam("tail", strconv.Itoa(tail)).
		Get("/scheduler/log")
	if err != nil {
		return "", fmt.Errorf("GET /scheduler/log: %w", err)
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode()}
	}
	return resp.String(), nil
}

// FollowSchedulerLog copies the live scheduler log to w until ctx ends.
// It uses its own client so the request timeout does not cut the stream.
func (c *Client) FollowSchedulerLog(ctx context.Context, tail int, w io.Writer) error {
	streamer := resty.New().SetBaseURL(c.client.BaseURL)
	if c.client.Token != "" {
		streamer.SetAuthToken(c.client.Token)
	}
	resp, err := streamer.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParams(map[string]string{"tail": strconv.Itoa(tail), "follow": "1"}).
		Get("/scheduler/log")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("GET /scheduler/log: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode()}
	}
	if _, err := io.Copy(w, body); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read scheduler log: %w", err)
	}
	return nil
}
