package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wildcut/internal/jobs"
)

// Client talks to a running daemon's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client for the given base URL, e.g.
// http://127.0.0.1:7823.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateJob submits a new job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*JobView, error) {
	var resp JobViewResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// ListJobs fetches jobs matching the filter values. Empty values are omitted.
func (c *Client) ListJobs(ctx context.Context, status, camera, jobType string, limit int) ([]*JobView, error) {
	params := make([]string, 0, 4)
	if status != "" {
		params = append(params, "status="+status)
	}
	if camera != "" {
		params = append(params, "camera="+camera)
	}
	if jobType != "" {
		params = append(params, "type="+jobType)
	}
	if limit > 0 {
		params = append(params, "limit="+strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var resp JobViewListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, id string) (*JobView, error) {
	var resp JobViewResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// CancelJob cancels a pending or running job.
func (c *Client) CancelJob(ctx context.Context, id string) (*JobView, error) {
	var resp JobViewResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+id+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// RetryJob clones a terminal job into a new pending one.
func (c *Client) RetryJob(ctx context.Context, id string) (*JobView, error) {
	var resp JobViewResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+id+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Job, nil
}

// DeleteJob removes a job record and its log.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+id, nil, nil)
}

// JobLog tails the job's log file. offset -1 requests the last limit lines.
func (c *Client) JobLog(ctx context.Context, id string, offset int64, limit int, follow bool) (LogResponse, error) {
	path := fmt.Sprintf("/api/jobs/%s/log?lines=%d", id, limit)
	if offset >= 0 {
		path += "&offset=" + strconv.FormatInt(offset, 10)
	}
	if follow {
		path += "&follow=1"
	}
	var resp LogResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return LogResponse{}, err
	}
	return resp, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// Files lists the artifacts in the output directory.
func (c *Client) Files(ctx context.Context) ([]FileEntry, error) {
	var resp FileListResponse
	if err := c.do(ctx, http.MethodGet, "/api/files", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// StreamEvents follows the job's progress stream, invoking fn per event
// until the stream ends or ctx is cancelled. The stream closes after a
// terminal event.
func (c *Client) StreamEvents(ctx context.Context, id string, fn func(jobs.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+id+"/events", nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var event jobs.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(event)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s", payload.Error)
	}
	return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
