// Package events talks to the NVR HTTP API for detection events, recording
// summaries, and review items.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wildcut/internal/logging"
	"wildcut/internal/services"
)

// Event is one detection event as returned by /api/events.
type Event struct {
	ID        string   `json:"id"`
	Camera    string   `json:"camera"`
	Label     string   `json:"label"`
	SubLabel  string   `json:"sub_label,omitempty"`
	StartTime float64  `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
	Score     float64  `json:"score"`
	TopScore  *float64 `json:"top_score"`
	HasClip   bool     `json:"has_clip"`
	Zones     []string `json:"zones,omitempty"`
}

// BestScore returns top_score when present, falling back to score.
func (e Event) BestScore() float64 {
	if e.TopScore != nil {
		return *e.TopScore
	}
	return e.Score
}

// RecordingSegment is one stored chunk summary from /api/{camera}/recordings,
// carrying the per-chunk motion and object activity counters.
type RecordingSegment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Motion    int     `json:"motion"`
	Objects   int     `json:"objects"`
}

// ReviewItem is one entry from /api/review.
type ReviewItem struct {
	ID        string   `json:"id"`
	Camera    string   `json:"camera"`
	StartTime float64  `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
	Severity  string   `json:"severity"`
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Headers        map[string]string
	EventLimit     int
	RequestTimeout time.Duration
	MaxRetries     int
	Logger         *slog.Logger
}

// Client is a retrying NVR API client.
type Client struct {
	baseURL    string
	headers    map[string]string
	limit      int
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client from options, filling sensible fallbacks.
func NewClient(opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := opts.EventLimit
	if limit <= 0 {
		limit = 5000
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		headers:    opts.Headers,
		limit:      limit,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent(logger, "events"),
	}
}

// FetchEvents returns detection events for a camera between after and before
// (epoch seconds), newest API ordering preserved.
func (c *Client) FetchEvents(ctx context.Context, camera string, after, before int64) ([]Event, error) {
	query := url.Values{}
	query.Set("camera", camera)
	query.Set("after", strconv.FormatInt(after, 10))
	query.Set("before", strconv.FormatInt(before, 10))
	query.Set("limit", strconv.Itoa(c.limit))

	var events []Event
	if err := c.getJSON(ctx, "/api/events", query, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// FetchRecordingSummary returns per-chunk recording summaries with motion
// counters for a camera between after and before (epoch seconds).
func (c *Client) FetchRecordingSummary(ctx context.Context, camera string, after, before int64) ([]RecordingSegment, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatInt(after, 10))
	query.Set("before", strconv.FormatInt(before, 10))

	var segments []RecordingSegment
	path := "/api/" + url.PathEscape(camera) + "/recordings"
	if err := c.getJSON(ctx, path, query, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// FetchReviewItems returns review entries of the given type (e.g. "motion")
// for a camera within [after, before), up to limit. Zero bounds are omitted.
func (c *Client) FetchReviewItems(ctx context.Context, camera, reviewType string, after, before int64, limit int) ([]ReviewItem, error) {
	query := url.Values{}
	query.Set("cameras", camera)
	if reviewType != "" {
		query.Set("type", reviewType)
	}
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}
	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var items []ReviewItem
	if err := c.getJSON(ctx, "/api/review", query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Ping checks that the API base endpoint answers at all.
func (c *Client) Ping(ctx context.Context) error {
	var payload json.RawMessage
	return c.getJSON(ctx, "/api/version", nil, &payload)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(services.Wrap(services.ErrConfiguration, "events", "build request", endpoint, err))
		}
		req.Header.Set("Accept", "application/json")
		for key, value := range c.headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return services.Wrap(services.ErrTransient, "events", "request", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := services.Wrap(services.ErrTransient, "events", "request",
				fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, string(body)), nil)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(services.Wrap(services.ErrConfiguration, "events", "request",
					fmt.Sprintf("%s returned %d", path, resp.StatusCode), nil))
			}
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return services.Wrap(services.ErrTransient, "events", "decode response", path, err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			logging.String("path", path),
			logging.Duration("wait", wait),
			logging.Error(err))
	}
	return backoff.RetryNotify(operation, policy, notify)
}
