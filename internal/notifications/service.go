// Package notifications pushes job lifecycle updates to ntfy when a topic
// is configured.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wildcut/internal/config"
)

const userAgent = "Wildcut/0.1.0"

// Service defines the notification surface exposed to the job runner.
type Service interface {
	NotifyRenderCompleted(ctx context.Context, camera, outputFile string) error
	NotifyRenderFailed(ctx context.Context, camera string, err error) error
	NotifyUploadCompleted(ctx context.Context, title, videoURL string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRenderCompleted(ctx context.Context, camera, outputFile string) error {
	camera = strings.TrimSpace(camera)
	message := fmt.Sprintf("Render complete for %s", camera)
	if outputFile = strings.TrimSpace(outputFile); outputFile != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, outputFile)
	}
	data := payload{
		title:   "Wildcut - Render Complete",
		message: message,
		tags:    []string{"wildcut", "render", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRenderFailed(ctx context.Context, camera string, err error) error {
	var builder strings.Builder
	builder.WriteString("Render failed")
	if camera = strings.TrimSpace(camera); camera != "" {
		builder.WriteString(" for ")
		builder.WriteString(camera)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Wildcut - Render Failed",
		message:  builder.String(),
		tags:     []string{"wildcut", "render", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadCompleted(ctx context.Context, title, videoURL string) error {
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Uploaded: %s", title)
	if videoURL = strings.TrimSpace(videoURL); videoURL != "" {
		message = fmt.Sprintf("%s\n%s", message, videoURL)
	}
	data := payload{
		title:   "Wildcut - Upload Complete",
		message: message,
		tags:    []string{"wildcut", "upload", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Wildcut - Test",
		message:  "Notification system test",
		tags:     []string{"wildcut", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRenderCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyRenderFailed(context.Context, string, error) error     { return nil }
func (noopService) NotifyUploadCompleted(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
