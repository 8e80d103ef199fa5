// Package upload pushes rendered videos to YouTube through the Data API v3
// resumable upload protocol. Credentials come from an authorized-user token
// file; access tokens are refreshed automatically.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"wildcut/internal/config"
	"wildcut/internal/logging"
	"wildcut/internal/services"
)

const (
	uploadScope       = "https://www.googleapis.com/auth/youtube.upload"
	defaultUploadURL  = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultChunkBytes = 8 << 20
	watchURLPrefix    = "https://www.youtube.com/watch?v="
)

// Metadata describes the video being uploaded.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

// Result is the uploaded video's identity.
type Result struct {
	VideoID string `json:"id"`
	URL     string `json:"url"`
}

// Uploader performs resumable uploads.
type Uploader struct {
	client     *http.Client
	uploadURL  string
	chunkSize  int64
	privacy    string
	categoryID string
	logger     *slog.Logger
}

// NewUploader builds an Uploader from configuration. The token file must be
// an authorized-user JSON document holding a refresh token.
func NewUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Uploader, error) {
	if !cfg.Upload.Enabled {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "init", "uploads are disabled in configuration", nil)
	}
	client, err := oauthClient(ctx, cfg.Upload.TokenFile)
	if err != nil {
		return nil, err
	}

	chunk := int64(cfg.Upload.ChunkSizeMiB) << 20
	if chunk <= 0 {
		chunk = defaultChunkBytes
	}
	return &Uploader{
		client:     client,
		uploadURL:  defaultUploadURL,
		chunkSize:  chunk,
		privacy:    cfg.Upload.DefaultPrivacy,
		categoryID: cfg.Upload.CategoryID,
		logger:     logging.WithComponent(logger, "upload"),
	}, nil
}

type tokenFile struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	Token        string `json:"token"`
	TokenURI     string `json:"token_uri"`
	Expiry       string `json:"expiry"`
}

func oauthClient(ctx context.Context, path string) (*http.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "read token file", path, err)
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "parse token file", path, err)
	}
	if tf.RefreshToken == "" {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "parse token file", "refresh_token missing", nil)
	}
	tokenURL := tf.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	conf := &oauth2.Config{
		ClientID:     tf.ClientID,
		ClientSecret: tf.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		Scopes:       []string{uploadScope},
	}
	token := &oauth2.Token{
		AccessToken:  tf.Token,
		RefreshToken: tf.RefreshToken,
	}
	if tf.Expiry != "" {
		if expiry, err := time.Parse(time.RFC3339, tf.Expiry); err == nil {
			token.Expiry = expiry
		}
	}
	return conf.Client(ctx, token), nil
}

// VideoTitle derives a presentable title from the output naming parts,
// e.g. ("front", "animals", "2026-06-15") -> "Front Animals 2026-06-15".
func VideoTitle(camera, kind, label string) string {
	caser := cases.Title(language.English)
	parts := []string{}
	for _, part := range []string{camera, kind} {
		part = strings.TrimSpace(strings.ReplaceAll(part, "_", " "))
		if part != "" {
			parts = append(parts, caser.String(part))
		}
	}
	if label = strings.TrimSpace(label); label != "" {
		parts = append(parts, label)
	}
	return strings.Join(parts, " ")
}

// Upload sends the file, reporting whole-file percent completion.
func (u *Uploader) Upload(ctx context.Context, filePath string, meta Metadata, onProgress func(percent float64)) (*Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "open video", filePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "open video", "file is empty", nil)
	}

	session, err := u.startSession(ctx, meta, size)
	if err != nil {
		return nil, err
	}
	u.logger.Info("upload session started",
		logging.String("file", filePath),
		logging.Int64("size", size))

	var offset int64
	buf := make([]byte, u.chunkSize)
	for offset < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := io.ReadFull(file, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return nil, fmt.Errorf("read video chunk: %w", readErr)
		}
		if n == 0 {
			break
		}

		result, nextOffset, err := u.sendChunk(ctx, session, buf[:n], offset, size)
		if err != nil {
			return nil, err
		}
		if result != nil {
			if onProgress != nil {
				onProgress(100)
			}
			u.logger.Info("upload complete", logging.String("video_id", result.VideoID))
			return result, nil
		}

		// The server may acknowledge less than we sent; seek back to the
		// confirmed offset before the next chunk.
		if nextOffset != offset+int64(n) {
			if _, err := file.Seek(nextOffset, io.SeekStart); err != nil {
				return nil, fmt.Errorf("seek to confirmed offset: %w", err)
			}
		}
		offset = nextOffset
		if onProgress != nil {
			onProgress(float64(offset) / float64(size) * 100)
		}
	}
	return nil, services.Wrap(services.ErrTransient, "upload", "finish", "upload ended without a completion response", nil)
}

func (u *Uploader) startSession(ctx context.Context, meta Metadata, size int64) (string, error) {
	body := map[string]any{
		"snippet": map[string]any{
			"title":       meta.Title,
			"description": meta.Description,
			"tags":        meta.Tags,
			"categoryId":  u.categoryID,
		},
		"status": map[string]any{
			"privacyStatus":           u.privacy,
			"selfDeclaredMadeForKids": false,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal upload metadata: %w", err)
	}

	var session string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			u.uploadURL+"?uploadType=resumable&part=snippet,status", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build session request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
		req.Header.Set("X-Upload-Content-Type", "video/mp4")

		resp, err := u.client.Do(req)
		if err != nil {
			return services.Wrap(services.ErrTransient, "upload", "start session", "", err)
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp, "start session"); err != nil {
			return err
		}
		session = resp.Header.Get("Location")
		if session == "" {
			return backoff.Permanent(services.Wrap(services.ErrExternalTool, "upload", "start session", "no session location returned", nil))
		}
		return nil
	}
	if err := backoff.Retry(operation, u.retryPolicy(ctx)); err != nil {
		return "", err
	}
	return session, nil
}

// sendChunk uploads one chunk. It returns a non-nil Result when the server
// reports the upload finished, otherwise the next byte offset to send.
func (u *Uploader) sendChunk(ctx context.Context, session string, chunk []byte, offset, total int64) (*Result, int64, error) {
	var (
		result     *Result
		nextOffset int64
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(chunk))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build chunk request: %w", err))
		}
		last := offset + int64(len(chunk)) - 1
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, last, total))

		resp, err := u.client.Do(req)
		if err != nil {
			// Connection dropped mid-chunk: ask the server how much arrived.
			confirmed, probeErr := u.probeOffset(ctx, session, total)
			if probeErr == nil {
				nextOffset = confirmed
				return nil
			}
			return services.Wrap(services.ErrTransient, "upload", "send chunk", "", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			var payload struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return backoff.Permanent(fmt.Errorf("decode upload response: %w", err))
			}
			result = &Result{VideoID: payload.ID, URL: watchURLPrefix + payload.ID}
			return nil
		case resp.StatusCode == 308:
			nextOffset = parseRangeEnd(resp.Header.Get("Range"))
			return nil
		default:
			return classifyStatus(resp, "send chunk")
		}
	}
	if err := backoff.Retry(operation, u.retryPolicy(ctx)); err != nil {
		return nil, 0, err
	}
	return result, nextOffset, nil
}

// probeOffset asks the session how many bytes it has durably received.
func (u *Uploader) probeOffset(ctx context.Context, session string, total int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 308 {
		return 0, fmt.Errorf("status probe returned %d", resp.StatusCode)
	}
	return parseRangeEnd(resp.Header.Get("Range")), nil
}

// parseRangeEnd turns "bytes=0-1048575" into the next offset to send.
// An absent header means nothing has been received yet.
func parseRangeEnd(header string) int64 {
	header = strings.TrimPrefix(header, "bytes=")
	_, end, found := strings.Cut(header, "-")
	if !found {
		return 0
	}
	value, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return 0
	}
	return value + 1
}

func classifyStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return backoff.Permanent(services.Wrap(services.ErrConfiguration, "upload", operation,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "upload", operation,
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return backoff.Permanent(services.Wrap(services.ErrExternalTool, "upload", operation,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil))
	}
}

func (u *Uploader) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(backoff.WithMaxRetries(policy, 5), ctx)
}
