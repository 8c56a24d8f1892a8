package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wabotai/wabot/internal/event"
)

// MediaBlob is downloaded media content, owned by the current request.
// DetectedMime is sniffed from the bytes and may disagree with the mime
// the platform declared.
type MediaBlob struct {
	Data         []byte
	DeclaredMime string
	DetectedMime string
}

// Mime returns the best-known content type, preferring what was sniffed
// from the bytes over what the platform declared.
func (b MediaBlob) Mime() string {
	if b.DetectedMime != "" && b.DetectedMime != "application/octet-stream" {
		return b.DetectedMime
	}
	if b.DeclaredMime != "" {
		return b.DeclaredMime
	}
	return "application/octet-stream"
}

// Extension returns the filename extension for the detected content kind,
// falling back to ".bin" when sniffing found nothing usable.
func (b MediaBlob) Extension() string {
	if m := mimetype.Lookup(b.DetectedMime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".bin"
}

type mediaResolution struct {
	URL string `json:"url"`
}

// FetchMedia resolves a media reference to its transient URL and downloads
// the content. Both calls require the bearer token; a failure at either step
// is reported as one ErrMediaFetch.
func (c *Client) FetchMedia(ctx context.Context, ref event.MediaRef) (MediaBlob, error) {
	var blob MediaBlob
	err := c.retry.Do(ctx, func() error {
		url, err := c.resolveMediaURL(ctx, ref.ID)
		if err != nil {
			return err
		}
		data, err := c.downloadMedia(ctx, url)
		if err != nil {
			return err
		}
		blob = MediaBlob{
			Data:         data,
			DeclaredMime: ref.MimeType,
			DetectedMime: mimetype.Detect(data).String(),
		}
		return nil
	})
	if err != nil {
		c.logger.Error("media fetch failed",
			slog.String("media_id", ref.ID),
			slog.String("declared_mime", ref.MimeType),
			slog.Any("error", err),
		)
		return MediaBlob{}, fmt.Errorf("%w: %v", ErrMediaFetch, err)
	}
	c.logger.Info("media fetched",
		slog.String("media_id", ref.ID),
		slog.String("detected_mime", blob.DetectedMime),
		slog.Int("bytes", len(blob.Data)),
	)
	return blob, nil
}

func (c *Client) resolveMediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/", c.baseURL, c.graphVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build resolve request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve media: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("resolve media status: %d", resp.StatusCode)
	}
	var resolution mediaResolution
	if err := json.NewDecoder(resp.Body).Decode(&resolution); err != nil {
		return "", fmt.Errorf("decode media resolution: %w", err)
	}
	transientURL := strings.TrimSpace(resolution.URL)
	if transientURL == "" {
		return "", fmt.Errorf("resolve media: empty url")
	}
	return transientURL, nil
}

func (c *Client) downloadMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download media status: %d", resp.StatusCode)
	}
	if resp.ContentLength > c.maxMediaBytes {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: max %d bytes", ErrMediaTooLarge, c.maxMediaBytes)
	}
	limited := &io.LimitedReader{R: resp.Body, N: c.maxMediaBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if int64(len(data)) > c.maxMediaBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrMediaTooLarge, c.maxMediaBytes)
	}
	return data, nil
}
