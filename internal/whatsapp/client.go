package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wabotai/wabot/internal/config"
)

const defaultBaseURL = "https://graph.facebook.com"

// Client talks to the WhatsApp Cloud API: outbound text messages and the
// two-step media retrieval exchange. All calls carry the bearer token and
// honor the caller's context.
type Client struct {
	logger        *slog.Logger
	http          *http.Client
	baseURL       string
	graphVersion  string
	token         string
	phoneID       string
	recipient     string
	retry         Retry
	maxMediaBytes int64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph API origin. Used by tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a WhatsApp Cloud API client from config.
func NewClient(log *slog.Logger, cfg config.WhatsAppConfig, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultHTTPTimeoutSec) * time.Second
	}
	maxBytes := cfg.MaxMediaBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxMediaBytes
	}
	c := &Client{
		logger:        log.With(slog.String("service", "whatsapp")),
		http:          &http.Client{Timeout: timeout},
		baseURL:       defaultBaseURL,
		graphVersion:  cfg.GraphVersion,
		token:         cfg.Token,
		phoneID:       cfg.PhoneID,
		recipient:     cfg.Recipient,
		retry:         Retry{Attempts: cfg.RetryAttempts, Backoff: time.Second},
		maxMediaBytes: maxBytes,
	}
	if c.graphVersion == "" {
		c.graphVersion = config.DefaultGraphVersion
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

// SendText delivers one plain-text message. An empty recipient falls back
// to the configured default.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		to = c.recipient
	}
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrSendFailed, err)
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.graphVersion, c.phoneID)

	err = c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build send request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("send message status: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		c.logger.Error("outbound send failed", slog.String("to", to), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	c.logger.Info("outbound sent", slog.String("to", to), slog.Int("chars", len(body)))
	return nil
}
