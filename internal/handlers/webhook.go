// Package handlers exposes the HTTP surface of the relay.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wabotai/wabot/internal/config"
	"github.com/wabotai/wabot/internal/dispatch"
)

// Dispatcher turns a raw delivery body into an outcome.
type Dispatcher interface {
	Handle(ctx context.Context, payload []byte) dispatch.Outcome
}

// WebhookHandler serves the platform verification handshake and inbound
// message deliveries.
type WebhookHandler struct {
	logger      *slog.Logger
	dispatcher  Dispatcher
	verifyToken string
}

func NewWebhookHandler(log *slog.Logger, dispatcher Dispatcher, cfg config.WhatsAppConfig) *WebhookHandler {
	return &WebhookHandler{
		logger:      log.With(slog.String("handler", "webhook")),
		dispatcher:  dispatcher,
		verifyToken: cfg.VerifyToken,
	}
}

// Register mounts the webhook routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
}

// Verify answers the subscription handshake. The platform sends its verify
// token and a challenge; echoing the challenge confirms ownership.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Warn("verification rejected", slog.String("mode", mode))
		return c.String(http.StatusForbidden, "verification failed")
	}
	h.logger.Info("webhook verified")
	return c.String(http.StatusOK, challenge)
}

// Receive handles one delivery. The response is always 200 with a status
// body, so the platform does not retry deliveries we already inspected.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("read delivery body", slog.Any("error", err))
		return c.JSON(http.StatusOK, dispatch.Outcome{Status: dispatch.StatusInvalid, Detail: "unreadable body"})
	}
	out := h.dispatcher.Handle(c.Request().Context(), body)
	return c.JSON(http.StatusOK, out)
}
