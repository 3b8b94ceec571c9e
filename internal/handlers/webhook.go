package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel/adapters/whatsapp"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

const maxWebhookBody = 1 << 20

// Enqueuer accepts parsed inbound events for asynchronous processing.
type Enqueuer interface {
	Enqueue(ev channel.InboundEvent) bool
}

// WebhookHandler terminates the gateway callbacks. It acknowledges
// fast and hands the event to the pipeline; processing never blocks
// the webhook response.
type WebhookHandler struct {
	whatsapp  *whatsapp.Adapter
	pipeline  Enqueuer
	instagram config.InstagramConfig
	logger    *slog.Logger
}

func NewWebhookHandler(wa *whatsapp.Adapter, pipeline Enqueuer, ig config.InstagramConfig, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		whatsapp:  wa,
		pipeline:  pipeline,
		instagram: ig,
		logger:    log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook/whatsapp", h.WhatsApp)
	e.GET("/webhook/instagram", h.InstagramVerify)
	e.POST("/webhook/instagram", h.Instagram)
}

// WhatsApp receives Z-API callbacks. Malformed or irrelevant payloads
// still return 200 so the gateway does not retry them forever.
func (h *WebhookHandler) WhatsApp(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}

	ev, err := h.whatsapp.ParseWebhook(body)
	if err != nil {
		if !errors.Is(err, whatsapp.ErrIgnoredEvent) {
			h.logger.Warn("unparseable webhook", slog.Any("error", err))
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	h.pipeline.Enqueue(ev)
	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

// InstagramVerify answers the subscription handshake.
func (h *WebhookHandler) InstagramVerify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.instagram.VerifyToken {
		return c.String(http.StatusOK, challenge)
	}
	return echo.NewHTTPError(http.StatusForbidden, "verification failed")
}

// Instagram acknowledges event deliveries. The adapter is reserved;
// events are accepted and dropped until the channel goes live.
func (h *WebhookHandler) Instagram(c echo.Context) error {
	h.logger.Debug("instagram event received")
	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}
