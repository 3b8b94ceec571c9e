package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/gate"
)

type PingHandler struct {
	gate   *gate.Gate
	logger *slog.Logger
}

func NewPingHandler(g *gate.Gate, log *slog.Logger) *PingHandler {
	return &PingHandler{gate: g, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health reports liveness plus the current gate state so monitors see
// which channels are open.
func (h *PingHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"bot":      h.gate.Bot(),
		"channels": h.gate.States(),
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
