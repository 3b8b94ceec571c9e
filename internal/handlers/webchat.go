package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel/adapters/webchat"
)

// WebChatHandler upgrades widget connections and hands them to the
// web chat adapter.
type WebChatHandler struct {
	adapter  *webchat.Adapter
	gate     Gatekeeper
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Gatekeeper answers whether a channel accepts traffic.
type Gatekeeper interface {
	Allowed(t channel.Type) bool
}

func NewWebChatHandler(adapter *webchat.Adapter, gate Gatekeeper, log *slog.Logger) *WebChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebChatHandler{
		adapter: adapter,
		gate:    gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The widget is embedded on customer sites.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.With(slog.String("handler", "webchat")),
	}
}

func (h *WebChatHandler) Register(e *echo.Echo) {
	e.GET("/ws/chat/:client_id", h.Connect)
}

func (h *WebChatHandler) Connect(c echo.Context) error {
	if !h.gate.Allowed(channel.TypeWeb) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "web chat disabled")
	}
	clientID := c.Param("client_id")
	if clientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client id required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.Any("error", err))
		return nil
	}

	h.adapter.HandleConn(c.Request().Context(), clientID, conn)
	return nil
}
