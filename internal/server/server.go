package server

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/auth"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func NewServer(
	addr string,
	jwtSecret string,
	pingHandler *handlers.PingHandler,
	webhookHandler *handlers.WebhookHandler,
	webChatHandler *handlers.WebChatHandler,
	adminHandler *handlers.AdminHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if webChatHandler != nil {
		webChatHandler.Register(e)
	}
	if adminHandler != nil {
		adminHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// shouldSkipJWT exempts the public surface: health checks, login, the
// gateway webhooks and the widget socket.
func shouldSkipJWT(path string) bool {
	if path == "/ping" || path == "/health" || path == "/auth/login" {
		return true
	}
	if strings.HasPrefix(path, "/webhook/") {
		return true
	}
	if strings.HasPrefix(path, "/ws/") {
		return true
	}
	return false
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
