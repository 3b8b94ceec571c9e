package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/auth"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/gate"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/leads"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/training"
)

// AdminHandler is the operator console API: login, channel control,
// conversation takeover, bot training and lead management.
type AdminHandler struct {
	admin    config.AdminConfig
	authCfg  config.AuthConfig
	gate     *gate.Gate
	convs    *conversation.Service
	registry *channel.Registry
	training *training.Service
	leads    *leads.Service
	logger   *slog.Logger
}

func NewAdminHandler(
	admin config.AdminConfig,
	authCfg config.AuthConfig,
	g *gate.Gate,
	convs *conversation.Service,
	registry *channel.Registry,
	trainingSvc *training.Service,
	leadSvc *leads.Service,
	log *slog.Logger,
) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		admin:    admin,
		authCfg:  authCfg,
		gate:     g,
		convs:    convs,
		registry: registry,
		training: trainingSvc,
		leads:    leadSvc,
		logger:   log.With(slog.String("handler", "admin")),
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)

	api := e.Group("/api")
	api.GET("/control/bot", h.GetBot)
	api.PUT("/control/bot", h.SetBot)
	api.GET("/control/channels", h.ListChannels)
	api.PUT("/control/channels/:channel", h.SetChannel)

	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:channel/:participant/messages", h.ConversationMessages)
	api.POST("/conversations/:channel/:participant/takeover", h.Takeover)
	api.POST("/conversations/:channel/:participant/release", h.Release)
	api.POST("/conversations/:channel/:participant/send", h.OperatorSend)

	api.GET("/training/profile", h.GetProfile)
	api.PUT("/training/profile", h.SaveProfile)

	api.GET("/leads", h.ListLeads)
	api.PATCH("/leads/:id", h.UpdateLead)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AdminHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Username != h.admin.Username || !auth.VerifyPassword(h.admin.Password, req.Password) {
		h.logger.Warn("login rejected", slog.String("username", req.Username))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	expiresIn, err := time.ParseDuration(h.authCfg.JWTExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	token, expiresAt, err := auth.GenerateToken(req.Username, h.authCfg.JWTSecret, expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AdminHandler) GetBot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gate.Bot())
}

type setBotRequest struct {
	Enabled     *bool `json:"enabled" validate:"required"`
	Maintenance *bool `json:"maintenance"`
}

// SetBot flips the global switch. Maintenance is optional and keeps
// its current value when omitted.
func (h *AdminHandler) SetBot(c echo.Context) error {
	var req setBotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := h.gate.Bot()
	cfg.Enabled = *req.Enabled
	if req.Maintenance != nil {
		cfg.Maintenance = *req.Maintenance
	}
	if err := h.gate.SetBot(c.Request().Context(), cfg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.gate.Bot())
}

func (h *AdminHandler) ListChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gate.States())
}

type setChannelRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func (h *AdminHandler) SetChannel(c echo.Context) error {
	channelType, err := channel.ParseType(c.Param("channel"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req setChannelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gate.Set(c.Request().Context(), channelType, *req.Enabled); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.gate.States())
}

func (h *AdminHandler) ListConversations(c echo.Context) error {
	owner := conversation.OwnerHuman
	if raw := c.QueryParam("owner"); raw != "" {
		parsed, err := conversation.ParseOwner(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		owner = parsed
	}

	states, err := h.convs.List(c.Request().Context(), owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	type item struct {
		Channel     string    `json:"channel"`
		Participant string    `json:"participant"`
		Owner       string    `json:"owner"`
		UpdatedAt   time.Time `json:"updated_at"`
	}
	out := make([]item, 0, len(states))
	for _, st := range states {
		out = append(out, item{
			Channel:     string(st.Key.Channel),
			Participant: st.Key.Participant,
			Owner:       string(st.Owner),
			UpdatedAt:   st.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) conversationKey(c echo.Context) (channel.ConversationKey, error) {
	channelType, err := channel.ParseType(c.Param("channel"))
	if err != nil {
		return channel.ConversationKey{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	key := channel.ConversationKey{Channel: channelType, Participant: c.Param("participant")}
	if !key.Valid() {
		return channel.ConversationKey{}, echo.NewHTTPError(http.StatusBadRequest, "participant required")
	}
	return key, nil
}

func (h *AdminHandler) ConversationMessages(c echo.Context) error {
	key, err := h.conversationKey(c)
	if err != nil {
		return err
	}
	recs, err := h.convs.History(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	type item struct {
		Role      string    `json:"role"`
		Kind      string    `json:"kind"`
		Direction string    `json:"direction"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]item, 0, len(recs))
	for _, rec := range recs {
		out = append(out, item{
			Role:      rec.Role,
			Kind:      string(rec.Kind),
			Direction: rec.Direction,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) Takeover(c echo.Context) error {
	return h.setOwner(c, conversation.OwnerHuman)
}

func (h *AdminHandler) Release(c echo.Context) error {
	return h.setOwner(c, conversation.OwnerAI)
}

func (h *AdminHandler) setOwner(c echo.Context, owner conversation.Owner) error {
	key, err := h.conversationKey(c)
	if err != nil {
		return err
	}
	if err := h.convs.SetOwner(c.Request().Context(), key, owner); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"owner": string(owner)})
}

type operatorSendRequest struct {
	Message string `json:"message" validate:"required"`
}

// OperatorSend delivers a human reply through the conversation's
// channel and records it in the history.
func (h *AdminHandler) OperatorSend(c echo.Context) error {
	key, err := h.conversationKey(c)
	if err != nil {
		return err
	}
	var req operatorSendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sender, err := h.registry.Sender(key.Channel)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "channel cannot deliver messages")
	}

	ctx := c.Request().Context()
	if err := sender.Send(ctx, channel.OutboundMessage{Key: key, Text: req.Message}); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if err := h.convs.Append(ctx, key, conversation.RoleOperator, channel.KindText, req.Message); err != nil {
		h.logger.Error("store operator message failed", slog.Any("error", err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}

func (h *AdminHandler) GetProfile(c echo.Context) error {
	return c.JSON(http.StatusOK, h.training.Active(c.Request().Context()))
}

type saveProfileRequest struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Goals        string         `json:"goals"`
	Tone         string         `json:"tone"`
	Restrictions string         `json:"restrictions"`
	Knowledge    string         `json:"knowledge"`
	FAQs         []training.FAQ `json:"faqs" validate:"dive"`
	ReplyDelay   int            `json:"reply_delay" validate:"gte=0,lte=30"`
}

func (h *AdminHandler) SaveProfile(c echo.Context) error {
	var req saveProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	saved, err := h.training.Save(c.Request().Context(), training.BotProfile{
		Name:         req.Name,
		Description:  req.Description,
		Goals:        req.Goals,
		Tone:         req.Tone,
		Restrictions: req.Restrictions,
		Knowledge:    req.Knowledge,
		FAQs:         req.FAQs,
		ReplyDelay:   req.ReplyDelay,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, saved)
}

func (h *AdminHandler) ListLeads(c echo.Context) error {
	out, err := h.leads.List(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if out == nil {
		out = []leads.Lead{}
	}
	return c.JSON(http.StatusOK, out)
}

type updateLeadRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

func (h *AdminHandler) UpdateLead(c echo.Context) error {
	var req updateLeadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.leads.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, req.Notes)
	if err != nil {
		if errors.Is(err, leads.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "lead not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}
