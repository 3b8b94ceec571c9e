package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/ai"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel/adapters/webchat"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel/adapters/whatsapp"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/db"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/gate"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/handlers"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/leads"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/logger"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/orchestrator"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/prune"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/server"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/training"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			storage.New,
			provideGate,
			provideConversationService,
			provideRouter,
			provideTrainingService,
			provideLeadService,
			provideAIClient,
			provideWhatsAppAdapter,
			provideWebChatAdapter,
			provideChannelRegistry,
			provideOrchestrator,
			provideRetention,
			providePingHandler,
			provideWebhookHandler,
			provideWebChatHandler,
			provideAdminHandler,
			provideServer,
		),
		fx.Invoke(
			startGate,
			startOrchestrator,
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres.DSN(), log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideGate(cfg config.Config, store *storage.Store, log *slog.Logger) *gate.Gate {
	return gate.New(store, cfg.Gate.RefreshInterval(), log)
}

func provideConversationService(cfg config.Config, store *storage.Store, log *slog.Logger) *conversation.Service {
	return conversation.NewService(store, cfg.Orchestrator.HistoryWindow, log)
}

func provideRouter(cfg config.Config) *conversation.Router {
	return conversation.NewRouter(cfg.Orchestrator.EscalationKeywords)
}

func provideTrainingService(store *storage.Store, log *slog.Logger) *training.Service {
	return training.NewService(store, log)
}

func provideLeadService(store *storage.Store, log *slog.Logger) *leads.Service {
	return leads.NewService(store, log)
}

func provideAIClient(cfg config.Config, log *slog.Logger) *ai.Client {
	return ai.NewClient(cfg.OpenAI, log)
}

func provideWhatsAppAdapter(cfg config.Config, log *slog.Logger) *whatsapp.Adapter {
	return whatsapp.NewAdapter(cfg.WhatsApp, log)
}

func provideWebChatAdapter(orch *orchestrator.Orchestrator, log *slog.Logger) *webchat.Adapter {
	return webchat.NewAdapter(func(_ context.Context, ev channel.InboundEvent) {
		orch.Enqueue(ev)
	}, log)
}

func provideChannelRegistry(wa *whatsapp.Adapter) *channel.Registry {
	registry := channel.NewRegistry()
	registry.Register(wa)
	return registry
}

func provideOrchestrator(
	cfg config.Config,
	registry *channel.Registry,
	g *gate.Gate,
	convs *conversation.Service,
	router *conversation.Router,
	trainingSvc *training.Service,
	aiClient *ai.Client,
	leadSvc *leads.Service,
	log *slog.Logger,
) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Config{
		Workers:       cfg.Orchestrator.Workers,
		OperatorPhone: cfg.Orchestrator.OperatorPhone,
	}, registry, g, convs, router, trainingSvc, aiClient, leadSvc, log)
}

func provideRetention(cfg config.Config, store *storage.Store, log *slog.Logger) *prune.Retention {
	return prune.NewRetention(cfg.Retention, store, log)
}

func providePingHandler(g *gate.Gate, log *slog.Logger) *handlers.PingHandler {
	return handlers.NewPingHandler(g, log)
}

func provideWebhookHandler(wa *whatsapp.Adapter, orch *orchestrator.Orchestrator, cfg config.Config, log *slog.Logger) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(wa, orch, cfg.Instagram, log)
}

func provideWebChatHandler(adapter *webchat.Adapter, g *gate.Gate, log *slog.Logger) *handlers.WebChatHandler {
	return handlers.NewWebChatHandler(adapter, g, log)
}

func provideAdminHandler(
	cfg config.Config,
	g *gate.Gate,
	convs *conversation.Service,
	registry *channel.Registry,
	trainingSvc *training.Service,
	leadSvc *leads.Service,
	log *slog.Logger,
) *handlers.AdminHandler {
	return handlers.NewAdminHandler(cfg.Admin, cfg.Auth, g, convs, registry, trainingSvc, leadSvc, log)
}

func provideServer(
	cfg config.Config,
	pingHandler *handlers.PingHandler,
	webhookHandler *handlers.WebhookHandler,
	webChatHandler *handlers.WebChatHandler,
	adminHandler *handlers.AdminHandler,
) *server.Server {
	return server.NewServer(cfg.Server.Addr, cfg.Auth.JWTSecret,
		pingHandler, webhookHandler, webChatHandler, adminHandler)
}

func startGate(lc fx.Lifecycle, g *gate.Gate) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return g.Start(ctx) },
		OnStop:  func(context.Context) error { g.Stop(); return nil },
	})
}

func startOrchestrator(lc fx.Lifecycle, orch *orchestrator.Orchestrator, webAdapter *webchat.Adapter, registry *channel.Registry) {
	// The web chat adapter and orchestrator reference each other, so
	// the adapter joins the registry here rather than in a provider.
	registry.Register(webAdapter)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { orch.Start(); return nil },
		OnStop:  func(context.Context) error { orch.Stop(); return nil },
	})
}

func startRetention(lc fx.Lifecycle, retention *prune.Retention) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return retention.Start() },
		OnStop:  func(context.Context) error { retention.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
