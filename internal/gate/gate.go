// Package gate controls which channels accept inbound traffic and
// whether the bot is enabled at all. The flags live in Postgres so
// they survive restarts; a cached snapshot keeps the hot path off the
// database.
package gate

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/channel"
)

// BotConfig is the global switch over every channel. Maintenance
// closes intake without flipping the per-channel flags.
type BotConfig struct {
	Enabled     bool `json:"enabled"`
	Maintenance bool `json:"maintenance"`
}

// Store is the persistence surface the gate needs.
type Store interface {
	ListGates(ctx context.Context) (map[channel.Type]bool, error)
	SetGate(ctx context.Context, t channel.Type, enabled bool) error
	GetBotConfig(ctx context.Context) (BotConfig, error)
	SetBotConfig(ctx context.Context, cfg BotConfig) error
}

type snapshot struct {
	bot      BotConfig
	channels map[channel.Type]bool
}

// Gate answers Allowed from an in-memory snapshot refreshed on an
// interval and invalidated on every write.
type Gate struct {
	store    Store
	interval time.Duration
	snapshot atomic.Pointer[snapshot]
	log      *slog.Logger
	done     chan struct{}
}

func New(store Store, interval time.Duration, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	g := &Gate{
		store:    store,
		interval: interval,
		log:      log.With(slog.String("component", "gate")),
		done:     make(chan struct{}),
	}
	g.snapshot.Store(&snapshot{channels: map[channel.Type]bool{}})
	return g
}

// Start loads the initial snapshot and begins the refresh loop.
func (g *Gate) Start(ctx context.Context) error {
	if err := g.refresh(ctx); err != nil {
		return err
	}
	go g.loop()
	return nil
}

// Stop terminates the refresh loop.
func (g *Gate) Stop() {
	close(g.done)
}

func (g *Gate) loop() {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := g.refresh(ctx); err != nil {
				g.log.Warn("refresh failed", slog.Any("error", err))
			}
			cancel()
		}
	}
}

func (g *Gate) refresh(ctx context.Context) error {
	flags, err := g.store.ListGates(ctx)
	if err != nil {
		return err
	}
	bot, err := g.store.GetBotConfig(ctx)
	if err != nil {
		return err
	}
	g.snapshot.Store(&snapshot{bot: bot, channels: flags})
	return nil
}

// Allowed reports whether t currently accepts inbound traffic. The
// global switch overrides every channel flag; unknown channels are
// closed.
func (g *Gate) Allowed(t channel.Type) bool {
	snap := g.snapshot.Load()
	if !snap.bot.Enabled || snap.bot.Maintenance {
		return false
	}
	return snap.channels[t]
}

// Set persists the flag and refreshes the snapshot immediately so the
// change takes effect without waiting for the next tick.
func (g *Gate) Set(ctx context.Context, t channel.Type, enabled bool) error {
	if err := g.store.SetGate(ctx, t, enabled); err != nil {
		return err
	}
	g.log.Info("gate updated", slog.String("channel", string(t)), slog.Bool("enabled", enabled))
	return g.refresh(ctx)
}

// Bot returns the global switch state.
func (g *Gate) Bot() BotConfig {
	return g.snapshot.Load().bot
}

// SetBot persists the global switch and refreshes the snapshot.
func (g *Gate) SetBot(ctx context.Context, cfg BotConfig) error {
	if err := g.store.SetBotConfig(ctx, cfg); err != nil {
		return err
	}
	g.log.Info("bot config updated",
		slog.Bool("enabled", cfg.Enabled),
		slog.Bool("maintenance", cfg.Maintenance))
	return g.refresh(ctx)
}

// States returns a copy of the per-channel snapshot for the admin API.
func (g *Gate) States() map[channel.Type]bool {
	snap := g.snapshot.Load()
	out := make(map[channel.Type]bool, len(snap.channels))
	for k, v := range snap.channels {
		out[k] = v
	}
	return out
}
