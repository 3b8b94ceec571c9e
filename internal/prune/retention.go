// Package prune removes conversation history past the configured
// retention window on a cron schedule.
package prune

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/config"
)

// Store is the persistence surface the pruner needs.
type Store interface {
	PruneMessages(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention runs the nightly history cleanup.
type Retention struct {
	cfg   config.RetentionConfig
	store Store
	cron  *cron.Cron
	log   *slog.Logger
}

func NewRetention(cfg config.RetentionConfig, store Store, log *slog.Logger) *Retention {
	if log == nil {
		log = slog.Default()
	}
	return &Retention{
		cfg:   cfg,
		store: store,
		log:   log.With(slog.String("component", "retention")),
	}
}

// Start schedules the job. With MaxDays disabled nothing is
// scheduled and Start is a no-op.
func (r *Retention) Start() error {
	if r.cfg.MaxDays <= 0 {
		r.log.Info("retention disabled")
		return nil
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Info("retention scheduled",
		slog.String("schedule", r.cfg.Schedule),
		slog.Int("max_days", r.cfg.MaxDays))
	return nil
}

// Stop halts the scheduler and waits for a running job.
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *Retention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -r.cfg.MaxDays)
	removed, err := r.store.PruneMessages(ctx, cutoff)
	if err != nil {
		r.log.Error("prune failed", slog.Any("error", err))
		return
	}
	r.log.Info("prune completed", slog.Int64("removed", removed))
}
