// Package store – retention.go prunes old records on a cron schedule so
// the durable log does not grow without bound.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig configures the pruner.
type RetentionConfig struct {
	// Enabled turns pruning on.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression; default runs daily at 03:00.
	Schedule string `yaml:"schedule"`

	// MaxAgeDays is the retention window. 0 disables pruning.
	MaxAgeDays int `yaml:"max_age_days"`
}

// DefaultRetentionConfig returns a disabled pruner with a daily schedule.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:  false,
		Schedule: "0 3 * * *",
	}
}

// Pruner deletes records older than the retention window on a schedule.
type Pruner struct {
	cfg    RetentionConfig
	store  *Store
	cron   *cron.Cron
	logger *slog.Logger
}

// NewPruner builds a pruner. Start does nothing when retention is
// disabled or the window is zero.
func NewPruner(cfg RetentionConfig, st *Store, logger *slog.Logger) *Pruner {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		cfg:    cfg,
		store:  st,
		logger: logger.With("component", "retention"),
	}
}

// Start schedules the prune job.
func (p *Pruner) Start() error {
	if !p.cfg.Enabled || p.cfg.MaxAgeDays <= 0 {
		return nil
	}
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.cfg.Schedule, p.runOnce); err != nil {
		return fmt.Errorf("scheduling retention prune: %w", err)
	}
	p.cron.Start()
	p.logger.Info("retention: pruner started",
		"schedule", p.cfg.Schedule, "max_age_days", p.cfg.MaxAgeDays)
	return nil
}

// Stop cancels the schedule and waits for a running job to finish.
func (p *Pruner) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// runOnce prunes records older than the retention window.
func (p *Pruner) runOnce() {
	cutoff := time.Now().AddDate(0, 0, -p.cfg.MaxAgeDays).Unix()
	n, err := p.store.PruneBefore(cutoff)
	if err != nil {
		p.logger.Error("retention: prune failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("retention: pruned messages", "removed", n, "cutoff", cutoff)
	}
}
