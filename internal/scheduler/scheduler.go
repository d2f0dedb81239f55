package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/script"
	"github.com/botrt/botrt/internal/session"
)

// Scheduler fires tenant automations. Every tick it re-reads the
// automation table and re-parses each schedule, so edits take effect on
// the next tick without a restart. Automations run sequentially within
// a tick.
type Scheduler struct {
	cfg      config.SchedulerConfig
	store    *session.Store
	registry *script.Registry
	cache    *session.ContextCache
	broker   *session.InputBroker
	workDir  string
	logger   *slog.Logger

	now func() time.Time // test seam
}

// New creates a scheduler over the automation table.
func New(cfg config.SchedulerConfig, store *session.Store, registry *script.Registry,
	cache *session.ContextCache, broker *session.InputBroker, workDir string, logger *slog.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		registry: registry,
		cache:    cache,
		broker:   broker,
		workDir:  workDir,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("automation scheduler started", "interval", s.cfg.TickInterval)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("automation scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass.
func (s *Scheduler) Tick(ctx context.Context) {
	autos, err := s.store.ListActiveAutomations(ctx)
	if err != nil {
		s.logger.Error("list automations failed", "error", err)
		return
	}
	now := s.now()
	for _, a := range autos {
		if a.Kind != session.AutomationKindScheduled {
			continue
		}
		due, err := s.Due(a, now)
		if err != nil {
			s.logger.Warn("bad schedule skipped",
				"automation", a.ID, "schedule", a.Schedule, "error", err)
			continue
		}
		if !due {
			continue
		}
		// Stamp before running, so a crashing script cannot retrigger
		// itself every tick.
		if err := s.store.UpdateLastTriggered(ctx, a.ID, now); err != nil {
			s.logger.Error("stamp automation failed", "automation", a.ID, "error", err)
			continue
		}
		if err := s.runAutomation(ctx, a); err != nil {
			s.logger.Error("automation failed",
				"automation", a.ID, "script", a.Param, "error", err)
		}
	}
}

// Due reports whether an automation should fire now: its next cron
// occurrence falls inside the lookahead window and it has not been
// triggered within the debounce window.
func (s *Scheduler) Due(a *session.Automation, now time.Time) (bool, error) {
	expr, err := ParseCron(a.Schedule)
	if err != nil {
		return false, err
	}
	next := expr.Next(now)
	if next.IsZero() || next.Sub(now) > s.cfg.Lookahead {
		return false, nil
	}
	if a.LastTriggered != nil && now.Sub(*a.LastTriggered) < s.cfg.Debounce {
		return false, nil
	}
	return true, nil
}

// runAutomation loads the compiled script and runs it under a synthetic
// automation session. A missing compiled script is a no-op: the
// schedule may outlive a pruned script by one sweep.
func (s *Scheduler) runAutomation(ctx context.Context, a *session.Automation) error {
	astPath := filepath.Join(s.workDir,
		a.TenantID+".gbai", a.TenantID+".gbdialog", a.Param+".ast")
	if _, err := os.Stat(astPath); os.IsNotExist(err) {
		s.logger.Warn("compiled script missing, skipping",
			"script", a.Param, "tenant", a.TenantID)
		return nil
	}
	unit, err := script.LoadUnit(a.Param, astPath, s.registry, s.logger)
	if err != nil {
		return err
	}

	sess, err := s.store.GetOrCreateUserSession(ctx, a.TenantID, "automation_"+a.TenantID)
	if err != nil {
		return fmt.Errorf("automation session: %w", err)
	}
	sc := script.NewScope(a.TenantID, sess.ID, sess.UserID, s.store, s.cache, s.broker)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ScriptTimeout)
	defer cancel()
	s.logger.Info("running automation", "script", a.Param, "tenant", a.TenantID)
	return unit.Run(runCtx, sc)
}
