package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/llm"
	"github.com/botrt/botrt/internal/session"
)

// Compactor folds long conversation histories into summary markers.
// Compaction is append-only: the original messages stay in the table
// and history assembly starts at the newest marker.
type Compactor struct {
	store    *session.Store
	provider llm.Provider
	botCfg   *config.BotConfigService
	cfg      config.SchedulerConfig
	logger   *slog.Logger
}

// NewCompactor creates the background compaction job.
func NewCompactor(store *session.Store, provider llm.Provider, botCfg *config.BotConfigService,
	cfg config.SchedulerConfig, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		store:    store,
		provider: provider,
		botCfg:   botCfg,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run waits out the initial delay, then compacts on an interval until
// ctx is cancelled.
func (c *Compactor) Run(ctx context.Context) {
	c.logger.Info("compactor started",
		"initialDelay", c.cfg.CompactInitial, "interval", c.cfg.CompactEvery)
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.cfg.CompactInitial):
	}
	ticker := time.NewTicker(c.cfg.CompactEvery)
	defer ticker.Stop()
	for {
		c.Pass(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info("compactor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Pass scans every tenant with compaction enabled and compacts sessions
// whose uncompacted tail exceeds the tenant threshold.
func (c *Compactor) Pass(ctx context.Context) {
	tenants, err := c.store.Tenants(ctx)
	if err != nil {
		c.logger.Error("compactor tenant scan failed", "error", err)
		return
	}
	for _, tenant := range tenants {
		threshold := c.botCfg.GetInt(ctx, tenant, config.KeyPromptCompact, 0)
		if threshold <= 0 {
			continue
		}
		sessions, err := c.store.RecentSessions(ctx, tenant, 100)
		if err != nil {
			c.logger.Error("compactor session scan failed", "tenant", tenant, "error", err)
			continue
		}
		for _, sess := range sessions {
			if err := c.CompactSession(ctx, sess, threshold); err != nil {
				c.logger.Error("compaction failed", "session", sess.ID, "error", err)
			}
		}
	}
}

// CompactSession summarizes a session's uncompacted tail when it holds
// more than threshold messages, keeping the last threshold of them
// verbatim.
func (c *Compactor) CompactSession(ctx context.Context, sess *session.Session, threshold int) error {
	msgs, err := c.store.Messages(ctx, sess.ID)
	if err != nil {
		return err
	}
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleCompact {
			start = i + 1
			break
		}
	}
	tail := msgs[start:]
	if len(tail) <= threshold {
		return nil
	}

	toSummarize := tail[:len(tail)-threshold]
	summary := c.summarize(llm.WithTenant(ctx, sess.TenantID), toSummarize)
	if _, err := c.store.SaveMessage(ctx, sess.ID, sess.UserID, session.RoleCompact, summary, session.MessageTypeText); err != nil {
		return fmt.Errorf("write compact marker: %w", err)
	}
	c.logger.Info("compacted session",
		"session", sess.ID, "summarized", len(toSummarize), "kept", threshold)
	return nil
}

// summarize asks the model for a summary, falling back to the raw
// transcript under a SUMMARY header when the model is unavailable.
func (c *Compactor) summarize(ctx context.Context, msgs []*session.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(session.RoleName(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	transcript := sb.String()

	if c.provider != nil {
		resp, err := c.provider.Generate(ctx, "", []llm.Message{
			{Role: "system", Content: "Summarize this conversation concisely, preserving facts, names, and decisions."},
			{Role: "user", Content: transcript},
		})
		if err == nil && resp != "" {
			return resp
		}
		c.logger.Warn("summary generation failed, storing raw transcript", "error", err)
	}
	return "SUMMARY:\n" + transcript
}
