package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/script"
	"github.com/botrt/botrt/internal/session"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:       true,
		TickInterval:  5 * time.Second,
		Lookahead:     60 * time.Second,
		Debounce:      60 * time.Second,
		ScriptTimeout: 10 * time.Second,
	}
}

func newTestScheduler(t *testing.T, workDir string) (*Scheduler, *session.Store) {
	t.Helper()
	store, err := session.NewStore(t.TempDir() + "/sched.db")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	s := New(testSchedulerConfig(), store, script.NewRegistry(), nil, nil, workDir, nil)
	return s, store
}

func TestDueRespectsDebounce(t *testing.T) {
	s, _ := newTestScheduler(t, t.TempDir())
	now := time.Date(2026, 8, 29, 12, 0, 30, 0, time.UTC)

	mk := func(last time.Time) *session.Automation {
		a := &session.Automation{
			TenantID: "acme",
			Kind:     session.AutomationKindScheduled,
			Schedule: "* * * * *",
			Param:    "job",
		}
		if !last.IsZero() {
			a.LastTriggered = &last
		}
		return a
	}

	// Never triggered: due.
	due, err := s.Due(mk(time.Time{}), now)
	if err != nil || !due {
		t.Errorf("fresh automation due = %v, err = %v", due, err)
	}

	// Triggered 30s ago: inside the debounce window, not due.
	due, err = s.Due(mk(now.Add(-30*time.Second)), now)
	if err != nil || due {
		t.Errorf("30s-old trigger should debounce (due = %v)", due)
	}

	// Triggered 90s ago: past the window, due again.
	due, err = s.Due(mk(now.Add(-90*time.Second)), now)
	if err != nil || !due {
		t.Errorf("90s-old trigger should be due (due = %v)", due)
	}
}

func TestDueLookaheadWindow(t *testing.T) {
	s, _ := newTestScheduler(t, t.TempDir())
	// Daily at 14:30.
	a := &session.Automation{
		TenantID: "acme",
		Kind:     session.AutomationKindScheduled,
		Schedule: "30 14 * * *",
		Param:    "daily",
	}

	// 14:29:30, next occurrence 30s away: due.
	now := time.Date(2026, 8, 29, 14, 29, 30, 0, time.UTC)
	if due, _ := s.Due(a, now); !due {
		t.Error("occurrence 30s ahead should be due")
	}

	// 10:00: hours away, not due.
	now = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if due, _ := s.Due(a, now); due {
		t.Error("occurrence hours ahead should not be due")
	}
}

func TestTickRunsScriptAndStamps(t *testing.T) {
	workDir := t.TempDir()
	s, store := newTestScheduler(t, workDir)
	ctx := context.Background()

	// Compiled script on disk.
	dir := filepath.Join(workDir, "acme.gbai", "acme.gbdialog")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "greet.ast"), []byte("TALK \"scheduled hello\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.CreateAutomation(ctx, "acme", session.AutomationKindScheduled, "* * * * *", "greet"); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 30, 0, time.UTC) }
	s.Tick(ctx)

	autos, err := store.ListActiveAutomations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if autos[0].LastTriggered == nil {
		t.Fatal("automation was not stamped")
	}

	// The script ran under the synthetic automation session.
	sess, err := store.GetOrCreateUserSession(ctx, "acme", "automation_acme")
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "scheduled hello" {
		t.Errorf("messages = %+v", msgs)
	}

	// Second tick inside the debounce window: no rerun.
	s.Tick(ctx)
	msgs, _ = store.Messages(ctx, sess.ID)
	if len(msgs) != 1 {
		t.Errorf("debounced tick reran script (%d messages)", len(msgs))
	}
}

func TestTickMissingScriptIsNoOp(t *testing.T) {
	s, store := newTestScheduler(t, t.TempDir())
	ctx := context.Background()

	if _, err := store.CreateAutomation(ctx, "acme", session.AutomationKindScheduled, "* * * * *", "ghost"); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 30, 0, time.UTC) }
	s.Tick(ctx)

	// Still stamped so it does not spin every tick.
	autos, _ := store.ListActiveAutomations(ctx)
	if autos[0].LastTriggered == nil {
		t.Error("missing script should still stamp the attempt")
	}
}
