package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetOrCreateUserSessionGuest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreateUserSession(ctx, "acme", "")
	if err != nil {
		t.Fatalf("create guest session: %v", err)
	}
	if sess.TenantID != "acme" {
		t.Errorf("tenant = %q, want acme", sess.TenantID)
	}

	users, err := store.UserSessions(ctx, sess.UserID, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 session, got %d", len(users))
	}
}

func TestGetOrCreateUserSessionReusesLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateUserSession(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.GetOrCreateUserSession(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same session, got %s then %s", first.ID, second.ID)
	}
}

func TestGetOrCreateUserSessionIsTenantScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.GetOrCreateUserSession(ctx, "tenant-a", "alice")
	if err != nil {
		t.Fatalf("tenant-a: %v", err)
	}
	b, err := store.GetOrCreateUserSession(ctx, "tenant-b", "alice")
	if err != nil {
		t.Fatalf("tenant-b: %v", err)
	}
	if b.ID == a.ID {
		t.Fatalf("session %s shared across tenants", a.ID)
	}
	if b.TenantID != "tenant-b" {
		t.Errorf("tenant = %q, want tenant-b", b.TenantID)
	}

	// The same user under the same tenant still reuses its session.
	again, err := store.GetOrCreateUserSession(ctx, "tenant-a", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != a.ID {
		t.Errorf("expected %s, got %s", a.ID, again.ID)
	}
}

func TestSaveMessageIndexesAreGapless(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreateUserSession(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.SaveMessage(ctx, sess.ID, "alice", RoleUser, "hello", MessageTypeText); err != nil {
				t.Errorf("save: %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("expected %d messages, got %d", n, len(msgs))
	}
	for i, m := range msgs {
		if m.MessageIndex != i {
			t.Errorf("message %d has index %d", i, m.MessageIndex)
		}
	}
}

func TestSaveMessagePersistsTypeAndContextDefault(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreateUserSession(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.ContextData != "{}" {
		t.Errorf("context data = %q, want {}", sess.ContextData)
	}

	saved, err := store.SaveMessage(ctx, sess.ID, "alice", RoleUser, "hello", MessageTypeText)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.MessageType != MessageTypeText {
		t.Errorf("saved type = %d", saved.MessageType)
	}

	msgs, err := store.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MessageType != MessageTypeText {
		t.Errorf("stored type = %+v", msgs)
	}
}

func TestSaveMessageUnknownSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveMessage(context.Background(), "no-such-session", "alice", RoleUser, "hi", MessageTypeText)
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestConversationHistorySkipsBeforeCompact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.GetOrCreateUserSession(ctx, "acme", "alice")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	saves := []struct {
		role    int
		content string
	}{
		{RoleUser, "old question"},
		{RoleAssistant, "old answer"},
		{RoleCompact, "earlier we discussed widgets"},
		{RoleUser, "new question"},
	}
	for _, s := range saves {
		if _, err := store.SaveMessage(ctx, sess.ID, "alice", s.role, s.content, MessageTypeText); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	history, err := store.ConversationHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(history), history)
	}
	if history[0].Role != "system" || !strings.Contains(history[0].Content, "widgets") {
		t.Errorf("first entry should be the summary as system, got %+v", history[0])
	}
	if history[1].Content != "new question" {
		t.Errorf("second entry = %+v", history[1])
	}
}

func TestRoleNameUnknown(t *testing.T) {
	if got := RoleName(42); got != "unknown" {
		t.Errorf("RoleName(42) = %q, want unknown", got)
	}
	if got := RoleName(RoleCompact); got != "compact" {
		t.Errorf("RoleName(compact) = %q", got)
	}
}

func TestAutomationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateAutomation(ctx, "acme", AutomationKindScheduled, "*/5 * * * *", "reminder")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	active, err := store.ListActiveAutomations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].Param != "reminder" {
		t.Fatalf("unexpected automations: %+v", active)
	}
	if active[0].LastTriggered != nil {
		t.Error("fresh automation should have no last_triggered")
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := store.UpdateLastTriggered(ctx, a.ID, now); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	active, _ = store.ListActiveAutomations(ctx)
	if active[0].LastTriggered == nil || !active[0].LastTriggered.Equal(now) {
		t.Errorf("last_triggered = %v, want %v", active[0].LastTriggered, now)
	}

	if err := store.DeleteAutomations(ctx, "acme", AutomationKindScheduled, "reminder"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	active, _ = store.ListActiveAutomations(ctx)
	if len(active) != 0 {
		t.Errorf("expected no automations after delete, got %d", len(active))
	}
}
