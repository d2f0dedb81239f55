package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/kv"
	"github.com/botrt/botrt/internal/session"
)

func newBotConfig(t *testing.T) (*config.BotConfigService, kv.Store) {
	t.Helper()
	store, err := session.NewStore(t.TempDir() + "/cfg.db")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	kvStore := kv.NewMemoryStore()
	return config.NewBotConfigService(store.DB(), kvStore), kvStore
}

func TestBotConfigResolutionOrder(t *testing.T) {
	svc, kvStore := newBotConfig(t)
	ctx := context.Background()

	// Nothing set: static default wins.
	if got := svc.Get(ctx, "acme", "llm-cache", "fallback"); got != "fallback" {
		t.Errorf("default = %q", got)
	}

	// kv only: kv wins over the default.
	kvStore.Set(ctx, "bot_config:acme:llm-cache", "from-kv")
	if got := svc.Get(ctx, "acme", "llm-cache", "fallback"); got != "from-kv" {
		t.Errorf("kv = %q", got)
	}

	// Table set: table wins over kv.
	if err := svc.Set(ctx, "acme", "llm-cache", "from-table"); err != nil {
		t.Fatal(err)
	}
	if got := svc.Get(ctx, "acme", "llm-cache", "fallback"); got != "from-table" {
		t.Errorf("table = %q", got)
	}

	// Tenants are isolated.
	if got := svc.Get(ctx, "other", "llm-cache", "fallback"); got != "fallback" {
		t.Errorf("other tenant = %q", got)
	}
}

func TestBotConfigTypedGetters(t *testing.T) {
	svc, _ := newBotConfig(t)
	ctx := context.Background()

	svc.Set(ctx, "acme", "llm-cache", "yes")
	svc.Set(ctx, "acme", "prompt-compact", "25")
	svc.Set(ctx, "acme", "llm-cache-threshold", "0.9")
	svc.Set(ctx, "acme", "llm-cache-ttl", "120")
	svc.Set(ctx, "acme", "broken", "not-a-number")

	if !svc.GetBool(ctx, "acme", "llm-cache", false) {
		t.Error("GetBool yes = false")
	}
	if got := svc.GetInt(ctx, "acme", "prompt-compact", 0); got != 25 {
		t.Errorf("GetInt = %d", got)
	}
	if got := svc.GetFloat(ctx, "acme", "llm-cache-threshold", 0.5); got != 0.9 {
		t.Errorf("GetFloat = %v", got)
	}
	if got := svc.GetDuration(ctx, "acme", "llm-cache-ttl", time.Minute); got != 2*time.Minute {
		t.Errorf("GetDuration = %v", got)
	}
	// Unparsable values fall back.
	if got := svc.GetInt(ctx, "acme", "broken", 7); got != 7 {
		t.Errorf("broken GetInt = %d", got)
	}
}

func TestBotConfigSyncCSV(t *testing.T) {
	svc, _ := newBotConfig(t)
	ctx := context.Background()

	csv := "name,value\nllm-cache,true\nllm-cache-ttl,600\n\nprompt-compact,30\n"
	n, err := svc.SyncCSV(ctx, "acme", []byte(csv))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 3 {
		t.Errorf("applied = %d, want 3", n)
	}
	if got := svc.GetInt(ctx, "acme", "prompt-compact", 0); got != 30 {
		t.Errorf("prompt-compact = %d", got)
	}
}
