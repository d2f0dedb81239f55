package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/kv"
)

// fakeProvider counts calls and returns canned responses keyed by the
// last user message. Embeddings come from a fixed table.
type fakeProvider struct {
	calls      int
	embedCalls int
	responses  map[string]string
	vectors    map[string][]float32
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func (f *fakeProvider) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	f.calls++
	last := messages[len(messages)-1].Content
	if resp, ok := f.responses[last]; ok {
		return resp, nil
	}
	return "reply to " + last, nil
}

func (f *fakeProvider) GenerateStream(ctx context.Context, model string, messages []Message, chunks chan<- string) error {
	defer close(chunks)
	resp, err := f.Generate(ctx, model, messages)
	if err != nil {
		return err
	}
	for _, part := range strings.SplitAfter(resp, " ") {
		chunks <- part
	}
	return nil
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.embedCalls++
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func testCacheConfig() config.GenCacheConfig {
	return config.GenCacheConfig{
		Enabled:             true,
		TTL:                 time.Hour,
		SimilarityThreshold: 0.95,
		MaxSimilarityChecks: 100,
		KeyPrefix:           "llm_cache",
	}
}

func newTestCache(t *testing.T, fake *fakeProvider, store kv.Store, cfg config.GenCacheConfig) *CachedProvider {
	t.Helper()
	botCfg := config.NewBotConfigService(nil, store)
	c := NewCachedProvider(fake, store, botCfg, cfg, nil)
	c.sleepFn = func(time.Duration) {}
	return c
}

func userMsg(s string) []Message {
	return []Message{{Role: "user", Content: s}}
}

func TestCacheExactHit(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	first, err := cache.Generate(ctx, "", userMsg("hello"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := cache.Generate(ctx, "", userMsg("hello"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Errorf("cached response differs: %q vs %q", first, second)
	}
	if fake.calls != 1 {
		t.Errorf("provider called %d times, want 1", fake.calls)
	}
}

func TestCacheHitCountBookkeeping(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	if _, err := cache.Generate(ctx, "", userMsg("hello")); err != nil {
		t.Fatal(err)
	}

	readEntry := func() CachedCompletion {
		keys, err := store.Keys(ctx, "llm_cache:*")
		if err != nil || len(keys) != 1 {
			t.Fatalf("keys = %v, err = %v", keys, err)
		}
		raw, err := store.Get(ctx, keys[0])
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		var entry CachedCompletion
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return entry
	}

	if hc := readEntry().HitCount; hc != 0 {
		t.Errorf("fresh entry hit count = %d, want 0", hc)
	}
	if _, err := cache.Generate(ctx, "", userMsg("hello")); err != nil {
		t.Fatal(err)
	}
	if hc := readEntry().HitCount; hc != 1 {
		t.Errorf("hit count after one hit = %d, want 1", hc)
	}
}

func TestCacheDisabledPerTenant(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	// The default tenant turns the cache off in its bot config.
	if err := store.Set(ctx, "bot_config:default:"+config.KeyLLMCache, "false"); err != nil {
		t.Fatal(err)
	}

	cache.Generate(ctx, "", userMsg("hello"))
	cache.Generate(ctx, "", userMsg("hello"))
	if fake.calls != 2 {
		t.Errorf("provider called %d times, want 2 with cache off", fake.calls)
	}

	// A different tenant still caches.
	other := WithTenant(ctx, "acme")
	cache.Generate(other, "", userMsg("hello"))
	cache.Generate(other, "", userMsg("hello"))
	if fake.calls != 3 {
		t.Errorf("provider called %d times, want 3", fake.calls)
	}
}

func TestCacheSemanticThreshold(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{
		vectors: map[string][]float32{
			"user: what is the capital of France": {1, 0},
			"user: capital city of France":        {0.98, 0.199},  // cosine ≈ 0.98
			"user: best pastries in Paris":        {0.90, 0.4359}, // cosine ≈ 0.90
		},
	}
	store := kv.NewMemoryStore()
	cfg := testCacheConfig()
	cfg.SemanticMatching = true
	cache := newTestCache(t, fake, store, cfg)

	if _, err := cache.Generate(ctx, "", userMsg("what is the capital of France")); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 1 {
		t.Fatalf("seed call count = %d", fake.calls)
	}

	// Above threshold: answered from cache.
	if _, err := cache.Generate(ctx, "", userMsg("capital city of France")); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 1 {
		t.Errorf("near-duplicate went to the provider (calls = %d)", fake.calls)
	}

	// Below threshold: generated fresh.
	if _, err := cache.Generate(ctx, "", userMsg("best pastries in Paris")); err != nil {
		t.Fatal(err)
	}
	if fake.calls != 2 {
		t.Errorf("dissimilar prompt should miss (calls = %d)", fake.calls)
	}
}

func TestCacheStoreOutageFallsThrough(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	store.SetUnavailable(true)
	resp, err := cache.Generate(ctx, "", userMsg("hello"))
	if err != nil {
		t.Fatalf("generate during outage: %v", err)
	}
	if resp != "reply to hello" {
		t.Errorf("resp = %q", resp)
	}
}

func TestCacheStreamReplay(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{responses: map[string]string{
		"hello": strings.Repeat("0123456789", 12),
	}}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	collect := func() string {
		chunks := make(chan string, 64)
		done := make(chan error, 1)
		go func() { done <- cache.GenerateStream(ctx, "", userMsg("hello"), chunks) }()
		var sb strings.Builder
		var sizes []int
		for c := range chunks {
			sb.WriteString(c)
			sizes = append(sizes, len(c))
		}
		if err := <-done; err != nil {
			t.Fatalf("stream: %v", err)
		}
		for _, n := range sizes {
			if n > replayChunkSize {
				t.Errorf("chunk of %d bytes exceeds replay size", n)
			}
		}
		return sb.String()
	}

	live := collect()
	if fake.calls != 1 {
		t.Fatalf("calls after live stream = %d", fake.calls)
	}
	replayed := collect()
	if fake.calls != 1 {
		t.Errorf("replay hit the provider (calls = %d)", fake.calls)
	}
	if live != replayed {
		t.Errorf("replay differs from live:\n%q\n%q", live, replayed)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	cache.Generate(ctx, "", userMsg("one"))
	cache.Generate(ctx, "", userMsg("two"))
	cache.Generate(ctx, "", userMsg("one"))
	cache.Generate(ctx, "other-model", userMsg("three"))

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Entries != 3 || stats.TotalHits != 1 {
		t.Errorf("stats = %+v, want 3 entries / 1 hit", stats)
	}
	if stats.TotalSize <= 0 {
		t.Errorf("total size = %d, want > 0", stats.TotalSize)
	}
	if stats.ByModel["fake-model"] != 2 || stats.ByModel["other-model"] != 1 {
		t.Errorf("by model = %v", stats.ByModel)
	}

	n, err := cache.Clear(ctx, "")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 3 {
		t.Errorf("cleared %d, want 3", n)
	}
	stats, _ = cache.Stats(ctx)
	if stats.Entries != 0 {
		t.Errorf("entries after clear = %d", stats.Entries)
	}
}

func TestCacheClearScopedToModel(t *testing.T) {
	ctx := context.Background()
	fake := &fakeProvider{}
	store := kv.NewMemoryStore()
	cache := newTestCache(t, fake, store, testCacheConfig())

	cache.Generate(ctx, "", userMsg("one"))
	cache.Generate(ctx, "other-model", userMsg("two"))

	n, err := cache.Clear(ctx, "other-model")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 1 {
		t.Errorf("cleared %d, want 1", n)
	}

	stats, _ := cache.Stats(ctx)
	if stats.Entries != 1 || stats.ByModel["fake-model"] != 1 {
		t.Errorf("stats after scoped clear = %+v", stats)
	}
	if stats.ByModel["other-model"] != 0 {
		t.Errorf("other-model entries survived: %v", stats.ByModel)
	}
}

func TestCanonicalPromptUnwrapsEnvelope(t *testing.T) {
	plain := []Message{{Role: "user", Content: "hi"}}
	data, _ := json.Marshal(map[string]any{"messages": plain})
	wrapped := []Message{{Role: "user", Content: string(data)}}

	if canonicalPrompt(plain) != canonicalPrompt(wrapped) {
		t.Error("envelope form should hash like the plain form")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors = %v", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Errorf("length mismatch = %v", got)
	}
}
