package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/kv"
)

// CachedCompletion is the stored form of one cached response.
type CachedCompletion struct {
	Response  string    `json:"response"`
	Embedding []float32 `json:"embedding,omitempty"`
	HitCount  int       `json:"hit_count"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheStats summarizes cache contents.
type CacheStats struct {
	Entries   int            `json:"entries"`
	TotalHits int            `json:"total_hits"`
	TotalSize int64          `json:"total_size_bytes"`
	ByModel   map[string]int `json:"by_model"`
}

// CachedProvider wraps a Provider with an exact-match and semantic
// response cache in the kv store. Per-tenant configuration can turn the
// cache off or tune it at runtime; the tenant is read from the request
// context. Cache failures never fail the request: every path falls
// through to the wrapped provider.
type CachedProvider struct {
	inner   Provider
	kv      kv.Store
	botCfg  *config.BotConfigService
	cfg     config.GenCacheConfig
	logger  *slog.Logger
	sleepFn func(time.Duration) // test seam for stream replay pacing
}

// NewCachedProvider wraps inner with the generation cache.
func NewCachedProvider(inner Provider, store kv.Store, botCfg *config.BotConfigService, cfg config.GenCacheConfig, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{
		inner:   inner,
		kv:      store,
		botCfg:  botCfg,
		cfg:     cfg,
		logger:  logger,
		sleepFn: time.Sleep,
	}
}

// DefaultModel returns the wrapped provider's default model.
func (c *CachedProvider) DefaultModel() string {
	return c.inner.DefaultModel()
}

// Unwrap returns the wrapped provider.
func (c *CachedProvider) Unwrap() Provider {
	return c.inner
}

// Embed forwards to the wrapped provider when it can embed.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, ok := c.inner.(Embedder)
	if !ok {
		return nil, fmt.Errorf("provider does not support embeddings")
	}
	return emb.Embed(ctx, text)
}

// Generate answers from cache when possible, otherwise generates and
// stores the response.
func (c *CachedProvider) Generate(ctx context.Context, model string, messages []Message) (string, error) {
	if model == "" {
		model = c.inner.DefaultModel()
	}
	if !c.enabled(ctx) {
		return c.inner.Generate(ctx, model, messages)
	}

	key := c.cacheKey(model, messages)
	if resp, ok := c.lookup(ctx, key); ok {
		return resp, nil
	}
	if resp, ok := c.semanticLookup(ctx, model, messages); ok {
		return resp, nil
	}

	resp, err := c.inner.Generate(ctx, model, messages)
	if err != nil {
		return "", err
	}
	c.store(ctx, key, model, messages, resp)
	return resp, nil
}

// Stream replay parameters: cached responses are delivered in small
// chunks with a short pause so consumers see the same shape as a live
// stream.
const (
	replayChunkSize = 50
	replayDelay     = 10 * time.Millisecond
)

// GenerateStream streams from cache when possible, replaying the stored
// response in fixed-size chunks. Misses stream live while accumulating
// the full response for storage.
func (c *CachedProvider) GenerateStream(ctx context.Context, model string, messages []Message, chunks chan<- string) error {
	if model == "" {
		model = c.inner.DefaultModel()
	}
	if !c.enabled(ctx) {
		return c.inner.GenerateStream(ctx, model, messages, chunks)
	}

	key := c.cacheKey(model, messages)
	if resp, ok := c.lookup(ctx, key); ok {
		return c.replay(ctx, resp, chunks)
	}

	inner := make(chan string, 16)
	var sb strings.Builder
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.inner.GenerateStream(ctx, model, messages, inner)
	}()
	for chunk := range inner {
		sb.WriteString(chunk)
		select {
		case chunks <- chunk:
		case <-ctx.Done():
			close(chunks)
			return ctx.Err()
		}
	}
	close(chunks)
	if err := <-errCh; err != nil {
		return err
	}
	c.store(ctx, key, model, messages, sb.String())
	return nil
}

func (c *CachedProvider) replay(ctx context.Context, resp string, chunks chan<- string) error {
	defer close(chunks)
	for start := 0; start < len(resp); start += replayChunkSize {
		end := start + replayChunkSize
		if end > len(resp) {
			end = len(resp)
		}
		select {
		case chunks <- resp[start:end]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if end < len(resp) {
			c.sleepFn(replayDelay)
		}
	}
	return nil
}

// Stats reports entry counts, accumulated hits, total serialized size,
// and a per-model entry breakdown for the cache keyspace.
func (c *CachedProvider) Stats(ctx context.Context) (CacheStats, error) {
	st := CacheStats{ByModel: make(map[string]int)}
	if c.kv == nil {
		return st, nil
	}
	keys, err := c.kv.Keys(ctx, c.cfg.KeyPrefix+":*")
	if err != nil {
		return st, fmt.Errorf("cache stats: %w", err)
	}
	st.Entries = len(keys)
	for _, key := range keys {
		raw, err := c.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		st.TotalSize += int64(len(raw))
		var entry CachedCompletion
		if json.Unmarshal([]byte(raw), &entry) == nil {
			st.TotalHits += entry.HitCount
			st.ByModel[entry.Model]++
		}
	}
	return st, nil
}

// Clear drops cached completions, scoped to one model when model is
// non-empty. Returns the number removed.
func (c *CachedProvider) Clear(ctx context.Context, model string) (int, error) {
	if c.kv == nil {
		return 0, nil
	}
	pattern := c.cfg.KeyPrefix + ":*"
	if model != "" {
		pattern = fmt.Sprintf("%s:%s:*", c.cfg.KeyPrefix, model)
	}
	keys, err := c.kv.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return len(keys), nil
}

func (c *CachedProvider) enabled(ctx context.Context) bool {
	if c.kv == nil {
		return false
	}
	tenant := TenantFrom(ctx)
	return c.botCfg.GetBool(ctx, tenant, config.KeyLLMCache, c.cfg.Enabled)
}

func (c *CachedProvider) ttl(ctx context.Context) time.Duration {
	tenant := TenantFrom(ctx)
	return c.botCfg.GetDuration(ctx, tenant, config.KeyLLMCacheTTL, c.cfg.TTL)
}

func (c *CachedProvider) semanticEnabled(ctx context.Context) bool {
	tenant := TenantFrom(ctx)
	return c.botCfg.GetBool(ctx, tenant, config.KeyLLMCacheSemantic, c.cfg.SemanticMatching)
}

func (c *CachedProvider) threshold(ctx context.Context) float64 {
	tenant := TenantFrom(ctx)
	return c.botCfg.GetFloat(ctx, tenant, config.KeyLLMCacheThreshold, c.cfg.SimilarityThreshold)
}

// cacheKey fingerprints the request as {prefix}:{model}:{sha256}. The
// hash covers the canonical JSON of the messages, so the same turns in
// the same order always land on the same key.
func (c *CachedProvider) cacheKey(model string, messages []Message) string {
	sum := sha256.Sum256([]byte(canonicalPrompt(messages)))
	return fmt.Sprintf("%s:%s:%s", c.cfg.KeyPrefix, model, hex.EncodeToString(sum[:]))
}

// canonicalPrompt renders messages deterministically. A single message
// whose content is a JSON envelope carrying a "messages" array is
// unwrapped one level, so envelope and plain forms hash identically.
func canonicalPrompt(messages []Message) string {
	if len(messages) == 1 {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(messages[0].Content), &envelope); err == nil {
			if inner, ok := envelope["messages"]; ok {
				var unwrapped []Message
				if json.Unmarshal(inner, &unwrapped) == nil {
					messages = unwrapped
				}
			}
		}
	}
	data, _ := json.Marshal(messages)
	return string(data)
}

// promptText flattens messages into the text used for embeddings.
func promptText(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n")
}

// lookup finds an exact cache entry, bumps its hit count, and refreshes
// its TTL.
func (c *CachedProvider) lookup(ctx context.Context, key string) (string, bool) {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if err != kv.ErrNotFound {
			c.logger.Debug("cache lookup skipped", "error", err)
		}
		return "", false
	}
	var entry CachedCompletion
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return "", false
	}
	c.bump(ctx, key, entry)
	return entry.Response, true
}

func (c *CachedProvider) bump(ctx context.Context, key string, entry CachedCompletion) {
	entry.HitCount++
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.kv.SetTTL(ctx, key, string(data), c.ttl(ctx)); err != nil {
		c.logger.Debug("cache bump skipped", "key", key, "error", err)
	}
}

// semanticLookup scans a bounded number of cached entries for the same
// model and returns the best one at or above the similarity threshold.
func (c *CachedProvider) semanticLookup(ctx context.Context, model string, messages []Message) (string, bool) {
	if !c.semanticEnabled(ctx) {
		return "", false
	}
	emb, ok := c.inner.(Embedder)
	if !ok {
		return "", false
	}
	queryVec, err := emb.Embed(ctx, promptText(messages))
	if err != nil {
		c.logger.Debug("semantic lookup skipped", "error", err)
		return "", false
	}

	keys, err := c.kv.Keys(ctx, fmt.Sprintf("%s:%s:*", c.cfg.KeyPrefix, model))
	if err != nil {
		return "", false
	}
	if len(keys) > c.cfg.MaxSimilarityChecks {
		keys = keys[:c.cfg.MaxSimilarityChecks]
	}

	threshold := c.threshold(ctx)
	var (
		bestKey   string
		bestEntry CachedCompletion
		bestScore float64
	)
	for _, key := range keys {
		raw, err := c.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var entry CachedCompletion
		if json.Unmarshal([]byte(raw), &entry) != nil || len(entry.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(queryVec, entry.Embedding)
		if score >= threshold && score > bestScore {
			bestKey, bestEntry, bestScore = key, entry, score
		}
	}
	if bestKey == "" {
		return "", false
	}
	c.logger.Debug("semantic cache hit", "key", bestKey, "similarity", bestScore)
	c.bump(ctx, bestKey, bestEntry)
	return bestEntry.Response, true
}

// store writes a fresh entry, embedding the prompt when the provider
// can, so later semantic lookups can match it.
func (c *CachedProvider) store(ctx context.Context, key, model string, messages []Message, response string) {
	entry := CachedCompletion{
		Response:  response,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	if emb, ok := c.inner.(Embedder); ok && c.semanticEnabled(ctx) {
		if vec, err := emb.Embed(ctx, promptText(messages)); err == nil {
			entry.Embedding = vec
		}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.kv.SetTTL(ctx, key, string(data), c.ttl(ctx)); err != nil {
		c.logger.Debug("cache store skipped", "key", key, "error", err)
	}
}

// cosineSimilarity returns the cosine of the angle between a and b, or
// 0 when the vectors differ in length or are zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
