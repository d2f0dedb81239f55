package config

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/botrt/botrt/internal/kv"
)

// Well-known per-bot configuration keys.
const (
	KeyLLMCache          = "llm-cache"
	KeyLLMCacheTTL       = "llm-cache-ttl"
	KeyLLMCacheSemantic  = "llm-cache-semantic"
	KeyLLMCacheThreshold = "llm-cache-threshold"
	KeyPromptCompact     = "prompt-compact"
)

// BotConfigService resolves per-bot configuration values. Lookup order is
// the durable bot_config table, then the kv store under
// bot_config:{tenant}:{key}, then the static default passed by the caller.
type BotConfigService struct {
	db *sql.DB
	kv kv.Store
}

// NewBotConfigService creates a resolver over the given stores. Either
// store may be nil; a nil store is skipped during lookup.
func NewBotConfigService(db *sql.DB, store kv.Store) *BotConfigService {
	return &BotConfigService{db: db, kv: store}
}

// Get returns the configured value for tenant/key, or def when no store
// has an entry. Store errors degrade to the next source.
func (s *BotConfigService) Get(ctx context.Context, tenant, key, def string) string {
	if s == nil {
		return def
	}
	if s.db != nil {
		var v string
		err := s.db.QueryRowContext(ctx,
			`SELECT value FROM bot_config WHERE tenant = ? AND key = ?`,
			tenant, key).Scan(&v)
		if err == nil {
			return v
		}
	}
	if s.kv != nil {
		if v, err := s.kv.Get(ctx, fmt.Sprintf("bot_config:%s:%s", tenant, key)); err == nil {
			return v
		}
	}
	return def
}

// GetBool reads a boolean value. Accepts true/false, 1/0, yes/no.
func (s *BotConfigService) GetBool(ctx context.Context, tenant, key string, def bool) bool {
	v := s.Get(ctx, tenant, key, "")
	switch v {
	case "":
		return def
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt reads an integer value, falling back to def on parse failure.
func (s *BotConfigService) GetInt(ctx context.Context, tenant, key string, def int) int {
	v := s.Get(ctx, tenant, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetFloat reads a float value, falling back to def on parse failure.
func (s *BotConfigService) GetFloat(ctx context.Context, tenant, key string, def float64) float64 {
	v := s.Get(ctx, tenant, key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetDuration reads a duration given in seconds, falling back to def.
func (s *BotConfigService) GetDuration(ctx context.Context, tenant, key string, def time.Duration) time.Duration {
	v := s.Get(ctx, tenant, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// Set writes a value into the durable table, if present, and mirrors it
// into the kv store so other processes pick it up without a db round trip.
func (s *BotConfigService) Set(ctx context.Context, tenant, key, value string) error {
	if s.db != nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO bot_config (tenant, key, value, updated_at)
			 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(tenant, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			tenant, key, value)
		if err != nil {
			return fmt.Errorf("bot config set %s/%s: %w", tenant, key, err)
		}
	}
	if s.kv != nil {
		// Mirror failures are non-fatal: the table remains authoritative.
		_ = s.kv.Set(ctx, fmt.Sprintf("bot_config:%s:%s", tenant, key), value)
	}
	return nil
}

// SyncCSV loads name,value rows from a bot package config.csv and upserts
// each into the tenant's configuration. A header row named "name" is
// skipped. Returns the number of keys applied.
func (s *BotConfigService) SyncCSV(ctx context.Context, tenant string, data []byte) (int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	applied := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return applied, fmt.Errorf("bot config csv for %s: %w", tenant, err)
		}
		if len(rec) < 2 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		value := strings.TrimSpace(rec[1])
		if name == "" || strings.EqualFold(name, "name") {
			continue
		}
		if err := s.Set(ctx, tenant, name, value); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
