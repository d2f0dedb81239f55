package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/botrt/botrt/internal/kv"
)

// ContextCache keeps ephemeral per-session variables in the kv store.
// Every operation degrades silently when the store is down: writes are
// dropped and reads return empty, so conversations keep flowing on the
// durable history alone.
type ContextCache struct {
	kv     kv.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewContextCache wraps a kv store. A zero ttl means entries never expire.
func NewContextCache(store kv.Store, ttl time.Duration, logger *slog.Logger) *ContextCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextCache{kv: store, ttl: ttl, logger: logger}
}

func contextKey(userID, sessionID string) string {
	return fmt.Sprintf("context:%s:%s", userID, sessionID)
}

// SetActive records which context variable the session is currently
// collecting, e.g. while a script waits on user input.
func (c *ContextCache) SetActive(ctx context.Context, userID, sessionID, name string) {
	if c == nil || c.kv == nil {
		return
	}
	if err := c.set(ctx, contextKey(userID, sessionID), name); err != nil {
		c.logger.Debug("context cache write skipped", "error", err)
	}
}

// Active returns the variable name set by SetActive, or "".
func (c *ContextCache) Active(ctx context.Context, userID, sessionID string) string {
	if c == nil || c.kv == nil {
		return ""
	}
	v, err := c.kv.Get(ctx, contextKey(userID, sessionID))
	if err != nil {
		if err != kv.ErrNotFound {
			c.logger.Debug("context cache read skipped", "error", err)
		}
		return ""
	}
	return v
}

// SetValue stores one named variable for the session.
func (c *ContextCache) SetValue(ctx context.Context, userID, sessionID, name, value string) {
	if c == nil || c.kv == nil {
		return
	}
	key := contextKey(userID, sessionID) + ":" + name
	if err := c.set(ctx, key, value); err != nil {
		c.logger.Debug("context cache write skipped", "key", key, "error", err)
	}
}

// Value reads one named variable, returning "" when absent or the store
// is unavailable.
func (c *ContextCache) Value(ctx context.Context, userID, sessionID, name string) string {
	if c == nil || c.kv == nil {
		return ""
	}
	v, err := c.kv.Get(ctx, contextKey(userID, sessionID)+":"+name)
	if err != nil {
		return ""
	}
	return v
}

// Data returns every variable stored for the session.
func (c *ContextCache) Data(ctx context.Context, userID, sessionID string) map[string]string {
	out := make(map[string]string)
	if c == nil || c.kv == nil {
		return out
	}
	prefix := contextKey(userID, sessionID) + ":"
	keys, err := c.kv.Keys(ctx, prefix+"*")
	if err != nil {
		c.logger.Debug("context cache scan skipped", "error", err)
		return out
	}
	for _, key := range keys {
		v, err := c.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		out[strings.TrimPrefix(key, prefix)] = v
	}
	return out
}

// Clear drops the session's variables and active marker.
func (c *ContextCache) Clear(ctx context.Context, userID, sessionID string) {
	if c == nil || c.kv == nil {
		return
	}
	base := contextKey(userID, sessionID)
	keys, err := c.kv.Keys(ctx, base+":*")
	if err == nil {
		keys = append(keys, base)
		if err := c.kv.Del(ctx, keys...); err != nil {
			c.logger.Debug("context cache clear skipped", "error", err)
		}
	}
}

func (c *ContextCache) set(ctx context.Context, key, value string) error {
	if c.ttl > 0 {
		return c.kv.SetTTL(ctx, key, value, c.ttl)
	}
	return c.kv.Set(ctx, key, value)
}
