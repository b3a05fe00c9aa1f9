package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NewsDeskAI/newsdesk/pkg/kv"
)

// Default cache parameters.
const (
	DefaultKeyPrefix  = "newsdesk:"
	DefaultSessionTTL = 30 * time.Minute
	DefaultQueryTTL   = time.Hour
)

// CacheConfig configures key namespacing and expiry.
type CacheConfig struct {
	KeyPrefix  string
	SessionTTL time.Duration
	QueryTTL   time.Duration
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.QueryTTL <= 0 {
		c.QueryTTL = DefaultQueryTTL
	}
	return c
}

// Cache stores per-session conversation history and per-query cached
// answers, both TTL-expiring. Caching is best-effort: every operation
// degrades to absent/no-op with a warn log when the backing store fails,
// and never propagates the error to the conversation path.
type Cache struct {
	store  kv.Store
	cfg    CacheConfig
	logger *slog.Logger
}

// NewCache creates a Cache over store.
func NewCache(store kv.Store, cfg CacheConfig, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, cfg: cfg.withDefaults(), logger: logger}
}

func (c *Cache) sessionKey(id string) string {
	return c.cfg.KeyPrefix + "s:" + id
}

// queryKey encodes the literal query text reversibly. No normalization:
// queries differing only in whitespace or case are distinct entries.
func (c *Cache) queryKey(query string) string {
	return c.cfg.KeyPrefix + "q:" + base64.RawURLEncoding.EncodeToString([]byte(query))
}

// CreateSession mints a new session identifier with an empty history. The
// identifier is returned even if the initial write fails; the session then
// simply does not exist until retried.
func (c *Cache) CreateSession(ctx context.Context) string {
	id := uuid.NewString()
	c.putHistory(ctx, id, []ChatMessage{})
	return id
}

// History returns the session's messages in conversational order, or false
// when the session is unknown, expired, or unreadable.
func (c *Cache) History(ctx context.Context, id string) ([]ChatMessage, bool) {
	data, err := c.store.Get(ctx, c.sessionKey(id))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("chat cache: read session failed", "session", id, "err", err)
		}
		return nil, false
	}
	var msgs []ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		c.logger.Warn("chat cache: decode session failed", "session", id, "err", err)
		return nil, false
	}
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return msgs, true
}

// Append adds messages to the session's history and refreshes its TTL.
func (c *Cache) Append(ctx context.Context, id string, msgs ...ChatMessage) {
	history, ok := c.History(ctx, id)
	if !ok {
		history = []ChatMessage{}
	}
	c.putHistory(ctx, id, append(history, msgs...))
}

// Clear resets the session to an empty history. The identifier stays valid.
func (c *Cache) Clear(ctx context.Context, id string) {
	c.putHistory(ctx, id, []ChatMessage{})
}

func (c *Cache) putHistory(ctx context.Context, id string, msgs []ChatMessage) {
	data, err := json.Marshal(msgs)
	if err != nil {
		c.logger.Warn("chat cache: encode session failed", "session", id, "err", err)
		return
	}
	if err := c.store.SetTTL(ctx, c.sessionKey(id), data, c.cfg.SessionTTL); err != nil {
		c.logger.Warn("chat cache: write session failed", "session", id, "err", err)
	}
}

// CachedAnswer looks up a previously answered query by its literal text.
func (c *Cache) CachedAnswer(ctx context.Context, query string) (*CachedResult, bool) {
	data, err := c.store.Get(ctx, c.queryKey(query))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("chat cache: read query failed", "err", err)
		}
		return nil, false
	}
	var res CachedResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("chat cache: decode query failed", "err", err)
		return nil, false
	}
	return &res, true
}

// StoreAnswer caches a query's answer with the query TTL.
func (c *Cache) StoreAnswer(ctx context.Context, query string, res *CachedResult) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("chat cache: encode query failed", "err", err)
		return
	}
	if err := c.store.SetTTL(ctx, c.queryKey(query), data, c.cfg.QueryTTL); err != nil {
		c.logger.Warn("chat cache: write query failed", "err", err)
	}
}
