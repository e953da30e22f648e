// Package cache provides a best-effort query-result cache with two tiers: a
// durable, TTL-respecting Redis backend and an in-process fallback. Every
// Redis operation is guarded so that connectivity failures degrade the call
// to the fallback store instead of surfacing an error — caching never blocks
// or fails the surrounding request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bookvision"

// Interface is the minimal Redis surface the cache needs. *redis.Client and
// miniredis-backed clients both satisfy it.
type Interface interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Option configures a Cache.
type Option func(*Cache)

// WithRedis sets the durable tier. Without it the cache runs purely
// in-process.
func WithRedis(client Interface) Option {
	return func(c *Cache) { c.redis = client }
}

// WithMaxEntries bounds the in-process fallback store. Exceeding the bound
// evicts the oldest tenth of entries in insertion order. Default is 1000.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.local.maxEntries = n }
}

// WithLogger sets a structured logger. Degradations to the fallback tier are
// logged at debug level. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Cache is a namespaced key/value cache keyed by a content hash of the query,
// so semantically identical queries collide onto the same entry regardless of
// the caller. Entries are immutable once set; concurrent access needs no
// coordination beyond the internal locks.
type Cache struct {
	redis  Interface
	local  *memoryStore
	logger *slog.Logger
}

// New creates a Cache. With no options it is a pure in-process cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		local:  newMemoryStore(defaultMaxEntries),
		logger: nopLogger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// key derives the cache key for a namespaced query.
func (c *Cache) key(namespace, query string) string {
	sum := sha256.Sum256([]byte(query))
	return keyPrefix + ":" + namespace + ":" + hex.EncodeToString(sum[:])
}

// Get looks up a cached value and unmarshals it into dest. It reports whether
// a value was found. The durable tier is consulted first; on miss or backend
// failure the fallback store is checked.
func (c *Cache) Get(ctx context.Context, namespace, query string, dest any) bool {
	key := c.key(namespace, query)

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal([]byte(val), dest); jsonErr == nil {
				return true
			}
			c.logger.Debug("cache: corrupt redis entry", "key", key)
		case err != redis.Nil:
			c.logger.Debug("cache: redis get failed, using fallback", "key", key, "error", err)
		}
	}

	data, ok := c.local.get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug("cache: corrupt fallback entry", "key", key)
		return false
	}
	return true
}

// Set stores a value under the namespaced query for ttl. A ttl of zero means
// no expiry. Backend failures degrade to the fallback store, which has no TTL
// semantics: entries live there until cleared or displaced by capacity.
func (c *Cache) Set(ctx context.Context, namespace, query string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("cache: unmarshalable value dropped", "namespace", namespace, "error", err)
		return
	}
	key := c.key(namespace, query)

	if c.redis != nil {
		err := c.redis.Set(ctx, key, data, ttl).Err()
		if err == nil {
			return
		}
		c.logger.Debug("cache: redis set failed, using fallback", "key", key, "error", err)
	}

	c.local.set(key, data)
}

// Clear removes entries in the given namespace from both tiers. An empty
// namespace clears every entry the cache owns. Entries under other
// namespaces are untouched.
func (c *Cache) Clear(ctx context.Context, namespace string) {
	prefix := keyPrefix + ":"
	if namespace != "" {
		prefix = keyPrefix + ":" + namespace + ":"
	}

	if c.redis != nil {
		c.clearRedis(ctx, prefix)
	}
	c.local.clearPrefix(prefix)
}

// clearRedis scans and deletes all keys under prefix. Failures are logged
// and swallowed; the fallback tier is still cleared by the caller.
func (c *Cache) clearRedis(ctx context.Context, prefix string) {
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			c.logger.Debug("cache: redis scan failed", "prefix", prefix, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.Debug("cache: redis del failed", "prefix", prefix, "error", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
