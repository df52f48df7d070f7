// Package cache implements an optional response cache for model calls,
// adapted from the teacher's llm/cache.MultiLevelCache but scoped down to
// exactly what spec.md's Non-goals leave room for: caching whether a given
// request was already answered, never durably persisting a run's steps or
// memory. A run's steps/memory live only in the process (memory.Memory);
// this cache only shortcuts a repeated identical model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentloop/agentloop/message"
)

// ErrMiss is returned by Get when no entry exists for the key.
var ErrMiss = errors.New("cache: miss")

// cacheTypeLabel identifies this cache to observability.Collector's
// cache_type label; a second cache implementation would pick its own.
const cacheTypeLabel = "provider_response"

// HitMissRecorder is the subset of observability.Collector's surface
// ResponseCache needs. Declaring it here instead of importing observability
// keeps cache free of a dependency on the metrics package;
// *observability.Collector satisfies this interface structurally.
type HitMissRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// Entry is one cached response.
type Entry struct {
	Response  message.Message `json:"response"`
	Model     string           `json:"model"`
	CreatedAt time.Time        `json:"created_at"`
}

// ResponseCache is a Redis-backed cache of complete (non-streaming) model
// responses, keyed by a hash of the request shape.
type ResponseCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	// cacheable reports whether req should be looked up/stored at all; the
	// teacher's default policy excludes any request carrying tools, since
	// a tool-using response can have side effects tied to its specific
	// call history and should not be silently reused.
	cacheable func(hasTools bool) bool
	recorder  HitMissRecorder
}

// Config configures a ResponseCache.
type Config struct {
	TTL       time.Duration
	Cacheable func(hasTools bool) bool
	Recorder  HitMissRecorder
}

// DefaultConfig mirrors the teacher's default: skip caching any request
// that carries tools.
func DefaultConfig() Config {
	return Config{
		TTL:       time.Hour,
		Cacheable: func(hasTools bool) bool { return !hasTools },
	}
}

// New builds a ResponseCache over rdb.
func New(rdb *redis.Client, cfg Config, logger *zap.Logger) *ResponseCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Cacheable == nil {
		cfg.Cacheable = DefaultConfig().Cacheable
	}
	return &ResponseCache{
		rdb: rdb, ttl: cfg.TTL,
		logger:    logger.With(zap.String("component", "provider_cache")),
		cacheable: cfg.Cacheable,
		recorder:  cfg.Recorder,
	}
}

// Key hashes model + the rendered messages + stop sequences into a stable
// cache key, matching the teacher's default hash key strategy.
func Key(model string, messages []message.Message, stopSequences []string) (string, error) {
	payload := struct {
		Model    string             `json:"model"`
		Messages []message.Message `json:"messages"`
		Stop     []string           `json:"stop"`
	}{Model: model, Messages: messages, Stop: stopSequences}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "agentloop:response_cache:" + hex.EncodeToString(sum[:16]), nil
}

// Get looks up key, returning ErrMiss if absent. Any other Redis error,
// including ctx expiry, and any decode error is returned as is.
func (c *ResponseCache) Get(ctx context.Context, key string) (Entry, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, err
	}
	c.logger.Debug("response cache hit", zap.String("key", key))
	c.recordHit()
	return entry, nil
}

func (c *ResponseCache) recordHit() {
	if c.recorder != nil {
		c.recorder.RecordCacheHit(cacheTypeLabel)
	}
}

func (c *ResponseCache) recordMiss() {
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(cacheTypeLabel)
	}
}

// Set stores entry under key with the configured TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, entry Entry) error {
	entry.CreatedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// Cacheable reports whether a request carrying hasTools should be looked
// up/stored.
func (c *ResponseCache) Cacheable(hasTools bool) bool {
	return c.cacheable(hasTools)
}
