package cache

import (
	"context"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
)

// CachingProvider wraps a provider.Provider, short-circuiting Generate
// through a ResponseCache for cacheable (tool-free) requests.
type CachingProvider struct {
	inner provider.Provider
	cache *ResponseCache
}

// NewCachingProvider wraps inner with cache.
func NewCachingProvider(inner provider.Provider, cache *ResponseCache) *CachingProvider {
	return &CachingProvider{inner: inner, cache: cache}
}

func (c *CachingProvider) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	hasTools := len(req.Tools) > 0
	if !c.cache.Cacheable(hasTools) {
		return c.inner.Generate(ctx, req)
	}

	key, err := Key(req.Model, req.Messages, req.StopSequences)
	if err != nil {
		return c.inner.Generate(ctx, req)
	}

	if entry, err := c.cache.Get(ctx, key); err == nil {
		return entry.Response, nil
	}

	msg, err := c.inner.Generate(ctx, req)
	if err != nil {
		return message.Message{}, err
	}
	_ = c.cache.Set(ctx, key, Entry{Response: msg, Model: req.Model})
	return msg, nil
}

// GenerateStream is never cached: a cache can only replay a complete
// response, not replay a stream.
func (c *CachingProvider) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	return c.inner.GenerateStream(ctx, req)
}

func (c *CachingProvider) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	return c.inner.HealthCheck(ctx)
}

func (c *CachingProvider) Name() string              { return c.inner.Name() }
func (c *CachingProvider) SupportsToolCalling() bool  { return c.inner.SupportsToolCalling() }

var _ provider.Provider = (*CachingProvider)(nil)
