package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/message"
	"github.com/agentloop/agentloop/provider"
	"github.com/agentloop/agentloop/toolkit"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestResponseCacheGetMiss(t *testing.T) {
	c := New(newTestClient(t), DefaultConfig(), nil)
	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestResponseCacheSetThenGet(t *testing.T) {
	c := New(newTestClient(t), DefaultConfig(), nil)
	entry := Entry{Response: message.NewAssistant("4"), Model: "gpt-4"}

	require.NoError(t, c.Set(context.Background(), "k1", entry))
	got, err := c.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "4", got.Response.Text)
	assert.Equal(t, "gpt-4", got.Model)
}

func TestKeyIsStableForIdenticalRequests(t *testing.T) {
	msgs := []message.Message{message.NewUser("hi")}
	k1, err := Key("gpt-4", msgs, []string{"Observation:"})
	require.NoError(t, err)
	k2, err := Key("gpt-4", msgs, []string{"Observation:"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestKeyDiffersForDifferentModel(t *testing.T) {
	msgs := []message.Message{message.NewUser("hi")}
	k1, _ := Key("gpt-4", msgs, nil)
	k2, _ := Key("gpt-3.5", msgs, nil)
	assert.NotEqual(t, k1, k2)
}

func TestDefaultConfigRejectsToolRequests(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Cacheable(false))
	assert.False(t, cfg.Cacheable(true))
}

type stubProvider struct {
	calls int
	resp  message.Message
}

func (s *stubProvider) Generate(ctx context.Context, req provider.Request) (message.Message, error) {
	s.calls++
	return s.resp, nil
}
func (s *stubProvider) GenerateStream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent)
	close(ch)
	return ch, nil
}
func (s *stubProvider) HealthCheck(ctx context.Context) (provider.HealthStatus, error) {
	return provider.HealthStatus{Healthy: true}, nil
}
func (s *stubProvider) Name() string             { return "stub" }
func (s *stubProvider) SupportsToolCalling() bool { return true }

func TestCachingProviderReusesCachedResponse(t *testing.T) {
	stub := &stubProvider{resp: message.NewAssistant("42")}
	c := New(newTestClient(t), DefaultConfig(), nil)
	cp := NewCachingProvider(stub, c)

	req := provider.Request{Model: "gpt-4", Messages: []message.Message{message.NewUser("what is the answer")}}

	_, err := cp.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = cp.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls, "second call should be served from cache")
}

func TestCachingProviderSkipsCacheWhenToolsPresent(t *testing.T) {
	stub := &stubProvider{resp: message.NewAssistant("42")}
	c := New(newTestClient(t), DefaultConfig(), nil)
	cp := NewCachingProvider(stub, c)

	tool := toolkit.NewFuncTool("noop", "does nothing", toolkit.Schema{}, toolkit.TypeString,
		func(ctx context.Context, args map[string]any) (any, error) { return "ok", nil }, nil)

	req := provider.Request{
		Model:    "gpt-4",
		Messages: []message.Message{message.NewUser("call a tool")},
		Tools:    []toolkit.Tool{tool},
	}

	_, err := cp.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = cp.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, stub.calls, "tool-bearing requests must never be served from cache")
}
