package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/message"
)

type stubProvider struct {
	resp message.Message
}

func (s *stubProvider) Generate(ctx context.Context, req Request) (message.Message, error) {
	return s.resp, nil
}
func (s *stubProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	close(ch)
	return ch, nil
}
func (s *stubProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{Healthy: true}, nil
}
func (s *stubProvider) Name() string             { return "stub" }
func (s *stubProvider) SupportsToolCalling() bool { return true }

func TestRateLimitedFirstCallNeverWaits(t *testing.T) {
	rl := NewRateLimited(&stubProvider{resp: message.NewAssistant("ok")}, 60)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimitedThrottlesSecondCall(t *testing.T) {
	rl := NewRateLimited(&stubProvider{resp: message.NewAssistant("ok")}, 600) // 100ms interval
	ctx := context.Background()

	_, err := rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)

	start := time.Now()
	_, err = rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimitedDisabledWhenRPMZero(t *testing.T) {
	rl := NewRateLimited(&stubProvider{resp: message.NewAssistant("ok")}, 0)
	ctx := context.Background()
	_, err := rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)
	_, err = rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)
}

func TestRateLimitedSetRPMTakesEffectOnNextCall(t *testing.T) {
	rl := NewRateLimited(&stubProvider{resp: message.NewAssistant("ok")}, 0)
	ctx := context.Background()

	_, err := rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)

	rl.SetRPM(600) // 100ms interval
	_, err = rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)

	start := time.Now()
	_, err = rl.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "the limiter seeded after SetRPM must throttle")
}

func TestRateLimitedIsolatedPerModel(t *testing.T) {
	rl := NewRateLimited(&stubProvider{resp: message.NewAssistant("ok")}, 600)
	ctx := context.Background()

	_, err := rl.Generate(ctx, Request{Model: "a"})
	require.NoError(t, err)

	start := time.Now()
	_, err = rl.Generate(ctx, Request{Model: "b"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond, "distinct models must not share a limiter")
}
