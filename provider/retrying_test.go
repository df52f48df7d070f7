package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/message"
)

type flakyProvider struct {
	failuresLeft int
	retryable    bool
	resp         message.Message
}

func (f *flakyProvider) Generate(ctx context.Context, req Request) (message.Message, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		err := errors.New("transient upstream error")
		if f.retryable {
			return message.Message{}, WrapRetryable(err)
		}
		return message.Message{}, err
	}
	return f.resp, nil
}
func (f *flakyProvider) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	close(ch)
	return ch, nil
}
func (f *flakyProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{Healthy: true}, nil
}
func (f *flakyProvider) Name() string             { return "flaky" }
func (f *flakyProvider) SupportsToolCalling() bool { return true }

func TestRetryingSucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 2, retryable: true, resp: message.NewAssistant("ok")}
	r := NewRetrying(inner, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}, nil)

	msg, err := r.Generate(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text)
}

func TestRetryingGivesUpOnNonRetryableError(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 1, retryable: false}
	r := NewRetrying(inner, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}, nil)

	_, err := r.Generate(context.Background(), Request{Model: "m"})
	assert.Error(t, err)
}

func TestRetryingExhaustsMaxRetries(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 100, retryable: true}
	r := NewRetrying(inner, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}, nil)

	_, err := r.Generate(context.Background(), Request{Model: "m"})
	assert.Error(t, err)
}

func TestWrapRetryableNilIsNil(t *testing.T) {
	assert.Nil(t, WrapRetryable(nil))
}
