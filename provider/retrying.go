package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/agentloop/agentloop/message"
)

// RetryPolicy configures Retrying, generalizing the teacher's
// retry.RetryPolicy onto cenkalti/backoff/v5's exponential-backoff engine
// instead of a hand-rolled one.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy mirrors the teacher's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0}
}

// Retrying wraps a Provider so every Generate/GenerateStream call retries
// transient failures with jittered exponential backoff, per spec.md §5's
// "retry backoff between attempts" suspension point. Streaming calls are
// only retried up to the point the stream is established; once deltas
// start arriving a mid-stream failure is surfaced to the caller rather
// than silently restarted, since partial output has already been agglomerated.
type Retrying struct {
	inner  Provider
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetrying wraps inner in the given policy. A zero policy value uses
// DefaultRetryPolicy.
func NewRetrying(inner Provider, policy RetryPolicy, logger *zap.Logger) *Retrying {
	if policy.MaxRetries == 0 && policy.InitialDelay == 0 {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{inner: inner, policy: policy, logger: logger.With(zap.String("component", "provider_retry"))}
}

func (r *Retrying) retryOpts() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialDelay
	b.MaxInterval = r.policy.MaxDelay
	b.Multiplier = r.policy.Multiplier
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxRetries + 1)),
	}
}

// Generate retries r.inner.Generate on errors marked WrapRetryable.
func (r *Retrying) Generate(ctx context.Context, req Request) (message.Message, error) {
	attempt := 0
	op := func() (message.Message, error) {
		attempt++
		msg, err := r.inner.Generate(ctx, req)
		if err == nil {
			return msg, nil
		}
		if !isRetryable(err) {
			return message.Message{}, backoff.Permanent(err)
		}
		r.logger.Debug("retrying model call", zap.Int("attempt", attempt), zap.Error(err))
		return message.Message{}, err
	}
	return backoff.Retry(ctx, op, r.retryOpts()...)
}

// GenerateStream retries establishing the stream (r.inner.GenerateStream
// itself returning an error) but does not retry once a channel has been
// handed back — a stream that dies mid-flight is reported to the caller as
// a terminal StreamEvent.Err instead.
func (r *Retrying) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	attempt := 0
	op := func() (<-chan StreamEvent, error) {
		attempt++
		ch, err := r.inner.GenerateStream(ctx, req)
		if err == nil {
			return ch, nil
		}
		if !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		r.logger.Debug("retrying model stream open", zap.Int("attempt", attempt), zap.Error(err))
		return nil, err
	}
	return backoff.Retry(ctx, op, r.retryOpts()...)
}

// HealthCheck delegates without retry; a failing health check should be
// visible immediately.
func (r *Retrying) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return r.inner.HealthCheck(ctx)
}

func (r *Retrying) Name() string               { return r.inner.Name() }
func (r *Retrying) SupportsToolCalling() bool  { return r.inner.SupportsToolCalling() }

var _ Provider = (*Retrying)(nil)

// RetryableError marks err as eligible for retry, mirroring the teacher's
// retry.WrapRetryable/IsRetryableError split between a wrapper type and a
// check function.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// WrapRetryable marks err as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func isRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
